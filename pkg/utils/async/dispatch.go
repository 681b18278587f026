package async

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/utils/errutil"
	"github.com/secmon-lab/tributary/pkg/utils/logging"
)

// Dispatch runs handler in a new goroutine detached from the caller's cancellation.
// The request-scoped logger is carried over. Errors and panics are logged and reported.
func Dispatch(ctx context.Context, name string, handler func(ctx context.Context) error) {
	bgCtx := context.WithoutCancel(ctx)
	bgCtx = logging.With(bgCtx, logging.From(ctx).With("task", name))

	go func() {
		defer func() {
			if r := recover(); r != nil {
				_ = errutil.Handle(bgCtx, goerr.New("panic in async task", goerr.V("panic", r)), "async task panicked")
			}
		}()

		if err := handler(bgCtx); err != nil {
			_ = errutil.Handle(bgCtx, err, "async task failed")
		}
	}()
}
