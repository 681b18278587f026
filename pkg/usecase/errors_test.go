package usecase_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/tributary/pkg/usecase"
)

func TestErrors_SentinelIdentification(t *testing.T) {
	sentinels := []error{
		usecase.ErrSyncInProgress,
		usecase.ErrConnectionTestFailed,
		usecase.ErrUserDiscoveryUnsupported,
	}

	for _, sentinel := range sentinels {
		t.Run(sentinel.Error(), func(t *testing.T) {
			wrapped := goerr.Wrap(sentinel, "outer", goerr.V(usecase.ConnectionIDKey, "c1"))
			gt.Bool(t, errors.Is(wrapped, sentinel)).True()

			for _, other := range sentinels {
				if other != sentinel {
					gt.Bool(t, errors.Is(wrapped, other)).False()
				}
			}
		})
	}
}
