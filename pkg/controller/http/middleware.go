package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/utils/errutil"
)

var errUnauthorized = goerr.New("authentication required")

// tokenAuthMiddleware rejects requests without the configured bearer token
func tokenAuthMiddleware(token string) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(given), expected) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="tributary"`)
				errutil.HandleHTTP(r.Context(), w, errUnauthorized, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
