package interceptors

import (
	"crypto/subtle"
	"net/http"

	"github.com/arkade-os/pegd/pkg/errors"
)

const AdminTokenHeader = "X-Admin-Token"

var (
	errMissingToken = errors.UNAUTHENTICATED.New("missing admin token")
	errInvalidToken = errors.UNAUTHENTICATED.New("invalid admin token")
)

// AdminAuth rejects requests that do not carry the given token. An empty token disables
// the check.
func AdminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			got := r.Header.Get(AdminTokenHeader)
			if got == "" {
				WriteError(w, errMissingToken)
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				WriteError(w, errInvalidToken)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
