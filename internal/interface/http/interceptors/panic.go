// panic.go recovers from panics in http handlers and converts them into INTERNAL_ERROR
// responses instead of crashing the server. Stack traces are logged.
package interceptors

import (
	"net/http"
	"runtime/debug"

	"github.com/arkade-os/pegd/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var somethingWentWrong = errors.INTERNAL_ERROR.New("something went wrong")

func PanicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Errorf("panic-recovery middleware recovered from panic: %v", rec)
				log.Errorf("stack trace: %v", string(debug.Stack()))
				WriteError(w, somethingWentWrong)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
