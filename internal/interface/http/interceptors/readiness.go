package interceptors

import (
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/arkade-os/pegd/pkg/errors"
)

const protectedPathPrefix = "/v1/"

var errNotReady = errors.SERVICE_NOT_READY.New("peg service not ready: app service is not started")

// ReadinessService gates the app routes until the app service is started.
type ReadinessService struct {
	appStarted atomic.Bool
}

func NewReadinessService() *ReadinessService {
	return &ReadinessService{}
}

func (r *ReadinessService) MarkAppServiceStarted() {
	r.appStarted.Store(true)
}

func (r *ReadinessService) MarkAppServiceStopped() {
	r.appStarted.Store(false)
}

func (r *ReadinessService) IsReady() bool {
	return r != nil && r.appStarted.Load()
}

func (r *ReadinessService) Check(path string) error {
	if r == nil || !strings.HasPrefix(path, protectedPathPrefix) {
		return nil
	}
	if !r.appStarted.Load() {
		return errNotReady
	}
	return nil
}

func (r *ReadinessService) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if err := r.Check(req.URL.Path); err != nil {
			WriteError(w, err)
			return
		}
		next.ServeHTTP(w, req)
	})
}
