package httpservice

import (
	"fmt"
	"net/http"
	"net/http/pprof"
	"sync/atomic"
	"time"

	"github.com/arkade-os/pegd/internal/config"
	interfaces "github.com/arkade-os/pegd/internal/interface"
	"github.com/arkade-os/pegd/internal/interface/http/handlers"
	"github.com/arkade-os/pegd/internal/interface/http/interceptors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const readHeaderTimeout = 10 * time.Second

type service struct {
	version       string
	config        Config
	appConfig     *config.Config
	server        *http.Server
	adminServer   *http.Server
	readinessSvc  *interceptors.ReadinessService
	appSvcStarted atomic.Bool
}

func NewService(
	version string, svcConfig Config, appConfig *config.Config,
) (interfaces.Service, error) {
	if err := svcConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid service config: %s", err)
	}
	if err := appConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid app config: %s", err)
	}
	if svcConfig.AdminToken == "" {
		log.Warn("admin routes are not protected by a token")
	}

	return &service{
		version:      version,
		config:       svcConfig,
		appConfig:    appConfig,
		readinessSvc: interceptors.NewReadinessService(),
	}, nil
}

func (s *service) Start() error {
	if err := s.newServer(); err != nil {
		return err
	}

	// nolint:all
	go s.server.ListenAndServe()
	log.Infof("started listening at %s", s.config.address())

	if s.adminServer != nil {
		// nolint:all
		go s.adminServer.ListenAndServe()
		log.Infof("started admin listening at %s", s.config.adminAddress())
	}

	return s.startAppServices()
}

func (s *service) Stop() {
	if s.appSvcStarted.CompareAndSwap(true, false) {
		s.readinessSvc.MarkAppServiceStopped()
		appSvc, _ := s.appConfig.AppService()
		if appSvc != nil {
			appSvc.Stop()
		}
	}

	if s.server != nil {
		_ = s.server.Close()
	}
	if s.adminServer != nil {
		_ = s.adminServer.Close()
	}
	log.Info("shutdown service")
}

func (s *service) startAppServices() error {
	if !s.appSvcStarted.CompareAndSwap(false, true) {
		return nil
	}

	appSvc, err := s.appConfig.AppService()
	if err != nil {
		s.appSvcStarted.Store(false)
		return fmt.Errorf("failed to create app service: %w", err)
	}
	if err := appSvc.Start(); err != nil {
		s.appSvcStarted.Store(false)
		return fmt.Errorf("failed to start app service: %w", err)
	}
	s.readinessSvc.MarkAppServiceStarted()

	log.Info("started app service")
	return nil
}

func (s *service) newServer() error {
	appSvc, err := s.appConfig.AppService()
	if err != nil {
		return fmt.Errorf("failed to create app service: %w", err)
	}

	pegHandler := handlers.NewPegHandler(s.version, appSvc)
	adminHandler := handlers.NewAdminHandler(appSvc)

	router := s.newRouter()
	pegHandler.RegisterRoutes(router)
	router.Handle("/metrics", promhttp.HandlerFor(
		s.appConfig.MetricsGatherer(), promhttp.HandlerOpts{},
	)).Methods(http.MethodGet)

	if s.config.hasAdminPort() {
		// The admin server exposes the public routes too.
		adminRouter := s.newRouter()
		pegHandler.RegisterRoutes(adminRouter)
		adminHandler.RegisterRoutes(s.adminRoutes(adminRouter))
		if s.config.EnablePprof {
			registerPprof(adminRouter)
		}
		s.adminServer = &http.Server{
			Addr:              s.config.adminAddress(),
			Handler:           adminRouter,
			ReadHeaderTimeout: readHeaderTimeout,
		}
	} else {
		adminHandler.RegisterRoutes(s.adminRoutes(router))
		if s.config.EnablePprof {
			registerPprof(router)
		}
	}

	s.server = &http.Server{
		Addr:              s.config.address(),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return nil
}

func (s *service) newRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(interceptors.PanicRecovery, interceptors.Logger, s.readinessSvc.Middleware)
	router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	return router
}

// adminRoutes returns a subrouter whose routes require the admin token.
func (s *service) adminRoutes(r *mux.Router) *mux.Router {
	sub := r.NewRoute().Subrouter()
	sub.Use(interceptors.AdminAuth(s.config.AdminToken))
	return sub
}

func (s *service) healthz(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusOK
	state := "serving"
	if !s.readinessSvc.IsReady() {
		status = http.StatusServiceUnavailable
		state = "not_serving"
	}
	interceptors.WriteJSON(w, status, map[string]string{"status": state})
}

func registerPprof(r *mux.Router) {
	r.HandleFunc("/debug/pprof/", pprof.Index)
	r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	r.HandleFunc("/debug/pprof/profile", pprof.Profile)
	r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	r.HandleFunc("/debug/pprof/trace", pprof.Trace)
	r.PathPrefix("/debug/pprof/").HandlerFunc(pprof.Index)
}
