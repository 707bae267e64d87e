package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/vitalscale/internal/config"
	"github.com/2beens/vitalscale/internal/health"
	"github.com/2beens/vitalscale/internal/insight"
	"github.com/2beens/vitalscale/internal/kv"
	"github.com/2beens/vitalscale/internal/middleware"
	"github.com/2beens/vitalscale/internal/telemetry/metrics"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config         *config.Config
	kvStore        kv.Store
	healthStore    *health.Store
	insightService *insight.Service

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
}

type NewServerParams struct {
	Config        *config.Config
	InsightApiKey string
	VersionInfo   string
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	kvStore, err := newKVStore(params.Config)
	if err != nil {
		return nil, fmt.Errorf("new kv store: %w", err)
	}

	promRegistry := metrics.SetupPrometheus()
	metricsManager := metrics.NewManager("vitalscale", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0) // will be set to 1 when all is set and ran

	insightApi := insight.NewApi(
		params.Config.InsightApiUrl,
		params.InsightApiKey,
		params.Config.InsightModel,
		&http.Client{},
	)

	return &Server{
		versionInfo:    params.VersionInfo,
		config:         params.Config,
		kvStore:        kvStore,
		healthStore:    health.NewStore(ctx, kvStore),
		insightService: insight.NewService(insightApi),
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
	}, nil
}

func newKVStore(cfg *config.Config) (kv.Store, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendSQLite:
		log.Debugf("using sqlite storage: %s", cfg.SQLitePath)
		return kv.NewSQLiteStore(cfg.SQLitePath)
	case config.StorageBackendFile:
		log.Debugf("using file storage: %s", cfg.DataRootPath)
		return kv.NewFileStore(cfg.DataRootPath)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.StorageBackend)
	}
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()

	healthHandler := health.NewHandler(s.healthStore, s.insightService, s.metricsManager)
	healthHandler.SetupRoutes(r)

	r.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(s.versionInfo)); err != nil {
			log.Errorf("failed to write version response: %s", err)
		}
	}).Methods("GET").Name("version")

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors())
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

func (s *Server) Serve(_ context.Context, host string, port int) {
	router := s.routerSetup()

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	if closer, ok := s.kvStore.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.Errorf("failed to close kv store: %s", err)
		}
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown http server")
	}
	log.Warnln("server shut down")

	if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown metrics http server")
	}
	log.Warnln("metrics server shut down")
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
