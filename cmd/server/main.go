package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lychee-technology/sigmaql"
	"github.com/lychee-technology/sigmaql/factory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP server with QueryService
type Server struct {
	service sigmaql.QueryService
	config  *sigmaql.Config
	metrics http.Handler
	mux     *http.ServeMux
}

// NewServer creates a new Server instance. metrics may be nil.
func NewServer(service sigmaql.QueryService, config *sigmaql.Config, metrics http.Handler) *Server {
	return &Server{
		service: service,
		config:  config,
		metrics: metrics,
		mux:     http.NewServeMux(),
	}
}

// RegisterRoutes registers all API routes
func (s *Server) RegisterRoutes() {
	s.mux.HandleFunc("POST /api/v1/query", s.handleValidateQuery)
	s.mux.HandleFunc("GET /api/v1/schema", s.handleListEntities)
	s.mux.HandleFunc("GET /api/v1/schema/{entity}", s.handleDescribeEntity)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET "+s.config.Metrics.Path, s.metrics)
	}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return withRequestID(withRequestLogging(s.mux))
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         ":" + s.config.Server.Port,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		zap.S().Infow("starting server", "port", s.config.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	zap.S().Infow("initiating graceful shutdown", "timeout", s.config.Server.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	zap.S().Info("server stopped")
	return nil
}

func main() {
	configPath := flag.String("config", os.Getenv("SIGMAQL_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	config, err := sigmaql.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(config.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	service, err := factory.NewQueryServiceWithConfig(ctx, config, registry)
	if err != nil {
		sugar.Fatalw("failed to initialize query service", "error", err)
	}

	var metricsHandler http.Handler
	if config.Metrics.Enabled {
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{
			ErrorHandling: promhttp.ContinueOnError,
		})
	}

	server := NewServer(service, config, metricsHandler)
	server.RegisterRoutes()

	if err := server.Run(ctx); err != nil {
		sugar.Fatalw("server error", "error", err)
	}
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg sigmaql.LoggingConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging.level %q: %w", cfg.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = level
	return zapCfg.Build()
}
