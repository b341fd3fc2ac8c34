package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/proxy/middleware"
	"mercator-hq/relay/pkg/telemetry/health"
	"mercator-hq/relay/pkg/telemetry/tracing"
)

// Routes are the handlers mounted on the HTTP surface. Nil handlers are
// not mounted.
type Routes struct {
	// Chat serves POST /v1/chat.
	Chat http.Handler

	// Profile serves /admin/profile when the admin API is enabled.
	Profile http.Handler

	// Health provides /health, /ready and /version.
	Health  *health.Checker
	Version health.VersionInfo

	// Metrics serves the Prometheus exposition at MetricsPath.
	Metrics     http.Handler
	MetricsPath string
}

// NewHTTPHandler builds the routed handler wrapped in the middleware chain:
// recovery (outermost), logging, request id, CORS, trace propagation.
func NewHTTPHandler(routes Routes, cors config.CORSConfig, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	if routes.Chat != nil {
		mux.Handle("/v1/chat", routes.Chat)
	}
	if routes.Profile != nil {
		mux.Handle("/admin/profile", routes.Profile)
	}
	if routes.Health != nil {
		routes.Health.Register(mux, routes.Version)
	}
	if routes.Metrics != nil {
		path := routes.MetricsPath
		if path == "" {
			path = config.DefaultMetricsPath
		}
		mux.Handle(path, routes.Metrics)
	}

	var handler http.Handler = mux
	handler = tracing.HTTPMiddleware(handler)
	handler = middleware.CORSMiddleware(middleware.NewCORSConfig(cors))(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.LoggingMiddleware(logger)(handler)
	handler = middleware.RecoveryMiddleware(logger)(handler)

	return handler
}

// HTTPServer serves the HTTP surface.
type HTTPServer struct {
	config          config.HTTPConfig
	shutdownTimeout time.Duration
	httpServer      *http.Server
	logger          *slog.Logger

	mu           sync.RWMutex
	listener     net.Listener
	isRunning    bool
	shutdownOnce sync.Once
}

// NewHTTPServer creates an HTTP server for handler. In-flight requests get
// shutdownTimeout to finish during Shutdown.
func NewHTTPServer(cfg config.HTTPConfig, shutdownTimeout time.Duration, handler http.Handler, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPServer{
		config:          cfg,
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
		httpServer: &http.Server{
			Addr:              cfg.ListenAddress,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
	}
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled or Shutdown is called.
func (s *HTTPServer) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves HTTP on ln. Cancelling ctx shuts the server down gracefully.
// It returns nil after a graceful shutdown.
func (s *HTTPServer) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("starting http server", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		err := s.httpServer.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		if err := s.Shutdown(context.Background()); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully shuts down the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		running := s.isRunning
		s.mu.RUnlock()
		if !running {
			return
		}

		timeout := s.shutdownTimeout
		s.logger.Info("initiating graceful shutdown", "timeout", timeout.String())

		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			_ = s.httpServer.Close()
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("http server stopped")
	})

	return shutdownErr
}

// Addr returns the listener address, or nil before Serve.
func (s *HTTPServer) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// IsRunning returns true if the server is serving.
func (s *HTTPServer) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
