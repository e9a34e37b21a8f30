package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/meshx-org/fiber/internal/api/http"
	"github.com/meshx-org/fiber/internal/api/middleware"
	"github.com/meshx-org/fiber/internal/infrastructure/config"
	"github.com/meshx-org/fiber/internal/infrastructure/logging"
	"github.com/meshx-org/fiber/internal/infrastructure/monitoring"
	"github.com/meshx-org/fiber/internal/infrastructure/tracing"
	"github.com/meshx-org/fiber/internal/kernel"
)

// ShutdownTimeout bounds how long Serve waits for in-flight requests
const ShutdownTimeout = 5 * time.Second

// Server is the diagnostics HTTP server of one kernel
type Server struct {
	router   *gin.Engine
	handlers *apihttp.Handlers
	logger   *zap.Logger
	config   *config.Config
}

// NewServer builds the router for k: recovery, tracing and metrics when
// the kernel has them, CORS and optional rate limiting.
func NewServer(cfg *config.Config, k *kernel.Kernel, logger *zap.Logger) *Server {
	logger = logging.OrNop(logger).Named("server")

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	if tracer := k.Tracer(); tracer != nil {
		router.Use(tracing.HTTPMiddleware(tracer))
	}
	if metrics := k.Metrics(); metrics != nil {
		router.Use(monitoring.Middleware(metrics))
	}
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
			zap.Bool("global", cfg.RateLimit.Global),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		if cfg.RateLimit.Global {
			router.Use(middleware.GlobalRateLimit(rl))
		} else {
			router.Use(middleware.RateLimit(rl))
		}
	}

	handlers := apihttp.NewHandlers(k)
	handlers.Register(router)

	return &Server{
		router:   router,
		handlers: handlers,
		logger:   logger,
		config:   cfg,
	}
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Handlers returns the route handlers, used to publish the boot report
func (s *Server) Handlers() *apihttp.Handlers {
	return s.handlers
}

// Run listens on the configured address and serves until ctx ends
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.Server.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
