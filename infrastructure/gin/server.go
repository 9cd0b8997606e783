package gin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
)

// Server is an HTTP server with lifecycle management.
type Server struct {
	router *gin.Engine
	server *http.Server
	logger logger.Logger
	config *Config
}

// NewServer creates a server with the standard middleware applied.
// setupRoutes registers service routes after the middleware.
func NewServer(cfg *Config, log logger.Logger, setupRoutes func(*gin.Engine)) *Server {
	cfg.SetDefaults()

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	// Recovery first so panics in later middleware are caught.
	router.Use(RecoveryMiddleware(log))
	router.Use(RequestIDMiddleware(log))
	router.Use(LoggerMiddleware(log))

	if setupRoutes != nil {
		setupRoutes(router)
	}

	return &Server{
		router: router,
		server: &http.Server{
			Addr:         cfg.Address,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		logger: log,
		config: cfg,
	}
}

// Router returns the underlying gin engine.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server",
		logger.String("address", s.server.Addr),
		logger.String("service", s.config.ServiceName),
		logger.String("version", s.config.ServiceVersion),
		logger.Duration("write_timeout", s.server.WriteTimeout),
	)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server",
		logger.Duration("timeout", s.config.ShutdownTimeout),
	)

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.logger.Info("HTTP server stopped gracefully")
	return nil
}

// RunWithGracefulShutdown serves until SIGINT, SIGTERM or ctx cancellation,
// then shuts down.
func (s *Server) RunWithGracefulShutdown(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		s.logger.Info("Shutdown signal received",
			logger.String("signal", sig.String()),
		)
	case <-ctx.Done():
		s.logger.Info("Context cancelled, shutting down")
	}

	//nolint:contextcheck // the original context may already be cancelled
	return s.Shutdown(context.Background())
}
