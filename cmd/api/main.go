package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/upb/freelance-marketplace/backend/app"
	"github.com/upb/freelance-marketplace/backend/config"
	"github.com/upb/freelance-marketplace/backend/internal/observability"
	"github.com/upb/freelance-marketplace/backend/routes"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "marketplace api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger, err := initLogger()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New(ctx)
	if err != nil {
		logger.Error("failed to load configuration", zap.Error(err))
		return err
	}

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", zap.Error(err))
		return err
	}

	srv := newServer(cfg.Server, routes.SetupRoutes(deps))
	logger.Info("marketplace api listening",
		zap.String("addr", srv.Addr),
		zap.String("environment", cfg.Environment),
		zap.String("store", cfg.Store.Backend))

	return serve(ctx, srv, cfg.Server.ShutdownTimeout, logger, deps.Close)
}

// initLogger builds the process logger from LOG_LEVEL and LOG_FORMAT. It runs
// before config loading so configuration errors are logged too.
func initLogger() (*zap.Logger, error) {
	return observability.NewLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

func newServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Address(),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       2 * cfg.ReadTimeout,
	}
}

// serve runs srv until ctx is cancelled or the listener fails, then drains
// in-flight requests and releases dependencies through cleanup
func serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, cleanup func(context.Context) error) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err, ok := <-errCh:
		if ok {
			logger.Error("server error", zap.Error(err))
			serveErr = fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		serveErr = errors.Join(serveErr, err)
	}
	if cleanup != nil {
		if err := cleanup(shutdownCtx); err != nil {
			logger.Error("dependency shutdown failed", zap.Error(err))
			serveErr = errors.Join(serveErr, err)
		}
	}

	logger.Info("server stopped")
	return serveErr
}
