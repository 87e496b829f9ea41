// Package app provides application lifecycle management for the lookup server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/refdatahq/lookupd/internal/config"
	"github.com/refdatahq/lookupd/internal/loader"
	"github.com/refdatahq/lookupd/internal/service"
)

// closerStack collects cleanup functions in acquisition order and runs them
// in reverse, so dependents shut down before their dependencies.
type closerStack struct {
	closers []func(context.Context) error
}

func newCloserStack() *closerStack {
	return &closerStack{}
}

func (s *closerStack) add(fn func(context.Context) error) {
	s.closers = append(s.closers, fn)
}

func (s *closerStack) close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			slog.Warn("Cleanup failed during shutdown", "error", err)
		}
	}
	s.closers = nil
}

// LookupApp encapsulates all components needed to run the lookup server.
// It provides lifecycle management and graceful shutdown capabilities.
type LookupApp struct {
	config      *config.Config
	registry    *loader.Registry
	coordinator loader.Coordinator
	service     service.LookupService
	httpServer  *http.Server
	closers     *closerStack

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start starts the application components (HTTP server and background
// reload loop). This method blocks until the HTTP server stops or
// encounters an error.
func (app *LookupApp) Start() error {
	go func() {
		if err := app.coordinator.Start(app.ctx); err != nil {
			slog.Error("Reload coordinator failed", "error", err)
		}
	}()

	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the application with the given timeout. It stops
// the reload coordinator, shuts down the HTTP server, and releases the
// definition sources and store.
func (app *LookupApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	if err := app.coordinator.Stop(); err != nil {
		slog.Error("Failed to stop reload coordinator", "error", err)
	}

	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := app.httpServer.Shutdown(shutdownCtx)

	app.closers.close(shutdownCtx)

	if err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *LookupApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *LookupApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// GetService returns the lookup service (useful for testing)
func (app *LookupApp) GetService() service.LookupService {
	return app.service
}
