// Package server wires the HTTP surface and runs it until shutdown.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/suggestkit/weather-backend/internal/api"
	"github.com/suggestkit/weather-backend/internal/core/config"
	"github.com/suggestkit/weather-backend/internal/core/health"
	"github.com/suggestkit/weather-backend/internal/core/middleware"
)

// Run sets up the router and serves until ctx is canceled.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger, h *api.Handler, metricsHandler http.Handler, ready ...health.ReadinessReporter) error {
	r := chi.NewRouter()
	r.Use(middleware.Recover())
	r.Use(middleware.Logging(logger))

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(ready...))
	if metricsHandler != nil {
		r.Get(cfg.MetricsPath, metricsHandler.ServeHTTP)
	}
	r.Get("/api/v1/suggest", h.Suggest)
	r.Get("/api/v1/weather/completions", h.Completions)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
