// Package server wires the HTTP surface and runs it until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/tile-gateway/internal/core/health"
	middleware "github.com/mohammed-shakir/tile-gateway/internal/core/middleware"
	"github.com/mohammed-shakir/tile-gateway/internal/core/router"
)

type Options struct {
	Addr string
	Info router.Info
	// Metrics is mounted at MetricsPath when non-nil.
	Metrics     http.Handler
	MetricsPath string
	ReadyChecks map[string]health.Check
	Reporter    health.ReadinessReporter
}

// Handler builds the full route tree.
func Handler(logger *slog.Logger, gw router.Gateway, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(opts.ReadyChecks, opts.Reporter))
	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, opts.Metrics)
	}
	router.Mount(r, logger, gw, opts.Info)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, logger *slog.Logger, gw router.Gateway, opts Options) error {
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           Handler(logger, gw, opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return serve(ctx, logger, srv)
}

// RunMetrics serves h alone on addr, for a dedicated metrics listener.
func RunMetrics(ctx context.Context, logger *slog.Logger, addr, path string, h http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle(path, h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return serve(ctx, logger, srv)
}

func serve(ctx context.Context, logger *slog.Logger, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown %s: %w", srv.Addr, err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
}
