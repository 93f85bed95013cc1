package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fleetstats/fleetstats/engine/internal/api"
	"github.com/fleetstats/fleetstats/engine/internal/auth"
	"github.com/fleetstats/fleetstats/engine/internal/config"
	"github.com/fleetstats/fleetstats/engine/internal/ingest"
	"github.com/fleetstats/fleetstats/engine/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run continuously and serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, level, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, level)
			if err != nil {
				return err
			}
			defer a.close()
			return a.serve(cmd.Context(), flags.configPath)
		},
	}
}

// newHTTPHandler mounts the API, the run stream and the metrics endpoint
// behind the auth middleware.
func (a *app) newHTTPHandler(hub *ws.Hub) http.Handler {
	authn := auth.APIKeyMiddleware(
		a.cfg.Server.Auth.Mode,
		a.cfg.Server.Auth.EffectiveHeader(),
		a.cfg.Server.Auth.Key(),
	)

	mux := http.NewServeMux()
	mux.Handle("/api/", a.metrics.WrapHandler("api", authn(api.New(a.store, a.alerts))))
	// The stream is not instrumented: the status recorder cannot hijack.
	mux.Handle("/ws/runs", authn(hub))
	mux.Handle("/metrics", a.metrics.Handler())
	return mux
}

func (a *app) serve(ctx context.Context, configPath string) error {
	hub := ws.New(a.store)
	a.runner.AddSink(hub)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.HTTPPort),
		Handler:           a.newHTTPHandler(hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	trigger := make(chan struct{}, 1)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { a.store.Run(ctx); return nil })
	g.Go(func() error { hub.Run(ctx); return nil })
	g.Go(func() error {
		a.runner.Run(ctx, a.cfg.Engine.Interval, trigger)
		return nil
	})

	if a.cfg.Inputs.Watch {
		g.Go(func() error {
			paths := []string{a.cfg.Inputs.Snapshots, a.cfg.Inputs.Histories}
			return ingest.Watch(ctx, paths, a.cfg.Inputs.Debounce, func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})
		})
	}

	g.Go(func() error {
		err := config.Watch(ctx, configPath, func(cfg *config.Config) {
			a.reload(cfg)
			select {
			case trigger <- struct{}{}:
			default:
			}
		})
		if err != nil {
			slog.Warn("config watch disabled", "err", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("HTTP server listening", "port", a.cfg.Server.HTTPPort, "auth_mode", a.cfg.Server.Auth.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("fleetstats shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
