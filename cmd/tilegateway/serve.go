package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/tile-gateway/internal/core/observability"
	"github.com/mohammed-shakir/tile-gateway/internal/core/router"
	"github.com/mohammed-shakir/tile-gateway/internal/core/server"
	"github.com/mohammed-shakir/tile-gateway/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/tile-gateway/internal/metrics"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tile gateway HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			zl, logger := newLoggers(cfg, os.Stdout, "gateway")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, logger, zl)
			if err != nil {
				logger.Error("gateway setup failed", "err", err)
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Warn("close resources", "err", err)
				}
			}()

			opts := server.Options{
				Addr:        cfg.Addr,
				Info:        router.Info{Service: "tile-gateway", Version: Version},
				ReadyChecks: a.readyChecks,
			}

			grp, gctx := errgroup.WithContext(ctx)
			if cfg.Metrics.Enabled {
				p := metrics.Init(metrics.Config{
					Addr:    cfg.Metrics.Addr,
					Path:    cfg.Metrics.Path,
					Version: Version,
				})
				observability.Init(p.Registerer(), true)
				p.GaugeFunc("transformers_loaded", "Endpoints with a built transformer.", func() float64 {
					return float64(len(a.gateway.Loaded()))
				})
				if cfg.Metrics.Addr != "" {
					grp.Go(func() error {
						return server.RunMetrics(gctx, logger, cfg.Metrics.Addr, p.Path(), p.Handler())
					})
				} else {
					opts.Metrics, opts.MetricsPath = p.Handler(), p.Path()
				}
			}

			if cfg.Invalidation.Enabled {
				consumer := kafkaconsumer.New(kafkaconsumer.FromGateway(cfg.Invalidation, cfg.LogLevel), logger, a.gateway)
				opts.Reporter = consumer
				grp.Go(func() error { return consumer.Start(gctx) })
			}

			grp.Go(func() error {
				a.hotness.RunPruner(gctx, cfg.HotHalfLife, cfg.HotPruneFloor, func(n int) {
					if n > 0 {
						logger.Debug("cold hotness cells pruned", "count", n)
					}
				})
				return nil
			})

			logger.Info("starting tile gateway",
				"addr", cfg.Addr,
				"version", Version,
				"endpoints", a.registry.EndpointNames(),
				"default_endpoint", a.registry.DefaultEndpoint,
				"redis", cfg.RedisAddr != "",
				"invalidation", cfg.Invalidation.Enabled)

			grp.Go(func() error { return server.Run(gctx, logger, a.gateway, opts) })
			if err := grp.Wait(); err != nil && ctx.Err() == nil {
				logger.Error("server exited with error", "err", err)
				return fmt.Errorf("serve: %w", err)
			}
			logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (env ADDR, default :8090)")
	return cmd
}
