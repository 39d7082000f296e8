package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/tile-gateway/internal/cache"
	"github.com/mohammed-shakir/tile-gateway/internal/cache/redisstore"
	"github.com/mohammed-shakir/tile-gateway/internal/cache/tilecache"
	"github.com/mohammed-shakir/tile-gateway/internal/core/config"
	"github.com/mohammed-shakir/tile-gateway/internal/core/executor"
	"github.com/mohammed-shakir/tile-gateway/internal/core/health"
	"github.com/mohammed-shakir/tile-gateway/internal/core/httpclient"
	"github.com/mohammed-shakir/tile-gateway/internal/decision"
	"github.com/mohammed-shakir/tile-gateway/internal/gateway"
	"github.com/mohammed-shakir/tile-gateway/internal/hotness/expdecay"
	"github.com/mohammed-shakir/tile-gateway/internal/hotness/metricswrap"
	h3mapper "github.com/mohammed-shakir/tile-gateway/internal/mapper/h3"
	"github.com/mohammed-shakir/tile-gateway/internal/projection"
	"github.com/mohammed-shakir/tile-gateway/internal/wmts/capabilities"
)

// app is everything built from the configuration.
type app struct {
	registry    *config.Registry
	exec        *executor.Executor
	gateway     *gateway.Gateway
	hotness     *expdecay.Tracker
	readyChecks map[string]health.Check
	closers     []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger, zl *zerolog.Logger) (*app, error) {
	reg, err := config.LoadRegistry(cfg.GatewayConfig, cfg.DefaultEndpoint)
	if err != nil {
		return nil, err
	}
	a := &app{registry: reg, readyChecks: map[string]health.Check{}}

	client := httpclient.NewOutbound(cfg.UpstreamTimeout)
	a.exec = executor.New(logger, client)
	caps := capabilities.NewRepository(a.exec, logger, cfg.CapabilitiesMaxAge)

	var clearers []gateway.Clearer
	var strategies []projection.Strategy
	if cfg.CRSInfoEnabled {
		remote := projection.NewSpatialReferenceClient(cfg.CRSInfoURL, client, logger)
		clearers = append(clearers, remote)
		var src projection.CRSInfoSource = remote
		if cfg.CRSDatabaseURL != "" {
			db, err := projection.OpenDB(ctx, cfg.CRSDatabaseURL)
			if err != nil {
				_ = a.Close()
				return nil, err
			}
			a.closers = append(a.closers, db.Close)
			store := &projection.SQLStore{DB: db}
			if err := store.Migrate(ctx); err != nil {
				_ = a.Close()
				return nil, err
			}
			a.readyChecks["postgres"] = db.PingContext
			src = projection.NewPersistentSource(store, remote, logger)
		}
		strategies = append(strategies, projection.RemoteStrategy(src))
	}
	strategies = append(strategies, projection.BuiltinStrategy())

	var shared cache.Shared
	if cfg.RedisAddr != "" {
		rc, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("connect tile cache: %w", err)
		}
		a.closers = append(a.closers, rc.Close)
		a.readyChecks["redis"] = rc.Ping
		shared = rc
	}

	a.hotness = expdecay.New(cfg.HotHalfLife)
	hot := metricswrap.New(a.hotness, metricswrap.Options{
		Threshold: cfg.HotThreshold,
		LogSample: cfg.HotLogSample,
		Logger:    zl,
	})

	policy := decision.TTLPolicy{
		Threshold: cfg.HotThreshold,
		Cold:      cfg.CacheTTL,
		Warm:      cfg.CacheTTLWarm,
		Hot:       cfg.CacheTTLHot,
	}

	a.gateway, err = gateway.New(gateway.Options{
		Registry:     reg,
		Fetcher:      a.exec,
		Capabilities: caps,
		Projections:  projection.NewProvider(logger, strategies...),
		Tiles: tilecache.New(tilecache.Config{
			Size:      cfg.CacheSize,
			TTL:       cfg.CacheTTL,
			Prefix:    cfg.RedisPrefix,
			OpTimeout: cfg.CacheOpTimeout,
			MaxTTL:    max(cfg.CacheTTL, cfg.CacheTTLWarm, cfg.CacheTTLHot),
		}, shared, logger),
		Hotness:   hot,
		Mapper:    h3mapper.New(),
		TTLPolicy: policy,
		Clearers:  clearers,
		Logger:    logger,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}
