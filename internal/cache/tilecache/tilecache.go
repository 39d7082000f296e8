// Package tilecache keeps normalized tiles in a bounded in-process LRU,
// optionally backed by a shared Redis tier.
package tilecache

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mohammed-shakir/tile-gateway/internal/cache"
	"github.com/mohammed-shakir/tile-gateway/internal/cache/cellindex"
	"github.com/mohammed-shakir/tile-gateway/internal/cache/keys"
	"github.com/mohammed-shakir/tile-gateway/internal/core/model"
	"github.com/mohammed-shakir/tile-gateway/internal/core/observability"
	"github.com/mohammed-shakir/tile-gateway/internal/tilemath"
)

type Config struct {
	Size int
	TTL  time.Duration
	// Prefix namespaces shared-tier keys.
	Prefix    string
	OpTimeout time.Duration
	// MaxTTL is the longest TTL passed to Set; it sizes the area index expiry.
	MaxTTL time.Duration
}

type Cache struct {
	l1     *expirable.LRU[keys.Tile, []byte]
	shared cache.Shared
	index  *cellindex.Index
	cfg    Config
	logger *slog.Logger
}

// New builds the cache. shared may be nil, in which case only the local
// tier is used. A shared tier that also implements cache.SetStore gets an
// area index.
func New(cfg Config, shared cache.Shared, logger *slog.Logger) *Cache {
	if cfg.Size <= 0 {
		cfg.Size = 1000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 250 * time.Millisecond
	}
	if cfg.MaxTTL < cfg.TTL {
		cfg.MaxTTL = cfg.TTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{shared: shared, cfg: cfg, logger: logger}
	if store, ok := shared.(cache.SetStore); ok {
		c.index = cellindex.New(store, cfg.Prefix, cfg.MaxTTL)
	}
	c.l1 = expirable.NewLRU[keys.Tile, []byte](cfg.Size, func(keys.Tile, []byte) {}, cfg.TTL)
	return c
}

// Get returns the tile bytes. A shared-tier hit is copied into the local tier.
func (c *Cache) Get(ctx context.Context, k keys.Tile) ([]byte, bool) {
	if b, ok := c.l1.Get(k); ok {
		observability.IncCacheHit("l1")
		return b, true
	}
	observability.IncCacheMiss("l1")
	if c.shared == nil {
		return nil, false
	}

	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()
	b, ok, err := c.shared.Get(opCtx, k.Remote(c.cfg.Prefix))
	if err != nil {
		c.logger.WarnContext(ctx, "shared cache get failed", "key", k.String(), "err", err)
		observability.IncCacheMiss("l2")
		return nil, false
	}
	if !ok {
		observability.IncCacheMiss("l2")
		return nil, false
	}
	observability.IncCacheHit("l2")
	c.l1.Add(k, b)
	observability.SetTileCacheEntries(c.l1.Len())
	return b, true
}

// Set stores data in both tiers. ttl applies to the shared tier and
// defaults to the configured TTL when not positive. Shared-tier failures
// are logged only.
func (c *Cache) Set(ctx context.Context, k keys.Tile, data []byte, ttl time.Duration) {
	c.l1.Add(k, data)
	observability.SetTileCacheEntries(c.l1.Len())
	if c.shared == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.cfg.TTL
	}
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()
	if err := c.shared.Set(opCtx, k.Remote(c.cfg.Prefix), data, ttl); err != nil {
		c.logger.WarnContext(ctx, "shared cache set failed", "key", k.String(), "err", err)
		return
	}
	if c.index != nil {
		if err := c.index.Add(opCtx, k); err != nil {
			c.logger.WarnContext(ctx, "area index update failed", "key", k.String(), "err", err)
		}
	}
}

// DeleteEndpoint drops every tile served through endpoint and returns the
// number of local entries removed.
func (c *Cache) DeleteEndpoint(ctx context.Context, endpoint string) int {
	removed := 0
	for _, k := range c.l1.Keys() {
		if k.Endpoint == endpoint && c.l1.Remove(k) {
			removed++
		}
	}
	observability.SetTileCacheEntries(c.l1.Len())
	c.deleteShared(ctx, keys.EndpointPrefix(c.cfg.Prefix, endpoint))
	return removed
}

// DeleteWhere drops the local entries matching pred and returns their keys.
// Matching shared-tier entries are removed too; the rest of that tier is
// left to expire by TTL.
func (c *Cache) DeleteWhere(ctx context.Context, pred func(keys.Tile) bool) []keys.Tile {
	var removed []keys.Tile
	for _, k := range c.l1.Keys() {
		if pred(k) && c.l1.Remove(k) {
			removed = append(removed, k)
		}
	}
	if c.shared != nil && len(removed) > 0 {
		remote := make([]string, len(removed))
		for i, k := range removed {
			remote[i] = k.Remote(c.cfg.Prefix)
		}
		opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
		defer cancel()
		if err := c.shared.Del(opCtx, remote...); err != nil {
			c.logger.WarnContext(ctx, "shared cache delete failed", "keys", len(remote), "err", err)
		}
	}
	observability.SetTileCacheEntries(c.l1.Len())
	return removed
}

// DeleteArea drops the tiles intersecting bb, limited to endpoint unless
// it is empty. The shared tier is reached through the area index; without
// one only tiles also held locally are removed there.
func (c *Cache) DeleteArea(ctx context.Context, endpoint string, bb model.BoundingBox) []keys.Tile {
	match := func(k keys.Tile) bool {
		if endpoint != "" && k.Endpoint != endpoint {
			return false
		}
		return tilemath.ToBBoxWGS84(model.TileCoordinate{Z: k.Z, X: k.X, Y: k.Y}).Intersects(bb)
	}
	removed := c.DeleteWhere(ctx, match)
	if c.index == nil {
		return removed
	}

	opCtx, cancel := context.WithTimeout(ctx, 20*c.cfg.OpTimeout)
	defer cancel()
	indexed, err := c.index.Lookup(opCtx, bb)
	if err != nil {
		c.logger.WarnContext(ctx, "area index lookup failed, shared tiles left to expire", "err", err)
	}
	seen := make(map[keys.Tile]struct{}, len(removed))
	for _, k := range removed {
		seen[k] = struct{}{}
	}
	var remote []string
	var dropped []keys.Tile
	for _, k := range indexed {
		if endpoint != "" && k.Endpoint != endpoint {
			continue
		}
		dropped = append(dropped, k)
		remote = append(remote, k.Remote(c.cfg.Prefix))
		if _, dup := seen[k]; !dup {
			seen[k] = struct{}{}
			removed = append(removed, k)
		}
	}
	if len(remote) > 0 {
		if err := c.shared.Del(opCtx, remote...); err != nil {
			c.logger.WarnContext(ctx, "shared cache delete failed", "keys", len(remote), "err", err)
		}
		if err := c.index.Remove(opCtx, dropped); err != nil {
			c.logger.WarnContext(ctx, "area index cleanup failed", "err", err)
		}
	}
	return removed
}

// Clear empties both tiers.
func (c *Cache) Clear(ctx context.Context) {
	c.l1.Purge()
	observability.SetTileCacheEntries(0)
	c.deleteShared(ctx, keys.TilePrefix(c.cfg.Prefix))
	if c.index != nil {
		c.deleteShared(ctx, keys.IndexPrefix(c.cfg.Prefix))
	}
}

func (c *Cache) deleteShared(ctx context.Context, prefix string) {
	if c.shared == nil {
		return
	}
	// scans can outlive a single op budget
	opCtx, cancel := context.WithTimeout(ctx, 20*c.cfg.OpTimeout)
	defer cancel()
	n, err := c.shared.DeleteByPrefix(opCtx, prefix)
	if err != nil {
		c.logger.WarnContext(ctx, "shared cache delete failed", "prefix", prefix, "err", err)
		return
	}
	c.logger.DebugContext(ctx, "shared cache entries removed", "prefix", prefix, "count", n)
}

// Len is the number of entries in the local tier.
func (c *Cache) Len() int {
	return c.l1.Len()
}
