// Package gateway serves slippy-map tiles from the configured WMTS
// endpoints. A Gateway is built once at startup and owns every per-endpoint
// transformer together with the caches behind them.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mohammed-shakir/tile-gateway/internal/cache/keys"
	"github.com/mohammed-shakir/tile-gateway/internal/core/config"
	"github.com/mohammed-shakir/tile-gateway/internal/core/model"
	"github.com/mohammed-shakir/tile-gateway/internal/core/observability"
	"github.com/mohammed-shakir/tile-gateway/internal/decision"
	"github.com/mohammed-shakir/tile-gateway/internal/hotness"
	"github.com/mohammed-shakir/tile-gateway/internal/imaging"
	"github.com/mohammed-shakir/tile-gateway/internal/mapper"
	"github.com/mohammed-shakir/tile-gateway/internal/tilemath"
	"github.com/mohammed-shakir/tile-gateway/internal/transform"
	"github.com/mohammed-shakir/tile-gateway/internal/wmts/limits"
)

type Fetcher interface {
	FetchTile(ctx context.Context, ep *config.Endpoint, tm model.TransformedTileCoordinate) ([]byte, error)
}

type Capabilities interface {
	transform.CapabilitiesSource
	Clear()
}

type Projections interface {
	transform.ProjectionResolver
	Clear()
}

type TileCache interface {
	Get(ctx context.Context, k keys.Tile) ([]byte, bool)
	// Set stores data; ttl <= 0 means the cache default.
	Set(ctx context.Context, k keys.Tile, data []byte, ttl time.Duration)
	DeleteEndpoint(ctx context.Context, endpoint string) int
	DeleteArea(ctx context.Context, endpoint string, bb model.BoundingBox) []keys.Tile
	Clear(ctx context.Context)
	Len() int
}

// Clearer is any extra cache dropped by ClearCache.
type Clearer interface{ Clear() }

type Options struct {
	Registry     *config.Registry
	Fetcher      Fetcher
	Capabilities Capabilities
	Projections  Projections
	Tiles        TileCache
	// Hotness and Mapper are optional; both are needed to track hotness.
	Hotness   hotness.Interface
	Mapper    mapper.Interface
	TTLPolicy decision.TTLPolicy
	Clearers  []Clearer
	Logger    *slog.Logger
	RetryWait time.Duration
}

type Gateway struct {
	opts   Options
	logger *slog.Logger

	initGroup  singleflight.Group
	fetchGroup singleflight.Group

	mu           sync.RWMutex
	transformers map[string]*transform.Transformer
}

func New(opts Options) (*Gateway, error) {
	var errs []error
	if opts.Registry == nil {
		errs = append(errs, errors.New("registry is required"))
	}
	if opts.Fetcher == nil {
		errs = append(errs, errors.New("fetcher is required"))
	}
	if opts.Tiles == nil {
		errs = append(errs, errors.New("tile cache is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Gateway{
		opts:         opts,
		logger:       opts.Logger,
		transformers: make(map[string]*transform.Transformer),
	}, nil
}

// Outcome says how a tile was produced.
type Outcome string

const (
	OutcomeCached      Outcome = "cached"
	OutcomeFetched     Outcome = "fetched"
	OutcomeTransparent Outcome = "transparent"
)

type Tile struct {
	Data    []byte
	Outcome Outcome
}

// DefaultEndpoint names the endpoint used when a request names none.
func (g *Gateway) DefaultEndpoint() string { return g.opts.Registry.DefaultEndpoint }

// transformer returns the endpoint's transformer, creating it once even
// under concurrent first requests.
func (g *Gateway) transformer(name string) (*config.Endpoint, *transform.Transformer, error) {
	ep, err := g.opts.Registry.Endpoint(name)
	if err != nil {
		return nil, nil, err
	}
	g.mu.RLock()
	tr, ok := g.transformers[ep.Name]
	g.mu.RUnlock()
	if ok {
		return ep, tr, nil
	}

	v, err, _ := g.initGroup.Do(ep.Name, func() (any, error) {
		g.mu.RLock()
		existing, ok := g.transformers[ep.Name]
		g.mu.RUnlock()
		if ok {
			return existing, nil
		}
		cs, err := g.opts.Registry.CoordinateSystem(ep.CoordinateSystem)
		if err != nil {
			return nil, err
		}
		var topts []transform.Option
		if g.opts.RetryWait > 0 {
			topts = append(topts, transform.WithRetryWait(g.opts.RetryWait))
		}
		var caps transform.CapabilitiesSource
		if g.opts.Capabilities != nil {
			caps = g.opts.Capabilities
		}
		var proj transform.ProjectionResolver
		if g.opts.Projections != nil {
			proj = g.opts.Projections
		}
		t, err := transform.New(cs, caps, proj, g.logger.With("endpoint", ep.Name), topts...)
		if err != nil {
			return nil, err
		}
		g.mu.Lock()
		g.transformers[ep.Name] = t
		g.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init endpoint %s: %w", ep.Name, err)
	}
	return ep, v.(*transform.Transformer), nil
}

// ServeTile returns the 256x256 PNG for tile z/x/y of endpoint.
func (g *Gateway) ServeTile(ctx context.Context, endpoint string, z, x, y int) (Tile, error) {
	ep, err := g.opts.Registry.Endpoint(endpoint)
	if err != nil {
		return Tile{}, err
	}
	if z < 0 || x < 0 || y < 0 {
		return Tile{}, fmt.Errorf("%w: tile coordinates must be non-negative", model.ErrInvalidCoordinate)
	}

	key := keys.TileKey(ep.Name, z, x, y)
	tile := model.TileCoordinate{Z: z, X: x, Y: y}
	if b, ok := g.opts.Tiles.Get(ctx, key); ok {
		g.touch(tile)
		observability.IncTileOutcome(ep.Name, string(OutcomeCached))
		return Tile{Data: b, Outcome: OutcomeCached}, nil
	}

	_, tr, err := g.transformer(ep.Name)
	if err != nil {
		return Tile{}, err
	}
	tm, err := tr.Validate(ctx, tile)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrInvalidCoordinate):
		observability.IncTileOutcome(ep.Name, "invalid")
		return Tile{}, err
	case errors.Is(err, transform.ErrOutsideLimits) && ep.TransparentOutsideCoverage:
		g.logger.DebugContext(ctx, "tile outside upstream coverage, serving transparent",
			"endpoint", ep.Name, "tile_matrix", tm.TileMatrix, "col", tm.TileCol, "row", tm.TileRow)
		observability.IncTileOutcome(ep.Name, string(OutcomeTransparent))
		return Tile{Data: imaging.TransparentPNG(), Outcome: OutcomeTransparent}, nil
	default:
		observability.IncTileOutcome(ep.Name, "out_of_coverage")
		return Tile{}, err
	}

	data, err := g.fetch(ctx, ep, key, tm)
	if err != nil {
		observability.IncTileOutcome(ep.Name, "upstream_error")
		return Tile{}, err
	}
	cell := g.touch(tile)
	g.opts.Tiles.Set(ctx, key, data, g.ttlFor(ctx, cell))
	observability.IncTileOutcome(ep.Name, string(OutcomeFetched))
	return Tile{Data: data, Outcome: OutcomeFetched}, nil
}

// fetch shares one upstream call between concurrent requests for key.
func (g *Gateway) fetch(ctx context.Context, ep *config.Endpoint, key keys.Tile, tm model.TransformedTileCoordinate) ([]byte, error) {
	ch := g.fetchGroup.DoChan(key.String(), func() (any, error) {
		// detached so one caller's cancellation does not fail the others
		return g.opts.Fetcher.FetchTile(context.WithoutCancel(ctx), ep, tm)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch %s: %w", key, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("fetch %s: %w", key, res.Err)
		}
		return res.Val.([]byte), nil
	}
}

// touch bumps the hotness of the tile's cell and returns the cell, or ""
// when hotness is not tracked.
func (g *Gateway) touch(t model.TileCoordinate) string {
	if g.opts.Hotness == nil || g.opts.Mapper == nil {
		return ""
	}
	cell, err := g.opts.Mapper.CellForTile(t)
	if err != nil {
		return ""
	}
	g.opts.Hotness.Inc(cell)
	return cell
}

func (g *Gateway) ttlFor(ctx context.Context, cell string) time.Duration {
	if cell == "" {
		return g.opts.TTLPolicy.Cold
	}
	ttl, reason := g.opts.TTLPolicy.Decide([]string{cell}, g.opts.Hotness)
	if reason == decision.ReasonHot {
		g.logger.DebugContext(ctx, "hot tile cached longer", "cell", cell, "ttl", ttl)
	}
	return ttl
}

type ZoomRange struct {
	MinZoom int `json:"min_zoom"`
	MaxZoom int `json:"max_zoom"`
}

type Bounds struct {
	Endpoint  string            `json:"endpoint"`
	BBox      model.BoundingBox `json:"bounds"`
	ZoomRange ZoomRange         `json:"zoom_range"`
}

// GetBounds loads the endpoint's capabilities and reports the area it can
// serve.
func (g *Gateway) GetBounds(ctx context.Context, endpoint string) (Bounds, error) {
	ep, tr, err := g.transformer(endpoint)
	if err != nil {
		return Bounds{}, err
	}
	if err := tr.Load(ctx); err != nil {
		g.logger.WarnContext(ctx, "projection unavailable, reporting configured bounds",
			"endpoint", ep.Name, "err", err)
	}
	minZ, maxZ := tr.ZoomRange()
	return Bounds{
		Endpoint:  ep.Name,
		BBox:      tr.Bounds(),
		ZoomRange: ZoomRange{MinZoom: minZ, MaxZoom: maxZ},
	}, nil
}

// ClearCache drops every transformer and cache so the next request
// reloads capabilities and projections.
func (g *Gateway) ClearCache(ctx context.Context) {
	g.mu.Lock()
	g.transformers = make(map[string]*transform.Transformer)
	g.mu.Unlock()

	if g.opts.Capabilities != nil {
		g.opts.Capabilities.Clear()
	}
	if g.opts.Projections != nil {
		g.opts.Projections.Clear()
	}
	for _, c := range g.opts.Clearers {
		c.Clear()
	}
	g.opts.Tiles.Clear(ctx)
	if g.opts.Hotness != nil {
		g.opts.Hotness.Clear()
	}
	g.logger.InfoContext(ctx, "all caches cleared")
}

// ClearEndpoint drops the transformer and tiles of one endpoint.
func (g *Gateway) ClearEndpoint(ctx context.Context, endpoint string) error {
	ep, err := g.opts.Registry.Endpoint(endpoint)
	if err != nil {
		return err
	}
	g.mu.Lock()
	delete(g.transformers, ep.Name)
	g.mu.Unlock()
	n := g.opts.Tiles.DeleteEndpoint(ctx, ep.Name)
	g.logger.InfoContext(ctx, "endpoint cache cleared", "endpoint", ep.Name, "tiles", n)
	return nil
}

// ClearArea drops cached tiles intersecting bb, for one endpoint or for
// all when endpoint is empty, and resets their hotness.
func (g *Gateway) ClearArea(ctx context.Context, endpoint string, bb model.BoundingBox) (int, error) {
	if endpoint != "" {
		ep, err := g.opts.Registry.Endpoint(endpoint)
		if err != nil {
			return 0, err
		}
		endpoint = ep.Name
	}
	removed := g.opts.Tiles.DeleteArea(ctx, endpoint, bb)

	if g.opts.Hotness != nil && g.opts.Mapper != nil {
		cells := make([]string, 0, len(removed))
		for _, k := range removed {
			if c, err := g.opts.Mapper.CellForTile(model.TileCoordinate{Z: k.Z, X: k.X, Y: k.Y}); err == nil {
				cells = append(cells, c)
			}
		}
		g.opts.Hotness.Reset(cells...)
	}
	g.logger.InfoContext(ctx, "area cache cleared", "endpoint", endpoint, "tiles", len(removed))
	return len(removed), nil
}

// DebugInfo is the working of a transform, without any upstream request.
type DebugInfo struct {
	Endpoint    string                          `json:"endpoint"`
	Input       model.TileCoordinate            `json:"input"`
	WGS84BBox   model.BoundingBox               `json:"wgs84_bbox"`
	Transformed model.TransformedTileCoordinate `json:"transformed"`
	Valid       bool                            `json:"valid"`
	Geometry    *transform.Geometry             `json:"geometry,omitempty"`
	Center      *[2]float64                     `json:"center,omitempty"`
	Limit       *limits.Limit                   `json:"limit,omitempty"`
}

func (g *Gateway) Debug(ctx context.Context, endpoint string, z, x, y int) (DebugInfo, error) {
	ep, tr, err := g.transformer(endpoint)
	if err != nil {
		return DebugInfo{}, err
	}
	tile := model.TileCoordinate{Z: z, X: x, Y: y}
	if !tilemath.Valid(tile, tilemath.MaxZoom) {
		return DebugInfo{}, fmt.Errorf("%w: %s", model.ErrInvalidCoordinate, tile)
	}
	ex, err := tr.Explain(ctx, tile)
	if err != nil {
		return DebugInfo{}, err
	}
	info := DebugInfo{
		Endpoint:    ep.Name,
		Input:       tile,
		WGS84BBox:   ex.WGS84BBox,
		Transformed: ex.Result,
		Valid:       tr.System().Passthrough || tr.InCoverage(tr.ResolvedZoom(z), ex.Result.TileCol, ex.Result.TileRow),
		Geometry:    ex.Geometry,
		Center:      ex.Center,
	}
	if l, ok := tr.Limit(tr.ResolvedZoom(z)); ok {
		info.Limit = &l
	}
	return info, nil
}

type EndpointInfo struct {
	URL              string `json:"url"`
	Layer            string `json:"layer"`
	CoordinateSystem string `json:"coordinate_system"`
}

func (g *Gateway) Endpoints() map[string]EndpointInfo {
	out := make(map[string]EndpointInfo, len(g.opts.Registry.Endpoints))
	for _, ep := range g.opts.Registry.Endpoints {
		out[ep.Name] = EndpointInfo{URL: ep.URL, Layer: ep.Layer, CoordinateSystem: ep.CoordinateSystem}
	}
	return out
}

// EndpointNames lists endpoints in name order.
func (g *Gateway) EndpointNames() []string {
	return g.opts.Registry.EndpointNames()
}

// CoordinateSystems maps system id to its description.
func (g *Gateway) CoordinateSystems() map[string]string {
	out := make(map[string]string, len(g.opts.Registry.CoordinateSystems))
	for _, cs := range g.opts.Registry.CoordinateSystems {
		out[cs.ID] = cs.Description
	}
	return out
}

// Hotspots returns the n most requested H3 cells.
func (g *Gateway) Hotspots(n int) []hotness.Entry {
	if g.opts.Hotness == nil {
		return nil
	}
	return g.opts.Hotness.Top(n)
}

func (g *Gateway) CacheSize() int { return g.opts.Tiles.Len() }

// Loaded lists the endpoints whose transformer exists, sorted.
func (g *Gateway) Loaded() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.transformers))
	for n := range g.transformers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
