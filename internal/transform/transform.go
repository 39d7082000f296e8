// Package transform maps slippy-map tiles onto the tile matrix of a target
// coordinate system.
package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/go-spatial/geom"

	"github.com/mohammed-shakir/tile-gateway/internal/core/config"
	"github.com/mohammed-shakir/tile-gateway/internal/core/model"
	"github.com/mohammed-shakir/tile-gateway/internal/projection"
	"github.com/mohammed-shakir/tile-gateway/internal/tilemath"
	"github.com/mohammed-shakir/tile-gateway/internal/wmts/capabilities"
	"github.com/mohammed-shakir/tile-gateway/internal/wmts/limits"
)

const (
	clientTileSize   = 256
	staticTileSize   = 512
	webMercatorRes0  = 156543.03392804062
	defaultRetryWait = 30 * time.Second
)

type CapabilitiesSource interface {
	GetWMTSInfo(ctx context.Context, url, layerID, matrixSetID string) (*capabilities.LayerInfo, *capabilities.TileMatrixSet)
}

type ProjectionResolver interface {
	Resolve(ctx context.Context, epsg int) (projection.Projection, error)
}

type Option func(*Transformer)

// WithRetryWait sets how long a failed capabilities load is remembered
// before the next request tries again.
func WithRetryWait(d time.Duration) Option {
	return func(t *Transformer) { t.retryWait = d }
}

func WithClock(now func() time.Time) Option {
	return func(t *Transformer) { t.now = now }
}

// Transformer holds the lazily loaded state of one target system.
type Transformer struct {
	system    *config.CoordinateSystem
	caps      CapabilitiesSource
	resolver  ProjectionResolver
	limits    limits.Table
	logger    *slog.Logger
	retryWait time.Duration
	now       func() time.Time

	loadMu sync.Mutex

	mu          sync.RWMutex
	tms         *capabilities.TileMatrixSet
	layer       *capabilities.LayerInfo
	proj        projection.Projection
	bounds      model.BoundingBox
	lastAttempt time.Time
}

func New(system *config.CoordinateSystem, caps CapabilitiesSource, resolver ProjectionResolver, logger *slog.Logger, opts ...Option) (*Transformer, error) {
	if system == nil {
		return nil, fmt.Errorf("%w: nil system", model.ErrUnknownCoordinateSystem)
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &Transformer{
		system:    system,
		caps:      caps,
		resolver:  resolver,
		logger:    logger.With("coordinate_system", system.ID),
		retryWait: defaultRetryWait,
		now:       time.Now,
		bounds:    system.Bounds.BBox(),
	}
	if system.LimitTable != "" {
		tbl, ok := limits.ForName(system.LimitTable)
		if !ok {
			return nil, fmt.Errorf("coordinate system %s: unknown limit table %q", system.ID, system.LimitTable)
		}
		t.limits = tbl
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

func (t *Transformer) System() *config.CoordinateSystem { return t.system }

// Load fetches capabilities (best effort) and initializes the projection.
// Only a projection failure is returned. Passthrough systems load
// capabilities for their bounds but never need a projection.
func (t *Transformer) Load(ctx context.Context) error {
	t.loadMu.Lock()
	defer t.loadMu.Unlock()

	t.mu.RLock()
	haveTMS, haveProj, last := t.tms != nil, t.proj != nil, t.lastAttempt
	t.mu.RUnlock()

	if !haveTMS && t.system.Dynamic != nil && t.caps != nil &&
		(last.IsZero() || t.now().Sub(last) >= t.retryWait) {
		t.loadCapabilities(ctx)
	}
	if haveProj || t.system.Passthrough {
		return nil
	}
	return t.initProjection(ctx)
}

func (t *Transformer) loadCapabilities(ctx context.Context) {
	d := t.system.Dynamic
	layer, tms := t.caps.GetWMTSInfo(ctx, d.CapabilitiesURL, d.Layer, d.TileMatrixSet)

	t.mu.Lock()
	defer t.mu.Unlock()
	if tms == nil {
		if ctx.Err() != nil {
			// the caller gave up; the next request tries again
			return
		}
		t.lastAttempt = t.now()
		t.logger.WarnContext(ctx, "tile matrix set unavailable, using static parameters")
		return
	}
	t.lastAttempt = t.now()
	t.tms, t.layer = tms, layer

	switch {
	case t.system.CoverageOverride != nil:
		t.bounds = t.system.CoverageOverride.BBox()
	case layer != nil && layer.WGS84BoundingBox != nil:
		bb := layer.WGS84BoundingBox
		t.bounds = model.BoundingBox{MinLon: bb[0], MinLat: bb[1], MaxLon: bb[2], MaxLat: bb[3]}
	}
	t.logger.InfoContext(ctx, "tile matrix set loaded",
		"matrix_set", tms.Identifier, "zooms", len(tms.Matrices), "epsg", tms.EPSG)
}

func (t *Transformer) initProjection(ctx context.Context) error {
	if t.resolver == nil {
		return errors.New("no projection resolver configured")
	}
	t.mu.RLock()
	epsg := 0
	if t.tms != nil {
		epsg = t.tms.EPSG
	}
	t.mu.RUnlock()
	if epsg == 0 {
		epsg = t.system.EPSG()
	}
	if epsg == 0 {
		return fmt.Errorf("%w: %s has no EPSG code", model.ErrUnknownCoordinateSystem, t.system.ID)
	}

	p, err := t.resolver.Resolve(ctx, epsg)
	if err != nil {
		return fmt.Errorf("init projection for %s: %w", t.system.ID, err)
	}
	t.mu.Lock()
	t.proj = p
	t.mu.Unlock()
	t.logger.InfoContext(ctx, "projection initialized", "epsg", epsg, "definition", p.Definition())
	return nil
}

// ResolvedZoom clamps z into the system's zoom range.
func (t *Transformer) ResolvedZoom(z int) int {
	return min(max(z, t.system.MinZoom), t.system.MaxZoom)
}

// Geometry describes the upstream matrix used for one zoom level.
type Geometry struct {
	Source     string  `json:"source"`
	Zoom       int     `json:"zoom"`
	PixelSize  float64 `json:"pixel_size"`
	OriginX    float64 `json:"origin_x"`
	OriginY    float64 `json:"origin_y"`
	TileWidth  int     `json:"tile_width"`
	TileHeight int     `json:"tile_height"`
}

func (t *Transformer) geometry(zoom int) Geometry {
	t.mu.RLock()
	m, ok := t.tms.Matrix(zoom)
	t.mu.RUnlock()
	if ok && m.TileWidth > 0 && m.TileHeight > 0 {
		return Geometry{
			Source:     "capabilities",
			Zoom:       zoom,
			PixelSize:  m.PixelSize(),
			OriginX:    m.TopLeftCorner[0],
			OriginY:    m.TopLeftCorner[1],
			TileWidth:  m.TileWidth,
			TileHeight: m.TileHeight,
		}
	}

	g := Geometry{Source: "static", Zoom: zoom, TileWidth: staticTileSize, TileHeight: staticTileSize}
	st := t.system.Static
	if st != nil {
		g.OriginX, g.OriginY = st.OriginX, st.OriginY
		if st.TileSize > 0 {
			g.TileWidth, g.TileHeight = st.TileSize, st.TileSize
		}
	}
	if scale, ok := st.Scale(zoom); ok {
		g.PixelSize = scale * capabilities.StandardPixelSize
	} else {
		// web mercator resolution, doubled for 512px tiles
		g.PixelSize = webMercatorRes0 / math.Exp2(float64(zoom)) * float64(g.TileWidth) / clientTileSize
	}
	return g
}

// Explanation is the full working of one transform.
type Explanation struct {
	Input         model.TileCoordinate            `json:"input"`
	WGS84BBox     model.BoundingBox               `json:"wgs84_bbox"`
	Geometry      *Geometry                       `json:"geometry,omitempty"`
	ProjectedBBox *[4]float64                     `json:"projected_bbox,omitempty"`
	Center        *[2]float64                     `json:"center,omitempty"`
	Result        model.TransformedTileCoordinate `json:"transformed"`
}

// TransformTile returns the upstream cell and quadrant for a client tile.
func (t *Transformer) TransformTile(ctx context.Context, tile model.TileCoordinate) (model.TransformedTileCoordinate, error) {
	ex, err := t.Explain(ctx, tile)
	if err != nil {
		return model.TransformedTileCoordinate{}, err
	}
	return ex.Result, nil
}

func (t *Transformer) Explain(ctx context.Context, tile model.TileCoordinate) (Explanation, error) {
	ex := Explanation{Input: tile, WGS84BBox: tilemath.ToBBoxWGS84(tile)}
	if t.system.Passthrough {
		ex.Result = model.Passthrough(tile)
		return ex, nil
	}
	if err := t.Load(ctx); err != nil {
		return ex, err
	}
	t.mu.RLock()
	p := t.proj
	t.mu.RUnlock()

	zoom := t.ResolvedZoom(tile.Z)
	g := t.geometry(zoom)
	ex.Geometry = &g

	bb := ex.WGS84BBox
	corners := [4][2]float64{
		{bb.MinLon, bb.MaxLat},
		{bb.MaxLon, bb.MaxLat},
		{bb.MinLon, bb.MinLat},
		{bb.MaxLon, bb.MinLat},
	}
	projected := make([][2]float64, 0, len(corners))
	for _, c := range corners {
		x, y, err := p.Forward(c[0], c[1])
		if err != nil {
			return ex, fmt.Errorf("project corner (%v, %v): %w", c[0], c[1], err)
		}
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			return ex, fmt.Errorf("project corner (%v, %v): non-finite result", c[0], c[1])
		}
		projected = append(projected, [2]float64{x, y})
	}
	ext := geom.NewExtent(projected...)
	ex.ProjectedBBox = &[4]float64{ext.MinX(), ext.MinY(), ext.MaxX(), ext.MaxY()}
	cx := (ext.MinX() + ext.MaxX()) / 2
	cy := (ext.MinY() + ext.MaxY()) / 2
	ex.Center = &[2]float64{cx, cy}

	tsx := float64(g.TileWidth) * g.PixelSize
	tsy := float64(g.TileHeight) * g.PixelSize
	if tsx <= 0 || tsy <= 0 {
		return ex, fmt.Errorf("degenerate tile matrix at zoom %d", zoom)
	}
	col := int(math.Floor((cx - g.OriginX) / tsx))
	row := int(math.Floor((g.OriginY - cy) / tsy))

	k := max(g.TileWidth/clientTileSize, 1)
	left := g.OriginX + float64(col)*tsx
	top := g.OriginY - float64(row)*tsy
	qx := clampInt(int(math.Floor((cx-left)/(tsx/float64(k)))), 0, k-1)
	qy := clampInt(int(math.Floor((top-cy)/(tsy/float64(k)))), 0, k-1)

	ex.Result = model.TransformedTileCoordinate{
		TileMatrix: t.matrixID(zoom),
		TileCol:    col,
		TileRow:    row,
		QuadrantX:  qx,
		QuadrantY:  qy,
	}
	t.logger.DebugContext(ctx, "tile transformed",
		"tile", tile.String(), "matrix", ex.Result.TileMatrix,
		"col", col, "row", row, "qx", qx, "qy", qy, "geometry", g.Source)
	return ex, nil
}

func (t *Transformer) matrixID(zoom int) string {
	if t.system.TileMatrixPrefix == "" {
		return strconv.Itoa(zoom)
	}
	return t.system.TileMatrixPrefix + ":" + strconv.Itoa(zoom)
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// ErrOutsideLimits marks a tile that transformed cleanly but whose upstream
// cell is missing from the coverage table.
var ErrOutsideLimits = fmt.Errorf("%w: outside coverage table", model.ErrOutOfCoverage)

// Validate transforms tile once and checks the result against the coverage
// table. Malformed tiles fail with model.ErrInvalidCoordinate and failed
// transforms with model.ErrOutOfCoverage. A coverage miss returns the
// computed cell together with ErrOutsideLimits.
func (t *Transformer) Validate(ctx context.Context, tile model.TileCoordinate) (model.TransformedTileCoordinate, error) {
	if !tilemath.Valid(tile, tilemath.MaxZoom) {
		return model.TransformedTileCoordinate{}, fmt.Errorf("%w: %s", model.ErrInvalidCoordinate, tile)
	}
	tm, err := t.TransformTile(ctx, tile)
	if err != nil {
		t.logger.DebugContext(ctx, "tile rejected", "tile", tile.String(), "err", err)
		return tm, fmt.Errorf("%w: %s: %w", model.ErrOutOfCoverage, tile, err)
	}
	if !t.system.Passthrough && !t.InCoverage(t.ResolvedZoom(tile.Z), tm.TileCol, tm.TileRow) {
		return tm, fmt.Errorf("%w: %s -> %s/%d/%d", ErrOutsideLimits, tile, tm.TileMatrix, tm.TileCol, tm.TileRow)
	}
	return tm, nil
}

// IsValidTile reports whether Validate accepts tile.
func (t *Transformer) IsValidTile(ctx context.Context, tile model.TileCoordinate) bool {
	_, err := t.Validate(ctx, tile)
	return err == nil
}

// InCoverage checks the limit table; systems without one cover everything.
func (t *Transformer) InCoverage(zoom, col, row int) bool {
	if t.limits == nil {
		return true
	}
	return t.limits.InBounds(zoom, col, row)
}

func (t *Transformer) Limit(zoom int) (limits.Limit, bool) {
	if t.limits == nil {
		return limits.Limit{}, false
	}
	return t.limits.Get(zoom)
}

func (t *Transformer) Bounds() model.BoundingBox {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bounds
}

func (t *Transformer) ZoomRange() (minZoom, maxZoom int) {
	return t.system.MinZoom, t.system.MaxZoom
}

// Layer returns the capabilities layer, nil until loaded.
func (t *Transformer) Layer() *capabilities.LayerInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.layer
}
