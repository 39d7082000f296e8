package capabilities

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mohammed-shakir/tile-gateway/internal/core/model"
	"github.com/mohammed-shakir/tile-gateway/internal/core/observability"
)

// Fetcher retrieves the raw capabilities document of a WMTS service.
type Fetcher interface {
	FetchCapabilities(ctx context.Context, url string) ([]byte, error)
}

type cacheKey struct {
	url string
	id  string
}

type entry[T any] struct {
	val     *T
	fetched time.Time
}

// Repository caches parsed layers and matrix sets per (url, identifier).
// Entries live until Clear unless MaxAge is positive.
type Repository struct {
	fetcher Fetcher
	logger  *slog.Logger
	maxAge  time.Duration
	now     func() time.Time

	group singleflight.Group

	mu         sync.RWMutex
	matrixSets map[cacheKey]entry[TileMatrixSet]
	layers     map[cacheKey]entry[LayerInfo]
}

func NewRepository(f Fetcher, logger *slog.Logger, maxAge time.Duration) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		fetcher:    f,
		logger:     logger,
		maxAge:     maxAge,
		now:        time.Now,
		matrixSets: make(map[cacheKey]entry[TileMatrixSet]),
		layers:     make(map[cacheKey]entry[LayerInfo]),
	}
}

// GetWMTSInfo returns the layer and matrix set, fetching the document at
// most once per request shape across concurrent callers. Failures are
// logged and surface as nil results. A fetch outlives a cancelled caller
// and still fills the cache.
func (r *Repository) GetWMTSInfo(ctx context.Context, url, layerID, matrixSetID string) (*LayerInfo, *TileMatrixSet) {
	layer, lok := r.cachedLayer(url, layerID)
	tms, tok := r.cachedMatrixSet(url, matrixSetID)
	if lok && tok {
		return layer, tms
	}

	key := url + "\x00" + layerID + "\x00" + matrixSetID
	ch := r.group.DoChan(key, func() (any, error) {
		// detached so one caller's cancellation does not discard the document
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		return r.load(lctx, url, layerID, matrixSetID)
	})
	select {
	case <-ctx.Done():
		r.logger.WarnContext(ctx, "capabilities wait abandoned",
			"url", url, "err", fmt.Errorf("%w: %w", model.ErrCapabilitiesUnavailable, ctx.Err()))
		return layer, tms
	case res := <-ch:
		if res.Err != nil {
			r.logger.WarnContext(ctx, "capabilities unavailable, using static parameters",
				"url", url, "err", res.Err)
			return layer, tms
		}
		got := res.Val.(loaded)
		if got.layer != nil {
			layer = got.layer
		}
		if got.tms != nil {
			tms = got.tms
		}
		return layer, tms
	}
}

type loaded struct {
	layer *LayerInfo
	tms   *TileMatrixSet
}

// load fetches the document and caches whichever of the requested
// identifiers parse.
func (r *Repository) load(ctx context.Context, url, layerID, matrixSetID string) (loaded, error) {
	raw, err := r.fetcher.FetchCapabilities(ctx, url)
	if err != nil {
		observability.IncCapabilitiesFetch("error")
		return loaded{}, fmt.Errorf("%w: %w", model.ErrCapabilitiesUnavailable, err)
	}
	observability.IncCapabilitiesFetch("ok")

	var out loaded
	if layerID != "" {
		l, err := ParseLayerInfo(raw, layerID)
		if err != nil {
			r.logger.WarnContext(ctx, "layer not parsed", "url", url, "layer", layerID, "err", err)
		} else {
			r.mu.Lock()
			r.layers[cacheKey{url, layerID}] = entry[LayerInfo]{val: l, fetched: r.now()}
			r.mu.Unlock()
			out.layer = l
		}
	}
	if matrixSetID != "" {
		s, err := ParseTileMatrixSet(raw, matrixSetID)
		if err != nil {
			r.logger.WarnContext(ctx, "tile matrix set not parsed", "url", url, "tms", matrixSetID, "err", err)
		} else {
			r.mu.Lock()
			r.matrixSets[cacheKey{url, matrixSetID}] = entry[TileMatrixSet]{val: s, fetched: r.now()}
			r.mu.Unlock()
			out.tms = s
			r.logger.InfoContext(ctx, "loaded tile matrix set",
				"url", url, "tms", matrixSetID, "epsg", s.EPSG, "matrices", len(s.Matrices))
		}
	}
	return out, nil
}

func (r *Repository) fresh(t time.Time) bool {
	return r.maxAge <= 0 || r.now().Sub(t) < r.maxAge
}

func (r *Repository) cachedLayer(url, id string) (*LayerInfo, bool) {
	if id == "" {
		return nil, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.layers[cacheKey{url, id}]
	if !ok || !r.fresh(e.fetched) {
		return nil, false
	}
	return e.val, true
}

func (r *Repository) cachedMatrixSet(url, id string) (*TileMatrixSet, bool) {
	if id == "" {
		return nil, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.matrixSets[cacheKey{url, id}]
	if !ok || !r.fresh(e.fetched) {
		return nil, false
	}
	return e.val, true
}

// Clear drops every cached document.
func (r *Repository) Clear() {
	r.mu.Lock()
	r.matrixSets = make(map[cacheKey]entry[TileMatrixSet])
	r.layers = make(map[cacheKey]entry[LayerInfo])
	r.mu.Unlock()
}

func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matrixSets) + len(r.layers)
}
