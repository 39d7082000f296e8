package projection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mohammed-shakir/tile-gateway/internal/core/observability"
)

// Strategy turns an EPSG code into a Projection.
type Strategy interface {
	Name() string
	Build(ctx context.Context, epsg int) (Projection, error)
}

type remoteStrategy struct{ src CRSInfoSource }

// RemoteStrategy builds projections from proj4 text served by src.
func RemoteStrategy(src CRSInfoSource) Strategy { return remoteStrategy{src: src} }

func (remoteStrategy) Name() string { return "proj4-remote" }

func (r remoteStrategy) Build(ctx context.Context, epsg int) (Projection, error) {
	info, err := r.src.Lookup(ctx, epsg)
	if err != nil {
		return nil, err
	}
	return ParseProj4(info.Proj4)
}

type builtinStrategy struct{}

// BuiltinStrategy builds projections from the bundled EPSG table.
func BuiltinStrategy() Strategy { return builtinStrategy{} }

func (builtinStrategy) Name() string { return "epsg-builtin" }

func (builtinStrategy) Build(_ context.Context, epsg int) (Projection, error) {
	def, ok := BuiltinProj4(epsg)
	if !ok {
		return nil, fmt.Errorf("%w: EPSG:%d not bundled", ErrUnsupported, epsg)
	}
	return ParseProj4(def)
}

// Provider tries each strategy in order and caches the first success per
// EPSG code. A failing strategy is logged once per code.
type Provider struct {
	strategies []Strategy
	logger     *slog.Logger

	mu       sync.RWMutex
	resolved map[int]Projection
	warned   map[string]struct{}
}

func NewProvider(logger *slog.Logger, strategies ...Strategy) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if len(strategies) == 0 {
		strategies = []Strategy{BuiltinStrategy()}
	}
	return &Provider{
		strategies: strategies,
		logger:     logger,
		resolved:   make(map[int]Projection),
		warned:     make(map[string]struct{}),
	}
}

func (p *Provider) Resolve(ctx context.Context, epsg int) (Projection, error) {
	p.mu.RLock()
	pr, ok := p.resolved[epsg]
	p.mu.RUnlock()
	if ok {
		return pr, nil
	}

	var lastErr error
	for _, s := range p.strategies {
		pr, err := s.Build(ctx, epsg)
		if err != nil {
			observability.IncProjectionStrategy(s.Name(), "error")
			p.warnOnce(ctx, s.Name(), epsg, err)
			lastErr = err
			continue
		}
		observability.IncProjectionStrategy(s.Name(), "ok")
		p.mu.Lock()
		p.resolved[epsg] = pr
		p.mu.Unlock()
		p.logger.DebugContext(ctx, "projection resolved", "epsg", epsg, "strategy", s.Name())
		return pr, nil
	}
	return nil, fmt.Errorf("resolve EPSG:%d: %w", epsg, lastErr)
}

func (p *Provider) warnOnce(ctx context.Context, strategy string, epsg int, err error) {
	key := fmt.Sprintf("%s/%d", strategy, epsg)
	p.mu.Lock()
	_, seen := p.warned[key]
	p.warned[key] = struct{}{}
	p.mu.Unlock()
	if !seen {
		p.logger.WarnContext(ctx, "projection strategy failed", "strategy", strategy, "epsg", epsg, "err", err)
	}
}

// Clear drops resolved projections and the warn-once memory.
func (p *Provider) Clear() {
	p.mu.Lock()
	p.resolved = make(map[int]Projection)
	p.warned = make(map[string]struct{})
	p.mu.Unlock()
}
