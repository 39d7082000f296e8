// Package metricswrap exports hotness tracker state as Prometheus gauges and
// logs cells that cross a score threshold.
package metricswrap

import (
	"fmt"

	xx "github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/tile-gateway/internal/core/observability"
	"github.com/mohammed-shakir/tile-gateway/internal/hotness"
)

type Sizer interface{ Size() int }

type Options struct {
	Tier string
	// Threshold enables hot-cell logging when positive.
	Threshold float64
	// LogSample is the fraction of hot cells logged, keyed by cell hash so
	// a given cell is either always or never logged.
	LogSample float64
	Logger    *zerolog.Logger
}

type WithMetrics struct {
	inner hotness.Interface
	opts  Options
}

var _ hotness.Interface = (*WithMetrics)(nil)

func New(inner hotness.Interface, opts Options) *WithMetrics {
	if opts.Tier == "" {
		opts.Tier = "tiles"
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	return &WithMetrics{inner: inner, opts: opts}
}

func (w *WithMetrics) Inc(cell string) {
	w.inner.Inc(cell)
	if w.opts.Threshold > 0 {
		score := w.inner.Score(cell)
		if score >= w.opts.Threshold && shouldLog(w.opts.LogSample, cell) {
			w.opts.Logger.Info().
				Str("event", "hotness_threshold").
				Float64("score", score).
				Str("tier", w.opts.Tier).
				Str("cell", cell).
				Str("cell_hash", fmt.Sprintf("%08x", xx.Sum64String(cell))).
				Msg("hot cell above threshold")
		}
	}
	w.setGauge()
}

func (w *WithMetrics) Score(cell string) float64 {
	return w.inner.Score(cell)
}

func (w *WithMetrics) Reset(cells ...string) {
	w.inner.Reset(cells...)
	w.setGauge()
}

func (w *WithMetrics) Top(n int) []hotness.Entry {
	return w.inner.Top(n)
}

func (w *WithMetrics) Clear() {
	w.inner.Clear()
	w.setGauge()
}

func (w *WithMetrics) setGauge() {
	if s, ok := w.inner.(Sizer); ok {
		observability.SetHotKeysGauge(w.opts.Tier, s.Size())
	}
}

func shouldLog(sample float64, key string) bool {
	if sample <= 0 {
		return false
	}
	if sample >= 1 {
		return true
	}
	const denom = 10000
	threshold := uint64(sample*denom + 0.5)
	if threshold == 0 {
		return false
	}
	return xx.Sum64String(key)%denom < threshold
}
