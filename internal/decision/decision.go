// Package decision picks how long a freshly fetched tile stays in the
// shared cache, based on how hot its area is.
package decision

import "time"

type HotnessView interface {
	Score(cell string) float64
}

type Reason string

const (
	ReasonDisabled Reason = "disabled"
	ReasonCold     Reason = "cold"
	ReasonWarm     Reason = "warm"
	ReasonHot      Reason = "hot"
)

// hotFactor is how far above Threshold a cell must score to count as hot.
const hotFactor = 4

// TTLPolicy maps a hotness score to a cache TTL. A zero duration means the
// cache default. With Threshold <= 0 every tile gets Cold.
type TTLPolicy struct {
	Threshold float64
	Cold      time.Duration
	Warm      time.Duration
	Hot       time.Duration
}

func (p TTLPolicy) Enabled() bool { return p.Threshold > 0 }

// TTL returns the TTL for a single score.
func (p TTLPolicy) TTL(score float64) (time.Duration, Reason) {
	if !p.Enabled() {
		return p.Cold, ReasonDisabled
	}
	switch {
	case score >= hotFactor*p.Threshold:
		return orDefault(p.Hot, orDefault(p.Warm, p.Cold)), ReasonHot
	case score >= p.Threshold:
		return orDefault(p.Warm, p.Cold), ReasonWarm
	default:
		return p.Cold, ReasonCold
	}
}

// Decide scores cells with hot and uses the hottest one.
func (p TTLPolicy) Decide(cells []string, hot HotnessView) (time.Duration, Reason) {
	if !p.Enabled() || hot == nil || len(cells) == 0 {
		return p.Cold, ReasonDisabled
	}
	best := 0.0
	for _, c := range cells {
		if s := hot.Score(c); s > best {
			best = s
		}
	}
	return p.TTL(best)
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
