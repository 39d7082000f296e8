// Package invalidation defines the admin events that drop cached state.
package invalidation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mohammed-shakir/tile-gateway/internal/core/model"
)

const (
	OpClear         = "clear"
	OpClearEndpoint = "clear_endpoint"
	OpClearArea     = "clear_area"
)

type Event struct {
	Version  int       `json:"version"`
	Op       string    `json:"op"`
	Endpoint string    `json:"endpoint,omitempty"`
	BBox     *BBox     `json:"bbox,omitempty"`
	TS       time.Time `json:"ts"`
	Source   string    `json:"source,omitempty"`
}

// BBox is a WGS84 area; x is longitude.
type BBox struct {
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	X2   float64 `json:"x2"`
	Y2   float64 `json:"y2"`
	SRID string  `json:"srid"`
}

func (b BBox) Bounds() model.BoundingBox {
	return model.BoundingBox{MinLon: b.X1, MinLat: b.Y1, MaxLon: b.X2, MaxLat: b.Y2}
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	switch e.Op {
	case OpClear:
		if e.Endpoint != "" || e.BBox != nil {
			return fmt.Errorf("clear takes no endpoint or bbox")
		}
	case OpClearEndpoint:
		if strings.TrimSpace(e.Endpoint) == "" {
			return fmt.Errorf("endpoint is required")
		}
	case OpClearArea:
		if e.BBox == nil {
			return fmt.Errorf("bbox is required")
		}
		bb := *e.BBox
		if bb.SRID != "" && bb.SRID != "EPSG:4326" {
			return fmt.Errorf("bbox.srid must be EPSG:4326")
		}
		if !(bb.X1 >= -180 && bb.X1 <= 180 && bb.X2 >= -180 && bb.X2 <= 180) {
			return fmt.Errorf("bbox longitude out of range")
		}
		if !(bb.Y1 >= -90 && bb.Y1 <= 90 && bb.Y2 >= -90 && bb.Y2 <= 90) {
			return fmt.Errorf("bbox latitude out of range")
		}
		if !(bb.X2 > bb.X1 && bb.Y2 > bb.Y1) {
			return fmt.Errorf("bbox must satisfy x2>x1 and y2>y1")
		}
	default:
		return fmt.Errorf("op must be clear|clear_endpoint|clear_area")
	}
	return nil
}

// DedupeKey identifies a delivery of the same event.
func (e Event) DedupeKey() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteByte('|')
	b.WriteString(e.Endpoint)
	if e.BBox != nil {
		fmt.Fprintf(&b, "|%g,%g,%g,%g", e.BBox.X1, e.BBox.Y1, e.BBox.X2, e.BBox.Y2)
	}
	b.WriteByte('|')
	b.WriteString(e.TS.UTC().Format(time.RFC3339Nano))
	return b.String()
}

// Target is the state an event is applied to.
type Target interface {
	ClearCache(ctx context.Context)
	ClearEndpoint(ctx context.Context, endpoint string) error
	ClearArea(ctx context.Context, endpoint string, bb model.BoundingBox) (int, error)
}

// Apply validates ev and applies it to t.
func Apply(ctx context.Context, t Target, ev Event) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	switch ev.Op {
	case OpClear:
		t.ClearCache(ctx)
		return nil
	case OpClearEndpoint:
		return t.ClearEndpoint(ctx, ev.Endpoint)
	default:
		_, err := t.ClearArea(ctx, ev.Endpoint, ev.BBox.Bounds())
		return err
	}
}
