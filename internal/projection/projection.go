// Package projection resolves EPSG codes to forward/inverse projections
// between WGS84 longitude/latitude and planar target coordinates.
package projection

import (
	"errors"
	"fmt"

	"github.com/go-spatial/proj"
)

// Projection converts between WGS84 degrees and target CRS units.
type Projection interface {
	Forward(lon, lat float64) (x, y float64, err error)
	Inverse(x, y float64) (lon, lat float64, err error)
	// Definition names where the projection came from, for logs and debug output.
	Definition() string
}

var (
	ErrUnsupported = errors.New("unsupported projection")
	errNonFinite   = errors.New("non-finite result")
)

type geographic struct{ def string }

func (g geographic) Forward(lon, lat float64) (float64, float64, error) { return lon, lat, nil }
func (g geographic) Inverse(x, y float64) (float64, float64, error)     { return x, y, nil }
func (g geographic) Definition() string                                 { return g.def }

// webMercator delegates to go-spatial/proj's built-in EPSG:3857.
type webMercator struct{ def string }

func (w webMercator) Forward(lon, lat float64) (float64, float64, error) {
	out, err := proj.Convert(proj.EPSG3857, []float64{lon, lat})
	if err != nil {
		return 0, 0, fmt.Errorf("web mercator forward: %w", err)
	}
	if len(out) < 2 {
		return 0, 0, errors.New("web mercator forward: short result")
	}
	return out[0], out[1], nil
}

func (w webMercator) Inverse(x, y float64) (float64, float64, error) {
	out, err := proj.Inverse(proj.EPSG3857, []float64{x, y})
	if err != nil {
		return 0, 0, fmt.Errorf("web mercator inverse: %w", err)
	}
	if len(out) < 2 {
		return 0, 0, errors.New("web mercator inverse: short result")
	}
	return out[0], out[1], nil
}

func (w webMercator) Definition() string { return w.def }
