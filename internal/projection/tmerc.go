package projection

import (
	"fmt"
	"math"

	"github.com/wroge/wgs84"
)

// ellipsoid is a wgs84.Spheroid built from proj4 axis parameters.
type ellipsoid struct {
	a  float64 // semi-major axis, meters
	rf float64 // inverse flattening, +Inf for a sphere
}

func (e ellipsoid) A() float64  { return e.a }
func (e ellipsoid) Fi() float64 { return e.rf }

var (
	ellGRS80 = ellipsoid{a: wgs84.GRS80{}.A(), rf: wgs84.GRS80{}.Fi()}
	ellWGS84 = ellipsoid{a: wgs84.A, rf: wgs84.Fi}
)

// transverseMercator runs wgs84's transverse Mercator on a datum with no
// Helmert shift, so WGS84 input only changes ellipsoid on the way in.
type transverseMercator struct {
	def     string
	forward wgs84.Func
	inverse wgs84.Func
}

func newTransverseMercator(def string, el ellipsoid, lon0, lat0, k0, x0, y0 float64) *transverseMercator {
	crs := wgs84.Datum{Spheroid: el}.TransverseMercator(lon0, lat0, k0, x0, y0)
	return &transverseMercator{
		def:     def,
		forward: wgs84.To(crs),
		inverse: wgs84.From(crs),
	}
}

func (t *transverseMercator) Forward(lon, lat float64) (float64, float64, error) {
	if math.IsNaN(lon) || math.IsNaN(lat) || math.Abs(lat) > 90 {
		return 0, 0, fmt.Errorf("tmerc forward: (%v, %v) out of range", lon, lat)
	}
	x, y, _ := t.forward(lon, lat, 0)
	if err := finite(x, y); err != nil {
		return 0, 0, fmt.Errorf("tmerc forward (%v, %v): %w", lon, lat, err)
	}
	return x, y, nil
}

func (t *transverseMercator) Inverse(x, y float64) (float64, float64, error) {
	lon, lat, _ := t.inverse(x, y, 0)
	if err := finite(lon, lat); err != nil {
		return 0, 0, fmt.Errorf("tmerc inverse (%v, %v): %w", x, y, err)
	}
	return lon, lat, nil
}

func (t *transverseMercator) Definition() string { return t.def }

func finite(a, b float64) error {
	if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) {
		return errNonFinite
	}
	return nil
}
