package projection

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseProj4 compiles the subset of proj4 definitions the gateway serves:
// geographic (longlat), spherical Web Mercator and transverse Mercator
// (tmerc/utm) on GRS80 or WGS84.
func ParseProj4(def string) (Projection, error) {
	params := parseProj4Params(def)
	name, ok := params["proj"]
	if !ok {
		return nil, fmt.Errorf("%w: no +proj in %q", ErrUnsupported, def)
	}

	el, err := ellipsoidFor(params)
	if err != nil {
		return nil, err
	}

	switch name {
	case "longlat", "latlong", "lonlat", "latlon":
		return geographic{def: def}, nil

	case "merc":
		// only the spherical pseudo-mercator of EPSG:3857 is supported
		a, b := params["a"], params["b"]
		if a == "6378137" && b == "6378137" {
			return webMercator{def: def}, nil
		}
		return nil, fmt.Errorf("%w: ellipsoidal mercator %q", ErrUnsupported, def)

	case "tmerc", "etmerc":
		lon0, err := floatParam(params, "lon_0", 0)
		if err != nil {
			return nil, err
		}
		lat0, err := floatParam(params, "lat_0", 0)
		if err != nil {
			return nil, err
		}
		k0, err := floatParam(params, "k", 1)
		if err != nil {
			return nil, err
		}
		if _, ok := params["k_0"]; ok {
			if k0, err = floatParam(params, "k_0", 1); err != nil {
				return nil, err
			}
		}
		x0, err := floatParam(params, "x_0", 0)
		if err != nil {
			return nil, err
		}
		y0, err := floatParam(params, "y_0", 0)
		if err != nil {
			return nil, err
		}
		return newTransverseMercator(def, el, lon0, lat0, k0, x0, y0), nil

	case "utm":
		zone, err := strconv.Atoi(params["zone"])
		if err != nil || zone < 1 || zone > 60 {
			return nil, fmt.Errorf("%w: bad utm zone in %q", ErrUnsupported, def)
		}
		y0 := 0.0
		if _, south := params["south"]; south {
			y0 = 10000000
		}
		lon0 := float64(zone*6 - 183)
		return newTransverseMercator(def, el, lon0, 0, 0.9996, 500000, y0), nil
	}
	return nil, fmt.Errorf("%w: +proj=%s", ErrUnsupported, name)
}

func parseProj4Params(def string) map[string]string {
	out := map[string]string{}
	for _, tok := range strings.Fields(def) {
		tok = strings.TrimPrefix(tok, "+")
		if tok == "" {
			continue
		}
		k, v, _ := strings.Cut(tok, "=")
		out[strings.ToLower(k)] = v
	}
	return out
}

func ellipsoidFor(params map[string]string) (ellipsoid, error) {
	if a, ok := params["a"]; ok {
		av, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return ellipsoid{}, fmt.Errorf("parse +a: %w", err)
		}
		if rf, ok := params["rf"]; ok {
			rv, err := strconv.ParseFloat(rf, 64)
			if err != nil || rv == 0 {
				return ellipsoid{}, fmt.Errorf("parse +rf %q", rf)
			}
			return ellipsoid{a: av, rf: rv}, nil
		}
		if b, ok := params["b"]; ok {
			bv, err := strconv.ParseFloat(b, 64)
			if err != nil {
				return ellipsoid{}, fmt.Errorf("parse +b: %w", err)
			}
			if bv == av {
				return ellipsoid{a: av, rf: math.Inf(1)}, nil
			}
			return ellipsoid{a: av, rf: av / (av - bv)}, nil
		}
		return ellipsoid{a: av, rf: math.Inf(1)}, nil
	}
	name := params["ellps"]
	if name == "" {
		name = params["datum"]
	}
	switch strings.ToUpper(name) {
	case "GRS80", "ETRS89":
		return ellGRS80, nil
	case "", "WGS84":
		return ellWGS84, nil
	}
	return ellipsoid{}, fmt.Errorf("%w: ellipsoid %q", ErrUnsupported, name)
}

func floatParam(params map[string]string, key string, def float64) (float64, error) {
	v, ok := params[key]
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse +%s=%q: %w", key, v, err)
	}
	return f, nil
}
