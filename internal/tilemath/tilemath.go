// Package tilemath implements slippy-map tile arithmetic.
package tilemath

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/mohammed-shakir/tile-gateway/internal/core/model"
)

// MaxZoom is the deepest client zoom level accepted by the gateway.
const MaxZoom = 20

// ToBBoxWGS84 returns the WGS84 extent of a tile. Callers validate first.
func ToBBoxWGS84(t model.TileCoordinate) model.BoundingBox {
	n := math.Exp2(float64(t.Z))
	return model.BoundingBox{
		MinLon: float64(t.X)/n*360 - 180,
		MaxLon: float64(t.X+1)/n*360 - 180,
		MaxLat: latForRow(float64(t.Y), n),
		MinLat: latForRow(float64(t.Y+1), n),
	}
}

func latForRow(y, n float64) float64 {
	return math.Atan(math.Sinh(math.Pi*(1-2*y/n))) * 180 / math.Pi
}

// Valid reports whether the tile is syntactically valid at or below maxZoom.
func Valid(t model.TileCoordinate, maxZoom int) bool {
	if t.Z < 0 || t.Z > maxZoom {
		return false
	}
	n := 1 << uint(t.Z)
	return t.X >= 0 && t.X < n && t.Y >= 0 && t.Y < n
}

// TileAt returns the tile at zoom z containing the given point.
func TileAt(lon, lat float64, z int) model.TileCoordinate {
	mt := maptile.At(orb.Point{lon, lat}, maptile.Zoom(z))
	return model.TileCoordinate{Z: z, X: int(mt.X), Y: int(mt.Y)}
}

// Range returns the inclusive tile index window covering bb at zoom z.
func Range(bb model.BoundingBox, z int) (minX, minY, maxX, maxY int) {
	tl := TileAt(bb.MinLon, bb.MaxLat, z)
	br := TileAt(bb.MaxLon, bb.MinLat, z)
	return tl.X, tl.Y, br.X, br.Y
}
