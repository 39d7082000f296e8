// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"strconv"
)

// TileCoordinate is a slippy-map (Web-Mercator) tile index.
type TileCoordinate struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

func (t TileCoordinate) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// BoundingBox in WGS84 degrees.
type BoundingBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

func (b BoundingBox) Center() (lon, lat float64) {
	return (b.MinLon + b.MaxLon) / 2, (b.MinLat + b.MaxLat) / 2
}

// Intersects reports whether the boxes share area; touching edges do not count.
func (b BoundingBox) Intersects(o BoundingBox) bool {
	return b.MinLon < o.MaxLon && b.MaxLon > o.MinLon && b.MinLat < o.MaxLat && b.MaxLat > o.MinLat
}

func (b BoundingBox) Valid() bool {
	return b.MinLon >= -180 && b.MaxLon <= 180 &&
		b.MinLat >= -90 && b.MaxLat <= 90 &&
		b.MaxLon > b.MinLon && b.MaxLat > b.MinLat
}

// TransformedTileCoordinate addresses a cell of the upstream tile matrix plus
// the quadrant of that cell covered by the client tile.
type TransformedTileCoordinate struct {
	TileMatrix string `json:"tile_matrix"`
	TileCol    int    `json:"tile_col"`
	TileRow    int    `json:"tile_row"`
	QuadrantX  int    `json:"quadrant_x"`
	QuadrantY  int    `json:"quadrant_y"`
}

// Passthrough builds the identity transform used when client and upstream
// share the Web-Mercator grid.
func Passthrough(t TileCoordinate) TransformedTileCoordinate {
	return TransformedTileCoordinate{
		TileMatrix: strconv.Itoa(t.Z),
		TileCol:    t.X,
		TileRow:    t.Y,
	}
}
