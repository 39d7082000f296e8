package h3mapper

import (
	"errors"
	"fmt"
	"math"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/tile-gateway/internal/core/model"
	"github.com/mohammed-shakir/tile-gateway/internal/mapper"
	"github.com/mohammed-shakir/tile-gateway/internal/tilemath"
)

type Mapper struct{}

var _ mapper.Interface = (*Mapper)(nil)

func New() *Mapper { return &Mapper{} }

// ResForZoom picks the H3 resolution whose cell edge is closest to the
// edge of a tile at zoom z (z10 tiles ~ res 4, z18 tiles ~ res 9).
func ResForZoom(z int) int {
	res := int(math.Round(0.625*float64(z) - 2.25))
	return min(max(res, 0), 15)
}

// CellForTile returns the cell containing the tile center.
func (m *Mapper) CellForTile(t model.TileCoordinate) (string, error) {
	if !tilemath.Valid(t, tilemath.MaxZoom) {
		return "", fmt.Errorf("%w: %s", model.ErrInvalidCoordinate, t)
	}
	lon, lat := tilemath.ToBBoxWGS84(t).Center()
	c, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lon}, ResForZoom(t.Z))
	if err != nil {
		return "", fmt.Errorf("h3 cell: %w", err)
	}
	return c.String(), nil
}

// CellsForBBox returns the sorted, unique cells covering bb.
func (m *Mapper) CellsForBBox(bb model.BoundingBox, res int) ([]string, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	if !bb.Valid() {
		return nil, errors.New("invalid bounding box")
	}
	// v4 wants degrees
	outer := h3.GeoLoop{
		{Lat: bb.MinLat, Lng: bb.MinLon},
		{Lat: bb.MinLat, Lng: bb.MaxLon},
		{Lat: bb.MaxLat, Lng: bb.MaxLon},
		{Lat: bb.MaxLat, Lng: bb.MinLon},
	}
	indexes, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer}, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}

	out := make([]string, 0, len(indexes))
	seen := make(map[string]struct{}, len(indexes))
	for _, idx := range indexes {
		s := idx.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}
