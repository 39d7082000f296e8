// Package capabilities fetches, parses and caches WMTS GetCapabilities documents.
package capabilities

import "sort"

const (
	NamespaceWMTS = "http://www.opengis.net/wmts/1.0"
	NamespaceOWS  = "http://www.opengis.net/ows/1.1"
)

// TileMatrix describes one zoom level of a tile matrix set.
type TileMatrix struct {
	Identifier       string     `json:"identifier"`
	ScaleDenominator float64    `json:"scale_denominator"`
	TopLeftCorner    [2]float64 `json:"top_left_corner"`
	TileWidth        int        `json:"tile_width"`
	TileHeight       int        `json:"tile_height"`
	MatrixWidth      int        `json:"matrix_width"`
	MatrixHeight     int        `json:"matrix_height"`
}

// PixelSize is the OGC standardized rendering pixel size in CRS units.
func (m TileMatrix) PixelSize() float64 {
	return m.ScaleDenominator * StandardPixelSize
}

// StandardPixelSize is 0.28mm, the OGC rendering pixel.
const StandardPixelSize = 0.00028

type TileMatrixSet struct {
	Identifier        string             `json:"identifier"`
	SupportedCRS      string             `json:"supported_crs"`
	EPSG              int                `json:"epsg,omitempty"`
	WellKnownScaleSet string             `json:"well_known_scale_set,omitempty"`
	Matrices          map[int]TileMatrix `json:"tile_matrices"`
}

func (s *TileMatrixSet) Matrix(zoom int) (TileMatrix, bool) {
	if s == nil {
		return TileMatrix{}, false
	}
	m, ok := s.Matrices[zoom]
	return m, ok
}

func (s *TileMatrixSet) Zooms() []int {
	if s == nil {
		return nil
	}
	out := make([]int, 0, len(s.Matrices))
	for z := range s.Matrices {
		out = append(out, z)
	}
	sort.Ints(out)
	return out
}

type LayerInfo struct {
	Identifier        string      `json:"identifier"`
	Title             string      `json:"title"`
	Abstract          string      `json:"abstract,omitempty"`
	WGS84BoundingBox  *[4]float64 `json:"wgs84_bounding_box,omitempty"`
	TileMatrixSetLink []string    `json:"tile_matrix_sets"`
	Formats           []string    `json:"formats"`
	Styles            []string    `json:"styles"`
}
