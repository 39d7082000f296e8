// Package mapper converts between tiles, geographic areas and H3 cells.
package mapper

import (
	"github.com/mohammed-shakir/tile-gateway/internal/core/model"
)

type Interface interface {
	CellForTile(t model.TileCoordinate) (string, error)
	CellsForBBox(bb model.BoundingBox, res int) ([]string, error)
}
