package h3mapper

import (
	"slices"
	"sort"
	"testing"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/tile-gateway/internal/core/model"
)

func TestResForZoom(t *testing.T) {
	cases := map[int]int{0: 0, 3: 0, 7: 2, 10: 4, 18: 9, 20: 10, 40: 15}
	for z, want := range cases {
		if got := ResForZoom(z); got != want {
			t.Fatalf("ResForZoom(%d)=%d want %d", z, got, want)
		}
	}
}

func TestCellForTile_ContainsCenter(t *testing.T) {
	m := New()
	tile := model.TileCoordinate{Z: 10, X: 580, Y: 316}

	s, err := m.CellForTile(tile)
	if err != nil {
		t.Fatalf("CellForTile: %v", err)
	}
	var c h3.Cell
	if err := c.UnmarshalText([]byte(s)); err != nil {
		t.Fatalf("parse cell: %v", err)
	}
	if !c.IsValid() || c.Resolution() != 4 {
		t.Fatalf("cell %s res=%d", s, c.Resolution())
	}

	again, _ := m.CellForTile(tile)
	if again != s {
		t.Fatalf("non-deterministic cell %s vs %s", s, again)
	}
}

func TestCellForTile_RejectsInvalidTile(t *testing.T) {
	if _, err := New().CellForTile(model.TileCoordinate{Z: 2, X: 4, Y: 0}); err == nil {
		t.Fatalf("expected error for x out of range")
	}
}

func TestBBox_HappyPath_SortedUnique(t *testing.T) {
	m := New()
	bb := model.BoundingBox{MinLon: 23.9, MinLat: 56.9, MaxLon: 24.3, MaxLat: 57.0}

	cells, err := m.CellsForBBox(bb, 7)
	if err != nil {
		t.Fatalf("CellsForBBox err: %v", err)
	}
	if len(cells) == 0 {
		t.Fatalf("expected non-empty cells for bbox")
	}
	if !sort.StringsAreSorted(cells) {
		t.Fatalf("cells must be sorted")
	}
	if len(slices.Compact(slices.Clone(cells))) != len(cells) {
		t.Fatalf("cells must be de-duplicated")
	}
}

func TestBBox_InvalidInput(t *testing.T) {
	m := New()
	bb := model.BoundingBox{MinLon: 11, MinLat: 55, MaxLon: 12, MaxLat: 56}
	if _, err := m.CellsForBBox(bb, -1); err == nil {
		t.Fatalf("expected error for res=-1")
	}
	if _, err := m.CellsForBBox(bb, 16); err == nil {
		t.Fatalf("expected error for res=16")
	}
	if _, err := m.CellsForBBox(model.BoundingBox{MinLon: 5, MaxLon: 1, MinLat: 0, MaxLat: 1}, 5); err == nil {
		t.Fatalf("expected error for inverted bbox")
	}
}
