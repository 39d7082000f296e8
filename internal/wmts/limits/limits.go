// Package limits holds per-zoom coverage windows of upstream tile matrices.
package limits

import "sort"

// Limit is an inclusive column/row window.
type Limit struct {
	MinCol int `json:"min_col"`
	MaxCol int `json:"max_col"`
	MinRow int `json:"min_row"`
	MaxRow int `json:"max_row"`
}

func (l Limit) Contains(col, row int) bool {
	return col >= l.MinCol && col <= l.MaxCol && row >= l.MinRow && row <= l.MaxRow
}

// Table maps zoom level to the window actually served upstream.
type Table map[int]Limit

// InBounds is false for zoom levels absent from the table.
func (t Table) InBounds(zoom, col, row int) bool {
	l, ok := t[zoom]
	if !ok {
		return false
	}
	return l.Contains(col, row)
}

func (t Table) Get(zoom int) (Limit, bool) {
	l, ok := t[zoom]
	return l, ok
}

func (t Table) Zooms() []int {
	out := make([]int, 0, len(t))
	for z := range t {
		out = append(out, z)
	}
	sort.Ints(out)
	return out
}

// LKSLVM is the coverage of the Latvian LKS_LVM matrix set.
var LKSLVM = Table{
	7:  {MinCol: 19, MaxCol: 99, MinRow: 1, MaxRow: 48},
	8:  {MinCol: 28, MaxCol: 133, MinRow: 2, MaxRow: 64},
	9:  {MinCol: 42, MaxCol: 199, MinRow: 3, MaxRow: 97},
	10: {MinCol: 56, MaxCol: 266, MinRow: 4, MaxRow: 129},
	11: {MinCol: 84, MaxCol: 399, MinRow: 6, MaxRow: 194},
	12: {MinCol: 168, MaxCol: 799, MinRow: 13, MaxRow: 389},
	13: {MinCol: 420, MaxCol: 2000, MinRow: 32, MaxRow: 974},
	14: {MinCol: 841, MaxCol: 4000, MinRow: 65, MaxRow: 1948},
	15: {MinCol: 1121, MaxCol: 5333, MinRow: 87, MaxRow: 2598},
	16: {MinCol: 1682, MaxCol: 8000, MinRow: 131, MaxRow: 3897},
	17: {MinCol: 3364, MaxCol: 16000, MinRow: 262, MaxRow: 7795},
	18: {MinCol: 8410, MaxCol: 40000, MinRow: 655, MaxRow: 19488},
}

var named = map[string]Table{
	"LKS_LVM": LKSLVM,
}

// ForName looks up a built-in table.
func ForName(name string) (Table, bool) {
	t, ok := named[name]
	return t, ok
}
