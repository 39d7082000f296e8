package limits

import "testing"

func TestInBounds_LKSLVM(t *testing.T) {
	cases := []struct {
		zoom, col, row int
		want           bool
	}{
		{10, 56, 4, true},
		{10, 55, 4, false},
		{10, 266, 129, true},
		{10, 267, 129, false},
		{10, 56, 130, false},
		{6, 50, 10, false},
		{19, 9000, 700, false},
		{18, 8410, 655, true},
	}
	for _, c := range cases {
		if got := LKSLVM.InBounds(c.zoom, c.col, c.row); got != c.want {
			t.Fatalf("InBounds(%d,%d,%d)=%v want %v", c.zoom, c.col, c.row, got, c.want)
		}
	}
}

func TestZooms_Sorted(t *testing.T) {
	z := LKSLVM.Zooms()
	if len(z) != 12 || z[0] != 7 || z[len(z)-1] != 18 {
		t.Fatalf("zooms=%v", z)
	}
}

func TestForName(t *testing.T) {
	if _, ok := ForName("LKS_LVM"); !ok {
		t.Fatal("expected LKS_LVM table")
	}
	if _, ok := ForName("nope"); ok {
		t.Fatal("unexpected table for unknown name")
	}
}
