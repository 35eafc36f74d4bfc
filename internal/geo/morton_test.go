// SPDX-License-Identifier: MIT

package geo

import (
	"math/rand"
	"testing"
)

func TestEncodeDecodeBijection(t *testing.T) {
	for n := 0; n < 5000; n++ {
		x := rand.Uint32()
		y := rand.Uint32()
		key := Encode(x, y)
		gotX, gotY := Decode(key)
		if gotX != x || gotY != y {
			t.Errorf("Decode(Encode(%d,%d)) = (%d,%d)", x, y, gotX, gotY)
		}
	}
}

func TestEncodeBoundary(t *testing.T) {
	cases := []struct{ x, y uint32 }{
		{0, 0},
		{0xffffffff, 0xffffffff},
		{0xffffffff, 0},
		{0, 0xffffffff},
	}
	for _, c := range cases {
		key := Encode(c.x, c.y)
		gotX, gotY := Decode(key)
		if gotX != c.x || gotY != c.y {
			t.Errorf("Decode(Encode(%d,%d)) = (%d,%d)", c.x, c.y, gotX, gotY)
		}
	}
}

func TestTileBounds(t *testing.T) {
	minX, minY, maxX, maxY := TileBounds(2, 3, 3)
	wantMin := int64(3) * (int64(1) << 30)
	wantMax := wantMin + (int64(1) << 30)
	if minX != wantMin || minY != wantMin || maxX != wantMax || maxY != wantMax {
		t.Errorf("TileBounds(2,3,3) = [%d,%d,%d,%d), want [%d,%d,%d,%d)",
			minX, minY, maxX, maxY, wantMin, wantMin, wantMax, wantMax)
	}
}
