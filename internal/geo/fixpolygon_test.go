// SPDX-License-Identifier: MIT

package geo

import "testing"

// TestFixPolygonReversesClockwise: a clockwise outer ring is reversed so
// the result has positive area.
func TestFixPolygonReversesClockwise(t *testing.T) {
	clockwise := Drawvec{
		{Op: MoveTo, X: 10, Y: 10},
		{Op: LineTo, X: 10, Y: 20},
		{Op: LineTo, X: 20, Y: 20},
		{Op: LineTo, X: 20, Y: 10},
		{Op: LineTo, X: 10, Y: 10},
	}
	if RingArea(clockwise) >= 0 {
		t.Fatal("test fixture must start clockwise (negative area)")
	}
	fixed := FixPolygon(clockwise)
	if len(fixed) == 0 {
		t.Fatal("expected non-empty result")
	}
	if RingArea(fixed) <= 0 {
		t.Errorf("expected positive area after fix, got %v", RingArea(fixed))
	}
}

func TestFixPolygonIdempotent(t *testing.T) {
	ring := Drawvec{
		{Op: MoveTo, X: 10, Y: 10},
		{Op: LineTo, X: 20, Y: 10},
		{Op: LineTo, X: 20, Y: 20},
		{Op: LineTo, X: 10, Y: 20},
		{Op: LineTo, X: 10, Y: 10},
	}
	once := FixPolygon(ring)
	twice := FixPolygon(once)
	if len(once) != len(twice) {
		t.Fatalf("length changed: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].X != twice[i].X || once[i].Y != twice[i].Y {
			t.Errorf("point %d differs: %v vs %v", i, once[i], twice[i])
		}
	}
}

func TestAreaSquareIs100(t *testing.T) {
	// Square (10,10),(20,10),(20,20),(10,20) has area 100.
	square := Drawvec{
		{Op: MoveTo, X: 10, Y: 10},
		{Op: LineTo, X: 20, Y: 10},
		{Op: LineTo, X: 20, Y: 20},
		{Op: LineTo, X: 10, Y: 20},
		{Op: LineTo, X: 10, Y: 10},
	}
	area := absf(RingArea(square))
	if area != 100 {
		t.Errorf("expected area 100, got %v", area)
	}
}
