// SPDX-License-Identifier: MIT

package geo

import "testing"

func TestClipLinesInsideUnchanged(t *testing.T) {
	line := Drawvec{
		{Op: MoveTo, X: 10, Y: 10},
		{Op: LineTo, X: 20, Y: 20},
		{Op: LineTo, X: 30, Y: 10},
	}
	bbox := BBox{0, 0, 4096, 4096}
	got := ClipLines(line, bbox)
	if len(got) != len(line) {
		t.Fatalf("expected unchanged line of length %d, got %d: %v", len(line), len(got), got)
	}
	for i := range line {
		if got[i].X != line[i].X || got[i].Y != line[i].Y {
			t.Errorf("point %d: got %v, want %v", i, got[i], line[i])
		}
	}
}

// TestClipLinesAtBoundary exercises a line crossing x=4096 with buffer=5,
// clipped against the left tile's buffered box: the kept part must end
// between the boundary and boundary+buffer.
func TestClipLinesAtBoundary(t *testing.T) {
	line := Drawvec{
		{Op: MoveTo, X: 4000, Y: 100},
		{Op: LineTo, X: 4200, Y: 100},
	}
	bbox := BBox{MinX: 0, MinY: 0, MaxX: 4096 + 5, MaxY: 4096 + 5}
	got := ClipLines(line, bbox)
	if len(got) == 0 {
		t.Fatal("expected non-empty clip result")
	}
	last := got[len(got)-1]
	if last.X < 4096 || last.X > 4096+5 {
		t.Errorf("expected clipped endpoint near boundary+buffer, got x=%d", last.X)
	}
}

func TestClipPointHalfOpen(t *testing.T) {
	bbox := BBox{0, 0, 10, 10}
	geom := Drawvec{
		{Op: MoveTo, X: 0, Y: 0},
		{Op: MoveTo, X: 9, Y: 9},
		{Op: MoveTo, X: 10, Y: 10},
		{Op: MoveTo, X: -1, Y: 5},
	}
	got := ClipPoint(geom, bbox)
	if len(got) != 2 {
		t.Fatalf("expected 2 retained points, got %d: %v", len(got), got)
	}
}

func TestClipPolyAreaNeverExceedsOriginal(t *testing.T) {
	square := Drawvec{
		{Op: MoveTo, X: -10, Y: -10},
		{Op: LineTo, X: 20, Y: -10},
		{Op: LineTo, X: 20, Y: 20},
		{Op: LineTo, X: -10, Y: 20},
		{Op: LineTo, X: -10, Y: -10},
	}
	bbox := BBox{0, 0, 10, 10}
	clipped := ClipPoly(square, bbox)
	origArea := absf(RingArea(square))
	clippedArea := 0.0
	for _, r := range clipped.Rings() {
		clippedArea += absf(RingArea(r))
	}
	if clippedArea > origArea {
		t.Errorf("clipped area %v exceeds original area %v", clippedArea, origArea)
	}
}

func TestClipPolyFullyInsideUnchangedArea(t *testing.T) {
	square := Drawvec{
		{Op: MoveTo, X: 10, Y: 10},
		{Op: LineTo, X: 20, Y: 10},
		{Op: LineTo, X: 20, Y: 20},
		{Op: LineTo, X: 10, Y: 20},
		{Op: LineTo, X: 10, Y: 10},
	}
	bbox := BBox{0, 0, 100, 100}
	clipped := ClipPoly(square, bbox)
	origArea := absf(RingArea(square))
	var clippedArea float64
	for _, r := range clipped.Rings() {
		clippedArea += absf(RingArea(r))
	}
	if absf(clippedArea-origArea) > 1e-6 {
		t.Errorf("expected unchanged area %v, got %v", origArea, clippedArea)
	}
}
