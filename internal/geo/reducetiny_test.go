// SPDX-License-Identifier: MIT

package geo

import "testing"

// halfPixelTriangle is a right triangle with area 0.5 (half a pixel²),
// anchored at (x,y), below the 1-pixel² drop threshold on its own.
func halfPixelTriangle(x, y int64) Drawvec {
	return Drawvec{
		{Op: MoveTo, X: x, Y: y},
		{Op: LineTo, X: x + 1, Y: y},
		{Op: LineTo, X: x, Y: y + 1},
		{Op: LineTo, X: x, Y: y},
	}
}

// TestReduceTinyPolySingleBelowThreshold exercises one polygon whose area
// never clears the pixel² threshold on its own: it must be dropped, and
// the accumulator must retain its sub-threshold area for the next polygon
// sharing it.
func TestReduceTinyPolySingleBelowThreshold(t *testing.T) {
	var accum float64
	out, reduced := ReduceTinyPoly(halfPixelTriangle(10, 10), ReduceTinyPolyOptions{Zoom: 10, Detail: 12}, &accum)
	if !reduced {
		t.Fatal("expected tiny polygon to be reduced")
	}
	if out != nil {
		t.Errorf("expected polygon dropped (nil geometry), got %v", out)
	}
	if accum == 0 {
		t.Error("expected accumulator to retain the dropped polygon's area")
	}
}

// TestReduceTinyPolyAccumulatesAcrossFeatures is the pinning test the
// maintainer requested: two below-threshold tiny polygons sharing one
// accumulator must collectively emit a single representative square, even
// though neither one alone clears the pixel² threshold. Each triangle has
// area 0.5 (half a pixel²); their combined accumulated area reaches the
// full pixel² threshold on the second call.
func TestReduceTinyPolyAccumulatesAcrossFeatures(t *testing.T) {
	var accum float64
	opts := ReduceTinyPolyOptions{Zoom: 14, Detail: 12}

	out1, reduced1 := ReduceTinyPoly(halfPixelTriangle(5, 5), opts, &accum)
	if !reduced1 {
		t.Fatal("expected first tiny polygon to be reduced")
	}
	if out1 != nil {
		t.Errorf("expected first polygon dropped, got %v", out1)
	}
	if absf(accum) != 0.5 {
		t.Fatalf("expected accumulator to hold 0.5 after the first polygon, got %v", accum)
	}

	out2, reduced2 := ReduceTinyPoly(halfPixelTriangle(5, 5), opts, &accum)
	if !reduced2 {
		t.Fatal("expected second tiny polygon to be reduced")
	}
	if out2 == nil {
		t.Fatal("expected accumulated area to clear the threshold and emit a square")
	}
	if len(out2) != 5 {
		t.Errorf("expected a closed 5-point square, got %d points: %v", len(out2), out2)
	}
	if accum != 0 {
		t.Errorf("expected accumulator reset to 0 after emitting a square, got %v", accum)
	}
}

func TestReduceTinyPolyEmitGhost(t *testing.T) {
	var accum float64
	out, reduced := ReduceTinyPoly(halfPixelTriangle(1, 1), ReduceTinyPolyOptions{Zoom: 10, Detail: 12, EmitGhost: true}, &accum)
	if !reduced {
		t.Fatal("expected tiny polygon to be reduced")
	}
	if out == nil {
		t.Fatal("expected EmitGhost to return a ghost square instead of nil")
	}
	if len(out) != 5 {
		t.Errorf("expected a closed 5-point ghost square, got %d points", len(out))
	}
}

// TestReduceTinyPolyNotTiny exercises a polygon whose area clears the
// pixel² threshold: it must pass through untouched and leave accum alone.
func TestReduceTinyPolyNotTiny(t *testing.T) {
	var accum float64
	big := Drawvec{
		{Op: MoveTo, X: 0, Y: 0},
		{Op: LineTo, X: 100, Y: 0},
		{Op: LineTo, X: 100, Y: 100},
		{Op: LineTo, X: 0, Y: 100},
		{Op: LineTo, X: 0, Y: 0},
	}
	out, reduced := ReduceTinyPoly(big, ReduceTinyPolyOptions{Zoom: 10, Detail: 12}, &accum)
	if reduced {
		t.Fatal("expected a polygon above the pixel² threshold to pass through unreduced")
	}
	if len(out) != len(big) {
		t.Errorf("expected unchanged geometry, got %d points, want %d", len(out), len(big))
	}
	if accum != 0 {
		t.Errorf("expected accumulator untouched for a non-tiny polygon, got %v", accum)
	}
}
