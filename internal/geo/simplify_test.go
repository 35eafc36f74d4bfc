// SPDX-License-Identifier: MIT

package geo

import "testing"

func zigzagRing(n int) Drawvec {
	ring := make(Drawvec, n)
	for i := 0; i < n; i++ {
		op := LineTo
		if i == 0 {
			op = MoveTo
		}
		y := int64(0)
		if i%2 == 1 {
			y = 1
		}
		ring[i] = Draw{Op: op, X: int64(i) * 10, Y: y}
	}
	return ring
}

func TestSimplifyLinesDropsBelowTolerance(t *testing.T) {
	ring := zigzagRing(12)
	out := SimplifyLines(ring, SimplifyOptions{
		Zoom:           0,
		Detail:         12,
		Algorithm:      DouglasPeucker,
		Simplification: 1 << 20,
	})
	if len(out) >= len(ring) {
		t.Fatalf("expected simplification to drop points, got %d of %d", len(out), len(ring))
	}
}

// TestSimplifyLinesRetainForcesMinimumPointsDouglasPeucker pins the fix for
// douglasPeuckerMark's Retain handling: with a tolerance large enough that
// ordinary Douglas-Peucker would collapse the ring to its two endpoints,
// Retain must still force at least that many interior points to survive.
func TestSimplifyLinesRetainForcesMinimumPointsDouglasPeucker(t *testing.T) {
	ring := zigzagRing(12)
	const retain = 4
	out := SimplifyLines(ring, SimplifyOptions{
		Zoom:           0,
		Detail:         12,
		Algorithm:      DouglasPeucker,
		Simplification: 1 << 20,
		Retain:         retain,
	})
	if len(out) < retain+2 {
		t.Fatalf("Retain=%d: expected at least %d points (incl. endpoints), got %d", retain, retain+2, len(out))
	}
}

func TestSimplifyLinesRetainForcesMinimumPointsVisvalingam(t *testing.T) {
	ring := zigzagRing(12)
	const retain = 4
	out := SimplifyLines(ring, SimplifyOptions{
		Zoom:           0,
		Detail:         12,
		Algorithm:      Visvalingam,
		Simplification: 1 << 20,
		Retain:         retain,
	})
	if len(out) < retain+2 {
		t.Fatalf("Retain=%d: expected at least %d points (incl. endpoints), got %d", retain, retain+2, len(out))
	}
}
