// SPDX-License-Identifier: MIT

package sharedborder

import (
	"testing"

	"github.com/brawer/tilekiln/internal/geo"
)

func square(x0, y0, x1, y1 int64) geo.Drawvec {
	return geo.Drawvec{
		{Op: geo.MoveTo, X: x0, Y: y0},
		{Op: geo.LineTo, X: x1, Y: y0},
		{Op: geo.LineTo, X: x1, Y: y1},
		{Op: geo.LineTo, X: x0, Y: y1},
		{Op: geo.ClosePath},
	}
}

func TestSharedEdgeMarksNecessaryVertices(t *testing.T) {
	left := square(0, 0, 10, 10)
	right := square(10, 0, 20, 10) // shares the x=10 edge with left

	d := NewDetector()
	d.AddRing(0, left)
	d.AddRing(1, right)

	markedLeft := d.MarkNecessary(0, left)
	var anyNecessary bool
	for _, p := range markedLeft {
		if p.Necessary {
			anyNecessary = true
		}
	}
	if !anyNecessary {
		t.Error("expected at least one vertex on the shared edge to be marked necessary")
	}
}

func TestIsolatedRingHasNoNecessaryVertices(t *testing.T) {
	ring := square(0, 0, 10, 10)
	d := NewDetector()
	d.AddRing(0, ring)
	marked := d.MarkNecessary(0, ring)
	for _, p := range marked {
		if p.Necessary {
			t.Error("expected no necessary vertices on an isolated ring")
		}
	}
}

func TestArcKeyIsOrientationInvariant(t *testing.T) {
	fwd := []geo.Draw{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}
	rev := []geo.Draw{{X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}}
	kf, _ := arcKey(fwd)
	kr, _ := arcKey(rev)
	if kf != kr {
		t.Errorf("expected orientation-invariant arc key, got %q vs %q", kf, kr)
	}
}

func TestPoolInternReusesArc(t *testing.T) {
	p := NewPool()
	pts := []geo.Draw{{X: 0, Y: 0}, {X: 5, Y: 5}, {X: 10, Y: 10}}
	k1, _ := p.Intern(pts)
	k2, _ := p.Intern(pts)
	if k1 != k2 {
		t.Errorf("expected repeated intern of the same arc to return the same key")
	}
	if len(p.arcs) != 1 {
		t.Errorf("expected exactly one interned arc, got %d", len(p.arcs))
	}
}

// TestPoolSimplifyHandlesArcWithoutLeadingMoveTo pins a fix: an arc taken
// from the middle of a ring only ever carries Op values inherited from
// ringVertices (LineTo, typically), never MoveTo, since only a ring's
// true first vertex is a MoveTo. SimplifyLines finds ring boundaries by
// splitting on MoveTo, so Simplify must tag the arc's own first point as
// MoveTo before calling it, or the arc looks ring-less and vanishes.
func TestPoolSimplifyHandlesArcWithoutLeadingMoveTo(t *testing.T) {
	p := NewPool()
	pts := []geo.Draw{
		{Op: geo.LineTo, X: 0, Y: 0},
		{Op: geo.LineTo, X: 5, Y: 0},
		{Op: geo.LineTo, X: 10, Y: 0},
	}
	key, _ := p.Intern(pts)
	p.Simplify(geo.SimplifyOptions{
		Zoom:           0,
		Detail:         12,
		Simplification: 10.0,
	})
	out := p.Arc(key, true)
	if len(out) == 0 {
		t.Fatal("expected Simplify to preserve at least the arc's endpoints, got an empty arc")
	}
	first, last := out[0], out[len(out)-1]
	if first.X != 0 || first.Y != 0 || last.X != 10 || last.Y != 0 {
		t.Errorf("expected endpoints (0,0) and (10,0) preserved, got %+v..%+v", first, last)
	}
}
