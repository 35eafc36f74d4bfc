// SPDX-License-Identifier: MIT

// Package sharedborder implements optional shared-border detection: it
// marks polygon vertices that sit on an edge used by more than one ring
// as "necessary" so that simplification never removes them, keeping
// adjacent polygons' borders from drifting apart after independent
// simplification.
package sharedborder

import (
	"strconv"

	"github.com/brawer/tilekiln/internal/geo"
)

// edgeKey canonicalizes an undirected edge (a,b) with a<b lexicographically,
// since a ring may traverse the same border edge in either direction
// depending on winding.
type edgeKey struct {
	ax, ay, bx, by int64
}

func makeEdgeKey(a, b geo.Draw) edgeKey {
	if a.Less(b) {
		return edgeKey{a.X, a.Y, b.X, b.Y}
	}
	return edgeKey{b.X, b.Y, a.X, a.Y}
}

// Detector accumulates the edge -> ring-id set across every polygon in a
// tile and exposes the necessary-vertex test and arc splitter built on
// top of it.
type Detector struct {
	edgeRings map[edgeKey]map[int]bool
}

// NewDetector creates an empty edge/ring index.
func NewDetector() *Detector {
	return &Detector{edgeRings: make(map[edgeKey]map[int]bool)}
}

// AddRing records every edge of ring under the given ring id.
func (d *Detector) AddRing(ringID int, ring geo.Drawvec) {
	pts := ringVertices(ring)
	for i := 0; i < len(pts); i++ {
		a := pts[i]
		b := pts[(i+1)%len(pts)]
		k := makeEdgeKey(a, b)
		set, ok := d.edgeRings[k]
		if !ok {
			set = make(map[int]bool)
			d.edgeRings[k] = set
		}
		set[ringID] = true
	}
}

func ringVertices(ring geo.Drawvec) []geo.Draw {
	var pts []geo.Draw
	for _, p := range ring {
		if p.Op == geo.MoveTo || p.Op == geo.LineTo {
			pts = append(pts, p)
		}
	}
	return pts
}

// ringSetsDiffer reports whether two incident edges of a vertex carry
// different ring sets: the core necessary-vertex test.
func ringSetsDiffer(a, b map[int]bool) bool {
	if len(a) != len(b) {
		return true
	}
	for k := range a {
		if !b[k] {
			return true
		}
	}
	return false
}

// MarkNecessary sets Draw.Necessary on every vertex of ringID whose two
// incident edges carry different ring sets.
func (d *Detector) MarkNecessary(ringID int, ring geo.Drawvec) geo.Drawvec {
	pts := ringVertices(ring)
	n := len(pts)
	if n == 0 {
		return ring
	}
	necessary := make([]bool, n)
	for i := 0; i < n; i++ {
		prev := (i - 1 + n) % n
		edgePrev := d.edgeRings[makeEdgeKey(pts[prev], pts[i])]
		edgeNext := d.edgeRings[makeEdgeKey(pts[i], pts[(i+1)%n])]
		if ringSetsDiffer(edgePrev, edgeNext) {
			necessary[i] = true
		}
	}
	out := ring.Clone()
	vi := 0
	for i := range out {
		if out[i].Op == geo.MoveTo || out[i].Op == geo.LineTo {
			out[i].Necessary = necessary[vi]
			vi++
		}
	}
	return out
}

// RotateToNecessary rotates ring so it begins at a necessary vertex, or
// at the lexicographically smallest vertex if none is necessary.
func RotateToNecessary(ring geo.Drawvec) geo.Drawvec {
	pts := ringVertices(ring)
	if len(pts) == 0 {
		return ring
	}
	start := -1
	for i, p := range pts {
		if p.Necessary {
			start = i
			break
		}
	}
	if start < 0 {
		start = smallestIndex(pts)
	}
	if start == 0 {
		return ring
	}
	rotated := append(append(geo.Drawvec{}, pts[start:]...), pts[:start]...)
	out := make(geo.Drawvec, 0, len(rotated)+1)
	for i, p := range rotated {
		op := geo.LineTo
		if i == 0 {
			op = geo.MoveTo
		}
		out = append(out, geo.Draw{Op: op, X: p.X, Y: p.Y, Necessary: p.Necessary})
	}
	return out
}

func smallestIndex(pts []geo.Draw) int {
	best := 0
	for i := 1; i < len(pts); i++ {
		if pts[i].Less(pts[best]) {
			best = i
		}
	}
	return best
}

// Arc is a maximal run of a ring between two necessary vertices.
type Arc struct {
	Points  []geo.Draw
	Forward bool // false if this occurrence is the reverse of the interned arc
}

// SplitArcs divides a rotated ring (its first vertex is necessary, or the
// ring has no necessary vertices at all) into arcs at each necessary
// vertex.
func SplitArcs(ring geo.Drawvec) []Arc {
	pts := ringVertices(ring)
	if len(pts) == 0 {
		return nil
	}
	var arcs []Arc
	cur := []geo.Draw{pts[0]}
	for i := 1; i < len(pts); i++ {
		cur = append(cur, pts[i])
		if pts[i].Necessary {
			arcs = append(arcs, Arc{Points: cur})
			cur = []geo.Draw{pts[i]}
		}
	}
	cur = append(cur, pts[0])
	arcs = append(arcs, Arc{Points: cur})
	return arcs
}

// arcKey hashes an arc so that an arc and its reverse intern to the same
// key, with forward=false marking the reverse occurrence.
func arcKey(pts []geo.Draw) (key string, forward bool) {
	fwd := arcString(pts)
	rev := make([]geo.Draw, len(pts))
	for i, p := range pts {
		rev[len(pts)-1-i] = p
	}
	bwd := arcString(rev)
	if fwd <= bwd {
		return fwd, true
	}
	return bwd, false
}

func arcString(pts []geo.Draw) string {
	out := ""
	for _, p := range pts {
		out += coordKey(p.X, p.Y) + ","
	}
	return out
}

func coordKey(x, y int64) string {
	return strconv.FormatInt(x, 10) + ":" + strconv.FormatInt(y, 10)
}

// Pool interns arcs by key, so that two rings sharing the same border
// reuse a single simplified arc instead of simplifying it twice with
// potentially divergent results.
type Pool struct {
	arcs map[string]geo.Drawvec
}

func NewPool() *Pool { return &Pool{arcs: make(map[string]geo.Drawvec)} }

// Intern returns the canonical (possibly already-simplified) arc for pts,
// storing it on first sight.
func (p *Pool) Intern(pts []geo.Draw) (key string, forward bool) {
	key, forward = arcKey(pts)
	if _, ok := p.arcs[key]; !ok {
		canon := pts
		if !forward {
			canon = make([]geo.Draw, len(pts))
			for i, q := range pts {
				canon[len(pts)-1-i] = q
			}
		}
		p.arcs[key] = geo.Drawvec(canon)
	}
	return key, forward
}

// Simplify runs simplify_lines once per interned arc using the global
// tolerance, replacing every interned arc with its simplified form.
func (p *Pool) Simplify(opts geo.SimplifyOptions) {
	for k, arc := range p.arcs {
		// arc's points come from the middle of a ring, so only the
		// ring's true first vertex (if any) carries Op == MoveTo.
		// SimplifyLines splits on MoveTo to find ring boundaries, so an
		// arc without one at index 0 would look ring-less and vanish.
		oped := make(geo.Drawvec, len(arc))
		copy(oped, arc)
		for i := range oped {
			if i == 0 {
				oped[i].Op = geo.MoveTo
			} else {
				oped[i].Op = geo.LineTo
			}
		}
		p.arcs[k] = geo.SimplifyLines(oped, opts)
	}
}

// Arc looks up the (possibly simplified) canonical points for key,
// reversed back into the orientation the caller originally interned if
// forward is false.
func (p *Pool) Arc(key string, forward bool) geo.Drawvec {
	canon := p.arcs[key]
	if forward {
		return canon
	}
	out := make(geo.Drawvec, len(canon))
	for i, q := range canon {
		out[len(canon)-1-i] = q
	}
	return out
}
