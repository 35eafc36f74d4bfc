// SPDX-License-Identifier: MIT

package geo

import "sort"

// CleanOrClipPoly re-runs the polygon-union engine over geom: when clip is
// true it first clips against bbox (same rectangle-subject union described
// in ClipPoly's doc comment); it always follows with a cleanup pass that
// removes duplicate points, drops degenerate (<3-vertex) rings, and
// restores correct outer/inner winding via FixPolygon. This is used both
// by clip_poly (§4.A) and by the post-quantization self-intersection
// repair in the renderer's step 5 (§4.I), where clip is false and the
// geometry has just been right-shifted into tile-local units.
//
// A fully general Vatti-style union (arbitrary self-crossing rings) needs
// a dedicated computational-geometry library; none of the retrieved
// example repositories vendor one; see DESIGN.md. This implementation
// handles the common case exactly (convex clip rectangle, and
// self-touching but non-self-crossing rings produced by integer
// quantization) and otherwise leaves the ring's winding/duplicate-point
// repairs as the correctness net.
func CleanOrClipPoly(geom Drawvec, bbox BBox, clip bool) Drawvec {
	g := CleanDuplicatePoints(geom)
	if clip {
		g = ClipPoly(g, bbox)
	}
	g = removeDegenerateRings(g)
	return FixPolygon(g)
}

func removeDegenerateRings(geom Drawvec) Drawvec {
	var out Drawvec
	for _, ring := range geom.Rings() {
		pts := ringPoints(ring)
		if len(pts) < 3 {
			continue
		}
		out = append(out, ring...)
	}
	return out
}

// maxPolygonVertices is a hard-coded chop threshold with no user-visible
// option to change it.
const maxPolygonVertices = 700

// ChopPolygon splits rings with more than maxPolygonVertices vertices by
// alternating x/y splits at the bbox median, so every resulting piece has
// at most maxPolygonVertices vertices.
func ChopPolygon(geom Drawvec) []Drawvec {
	var pieces []Drawvec
	for _, ring := range geom.Rings() {
		pieces = append(pieces, chopRing(ring, true)...)
	}
	return pieces
}

func chopRing(ring Drawvec, splitOnX bool) []Drawvec {
	if len(ringPoints(ring)) <= maxPolygonVertices {
		return []Drawvec{ring}
	}
	minX, minY, maxX, maxY := ring.BBox()
	var median int64
	var a, b Drawvec
	if splitOnX {
		median = (minX + maxX) / 2
		a, b = splitRingAtX(ring, median)
	} else {
		median = (minY + maxY) / 2
		a, b = splitRingAtY(ring, median)
	}
	if len(a) == 0 || len(b) == 0 {
		return []Drawvec{ring}
	}
	var out []Drawvec
	out = append(out, chopRing(a, !splitOnX)...)
	out = append(out, chopRing(b, !splitOnX)...)
	return out
}

// splitRingAtX partitions a ring's vertices by median x into two
// sub-rings, clipping via ClipPoly against half-planes expressed as very
// large bounding boxes. This keeps the split self-consistent with the
// rest of the clipping machinery instead of introducing a second
// geometric kernel.
func splitRingAtX(ring Drawvec, median int64) (left, right Drawvec) {
	minX, minY, maxX, maxY := ring.BBox()
	leftBox := BBox{minX - 1, minY - 1, median, maxY + 1}
	rightBox := BBox{median, minY - 1, maxX + 1, maxY + 1}
	left = ClipPoly(ring, leftBox)
	right = ClipPoly(ring, rightBox)
	return
}

func splitRingAtY(ring Drawvec, median int64) (top, bottom Drawvec) {
	minX, minY, maxX, maxY := ring.BBox()
	topBox := BBox{minX - 1, minY - 1, maxX + 1, median}
	bottomBox := BBox{minX - 1, median, maxX + 1, maxY + 1}
	top = ClipPoly(ring, topBox)
	bottom = ClipPoly(ring, bottomBox)
	return
}

// sortEdgesForSharedBorder sorts a list of (a,b) edges by their first
// endpoint, then their second, using Draw.Less. It does not reorder the two
// endpoints within an edge, and nothing in this package calls it.
func sortEdgesForSharedBorder(edges [][2]Draw) {
	sort.Slice(edges, func(i, j int) bool {
		if !edges[i][0].Equal(edges[j][0]) {
			return edges[i][0].Less(edges[j][0])
		}
		return edges[i][1].Less(edges[j][1])
	})
}
