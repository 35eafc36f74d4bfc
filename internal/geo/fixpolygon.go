// SPDX-License-Identifier: MIT

package geo

// FixPolygon ensures each ring is closed and correctly wound (outer rings
// positive area, inner rings negative, per world-coordinate shoelace sign),
// then rotates each ring so that the vertex farthest from the ring
// centroid — and, among ties, farthest from that vertex — becomes the
// start/end point. Simplification always retains ring endpoints, so this
// placement spends those "free" retained points where they matter least.
//
// FixPolygon is idempotent: FixPolygon(FixPolygon(g)) == FixPolygon(g),
// since closure, winding and the farthest-point rotation are all
// deterministic functions of the ring's vertex set.
func FixPolygon(geom Drawvec) Drawvec {
	var out Drawvec
	for i, ring := range geom.Rings() {
		fixed := fixRing(ring, i == 0)
		out = append(out, fixed...)
	}
	return out
}

func fixRing(ring Drawvec, outer bool) Drawvec {
	pts := ringPoints(ring)
	if len(pts) < 3 {
		return nil
	}

	area := RingArea(Drawvec(pts))
	wantPositive := outer
	if (area > 0) != wantPositive {
		reverse(pts)
	}

	start := farthestRotationStart(pts)
	pts = rotate(pts, start)

	out := make(Drawvec, 0, len(pts)+1)
	for i, p := range pts {
		op := LineTo
		if i == 0 {
			op = MoveTo
		}
		out = append(out, Draw{Op: op, X: p.X, Y: p.Y})
	}
	// Close the ring explicitly.
	out = append(out, Draw{Op: LineTo, X: pts[0].X, Y: pts[0].Y})
	return out
}

func reverse(pts []Draw) {
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
}

func rotate(pts []Draw, start int) []Draw {
	if start == 0 {
		return pts
	}
	out := make([]Draw, len(pts))
	for i := range pts {
		out[i] = pts[(start+i)%len(pts)]
	}
	return out
}

// farthestRotationStart finds the vertex farthest from the centroid, then
// among the points tied for farthest (there usually aren't ties at integer
// precision) takes the (Y,X)-smallest tied vertex as anchor and picks the
// tied vertex farthest from it, remaining ties going to the (Y,X)-smallest.
// The choice depends only on the ring's vertex set, not on which vertex the
// ring starts at, which keeps FixPolygon idempotent.
func farthestRotationStart(pts []Draw) int {
	cx, cy := Centroid(Drawvec(pts))
	best := 0
	bestDist := -1.0
	var tied []int
	for i, p := range pts {
		d := sqDist(float64(p.X), float64(p.Y), cx, cy)
		if d > bestDist {
			bestDist = d
			best = i
			tied = tied[:0]
			tied = append(tied, i)
		} else if d == bestDist {
			tied = append(tied, i)
		}
	}
	if len(tied) < 2 {
		return best
	}
	anchor := pts[tied[0]]
	for _, i := range tied[1:] {
		if pts[i].Less(anchor) {
			anchor = pts[i]
		}
	}
	bestSecond := tied[0]
	bestSecondDist := -1.0
	for _, i := range tied {
		p := pts[i]
		d := sqDist(float64(p.X), float64(p.Y), float64(anchor.X), float64(anchor.Y))
		if d > bestSecondDist || (d == bestSecondDist && p.Less(pts[bestSecond])) {
			bestSecondDist = d
			bestSecond = i
		}
	}
	return bestSecond
}

func sqDist(x1, y1, x2, y2 float64) float64 {
	dx, dy := x1-x2, y1-y2
	return dx*dx + dy*dy
}

// CleanDuplicatePoints collapses consecutive duplicate vertices within a
// ring, a pre-pass run before handing rings to the polygon union engine:
// the union engine chokes on zero-length edges.
func CleanDuplicatePoints(geom Drawvec) Drawvec {
	var out Drawvec
	for _, ring := range geom.Rings() {
		if len(ring) == 0 {
			continue
		}
		cleaned := make(Drawvec, 0, len(ring))
		cleaned = append(cleaned, ring[0])
		for _, p := range ring[1:] {
			if !p.Equal(cleaned[len(cleaned)-1]) {
				cleaned = append(cleaned, p)
			}
		}
		out = append(out, cleaned...)
	}
	return out
}
