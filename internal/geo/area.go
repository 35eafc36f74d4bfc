// SPDX-License-Identifier: MIT

package geo

// Area computes the signed shoelace area of ring d[i:j]. Sign is the
// authoritative winding indicator (positive = counter-clockwise with the
// y axis pointing up, i.e. clockwise as drawn in y-down world
// coordinates). If
// intermediate products would overflow float64's exact 2^53 integer
// range, coordinates are progressively scaled down and the scale factor
// is reinstated in the result.
func Area(d Drawvec, i, j int) float64 {
	scale := 1.0
	for {
		var sum float64
		overflowed := false
		for k := i; k < j; k++ {
			p1 := d[k]
			var p2 Draw
			if k+1 < j {
				p2 = d[k+1]
			} else {
				p2 = d[i]
			}
			x1, y1 := float64(p1.X)/scale, float64(p1.Y)/scale
			x2, y2 := float64(p2.X)/scale, float64(p2.Y)/scale
			term := x1*y2 - x2*y1
			if term > (1<<53) || term < -(1<<53) {
				overflowed = true
				break
			}
			sum += term
		}
		if !overflowed {
			return sum * scale * scale / 2.0
		}
		scale *= 65536
	}
}

// RingArea is a convenience wrapper over a whole ring.
func RingArea(ring Drawvec) float64 {
	return Area(ring, 0, len(ring))
}

// Centroid returns the arithmetic mean of a ring's vertices, used as the
// anchor for FixPolygon's rotation and for tiny-polygon replacement
// squares.
func Centroid(ring Drawvec) (cx, cy float64) {
	if len(ring) == 0 {
		return 0, 0
	}
	var sx, sy float64
	for _, p := range ring {
		sx += float64(p.X)
		sy += float64(p.Y)
	}
	n := float64(len(ring))
	return sx / n, sy / n
}
