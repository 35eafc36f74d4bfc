// SPDX-License-Identifier: MIT

package geo

import "math"

// Algorithm selects the line-simplification strategy for SimplifyLines.
type Algorithm int

const (
	DouglasPeucker Algorithm = iota
	Visvalingam
)

// SimplifyOptions bundles the parameters simplify_lines needs.
// SharedNodes, if non-nil, marks points whose (x,y) are
// present as Necessary, same as tile-boundary points when MarkTileBounds.
type SimplifyOptions struct {
	Zoom            uint8
	Detail          uint8
	Buffer          int64
	Algorithm       Algorithm
	Simplification  float64
	Retain          int // force at least this many points per ring; 0 disables
	SharedNodes     map[[2]int64]bool
	MarkTileBounds  bool
}

// Tolerance computes (1<<(32-z-detail)) * simplification.
func Tolerance(z uint8, detail uint8, simplification float64) float64 {
	shift := 32 - int(z) - int(detail)
	if shift < 0 {
		shift = 0
	}
	return float64(int64(1)<<uint(shift)) * simplification
}

// SimplifyLines simplifies each ring of geom in place (returning a new
// Drawvec). First/last vertex of each ring is always kept; points marked
// Necessary (tile-boundary crossings, shared-border vertices) are never
// removed; Retain forces at least that many points to survive regardless
// of tolerance.
func SimplifyLines(geom Drawvec, opts SimplifyOptions) Drawvec {
	tol := Tolerance(opts.Zoom, opts.Detail, opts.Simplification)
	var out Drawvec
	for _, ring := range geom.Rings() {
		out = append(out, simplifyRing(ring, tol, opts)...)
	}
	return out
}

func simplifyRing(ring Drawvec, tol float64, opts SimplifyOptions) Drawvec {
	if len(ring) < 3 {
		return ring
	}
	marked := make([]bool, len(ring))
	marked[0] = true
	marked[len(ring)-1] = true
	for i, p := range ring {
		if p.Necessary {
			marked[i] = true
		}
		if opts.MarkTileBounds && onTileBound(p, opts.Zoom, opts.Detail) {
			marked[i] = true
		}
		if opts.SharedNodes != nil && opts.SharedNodes[[2]int64{p.X, p.Y}] {
			marked[i] = true
		}
	}

	switch opts.Algorithm {
	case Visvalingam:
		visvalingamMark(ring, marked, tol, opts.Retain)
	default:
		douglasPeuckerMark(ring, 0, len(ring)-1, marked, tol, opts.Retain)
	}

	out := make(Drawvec, 0, len(ring))
	for i, p := range ring {
		if marked[i] {
			p.Necessary = marked[i]
			out = append(out, p)
		}
	}
	// Preserve the op of the first point (MoveTo) and the rest (LineTo).
	for i := range out {
		if i == 0 {
			out[i].Op = MoveTo
		} else {
			out[i].Op = LineTo
		}
	}
	return out
}

func onTileBound(p Draw, z, detail uint8) bool {
	extent := int64(1) << detail
	_ = z
	return p.X == 0 || p.Y == 0 || p.X == extent || p.Y == extent
}

// douglasPeuckerMark marks points between ring[i] and ring[j] (inclusive)
// that must be retained, recursing on the point of maximum perpendicular
// deviation whenever it exceeds tol. retain, if >0, forces recursion to
// continue (ignoring tol) until at least that many interior points survive.
func douglasPeuckerMark(ring Drawvec, i, j int, marked []bool, tol float64, retain int) {
	if j <= i+1 {
		return
	}
	maxDist := -1.0
	maxIdx := -1
	for k := i + 1; k < j; k++ {
		d := perpendicularDistance(ring[k], ring[i], ring[j])
		if d > maxDist {
			maxDist = d
			maxIdx = k
		}
	}
	if maxIdx < 0 {
		return
	}
	forceRetain := retain > 0 && countMarked(marked) < retain+2
	if maxDist > tol || forceRetain {
		marked[maxIdx] = true
		douglasPeuckerMark(ring, i, maxIdx, marked, tol, retain)
		douglasPeuckerMark(ring, maxIdx, j, marked, tol, retain)
	}
}

func countMarked(marked []bool) int {
	n := 0
	for _, m := range marked {
		if m {
			n++
		}
	}
	return n
}

func perpendicularDistance(p, a, b Draw) float64 {
	dx := float64(b.X - a.X)
	dy := float64(b.Y - a.Y)
	if dx == 0 && dy == 0 {
		ex := float64(p.X - a.X)
		ey := float64(p.Y - a.Y)
		return math.Hypot(ex, ey)
	}
	num := math.Abs(dy*float64(p.X-a.X) - dx*float64(p.Y-a.Y))
	den := math.Hypot(dx, dy)
	return num / den
}

// visvalingamMark implements Visvalingam-Whyatt: repeatedly drop the point
// whose triangle area (with its surviving neighbours) is smallest, until
// the smallest remaining area exceeds a tolerance-derived threshold, or
// retain interior points remain.
func visvalingamMark(ring Drawvec, marked []bool, tol float64, retain int) {
	n := len(ring)
	alive := make([]bool, n)
	for i := range alive {
		alive[i] = true
	}
	threshold := tol * tol // area scales quadratically with tolerance
	remaining := n
	for {
		minArea := math.Inf(1)
		minIdx := -1
		prev := -1
		for i := 1; i < n-1; i++ {
			if !alive[i] {
				continue
			}
			if prev < 0 {
				prev = 0
			}
			left := ringNeighbor(alive, i, -1)
			right := ringNeighbor(alive, i, 1)
			if left < 0 || right < 0 {
				continue
			}
			area := math.Abs(RingArea(Drawvec{ring[left], ring[i], ring[right]})) * 2
			if area < minArea {
				minArea = area
				minIdx = i
			}
		}
		if minIdx < 0 {
			break
		}
		if minArea > threshold && (retain <= 0 || remaining <= retain+2) {
			break
		}
		alive[minIdx] = false
		remaining--
		if retain > 0 && remaining <= retain+2 {
			break
		}
	}
	for i := 0; i < n; i++ {
		if alive[i] {
			marked[i] = true
		}
	}
}

func ringNeighbor(alive []bool, i, dir int) int {
	for k := i + dir; k >= 0 && k < len(alive); k += dir {
		if alive[k] {
			return k
		}
	}
	return -1
}
