// SPDX-License-Identifier: MIT

package render

import (
	"math"

	"github.com/brawer/tilekiln/internal/geo"
)

// Quantize rescales a world-32 geometry down to tile-local units: the
// tile's world-space origin (tileX/tileY scaled by the tile's span at z)
// is subtracted first, then the result is right-shifted by
// (32 - detail - z) so it lands in [0, 1<<detail).
func Quantize(geom geo.Drawvec, z, detail uint8, tileX, tileY uint32) geo.Drawvec {
	shift := uint(32 - int(detail) - int(z))
	originShift := uint(32 - int(z))
	originX := int64(tileX) << originShift
	originY := int64(tileY) << originShift
	out := make(geo.Drawvec, len(geom))
	for i, p := range geom {
		q := p
		if p.Op == geo.MoveTo || p.Op == geo.LineTo {
			q.X = (p.X - originX) >> shift
			q.Y = (p.Y - originY) >> shift
		}
		out[i] = q
	}
	return out
}

// ReviveOptions carries what revive_polygon needs to recover a ring that
// simplification reduced below 4 vertices.
type ReviveOptions struct {
	PreSimplifyArea float64
}

// RevivePolygon replaces an under-simplified ring (fewer than 4 vertices,
// which can no longer describe a closed polygon) with a minimal square
// centred on the ring's original centroid and sized to preserve its
// pre-simplification area, so the feature does not silently vanish.
func RevivePolygon(original geo.Drawvec, simplified geo.Drawvec) geo.Drawvec {
	if len(simplified) >= 4 {
		return simplified
	}
	area := geo.RingArea(original)
	if area < 0 {
		area = -area
	}
	if area == 0 {
		return simplified
	}
	cx, cy := geo.Centroid(original)
	half := math.Sqrt(area) / 2
	x0, y0 := int64(cx-half), int64(cy-half)
	x1, y1 := int64(cx+half), int64(cy+half)
	return geo.Drawvec{
		{Op: geo.MoveTo, X: x0, Y: y0},
		{Op: geo.LineTo, X: x1, Y: y0},
		{Op: geo.LineTo, X: x1, Y: y1},
		{Op: geo.LineTo, X: x0, Y: y1},
		{Op: geo.ClosePath},
	}
}
