// SPDX-License-Identifier: MIT

package geo

// ReduceTinyPolyOptions configures ReduceTinyPoly.
type ReduceTinyPolyOptions struct {
	Zoom   uint8
	Detail uint8
	// EmitGhost keeps a marker for dropped polygons instead of discarding
	// them outright, so debugging tools can show where area was discarded.
	// The marker is the same 1x1 square an emitted tiny polygon gets. Off
	// by default.
	EmitGhost bool
}

// ReduceTinyPoly replaces polygons whose absolute area is <= 1 square unit
// of geom's own coordinates with a square 1 unit on a side at the first
// vertex. The threshold is not scaled by opts.Zoom or opts.Detail, which
// are not used. Inner rings
// of a dropped outer ring subtract from an accumulator rather than being
// drawn; the accumulated area threshold decides whether any square is
// emitted at all for the whole multi-ring geometry.
func ReduceTinyPoly(geom Drawvec, opts ReduceTinyPolyOptions, accum *float64) (out Drawvec, reduced bool) {
	pixelArea := 1.0
	rings := geom.Rings()
	if len(rings) == 0 {
		return geom, false
	}

	outerArea := RingArea(rings[0])
	if absf(outerArea) > pixelArea {
		// Not tiny: pass through unmodified, but still account for any
		// inner rings that individually are tiny slivers — conservatively
		// we keep the whole polygon as-is.
		return geom, false
	}

	*accum += outerArea
	for _, inner := range rings[1:] {
		*accum += RingArea(inner)
	}

	if absf(*accum) < pixelArea {
		if opts.EmitGhost {
			return ghostSquare(rings[0]), true
		}
		return nil, true
	}

	*accum = 0
	return tinySquare(rings[0]), true
}

func tinySquare(ring Drawvec) Drawvec {
	if len(ring) == 0 {
		return nil
	}
	x, y := ring[0].X, ring[0].Y
	return Drawvec{
		{Op: MoveTo, X: x, Y: y},
		{Op: LineTo, X: x + 1, Y: y},
		{Op: LineTo, X: x + 1, Y: y + 1},
		{Op: LineTo, X: x, Y: y + 1},
		{Op: LineTo, X: x, Y: y},
	}
}

// ghostSquare is identical in shape to tinySquare but callers are expected
// to treat it as a non-rendered diagnostic marker.
func ghostSquare(ring Drawvec) Drawvec {
	return tinySquare(ring)
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
