// SPDX-License-Identifier: MIT

package render

import (
	"github.com/brawer/tilekiln/internal/filter"
	"github.com/brawer/tilekiln/internal/geo"
)

// ClassifyOptions bundles the per-attempt tunables the classify step
// needs: the current zoom/detail/buffer, the gamma/fraction thinning
// state (reset at the start of each retry), and layer filters.
type ClassifyOptions struct {
	Z, Detail          uint8
	Buffer             int64
	Gamma              float64
	Scale              float64 // curve distance per tile-pixel at Z
	Fraction           float64 // dynamic-drop kept-fraction f
	PreventClipping    bool
	ReduceTinyPolygons bool
	Filters            filter.LayerFilters
	Warn               func(string, ...interface{})
}

// classifyResult is what step 1 produces for one feature.
type classifyResult struct {
	feature *Feature
	// keep reports whether the feature belongs in THIS tile's rendered
	// output (minzoom/maxzoom/filter/gamma/fraction all passed). emit is
	// broader: it reports whether the feature touched the tile at all,
	// which is all re-emission to child tiles requires (the clip test
	// runs before the minzoom/gamma/fraction gates, so a feature not yet
	// due to appear at z can still need to propagate down to the zoom
	// where it does).
	keep    bool
	emit    bool
	reduced bool
	ghost   geo.Drawvec // emitted when reduce_tiny_poly drops to a ghost marker
}

// Classify runs the classify step (filter/classify/clip/gamma/drop/reduce)
// over one tile's candidate features, in curve-key order (features must
// already be sorted by Index — the radix sort's postcondition — so that
// gamma spacing and fractional-drop accumulation are reproducible from
// any tile).
//
// Gating order matters: the quick-check/clip test alone decides whether a
// feature touches this tile and is therefore eligible for re-emission to
// the children; the minzoom/maxzoom/filter/gamma/fraction gates below
// only decide whether it additionally belongs in this tile's own
// rendered content. Testing minzoom before clipping would silently drop
// a feature from every zoom between 0 and its own minzoom, since it
// would never be carried forward to reach the zoom where it is due.
func Classify(tileBBox geo.BBox, features []*Feature, opts ClassifyOptions) []classifyResult {
	results := make([]classifyResult, 0, len(features))
	gamma := &GammaState{}
	var dropAccum float64
	var reduceAccum float64

	bufferedBBox := tileBBox.Buffered(opts.Buffer)

	for _, f := range features {
		fullyInside, dupRisk := QuickCheck(f.BBox, bufferedBBox, opts.PreventClipping)
		clipped := f.Clone()
		if !fullyInside || dupRisk {
			switch f.GeomType {
			case geo.Point:
				clipped.Geometry = geo.ClipPoint(f.Geometry, bufferedBBox)
			case geo.Line:
				clipped.Geometry = geo.ClipLines(f.Geometry, bufferedBBox)
			case geo.Polygon:
				clipped.Geometry = geo.ClipPoly(f.Geometry, bufferedBBox)
			}
			if len(clipped.Geometry) == 0 {
				continue
			}
		}

		res := classifyResult{feature: clipped, emit: true}

		keep := true
		if f.MinZoom > opts.Z {
			keep = false
		}
		if f.HasMax && f.MaxZoom < opts.Z {
			keep = false
		}
		if keep {
			ctx := &filter.Context{
				Attrs: f.Attrs,
				ID:    f.ID,
				HasID: f.HasID,
				Type:  f.GeomType.String(),
				Zoom:  opts.Z,
				Warn:  opts.Warn,
			}
			if opts.Filters != nil && !opts.Filters.Eval(f.Layer, ctx) {
				keep = false
			}
		}
		if keep && f.GeomType == geo.Point && opts.Gamma > 0 {
			if !gamma.Accept(f.Index, opts.Scale, opts.Gamma) {
				keep = false
			}
		}
		if keep && opts.Fraction < 1.0 {
			dropAccum += opts.Fraction
			if dropAccum < 1.0 {
				keep = false
			} else {
				dropAccum -= 1.0
			}
		}
		res.keep = keep

		if keep && opts.ReduceTinyPolygons && clipped.GeomType == geo.Polygon {
			reducedGeom, wasReduced := geo.ReduceTinyPoly(clipped.Geometry, geo.ReduceTinyPolyOptions{
				Zoom:   opts.Z,
				Detail: opts.Detail,
			}, &reduceAccum)
			if wasReduced {
				clipped.Geometry = reducedGeom
				clipped.reduced = true
				res.reduced = true
			}
		}
		results = append(results, res)
	}
	return results
}
