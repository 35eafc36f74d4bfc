// SPDX-License-Identifier: MIT

// Package minzoom assigns each sorted feature the lowest zoom level at
// which it must appear: a per-zoom drop-state machine walks the
// radix-sorted feature stream once, counting how many features fall into
// the same tile at each zoom level and comparing against a
// droprate-derived interval.
package minzoom

import (
	"math"

	"github.com/brawer/tilekiln/internal/geo"
)

// dropState is one entry of the per-zoom `ds[0..maxzoom]` array.
type dropState struct {
	x, y      uint32
	valid     bool
	seq       uint64
	prevIndex uint64
}

// Assigner holds the precomputed interval/scale tables and per-zoom
// running state for one sorted pass over the feature stream. It is not
// safe for concurrent use: the radix-sorted stream is consumed by a
// single goroutine, matching the per-shard worker model used downstream.
type Assigner struct {
	maxZoom  uint8
	baseZoom uint8
	dropRate float64

	interval []float64 // interval[z]
	scale    []float64 // scale[z], curve distance per tile-pixel
	state    []dropState
}

// NewAssigner precomputes interval[z] = droprate^(basezoom-z) for z <
// basezoom (else 0) and scale[z] = 2^(64-2*(z+8)).
func NewAssigner(maxZoom, baseZoom uint8, dropRate float64) *Assigner {
	a := &Assigner{
		maxZoom:  maxZoom,
		baseZoom: baseZoom,
		dropRate: dropRate,
		interval: make([]float64, maxZoom+1),
		scale:    make([]float64, maxZoom+1),
		state:    make([]dropState, maxZoom+1),
	}
	for z := uint8(0); z <= maxZoom; z++ {
		if z < baseZoom {
			a.interval[z] = math.Pow(dropRate, float64(baseZoom-z))
		} else {
			a.interval[z] = 0
		}
		a.scale[z] = math.Pow(2, float64(64-2*(int(z)+8)))
	}
	return a
}

// Assign runs one sorted feature's curve key through the drop-state
// machine and returns its feature_minzoom: for each zoom
// from maxzoom down to 0, recompute the tile the key falls in at that
// zoom and reset that zoom's (seq, prevIndex) if the tile changed; then
// walk zooms 0 upward and return the first whose running count has
// reached its interval.
//
// geomType, dropLines and dropPolygons implement the "lines/polygons
// default to minzoom 0 unless drop-lines/drop-polygons is set" rule.
func (a *Assigner) Assign(key uint64, geomType geo.GeometryType, dropLines, dropPolygons bool) uint8 {
	if geomType == geo.Line && !dropLines {
		return 0
	}
	if geomType == geo.Polygon && !dropPolygons {
		return 0
	}

	for z := int(a.maxZoom); z >= 0; z-- {
		x, y := tileAt(key, uint8(z))
		st := &a.state[z]
		if !st.valid || st.x != x || st.y != y {
			st.x, st.y = x, y
			st.valid = true
			st.seq = 0
			st.prevIndex = 0
		}
		st.seq++
		st.prevIndex = key
	}

	for z := uint8(0); z <= a.maxZoom; z++ {
		st := &a.state[z]
		if float64(st.seq) >= a.interval[z] {
			return z
		}
	}
	return a.maxZoom
}

// tileAt extracts the z-level tile coordinate pair a 64-bit interleaved
// key falls into, i.e. (x >> (32-z), y >> (32-z)) after de-interleaving.
func tileAt(key uint64, z uint8) (uint32, uint32) {
	x, y := geo.Decode(key)
	shift := uint(32 - int(z))
	if z == 0 {
		return 0, 0
	}
	return x >> shift, y >> shift
}
