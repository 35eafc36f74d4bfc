// SPDX-License-Identifier: MIT

package minzoom

import "math"

// PreflightResult is the outcome of the index-scanning pass that
// auto-chooses basezoom and droprate when the caller left them unset.
type PreflightResult struct {
	BaseZoom uint8
	DropRate float64
}

// tileCounts tracks, per zoom, the largest number of features observed
// falling into any single tile, via one streaming pass over already-sorted
// keys, generalized to a per-zoom max-bucket count.
type tileCounts struct {
	maxPerTile []uint64
	curX       []uint32
	curY       []uint32
	curCount   []uint64
	valid      []bool
}

func newTileCounts(maxZoom uint8) *tileCounts {
	n := int(maxZoom) + 1
	return &tileCounts{
		maxPerTile: make([]uint64, n),
		curX:       make([]uint32, n),
		curY:       make([]uint32, n),
		curCount:   make([]uint64, n),
		valid:      make([]bool, n),
	}
}

func (tc *tileCounts) observe(key uint64, maxZoom uint8) {
	for z := uint8(0); z <= maxZoom; z++ {
		x, y := tileAt(key, z)
		if !tc.valid[z] || tc.curX[z] != x || tc.curY[z] != y {
			tc.valid[z] = true
			tc.curX[z], tc.curY[z] = x, y
			tc.curCount[z] = 0
		}
		tc.curCount[z]++
		if tc.curCount[z] > tc.maxPerTile[z] {
			tc.maxPerTile[z] = tc.curCount[z]
		}
	}
}

// Preflight scans sorted index keys (a radix-sorted stream, so tile
// membership changes monotonically and the single-pass bucket counter
// above is exact) and picks the minimum zoom at which every tile holds
// fewer than maxFeaturesPerTile features. The "50000 / marker_width^2"
// default threshold is passed in by the caller since marker_width is a
// rendering concern outside this package.
//
// keys must be supplied in ascending sorted order, matching the output
// of internal/extsortkey.RadixSort/SortExternal.
func Preflight(keys func(yield func(uint64) bool), maxZoom uint8, maxFeaturesPerTile uint64, dropRate float64) PreflightResult {
	tc := newTileCounts(maxZoom)
	keys(func(k uint64) bool {
		tc.observe(k, maxZoom)
		return true
	})

	baseZoom := maxZoom
	for z := uint8(0); z <= maxZoom; z++ {
		if tc.maxPerTile[z] < maxFeaturesPerTile {
			baseZoom = z
			break
		}
	}

	if dropRate <= 0 {
		dropRate = autoDropRate(tc, baseZoom, maxZoom)
	}

	return PreflightResult{BaseZoom: baseZoom, DropRate: dropRate}
}

// autoDropRate picks the smallest droprate such that interval[0] would
// still reduce the root tile's feature count under the per-tile budget,
// generalizing the ratio observed between the busiest tile at basezoom
// and at zoom 0.
func autoDropRate(tc *tileCounts, baseZoom, maxZoom uint8) float64 {
	if baseZoom == 0 || tc.maxPerTile[0] == 0 {
		return 2.5 // the documented default
	}
	ratio := float64(tc.maxPerTile[0]) / float64(tc.maxPerTile[baseZoom])
	if ratio <= 1 {
		return 2.5
	}
	rate := math.Pow(ratio, 1/float64(baseZoom))
	if rate < 1.0 {
		return 2.5
	}
	return rate
}
