// SPDX-License-Identifier: MIT

// Package render implements the per-tile rendering engine: filter and
// classify, clip, simplify, quantize, clean, coalesce, encode, and the
// byte-size retry loop.
package render

import "github.com/brawer/tilekiln/internal/geo"

// QuickCheck classifies a feature's world bbox against a tile+buffer
// rectangle without running a full clip.
//
// fullyInside reports whether the bbox lies entirely within bbox (so the
// geometry can be kept unmodified); duplicationRisk reports whether the
// feature's bbox crosses into a neighbouring tile enough that, absent
// clipping, the same feature could be emitted by more than one tile.
//
// An unresolved question in the upstream tool ("quick_check treats quick==1 &&
// prevent_duplication as a full-clip path ... the point-within-tile test
// used is half-open, which can cause a feature exactly on a tile corner
// to vanish"), this implementation preserves that half-open asymmetry
// rather than silently fixing it: Contains is inclusive-low/exclusive-high,
// so a feature whose bbox touches bbox.MaxX/MaxY exactly is reported as
// NOT fully inside, matching the documented corner-case behaviour.
func QuickCheck(fbbox, tile geo.BBox, preventDuplication bool) (fullyInside, duplicationRisk bool) {
	fullyInside = tile.Contains(fbbox.MinX, fbbox.MinY) && tile.Contains(fbbox.MaxX, fbbox.MaxY)
	outsideCore := fbbox.MinX < tile.MinX || fbbox.MinY < tile.MinY || fbbox.MaxX > tile.MaxX || fbbox.MaxY > tile.MaxY
	duplicationRisk = preventDuplication && outsideCore
	return fullyInside, duplicationRisk
}
