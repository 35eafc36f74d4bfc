// SPDX-License-Identifier: MIT

package render

import "github.com/brawer/tilekiln/internal/geo"

// Feature is the renderer's working copy of one feature: a resolved
// serial.Feature plus the layer name and decoded attribute map that the
// pipeline's string-pool lookup has already filled in. This package
// works on decoded attributes, not raw pool offsets — the
// offset-vs-string resolution is the ingest/pipeline layer's job,
// keeping this package free of a dependency on internal/strpool.
type Feature struct {
	Layer    string
	GeomType geo.GeometryType
	ID       uint64
	HasID    bool
	Index    uint64 // Morton curve key
	MinZoom  uint8
	MaxZoom  uint8 // 0 means "no explicit maxzoom"
	HasMax   bool
	Seq      uint64

	Attrs map[string]interface{}

	Geometry geo.Drawvec
	BBox     geo.BBox

	reduced          bool // set by reduce_tiny_poly; skips re-simplification
	borderSimplified bool // set by markSharedBorders' arc pool; skips re-simplification
}

// Clone makes an independent copy safe to mutate during clip/simplify.
func (f *Feature) Clone() *Feature {
	c := *f
	c.Geometry = f.Geometry.Clone()
	if f.Attrs != nil {
		c.Attrs = make(map[string]interface{}, len(f.Attrs))
		for k, v := range f.Attrs {
			c.Attrs[k] = v
		}
	}
	return &c
}
