// SPDX-License-Identifier: MIT

package render

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"

	"github.com/brawer/tilekiln/internal/geo"
)

// toOrbGeometry converts a tile-local, already-quantized Drawvec into the
// corresponding orb.Geometry, so the final protobuf bytes (varint
// geometry-op run-length encoding and the key/value attribute pools) are
// produced by github.com/paulmach/orb/encoding/mvt rather than
// hand-rolled — the renderer's own job is everything upstream of this
// conversion (clip/simplify/quantize/clean/coalesce), which is the hard
// part and has no ready-made library for it.
func toOrbGeometry(f *Feature) orb.Geometry {
	switch f.GeomType {
	case geo.Point:
		for _, p := range f.Geometry {
			return orb.Point{float64(p.X), float64(p.Y)}
		}
		return nil
	case geo.Line:
		var ls orb.LineString
		for _, p := range f.Geometry {
			ls = append(ls, orb.Point{float64(p.X), float64(p.Y)})
		}
		if len(ls) < 2 {
			return nil
		}
		return ls
	case geo.Polygon:
		var poly orb.Polygon
		var ring orb.Ring
		for _, p := range f.Geometry {
			switch p.Op {
			case geo.MoveTo:
				if len(ring) >= 3 {
					poly = append(poly, ring)
				}
				ring = orb.Ring{{float64(p.X), float64(p.Y)}}
			case geo.LineTo:
				ring = append(ring, orb.Point{float64(p.X), float64(p.Y)})
			}
		}
		if len(ring) >= 3 {
			poly = append(poly, ring)
		}
		if len(poly) == 0 {
			return nil
		}
		return poly
	}
	return nil
}

// Encode builds an MVT byte payload from grouped, already-rendered tile
// layers. extent is 1<<detail, the tile-local coordinate range.
func Encode(layerFeatures map[string][]*Feature, extent uint32) ([]byte, error) {
	names := make([]string, 0, len(layerFeatures))
	for name := range layerFeatures {
		names = append(names, name)
	}
	sort.Strings(names)

	var layers mvt.Layers
	for _, name := range names {
		feats := layerFeatures[name]
		fc := geojson.NewFeatureCollection()
		for _, f := range feats {
			g := toOrbGeometry(f)
			if g == nil {
				continue
			}
			gf := geojson.NewFeature(g)
			for k, v := range f.Attrs {
				gf.Properties[k] = v
			}
			if f.HasID {
				gf.ID = f.ID
			}
			fc.Append(gf)
		}
		if len(fc.Features) == 0 {
			continue
		}
		layer := mvt.NewLayer(name, fc)
		layer.Version = 2
		layer.Extent = int(extent)
		layers = append(layers, layer)
	}
	if len(layers) == 0 {
		return nil, nil
	}
	return mvt.Marshal(layers)
}
