// SPDX-License-Identifier: MIT

package render

import (
	"fmt"
	"sort"

	"github.com/brawer/tilekiln/internal/geo"
)

// GroupByLayer builds the layer_name -> features map used by the
// optional reorder/coalesce pass.
func GroupByLayer(features []*Feature) map[string][]*Feature {
	out := make(map[string][]*Feature)
	for _, f := range features {
		out[f.Layer] = append(out[f.Layer], f)
	}
	return out
}

// attrKey builds a stable, comparable string for a feature's attribute
// set, used both for the (type,attributes,index) reorder sort and for
// detecting coalescence candidates. Map iteration order in Go is
// randomized, so keys are sorted before joining.
func attrKey(attrs map[string]interface{}) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := ""
	for _, k := range keys {
		s += fmt.Sprintf("%s=%v;", k, attrs[k])
	}
	return s
}

// SortForReorder orders one layer's features by (type, attributes,
// index) for the optional reorder pass; this also brings coalescence
// candidates (same type, same attrs) adjacent to each other, which
// Coalesce requires.
func SortForReorder(features []*Feature) {
	sort.SliceStable(features, func(i, j int) bool {
		a, b := features[i], features[j]
		if a.GeomType != b.GeomType {
			return a.GeomType < b.GeomType
		}
		ak, bk := attrKey(a.Attrs), attrKey(b.Attrs)
		if ak != bk {
			return ak < bk
		}
		return a.Index < b.Index
	})
}

// Coalesce merges adjacent features (after SortForReorder) that share an
// identical attribute tuple and a non-Point geometry type, concatenating
// their drawvecs end-to-end. Coalesced polygons are re-cleaned here via
// CleanOrClipPoly since the concatenation itself can introduce ring
// self-intersections that the earlier cleaning pass had no chance to
// catch. Coalesced lines are not re-simplified, here or by Render.
func Coalesce(features []*Feature) []*Feature {
	if len(features) == 0 {
		return features
	}
	out := make([]*Feature, 0, len(features))
	cur := features[0]
	curKey := attrKey(cur.Attrs)
	for _, f := range features[1:] {
		if f.GeomType != geo.Point && f.GeomType == cur.GeomType {
			k := attrKey(f.Attrs)
			if k == curKey {
				merged := cur.Clone()
				merged.Geometry = append(merged.Geometry, f.Geometry...)
				if merged.GeomType == geo.Polygon {
					merged.Geometry = geo.CleanOrClipPoly(merged.Geometry, geo.BBox{}, false)
				}
				cur = merged
				continue
			}
		}
		out = append(out, cur)
		cur = f
		curKey = attrKey(cur.Attrs)
	}
	out = append(out, cur)
	return out
}
