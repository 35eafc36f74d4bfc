// SPDX-License-Identifier: MIT

package tilestore

import (
	"encoding/json"
	"fmt"
	"sort"
)

// LonLatBBox is a WGS84 bounding box, as written into the MBTiles
// metadata table's `bounds` row.
type LonLatBBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// Metadata bundles the bounding-box/centre/zoom-range/per-layer schema
// required to be written at finish, independent of which backend
// stores it (MBTiles metadata table rows vs. a sidecar JSON file for the
// directory layout).
type Metadata struct {
	Name             string
	Description      string
	MinZoom, MaxZoom uint8
	Bounds           LonLatBBox
	Center           [3]float64 // lon, lat, zoom
	Generator        string
	GeneratorOptions string
	Layers           []LayerSummary
}

// LayerSummary is one entry of the `json` metadata row's `vector_layers`
// array plus its `tilestats` counterpart.
type LayerSummary struct {
	ID        string
	Fields    map[string]string // attribute name -> "String"|"Number"|"Boolean"
	MinZoom   uint8
	MaxZoom   uint8
	FeatureCount int
	Attributes   []AttributeStats
}

// AttributeStats summarizes one attribute's observed values across a
// layer, capped at 1 000 sample values.
type AttributeStats struct {
	Attribute string
	Count     int
	Type      string // "string"|"number"|"boolean"|"mixed"
	Values    []interface{}
	Min, Max  float64
	HasMinMax bool
}

const (
	maxAttributesPerLayer = 1000
	maxSampleValues       = 1000
)

// TileStatsBuilder accumulates per-layer attribute statistics as features
// stream through the renderer, producing the `tilestats` histogram
// (layer count, per-attribute sample values, min/max for numerics) named
//.
type TileStatsBuilder struct {
	layers map[string]*layerAccum
	order  []string
}

type layerAccum struct {
	featureCount int
	attrs        map[string]*attrAccum
	attrOrder    []string
}

type attrAccum struct {
	count     int
	isNumber  bool
	isString  bool
	isBoolean bool
	seen      map[interface{}]bool
	values    []interface{}
	min, max  float64
	hasMinMax bool
}

func NewTileStatsBuilder() *TileStatsBuilder {
	return &TileStatsBuilder{layers: make(map[string]*layerAccum)}
}

// Observe records one feature's attributes under layer.
func (b *TileStatsBuilder) Observe(layer string, attrs map[string]interface{}) {
	la, ok := b.layers[layer]
	if !ok {
		la = &layerAccum{attrs: make(map[string]*attrAccum)}
		b.layers[layer] = la
		b.order = append(b.order, layer)
	}
	la.featureCount++
	for k, v := range attrs {
		aa, ok := la.attrs[k]
		if !ok {
			if len(la.attrOrder) >= maxAttributesPerLayer {
				continue
			}
			aa = &attrAccum{seen: make(map[interface{}]bool)}
			la.attrs[k] = aa
			la.attrOrder = append(la.attrOrder, k)
		}
		aa.count++
		switch n := v.(type) {
		case float64:
			aa.isNumber = true
			if !aa.hasMinMax || n < aa.min {
				aa.min = n
			}
			if !aa.hasMinMax || n > aa.max {
				aa.max = n
			}
			aa.hasMinMax = true
		case int, int64, uint64:
			aa.isNumber = true
		case bool:
			aa.isBoolean = true
		default:
			aa.isString = true
		}
		if !aa.seen[v] && len(aa.values) < maxSampleValues {
			aa.seen[v] = true
			aa.values = append(aa.values, v)
		}
	}
}

// Build finalizes the accumulated stats into the LayerSummary slice
// Metadata.Layers expects.
func (b *TileStatsBuilder) Build(minZoom, maxZoom uint8) []LayerSummary {
	summaries := make([]LayerSummary, 0, len(b.order))
	for _, name := range b.order {
		la := b.layers[name]
		fields := make(map[string]string, len(la.attrOrder))
		attrs := make([]AttributeStats, 0, len(la.attrOrder))
		for _, attrName := range la.attrOrder {
			aa := la.attrs[attrName]
			fields[attrName] = fieldType(aa)
			attrs = append(attrs, AttributeStats{
				Attribute: attrName,
				Count:     aa.count,
				Type:      attrTypeLabel(aa),
				Values:    aa.values,
				Min:       aa.min,
				Max:       aa.max,
				HasMinMax: aa.hasMinMax,
			})
		}
		summaries = append(summaries, LayerSummary{
			ID:           name,
			Fields:       fields,
			MinZoom:      minZoom,
			MaxZoom:      maxZoom,
			FeatureCount: la.featureCount,
			Attributes:   attrs,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries
}

func fieldType(aa *attrAccum) string {
	switch {
	case aa.isBoolean && !aa.isNumber && !aa.isString:
		return "Boolean"
	case aa.isNumber && !aa.isString && !aa.isBoolean:
		return "Number"
	default:
		return "String"
	}
}

func attrTypeLabel(aa *attrAccum) string {
	kinds := 0
	if aa.isNumber {
		kinds++
	}
	if aa.isString {
		kinds++
	}
	if aa.isBoolean {
		kinds++
	}
	if kinds > 1 {
		return "mixed"
	}
	switch {
	case aa.isNumber:
		return "number"
	case aa.isBoolean:
		return "boolean"
	default:
		return "string"
	}
}

// vectorLayersJSON renders the `json` metadata row's value: the
// vector_layers array plus a tilestats object.
func vectorLayersJSON(m Metadata) (string, error) {
	type vectorLayer struct {
		ID       string            `json:"id"`
		Fields   map[string]string `json:"fields"`
		MinZoom  uint8             `json:"minzoom"`
		MaxZoom  uint8             `json:"maxzoom"`
	}
	type tileStatsAttr struct {
		Attribute string        `json:"attribute"`
		Count     int           `json:"count"`
		Type      string        `json:"type"`
		Values    []interface{} `json:"values,omitempty"`
		Min       *float64      `json:"min,omitempty"`
		Max       *float64      `json:"max,omitempty"`
	}
	type tileStatsLayer struct {
		Layer        string          `json:"layer"`
		Count        int             `json:"count"`
		Geometry     string          `json:"geometry,omitempty"`
		AttrCount    int             `json:"attributeCount"`
		Attributes   []tileStatsAttr `json:"attributes"`
	}
	type tileStats struct {
		LayerCount int              `json:"layerCount"`
		Layers     []tileStatsLayer `json:"layers"`
	}
	type doc struct {
		VectorLayers []vectorLayer `json:"vector_layers"`
		TileStats    tileStats     `json:"tilestats"`
	}

	d := doc{}
	for _, l := range m.Layers {
		d.VectorLayers = append(d.VectorLayers, vectorLayer{
			ID: l.ID, Fields: l.Fields, MinZoom: l.MinZoom, MaxZoom: l.MaxZoom,
		})
		tsl := tileStatsLayer{Layer: l.ID, Count: l.FeatureCount, AttrCount: len(l.Attributes)}
		for _, a := range l.Attributes {
			tsa := tileStatsAttr{Attribute: a.Attribute, Count: a.Count, Type: a.Type, Values: a.Values}
			if a.HasMinMax {
				min, max := a.Min, a.Max
				tsa.Min, tsa.Max = &min, &max
			}
			tsl.Attributes = append(tsl.Attributes, tsa)
		}
		d.TileStats.Layers = append(d.TileStats.Layers, tsl)
	}
	d.TileStats.LayerCount = len(m.Layers)

	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("tilestore: encoding vector_layers/tilestats json: %w", err)
	}
	return string(b), nil
}
