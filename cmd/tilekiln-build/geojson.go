// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/brawer/tilekiln/internal/geo"
	"github.com/brawer/tilekiln/internal/ingest"
)

// geojsonSource reads one GeoJSON FeatureCollection file and adapts it
// into a pipeline.Source: a thin format collaborator that hands fully
// parsed records to the pipeline one at a time.
type geojsonSource struct {
	path  string
	layer string
}

// features decodes the file and yields one ingest.ParsedFeature per
// orb geometry, flattening Multi* geometries into one ParsedFeature per
// constituent part (ingest has no notion of multi-geometries: each
// serialized feature is a single Point/LineString/Polygon).
func (s geojsonSource) features(yield func(ingest.ParsedFeature) bool) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("parsing %s as GeoJSON: %w", s.path, err)
	}
	for _, f := range fc.Features {
		for _, pf := range geometryToParsedFeatures(f.Geometry, f.Properties, f.ID) {
			pf.Layer = s.layer
			if !yield(pf) {
				return nil
			}
		}
	}
	return nil
}

func geometryToParsedFeatures(g orb.Geometry, props geojson.Properties, id interface{}) []ingest.ParsedFeature {
	base := ingest.ParsedFeature{Attrs: map[string]interface{}(props)}
	if idNum, ok := toUint64(id); ok {
		base.HasID = true
		base.ID = idNum
	}

	switch geom := g.(type) {
	case orb.Point:
		base.GeomType = geo.Point
		base.Rings = [][]ingest.LonLat{{lonLat(geom)}}
		return []ingest.ParsedFeature{base}

	case orb.MultiPoint:
		out := make([]ingest.ParsedFeature, 0, len(geom))
		for _, p := range geom {
			pf := base
			pf.GeomType = geo.Point
			pf.Rings = [][]ingest.LonLat{{lonLat(p)}}
			out = append(out, pf)
		}
		return out

	case orb.LineString:
		pf := base
		pf.GeomType = geo.Line
		pf.Rings = [][]ingest.LonLat{lineStringToRing(geom)}
		return []ingest.ParsedFeature{pf}

	case orb.MultiLineString:
		out := make([]ingest.ParsedFeature, 0, len(geom))
		for _, ls := range geom {
			pf := base
			pf.GeomType = geo.Line
			pf.Rings = [][]ingest.LonLat{lineStringToRing(ls)}
			out = append(out, pf)
		}
		return out

	case orb.Polygon:
		pf := base
		pf.GeomType = geo.Polygon
		pf.Rings = polygonToRings(geom)
		return []ingest.ParsedFeature{pf}

	case orb.MultiPolygon:
		out := make([]ingest.ParsedFeature, 0, len(geom))
		for _, poly := range geom {
			pf := base
			pf.GeomType = geo.Polygon
			pf.Rings = polygonToRings(poly)
			out = append(out, pf)
		}
		return out

	case orb.Collection:
		var out []ingest.ParsedFeature
		for _, inner := range geom {
			out = append(out, geometryToParsedFeatures(inner, props, id)...)
		}
		return out
	}
	return nil
}

func lineStringToRing(ls orb.LineString) []ingest.LonLat {
	ring := make([]ingest.LonLat, len(ls))
	for i, p := range ls {
		ring[i] = lonLat(p)
	}
	return ring
}

func polygonToRings(poly orb.Polygon) [][]ingest.LonLat {
	rings := make([][]ingest.LonLat, len(poly))
	for i, ring := range poly {
		rings[i] = lineStringToRing(ring)
	}
	return rings
}

func lonLat(p orb.Point) ingest.LonLat {
	return ingest.LonLat{Lon: p[0], Lat: p[1]}
}

// toUint64 narrows a decoded GeoJSON "id" (a json.Number or float64) down
// to the uint64 ingest expects: an optional unsigned feature id, the only
// form Mapbox Vector Tiles can carry. String ids, negative numbers and any
// other type are reported as absent.
func toUint64(id interface{}) (uint64, bool) {
	switch v := id.(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil || n < 0 {
			return 0, false
		}
		return uint64(n), true
	case float64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	default:
		return 0, false
	}
}
