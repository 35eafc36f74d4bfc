// SPDX-License-Identifier: MIT

package ingest

import (
	"bytes"
	"os"
	"testing"

	"github.com/brawer/tilekiln/internal/geo"
	"github.com/brawer/tilekiln/internal/strpool"
)

func newTestWorker(t *testing.T, opts Options) (*Worker, *bytes.Buffer) {
	w, _, buf := newTestWorkerWithMeta(t, opts)
	return w, buf
}

func newTestWorkerWithMeta(t *testing.T, opts Options) (*Worker, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	pool, err := strpool.Open(os.TempDir())
	if err != nil {
		t.Fatalf("strpool.Open: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	var buf, metaBuf bytes.Buffer
	return NewWorker(&buf, &metaBuf, pool, opts), &metaBuf, &buf
}

func TestIngestPointProducesIndexRecord(t *testing.T) {
	w, buf := newTestWorker(t, Options{
		SegmentID:  1,
		MaxZoom:    14,
		Gamma:      1.0,
		Attributes: AttributeFilter{IncludeAll: true},
	})
	rec, err := w.Ingest(ParsedFeature{
		Layer:    "places",
		GeomType: geo.Point,
		Rings:    [][]LonLat{{{Lon: 13.4, Lat: 52.5}}},
		Attrs:    map[string]interface{}{"name": "Berlin"},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a non-nil index record")
	}
	if rec.Segment != 1 {
		t.Errorf("Segment = %d, want 1", rec.Segment)
	}
	if rec.IndexKey == 0 {
		t.Error("expected a non-zero index key when gamma > 0")
	}
	if buf.Len() == 0 {
		t.Error("expected serialized bytes to be written")
	}
}

func TestIngestDropsExcludedAttributes(t *testing.T) {
	w, _ := newTestWorker(t, Options{
		SegmentID: 0,
		MaxZoom:   14,
		Attributes: AttributeFilter{
			IncludeAll: false,
			Include:    map[string]bool{"name": true},
		},
	})
	_, err := w.Ingest(ParsedFeature{
		Layer:    "places",
		GeomType: geo.Point,
		Rings:    [][]LonLat{{{Lon: 0, Lat: 0}}},
		Attrs:    map[string]interface{}{"name": "X", "secret": "Y"},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	le := w.Layers()["places"]
	if le == nil {
		t.Fatal("expected a places layer entry")
	}
	if _, ok := le.Attributes["secret"]; ok {
		t.Error("expected excluded attribute 'secret' to be dropped")
	}
	if _, ok := le.Attributes["name"]; !ok {
		t.Error("expected included attribute 'name' to survive")
	}
}

func TestIngestLineRequiresTwoPoints(t *testing.T) {
	w, _ := newTestWorker(t, Options{MaxZoom: 14, Attributes: AttributeFilter{IncludeAll: true}})
	rec, err := w.Ingest(ParsedFeature{
		Layer:    "roads",
		GeomType: geo.Line,
		Rings:    [][]LonLat{{{Lon: 0, Lat: 0}}},
	})
	if err != nil {
		t.Fatalf("Ingest should drop, not error, on malformed geometry: %v", err)
	}
	if rec != nil {
		t.Error("expected nil record for a degenerate line")
	}
}

func TestIngestPolygonClosesRings(t *testing.T) {
	w, _ := newTestWorker(t, Options{MaxZoom: 14, Attributes: AttributeFilter{IncludeAll: true}})
	square := []LonLat{{Lon: 0, Lat: 0}, {Lon: 0, Lat: 1}, {Lon: 1, Lat: 1}, {Lon: 1, Lat: 0}}
	rec, err := w.Ingest(ParsedFeature{
		Layer:    "buildings",
		GeomType: geo.Polygon,
		Rings:    [][]LonLat{square},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a record for a valid polygon")
	}
}

func TestIngestPreventClippingAbortsOversizedFeature(t *testing.T) {
	w, _ := newTestWorker(t, Options{
		MaxZoom:         14,
		PreventClipping: true,
		Attributes:      AttributeFilter{IncludeAll: true},
	})
	// A line spanning most of the world at maxzoom=14 vastly exceeds the
	// 10,000-tile prevent_clipping limit.
	_, err := w.Ingest(ParsedFeature{
		Layer:    "roads",
		GeomType: geo.Line,
		Rings:    [][]LonLat{{{Lon: -170, Lat: 0}, {Lon: 170, Lat: 0}}},
	})
	if err == nil {
		t.Error("expected prevent_clipping to abort an oversized feature")
	}
}

func TestIngestLargeFeatureWritesReferencedAttrs(t *testing.T) {
	w, metaBuf, _ := newTestWorkerWithMeta(t, Options{MaxZoom: 14, Attributes: AttributeFilter{IncludeAll: true}})
	// A line spanning a wide swath of the world has a bbox extent far
	// beyond the inline threshold at maxzoom=14, forcing referenced
	// attribute storage.
	rec, err := w.Ingest(ParsedFeature{
		Layer:    "roads",
		GeomType: geo.Line,
		Rings:    [][]LonLat{{{Lon: -100, Lat: 0}, {Lon: 100, Lat: 0}}},
		Attrs:    map[string]interface{}{"name": "Transcontinental"},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a record for the large feature")
	}
	attrs, err := ReadMetaAttrs(bytes.NewReader(metaBuf.Bytes()))
	if err != nil {
		t.Fatalf("ReadMetaAttrs: %v", err)
	}
	if len(attrs) != 1 {
		t.Fatalf("got %d referenced attrs, want 1", len(attrs))
	}
}

func TestRunningBBoxExpands(t *testing.T) {
	w, _ := newTestWorker(t, Options{MaxZoom: 14, Attributes: AttributeFilter{IncludeAll: true}})
	if _, err := w.Ingest(ParsedFeature{GeomType: geo.Point, Layer: "l", Rings: [][]LonLat{{{Lon: -10, Lat: -10}}}}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := w.Ingest(ParsedFeature{GeomType: geo.Point, Layer: "l", Rings: [][]LonLat{{{Lon: 10, Lat: 10}}}}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	minX, minY, maxX, maxY, ok := w.BBox()
	if !ok {
		t.Fatal("expected a running bbox to be tracked")
	}
	if minX >= maxX || minY >= maxY {
		t.Errorf("expected a non-degenerate running bbox, got (%d,%d)-(%d,%d)", minX, minY, maxX, maxY)
	}
}
