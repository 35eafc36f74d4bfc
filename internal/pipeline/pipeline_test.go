// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"testing"

	"github.com/brawer/tilekiln/internal/config"
	"github.com/brawer/tilekiln/internal/geo"
	"github.com/brawer/tilekiln/internal/ingest"
	"github.com/brawer/tilekiln/internal/strpool"
	"github.com/brawer/tilekiln/internal/tilestore"
)

func TestBuildRendersRootTile(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxZoom = 2

	store := tilestore.NewMemStore()
	points := []ingest.ParsedFeature{
		{Layer: "places", GeomType: geo.Point, Rings: [][]ingest.LonLat{{{Lon: 13.4, Lat: 52.5}}}, Attrs: map[string]interface{}{"name": "Berlin"}},
		{Layer: "places", GeomType: geo.Point, Rings: [][]ingest.LonLat{{{Lon: -0.1, Lat: 51.5}}}, Attrs: map[string]interface{}{"name": "London"}},
	}

	err := Build(context.Background(), Options{
		Config: cfg,
		Sources: []Source{{
			Layer: "places",
			Features: func(yield func(ingest.ParsedFeature) bool) error {
				for _, pf := range points {
					if !yield(pf) {
						break
					}
				}
				return nil
			},
		}},
		Store:      store,
		Attributes: ingest.AttributeFilter{IncludeAll: true},
		Name:       "test",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !store.Done {
		t.Fatal("expected Finish to be called")
	}
	if _, ok := store.Get(0, 0, 0); !ok {
		t.Error("expected the root tile 0/0/0 to be rendered")
	}
	if len(store.Meta.Layers) != 1 || store.Meta.Layers[0].ID != "places" {
		t.Errorf("expected one 'places' layer in metadata, got %+v", store.Meta.Layers)
	}
}

func TestBuildPropagatesIngestErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.PreventClipping = true
	store := tilestore.NewMemStore()

	err := Build(context.Background(), Options{
		Config: cfg,
		Sources: []Source{{
			Layer: "roads",
			Features: func(yield func(ingest.ParsedFeature) bool) error {
				yield(ingest.ParsedFeature{
					GeomType: geo.Line,
					Rings:    [][]ingest.LonLat{{{Lon: -170, Lat: 0}, {Lon: 170, Lat: 0}}},
				})
				return nil
			},
		}},
		Store:      store,
		Attributes: ingest.AttributeFilter{IncludeAll: true},
	})
	if err == nil {
		t.Error("expected prevent_clipping violation to surface as a Build error")
	}
}

// TestFeatureReaderReusesCachedMetaFile pins the fix where resolveAttrs
// used to open and close seg.metaPath on every call: two non-inline
// features sharing one segment must both resolve correctly through the
// single cached handle opened by newFeatureReader, and Close must tear
// that handle down cleanly.
func TestFeatureReaderReusesCachedMetaFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxZoom = 14 // keeps the inline-attrs bbox threshold tiny

	src := Source{
		Layer: "places",
		Features: func(yield func(ingest.ParsedFeature) bool) error {
			// Lines spanning a degree of longitude have a bbox far wider
			// than the inline threshold, so their attributes go to the
			// segment's meta file.
			yield(ingest.ParsedFeature{
				GeomType: geo.Line,
				Rings:    [][]ingest.LonLat{{{Lon: 13.4, Lat: 52.5}, {Lon: 14.4, Lat: 52.5}}},
				Attrs:    map[string]interface{}{"name": "Berlin"},
			})
			yield(ingest.ParsedFeature{
				GeomType: geo.Line,
				Rings:    [][]ingest.LonLat{{{Lon: -0.1, Lat: 51.5}, {Lon: 0.9, Lat: 51.5}}},
				Attrs:    map[string]interface{}{"name": "London"},
			})
			return nil
		},
	}

	pool, err := strpool.Open(cfg.TempDir)
	if err != nil {
		t.Fatalf("strpool.Open: %v", err)
	}
	defer pool.Close()

	seg, records, _, _, err := ingestSource(cfg, pool, Options{Attributes: ingest.AttributeFilter{IncludeAll: true}}, 0, src)
	if err != nil {
		t.Fatalf("ingestSource: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 index records, got %d", len(records))
	}

	r, err := newFeatureReader([]*segment{seg}, pool)
	if err != nil {
		t.Fatalf("newFeatureReader: %v", err)
	}
	if r.metaFiles[seg.id] == nil {
		t.Fatal("expected newFeatureReader to eagerly cache the segment's meta file")
	}

	var names []string
	for _, rec := range records {
		f, err := r.readDisk(&diskRef{rec: rec, minZoom: 0})
		if err != nil {
			t.Fatalf("readDisk: %v", err)
		}
		if f.Attrs["name"] == nil {
			t.Fatal("expected a non-inline 'name' attribute resolved through the cached meta file")
		}
		names = append(names, f.Attrs["name"].(string))
	}
	if len(names) != 2 || names[0] == names[1] {
		t.Errorf("expected two distinct resolved names from the shared cached handle, got %v", names)
	}

	if err := r.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.New()
	cfg.TempDir = t.TempDir()
	cfg.BaseZoom = 2
	cfg.DropRate = 1
	return cfg
}
