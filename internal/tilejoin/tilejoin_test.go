// SPDX-License-Identifier: MIT

package tilejoin

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
)

// sliceSource is a Source backed by an in-memory, already-ordered slice —
// used by tests instead of a real tile store.
type sliceSource struct {
	items []struct {
		key  TileKey
		data []byte
	}
	pos int
}

func newSliceSource(keys []TileKey, data [][]byte) *sliceSource {
	s := &sliceSource{}
	for i, k := range keys {
		s.items = append(s.items, struct {
			key  TileKey
			data []byte
		}{k, data[i]})
	}
	return s
}

func (s *sliceSource) Next() (TileKey, []byte, error) {
	if s.pos >= len(s.items) {
		return TileKey{}, nil, io.EOF
	}
	it := s.items[s.pos]
	s.pos++
	return it.key, it.data, nil
}

func TestMergerInterleavesSourcesInKeyOrder(t *testing.T) {
	a := newSliceSource(
		[]TileKey{{Z: 0, X: 0, Y: 0}, {Z: 1, X: 0, Y: 0}},
		[][]byte{[]byte("a0"), []byte("a1")},
	)
	b := newSliceSource(
		[]TileKey{{Z: 0, X: 0, Y: 0}, {Z: 1, X: 1, Y: 0}},
		[][]byte{[]byte("b0"), []byte("b1")},
	)

	m := NewMerger([]Source{a, b})
	var keys []TileKey
	for {
		k, group, ok := m.Next()
		if !ok {
			break
		}
		keys = append(keys, k)
		if k == (TileKey{Z: 0, X: 0, Y: 0}) && len(group) != 2 {
			t.Errorf("expected both sources to group at (0,0,0), got %d items", len(group))
		}
	}
	if m.Err() != nil {
		t.Fatalf("unexpected error: %v", m.Err())
	}
	if len(keys) != 3 {
		t.Fatalf("expected 3 distinct tile keys, got %d", len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if keys[i].Less(keys[i-1]) {
			t.Errorf("expected non-decreasing key order, got %v after %v", keys[i], keys[i-1])
		}
	}
}

func encodeTestTile(t *testing.T, layerName string, props map[string]interface{}) []byte {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Point{1, 1})
	for k, v := range props {
		f.Properties[k] = v
	}
	fc.Append(f)
	layer := mvt.NewLayer(layerName, fc)
	layer.Version = 2
	layer.Extent = 4096
	data, err := mvt.Marshal(mvt.Layers{layer})
	if err != nil {
		t.Fatalf("encoding test tile: %v", err)
	}
	return data
}

func TestMergeLayersConcatenatesSameNamedLayers(t *testing.T) {
	t1 := encodeTestTile(t, "buildings", map[string]interface{}{"id": "1"})
	t2 := encodeTestTile(t, "buildings", map[string]interface{}{"id": "2"})

	l1, err := mvt.Unmarshal(t1)
	if err != nil {
		t.Fatalf("unmarshal t1: %v", err)
	}
	l2, err := mvt.Unmarshal(t2)
	if err != nil {
		t.Fatalf("unmarshal t2: %v", err)
	}

	merged := MergeLayers([]mvt.Layers{l1, l2})
	if len(merged) != 1 {
		t.Fatalf("expected 1 merged layer, got %d", len(merged))
	}
	if len(merged[0].Features) != 2 {
		t.Errorf("expected 2 merged features, got %d", len(merged[0].Features))
	}
}

func TestJoinMergesAndAppliesCSV(t *testing.T) {
	t1 := encodeTestTile(t, "places", map[string]interface{}{"id": "42"})
	src := newSliceSource([]TileKey{{Z: 3, X: 1, Y: 1}}, [][]byte{t1})

	csvJoin, err := LoadCSVJoin(strings.NewReader("id,population\n42,1000\n"), "id")
	if err != nil {
		t.Fatalf("LoadCSVJoin: %v", err)
	}

	out, err := Join([]Source{src}, Options{IDProperty: "id", CSV: csvJoin})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	key := TileKey{Z: 3, X: 1, Y: 1}
	data, ok := out[key]
	if !ok {
		t.Fatalf("expected output for %v", key)
	}
	decoded, err := decodeTile(data)
	if err != nil {
		t.Fatalf("decodeTile: %v", err)
	}
	if len(decoded) != 1 || len(decoded[0].Features) != 1 {
		t.Fatalf("expected 1 layer with 1 feature, got %+v", decoded)
	}
	if got := decoded[0].Features[0].Properties["population"]; got != "1000" {
		t.Errorf("expected joined population=1000, got %v", got)
	}
}

func TestScratchWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewScratchWriter(&buf)
	keys := []TileKey{{Z: 0, X: 0, Y: 0}, {Z: 1, X: 1, Y: 0}}
	payloads := [][]byte{[]byte("hello"), []byte("world, a bit longer payload")}
	for i, k := range keys {
		if err := w.Append(k, payloads[i]); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	r := NewScratchReader(&buf)
	for i, wantKey := range keys {
		k, data, err := r.Next()
		if err != nil {
			t.Fatalf("Next() #%d: %v", i, err)
		}
		if k != wantKey {
			t.Errorf("Next() #%d key = %v, want %v", i, k, wantKey)
		}
		if string(data) != string(payloads[i]) {
			t.Errorf("Next() #%d data = %q, want %q", i, data, payloads[i])
		}
	}
	if _, _, err := r.Next(); err != io.EOF {
		t.Errorf("expected io.EOF after last record, got %v", err)
	}
}
