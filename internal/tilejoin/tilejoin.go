// SPDX-License-Identifier: MIT

package tilejoin

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/paulmach/orb/encoding/mvt"
)

// CSVJoin holds one CSV table indexed by a join column, ready to stamp
// extra attributes onto features that carry a matching value.
type CSVJoin struct {
	joinColumn string
	rows       map[string]map[string]string
}

// LoadCSVJoin reads a CSV table from r, keyed by the values in joinColumn.
// A row whose join-column value repeats an earlier one overwrites it —
// callers are expected to pre-dedupe if that matters for their source.
func LoadCSVJoin(r io.Reader, joinColumn string) (*CSVJoin, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("tilejoin: reading CSV header: %w", err)
	}
	joinIdx := -1
	for i, h := range header {
		if h == joinColumn {
			joinIdx = i
			break
		}
	}
	if joinIdx < 0 {
		return nil, fmt.Errorf("tilejoin: join column %q not found in CSV header", joinColumn)
	}

	j := &CSVJoin{joinColumn: joinColumn, rows: make(map[string]map[string]string)}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tilejoin: reading CSV row: %w", err)
		}
		attrs := make(map[string]string, len(header)-1)
		for i, v := range rec {
			if i == joinIdx || i >= len(header) {
				continue
			}
			attrs[header[i]] = v
		}
		j.rows[rec[joinIdx]] = attrs
	}
	return j, nil
}

// Apply stamps joined attributes onto every feature in layers whose
// idProperty matches a row's join-column value. Features with no match
// are left untouched.
func (j *CSVJoin) Apply(layers mvt.Layers, idProperty string) {
	if j == nil {
		return
	}
	for _, layer := range layers {
		for _, f := range layer.Features {
			id, ok := f.Properties[idProperty]
			if !ok {
				continue
			}
			row, ok := j.rows[fmt.Sprint(id)]
			if !ok {
				continue
			}
			for k, v := range row {
				f.Properties[k] = v
			}
		}
	}
}

// MergeLayers combines same-name layers from multiple decoded tiles that
// share one TileKey. Later sources win ties on layer Version/Extent;
// features are simply concatenated, array-append style, rather than a
// feature-level dedupe — this is a peripheral, best-effort re-export
// path, not a correctness-critical merge.
func MergeLayers(decoded []mvt.Layers) mvt.Layers {
	order := make([]string, 0, 8)
	byName := make(map[string]*mvt.Layer, 8)
	for _, layers := range decoded {
		for _, l := range layers {
			existing, ok := byName[l.Name]
			if !ok {
				copyLayer := *l
				byName[l.Name] = &copyLayer
				order = append(order, l.Name)
				continue
			}
			existing.Features = append(existing.Features, l.Features...)
			if l.Extent > existing.Extent {
				existing.Extent = l.Extent
			}
		}
	}
	merged := make(mvt.Layers, 0, len(order))
	for _, name := range order {
		merged = append(merged, byName[name])
	}
	return merged
}

// Options configures a join run.
type Options struct {
	// IDProperty names the feature property CSVJoin keys against; empty
	// disables CSV joining even if CSV is non-nil.
	IDProperty string
	CSV        *CSVJoin
}

// Join drives the k-way Merger across sources, decoding each group's raw
// MVT payloads, merging their layers, optionally applying a CSV join, and
// re-encoding with the same orb mvt marshaller the renderer uses (called
// directly, not through render.Encode) and gzip-compressing the result.
func Join(sources []Source, opts Options) (map[TileKey][]byte, error) {
	m := NewMerger(sources)
	out := make(map[TileKey][]byte)
	for {
		key, group, ok := m.Next()
		if !ok {
			break
		}
		decoded := make([]mvt.Layers, 0, len(group))
		for _, raw := range group {
			layers, err := decodeTile(raw)
			if err != nil {
				return nil, fmt.Errorf("tilejoin: decoding tile z=%d x=%d y=%d: %w", key.Z, key.X, key.Y, err)
			}
			decoded = append(decoded, layers)
		}
		merged := MergeLayers(decoded)
		if opts.CSV != nil && opts.IDProperty != "" {
			opts.CSV.Apply(merged, opts.IDProperty)
		}
		encoded, err := mvt.Marshal(merged)
		if err != nil {
			return nil, fmt.Errorf("tilejoin: encoding tile z=%d x=%d y=%d: %w", key.Z, key.X, key.Y, err)
		}
		compressed, err := gzipBytes(encoded)
		if err != nil {
			return nil, err
		}
		out[key] = compressed
	}
	if err := m.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeTile(raw []byte) (mvt.Layers, error) {
	data := raw
	if isGzip(raw) {
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		unzipped, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		data = unzipped
	}
	return mvt.Unmarshal(data)
}

func isGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
