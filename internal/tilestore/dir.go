// SPDX-License-Identifier: MIT

package tilestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// DirStore writes tiles as `{z}/{x}/{y}.pbf`, plus a `metadata.json`
// sidecar at Finish (the directory layout has no metadata table to
// write rows into).
type DirStore struct {
	root string
}

func NewDirStore(root string) *DirStore {
	return &DirStore{root: root}
}

func (s *DirStore) PutTile(z uint8, x, y uint32, data []byte) error {
	dir := filepath.Join(s.root, strconv.Itoa(int(z)), strconv.Itoa(int(x)))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("tilestore: creating %s: %w", dir, err)
	}
	path := filepath.Join(dir, strconv.FormatUint(uint64(y), 10)+".pbf")
	return os.WriteFile(path, data, 0o644)
}

func (s *DirStore) Finish(meta Metadata) error {
	vectorLayers, err := vectorLayersJSON(meta)
	if err != nil {
		return err
	}
	var parsed interface{}
	if err := json.Unmarshal([]byte(vectorLayers), &parsed); err != nil {
		return err
	}
	doc := map[string]interface{}{
		"name":              meta.Name,
		"description":       meta.Description,
		"version":           "2",
		"minzoom":           meta.MinZoom,
		"maxzoom":           meta.MaxZoom,
		"center":            meta.Center,
		"bounds":            []float64{meta.Bounds.MinLon, meta.Bounds.MinLat, meta.Bounds.MaxLon, meta.Bounds.MaxLat},
		"type":              "overlay",
		"format":            "pbf",
		"generator":         meta.Generator,
		"generator_options": meta.GeneratorOptions,
		"json":              parsed,
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("tilestore: encoding metadata.json: %w", err)
	}
	return os.WriteFile(filepath.Join(s.root, "metadata.json"), b, 0o644)
}

func (s *DirStore) Close() error { return nil }
