// SPDX-License-Identifier: MIT

package tilestore

import (
	"database/sql"
	"fmt"
	"math"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// mbtilesBatchSize caps how many tile inserts share one transaction,
// bounding how much an in-flight batch can lose if the process dies
// mid-build while keeping SQLite from fsyncing once per tile.
const mbtilesBatchSize = 1000

// MBTilesStore writes the standard MBTiles SQLite schema: a
// `tiles(zoom_level, tile_column, tile_row, tile_data BLOB)` table with
// TMS-flipped y, and a `metadata(name TEXT, value TEXT)` k/v table
// written at Finish. PutTile is called concurrently by render workers
// (internal/pipeline's makeRenderFunc), so inserts are batched into
// transactions of mbtilesBatchSize under a mutex rather than committing
// (and fsyncing) once per tile.
type MBTilesStore struct {
	db   *sql.DB
	path string

	mu      sync.Mutex
	tx      *sql.Tx
	pending int
}

// NewMBTilesStore creates (overwriting) path and prepares its schema.
func NewMBTilesStore(path string) (*MBTilesStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("tilestore: opening %s: %w", path, err)
	}
	schema := `
		CREATE TABLE metadata (name TEXT, value TEXT);
		CREATE TABLE tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB);
		CREATE UNIQUE INDEX tiles_zxy ON tiles (zoom_level, tile_column, tile_row);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("tilestore: creating schema: %w", err)
	}
	return &MBTilesStore{db: db, path: path}, nil
}

// flippedY converts an XYZ row into the TMS row MBTiles expects.
func flippedY(z uint8, y uint32) uint32 {
	return uint32(math.Pow(2, float64(z))) - 1 - y
}

func (s *MBTilesStore) PutTile(z uint8, x, y uint32, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("tilestore: beginning tile batch: %w", err)
		}
		s.tx = tx
	}

	_, err := s.tx.Exec(
		"INSERT INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)",
		int(z), int(x), int(flippedY(z, y)), data,
	)
	if err != nil {
		s.tx.Rollback()
		s.tx = nil
		s.pending = 0
		return fmt.Errorf("tilestore: inserting tile z=%d x=%d y=%d: %w", z, x, y, err)
	}

	s.pending++
	if s.pending >= mbtilesBatchSize {
		if err := s.commitLocked(); err != nil {
			return err
		}
	}
	return nil
}

// commitLocked commits the open tile batch, if any. Caller must hold mu.
func (s *MBTilesStore) commitLocked() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	s.pending = 0
	if err != nil {
		return fmt.Errorf("tilestore: committing tile batch: %w", err)
	}
	return nil
}

func (s *MBTilesStore) Finish(meta Metadata) error {
	s.mu.Lock()
	err := s.commitLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	vectorLayers, err := vectorLayersJSON(meta)
	if err != nil {
		return err
	}

	centerStr := fmt.Sprintf("%g,%g,%g", meta.Center[0], meta.Center[1], meta.Center[2])
	boundsStr := fmt.Sprintf("%g,%g,%g,%g", meta.Bounds.MinLon, meta.Bounds.MinLat, meta.Bounds.MaxLon, meta.Bounds.MaxLat)

	rows := [][2]string{
		{"name", meta.Name},
		{"description", meta.Description},
		{"version", "2"},
		{"minzoom", fmt.Sprint(meta.MinZoom)},
		{"maxzoom", fmt.Sprint(meta.MaxZoom)},
		{"center", centerStr},
		{"bounds", boundsStr},
		{"type", "overlay"},
		{"format", "pbf"},
		{"generator", meta.Generator},
		{"generator_options", meta.GeneratorOptions},
		{"json", vectorLayers},
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("tilestore: beginning metadata transaction: %w", err)
	}
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		if _, err := tx.Exec("INSERT INTO metadata (name, value) VALUES (?, ?)", row[0], row[1]); err != nil {
			tx.Rollback()
			return fmt.Errorf("tilestore: inserting metadata row %q: %w", row[0], err)
		}
	}
	return tx.Commit()
}

func (s *MBTilesStore) Close() error {
	return s.db.Close()
}
