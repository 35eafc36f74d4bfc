// SPDX-License-Identifier: MIT

package tilestore

// tileID identifies a stored tile for MemStore's map key.
type tileID struct {
	z    uint8
	x, y uint32
}

// MemStore is an in-memory Store, used by tests that don't want to touch
// a filesystem or a real SQLite file.
type MemStore struct {
	Tiles map[tileID][]byte
	Meta  Metadata
	Done  bool
}

func NewMemStore() *MemStore {
	return &MemStore{Tiles: make(map[tileID][]byte)}
}

func (s *MemStore) PutTile(z uint8, x, y uint32, data []byte) error {
	s.Tiles[tileID{z, x, y}] = data
	return nil
}

func (s *MemStore) Get(z uint8, x, y uint32) ([]byte, bool) {
	d, ok := s.Tiles[tileID{z, x, y}]
	return d, ok
}

func (s *MemStore) Finish(meta Metadata) error {
	s.Meta = meta
	s.Done = true
	return nil
}

func (s *MemStore) Close() error { return nil }
