// SPDX-License-Identifier: MIT

// Package tilejoin implements a peripheral tile-join/merge step: it reads
// multiple existing tile stores, merges same-(z,x,y) layers, optionally
// joins in CSV attribute rows by feature id, and re-encodes through the
// same orb mvt marshaller the renderer uses.
//
// The merge itself is a k-way merge over tile-key-ordered streams: a
// container/heap over one "next item" per source, advanced one step at
// a time, with TileKey-tagged tile records as the ordered items instead
// of text lines, so the heap compares TileKey instead of byte-comparing
// scanner output.
package tilejoin

import (
	"container/heap"
	"io"
)

// TileKey orders tiles the same way the zoom traversal does: by zoom,
// then x, then y.
type TileKey struct {
	Z    uint8
	X, Y uint32
}

func (a TileKey) Less(b TileKey) bool {
	if a.Z != b.Z {
		return a.Z < b.Z
	}
	if a.X != b.X {
		return a.X < b.X
	}
	return a.Y < b.Y
}

func (a TileKey) Equal(b TileKey) bool { return a == b }

// Source yields tile records in ascending TileKey order; a real tile
// store implementation (internal/tilestore) backs this during a join,
// but the interface keeps the merge logic testable without one.
type Source interface {
	// Next returns the next tile record, or io.EOF when exhausted.
	Next() (TileKey, []byte, error)
}

type mergee struct {
	src     Source
	key     TileKey
	data    []byte
	atEOF   bool
	lastErr error
}

func (m *mergee) advance() {
	k, d, err := m.src.Next()
	if err == io.EOF {
		m.atEOF = true
		return
	}
	if err != nil {
		m.lastErr = err
		m.atEOF = true
		return
	}
	m.key, m.data = k, d
}

type mergeHeap []*mergee

func (h mergeHeap) Len() int            { return len(h) }
func (h mergeHeap) Less(i, j int) bool  { return h[i].key.Less(h[j].key) }
func (h mergeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x interface{}) { *h = append(*h, x.(*mergee)) }
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Merger walks N tile sources in TileKey order, grouping same-key tiles
// from different sources together so the caller can merge their layers.
type Merger struct {
	h      mergeHeap
	err    error
	inited bool
}

// NewMerger primes one mergee per source.
func NewMerger(sources []Source) *Merger {
	m := &Merger{h: make(mergeHeap, 0, len(sources))}
	for _, s := range sources {
		item := &mergee{src: s}
		item.advance()
		if item.lastErr != nil {
			m.err = item.lastErr
			return m
		}
		if !item.atEOF {
			m.h = append(m.h, item)
		}
	}
	heap.Init(&m.h)
	m.inited = true
	return m
}

func (m *Merger) Err() error { return m.err }

// Next pops every source currently sitting on the smallest TileKey,
// advances each past it, and returns the key plus the list of tile byte
// payloads that shared it (the merge group the caller's layer-merge logic
// operates on).
func (m *Merger) Next() (TileKey, [][]byte, bool) {
	if m.err != nil || len(m.h) == 0 {
		return TileKey{}, nil, false
	}
	key := m.h[0].key
	var group [][]byte
	for len(m.h) > 0 && m.h[0].key.Equal(key) {
		item := m.h[0]
		group = append(group, item.data)
		item.advance()
		if item.lastErr != nil {
			m.err = item.lastErr
			return TileKey{}, nil, false
		}
		if item.atEOF {
			heap.Remove(&m.h, 0)
		} else {
			heap.Fix(&m.h, 0)
		}
	}
	return key, group, true
}
