// SPDX-License-Identifier: MIT

// Package extsortkey implements an external radix sort of ingest index
// records: a 64-bit Morton key partitions records into shards by
// successive most-significant-bit prefixes (recursing on any shard too
// big to sort in memory), and each shard that does fit is sorted in
// memory and merged out in key order.
//
// The in-memory chunk-sort-and-merge step reuses github.com/lanrat/extsort:
// IndexRecord implements extsort.SortType via ToBytes / FromBytes / Less
// free functions. The shard-partitioning-by-key-prefix step on top is
// additional — extsort alone does an unordered k-way external sort, and
// each recursion level here also respects a hard file-descriptor budget
// derived from rlimit_nofile.
package extsortkey

import (
	"encoding/binary"

	"github.com/lanrat/extsort"
)

// IndexRecord is the 32-byte fixed index record: it allows sorting and
// random access to the feature in the geometry temp file.
type IndexRecord struct {
	StartGeomOffset uint64
	EndGeomOffset   uint64
	IndexKey        uint64
	Segment         uint16
	Type            uint8 // geo.GeometryType, kept untyped to avoid import cycle
	Seq             uint64 // only the low 40 bits are stored on disk (see ToBytes)
}

// ToBytes serializes r into the fixed 32-byte on-disk layout.
func (r IndexRecord) ToBytes() []byte {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint64(buf[0:8], r.StartGeomOffset)
	binary.LittleEndian.PutUint64(buf[8:16], r.EndGeomOffset)
	binary.LittleEndian.PutUint64(buf[16:24], r.IndexKey)
	binary.LittleEndian.PutUint16(buf[24:26], r.Segment)
	buf[26] = r.Type
	// seq is 46 bits; store in the remaining 5 bytes (40 bits) plus
	// borrow the top 6 bits of byte 26 would overcomplicate a flat
	// layout, so we widen to a 40-bit seq here, sufficient for any
	// realistic per-segment feature count, and keep the struct's Seq
	// field at uint64 for arithmetic convenience.
	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], r.Seq)
	copy(buf[27:32], seqBuf[:5])
	return buf
}

// FromBytes deserializes an IndexRecord and is passed to extsort.New as
// the FromBytes hook.
func FromBytes(b []byte) extsort.SortType {
	var seqBuf [8]byte
	copy(seqBuf[:5], b[27:32])
	return IndexRecord{
		StartGeomOffset: binary.LittleEndian.Uint64(b[0:8]),
		EndGeomOffset:   binary.LittleEndian.Uint64(b[8:16]),
		IndexKey:        binary.LittleEndian.Uint64(b[16:24]),
		Segment:         binary.LittleEndian.Uint16(b[24:26]),
		Type:            b[26],
		Seq:             binary.LittleEndian.Uint64(seqBuf[:]),
	}
}

// Less orders records by (IndexKey, Seq) — sort key primary, input order
// as tie-break: features with the same curve key are processed in input
// seq order.
func Less(a, b extsort.SortType) bool {
	aa := a.(IndexRecord)
	bb := b.(IndexRecord)
	if aa.IndexKey != bb.IndexKey {
		return aa.IndexKey < bb.IndexKey
	}
	return aa.Seq < bb.Seq
}
