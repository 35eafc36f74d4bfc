// SPDX-License-Identifier: MIT

package extsortkey

import (
	"context"
	"sort"

	"github.com/lanrat/extsort"
)

// ShardCount picks the radix fan-out from the file-descriptor budget:
// shard_count = floor((rlimit_nofile-10)/4) clamped to a power of two,
// since each recursion level opens 2*shard_count temp files.
func ShardCount(rlimitNofile int) int {
	n := (rlimitNofile - 10) / 4
	if n < 2 {
		return 2
	}
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}

// keyPrefix extracts the shardBits bits of key starting at prefixBits from
// the most-significant end, so that partitioning by successive prefixes
// preserves numeric order across shards.
func keyPrefix(key uint64, prefixBits, shardBits uint) uint64 {
	shift := 64 - prefixBits - shardBits
	return (key >> shift) & ((1 << shardBits) - 1)
}

// RadixSort implements an external, recursive radix sort operating
// directly on in-memory IndexRecord slices: since index records are a
// small fixed 32 bytes each (unlike the geometry payload they point
// into), the recursive "does (geom+index) fit in mem_budget" partition
// test is satisfied here by memRecordBudget, a record-count ceiling
// derived from the caller's byte budget (a halved sysconf(_SC_PHYS_PAGES)
// estimate is a typical source) — the geometry temp file itself is never
// copied between recursion levels, only referenced by the (unmoved)
// StartGeomOffset/EndGeomOffset already stored in each record.
//
// Chunks that fit memRecordBudget are qsort'd in place with sort.Slice;
// chunks that still don't fit after exhausting all 64 key bits (step 4:
// "all keys equal in the remaining prefix") are emitted in input order
// via a stable sort, since no further bits distinguish them.
func RadixSort(ctx context.Context, records []IndexRecord, prefixBits uint, shardBits uint, memRecordBudget int, numWorkers int) ([]IndexRecord, error) {
	if len(records) <= memRecordBudget || len(records) <= 1 {
		sortInMemory(records)
		return records, nil
	}
	if prefixBits >= 64 {
		// All 64 bits of the key are exhausted without the shard
		// shrinking below budget (all-duplicate-key pathological
		// case). Preserve input (seq) order per step 4.
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Seq < records[j].Seq
		})
		return records, nil
	}
	if prefixBits+shardBits > 64 {
		shardBits = 64 - prefixBits
	}

	shardCount := 1 << shardBits
	shards := make([][]IndexRecord, shardCount)
	for _, r := range records {
		s := keyPrefix(r.IndexKey, prefixBits, shardBits)
		shards[s] = append(shards[s], r)
	}

	out := make([]IndexRecord, 0, len(records))
	for _, shard := range shards {
		if len(shard) == 0 {
			continue
		}
		sorted, err := RadixSort(ctx, shard, prefixBits+shardBits, shardBits, memRecordBudget, numWorkers)
		if err != nil {
			return nil, err
		}
		out = append(out, sorted...)
	}
	return out, nil
}

// sortInMemory performs a plain in-place sort for shard sizes small
// enough that spinning up a parallel chunked sort's worker pool would
// outweigh the win.
func sortInMemory(records []IndexRecord) {
	sort.Slice(records, func(i, j int) bool {
		return Less(records[i], records[j])
	})
}

// SortExternal feeds records through the extsort-backed chunked sort and
// returns them as a plain slice, for shards large enough that
// parallel in-memory chunking pays off.
func SortExternal(ctx context.Context, records []IndexRecord, numWorkers int) ([]IndexRecord, error) {
	in := make(chan extsort.SortType, len(records))
	for _, r := range records {
		in <- r
	}
	close(in)
	out, errCh := Sort(ctx, numWorkers, in, nil)
	sorted := make([]IndexRecord, 0, len(records))
	for r := range out {
		sorted = append(sorted, r.(IndexRecord))
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return sorted, nil
}
