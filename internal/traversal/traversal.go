// SPDX-License-Identifier: MIT

// Package traversal implements the zoom-by-zoom tile dispatcher: at each
// zoom level, consecutive same-tile feature runs are batched and handed
// to a per-tile renderer by a worker pool, and every rendered feature is
// simultaneously routed to the child shard(s) of the zoom below.
//
// The worker pool is a buffered task channel, errgroup.WithContext
// driving a fixed number of workers (config.CPUs), and group.Wait()
// collecting the first error — fanning workers out over independent
// per-shard tile-batch streams, since within a zoom shards never share
// state and each tile is independent of its siblings.
package traversal

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/brawer/tilekiln/internal/geo"
)

// Record is one sorted feature entry carrying the Morton key that places
// it in a tile at every zoom level, paired with an opaque payload the
// renderer understands (in the pipeline, a *diskRef to a serialized
// feature or a re-emitted *render.Feature; tests use plain markers). Kept generic via interface{} to avoid a dependency
// cycle between traversal and render.
type Record struct {
	Key     uint64
	Payload interface{}
}

// TileXY returns the tile coordinate a Morton key falls into at zoom z.
func TileXY(key uint64, z uint8) (x, y uint32) {
	wx, wy := geo.Decode(key)
	if z == 0 {
		return 0, 0
	}
	shift := uint(32 - int(z))
	return wx >> shift, wy >> shift
}

// TileBatch groups consecutive records sharing the same (z,x,y) into a
// per-tile feature batch.
type TileBatch struct {
	Z       uint8
	X, Y    uint32
	Records []Record
}

// GroupByTile partitions a shard's sorted records into per-tile batches.
// Records must already be key-sorted (the radix sort's postcondition),
// so same-tile records are contiguous.
func GroupByTile(z uint8, records []Record) []TileBatch {
	var batches []TileBatch
	var cur *TileBatch
	for _, r := range records {
		x, y := TileXY(r.Key, z)
		if cur == nil || cur.X != x || cur.Y != y {
			if cur != nil {
				batches = append(batches, *cur)
			}
			cur = &TileBatch{Z: z, X: x, Y: y}
		}
		cur.Records = append(cur.Records, r)
	}
	if cur != nil {
		batches = append(batches, *cur)
	}
	return batches
}

// ChildFeature is a feature re-emitted to the zoom below, still in world
// coordinates.
type ChildFeature struct {
	Record
	BBox geo.BBox
}

// RenderFunc renders one tile batch and returns the features to re-emit,
// untouched, to the zoom below.
type RenderFunc func(ctx context.Context, batch TileBatch) ([]ChildFeature, error)

// ShardCount picks the zoom-level shard fan-out: min(CPUs, tempFiles/4),
// clamped to a power of two not exceeding 4^(maxZoom-z) so that every
// child tile of a z-tile can live in a single shard.
func ShardCount(cpus, tempFiles int, z, maxZoom uint8) int {
	n := cpus
	if tempFiles/4 < n {
		n = tempFiles / 4
	}
	if n < 1 {
		n = 1
	}
	p := 1
	for p*2 <= n {
		p *= 2
	}
	levelsLeft := int(maxZoom) - int(z)
	if levelsLeft < 0 {
		levelsLeft = 0
	}
	cap4 := 1
	for i := 0; i < levelsLeft && cap4 < p; i++ {
		cap4 *= 4
	}
	if levelsLeft == 0 {
		return 1
	}
	if p > cap4 {
		p = cap4
	}
	if p < 1 {
		p = 1
	}
	return p
}

// ChildShard computes which shard a z+1 child tile belongs to:
// ((child_x << k) | (child_y & ((1<<k)-1))) mod shard_count, where
// k = log2(shard_count)/2 bits split between x and y.
func ChildShard(childX, childY uint32, shardCount int) int {
	if shardCount <= 1 {
		return 0
	}
	k := 0
	for (1 << uint(k)) < shardCount {
		k++
	}
	k /= 2
	if k == 0 {
		k = 1
	}
	mask := uint32(1<<uint(k)) - 1
	v := (childX << uint(k)) | (childY & mask)
	return int(v) % shardCount
}

// Dispatcher runs one zoom level's worker pool, fanning shards out across
// CPUs and routing re-emitted features into the next zoom's shards.
type Dispatcher struct {
	CPUs      int
	MaxZoom   uint8
	TempFiles int
}

// RunZoom drains shards[z] through render with a worker pool, and
// returns the next zoom's shard contents as in-memory record slices.
// It records in within[] which child tiles each shard received; that
// set is not returned or read, and no per-tile headers are written.
func (d *Dispatcher) RunZoom(ctx context.Context, z uint8, shards [][]Record, render RenderFunc) ([][]Record, error) {
	nextShardCount := ShardCount(d.CPUs, d.TempFiles, z+1, d.MaxZoom)
	next := make([][]Record, nextShardCount)
	var nextMu sync.Mutex
	within := make(map[int]map[[2]uint32]bool, nextShardCount)
	var withinMu sync.Mutex

	type task struct {
		batch TileBatch
	}
	tasks := make(chan task, 256)
	group, groupCtx := errgroup.WithContext(ctx)
	workers := d.CPUs
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		group.Go(func() error {
			for {
				select {
				case <-groupCtx.Done():
					return groupCtx.Err()
				case t, more := <-tasks:
					if !more {
						return nil
					}
					children, err := render(groupCtx, t.batch)
					if err != nil {
						return err
					}
					for _, c := range children {
						cx, cy := TileXY(c.Key, z+1)
						shard := ChildShard(cx, cy, nextShardCount)

						withinMu.Lock()
						tiles, ok := within[shard]
						if !ok {
							tiles = make(map[[2]uint32]bool)
							within[shard] = tiles
						}
						tiles[[2]uint32{cx, cy}] = true
						withinMu.Unlock()

						nextMu.Lock()
						next[shard] = append(next[shard], c.Record)
						nextMu.Unlock()
					}
				}
			}
		})
	}

	for _, shard := range shards {
		for _, batch := range GroupByTile(z, shard) {
			select {
			case tasks <- task{batch: batch}:
			case <-groupCtx.Done():
			}
		}
	}
	close(tasks)

	if err := group.Wait(); err != nil {
		return nil, err
	}

	// Workers complete in arbitrary order, so each shard's records arrive
	// in whatever order their source tiles finished rendering. GroupByTile
	// requires key-sorted input to find contiguous same-tile runs.
	for _, recs := range next {
		sort.Slice(recs, func(i, j int) bool { return recs[i].Key < recs[j].Key })
	}
	return next, nil
}
