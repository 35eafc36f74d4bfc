// SPDX-License-Identifier: MIT

package extsortkey

import (
	"context"
	"runtime"

	"github.com/lanrat/extsort"
	"golang.org/x/sync/errgroup"
)

// Sort drains records, chunk-sorts and k-way merges them by (IndexKey, Seq)
// via github.com/lanrat/extsort, and returns the sorted stream: a
// producer goroutine feeds the input channel, a second goroutine drives
// sorter.Sort(ctx) (not the errgroup's derived context — extsort's own
// docs ask for the parent context so that a cancelled producer doesn't
// starve the sorter mid-merge), and the caller ranges over the returned
// channel.
//
// numWorkers bounds the in-memory chunk-sort parallelism; callers pass
// config.CPUs.
func Sort(ctx context.Context, numWorkers int, records <-chan extsort.SortType, produce func(chan<- extsort.SortType) error) (<-chan extsort.SortType, <-chan error) {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	in := make(chan extsort.SortType, 10000)
	cfg := extsort.DefaultConfig()
	cfg.NumWorkers = numWorkers
	sorter, outChan, sortErrChan := extsort.New(in, FromBytes, Less, cfg)

	g, subCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(in)
		if records != nil {
			for r := range records {
				select {
				case in <- r:
				case <-subCtx.Done():
					return subCtx.Err()
				}
			}
			return nil
		}
		return produce(in)
	})

	errOut := make(chan error, 1)
	go func() {
		sorter.Sort(ctx) // parent ctx, not subCtx, per extsort's docs
		if err := g.Wait(); err != nil {
			errOut <- err
			return
		}
		for err := range sortErrChan {
			if err != nil {
				errOut <- err
				return
			}
		}
		errOut <- nil
	}()

	return outChan, errOut
}
