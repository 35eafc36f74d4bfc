// SPDX-License-Identifier: MIT

// Package memfile provides a growing memory-mapped file, the backing store
// for the string pool and any other component that needs append-only
// random-access storage larger than comfortably fits in a process's heap.
// It grows by truncating the backing file and remapping, but keeps raw
// pointers from ever crossing a goroutine boundary: callers get copies
// via Read, and Append returns a stable byte offset rather than a pointer.
package memfile

import (
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

const (
	initialSize = 256
	increment   = 128 * 1024
)

// Memfile is a single memory-mapped temp file that grows its capacity in
// increment-sized steps and remaps. Not safe for concurrent
// use from multiple goroutines; callers that shard by worker (§5) each own
// one Memfile.
type Memfile struct {
	file *os.File
	m    mmap.MMap
	size int64 // current mapping capacity
	off  int64 // high-water mark of written bytes
}

// Open creates a Memfile backed by a freshly created, immediately unlinked
// temp file in dir ("" uses the default temp dir), matching §3's ownership
// rule that temp files are unlinked on shutdown / normal completion — here
// we unlink eagerly since nothing other than this process's open fd needs
// the directory entry.
func Open(dir string) (*Memfile, error) {
	f, err := os.CreateTemp(dir, "tilekiln-memfile-*")
	if err != nil {
		return nil, err
	}
	name := f.Name()
	if err := f.Truncate(initialSize); err != nil {
		f.Close()
		os.Remove(name)
		return nil, err
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		os.Remove(name)
		return nil, err
	}
	mf := &Memfile{file: f, m: m, size: initialSize}
	// Unlink immediately: the inode stays alive via the open fd/mapping
	// until Close, but the directory entry is gone right away so a crash
	// never leaves scratch files behind.
	os.Remove(name)
	return mf, nil
}

// Append writes b to the end of the file and returns the byte offset it
// was written at.
func (mf *Memfile) Append(b []byte) (offset int64, err error) {
	need := mf.off + int64(len(b))
	if need > mf.size {
		if err := mf.grow(need); err != nil {
			return 0, err
		}
	}
	offset = mf.off
	copy(mf.m[offset:], b)
	mf.off += int64(len(b))
	return offset, nil
}

func (mf *Memfile) grow(need int64) error {
	newSize := mf.size
	for newSize < need {
		newSize += increment
	}
	if err := mf.m.Unmap(); err != nil {
		return err
	}
	if err := mf.file.Truncate(newSize); err != nil {
		return err
	}
	m, err := mmap.Map(mf.file, mmap.RDWR, 0)
	if err != nil {
		return err
	}
	mf.m = m
	mf.size = newSize
	return nil
}

// Read copies len(b) bytes starting at offset into b.
func (mf *Memfile) Read(offset int64, b []byte) error {
	copy(b, mf.m[offset:offset+int64(len(b))])
	return nil
}

// Len returns the number of bytes appended so far.
func (mf *Memfile) Len() int64 { return mf.off }

// Close unmaps and closes the underlying (already-unlinked) file.
func (mf *Memfile) Close() error {
	if err := mf.m.Unmap(); err != nil {
		mf.file.Close()
		return err
	}
	return mf.file.Close()
}
