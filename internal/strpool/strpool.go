// SPDX-License-Identifier: MIT

// Package strpool implements an on-disk string interning pool: an
// append-only file of concatenated (type, NUL-terminated UTF-8) records,
// with a parallel in-memory binary search tree keyed by a
// deterministic string hash so repeated (type, string) pairs resolve to
// the same offset. Tree nodes live by index in a growing slice rather
// than as in-memory pointers, and search depth is capped, falling back
// to append-only insertion for very deep chains — dedup becomes
// best-effort there, never a correctness requirement.
package strpool

import (
	"math"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/brawer/tilekiln/internal/memfile"
)

// Type distinguishes attribute keys from values (and any other interned
// string category a caller wants) sharing one pool.
type Type uint8

const (
	TypeKey Type = iota
	TypeValue
)

type node struct {
	hash        uint32
	typ         Type
	valueOffset int64
	left, right int32 // -1 when absent
}

// Pool is an append-only string interning table backed by a Memfile.
// Safe for concurrent use by multiple ingest workers: every access to the
// tree and the backing Memfile runs under mu, since Memfile itself is not
// safe for concurrent use.
type Pool struct {
	mu    sync.Mutex
	data  *memfile.Memfile
	nodes []node
	root  int32
}

// Open creates a new, empty pool backed by temp files in dir.
func Open(dir string) (*Pool, error) {
	mf, err := memfile.Open(dir)
	if err != nil {
		return nil, err
	}
	return &Pool{data: mf, root: -1}, nil
}

func (p *Pool) Close() error { return p.data.Close() }

// maxDepth caps tree-walk depth to 3*log2(N) or 30.
func (p *Pool) maxDepth() int {
	n := len(p.nodes)
	if n == 0 {
		return 30
	}
	d := int(3 * math.Log2(float64(n+1)))
	if d > 30 {
		return 30
	}
	if d < 1 {
		d = 1
	}
	return d
}

// Intern returns a stable offset for (typ, s); under normal load the same
// (type, string) pair always returns the same offset, but this is not
// guaranteed once the tree-depth escape triggers.
func (p *Pool) Intern(typ Type, s string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s = norm.NFC.String(s)
	h := polyHash(s)

	cur := p.root
	depth := 0
	maxDepth := p.maxDepth()
	var parent *int32
	for cur >= 0 {
		n := &p.nodes[cur]
		cmp := compareEntries(h, typ, n.hash, n.typ)
		if cmp == 0 {
			if equalStored, err := p.stringAt(n.valueOffset, typ, s); err == nil && equalStored {
				return n.valueOffset, nil
			}
			// Hash/type collision with a different string: treat as
			// "go right" so distinct strings still get distinct nodes.
			cmp = 1
		}
		depth++
		if depth > maxDepth {
			// Bypass the tree: append without inserting a search node.
			return p.append(typ, s)
		}
		if cmp < 0 {
			parent = &n.left
			cur = n.left
		} else {
			parent = &n.right
			cur = n.right
		}
	}

	offset, err := p.append(typ, s)
	if err != nil {
		return 0, err
	}
	idx := int32(len(p.nodes))
	p.nodes = append(p.nodes, node{hash: h, typ: typ, valueOffset: offset, left: -1, right: -1})
	if parent != nil {
		*parent = idx
	} else {
		p.root = idx
	}
	return offset, nil
}

func (p *Pool) append(typ Type, s string) (int64, error) {
	buf := make([]byte, 0, len(s)+2)
	buf = append(buf, byte(typ))
	buf = append(buf, s...)
	buf = append(buf, 0)
	return p.data.Append(buf)
}

// Resolve performs pointer arithmetic into the memfile to recover the
// (type, string) stored at offset.
func (p *Pool) Resolve(offset int64) (Type, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolveLocked(offset)
}

func (p *Pool) resolveLocked(offset int64) (Type, string, error) {
	head := make([]byte, 1)
	if err := p.data.Read(offset, head); err != nil {
		return 0, "", err
	}
	typ := Type(head[0])
	// Scan for the terminating NUL. Strings are expected to be short
	// (attribute keys/values), so a byte-at-a-time scan is acceptable.
	const chunk = 64
	var out []byte
	pos := offset + 1
	buf := make([]byte, chunk)
	for {
		if err := p.data.Read(pos, buf); err != nil {
			return 0, "", err
		}
		if i := indexZero(buf); i >= 0 {
			out = append(out, buf[:i]...)
			break
		}
		out = append(out, buf...)
		pos += chunk
	}
	return typ, string(out), nil
}

func (p *Pool) stringAt(offset int64, typ Type, s string) (bool, error) {
	gotType, gotStr, err := p.resolveLocked(offset)
	if err != nil {
		return false, err
	}
	return gotType == typ && gotStr == s, nil
}

func indexZero(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

func compareEntries(h uint32, typ Type, otherHash uint32, otherTyp Type) int {
	if h != otherHash {
		if h < otherHash {
			return -1
		}
		return 1
	}
	return int(typ) - int(otherTyp)
}

// polyHash is a 31-bit polynomial hash over s's bytes, combined with typ
// as a tie-break in compareEntries when two strings collide.
func polyHash(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h & 0x7fffffff
}
