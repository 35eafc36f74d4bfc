// SPDX-License-Identifier: MIT

package strpool

import "testing"

func TestInternReturnsStableOffset(t *testing.T) {
	p, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	off1, err := p.Intern(TypeKey, "population")
	if err != nil {
		t.Fatal(err)
	}
	off2, err := p.Intern(TypeKey, "population")
	if err != nil {
		t.Fatal(err)
	}
	if off1 != off2 {
		t.Errorf("expected same offset for repeated intern, got %d and %d", off1, off2)
	}

	off3, err := p.Intern(TypeValue, "population")
	if err != nil {
		t.Fatal(err)
	}
	if off3 == off1 {
		t.Errorf("different types should not collide: key offset %d == value offset %d", off1, off3)
	}
}

func TestResolveRoundTrip(t *testing.T) {
	p, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	strings := []string{"name", "population", "日本語", "a_longer_attribute_key_name"}
	offsets := make([]int64, len(strings))
	for i, s := range strings {
		off, err := p.Intern(TypeValue, s)
		if err != nil {
			t.Fatal(err)
		}
		offsets[i] = off
	}
	for i, s := range strings {
		typ, got, err := p.Resolve(offsets[i])
		if err != nil {
			t.Fatal(err)
		}
		if typ != TypeValue || got != s {
			t.Errorf("Resolve(%d) = (%v,%q), want (%v,%q)", offsets[i], typ, got, TypeValue, s)
		}
	}
}

func TestInternManyDistinctStrings(t *testing.T) {
	p, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	seen := make(map[int64]string)
	for i := 0; i < 2000; i++ {
		s := randishString(i)
		off, err := p.Intern(TypeValue, s)
		if err != nil {
			t.Fatal(err)
		}
		if prev, ok := seen[off]; ok && prev != s {
			t.Fatalf("offset collision between %q and %q", prev, s)
		}
		seen[off] = s
	}
}

// depthCapCollisionStrings all hash to the same 31-bit polyHash value
// (verified offline), so interning them one after another forces a single
// same-hash chain in the tree instead of spreading across buckets: every
// comparison after the first collides on hash, and since the stored
// string never matches, compareEntries forces "go right," so each insert
// extends one straight chain by one node.
var depthCapCollisionStrings = []string{
	"\x74\x61\x67\x41\x14\x1b\x16\x1d\x0a\x13",
	"\x74\x61\x67\x42\x03\x16\x1d\x16\x0c\x15\x1b",
	"\x74\x61\x67\x43\x01\x18\x02\x12\x05\x0b\x14",
	"\x74\x61\x67\x44\x04\x14\x07\x02\x1b\x19\x11",
	"\x74\x61\x67\x45\x02\x15\x0a\x1d\x14\x0f\x0a",
	"\x74\x61\x67\x46\x0f\x1c\x0b\x1c\x03\x17",
	"\x74\x61\x67\x47\x03\x12\x13\x0a\x04\x12\x1f",
	"\x74\x61\x67\x48\x01\x13\x17\x05\x1c\x08\x18",
	"\x74\x61\x67\x49\x04\x0f\x1b\x15\x13\x16\x15",
	"\x74\x61\x67\x4a\x02\x10\x1f\x11\x0c\x0c\x0e",
	"\x74\x61\x67\x4b\x0a\x1c\x1f\x1a\x1b\x1b",
	"\x74\x61\x67\x4c\x03\x0e\x08\x1c\x1b\x10\x04",
}

// TestInternBeyondDepthCapBypassesDedup pins the tree's depth-cap escape
// hatch: once the chain built by the first 11 colliding strings is deep
// enough (11 nodes, past maxDepth for that node count), interning a 12th
// colliding string bypasses the search tree entirely instead of inserting
// a node for it. Without a node recorded, interning that *same* string a
// second time retraces the same over-deep chain and bypasses again,
// landing on a second, different offset — the (type, string) -> offset
// contract documented in Intern's comment is not guaranteed past the
// depth cap, and this test keeps that quirk pinned rather than silent.
func TestInternBeyondDepthCapBypassesDedup(t *testing.T) {
	p, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	for _, s := range depthCapCollisionStrings[:11] {
		if _, err := p.Intern(TypeValue, s); err != nil {
			t.Fatal(err)
		}
	}

	last := depthCapCollisionStrings[11]
	off1, err := p.Intern(TypeValue, last)
	if err != nil {
		t.Fatal(err)
	}
	off2, err := p.Intern(TypeValue, last)
	if err != nil {
		t.Fatal(err)
	}
	if off1 == off2 {
		t.Fatalf("expected the depth-cap bypass to skip dedup, got the same offset %d twice", off1)
	}

	typ, got, err := p.Resolve(off2)
	if err != nil {
		t.Fatal(err)
	}
	if typ != TypeValue || got != last {
		t.Errorf("Resolve(%d) = (%v,%q), want (%v,%q)", off2, typ, got, TypeValue, last)
	}
}

func randishString(seed int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	buf := make([]byte, 4+(seed%12))
	x := uint32(seed*2654435761 + 1)
	for i := range buf {
		x = x*1103515245 + 12345
		buf[i] = letters[(x>>16)%uint32(len(letters))]
	}
	return string(buf)
}
