// SPDX-License-Identifier: MIT

package memfile

import (
	"bytes"
	"testing"
)

func TestAppendAndRead(t *testing.T) {
	mf, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer mf.Close()

	off1, err := mf.Append([]byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	off2, err := mf.Append([]byte("world"))
	if err != nil {
		t.Fatal(err)
	}
	if off1 != 0 || off2 != 5 {
		t.Fatalf("unexpected offsets: %d, %d", off1, off2)
	}

	buf := make([]byte, 5)
	if err := mf.Read(off1, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, []byte("hello")) {
		t.Errorf("got %q, want %q", buf, "hello")
	}
	if err := mf.Read(off2, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, []byte("world")) {
		t.Errorf("got %q, want %q", buf, "world")
	}
}

func TestAppendGrowsBeyondInitial(t *testing.T) {
	mf, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer mf.Close()

	big := bytes.Repeat([]byte("x"), 500*1024)
	off, err := mf.Append(big)
	if err != nil {
		t.Fatal(err)
	}
	got := make([]byte, len(big))
	if err := mf.Read(off, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, big) {
		t.Error("round trip through a grown mapping failed")
	}
}
