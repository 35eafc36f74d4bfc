// SPDX-License-Identifier: MIT

package geo

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStairstepRasterisesStraightLine(t *testing.T) {
	geom := Drawvec{
		{Op: MoveTo, X: 0, Y: 0},
		{Op: LineTo, X: 4, Y: 0},
	}
	pts := Stairstep(geom, 0, 12)
	if len(pts) != 5 {
		t.Fatalf("expected 5 rasterised points for a 4-unit horizontal line, got %d", len(pts))
	}
	for i, p := range pts {
		if p.X != int64(i) || p.Y != 0 {
			t.Errorf("pts[%d] = %+v, want {%d,0}", i, p, i)
		}
	}
}

func TestDumpStairstepPNGWritesValidFile(t *testing.T) {
	geom := Drawvec{
		{Op: MoveTo, X: 0, Y: 0},
		{Op: LineTo, X: 8, Y: 8},
	}
	pts := Stairstep(geom, 0, 12)

	path := filepath.Join(t.TempDir(), "stairstep.png")
	if err := DumpStairstepPNG(pts, 16, path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	pngMagic := []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	if len(data) < len(pngMagic) {
		t.Fatalf("file too short to be a PNG: %d bytes", len(data))
	}
	for i, b := range pngMagic {
		if data[i] != b {
			t.Fatalf("file does not start with PNG magic bytes, got % x", data[:len(pngMagic)])
		}
	}
}

func TestDumpStairstepPNGSkipsOutOfBoundsPoints(t *testing.T) {
	pts := []image2DPoint{{X: -1, Y: -1}, {X: 100, Y: 100}, {X: 2, Y: 2}}
	path := filepath.Join(t.TempDir(), "clipped.png")
	if err := DumpStairstepPNG(pts, 4, path); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Fatalf("expected a non-empty PNG even with all-but-one point out of bounds")
	}
}
