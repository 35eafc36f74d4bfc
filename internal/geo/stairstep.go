// SPDX-License-Identifier: MIT

package geo

import "github.com/fogleman/gg"

// Stairstep rasterises geom's line segments at the given zoom/detail using
// Bresenham's algorithm, used only for a debug visualisation mode — it
// never participates in the size-budget retry loop.
func Stairstep(geom Drawvec, z, detail uint8) []image2DPoint {
	var out []image2DPoint
	for _, ring := range geom.Rings() {
		for i := 1; i < len(ring); i++ {
			if ring[i].Op != LineTo {
				continue
			}
			out = append(out, bresenham(ring[i-1].X, ring[i-1].Y, ring[i].X, ring[i].Y)...)
		}
	}
	return out
}

type image2DPoint struct{ X, Y int64 }

func bresenham(x0, y0, x1, y1 int64) []image2DPoint {
	var pts []image2DPoint
	dx := absI(x1 - x0)
	dy := -absI(y1 - y0)
	sx := int64(1)
	if x0 >= x1 {
		sx = -1
	}
	sy := int64(1)
	if y0 >= y1 {
		sy = -1
	}
	err := dx + dy
	x, y := x0, y0
	for {
		pts = append(pts, image2DPoint{x, y})
		if x == x1 && y == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
	return pts
}

func absI(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// DumpStairstepPNG writes pts to path as a white-on-black PNG, one pixel
// per rasterised point, clipped to a size x size canvas. It's a debug aid
// for inspecting Stairstep's output by eye, not part of any render path.
func DumpStairstepPNG(pts []image2DPoint, size int, path string) error {
	dc := gg.NewContext(size, size)
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	dc.SetRGB(1, 1, 1)
	for _, p := range pts {
		if p.X < 0 || p.Y < 0 || p.X >= int64(size) || p.Y >= int64(size) {
			continue
		}
		dc.SetPixel(int(p.X), int(p.Y))
	}
	return dc.SavePNG(path)
}
