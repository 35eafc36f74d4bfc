// SPDX-License-Identifier: MIT

package geo

// BBox is an axis-aligned integer bounding box, inclusive-low /
// exclusive-high per axis (a documented corner-vanishing quirk that we
// intentionally preserve rather than silently fix).
type BBox struct {
	MinX, MinY, MaxX, MaxY int64
}

func (b BBox) Contains(x, y int64) bool {
	return x >= b.MinX && x < b.MaxX && y >= b.MinY && y < b.MaxY
}

func (b BBox) Buffered(buf int64) BBox {
	return BBox{b.MinX - buf, b.MinY - buf, b.MaxX + buf, b.MaxY + buf}
}

// outcode bits for Cohen-Sutherland.
const (
	codeLeft   = 1
	codeRight  = 2
	codeBottom = 4
	codeTop    = 8
)

func outcode(b BBox, x, y int64) int {
	c := 0
	if x < b.MinX {
		c |= codeLeft
	} else if x >= b.MaxX {
		c |= codeRight
	}
	if y < b.MinY {
		c |= codeBottom
	} else if y >= b.MaxY {
		c |= codeTop
	}
	return c
}

// ClipLines clips each segment of geom against bbox using Cohen-Sutherland.
// Segments wholly outside are replaced by a lone MoveTo at the endpoint (so
// the following MoveTo stays cheap, per §4.A); segments crossing an edge
// are split at the intersection; segments wholly inside pass through
// unchanged.
func ClipLines(geom Drawvec, bbox BBox) Drawvec {
	var out Drawvec
	for _, ring := range geom.Rings() {
		if len(ring) == 0 {
			continue
		}
		started := false
		prev := ring[0]
		for i, p := range ring {
			if i == 0 {
				continue
			}
			x1, y1, x2, y2, ok := clipSegment(bbox, prev.X, prev.Y, p.X, p.Y)
			if !ok {
				// Entire segment outside: emit a lone MoveTo at the
				// far endpoint so the following LineTo (if any) still
				// has a valid origin.
				if !started {
					out = append(out, Draw{Op: MoveTo, X: p.X, Y: p.Y})
					started = true
				} else {
					out = append(out, Draw{Op: MoveTo, X: p.X, Y: p.Y})
				}
				prev = p
				continue
			}
			if !started {
				out = append(out, Draw{Op: MoveTo, X: x1, Y: y1, Necessary: true})
				started = true
			} else if out[len(out)-1].X != x1 || out[len(out)-1].Y != y1 {
				out = append(out, Draw{Op: MoveTo, X: x1, Y: y1, Necessary: true})
			}
			necessary := x2 != p.X || y2 != p.Y
			out = append(out, Draw{Op: LineTo, X: x2, Y: y2, Necessary: necessary})
			prev = p
		}
	}
	return out
}

// clipSegment runs Cohen-Sutherland on (x1,y1)-(x2,y2) against bbox. ok is
// false if the segment is wholly outside.
func clipSegment(b BBox, x1, y1, x2, y2 int64) (rx1, ry1, rx2, ry2 int64, ok bool) {
	c1 := outcode(b, x1, y1)
	c2 := outcode(b, x2, y2)
	for {
		if c1 == 0 && c2 == 0 {
			return x1, y1, x2, y2, true
		}
		if c1&c2 != 0 {
			return 0, 0, 0, 0, false
		}
		co := c1
		if co == 0 {
			co = c2
		}
		var x, y int64
		switch {
		case co&codeTop != 0:
			x = x1 + (x2-x1)*(b.MaxY-1-y1)/(y2-y1)
			y = b.MaxY - 1
		case co&codeBottom != 0:
			x = x1 + (x2-x1)*(b.MinY-y1)/(y2-y1)
			y = b.MinY
		case co&codeRight != 0:
			y = y1 + (y2-y1)*(b.MaxX-1-x1)/(x2-x1)
			x = b.MaxX - 1
		case co&codeLeft != 0:
			y = y1 + (y2-y1)*(b.MinX-x1)/(x2-x1)
			x = b.MinX
		}
		if co == c1 {
			x1, y1 = x, y
			c1 = outcode(b, x1, y1)
		} else {
			x2, y2 = x, y
			c2 = outcode(b, x2, y2)
		}
	}
}

// ClipPoint retains only points inside the (inclusive-low, exclusive-high
// per axis) extent bbox.
func ClipPoint(geom Drawvec, bbox BBox) Drawvec {
	var out Drawvec
	for _, p := range geom {
		if p.Op == MoveTo && bbox.Contains(p.X, p.Y) {
			out = append(out, p)
		}
	}
	return out
}

// ClipPoly clips each ring of geom against the rectangle bbox using
// Sutherland-Hodgman, a polygon-clipping algorithm equivalent in effect to
// running a general 2D boolean engine with a single clip rectangle as the
// clip subject and positive fill rule (§4.A names a Vatti-variant union
// engine as sufficient; for an axis-aligned rectangular clip subject,
// Sutherland-Hodgman and Vatti agree, so we keep the simpler algorithm; no
// general union engine is implemented, see CleanOrClipPoly for what the
// post-quantization repair does and does not handle).
// Degenerate outputs (<3 vertices) are discarded; callers wanting the
// tiny-square fallback should go through ReduceTinyPoly afterwards.
func ClipPoly(geom Drawvec, bbox BBox) Drawvec {
	var out Drawvec
	for _, ring := range geom.Rings() {
		clipped := sutherlandHodgman(ring, bbox)
		if len(clipped) < 3 {
			continue
		}
		out = append(out, Draw{Op: MoveTo, X: clipped[0].X, Y: clipped[0].Y})
		for _, p := range clipped[1:] {
			out = append(out, Draw{Op: LineTo, X: p.X, Y: p.Y})
		}
		out = append(out, Draw{Op: LineTo, X: clipped[0].X, Y: clipped[0].Y})
	}
	return out
}

type edgeSide int

const (
	sideLeft edgeSide = iota
	sideRight
	sideBottom
	sideTop
)

func sutherlandHodgman(ring Drawvec, b BBox) []Draw {
	pts := ringPoints(ring)
	for _, side := range []edgeSide{sideLeft, sideRight, sideBottom, sideTop} {
		pts = clipEdge(pts, b, side)
		if len(pts) == 0 {
			return nil
		}
	}
	return pts
}

func ringPoints(ring Drawvec) []Draw {
	pts := make([]Draw, 0, len(ring))
	for _, p := range ring {
		// ClosePath only marks a ring's end; its coordinates are not a vertex.
		if p.Op == ClosePath {
			continue
		}
		pts = append(pts, p)
	}
	// Drop an explicit closing duplicate; Sutherland-Hodgman re-closes
	// implicitly by wrapping index access.
	if n := len(pts); n > 1 && pts[0].Equal(pts[n-1]) {
		pts = pts[:n-1]
	}
	return pts
}

func insideEdge(p Draw, b BBox, side edgeSide) bool {
	switch side {
	case sideLeft:
		return p.X >= b.MinX
	case sideRight:
		return p.X < b.MaxX
	case sideBottom:
		return p.Y >= b.MinY
	default: // sideTop
		return p.Y < b.MaxY
	}
}

func edgeIntersect(a, c Draw, b BBox, side edgeSide) Draw {
	dx, dy := c.X-a.X, c.Y-a.Y
	var t float64
	switch side {
	case sideLeft:
		t = float64(b.MinX-a.X) / float64(dx)
	case sideRight:
		t = float64(b.MaxX-1-a.X) / float64(dx)
	case sideBottom:
		t = float64(b.MinY-a.Y) / float64(dy)
	default:
		t = float64(b.MaxY-1-a.Y) / float64(dy)
	}
	return Draw{
		X: a.X + int64(float64(dx)*t),
		Y: a.Y + int64(float64(dy)*t),
	}
}

func clipEdge(pts []Draw, b BBox, side edgeSide) []Draw {
	if len(pts) == 0 {
		return nil
	}
	var out []Draw
	prev := pts[len(pts)-1]
	prevIn := insideEdge(prev, b, side)
	for _, cur := range pts {
		curIn := insideEdge(cur, b, side)
		if curIn {
			if !prevIn {
				out = append(out, edgeIntersect(prev, cur, b, side))
			}
			out = append(out, cur)
		} else if prevIn {
			out = append(out, edgeIntersect(prev, cur, b, side))
		}
		prev, prevIn = cur, curIn
	}
	return out
}
