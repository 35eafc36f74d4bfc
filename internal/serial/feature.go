// SPDX-License-Identifier: MIT

// Package serial implements the variable-length on-disk encoding of a
// single feature's geometry and attribute references. One routine writes
// one feature to a stream and returns the starting byte offset; the
// inverse reads one record from the current position using a per-segment
// delta origin.
package serial

import (
	"encoding/binary"
	"io"

	"github.com/brawer/tilekiln/internal/geo"
)

// AttrRef is either an inlined (key,value) string-pool offset pair, or a
// reference into a shared attribute-metadata side file.
type AttrRef struct {
	KeyOffset, ValueOffset int64
}

// Feature is the in-memory form of one ingest record.
type Feature struct {
	GeomType    geo.GeometryType
	LayerID     uint32
	SegmentID   uint32
	Seq         uint64
	HasID       bool
	ID          uint64
	HasMinZoom  bool
	MinZoom     uint8
	HasMaxZoom  bool
	MaxZoom     uint8
	Geometry    geo.Drawvec
	Inline      bool
	Attrs       []AttrRef // used when Inline
	MetaOffset  int64     // used when !Inline
	MetaCount   uint32    // used when !Inline
	Index       uint64 // Morton key of bbox centre
	Extent      float64
	FeatureMinZ uint8 // computed later by minzoom assignment
	BBox        geo.BBox
}

// header bit flags, packed into a varint (§4.B).
const (
	flagHasID byte = 1 << iota
	flagInlineAttrs
	flagHasMinZoom
	flagHasMaxZoom
)

// SegmentOrigin tracks the delta-coding origin for one ingest segment: the
// first point of the first feature written to that segment, kept once per
// segment rather than once per feature (§4.B invariant). It is not written
// to the stream; Read takes it from the caller.
type SegmentOrigin struct {
	X, Y  int64
	Valid bool
}

// Write serializes f to w, returning the byte offset it started at.
// origin is the segment's delta origin; if origin.Valid is false, it is
// set in place from f's first point so that subsequent features in the
// same segment share it.
func Write(w io.Writer, f *Feature, origin *SegmentOrigin, written *int64) (offset int64, err error) {
	offset = *written
	cw := &countingWriter{w: w}

	if !origin.Valid && len(f.Geometry) > 0 {
		origin.X, origin.Y = f.Geometry[0].X, f.Geometry[0].Y
		origin.Valid = true
	}

	var flags byte
	if f.HasID {
		flags |= flagHasID
	}
	if f.Inline {
		flags |= flagInlineAttrs
	}
	if f.HasMinZoom {
		flags |= flagHasMinZoom
	}
	if f.HasMaxZoom {
		flags |= flagHasMaxZoom
	}
	if err := writeByte(cw, flags); err != nil {
		return 0, err
	}
	if err := writeByte(cw, byte(f.GeomType)); err != nil {
		return 0, err
	}
	if err := writeUvarint(cw, uint64(f.LayerID)); err != nil {
		return 0, err
	}
	if err := writeUvarint(cw, uint64(f.SegmentID)); err != nil {
		return 0, err
	}
	if err := writeUvarint(cw, f.Seq); err != nil {
		return 0, err
	}
	if f.HasID {
		if err := writeUvarint(cw, f.ID); err != nil {
			return 0, err
		}
	}
	if f.HasMinZoom {
		if err := writeByte(cw, f.MinZoom); err != nil {
			return 0, err
		}
	}
	if f.HasMaxZoom {
		if err := writeByte(cw, f.MaxZoom); err != nil {
			return 0, err
		}
	}

	if err := writeGeometry(cw, f.Geometry, origin); err != nil {
		return 0, err
	}

	if f.Inline {
		if err := writeUvarint(cw, uint64(len(f.Attrs))); err != nil {
			return 0, err
		}
		for _, a := range f.Attrs {
			if err := writeVarint(cw, a.KeyOffset); err != nil {
				return 0, err
			}
			if err := writeVarint(cw, a.ValueOffset); err != nil {
				return 0, err
			}
		}
	} else {
		if err := writeVarint(cw, f.MetaOffset); err != nil {
			return 0, err
		}
		if err := writeUvarint(cw, uint64(f.MetaCount)); err != nil {
			return 0, err
		}
	}

	*written += cw.n
	return offset, nil
}

// Read deserializes one feature from r using origin as the segment's
// delta-coding base.
func Read(r io.ByteReader, origin *SegmentOrigin) (*Feature, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	gt, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	f := &Feature{GeomType: geo.GeometryType(gt)}

	layerID, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	f.LayerID = uint32(layerID)

	segID, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	f.SegmentID = uint32(segID)

	f.Seq, err = binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}

	if flags&flagHasID != 0 {
		f.HasID = true
		f.ID, err = binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
	}
	if flags&flagHasMinZoom != 0 {
		f.HasMinZoom = true
		f.MinZoom, err = r.ReadByte()
		if err != nil {
			return nil, err
		}
	}
	if flags&flagHasMaxZoom != 0 {
		f.HasMaxZoom = true
		f.MaxZoom, err = r.ReadByte()
		if err != nil {
			return nil, err
		}
	}

	f.Geometry, err = readGeometry(r, origin)
	if err != nil {
		return nil, err
	}
	if len(f.Geometry) > 0 {
		f.BBox.MinX, f.BBox.MinY, f.BBox.MaxX, f.BBox.MaxY = f.Geometry.BBox()
	}

	f.Inline = flags&flagInlineAttrs != 0
	if f.Inline {
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		f.Attrs = make([]AttrRef, n)
		for i := range f.Attrs {
			k, err := binary.ReadVarint(r)
			if err != nil {
				return nil, err
			}
			v, err := binary.ReadVarint(r)
			if err != nil {
				return nil, err
			}
			f.Attrs[i] = AttrRef{KeyOffset: k, ValueOffset: v}
		}
	} else {
		f.MetaOffset, err = binary.ReadVarint(r)
		if err != nil {
			return nil, err
		}
		cnt, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		f.MetaCount = uint32(cnt)
	}

	return f, nil
}

// writeGeometry encodes geom as a sequence of (op, dx, dy) using zig-zag
// varints for MoveTo/LineTo deltas relative to the previous point (each
// feature's first point is relative to the segment origin — §4.B), and a
// terminating End op.
func writeGeometry(w *countingWriter, geom geo.Drawvec, origin *SegmentOrigin) error {
	prevX, prevY := origin.X, origin.Y
	for _, p := range geom {
		if err := writeByte(w, byte(p.Op)); err != nil {
			return err
		}
		switch p.Op {
		case geo.MoveTo, geo.LineTo:
			if err := writeVarint(w, p.X-prevX); err != nil {
				return err
			}
			if err := writeVarint(w, p.Y-prevY); err != nil {
				return err
			}
			prevX, prevY = p.X, p.Y
		case geo.ClosePath:
			// no coordinates
		}
	}
	return writeByte(w, byte(geo.End))
}

func readGeometry(r io.ByteReader, origin *SegmentOrigin) (geo.Drawvec, error) {
	var out geo.Drawvec
	x, y := origin.X, origin.Y
	for {
		opByte, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		op := geo.Op(opByte)
		if op == geo.End {
			break
		}
		switch op {
		case geo.MoveTo, geo.LineTo:
			dx, err := binary.ReadVarint(r)
			if err != nil {
				return nil, err
			}
			dy, err := binary.ReadVarint(r)
			if err != nil {
				return nil, err
			}
			x += dx
			y += dy
			out = append(out, geo.Draw{Op: op, X: x, Y: y})
			if !origin.Valid {
				origin.X, origin.Y = x, y
				origin.Valid = true
			}
		case geo.ClosePath:
			out = append(out, geo.Draw{Op: op})
		}
	}
	return out, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func writeUvarint(w io.Writer, v uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	_, err := w.Write(buf[:n])
	return err
}

func writeVarint(w io.Writer, v int64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutVarint(buf[:], v)
	_, err := w.Write(buf[:n])
	return err
}
