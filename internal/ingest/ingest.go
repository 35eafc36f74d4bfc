// SPDX-License-Identifier: MIT

// Package ingest implements the per-source-worker serializer: it takes
// parsed features from a format collaborator (GeoJSON, FlatGeobuf,
// shapefile, etc. — none of which this module parses itself), projects
// coordinates into world-32 integer space, fixes up polygons, interns
// attributes into the shared string pool, and writes the serial-feature
// and index records each worker's segment contributes to the external
// sort stage (internal/extsortkey).
//
// Anti-meridian note: the first vertex of a feature is never
// wrap-adjusted — only vertices after it are shifted relative to their
// predecessor. This leaves a genuine ambiguity for multi-ring /
// multi-part geometries that each cross the dateline independently; we
// preserve the asymmetry rather than silently "fixing" it, since no
// owner has decided the multi-part case deserves different treatment.
package ingest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/brawer/tilekiln/internal/extsortkey"
	"github.com/brawer/tilekiln/internal/geo"
	"github.com/brawer/tilekiln/internal/serial"
	"github.com/brawer/tilekiln/internal/strpool"
)

// LonLat is one input vertex in degrees.
type LonLat struct {
	Lon, Lat float64
}

// ParsedFeature is what a format collaborator hands the ingest worker:
// already-parsed geometry and attributes, coordinates still in degrees.
type ParsedFeature struct {
	Layer    string
	GeomType geo.GeometryType
	// Rings holds one path for Point/LineString, and one ring per
	// element for Polygon (first is the outer ring).
	Rings [][]LonLat

	HasID bool
	ID    uint64

	HasMinZoom bool
	MinZoom    uint8
	HasMaxZoom bool
	MaxZoom    uint8

	Attrs map[string]interface{}
}

// AttributeFilter decides which attribute keys a worker keeps. It is
// distinct from the user filter expression (internal/filter), which is
// zoom-dependent and therefore evaluated per-tile at render time
// (internal/render.Classify) rather than once at ingest; this type only
// implements the ingest-time attribute allow/deny list
// ("include"/"exclude"/"include_all=false").
type AttributeFilter struct {
	IncludeAll bool
	Include    map[string]bool
	Exclude    map[string]bool
}

// Keep reports whether attribute key survives the filter.
func (f AttributeFilter) Keep(key string) bool {
	if f.Exclude[key] {
		return false
	}
	if f.IncludeAll {
		return true
	}
	return f.Include[key]
}

// Options bundles one worker's tunables, the subset of config.Config
// relevant at ingest time (kept decoupled from *config.Config to avoid
// an import cycle with internal/render, which also depends on config).
type Options struct {
	SegmentID          uint16
	MaxZoom            uint8
	Gamma              float64
	FeatureDensity     bool
	WrapAroundHandling bool
	PreventClipping    bool
	Attributes         AttributeFilter
	// Warn matches (*config.Config).WarnOnce's signature so callers can
	// wire it in directly.
	Warn func(key, format string, args ...interface{})
}

// LayerEntry is the layer map's per-layer accumulator: the id, observed
// zoom range, and per-attribute stats used to emit the
// `vector_layers`/`tilestats` schema metadata at finish. The
// AttributeCount field tracks the count of distinct attribute names
// independent of per-attribute sample stats.
type LayerEntry struct {
	ID               uint32
	MinZoom, MaxZoom uint8
	Attributes       map[string]*AttributeEntry
	AttributeCount   int
	attrOrder        []string
}

// AttributeEntry is one layer's per-attribute observation bucket.
type AttributeEntry struct {
	TypeMask    uint8 // bit 0 string, bit 1 number, bit 2 boolean
	Samples     []interface{}
	MinNumeric  float64
	MaxNumeric  float64
	HasMinMax   bool
}

const (
	attrTypeString  uint8 = 1 << 0
	attrTypeNumber  uint8 = 1 << 1
	attrTypeBoolean uint8 = 1 << 2

	maxLayerAttributes = 1000
	maxSamplesPerAttr   = 1000

	// preventClippingTileLimit is the "prevent_clipping" abort threshold:
	// a feature whose maxzoom bbox extent exceeds this many tiles aborts
	// ingest with a diagnostic rather than silently shipping an
	// unclippable giant.
	preventClippingTileLimit = 10000
)

// Worker is one input-source segment's ingest pipeline.
type Worker struct {
	opts Options

	geomWriter  io.Writer
	geomOrigin  serial.SegmentOrigin
	geomWritten int64

	// metaWriter receives the referenced-attribute side records for
	// features too large to inline: a flat stream of
	// (count, (keyOffset, valueOffset)*count) records, one per feature,
	// addressed by the MetaOffset a feature's IndexRecord carries.
	metaWriter  io.Writer
	metaWritten int64

	pool *strpool.Pool

	layers     map[string]*LayerEntry
	layerOrder []string

	seq uint64

	minX, minY, maxX, maxY int64
	haveBBox               bool

	// The wrap-around fix-up's previous-vertex state is local to
	// projectRings, not kept on the Worker.
}

// NewWorker creates a worker writing serialized features to geomWriter,
// referenced attribute sets to metaWriter, and interning attribute
// strings into pool.
func NewWorker(geomWriter, metaWriter io.Writer, pool *strpool.Pool, opts Options) *Worker {
	return &Worker{
		opts:       opts,
		geomWriter: geomWriter,
		metaWriter: metaWriter,
		pool:       pool,
		layers:     make(map[string]*LayerEntry),
	}
}

// Ingest projects, fixes up, and serializes one parsed feature, emitting
// an IndexRecord for the external sort stage, or an error if the feature
// must abort the run (prevent_clipping overflow, write failure).
func (w *Worker) Ingest(pf ParsedFeature) (*extsortkey.IndexRecord, error) {
	rings := w.projectRings(pf)
	geom, err := w.buildGeometry(pf.GeomType, rings)
	if err != nil {
		w.warn("malformed_feature", "dropping feature in layer %q: %v", pf.Layer, err)
		return nil, nil
	}
	if len(geom) == 0 {
		return nil, nil
	}

	if pf.GeomType == geo.Polygon {
		geom = geo.FixPolygon(geom)
	}

	minX, minY, maxX, maxY := geom.BBox()
	w.updateRunningBBox(minX, minY, maxX, maxY)

	var index uint64
	if w.opts.Gamma > 0 || w.opts.FeatureDensity {
		cx := uint32((minX + maxX) / 2)
		cy := uint32((minY + maxY) / 2)
		index = geo.Encode(cx, cy)
	}

	if w.opts.PreventClipping {
		span := maxZoomTileSpan(minX, minY, maxX, maxY, w.opts.MaxZoom)
		if span > preventClippingTileLimit {
			return nil, fmt.Errorf("ingest: feature in layer %q spans %d tiles at maxzoom, exceeding prevent_clipping limit of %d", pf.Layer, span, preventClippingTileLimit)
		}
	}

	attrs := w.filterAttributes(pf.Attrs)
	w.observe(pf.Layer, attrs)

	inline := bboxExtent(minX, minY, maxX, maxY) <= 2*(int64(1)<<(32-w.opts.MaxZoom))

	f := &serial.Feature{
		GeomType:   pf.GeomType,
		LayerID:    w.layerID(pf.Layer),
		SegmentID:  uint32(w.opts.SegmentID),
		Seq:        w.seq,
		HasID:      pf.HasID,
		ID:         pf.ID,
		HasMinZoom: pf.HasMinZoom,
		MinZoom:    pf.MinZoom,
		HasMaxZoom: pf.HasMaxZoom,
		MaxZoom:    pf.MaxZoom,
		Geometry:   geom,
		Inline:     inline,
		Index:      index,
		BBox:       geo.BBox{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY},
	}
	if inline {
		for _, a := range attrs {
			keyOff, err := w.pool.Intern(strpool.TypeKey, a.key)
			if err != nil {
				return nil, fmt.Errorf("ingest: interning attribute key: %w", err)
			}
			valOff, err := w.pool.Intern(strpool.TypeValue, a.value)
			if err != nil {
				return nil, fmt.Errorf("ingest: interning attribute value: %w", err)
			}
			f.Attrs = append(f.Attrs, serial.AttrRef{KeyOffset: keyOff, ValueOffset: valOff})
		}
	} else {
		// Referenced attribute storage amortises large features' encoded
		// size by keeping their attribute set out of the geometry stream;
		// cross-feature dedup of identical attribute sets is left to
		// internal/pipeline, which sees every segment's output.
		metaOffset, err := w.writeMetaAttrs(attrs)
		if err != nil {
			return nil, fmt.Errorf("ingest: writing referenced attributes: %w", err)
		}
		f.MetaOffset = metaOffset
		f.MetaCount = uint32(len(attrs))
	}

	offset, err := serial.Write(w.geomWriter, f, &w.geomOrigin, &w.geomWritten)
	if err != nil {
		return nil, fmt.Errorf("ingest: writing feature: %w", err)
	}

	rec := &extsortkey.IndexRecord{
		StartGeomOffset: uint64(offset),
		EndGeomOffset:   uint64(w.geomWritten),
		IndexKey:        index,
		Segment:         w.opts.SegmentID,
		Type:            uint8(pf.GeomType),
		Seq:             w.seq,
	}
	w.seq++
	return rec, nil
}

type attr struct{ key, value string }

// filterAttributes applies the ingest-time include/exclude list and
// coerces values to strings for string-pool interning (non-string
// scalars are formatted with fmt.Sprint). The typed values are not kept:
// both the serialized feature and the layer-map observation below see
// only the string form.
func (w *Worker) filterAttributes(in map[string]interface{}) []attr {
	out := make([]attr, 0, len(in))
	for k, v := range in {
		if !w.opts.Attributes.Keep(k) {
			continue
		}
		out = append(out, attr{key: k, value: fmt.Sprint(v)})
	}
	return out
}

func (w *Worker) layerID(name string) uint32 {
	le, ok := w.layers[name]
	if !ok {
		le = &LayerEntry{ID: uint32(len(w.layerOrder)), Attributes: make(map[string]*AttributeEntry)}
		w.layers[name] = le
		w.layerOrder = append(w.layerOrder, name)
	}
	return le.ID
}

// observe updates the layer map's per-attribute stats: it registers each
// new attribute name (up to maxLayerAttributes per layer), marks it as a
// string, and keeps up to maxSamplesPerAttr stringified sample values.
// Since attrs arrive already stringified, it never sets the number or
// boolean type bits and never fills MinNumeric/MaxNumeric/HasMinMax.
func (w *Worker) observe(layer string, attrs []attr) {
	le := w.layers[layer]
	for _, a := range attrs {
		ae, ok := le.Attributes[a.key]
		if !ok {
			if le.AttributeCount >= maxLayerAttributes {
				continue
			}
			ae = &AttributeEntry{}
			le.Attributes[a.key] = ae
			le.attrOrder = append(le.attrOrder, a.key)
			le.AttributeCount++
		}
		ae.TypeMask |= attrTypeString
		if len(ae.Samples) < maxSamplesPerAttr {
			ae.Samples = append(ae.Samples, a.value)
		}
	}
}

// writeMetaAttrs interns attrs into the string pool and appends their
// offsets to the referenced-attribute side stream, returning the offset
// the written record starts at.
func (w *Worker) writeMetaAttrs(attrs []attr) (int64, error) {
	offset := w.metaWritten
	var buf bytes.Buffer
	uvarintBuf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(uvarintBuf, uint64(len(attrs)))
	buf.Write(uvarintBuf[:n])
	for _, a := range attrs {
		keyOff, err := w.pool.Intern(strpool.TypeKey, a.key)
		if err != nil {
			return 0, err
		}
		valOff, err := w.pool.Intern(strpool.TypeValue, a.value)
		if err != nil {
			return 0, err
		}
		n = binary.PutVarint(uvarintBuf, keyOff)
		buf.Write(uvarintBuf[:n])
		n = binary.PutVarint(uvarintBuf, valOff)
		buf.Write(uvarintBuf[:n])
	}
	written, err := w.metaWriter.Write(buf.Bytes())
	w.metaWritten += int64(written)
	if err != nil {
		return 0, err
	}
	return offset, nil
}

// ReadMetaAttrs decodes one referenced-attribute record written by
// writeMetaAttrs, for callers (internal/pipeline) that seek to a
// feature's MetaOffset in the segment's meta side file.
func ReadMetaAttrs(r io.ByteReader) ([]serial.AttrRef, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	out := make([]serial.AttrRef, n)
	for i := range out {
		k, err := binary.ReadVarint(r)
		if err != nil {
			return nil, err
		}
		v, err := binary.ReadVarint(r)
		if err != nil {
			return nil, err
		}
		out[i] = serial.AttrRef{KeyOffset: k, ValueOffset: v}
	}
	return out, nil
}

func (w *Worker) warn(key, format string, args ...interface{}) {
	if w.opts.Warn != nil {
		w.opts.Warn(key, format, args...)
	}
}

// updateRunningBBox maintains the per-worker running bbox across every
// feature ingested so far.
func (w *Worker) updateRunningBBox(minX, minY, maxX, maxY int64) {
	if !w.haveBBox {
		w.minX, w.minY, w.maxX, w.maxY = minX, minY, maxX, maxY
		w.haveBBox = true
		return
	}
	if minX < w.minX {
		w.minX = minX
	}
	if minY < w.minY {
		w.minY = minY
	}
	if maxX > w.maxX {
		w.maxX = maxX
	}
	if maxY > w.maxY {
		w.maxY = maxY
	}
}

// BBox returns the worker's accumulated running bounding box.
func (w *Worker) BBox() (minX, minY, maxX, maxY int64, ok bool) {
	return w.minX, w.minY, w.maxX, w.maxY, w.haveBBox
}

// Layers returns the worker's layer map, keyed by layer name, for the
// caller to merge across workers once ingest completes.
func (w *Worker) Layers() map[string]*LayerEntry { return w.layers }

// GeomOrigin returns the segment's fixed delta-coding origin, set from the
// first feature's first MoveTo. Callers that later reopen the geometry
// stream for random access need this to decode any feature independent
// of read order.
func (w *Worker) GeomOrigin() serial.SegmentOrigin { return w.geomOrigin }

// projectRings converts every ring's lon/lat vertices to world-32
// integer coordinates and applies optional anti-meridian wrap-around
// continuity.
func (w *Worker) projectRings(pf ParsedFeature) [][]geo.Draw {
	out := make([][]geo.Draw, 0, len(pf.Rings))
	for _, ring := range pf.Rings {
		pts := make([]geo.Draw, 0, len(ring))
		var prevX int64
		havePrev := false
		for _, ll := range ring {
			x32, y32, clamped := geo.LonLatToWorld32(ll.Lon, ll.Lat)
			if clamped {
				w.warn("projection_clamp", "clamped out-of-range latitude %v", ll.Lat)
			}
			x, y := int64(x32), int64(y32)
			if w.opts.WrapAroundHandling && pf.GeomType == geo.Line && havePrev {
				const worldSpan = int64(1) << 32
				if x-prevX > 1<<31 {
					x -= worldSpan
				} else if prevX-x > 1<<31 {
					x += worldSpan
				}
			}
			pts = append(pts, geo.Draw{X: x, Y: y})
			prevX = x
			havePrev = true
		}
		out = append(out, pts)
	}
	return out
}

// buildGeometry assembles projected rings into a Drawvec with the
// MoveTo/LineTo/ClosePath op structure the renderer's clip/simplify
// passes expect.
func (w *Worker) buildGeometry(gt geo.GeometryType, rings [][]geo.Draw) (geo.Drawvec, error) {
	var out geo.Drawvec
	switch gt {
	case geo.Point:
		if len(rings) == 0 || len(rings[0]) == 0 {
			return nil, fmt.Errorf("point feature has no coordinates")
		}
		out = append(out, geo.Draw{Op: geo.MoveTo, X: rings[0][0].X, Y: rings[0][0].Y})
	case geo.Line:
		for _, ring := range rings {
			if len(ring) < 2 {
				continue
			}
			out = append(out, geo.Draw{Op: geo.MoveTo, X: ring[0].X, Y: ring[0].Y})
			for _, p := range ring[1:] {
				out = append(out, geo.Draw{Op: geo.LineTo, X: p.X, Y: p.Y})
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("line feature has fewer than 2 coordinates in every part")
		}
	case geo.Polygon:
		for _, ring := range rings {
			if len(ring) < 3 {
				continue
			}
			out = append(out, geo.Draw{Op: geo.MoveTo, X: ring[0].X, Y: ring[0].Y})
			for _, p := range ring[1:] {
				out = append(out, geo.Draw{Op: geo.LineTo, X: p.X, Y: p.Y})
			}
			out = append(out, geo.Draw{Op: geo.ClosePath})
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("polygon feature has no ring with at least 3 coordinates")
		}
	default:
		return nil, fmt.Errorf("unknown geometry type %v", gt)
	}
	return out, nil
}

// bboxExtent is the larger of the bbox's width/height, used by both the
// inline-vs-referenced decision (step 7) and the prevent_clipping check
// (step 9).
func bboxExtent(minX, minY, maxX, maxY int64) int64 {
	w := maxX - minX
	h := maxY - minY
	if h > w {
		return h
	}
	return w
}

// maxZoomTileSpan returns how many maxzoom tiles, along the larger axis,
// a bbox spans.
func maxZoomTileSpan(minX, minY, maxX, maxY int64, maxZoom uint8) int64 {
	span := bboxExtent(minX, minY, maxX, maxY)
	tileSize := int64(1) << (32 - maxZoom)
	if tileSize == 0 {
		return span
	}
	return span / tileSize
}
