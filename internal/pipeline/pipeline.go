// SPDX-License-Identifier: MIT

// Package pipeline wires together every stage of the build's data flow into
// one Build call: per-source ingest (internal/ingest), external sort
// (internal/extsortkey), feature-minzoom assignment (internal/minzoom),
// zoom traversal and per-tile rendering (internal/traversal,
// internal/render), optional shared-border detection (internal/sharedborder),
// and tile store output (internal/tilestore). Tile-join merging
// (internal/tilejoin) runs as a separate, later pass over a store's
// output, not as part of Build.
//
// Build is a short, linear sequence of stage calls, each of which owns
// its own worker pool internally rather than Build threading
// concurrency primitives through by hand.
package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/brawer/tilekiln/internal/config"
	"github.com/brawer/tilekiln/internal/extsortkey"
	"github.com/brawer/tilekiln/internal/filter"
	"github.com/brawer/tilekiln/internal/geo"
	"github.com/brawer/tilekiln/internal/ingest"
	"github.com/brawer/tilekiln/internal/metrics"
	"github.com/brawer/tilekiln/internal/minzoom"
	"github.com/brawer/tilekiln/internal/render"
	"github.com/brawer/tilekiln/internal/serial"
	"github.com/brawer/tilekiln/internal/strpool"
	"github.com/brawer/tilekiln/internal/tilestore"
	"github.com/brawer/tilekiln/internal/traversal"
)

const defaultMaxFeaturesPerTile = 50000

// Source is one input collection of already-parsed features, e.g. one
// GeoJSON file. Features yields each
// feature to the callback in turn, stopping early if the callback returns
// false; a non-nil return from Features aborts the whole build.
type Source struct {
	Layer    string
	Features func(yield func(ingest.ParsedFeature) bool) error
}

// Options bundles everything one Build call needs beyond the sources
// themselves.
type Options struct {
	Config     *config.Config
	Sources    []Source
	Store      tilestore.Store
	Metrics    *metrics.Metrics
	Filters    filter.LayerFilters
	Attributes ingest.AttributeFilter

	// Name/Description surface into the store's Metadata.
	Name, Description string
}

// segment is one source's on-disk ingest output plus the bookkeeping
// needed to randomly re-read any of its features later. A segment's
// geometry stream uses a single shared delta-coding origin, fixed at the
// first feature's first vertex, so any later feature can be
// decoded independently of read order once that origin is known.
type segment struct {
	id         uint32
	layerNames []string // worker's LayerEntry.ID -> name, in ID order
	geomPath   string
	metaPath   string
	origin     serial.SegmentOrigin
}

// diskRef is a traversal payload pointing at a feature still on disk in
// its originating segment (used only for the root, zoom-0 shard).
type diskRef struct {
	rec     extsortkey.IndexRecord
	minZoom uint8
}

// Build runs the full pipeline end to end.
func Build(ctx context.Context, opts Options) error {
	cfg := opts.Config
	pool, err := strpool.Open(cfg.TempDir)
	if err != nil {
		return fmt.Errorf("pipeline: opening string pool: %w", err)
	}
	defer pool.Close()

	segments := make([]*segment, 0, len(opts.Sources))
	var allRecords []extsortkey.IndexRecord
	globalLayers := make(map[string]*ingest.LayerEntry)
	var globalLayerOrder []string
	var minX, minY, maxX, maxY int64
	var haveBBox bool

	ingested, err := ingestSources(ctx, cfg, pool, opts)
	if err != nil {
		return err
	}
	for _, r := range ingested {
		segments = append(segments, r.seg)
		allRecords = append(allRecords, r.records...)
		mergeLayers(globalLayers, &globalLayerOrder, r.layers)
		if r.bbox.ok {
			if !haveBBox {
				minX, minY, maxX, maxY = r.bbox.minX, r.bbox.minY, r.bbox.maxX, r.bbox.maxY
				haveBBox = true
			} else {
				minX, minY = min64(minX, r.bbox.minX), min64(minY, r.bbox.minY)
				maxX, maxY = max64(maxX, r.bbox.maxX), max64(maxY, r.bbox.maxY)
			}
		}
	}

	if opts.Metrics != nil {
		opts.Metrics.FeaturesIngested.Add(float64(len(allRecords)))
	}

	sorted, err := extsortkey.RadixSort(ctx, allRecords, 8, 4, 1<<20, cfg.CPUs)
	if err != nil {
		return fmt.Errorf("pipeline: sorting index records: %w", err)
	}

	baseZoom := cfg.BaseZoom
	dropRate := cfg.DropRate
	if baseZoom == 0 && cfg.MaxZoom > 0 {
		pre := minzoom.Preflight(func(yield func(uint64) bool) {
			for _, r := range sorted {
				if !yield(r.IndexKey) {
					return
				}
			}
		}, cfg.MaxZoom, defaultMaxFeaturesPerTile, dropRate)
		baseZoom = pre.BaseZoom
		if dropRate <= 0 {
			dropRate = pre.DropRate
		}
	}

	assigner := minzoom.NewAssigner(cfg.MaxZoom, baseZoom, dropRate)
	root := make([]traversal.Record, len(sorted))
	for i, r := range sorted {
		mz := assigner.Assign(r.IndexKey, geo.GeometryType(r.Type), cfg.DropLines, cfg.DropPolygons)
		root[i] = traversal.Record{Key: r.IndexKey, Payload: &diskRef{rec: r, minZoom: mz}}
	}

	reader, err := newFeatureReader(segments, pool)
	if err != nil {
		return err
	}
	defer reader.Close()

	dispatcher := &traversal.Dispatcher{CPUs: cfg.CPUs, MaxZoom: cfg.MaxZoom, TempFiles: cfg.TempFiles}
	shards := [][]traversal.Record{root}
	renderFn := makeRenderFunc(cfg, opts, reader)
	for z := uint8(0); z <= cfg.MaxZoom; z++ {
		next, err := dispatcher.RunZoom(ctx, z, shards, renderFn)
		if err != nil {
			return fmt.Errorf("pipeline: rendering zoom %d: %w", z, err)
		}
		shards = next
	}

	meta := tilestore.Metadata{
		Name:        opts.Name,
		Description: opts.Description,
		MinZoom:     cfg.MinZoom,
		MaxZoom:     cfg.MaxZoom,
		Generator:   "tilekiln",
		Layers:      layerSummaries(globalLayers, globalLayerOrder),
	}
	if haveBBox {
		minLon, minLat := geo.World32ToLonLat(uint32(minX), uint32(maxY))
		maxLon, maxLat := geo.World32ToLonLat(uint32(maxX), uint32(minY))
		meta.Bounds = tilestore.LonLatBBox{MinLon: minLon, MinLat: minLat, MaxLon: maxLon, MaxLat: maxLat}
		meta.Center = [3]float64{(minLon + maxLon) / 2, (minLat + maxLat) / 2, float64(cfg.MinZoom)}
	}
	if err := opts.Store.Finish(meta); err != nil {
		return fmt.Errorf("pipeline: finishing store: %w", err)
	}
	return opts.Store.Close()
}

// mergeLayers folds one segment's local layer map into the pipeline's
// global layer map, keyed by name; the layer map is shared across
// all input sources' output. Per-attribute stats from every segment
// touching a layer are summed so the final vector_layers/tilestats
// metadata reflects the whole dataset, not just the last segment seen.
func mergeLayers(global map[string]*ingest.LayerEntry, order *[]string, local map[string]*ingest.LayerEntry) {
	for name, le := range local {
		g, ok := global[name]
		if !ok {
			g = &ingest.LayerEntry{Attributes: make(map[string]*ingest.AttributeEntry)}
			global[name] = g
			*order = append(*order, name)
		}
		for attrName, ae := range le.Attributes {
			gae, ok := g.Attributes[attrName]
			if !ok {
				gae = &ingest.AttributeEntry{}
				g.Attributes[attrName] = gae
			}
			gae.TypeMask |= ae.TypeMask
			gae.Samples = append(gae.Samples, ae.Samples...)
			if len(gae.Samples) > 1000 { // AttributeStats' sample cap
				gae.Samples = gae.Samples[:1000]
			}
			if ae.HasMinMax {
				if !gae.HasMinMax || ae.MinNumeric < gae.MinNumeric {
					gae.MinNumeric = ae.MinNumeric
				}
				if !gae.HasMinMax || ae.MaxNumeric > gae.MaxNumeric {
					gae.MaxNumeric = ae.MaxNumeric
				}
				gae.HasMinMax = true
			}
		}
	}
}

func layerSummaries(layers map[string]*ingest.LayerEntry, order []string) []tilestore.LayerSummary {
	out := make([]tilestore.LayerSummary, 0, len(order))
	for _, name := range order {
		le := layers[name]
		summary := tilestore.LayerSummary{ID: name, MinZoom: le.MinZoom, MaxZoom: le.MaxZoom, FeatureCount: le.AttributeCount}
		for attrName, ae := range le.Attributes {
			stats := tilestore.AttributeStats{Attribute: attrName, Count: len(ae.Samples)}
			switch {
			case ae.TypeMask&ingestAttrTypeNumber() != 0:
				stats.Type = "number"
			case ae.TypeMask&ingestAttrTypeBoolean() != 0:
				stats.Type = "boolean"
			default:
				stats.Type = "string"
			}
			stats.Min, stats.Max, stats.HasMinMax = ae.MinNumeric, ae.MaxNumeric, ae.HasMinMax
			for _, v := range ae.Samples {
				stats.Values = append(stats.Values, v)
			}
			summary.Attributes = append(summary.Attributes, stats)
		}
		out = append(out, summary)
	}
	return out
}

// ingestAttrTypeNumber/Boolean mirror ingest's unexported type-mask bits;
// kept as tiny accessor functions here rather than exporting the
// constants, since nothing outside ingest needs them except this summary.
func ingestAttrTypeNumber() uint8  { return 1 << 1 }
func ingestAttrTypeBoolean() uint8 { return 1 << 2 }

// sourceBBox is one source's running world-32 bbox, as tracked by its
// ingest.Worker.
type sourceBBox struct {
	minX, minY, maxX, maxY int64
	ok                     bool
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// sourceResult is one source's ingestSource output, gathered by
// ingestSources so the caller can fold results back together in source
// order regardless of which worker finished first.
type sourceResult struct {
	seg     *segment
	records []extsortkey.IndexRecord
	layers  map[string]*ingest.LayerEntry
	bbox    sourceBBox
}

// ingestSources runs ingestSource for every source concurrently, one
// worker per input-source segment up to cfg.CPUs, each writing to its own
// temp files and its own ingest.Worker so no per-source state is shared
// except the string pool (internal/strpool.Pool, safe for concurrent use).
// Results are returned in source order, not completion order.
func ingestSources(ctx context.Context, cfg *config.Config, pool *strpool.Pool, opts Options) ([]sourceResult, error) {
	results := make([]sourceResult, len(opts.Sources))
	workers := cfg.CPUs
	if workers < 1 {
		workers = 1
	}
	if workers > len(opts.Sources) {
		workers = len(opts.Sources)
	}

	group, _ := errgroup.WithContext(ctx)
	sem := make(chan struct{}, workers)
	for i, src := range opts.Sources {
		i, src := i, src
		group.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			seg, records, localLayers, srcBBox, err := ingestSource(cfg, pool, opts, uint16(i), src)
			if err != nil {
				return fmt.Errorf("pipeline: ingesting source %d: %w", i, err)
			}
			results[i] = sourceResult{seg: seg, records: records, layers: localLayers, bbox: srcBBox}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ingestSource drains one Source through a fresh ingest.Worker, writing
// its geometry and referenced-attribute streams to dedicated temp files
// via os.CreateTemp, the same unsorted-scratch-output pattern used
// throughout this tree.
func ingestSource(cfg *config.Config, pool *strpool.Pool, opts Options, segID uint16, src Source) (*segment, []extsortkey.IndexRecord, map[string]*ingest.LayerEntry, sourceBBox, error) {
	geomFile, err := os.CreateTemp(cfg.TempDir, fmt.Sprintf("tilekiln-geom-%d-*", segID))
	if err != nil {
		return nil, nil, nil, sourceBBox{}, err
	}
	metaFile, err := os.CreateTemp(cfg.TempDir, fmt.Sprintf("tilekiln-meta-%d-*", segID))
	if err != nil {
		return nil, nil, nil, sourceBBox{}, err
	}

	w := ingest.NewWorker(geomFile, metaFile, pool, ingest.Options{
		SegmentID:          segID,
		MaxZoom:            cfg.MaxZoom,
		Gamma:              cfg.Gamma,
		WrapAroundHandling: cfg.WrapAroundHandling,
		PreventClipping:    cfg.PreventClipping,
		Attributes:         opts.Attributes,
		Warn:               cfg.WarnOnce,
	})

	var records []extsortkey.IndexRecord
	var ingestErr error
	walkErr := src.Features(func(pf ingest.ParsedFeature) bool {
		if pf.Layer == "" {
			pf.Layer = src.Layer
		}
		rec, err := w.Ingest(pf)
		if err != nil {
			ingestErr = err
			return false
		}
		if rec != nil {
			records = append(records, *rec)
		}
		return true
	})
	if walkErr != nil {
		return nil, nil, nil, sourceBBox{}, walkErr
	}
	if ingestErr != nil {
		return nil, nil, nil, sourceBBox{}, ingestErr
	}

	if err := geomFile.Close(); err != nil {
		return nil, nil, nil, sourceBBox{}, err
	}
	if err := metaFile.Close(); err != nil {
		return nil, nil, nil, sourceBBox{}, err
	}

	layers := w.Layers()
	names := make([]string, len(layers))
	for name, entry := range layers {
		names[entry.ID] = name
	}

	var bbox sourceBBox
	if minX, minY, maxX, maxY, ok := w.BBox(); ok {
		bbox = sourceBBox{minX: minX, minY: minY, maxX: maxX, maxY: maxY, ok: true}
	}

	return &segment{
		id:         uint32(segID),
		layerNames: names,
		geomPath:   geomFile.Name(),
		metaPath:   metaFile.Name(),
		origin:     w.GeomOrigin(),
	}, records, layers, bbox, nil
}

// featureReader resolves a traversal payload back into a fully decoded
// render.Feature: for a diskRef it reopens the originating segment's
// geometry file at the record's offset (the fixed per-segment origin
// makes this a pure random-access read, independent of sort order); for
// an in-memory feature already carried forward from a coarser zoom it is
// a pass-through.
type featureReader struct {
	pool      *strpool.Pool
	segments  map[uint32]*segment
	files     map[uint32]*os.File
	metaFiles map[uint32]*os.File
}

func newFeatureReader(segments []*segment, pool *strpool.Pool) (*featureReader, error) {
	r := &featureReader{
		pool:      pool,
		segments:  make(map[uint32]*segment),
		files:     make(map[uint32]*os.File),
		metaFiles: make(map[uint32]*os.File),
	}
	for _, s := range segments {
		r.segments[s.id] = s
		f, err := os.Open(s.geomPath)
		if err != nil {
			return nil, err
		}
		r.files[s.id] = f

		mf, err := os.Open(s.metaPath)
		if err != nil {
			return nil, err
		}
		r.metaFiles[s.id] = mf
	}
	return r, nil
}

func (r *featureReader) Close() error {
	for _, f := range r.files {
		f.Close()
	}
	for _, f := range r.metaFiles {
		f.Close()
	}
	return nil
}

func (r *featureReader) readDisk(ref *diskRef) (*render.Feature, error) {
	seg, ok := r.segments[uint32(ref.rec.Segment)]
	if !ok {
		return nil, fmt.Errorf("pipeline: unknown segment %d", ref.rec.Segment)
	}
	f := r.files[seg.id]

	size := int64(ref.rec.EndGeomOffset - ref.rec.StartGeomOffset)
	section := io.NewSectionReader(f, int64(ref.rec.StartGeomOffset), size)
	br := bufio.NewReader(section)
	origin := seg.origin
	sf, err := serial.Read(br, &origin)
	if err != nil {
		return nil, fmt.Errorf("pipeline: reading feature at segment %d offset %d: %w", seg.id, ref.rec.StartGeomOffset, err)
	}

	attrs, err := r.resolveAttrs(seg, sf)
	if err != nil {
		return nil, err
	}

	layerName := ""
	if int(sf.LayerID) < len(seg.layerNames) {
		layerName = seg.layerNames[sf.LayerID]
	}

	// There are two independent minzoom gates here: the computed
	// feature_minzoom (ref.minZoom) and an explicit per-feature minzoom
	// override carried since ingest (sf.MinZoom). A feature must clear
	// both, which collapses to clearing whichever is higher.
	minZoom := ref.minZoom
	if sf.HasMinZoom && sf.MinZoom > minZoom {
		minZoom = sf.MinZoom
	}

	return &render.Feature{
		Layer:    layerName,
		GeomType: sf.GeomType,
		ID:       sf.ID,
		HasID:    sf.HasID,
		Index:    sf.Index,
		MinZoom:  minZoom,
		MaxZoom:  sf.MaxZoom,
		HasMax:   sf.HasMaxZoom,
		Seq:      sf.Seq,
		Attrs:    attrs,
		Geometry: sf.Geometry,
		BBox:     sf.BBox,
	}, nil
}

func (r *featureReader) resolveAttrs(seg *segment, sf *serial.Feature) (map[string]interface{}, error) {
	attrs := make(map[string]interface{}, sf.MetaCount)
	if sf.Inline {
		for _, a := range sf.Attrs {
			if err := r.resolveInto(attrs, a); err != nil {
				return nil, err
			}
		}
		return attrs, nil
	}

	metaFile := r.metaFiles[seg.id]
	metaSection := io.NewSectionReader(metaFile, sf.MetaOffset, -1)
	mbr := bufio.NewReader(metaSection)
	refs, err := ingest.ReadMetaAttrs(mbr)
	if err != nil {
		return nil, err
	}
	for _, a := range refs {
		if err := r.resolveInto(attrs, a); err != nil {
			return nil, err
		}
	}
	return attrs, nil
}

func (r *featureReader) resolveInto(attrs map[string]interface{}, a serial.AttrRef) error {
	_, key, err := r.pool.Resolve(a.KeyOffset)
	if err != nil {
		return err
	}
	_, val, err := r.pool.Resolve(a.ValueOffset)
	if err != nil {
		return err
	}
	attrs[key] = val
	return nil
}

// makeRenderFunc adapts render.Render into the traversal.RenderFunc shape,
// materializing each batch's records (from disk on first touch, straight
// from memory on every zoom after) and re-emitting kept-and-touched
// features into whichever of the tile's (up to four) z+1 children they
// overlap. Shared-border detection runs inside render.Render itself,
// scoped to one tile's kept polygons, rather than here.
func makeRenderFunc(cfg *config.Config, opts Options, reader *featureReader) traversal.RenderFunc {
	return func(ctx context.Context, batch traversal.TileBatch) ([]traversal.ChildFeature, error) {
		features := make([]*render.Feature, 0, len(batch.Records))
		for _, rec := range batch.Records {
			switch ref := rec.Payload.(type) {
			case *diskRef:
				f, err := reader.readDisk(ref)
				if err != nil {
					return nil, err
				}
				features = append(features, f)
			case *render.Feature:
				features = append(features, ref)
			default:
				return nil, fmt.Errorf("pipeline: unknown traversal payload %T", rec.Payload)
			}
		}

		result := render.Render(cfg, render.Options{
			Z: uint32(batch.Z), X: batch.X, Y: batch.Y,
			MaxZoom: cfg.MaxZoom,
			Filters: opts.Filters,
		}, features)

		if result.Failed {
			if opts.Metrics != nil {
				opts.Metrics.TilesFailed.Inc()
			}
			cfg.WarnOnce("tile_failed", "tile %d/%d/%d failed: %s", batch.Z, batch.X, batch.Y, result.FailReason)
		} else {
			if err := opts.Store.PutTile(batch.Z, batch.X, batch.Y, result.Bytes); err != nil {
				return nil, err
			}
			if opts.Metrics != nil {
				opts.Metrics.TilesRendered.Inc()
				opts.Metrics.ZoomReached.Set(float64(batch.Z))
			}
		}

		if batch.Z >= cfg.MaxZoom {
			return nil, nil
		}

		var children []traversal.ChildFeature
		for _, c := range result.ChildCandidates {
			cx := c.BBox.MinX + (c.BBox.MaxX-c.BBox.MinX)/2
			cy := c.BBox.MinY + (c.BBox.MaxY-c.BBox.MinY)/2
			for _, child := range childTilesOverlapping(c.BBox, cfg.Buffer, batch.Z, batch.X, batch.Y) {
				// The re-emitted key must decode back to this specific
				// child via traversal.TileXY, so the bbox centre is
				// clamped into the child's own world-coordinate bounds
				// rather than reused verbatim across every overlapping
				// quadrant (a feature straddling the child boundary would
				// otherwise route to only one of its several children).
				minX, minY, maxX, maxY := geo.TileBounds(batch.Z+1, child.X, child.Y)
				key := geo.Encode(uint32(clampRange(cx, minX, maxX)), uint32(clampRange(cy, minY, maxY)))
				children = append(children, traversal.ChildFeature{
					Record: traversal.Record{Key: key, Payload: c},
					BBox:   c.BBox,
				})
			}
		}
		return children, nil
	}
}

func clampRange(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v >= hi {
		return hi - 1
	}
	return v
}

// childTile is one z+1 quadrant of a (z,x,y) tile.
type childTile struct{ X, Y uint32 }

// childTilesOverlapping returns the z+1 children of (z,x,y) whose
// (unbuffered) extent intersects bbox expanded by buffer world units.
func childTilesOverlapping(bbox geo.BBox, buffer int64, z uint8, x, y uint32) []childTile {
	buffered := bbox.Buffered(buffer)
	var out []childTile
	for dy := uint32(0); dy < 2; dy++ {
		for dx := uint32(0); dx < 2; dx++ {
			cx, cy := x*2+dx, y*2+dy
			minX, minY, maxX, maxY := geo.TileBounds(z+1, cx, cy)
			if buffered.MaxX <= minX || buffered.MinX >= maxX || buffered.MaxY <= minY || buffered.MinY >= maxY {
				continue
			}
			out = append(out, childTile{X: cx, Y: cy})
		}
	}
	return out
}
