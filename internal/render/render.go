// SPDX-License-Identifier: MIT

package render

import (
	"bytes"
	"math"
	"sort"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"github.com/brawer/tilekiln/internal/config"
	"github.com/brawer/tilekiln/internal/filter"
	"github.com/brawer/tilekiln/internal/geo"
	"github.com/brawer/tilekiln/internal/sharedborder"
)

// Options bundles the per-tile render inputs beyond the raw feature set:
// zoom/tile coordinate, the global config, and the layer filters.
type Options struct {
	Z, X, Y uint32
	MaxZoom uint8
	Filters filter.LayerFilters
}

// Result is the outcome of rendering one tile.
type Result struct {
	Bytes        []byte
	FeatureCount int
	Detail       uint8
	// ChildCandidates are the post-clip, pre-simplification features to
	// re-emit to the zoom below; only populated on a tile's first render
	// attempt.
	ChildCandidates []*Feature
	Failed          bool
	FailReason      string
}

// Render runs the full single-tile algorithm: READ -> CLIP/FILTER ->
// SIMPLIFY -> QUANTIZE -> CLEAN -> COALESCE -> ENCODE -> COMPRESS. A tile
// over the feature-count budget fails at once unless cfg.Force is set; a
// tile over the byte budget loops back to CLIP/FILTER with reduced detail
// or a smaller kept-fraction.
func Render(cfg *config.Config, opts Options, features []*Feature) Result {
	detail := cfg.Detail
	fraction := 1.0
	tileBBox := geo.BBox{}
	tileBBox.MinX, tileBBox.MinY, tileBBox.MaxX, tileBBox.MaxY = geo.TileBounds(uint8(opts.Z), opts.X, opts.Y)
	scale := scaleForZoom(opts.Z)

	first := true
	var childCandidates []*Feature
	for {
		classified := Classify(tileBBox, features, ClassifyOptions{
			Z:                  uint8(opts.Z),
			Detail:             detail,
			Buffer:             cfg.Buffer,
			Gamma:              cfg.Gamma,
			Scale:              scale,
			Fraction:           fraction,
			PreventClipping:    cfg.PreventClipping,
			ReduceTinyPolygons: true,
			Filters:            opts.Filters,
			Warn:               func(f string, a ...interface{}) { cfg.WarnOnce("filter", f, a...) },
		})

		kept := make([]*Feature, 0, len(classified))
		for _, c := range classified {
			if c.keep {
				kept = append(kept, c.feature)
			}
			if first && c.emit {
				childCandidates = append(childCandidates, c.feature.Clone())
			}
		}

		if cfg.SharedBorders {
			markSharedBorders(kept, cfg, opts, detail)
		}
		simplified := simplifyAll(kept, opts, detail, cfg)
		quantized := quantizeAll(simplified, uint8(opts.Z), detail, opts.X, opts.Y)
		cleaned := cleanAll(quantized)

		grouped := GroupByLayer(cleaned)
		if cfg.Reorder || cfg.Coalesce {
			for _, feats := range grouped {
				SortForReorder(feats)
			}
		}
		if cfg.Coalesce {
			for name, feats := range grouped {
				grouped[name] = Coalesce(feats)
			}
		}
		if cfg.PreserveInputOrder {
			for _, feats := range grouped {
				restoreInputOrder(feats)
			}
		}

		total := 0
		for _, feats := range grouped {
			total += len(feats)
		}
		if total > cfg.MaxTileFeatures && !cfg.Force {
			return Result{Failed: true, FailReason: "feature count exceeds budget", ChildCandidates: childCandidates}
		}

		extent := uint32(1) << detail
		encoded, err := Encode(grouped, extent)
		if err != nil {
			return Result{Failed: true, FailReason: err.Error()}
		}

		compressed, err := gzipCompress(encoded)
		if err != nil {
			return Result{Failed: true, FailReason: err.Error()}
		}

		if len(compressed) <= cfg.MaxTileBytes {
			return Result{
				Bytes:           compressed,
				FeatureCount:    total,
				Detail:          detail,
				ChildCandidates: childCandidates,
			}
		}

		// Over budget: retry.
		if cfg.DynamicDrop {
			fraction = fraction * float64(cfg.MaxTileBytes) / float64(len(compressed)) * 0.95
			detail = cfg.Detail
			first = false
			continue
		}
		if detail > cfg.MinDetail {
			detail--
			first = false
			continue
		}
		return Result{Failed: true, FailReason: "tile exceeds byte budget at minimum detail"}
	}
}

// scaleForZoom returns curve distance per tile-pixel at z.
func scaleForZoom(z uint32) float64 {
	return math.Pow(2, float64(64-2*(int(z)+8)))
}

// markSharedBorders runs over this tile's kept polygons: every edge
// shared by two or more rings gets its endpoints marked Necessary, then
// each ring is rotated to start at a necessary vertex and split into
// arcs at every necessary vertex. Arcs are interned into a shared pool
// keyed by their coordinate sequence (orientation-invariant), so two
// rings that traverse the same border reuse one pool entry; the pool is
// simplified once per unique arc instead of once per ring, guaranteeing
// both sides of a shared border come out byte-identical instead of
// merely hoping two independent Douglas-Peucker runs agree. Features
// touched here are marked borderSimplified so simplifyOne skips them.
func markSharedBorders(features []*Feature, cfg *config.Config, opts Options, detail uint8) {
	var rings []*Feature
	for _, f := range features {
		if f.GeomType == geo.Polygon {
			rings = append(rings, f)
		}
	}
	if len(rings) < 2 {
		return
	}
	detector := sharedborder.NewDetector()
	for i, f := range rings {
		detector.AddRing(i, f.Geometry)
	}
	for i, f := range rings {
		f.Geometry = detector.MarkNecessary(i, f.Geometry)
	}

	pool := sharedborder.NewPool()
	type arcRef struct {
		key     string
		forward bool
	}
	refs := make([][]arcRef, len(rings))
	anyShared := false
	for i, f := range rings {
		rotated := sharedborder.RotateToNecessary(f.Geometry)
		arcs := sharedborder.SplitArcs(rotated)
		if len(arcs) > 1 {
			anyShared = true
		}
		refs[i] = make([]arcRef, len(arcs))
		for j, arc := range arcs {
			key, forward := pool.Intern(arc.Points)
			refs[i][j] = arcRef{key, forward}
		}
	}
	if !anyShared {
		return
	}

	pool.Simplify(geo.SimplifyOptions{
		Zoom:           uint8(opts.Z),
		Detail:         detail,
		Buffer:         cfg.Buffer,
		Algorithm:      geo.Algorithm(cfg.Algorithm),
		Simplification: cfg.Simplification,
	})

	for i, f := range rings {
		var pts geo.Drawvec
		for _, r := range refs[i] {
			arc := pool.Arc(r.key, r.forward)
			if len(pts) > 0 && len(arc) > 0 {
				arc = arc[1:] // drop vertex shared with the previous arc's end
			}
			pts = append(pts, arc...)
		}
		if len(pts) == 0 {
			continue
		}
		rebuilt := make(geo.Drawvec, 0, len(pts)+1)
		for k, p := range pts {
			op := geo.LineTo
			if k == 0 {
				op = geo.MoveTo
			}
			rebuilt = append(rebuilt, geo.Draw{Op: op, X: p.X, Y: p.Y, Necessary: p.Necessary})
		}
		last := rebuilt[len(rebuilt)-1]
		if last.X != rebuilt[0].X || last.Y != rebuilt[0].Y {
			rebuilt = append(rebuilt, geo.Draw{Op: geo.LineTo, X: rebuilt[0].X, Y: rebuilt[0].Y})
		}
		f.Geometry = rebuilt
		f.borderSimplified = true
	}
}

// simplifyAll simplifies every kept feature's geometry in place. Each
// feature only ever touches its own Feature.Geometry, so the list is
// partitioned across cfg.CPUs workers and simplified concurrently via
// errgroup, the same fan-out shape internal/traversal uses for per-zoom
// worker pools.
func simplifyAll(features []*Feature, opts Options, detail uint8, cfg *config.Config) []*Feature {
	workers := cfg.CPUs
	if workers < 1 {
		workers = 1
	}
	if workers > len(features) {
		workers = len(features)
	}
	if workers <= 1 {
		for _, f := range features {
			simplifyOne(f, opts, detail, cfg)
		}
		return features
	}

	var g errgroup.Group
	chunk := (len(features) + workers - 1) / workers
	for start := 0; start < len(features); start += chunk {
		end := start + chunk
		if end > len(features) {
			end = len(features)
		}
		shard := features[start:end]
		g.Go(func() error {
			for _, f := range shard {
				simplifyOne(f, opts, detail, cfg)
			}
			return nil
		})
	}
	g.Wait()
	return features
}

func simplifyOne(f *Feature, opts Options, detail uint8, cfg *config.Config) {
	if f.reduced || f.borderSimplified {
		return
	}
	pre := f.Geometry.Clone()
	simplified := geo.SimplifyLines(f.Geometry, geo.SimplifyOptions{
		Zoom:           uint8(opts.Z),
		Detail:         detail,
		Buffer:         cfg.Buffer,
		Algorithm:      geo.Algorithm(cfg.Algorithm),
		Simplification: cfg.Simplification,
	})
	if f.GeomType == geo.Polygon {
		simplified = RevivePolygon(pre, simplified)
	}
	f.Geometry = simplified
}

func quantizeAll(features []*Feature, z, detail uint8, x, y uint32) []*Feature {
	for _, f := range features {
		f.Geometry = Quantize(f.Geometry, z, detail, x, y)
	}
	return features
}

func cleanAll(features []*Feature) []*Feature {
	out := make([]*Feature, 0, len(features))
	for _, f := range features {
		if f.GeomType != geo.Polygon {
			out = append(out, f)
			continue
		}
		f.Geometry = geo.CleanOrClipPoly(f.Geometry, geo.BBox{}, false)
		pieces := geo.ChopPolygon(f.Geometry)
		if len(pieces) <= 1 {
			out = append(out, f)
			continue
		}
		for _, piece := range pieces {
			clone := f.Clone()
			clone.Geometry = piece
			out = append(out, clone)
		}
	}
	return out
}

// restoreInputOrder sorts feats back into original ingest seq order
//.
func restoreInputOrder(feats []*Feature) {
	sort.Slice(feats, func(i, j int) bool { return feats[i].Seq < feats[j].Seq })
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
