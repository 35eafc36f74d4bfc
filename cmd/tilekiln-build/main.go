// SPDX-License-Identifier: MIT

// tilekiln-build reads one or more GeoJSON files and builds a zoomable
// pyramid of vector tiles, written to a directory, an MBTiles file, or
// S3-compatible object storage.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brawer/tilekiln/internal/config"
	"github.com/brawer/tilekiln/internal/filter"
	"github.com/brawer/tilekiln/internal/ingest"
	"github.com/brawer/tilekiln/internal/metrics"
	"github.com/brawer/tilekiln/internal/pipeline"
	"github.com/brawer/tilekiln/internal/tilestore"
)

var logger *log.Logger

func main() {
	var (
		out        = flag.String("out", "tiles", "output path: a directory, or a file ending in .mbtiles")
		layer      = flag.String("layer", "features", "default layer name for inputs without one")
		minZoom    = flag.Uint("minzoom", 0, "minimum zoom level")
		maxZoom    = flag.Uint("maxzoom", 14, "maximum zoom level")
		baseZoom   = flag.Uint("base-zoom", 0, "zoom level at which feature dropping starts (0 = auto)")
		dropRate   = flag.Float64("drop-rate", 2.5, "feature-dropping rate per zoom level below base-zoom")
		gamma      = flag.Float64("gamma", 0, "point-thinning gamma (0 disables)")
		detail     = flag.Uint("detail", 12, "tile detail bits (extent = 1<<detail)")
		buffer     = flag.Int64("buffer", 5, "tile buffer, in 1/16th-extent pixel units")
		coalesce   = flag.Bool("coalesce", false, "merge adjacent same-attribute features")
		reorder    = flag.Bool("reorder", false, "reorder features to help coalescing")
		sharedBord = flag.Bool("shared-borders", false, "preserve shared polygon borders through simplification")
		cpus       = flag.Int("cpus", 0, "worker count (0 = runtime.NumCPU)")
		filterFile = flag.String("filter", "", "path to a JSON per-layer filter file")
		s3key      = flag.String("s3-key-file", "", "path to JSON S3 credentials, for -out=s3://bucket/prefix")
		metricsAddr = flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
		logPath    = flag.String("log", "", "path to a log file (default: stderr)")
	)
	flag.Parse()

	logger = newLogger(*logPath)
	logger.Printf("tilekiln-build starting up")

	if flag.NArg() == 0 {
		logger.Fatal("usage: tilekiln-build [flags] input.geojson [input2.geojson ...]")
	}

	cfg := config.New()
	cfg.Logger = logger
	cfg.MinZoom = uint8(*minZoom)
	cfg.MaxZoom = uint8(*maxZoom)
	cfg.BaseZoom = uint8(*baseZoom)
	cfg.DropRate = *dropRate
	cfg.Gamma = *gamma
	cfg.Detail = uint8(*detail)
	cfg.Buffer = *buffer
	cfg.Coalesce = *coalesce
	cfg.Reorder = *reorder
	cfg.SharedBorders = *sharedBord
	if *cpus > 0 {
		cfg.CPUs = *cpus
	} else {
		cfg.CPUs = runtime.NumCPU()
	}
	cfg.TempDir = os.TempDir()

	store, err := openStore(*out, *s3key)
	if err != nil {
		logger.Fatalf("opening output store %q: %v", *out, err)
	}

	var layerFilters filter.LayerFilters
	if *filterFile != "" {
		layerFilters, err = readFilters(*filterFile)
		if err != nil {
			logger.Fatalf("reading filter file %q: %v", *filterFile, err)
		}
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, reg)
	}

	var sources []pipeline.Source
	for _, path := range flag.Args() {
		src := geojsonSource{path: path, layer: *layer}
		sources = append(sources, pipeline.Source{Layer: *layer, Features: src.features})
	}

	err = pipeline.Build(context.Background(), pipeline.Options{
		Config:     cfg,
		Sources:    sources,
		Store:      store,
		Metrics:    m,
		Filters:    layerFilters,
		Attributes: ingest.AttributeFilter{IncludeAll: true},
		Name:       filepath.Base(*out),
	})
	if err != nil {
		logger.Fatalf("build failed: %v", err)
	}
	logger.Printf("tilekiln-build exiting")
}

func newLogger(path string) *log.Logger {
	if path == "" {
		return log.New(os.Stderr, "", log.Ldate|log.Ltime|log.LUTC|log.Lshortfile)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("opening log file %q: %v", path, err)
	}
	return log.New(f, "", log.Ldate|log.Ltime|log.LUTC|log.Lshortfile)
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Printf("serving metrics on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Printf("metrics server stopped: %v", err)
	}
}

// openStore picks a tilestore.Store backend from the -out flag's shape:
// an "s3://bucket/prefix" URL, a path ending in .mbtiles, or a plain
// directory.
func openStore(out, s3KeyPath string) (tilestore.Store, error) {
	switch {
	case strings.HasPrefix(out, "s3://"):
		rest := strings.TrimPrefix(out, "s3://")
		parts := strings.SplitN(rest, "/", 2)
		bucket := parts[0]
		prefix := ""
		if len(parts) > 1 {
			prefix = parts[1]
		}
		client, err := newS3Client(s3KeyPath)
		if err != nil {
			return nil, err
		}
		return tilestore.NewS3Store(context.Background(), client, bucket, prefix), nil

	case strings.HasSuffix(out, ".mbtiles"):
		return tilestore.NewMBTilesStore(out)

	default:
		if err := os.MkdirAll(out, 0755); err != nil {
			return nil, err
		}
		return tilestore.NewDirStore(out), nil
	}
}

// newS3Client sets up an S3-compatible client from either a JSON key
// file, or else S3_ENDPOINT/S3_KEY/S3_SECRET environment variables.
func newS3Client(keypath string) (*minio.Client, error) {
	var creds struct{ Endpoint, Key, Secret string }
	if keypath == "" {
		creds.Endpoint = os.Getenv("S3_ENDPOINT")
		creds.Key = os.Getenv("S3_KEY")
		creds.Secret = os.Getenv("S3_SECRET")
	} else {
		data, err := os.ReadFile(keypath)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &creds); err != nil {
			return nil, err
		}
	}
	client, err := minio.New(creds.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(creds.Key, creds.Secret, ""),
		Secure: true,
	})
	if err != nil {
		return nil, err
	}
	client.SetAppInfo("TilekilnBuild", "0.1")
	return client, nil
}

func readFilters(path string) (filter.LayerFilters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing filter file: %w", err)
	}
	return filter.ParseLayerFilters(raw)
}
