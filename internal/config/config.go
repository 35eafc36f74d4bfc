// SPDX-License-Identifier: MIT

// Package config collects the pipeline's tunables into one immutable value
// threaded by reference through every stage, instead of process globals.
// It also owns the single shared *log.Logger and the once-per-condition
// warning helper used throughout the pipeline.
package config

import (
	"fmt"
	"log"
	"os"
	"sync"
)

// Config bundles every tunable named across §4's components. Zero value is
// not meaningful; construct with New.
type Config struct {
	Logger *log.Logger

	// Zoom range (§2, §4.H).
	MinZoom, MaxZoom uint8

	// Detail / tile geometry (§4.A, §4.I).
	Detail    uint8
	MinDetail uint8
	Buffer    int64

	// Feature-minzoom assignment (§4.G).
	BaseZoom uint8
	DropRate float64
	Gamma    float64
	DropLines, DropPolygons bool

	// Tile-size budgets (§4.I step 10).
	MaxTileBytes    int
	MaxTileFeatures int
	Force           bool

	// Simplification (§4.A).
	Simplification float64
	Algorithm      int // geo.Algorithm, kept as int to avoid import cycle at config layer

	// Behavioural flags (§4.E-§4.I).
	PreventClipping    bool
	PreserveInputOrder bool
	Coalesce           bool
	Reorder            bool
	SharedBorders      bool
	DynamicDrop        bool
	WrapAroundHandling bool

	// Resource model (§5).
	CPUs      int
	TempFiles int
	TempDir   string

	diagOnce sync.Map // map[string]*sync.Once for warnOnce dedup
}

// New returns a Config with the standard defaults: detail 12, min_detail 7,
// a 500000-byte / 200000-feature per-tile budget.
func New() *Config {
	return &Config{
		Logger:          log.New(os.Stderr, "", log.Ldate|log.Ltime|log.LUTC|log.Lshortfile),
		MinZoom:         0,
		MaxZoom:         14,
		Detail:          12,
		MinDetail:       7,
		Buffer:          5,
		DropRate:        2.5,
		MaxTileBytes:    500000,
		MaxTileFeatures: 200000,
		Simplification:  1.0,
		CPUs:            1,
		TempFiles:       64,
	}
}

// WarnOnce logs a warning the first time it's called with a given key,
// matching §7's "locally recovered ... warn once" policy for per-feature
// and per-filter-comparison problems.
func (c *Config) WarnOnce(key, format string, args ...interface{}) {
	onceVal, _ := c.diagOnce.LoadOrStore(key, &sync.Once{})
	once := onceVal.(*sync.Once)
	once.Do(func() {
		c.Logger.Printf("warning (%s): %s", key, fmt.Sprintf(format, args...))
	})
}

// Diagnostic is a structural error report (polygon cleaning overflow, tile
// oversize, etc., per §7's policy table). No stage in this module
// constructs or collects one.
type Diagnostic struct {
	Kind    string
	Zoom    uint8
	X, Y    uint32
	Message string
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s at %d/%d/%d: %s", d.Kind, d.Zoom, d.X, d.Y, d.Message)
}
