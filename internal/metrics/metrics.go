// SPDX-License-Identifier: MIT

// Package metrics registers the Prometheus counters and gauges a build
// run exposes on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every counter/gauge one build run touches. Callers
// construct one with New and pass it down instead of reaching for
// prometheus's default registry directly, so tests can use an isolated
// registry.
type Metrics struct {
	FeaturesIngested prometheus.Counter
	FeaturesDropped  *prometheus.CounterVec
	TilesRendered    prometheus.Counter
	TilesRetried     prometheus.Counter
	TilesFailed      prometheus.Counter
	ZoomReached      prometheus.Gauge
	BuildDuration    prometheus.Histogram
}

// New creates and registers a Metrics set against reg. Pass
// prometheus.NewRegistry() in tests; pass prometheus.DefaultRegisterer
// (wrapped in a *prometheus.Registry via NewPedanticRegistry, or simply
// use MustRegister on the default registry) in production.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FeaturesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tilekiln",
			Name:      "features_ingested_total",
			Help:      "Number of input features successfully parsed and written to the geometry store.",
		}),
		FeaturesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tilekiln",
			Name:      "features_dropped_total",
			Help:      "Number of input features dropped, by reason.",
		}, []string{"reason"}),
		TilesRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tilekiln",
			Name:      "tiles_rendered_total",
			Help:      "Number of tiles successfully rendered and stored.",
		}),
		TilesRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tilekiln",
			Name:      "tiles_retried_total",
			Help:      "Number of tile render attempts that retried after exceeding the byte or feature budget.",
		}),
		TilesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tilekiln",
			Name:      "tiles_failed_total",
			Help:      "Number of tiles that failed to fit even at minimum detail.",
		}),
		ZoomReached: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tilekiln",
			Name:      "zoom_reached",
			Help:      "Highest zoom level fully rendered so far in the current run.",
		}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tilekiln",
			Name:      "build_duration_seconds",
			Help:      "Wall-clock duration of a full build run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
		}),
	}
	reg.MustRegister(
		m.FeaturesIngested,
		m.FeaturesDropped,
		m.TilesRendered,
		m.TilesRetried,
		m.TilesFailed,
		m.ZoomReached,
		m.BuildDuration,
	)
	return m
}
