// SPDX-License-Identifier: MIT

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistersAndCountsFeatures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FeaturesIngested.Add(3)
	m.FeaturesDropped.WithLabelValues("unclosed_ring").Inc()

	mf, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, fam := range mf {
		if fam.GetName() != "tilekiln_features_ingested_total" {
			continue
		}
		found = true
		var got float64
		for _, metric := range fam.Metric {
			got = metric.GetCounter().GetValue()
		}
		if got != 3 {
			t.Errorf("features_ingested_total = %v, want 3", got)
		}
	}
	if !found {
		t.Error("expected tilekiln_features_ingested_total to be registered")
	}
}
