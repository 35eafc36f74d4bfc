// SPDX-License-Identifier: MIT

package minzoom

import (
	"testing"

	"github.com/brawer/tilekiln/internal/geo"
)

func TestAssignFirstPointInTileGetsValidMinzoom(t *testing.T) {
	a := NewAssigner(14, 6, 2.5)
	// All points with the same key land in the same tile at every zoom;
	// the per-zoom counts keep growing, so later points reach their
	// intervals at equal or lower zooms than earlier ones.
	var minzooms []uint8
	for i := 0; i < 50; i++ {
		key := geo.Encode(1<<20, 1<<20) // fixed tile across all zooms below ~20
		minzooms = append(minzooms, a.Assign(key, geo.Point, false, false))
	}
	// The first feature in a freshly-seen tile must get a minzoom within
	// the assigner's zoom range.
	if minzooms[0] > a.maxZoom {
		t.Fatalf("first feature got invalid minzoom %d", minzooms[0])
	}
}

func TestLinesDefaultToZeroUnlessDropLines(t *testing.T) {
	a := NewAssigner(14, 6, 2.5)
	key := geo.Encode(100, 100)
	if z := a.Assign(key, geo.Line, false, false); z != 0 {
		t.Errorf("expected line minzoom 0 without drop-lines, got %d", z)
	}
}

func TestPolygonsRespectDropPolygons(t *testing.T) {
	a := NewAssigner(14, 6, 2.5)
	key := geo.Encode(200, 200)
	if z := a.Assign(key, geo.Polygon, false, true); z > a.maxZoom {
		t.Errorf("expected a valid minzoom with drop-polygons set, got %d", z)
	}
}

func TestIntervalDecreasesTowardBasezoom(t *testing.T) {
	a := NewAssigner(10, 5, 2.0)
	if a.interval[5] != 0 {
		t.Errorf("expected interval[basezoom] == 0, got %f", a.interval[5])
	}
	if a.interval[4] >= a.interval[0] {
		t.Errorf("expected interval to shrink moving toward basezoom: interval[0]=%f interval[4]=%f", a.interval[0], a.interval[4])
	}
}

func TestPreflightPicksIncreasingBasezoom(t *testing.T) {
	// Construct a sorted key sequence where the root tile (zoom 0)
	// quickly exceeds the per-tile budget.
	var keys []uint64
	for x := uint32(0); x < 200; x++ {
		keys = append(keys, geo.Encode(x, 0))
	}
	result := Preflight(func(yield func(uint64) bool) {
		for _, k := range keys {
			if !yield(k) {
				return
			}
		}
	}, 14, 50, 2.5)
	if result.BaseZoom == 0 {
		t.Errorf("expected a nonzero basezoom given a saturated root tile")
	}
}
