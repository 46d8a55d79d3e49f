package geo_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/technosupport/addaxai-connect/internal/geo"
)

func TestDistanceMeters_SamePoint(t *testing.T) {
	d := geo.DistanceMeters(52.0987, 5.1255, 52.0987, 5.1255)
	assert.InDelta(t, 0, d, 0.001)
}

func TestHasRelocated_WithinThreshold(t *testing.T) {
	// roughly 10m apart, well under the 100m threshold
	assert.False(t, geo.HasRelocated(52.100000, 5.100000, 52.100090, 5.100000))
}

func TestHasRelocated_BeyondThreshold(t *testing.T) {
	// ~720m apart per the relocation-backfill scenario
	assert.True(t, geo.HasRelocated(52.100, 5.100, 52.102, 5.110))
}

func TestClusterDeploymentPeriods_RelocationBackfill(t *testing.T) {
	fixes := make([]geo.Fix, 0, 10)
	base, err := time.Parse("2006-01-02", "2026-01-01")
	if err != nil {
		t.Fatalf("parse base date: %v", err)
	}
	for i := 0; i < 5; i++ {
		fixes = append(fixes, geo.Fix{CapturedAt: base.AddDate(0, 0, i), Latitude: 52.100, Longitude: 5.100})
	}
	for i := 5; i < 10; i++ {
		fixes = append(fixes, geo.Fix{CapturedAt: base.AddDate(0, 0, i), Latitude: 52.102, Longitude: 5.110})
	}

	clusters := geo.ClusterDeploymentPeriods(fixes)

	if assert.Len(t, clusters, 2) {
		assert.Equal(t, base, clusters[0].StartDate)
		assert.Equal(t, base.AddDate(0, 0, 4), clusters[0].EndDate)
		assert.Equal(t, base.AddDate(0, 0, 5), clusters[1].StartDate)
		assert.Equal(t, base.AddDate(0, 0, 9), clusters[1].EndDate)
	}
}
