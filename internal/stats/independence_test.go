package stats_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/technosupport/addaxai-connect/internal/stats"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return tm
}

func TestGroupIntoEvents_GapOpensNewEvent(t *testing.T) {
	interval := 30 * time.Minute
	obs := []stats.Observation{
		{CameraID: "cam1", Species: "red_deer", CapturedAt: mustTime(t, "2026-01-01T10:00:00Z"), Count: 1},
		{CameraID: "cam1", Species: "red_deer", CapturedAt: mustTime(t, "2026-01-01T10:10:00Z"), Count: 2},
		// 45 minutes later: beyond the interval, opens a new event
		{CameraID: "cam1", Species: "red_deer", CapturedAt: mustTime(t, "2026-01-01T10:55:00Z"), Count: 1},
	}

	events := stats.GroupIntoEvents(obs, interval)

	if assert.Len(t, events, 2) {
		assert.Equal(t, 2, events[0].Count) // MAX of 1,2 within the first event
		assert.Len(t, events[0].Images, 2)
		assert.Equal(t, 1, events[1].Count)
		assert.Len(t, events[1].Images, 1)
	}
}

func TestGroupIntoEvents_SeparatesByCameraAndSpecies(t *testing.T) {
	interval := 30 * time.Minute
	obs := []stats.Observation{
		{CameraID: "cam1", Species: "red_deer", CapturedAt: mustTime(t, "2026-01-01T10:00:00Z"), Count: 1},
		{CameraID: "cam2", Species: "red_deer", CapturedAt: mustTime(t, "2026-01-01T10:01:00Z"), Count: 1},
		{CameraID: "cam1", Species: "wild_boar", CapturedAt: mustTime(t, "2026-01-01T10:02:00Z"), Count: 1},
	}

	events := stats.GroupIntoEvents(obs, interval)

	assert.Len(t, events, 3)
}
