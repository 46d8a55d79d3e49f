// Package stats implements the independence-interval event grouping that
// defines the semantic unit of observation for statistics and export.
package stats

import (
	"sort"
	"time"
)

// Observation is one species sighting in one image, already resolved to a
// single per-image count (SUM of human counts if verified, count of
// classifications otherwise) by the caller.
type Observation struct {
	ImageID    string
	CameraID   string
	Species    string
	CapturedAt time.Time
	Count      int
}

// Event is a group of observations of the same species on the same camera
// that are within the independence interval of one another.
type Event struct {
	CameraID   string
	Species    string
	StartedAt  time.Time
	EndedAt    time.Time
	Images     []Observation
	Count      int // MAX of per-image counts within the event
}

// GroupIntoEvents implements the independence-interval algorithm: within a
// (camera, species) stream ordered by capture time, an observation opens a
// new event iff the gap to the previous observation of the same species and
// camera is null or exceeds interval. The whole computation is pure and
// recomputable from stored observations, as the spec requires.
func GroupIntoEvents(observations []Observation, interval time.Duration) []Event {
	byKey := make(map[string][]Observation)
	for _, o := range observations {
		key := o.CameraID + "\x00" + o.Species
		byKey[key] = append(byKey[key], o)
	}

	var events []Event
	for _, group := range byKey {
		sort.Slice(group, func(i, j int) bool {
			return group[i].CapturedAt.Before(group[j].CapturedAt)
		})

		var current *Event
		for _, obs := range group {
			if current != nil && obs.CapturedAt.Sub(current.EndedAt) <= interval {
				current.Images = append(current.Images, obs)
				current.EndedAt = obs.CapturedAt
				if obs.Count > current.Count {
					current.Count = obs.Count
				}
				continue
			}
			if current != nil {
				events = append(events, *current)
			}
			current = &Event{
				CameraID:  obs.CameraID,
				Species:   obs.Species,
				StartedAt: obs.CapturedAt,
				EndedAt:   obs.CapturedAt,
				Images:    []Observation{obs},
				Count:     obs.Count,
			}
		}
		if current != nil {
			events = append(events, *current)
		}
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].StartedAt.Before(events[j].StartedAt)
	})
	return events
}
