// Package notify implements the notification core: rule evaluation against
// stored preferences, per-channel message rendering, and the scheduled
// battery-digest and periodic-report jobs.
package notify

import (
	"github.com/technosupport/addaxai-connect/internal/data"
)

// SpeciesDetectionEvent is the decoded payload of a notification-events
// message with event_type=species_detection.
type SpeciesDetectionEvent struct {
	ProjectID               string
	ImageID                 string
	CameraID                string
	CameraName              string
	CameraLatitude          *float64
	CameraLongitude         *float64
	Species                 string
	Confidence              *float64 // classification confidence
	DetectionConfidence     *float64
	DetectionCount          int
	AnnotatedPath           string
	Timestamp               string
}

// SystemHealthEvent is the decoded payload for event_type=system_health.
type SystemHealthEvent struct {
	ProjectID string
	Severity  string // e.g. "warning", "critical"
	Message   string
}

// severityRank orders system_health severities so a preference's
// minimum-severity gate can be compared numerically.
var severityRank = map[string]int{
	"info":     0,
	"warning":  1,
	"critical": 2,
}

// MatchSpeciesDetection evaluates one preference row against a
// species_detection event. Both the classification confidence and the
// originating detection confidence must clear the project's detection
// threshold; a missing confidence value drops the event rather than being
// treated as zero, exactly as the spec requires.
func MatchSpeciesDetection(event SpeciesDetectionEvent, pref data.ProjectNotificationPreference, detectionThreshold float64) bool {
	rule := pref.Channels.SpeciesDetection
	if !rule.Enabled {
		return false
	}
	if event.Confidence == nil || event.DetectionConfidence == nil {
		return false
	}
	if *event.Confidence < detectionThreshold || *event.DetectionConfidence < detectionThreshold {
		return false
	}
	if len(rule.SpeciesAllowlist) > 0 && !containsString(rule.SpeciesAllowlist, event.Species) {
		return false
	}
	return true
}

// MatchSystemHealth evaluates one preference row against a system_health
// event: admin-only and severity-gated.
func MatchSystemHealth(event SystemHealthEvent, pref data.ProjectNotificationPreference, userIsProjectAdmin bool) bool {
	rule := pref.Channels.SystemHealth
	if !rule.Enabled || !userIsProjectAdmin {
		return false
	}
	minRank, ok := severityRank[rule.MinimumSeverity]
	if !ok {
		minRank = severityRank["warning"]
	}
	eventRank, ok := severityRank[event.Severity]
	if !ok {
		return false
	}
	return eventRank >= minRank
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
