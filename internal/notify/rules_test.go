package notify

import (
	"testing"

	"github.com/technosupport/addaxai-connect/internal/data"
)

func floatPtr(f float64) *float64 { return &f }

func TestMatchSpeciesDetection(t *testing.T) {
	basePref := func(enabled bool, allowlist []string) data.ProjectNotificationPreference {
		return data.ProjectNotificationPreference{
			Channels: data.NotificationChannels{
				SpeciesDetection: data.SpeciesDetectionRule{
					Enabled:          enabled,
					Channels:         []data.NotificationChannel{data.ChannelTelegram},
					SpeciesAllowlist: allowlist,
				},
			},
		}
	}

	tests := []struct {
		name      string
		event     SpeciesDetectionEvent
		pref      data.ProjectNotificationPreference
		threshold float64
		want      bool
	}{
		{
			name:      "disabled rule never matches",
			event:     SpeciesDetectionEvent{Confidence: floatPtr(0.9), DetectionConfidence: floatPtr(0.9)},
			pref:      basePref(false, nil),
			threshold: 0.5,
			want:      false,
		},
		{
			name:      "missing classification confidence drops the event",
			event:     SpeciesDetectionEvent{Confidence: nil, DetectionConfidence: floatPtr(0.9)},
			pref:      basePref(true, nil),
			threshold: 0.5,
			want:      false,
		},
		{
			name:      "missing detection confidence drops the event",
			event:     SpeciesDetectionEvent{Confidence: floatPtr(0.9), DetectionConfidence: nil},
			pref:      basePref(true, nil),
			threshold: 0.5,
			want:      false,
		},
		{
			name:      "below threshold does not match",
			event:     SpeciesDetectionEvent{Confidence: floatPtr(0.4), DetectionConfidence: floatPtr(0.9)},
			pref:      basePref(true, nil),
			threshold: 0.5,
			want:      false,
		},
		{
			name:      "meets threshold with no allowlist matches",
			event:     SpeciesDetectionEvent{Confidence: floatPtr(0.9), DetectionConfidence: floatPtr(0.9), Species: "red_fox"},
			pref:      basePref(true, nil),
			threshold: 0.5,
			want:      true,
		},
		{
			name:      "species outside allowlist does not match",
			event:     SpeciesDetectionEvent{Confidence: floatPtr(0.9), DetectionConfidence: floatPtr(0.9), Species: "red_fox"},
			pref:      basePref(true, []string{"coyote"}),
			threshold: 0.5,
			want:      false,
		},
		{
			name:      "species inside allowlist matches",
			event:     SpeciesDetectionEvent{Confidence: floatPtr(0.9), DetectionConfidence: floatPtr(0.9), Species: "coyote"},
			pref:      basePref(true, []string{"coyote", "red_fox"}),
			threshold: 0.5,
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchSpeciesDetection(tt.event, tt.pref, tt.threshold)
			if got != tt.want {
				t.Errorf("MatchSpeciesDetection() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchSystemHealth(t *testing.T) {
	pref := func(enabled bool, minSeverity string) data.ProjectNotificationPreference {
		return data.ProjectNotificationPreference{
			Channels: data.NotificationChannels{
				SystemHealth: data.SystemHealthRule{
					Enabled:         enabled,
					Channels:        []data.NotificationChannel{data.ChannelEmail},
					MinimumSeverity: minSeverity,
				},
			},
		}
	}

	tests := []struct {
		name    string
		event   SystemHealthEvent
		pref    data.ProjectNotificationPreference
		isAdmin bool
		want    bool
	}{
		{"non-admin never matches", SystemHealthEvent{Severity: "critical"}, pref(true, "warning"), false, false},
		{"disabled rule never matches", SystemHealthEvent{Severity: "critical"}, pref(false, "warning"), true, false},
		{"below minimum severity does not match", SystemHealthEvent{Severity: "info"}, pref(true, "warning"), true, false},
		{"at minimum severity matches", SystemHealthEvent{Severity: "warning"}, pref(true, "warning"), true, true},
		{"above minimum severity matches", SystemHealthEvent{Severity: "critical"}, pref(true, "warning"), true, true},
		{"unknown severity never matches", SystemHealthEvent{Severity: "bogus"}, pref(true, "warning"), true, false},
		{"unset minimum severity defaults to warning", SystemHealthEvent{Severity: "info"}, pref(true, ""), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchSystemHealth(tt.event, tt.pref, tt.isAdmin)
			if got != tt.want {
				t.Errorf("MatchSystemHealth() = %v, want %v", got, tt.want)
			}
		})
	}
}
