package notify

import (
	"strings"
	"testing"
)

func TestBuildSpeciesDetectionMessage(t *testing.T) {
	event := SpeciesDetectionEvent{
		Species:    "red_fox",
		CameraName: "North Ridge Cam 3",
		ImageID:    "img-123",
		Timestamp:  "2026-03-04T08:15:30Z",
	}
	links := LinkBuilder{Domain: "app.example.org"}

	msg := BuildSpeciesDetectionMessage(event, links)

	for _, want := range []string{"Red Fox observed!", "North Ridge Cam 3", "https://app.example.org/images/img-123", "2026-03-04"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q, got: %s", want, msg)
		}
	}
}

func TestBuildSpeciesDetectionMessage_BadTimestampOmitsWhenLine(t *testing.T) {
	event := SpeciesDetectionEvent{Species: "coyote", CameraName: "Cam", ImageID: "i1", Timestamp: "not-a-time"}
	msg := BuildSpeciesDetectionMessage(event, LinkBuilder{Domain: "x"})
	if strings.Contains(msg, "Time:") {
		t.Errorf("expected no Time: line for unparseable timestamp, got: %s", msg)
	}
}

func TestTitleCase(t *testing.T) {
	cases := map[string]string{
		"red_fox":         "Red Fox",
		"coyote":          "Coyote",
		"white_tailed_deer": "White Tailed Deer",
		"":                "",
	}
	for in, want := range cases {
		if got := titleCase(in); got != want {
			t.Errorf("titleCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildBatteryDigestMessage(t *testing.T) {
	links := LinkBuilder{Domain: "app.example.org"}
	msg := BuildBatteryDigestMessage("Ridge Study", 3, 30, links, "proj-1")
	for _, want := range []string{"3 camera(s)", "Ridge Study", "30%", "https://app.example.org/projects/proj-1/cameras"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q, got: %s", want, msg)
		}
	}
}

func TestBuildSystemHealthMessage(t *testing.T) {
	msg := BuildSystemHealthMessage(SystemHealthEvent{Severity: "critical", Message: "disk nearly full"})
	if msg != "[CRITICAL] disk nearly full" {
		t.Errorf("got %q", msg)
	}
}
