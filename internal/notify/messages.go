package notify

import (
	"fmt"
	"strings"
	"time"
)

// LinkBuilder prefixes image/project ids with https://{Domain} to build the
// "View:" link every channel message ends with.
type LinkBuilder struct {
	Domain string
}

func (l LinkBuilder) ImageLink(imageID string) string {
	return fmt.Sprintf("https://%s/images/%s", l.Domain, imageID)
}

func (l LinkBuilder) CameraViewLink(projectID string) string {
	return fmt.Sprintf("https://%s/projects/%s/cameras", l.Domain, projectID)
}

// BuildSpeciesDetectionMessage renders the species-detection notification
// text shared across channels: a "{Species} observed!" headline, the camera
// name, Time/Date lines when the timestamp parses as RFC 3339, and the image
// link.
func BuildSpeciesDetectionMessage(event SpeciesDetectionEvent, links LinkBuilder) string {
	speciesTitle := titleCase(event.Species)
	occurredAt, err := time.Parse(time.RFC3339, event.Timestamp)
	var whenLine string
	if err == nil {
		whenLine = fmt.Sprintf("Time: %s\nDate: %s", occurredAt.Format("15:04:05"), occurredAt.Format("2006-01-02"))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s observed!\n\n", speciesTitle)
	fmt.Fprintf(&b, "Camera: %s\n", event.CameraName)
	if whenLine != "" {
		b.WriteString(whenLine + "\n")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "View: %s", links.ImageLink(event.ImageID))
	return b.String()
}

func titleCase(s string) string {
	words := strings.Split(strings.ReplaceAll(s, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// BuildBatteryDigestMessage renders the daily battery-digest text for one
// user given the number of low-battery cameras in their project.
func BuildBatteryDigestMessage(projectName string, lowBatteryCount, threshold int, links LinkBuilder, projectID string) string {
	return fmt.Sprintf(
		"%d camera(s) in %s have battery at or below %d%%.\n\nView: %s",
		lowBatteryCount, projectName, threshold, links.CameraViewLink(projectID),
	)
}

// BuildSystemHealthMessage renders a system_health alert message.
func BuildSystemHealthMessage(event SystemHealthEvent) string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(event.Severity), event.Message)
}
