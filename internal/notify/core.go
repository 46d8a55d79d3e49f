package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/technosupport/addaxai-connect/internal/authz"
	"github.com/technosupport/addaxai-connect/internal/data"
	"github.com/technosupport/addaxai-connect/internal/queuebus"
)

// Core consumes notification-events, evaluates the rule engine against
// every active preference row for the event's project, and fans surviving
// (user, channel) pairs out to the per-channel queues.
type Core struct {
	Prefs    data.NotificationPreferenceModel
	Projects data.ProjectModel
	Logs     data.NotificationLogModel
	Authz    *authz.Checker
	Bus      *queuebus.Bus
	Links    LinkBuilder
}

// rawEvent is the minimal envelope every notification-events message shares;
// event-specific fields are re-decoded by HandleSpeciesDetection /
// HandleSystemHealth.
type rawEvent struct {
	EventType string `json:"event_type"`
	ProjectID string `json:"project_id"`
}

func (c Core) Handle(ctx context.Context, payload []byte) error {
	var env rawEvent
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("notify: decode event envelope: %w", err)
	}

	switch env.EventType {
	case "species_detection":
		return c.handleSpeciesDetection(ctx, payload)
	case "system_health":
		return c.handleSystemHealth(ctx, payload)
	case "low_battery":
		log.Printf("notify: ignoring legacy low_battery event, handled by the scheduled digest")
		return nil
	default:
		log.Printf("notify: unknown event_type %q, dropping", env.EventType)
		return nil
	}
}

type speciesDetectionWire struct {
	EventType            string   `json:"event_type"`
	ProjectID            string   `json:"project_id"`
	ImageUUID            string   `json:"image_uuid"`
	CameraID             string   `json:"camera_id"`
	CameraName           string   `json:"camera_name"`
	CameraLocation       *latLon  `json:"camera_location"`
	Species              string   `json:"species"`
	Confidence           *float64 `json:"confidence"`
	DetectionConfidence  *float64 `json:"detection_confidence"`
	DetectionCount       int      `json:"detection_count"`
	AnnotatedMinioPath   string   `json:"annotated_minio_path"`
	Timestamp            string   `json:"timestamp"`
}

type latLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c Core) handleSpeciesDetection(ctx context.Context, payload []byte) error {
	var wire speciesDetectionWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return fmt.Errorf("notify: decode species_detection: %w", err)
	}

	projectID, err := uuid.Parse(wire.ProjectID)
	if err != nil {
		return fmt.Errorf("notify: bad project id: %w", err)
	}

	project, err := c.Projects.GetByID(ctx, projectID)
	if err != nil {
		return fmt.Errorf("notify: load project: %w", err)
	}

	event := SpeciesDetectionEvent{
		ProjectID:           wire.ProjectID,
		ImageID:             wire.ImageUUID,
		CameraID:            wire.CameraID,
		CameraName:          wire.CameraName,
		Species:             wire.Species,
		Confidence:          wire.Confidence,
		DetectionConfidence: wire.DetectionConfidence,
		DetectionCount:      wire.DetectionCount,
		AnnotatedPath:       wire.AnnotatedMinioPath,
		Timestamp:           wire.Timestamp,
	}
	if wire.CameraLocation != nil {
		event.CameraLatitude = &wire.CameraLocation.Lat
		event.CameraLongitude = &wire.CameraLocation.Lon
	}

	prefs, err := c.Prefs.ListActiveForProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("notify: list preferences: %w", err)
	}

	for _, pref := range prefs {
		if !MatchSpeciesDetection(event, pref, project.DetectionThreshold) {
			continue
		}
		message := BuildSpeciesDetectionMessage(event, c.Links)
		for _, channel := range pref.Channels.SpeciesDetection.Channels {
			if err := c.dispatch(ctx, pref, channel, "species_detection", message, event.AnnotatedPath); err != nil {
				log.Printf("notify: dispatch species_detection to user %s via %s: %v", pref.UserID, channel, err)
			}
		}
	}
	return nil
}

type systemHealthWire struct {
	EventType string `json:"event_type"`
	ProjectID string `json:"project_id"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
}

func (c Core) handleSystemHealth(ctx context.Context, payload []byte) error {
	var wire systemHealthWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return fmt.Errorf("notify: decode system_health: %w", err)
	}
	projectID, err := uuid.Parse(wire.ProjectID)
	if err != nil {
		return fmt.Errorf("notify: bad project id: %w", err)
	}

	event := SystemHealthEvent{ProjectID: wire.ProjectID, Severity: wire.Severity, Message: wire.Message}

	prefs, err := c.Prefs.ListActiveForProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("notify: list preferences: %w", err)
	}

	for _, pref := range prefs {
		isAdmin, err := c.Authz.CanAdmin(ctx, pref.UserID, projectID)
		if err != nil {
			log.Printf("notify: check admin grant for user %s: %v", pref.UserID, err)
			continue
		}
		if !MatchSystemHealth(event, pref, isAdmin) {
			continue
		}
		message := BuildSystemHealthMessage(event)
		for _, channel := range pref.Channels.SystemHealth.Channels {
			if err := c.dispatch(ctx, pref, channel, "system_health", message, ""); err != nil {
				log.Printf("notify: dispatch system_health to user %s via %s: %v", pref.UserID, channel, err)
			}
		}
	}
	return nil
}

// dispatch inserts the NotificationLog row and enqueues the channel-specific
// message. Channel workers flip the log to sent/failed once delivery is
// attempted; this function's job ends at "queued".
func (c Core) dispatch(ctx context.Context, pref data.ProjectNotificationPreference, channel data.NotificationChannel, kind, message, attachment string) error {
	triggerPayload, _ := json.Marshal(map[string]string{"kind": kind})
	logRow := &data.NotificationLog{
		UserID:           pref.UserID,
		NotificationType: kind,
		Channel:          channel,
		RenderedMessage:  message,
		TriggerPayload:   triggerPayload,
	}
	if err := c.Logs.Create(ctx, logRow); err != nil {
		return fmt.Errorf("create notification log: %w", err)
	}

	switch channel {
	case data.ChannelTelegram:
		if pref.TelegramChatID == "" {
			return fmt.Errorf("user has no linked telegram chat")
		}
		return c.Bus.Publish(ctx, queuebus.QueueNotificationTelegram, map[string]any{
			"notification_log_id": logRow.ID.String(),
			"chat_id":              pref.TelegramChatID,
			"message_text":         message,
			"attachment_url":       nullableAttachment(attachment),
		})
	case data.ChannelSignal:
		if pref.SignalPhone == "" {
			return fmt.Errorf("user has no signal phone configured")
		}
		return c.Bus.Publish(ctx, queuebus.QueueNotificationSignal, map[string]any{
			"notification_log_id": logRow.ID.String(),
			"recipient_phone":     pref.SignalPhone,
			"message_text":        message,
			"attachment_url":      nullableAttachment(attachment),
		})
	case data.ChannelEmail:
		return c.Bus.Publish(ctx, queuebus.QueueNotificationEmail, map[string]any{
			"notification_log_id": logRow.ID.String(),
			"to_email":            "", // resolved from the user's email by the email worker
			"subject":             kind,
			"body_text":           message,
			"body_html":           nil,
		})
	default:
		return fmt.Errorf("unknown channel %q", channel)
	}
}

func nullableAttachment(s string) any {
	if s == "" {
		return nil
	}
	return s
}
