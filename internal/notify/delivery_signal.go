package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/addaxai-connect/internal/data"
)

type signalWire struct {
	NotificationLogID string `json:"notification_log_id"`
	RecipientPhone    string `json:"recipient_phone"`
	MessageText       string `json:"message_text"`
	AttachmentURL     string `json:"attachment_url"`
}

type signalSendRequest struct {
	Message    string   `json:"message"`
	Number     string   `json:"number"`
	Recipients []string `json:"recipients"`
}

// SignalSender consumes notification-signal and delivers via a
// signal-cli-rest-api instance's /v2/send endpoint.
type SignalSender struct {
	APIURL        string
	SenderNumber  string
	HTTPClient    *http.Client
	Logs          data.NotificationLogModel
}

func NewSignalSender(apiURL, senderNumber string, logs data.NotificationLogModel) SignalSender {
	return SignalSender{
		APIURL:       apiURL,
		SenderNumber: senderNumber,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		Logs:         logs,
	}
}

func (s SignalSender) Handle(ctx context.Context, payload []byte) error {
	var wire signalWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return fmt.Errorf("signal sender: decode payload: %w", err)
	}

	logID, err := uuid.Parse(wire.NotificationLogID)
	if err != nil {
		return fmt.Errorf("signal sender: bad log id: %w", err)
	}

	if sendErr := s.send(ctx, wire); sendErr != nil {
		if err := s.Logs.MarkFailed(ctx, logID, sendErr.Error()); err != nil {
			return fmt.Errorf("signal sender: mark failed: %w", err)
		}
		return fmt.Errorf("signal sender: send: %w", sendErr)
	}

	return s.Logs.MarkSent(ctx, logID)
}

func (s SignalSender) send(ctx context.Context, wire signalWire) error {
	body, err := json.Marshal(signalSendRequest{
		Message:    wire.MessageText,
		Number:     s.SenderNumber,
		Recipients: []string{wire.RecipientPhone},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.APIURL+"/v2/send", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("signal-cli-rest-api returned status %d", resp.StatusCode)
	}
	return nil
}
