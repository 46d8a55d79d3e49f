package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	mail "github.com/wneessen/go-mail"

	"github.com/technosupport/addaxai-connect/internal/data"
)

type emailWire struct {
	NotificationLogID string `json:"notification_log_id"`
	ToEmail           string `json:"to_email"`
	Subject           string `json:"subject"`
	BodyText          string `json:"body_text"`
	BodyHTML          string `json:"body_html"`
}

// SMTPConfig configures the outbound mail relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailSender consumes notification-email and delivers over SMTP.
type EmailSender struct {
	Config SMTPConfig
	Logs   data.NotificationLogModel
}

func (s EmailSender) Handle(ctx context.Context, payload []byte) error {
	var wire emailWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return fmt.Errorf("email sender: decode payload: %w", err)
	}

	logID, err := uuid.Parse(wire.NotificationLogID)
	if err != nil {
		return fmt.Errorf("email sender: bad log id: %w", err)
	}

	if wire.ToEmail == "" {
		err := s.Logs.DB.QueryRowContext(ctx, `
			SELECT u.email FROM notification_logs l
			JOIN users u ON u.id = l.user_id
			WHERE l.id = $1`, logID).Scan(&wire.ToEmail)
		if err != nil {
			return fmt.Errorf("email sender: resolve recipient: %w", err)
		}
	}

	if sendErr := s.send(wire); sendErr != nil {
		if err := s.Logs.MarkFailed(ctx, logID, sendErr.Error()); err != nil {
			return fmt.Errorf("email sender: mark failed: %w", err)
		}
		return fmt.Errorf("email sender: send: %w", sendErr)
	}

	return s.Logs.MarkSent(ctx, logID)
}

func (s EmailSender) send(wire emailWire) error {
	msg := mail.NewMsg()
	if err := msg.From(s.Config.From); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(wire.ToEmail); err != nil {
		return fmt.Errorf("set to: %w", err)
	}
	msg.Subject(wire.Subject)
	msg.SetBodyString(mail.TypeTextPlain, wire.BodyText)
	if wire.BodyHTML != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, wire.BodyHTML)
	}

	client, err := mail.NewClient(s.Config.Host,
		mail.WithPort(s.Config.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.Config.Username),
		mail.WithPassword(s.Config.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("build smtp client: %w", err)
	}

	return client.DialAndSend(msg)
}
