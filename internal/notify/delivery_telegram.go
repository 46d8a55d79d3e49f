package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v3"

	"github.com/technosupport/addaxai-connect/internal/data"
)

type telegramWire struct {
	NotificationLogID string `json:"notification_log_id"`
	ChatID             string `json:"chat_id"`
	MessageText        string `json:"message_text"`
	AttachmentURL      string `json:"attachment_url"`
}

// TelegramSender consumes notification-telegram and delivers via the Bot
// API, flipping the originating NotificationLog row to sent/failed.
type TelegramSender struct {
	Bot  *tele.Bot
	Logs data.NotificationLogModel
}

func (s TelegramSender) Handle(ctx context.Context, payload []byte) error {
	var wire telegramWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return fmt.Errorf("telegram sender: decode payload: %w", err)
	}

	logID, err := uuid.Parse(wire.NotificationLogID)
	if err != nil {
		return fmt.Errorf("telegram sender: bad log id: %w", err)
	}

	recipient := &tele.Chat{ID: mustChatID(wire.ChatID)}
	_, sendErr := s.Bot.Send(recipient, wire.MessageText)
	if sendErr != nil {
		if err := s.Logs.MarkFailed(ctx, logID, sendErr.Error()); err != nil {
			return fmt.Errorf("telegram sender: mark failed: %w", err)
		}
		return fmt.Errorf("telegram sender: send: %w", sendErr)
	}

	return s.Logs.MarkSent(ctx, logID)
}

func mustChatID(s string) int64 {
	var id int64
	fmt.Sscanf(s, "%d", &id)
	return id
}
