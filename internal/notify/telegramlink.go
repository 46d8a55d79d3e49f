package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/technosupport/addaxai-connect/internal/data"
)

// TelegramLinker runs the long-polling bot that turns a "/start <token>"
// deep link into a stored chat id: the one piece of this system a user
// triggers directly from their phone instead of the web app.
type TelegramLinker struct {
	Tokens data.TelegramLinkingTokenModel
	Prefs  data.NotificationPreferenceModel

	bot *tele.Bot
}

// NewTelegramLinker constructs the bot client; it does not start polling
// until Run is called.
func NewTelegramLinker(botToken string, tokens data.TelegramLinkingTokenModel, prefs data.NotificationPreferenceModel) (*TelegramLinker, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:  botToken,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("notify: create telegram bot: %w", err)
	}
	return &TelegramLinker{Tokens: tokens, Prefs: prefs, bot: bot}, nil
}

// Run installs the /start handler and blocks polling for updates until ctx
// is cancelled.
func (l *TelegramLinker) Run(ctx context.Context) {
	l.bot.Handle("/start", l.handleStart)

	go func() {
		<-ctx.Done()
		l.bot.Stop()
	}()

	l.bot.Start()
}

func (l *TelegramLinker) handleStart(c tele.Context) error {
	args := strings.TrimSpace(c.Message().Payload)
	if args == "" {
		return c.Send("Send the link code shown in the app: /start <code>")
	}

	ctx := context.Background()
	token, err := l.Tokens.GetByToken(ctx, args)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			return c.Send("That link code isn't recognized. Generate a new one from the app.")
		}
		log.Printf("notify: telegram link: lookup token: %v", err)
		return c.Send("Something went wrong. Try again in a moment.")
	}

	if token.UsedAt != nil {
		return c.Send("That link code has already been used.")
	}
	if time.Now().UTC().After(token.ExpiresAt) {
		return c.Send("That link code has expired. Generate a new one from the app.")
	}

	chatID := fmt.Sprintf("%d", c.Chat().ID)
	if err := l.Prefs.SetTelegramChatID(ctx, token.UserID, token.ProjectID, chatID); err != nil {
		log.Printf("notify: telegram link: set chat id: %v", err)
		return c.Send("Something went wrong linking your account. Try again in a moment.")
	}
	if err := l.Tokens.MarkUsed(ctx, token.ID); err != nil {
		log.Printf("notify: telegram link: mark token used: %v", err)
	}

	return c.Send("Telegram notifications are now linked to your project. You're all set.")
}
