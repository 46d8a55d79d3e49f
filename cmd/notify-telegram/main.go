package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	tele "gopkg.in/telebot.v3"

	"github.com/technosupport/addaxai-connect/internal/data"
	"github.com/technosupport/addaxai-connect/internal/notify"
	"github.com/technosupport/addaxai-connect/internal/queuebus"
)

const serviceName = "addaxai-connect-notify-telegram"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbHost, dbUser, dbPass, dbName := os.Getenv("DB_HOST"), os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"), os.Getenv("DB_NAME")
	connStr := fmt.Sprintf("postgres://%s:%s@%s:5432/%s?sslmode=disable", dbUser, dbPass, dbHost, dbName)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}

	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}
	bus, err := queuebus.Connect(ctx, natsURL)
	if err != nil {
		log.Fatalf("queuebus connect error: %v", err)
	}
	defer bus.Close()

	botToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	if botToken == "" {
		log.Fatalf("TELEGRAM_BOT_TOKEN is required")
	}

	bot, err := tele.NewBot(tele.Settings{Token: botToken, Poller: &tele.LongPoller{Timeout: 10 * time.Second}})
	if err != nil {
		log.Fatalf("telegram bot init error: %v", err)
	}

	logs := data.NotificationLogModel{DB: db}
	tokens := data.TelegramLinkingTokenModel{DB: db}
	prefs := data.NotificationPreferenceModel{DB: db}

	sender := notify.TelegramSender{Bot: bot, Logs: logs}
	linker, err := notify.NewTelegramLinker(botToken, tokens, prefs)
	if err != nil {
		log.Fatalf("telegram linker init error: %v", err)
	}

	go func() {
		log.Println("telegram linker bot polling for /start deep links")
		linker.Run(ctx)
	}()

	cfg := queuebus.ConsumerConfig{MaxInflight: 4}
	go func() {
		log.Printf("%s consuming %s", serviceName, queuebus.QueueNotificationTelegram)
		if err := bus.Consume(ctx, queuebus.QueueNotificationTelegram, cfg, sender.Handle); err != nil && ctx.Err() == nil {
			log.Fatalf("consume error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("shutdown signal received")
	cancel()
}
