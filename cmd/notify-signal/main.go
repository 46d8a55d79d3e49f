package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/technosupport/addaxai-connect/internal/data"
	"github.com/technosupport/addaxai-connect/internal/notify"
	"github.com/technosupport/addaxai-connect/internal/queuebus"
)

const serviceName = "addaxai-connect-notify-signal"

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

	signalAPIURL := os.Getenv("SIGNAL_API_URL")
	signalSender := os.Getenv("SIGNAL_SENDER_NUMBER")
	if signalAPIURL == "" || signalSender == "" {
		log.Fatalf("SIGNAL_API_URL and SIGNAL_SENDER_NUMBER are required")
	}

	logs := data.NotificationLogModel{DB: db}
	sender := notify.NewSignalSender(signalAPIURL, signalSender, logs)

	cfg := queuebus.ConsumerConfig{MaxInflight: 4}
	go func() {
		log.Printf("%s consuming %s", serviceName, queuebus.QueueNotificationSignal)
		if err := bus.Consume(ctx, queuebus.QueueNotificationSignal, cfg, sender.Handle); err != nil && ctx.Err() == nil {
			log.Fatalf("consume error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("shutdown signal received")
	cancel()
}
