package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/technosupport/addaxai-connect/internal/authz"
	"github.com/technosupport/addaxai-connect/internal/data"
	"github.com/technosupport/addaxai-connect/internal/notify"
	"github.com/technosupport/addaxai-connect/internal/queuebus"
)

const serviceName = "addaxai-connect-notify-core"

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

	domain := os.Getenv("PUBLIC_DOMAIN")
	if domain == "" {
		domain = "localhost:8080"
	}
	links := notify.LinkBuilder{Domain: domain}

	prefs := data.NotificationPreferenceModel{DB: db}
	projects := data.ProjectModel{DB: db}
	logs := data.NotificationLogModel{DB: db}
	cameras := data.CameraModel{DB: db}
	stats := data.ReportStatsModel{DB: db}
	memberships := data.MembershipModel{DB: db}
	users := data.UserModel{DB: db}
	checker := authz.NewChecker(memberships, users)

	core := notify.Core{
		Prefs:    prefs,
		Projects: projects,
		Logs:     logs,
		Authz:    checker,
		Bus:      bus,
		Links:    links,
	}

	batteryHour, _ := strconv.Atoi(os.Getenv("BATTERY_DIGEST_HOUR_UTC"))
	batteryDigest := notify.NewBatteryDigestScheduler(
		notify.BatteryDigestSchedulerConfig{RunAtHourUTC: batteryHour},
		prefs, cameras, projects, logs, bus, links,
	)
	batteryDigest.Start()
	defer batteryDigest.Stop()

	reportHour, _ := strconv.Atoi(os.Getenv("REPORT_SCHEDULER_HOUR_UTC"))
	reportScheduler := notify.NewReportScheduler(
		notify.ReportSchedulerConfig{RunAtHourUTC: reportHour},
		prefs, stats, projects, logs, bus, links,
	)
	reportScheduler.Start()
	defer reportScheduler.Stop()

	cfg := queuebus.ConsumerConfig{MaxInflight: 8}
	go func() {
		log.Printf("%s consuming %s", serviceName, queuebus.QueueNotificationEvents)
		if err := bus.Consume(ctx, queuebus.QueueNotificationEvents, cfg, core.Handle); err != nil && ctx.Err() == nil {
			log.Fatalf("consume error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("shutdown signal received")
	cancel()
}
