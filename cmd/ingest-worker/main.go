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

	"github.com/technosupport/addaxai-connect/internal/data"
	"github.com/technosupport/addaxai-connect/internal/ingest"
	"github.com/technosupport/addaxai-connect/internal/objectstore"
	"github.com/technosupport/addaxai-connect/internal/queuebus"
)

const serviceName = "addaxai-connect-ingest-worker"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbHost := os.Getenv("DB_HOST")
	dbUser := os.Getenv("DB_USER")
	dbPass := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")

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

	useSSL, _ := strconv.ParseBool(os.Getenv("MINIO_USE_SSL"))
	store, err := objectstore.New(objectstore.Config{
		Endpoint:  os.Getenv("MINIO_ENDPOINT"),
		AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		UseSSL:    useSSL,
	})
	if err != nil {
		log.Fatalf("objectstore init error: %v", err)
	}

	dropRoot := os.Getenv("INGEST_DROP_ROOT")
	if dropRoot == "" {
		dropRoot = "/var/lib/addaxai-connect/drop"
	}
	if err := os.MkdirAll(dropRoot, 0o755); err != nil {
		log.Fatalf("drop root %s: %v", dropRoot, err)
	}

	pipeline := ingest.Pipeline{
		DropRoot: dropRoot,
		Cameras:  data.CameraModel{DB: db},
		Images:   data.ImageModel{DB: db},
		Store:    store,
		Bus:      bus,
	}
	watcher := &ingest.Watcher{Pipeline: pipeline}

	done := make(chan error, 1)
	go func() {
		log.Printf("%s watching %s", serviceName, dropRoot)
		done <- watcher.Run(ctx)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutdown signal received")
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			log.Fatalf("ingest watcher exited: %v", err)
		}
	}
}
