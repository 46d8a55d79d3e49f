package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/google/uuid"

	"github.com/technosupport/addaxai-connect/internal/data"
	"github.com/technosupport/addaxai-connect/internal/queuebus"
	"github.com/technosupport/addaxai-connect/internal/render"
)

const serviceName = "addaxai-connect-reprocess-worker"

// reprocessMessage asks the worker to reapply a project's (possibly
// changed) included_species filter against an image's already-computed
// classification probabilities, without touching the detector or
// re-running the classification model.
type reprocessMessage struct {
	ImageUUID string `json:"image_uuid"`
	CameraID  string `json:"camera_id"`
}

type worker struct {
	detections      data.DetectionModel
	classifications data.ClassificationModel
	cameras         data.CameraModel
	projects        data.ProjectModel
}

func (w *worker) handle(ctx context.Context, payload []byte) error {
	var msg reprocessMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("reprocess: decode message: %w", err)
	}

	imageID, err := uuid.Parse(msg.ImageUUID)
	if err != nil {
		return fmt.Errorf("reprocess: bad image uuid: %w", err)
	}
	cameraID, err := uuid.Parse(msg.CameraID)
	if err != nil {
		return fmt.Errorf("reprocess: bad camera uuid: %w", err)
	}

	camera, err := w.cameras.GetByID(ctx, cameraID)
	if err != nil {
		return fmt.Errorf("reprocess: load camera: %w", err)
	}
	if camera.ProjectID == nil {
		return nil
	}
	project, err := w.projects.GetByID(ctx, *camera.ProjectID)
	if err != nil {
		return fmt.Errorf("reprocess: load project: %w", err)
	}

	detections, err := w.detections.ListByImage(ctx, imageID)
	if err != nil {
		return fmt.Errorf("reprocess: list detections: %w", err)
	}

	for _, det := range detections {
		if det.Category != data.CategoryAnimal {
			continue
		}
		existing, err := w.classifications.ListByDetection(ctx, det.ID)
		if err != nil {
			return fmt.Errorf("reprocess: load existing classification: %w", err)
		}
		if len(existing) == 0 || len(existing[0].RawPredictions) == 0 {
			continue
		}

		species, confidence := render.FilterAndRenormalize(existing[0].RawPredictions, project.IncludedSpecies)
		if _, err := w.classifications.ReplaceTop1(ctx, det.ID, species, confidence, existing[0].RawPredictions); err != nil {
			return fmt.Errorf("reprocess: store reclassification: %w", err)
		}
	}

	return nil
}

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

	w := &worker{
		detections:      data.DetectionModel{DB: db},
		classifications: data.ClassificationModel{DB: db},
		cameras:         data.CameraModel{DB: db},
		projects:        data.ProjectModel{DB: db},
	}

	cfg := queuebus.ConsumerConfig{MaxInflight: 4}
	go func() {
		log.Printf("%s consuming %s", serviceName, queuebus.QueueClassificationReprocess)
		if err := bus.Consume(ctx, queuebus.QueueClassificationReprocess, cfg, w.handle); err != nil && ctx.Err() == nil {
			log.Fatalf("consume error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("shutdown signal received")
	cancel()
}
