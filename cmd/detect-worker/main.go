package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/google/uuid"

	"github.com/technosupport/addaxai-connect/internal/data"
	"github.com/technosupport/addaxai-connect/internal/inference"
	"github.com/technosupport/addaxai-connect/internal/objectstore"
	"github.com/technosupport/addaxai-connect/internal/queuebus"
)

const serviceName = "addaxai-connect-detect-worker"

type imageIngestedMessage struct {
	ImageUUID   string `json:"image_uuid"`
	StoragePath string `json:"storage_path"`
	CameraID    string `json:"camera_id"`
}

type worker struct {
	images     data.ImageModel
	detections data.DetectionModel
	store      *objectstore.Store
	bus        *queuebus.Bus
	detector   *inference.Detector
}

func (w *worker) handle(ctx context.Context, payload []byte) error {
	var msg imageIngestedMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("detect: decode message: %w", err)
	}

	imageID, err := uuid.Parse(msg.ImageUUID)
	if err != nil {
		return fmt.Errorf("detect: bad image uuid: %w", err)
	}

	if err := w.images.AdvanceStatus(ctx, imageID, data.ImageStatusPending, data.ImageStatusProcessing); err != nil {
		log.Printf("detect: advance status for image %s: %v", imageID, err)
	}

	raw, err := w.store.Get(ctx, objectstore.BucketRawImages, msg.StoragePath)
	if err != nil {
		return fmt.Errorf("detect: fetch raw image: %w", err)
	}

	decoded, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("detect: decode jpeg: %w", err)
	}
	bounds := decoded.Bounds()

	raws, err := w.detector.Detect(raw)
	if err != nil {
		return fmt.Errorf("detect: run model: %w", err)
	}

	detectionIDs := make([]string, 0, len(raws))
	for _, rd := range raws {
		rect := image.Rectangle{
			Min: image.Point{X: int(rd.X * float64(bounds.Dx())), Y: int(rd.Y * float64(bounds.Dy()))},
			Max: image.Point{X: int((rd.X + rd.W) * float64(bounds.Dx())), Y: int((rd.Y + rd.H) * float64(bounds.Dy()))},
		}
		det := &data.Detection{
			ImageID:        imageID,
			Category:       data.DetectionCategory(rd.Category),
			PixelX:         rect.Min.X,
			PixelY:         rect.Min.Y,
			PixelW:         rect.Dx(),
			PixelH:         rect.Dy(),
			NormalizedBBox: data.BBox{X: rd.X, Y: rd.Y, W: rd.W, H: rd.H},
			Confidence:     rd.Confidence,
		}
		if err := w.detections.Create(ctx, det); err != nil {
			return fmt.Errorf("detect: store detection: %w", err)
		}
		detectionIDs = append(detectionIDs, det.ID.String())
	}

	return w.bus.Publish(ctx, queuebus.QueueDetectionComplete, map[string]any{
		"image_uuid":     msg.ImageUUID,
		"num_detections": len(detectionIDs),
		"detection_ids":  detectionIDs,
	})
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

	modelDir := os.Getenv("INFERENCE_MODEL_DIR")
	if modelDir == "" {
		modelDir = "/var/lib/addaxai-connect/models"
	}
	detector, err := inference.NewDetector(modelDir, os.Getenv("ONNXRUNTIME_SHARED_LIB"))
	if err != nil {
		log.Fatalf("detector init error: %v", err)
	}
	defer detector.Close()

	w := &worker{
		images:     data.ImageModel{DB: db},
		detections: data.DetectionModel{DB: db},
		store:      store,
		bus:        bus,
		detector:   detector,
	}

	cfg := queuebus.ConsumerConfig{MaxInflight: 4}
	go func() {
		log.Printf("%s consuming %s", serviceName, queuebus.QueueImageIngested)
		if err := bus.Consume(ctx, queuebus.QueueImageIngested, cfg, w.handle); err != nil && ctx.Err() == nil {
			log.Fatalf("consume error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("shutdown signal received")
	cancel()
}
