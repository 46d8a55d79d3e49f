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
	"time"

	_ "github.com/lib/pq"

	"github.com/google/uuid"

	"github.com/technosupport/addaxai-connect/internal/data"
	"github.com/technosupport/addaxai-connect/internal/inference"
	"github.com/technosupport/addaxai-connect/internal/objectstore"
	"github.com/technosupport/addaxai-connect/internal/queuebus"
	"github.com/technosupport/addaxai-connect/internal/render"
)

const serviceName = "addaxai-connect-classify-worker"

const classifierInputSize = 224

type detectionCompleteMessage struct {
	ImageUUID     string   `json:"image_uuid"`
	NumDetections int      `json:"num_detections"`
	DetectionIDs  []string `json:"detection_ids"`
}

type worker struct {
	images          data.ImageModel
	detections      data.DetectionModel
	classifications data.ClassificationModel
	cameras         data.CameraModel
	projects        data.ProjectModel
	store           *objectstore.Store
	bus             *queuebus.Bus
	classifier      *inference.Classifier
}

func (w *worker) handle(ctx context.Context, payload []byte) error {
	var msg detectionCompleteMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("classify: decode message: %w", err)
	}

	imageID, err := uuid.Parse(msg.ImageUUID)
	if err != nil {
		return fmt.Errorf("classify: bad image uuid: %w", err)
	}

	img, err := w.images.GetByID(ctx, imageID)
	if err != nil {
		return fmt.Errorf("classify: load image: %w", err)
	}

	if err := w.images.AdvanceStatus(ctx, imageID, data.ImageStatusProcessing, data.ImageStatusClassifying); err != nil {
		log.Printf("classify: advance status for image %s: %v", imageID, err)
	}

	detections, err := w.detections.ListByImage(ctx, imageID)
	if err != nil {
		return fmt.Errorf("classify: list detections: %w", err)
	}

	if len(detections) == 0 {
		if err := w.images.SetStatus(ctx, imageID, data.ImageStatusClassified); err != nil {
			return fmt.Errorf("classify: mark empty-detection image classified: %w", err)
		}
		return w.bus.Publish(ctx, queuebus.QueueClassificationComplete, map[string]any{
			"image_uuid":          msg.ImageUUID,
			"num_classifications": 0,
			"classification_ids":  []string{},
		})
	}

	camera, err := w.cameras.GetByID(ctx, img.CameraID)
	if err != nil {
		return fmt.Errorf("classify: load camera: %w", err)
	}

	var project *data.Project
	if camera.ProjectID != nil {
		project, err = w.projects.GetByID(ctx, *camera.ProjectID)
		if err != nil {
			return fmt.Errorf("classify: load project: %w", err)
		}
	}

	raw, err := w.store.Get(ctx, objectstore.BucketRawImages, img.StoragePath)
	if err != nil {
		return fmt.Errorf("classify: fetch raw image: %w", err)
	}
	decoded, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("classify: decode jpeg: %w", err)
	}

	var includedSpecies []string
	blurPeopleVehicles := false
	if project != nil {
		includedSpecies = project.IncludedSpecies
		blurPeopleVehicles = project.BlurPeopleVehicles
	}

	// bestBySpecies tracks, per unique species, the highest-confidence
	// classification and the confidence of the detection that produced it,
	// so the notification fan-out emits exactly one event per species.
	type speciesWinner struct {
		confidence          float64
		detectionConfidence float64
	}
	bestBySpecies := make(map[string]speciesWinner)

	var annotations []render.Annotation
	var blurRegions []render.BlurRegion
	var classificationIDs []string

	for _, det := range detections {
		bbox := render.NormalizedBBox{X: det.NormalizedBBox.X, Y: det.NormalizedBBox.Y, W: det.NormalizedBBox.W, H: det.NormalizedBBox.H}
		pixelRect := image.Rect(det.PixelX, det.PixelY, det.PixelX+det.PixelW, det.PixelY+det.PixelH)

		if det.Category != data.CategoryAnimal {
			if blurPeopleVehicles {
				blurRegions = append(blurRegions, render.BlurRegion{Box: pixelRect})
			}
			categoryLine, _ := render.FormatLabel(string(det.Category), det.Confidence, "", 0)
			annotations = append(annotations, render.Annotation{Box: pixelRect, CategoryLine: categoryLine})
			continue
		}

		crop := render.CropAndResize(decoded, bbox, classifierInputSize)
		result, err := w.classifier.Classify(crop)
		if err != nil {
			return fmt.Errorf("classify: run model: %w", err)
		}

		species, confidence := render.FilterAndRenormalize(result.Probabilities, includedSpecies)
		classificationID, err := w.classifications.ReplaceTop1(ctx, det.ID, species, confidence, result.Probabilities)
		if err != nil {
			return fmt.Errorf("classify: store classification: %w", err)
		}
		classificationIDs = append(classificationIDs, classificationID.String())

		if winner, ok := bestBySpecies[species]; !ok || confidence > winner.confidence {
			bestBySpecies[species] = speciesWinner{confidence: confidence, detectionConfidence: det.Confidence}
		}

		categoryLine, speciesLine := render.FormatLabel(string(det.Category), det.Confidence, species, confidence)
		annotations = append(annotations, render.Annotation{Box: pixelRect, CategoryLine: categoryLine, SpeciesLine: speciesLine})
	}

	annotated := render.Render(decoded, annotations, blurRegions)
	annotatedBytes := render.Encode(annotated)
	annotatedKey := objectstore.AnnotatedPrefix + img.StoragePath
	if err := w.store.Put(ctx, objectstore.BucketThumbnails, annotatedKey, bytes.NewReader(annotatedBytes), int64(len(annotatedBytes)), "image/jpeg"); err != nil {
		return fmt.Errorf("classify: upload annotated frame: %w", err)
	}

	if err := w.images.SetAnnotatedPath(ctx, imageID, annotatedKey); err != nil {
		return fmt.Errorf("classify: set annotated path: %w", err)
	}
	if err := w.images.SetStatus(ctx, imageID, data.ImageStatusClassified); err != nil {
		return fmt.Errorf("classify: mark image classified: %w", err)
	}
	if err := w.cameras.TouchLastImage(ctx, img.CameraID, time.Now().UTC()); err != nil {
		log.Printf("classify: touch last image for camera %s: %v", img.CameraID, err)
	}

	if camera.ProjectID != nil {
		for species, winner := range bestBySpecies {
			event := map[string]any{
				"event_type":           "species_detection",
				"project_id":           camera.ProjectID.String(),
				"image_uuid":           msg.ImageUUID,
				"camera_id":            img.CameraID.String(),
				"camera_name":          camera.Name,
				"species":              species,
				"confidence":           winner.confidence,
				"detection_confidence": winner.detectionConfidence,
				"detection_count":      len(detections),
				"annotated_minio_path": annotatedKey,
				"timestamp":            img.CapturedAt.UTC().Format(time.RFC3339),
			}
			if camera.Latitude != nil && camera.Longitude != nil {
				event["camera_location"] = map[string]float64{"lat": *camera.Latitude, "lon": *camera.Longitude}
			}
			if err := w.bus.Publish(ctx, queuebus.QueueNotificationEvents, event); err != nil {
				log.Printf("classify: publish species_detection event for %s: %v", species, err)
			}
		}
	}

	return w.bus.Publish(ctx, queuebus.QueueClassificationComplete, map[string]any{
		"image_uuid":          msg.ImageUUID,
		"num_classifications": len(classificationIDs),
		"classification_ids":  classificationIDs,
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
	classifier, err := inference.NewClassifier(modelDir, os.Getenv("ONNXRUNTIME_SHARED_LIB"), nil)
	if err != nil {
		log.Fatalf("classifier init error: %v", err)
	}
	defer classifier.Close()

	w := &worker{
		images:          data.ImageModel{DB: db},
		detections:      data.DetectionModel{DB: db},
		classifications: data.ClassificationModel{DB: db},
		cameras:         data.CameraModel{DB: db},
		projects:        data.ProjectModel{DB: db},
		store:           store,
		bus:             bus,
		classifier:      classifier,
	}

	cfg := queuebus.ConsumerConfig{MaxInflight: 4}
	go func() {
		log.Printf("%s consuming %s", serviceName, queuebus.QueueDetectionComplete)
		if err := bus.Consume(ctx, queuebus.QueueDetectionComplete, cfg, w.handle); err != nil && ctx.Err() == nil {
			log.Fatalf("consume error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("shutdown signal received")
	cancel()
}
