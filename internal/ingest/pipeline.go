package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/technosupport/addaxai-connect/internal/data"
	"github.com/technosupport/addaxai-connect/internal/objectstore"
	"github.com/technosupport/addaxai-connect/internal/queuebus"
)

const (
	maxImageBytes  = 10 * 1024 * 1024
	thumbnailWidth = 300
)

var jpegMagic = []byte{0xFF, 0xD8, 0xFF}

// Pipeline turns one drop-directory file into database rows, object-store
// blobs and a queue message, or quarantines it.
type Pipeline struct {
	DropRoot string
	Cameras  data.CameraModel
	Images   data.ImageModel
	Store    *objectstore.Store
	Bus      *queuebus.Bus
}

// ProcessFile dispatches by extension. Called once per debounced filesystem
// event; unexpected (non-validation) errors are returned so the caller can
// leave the source file in place for a retry on the next event, per the
// "unexpected exceptions do not delete the source file" rule.
func (p Pipeline) ProcessFile(ctx context.Context, path string) error {
	ext := filepath.Ext(path)
	switch ext {
	case ".jpg", ".jpeg", ".JPG", ".JPEG":
		return p.processImage(ctx, path)
	case ".txt", ".TXT":
		return p.processDailyReport(ctx, path)
	default:
		return nil
	}
}

func (p Pipeline) processImage(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ingest: read %s: %w", path, err)
	}

	if len(raw) > maxImageBytes || !bytes.HasPrefix(raw, jpegMagic) {
		return p.reject(path, "invalid_file", "not a valid JPEG or exceeds 10 MiB", nil)
	}

	exifData, err := ReadExif(path)
	if err != nil {
		return p.reject(path, "exif_unreadable", err.Error(), nil)
	}
	exifMeta := exifStringMap(exifData)

	profile, err := IdentifyProfile(exifData.Fields())
	if err != nil {
		return p.reject(path, "unsupported_camera", err.Error(), exifMeta)
	}

	identity, err := profile.Identify(exifData.Fields(), filepath.Base(path))
	if err != nil {
		return p.reject(path, "unresolved_camera_identity", err.Error(), exifMeta)
	}

	capturedAt, err := resolveCapturedAt(profile, exifData, path)
	if err != nil {
		return p.reject(path, "missing_capture_time", err.Error(), exifMeta)
	}

	lat, lon := resolveGPS(exifData)

	camera := &data.Camera{
		SerialNumber: identity.SerialNumber,
		Name:         identity.FriendlyName,
		Manufacturer: exifData.Make,
		Model:        exifData.Model,
		IMEI:         identity.SerialNumber,
		Latitude:     lat,
		Longitude:    lon,
		Status:       data.CameraStatusActive,
		LastSeenAt:   timePtr(time.Now().UTC()),
		LastImageAt:  timePtr(time.Now().UTC()),
	}
	if camera.Name == "" {
		camera.Name = identity.SerialNumber
	}
	if err := p.Cameras.Upsert(ctx, camera); err != nil {
		return fmt.Errorf("ingest: upsert camera: %w", err)
	}

	exists, err := p.Images.ExistsForCameraFilenameCapture(ctx, camera.ID, filepath.Base(path), capturedAt)
	if err != nil {
		return fmt.Errorf("ingest: duplicate check: %w", err)
	}
	if exists {
		return p.reject(path, "duplicate", "an image already exists for this camera/filename/capture-time", exifMeta)
	}

	imageID := uuid.New()
	identifier := camera.SerialNumber
	if identifier == "" {
		identifier = camera.Name
	}
	rawKey := objectstore.CameraObjectPath(identifier, capturedAt, imageID.String(), filepath.Base(path))

	if err := p.Store.Put(ctx, objectstore.BucketRawImages, rawKey, bytes.NewReader(raw), int64(len(raw)), "image/jpeg"); err != nil {
		return fmt.Errorf("ingest: upload raw: %w", err)
	}

	thumbKey, err := p.uploadThumbnail(ctx, raw, identifier, capturedAt, imageID.String(), filepath.Base(path))
	if err != nil {
		return fmt.Errorf("ingest: upload thumbnail: %w", err)
	}

	img := &data.Image{
		ID:            imageID,
		CameraID:      camera.ID,
		Filename:      filepath.Base(path),
		CapturedAt:    capturedAt,
		IngestedAt:    time.Now().UTC(),
		StoragePath:   rawKey,
		ThumbnailPath: thumbKey,
		Status:        data.ImageStatusPending,
		Metadata: data.ImageMetadata{
			EXIF:         exifMeta,
			GPSLatitude:  lat,
			GPSLongitude: lon,
			CameraMake:   exifData.Make,
			CameraModel:  exifData.Model,
			CameraSerial: identity.SerialNumber,
		},
	}
	if err := p.Images.Create(ctx, img); err != nil {
		return fmt.Errorf("ingest: create image row: %w", err)
	}

	if err := p.Bus.Publish(ctx, queuebus.QueueImageIngested, map[string]any{
		"image_uuid":   img.ID.String(),
		"storage_path": img.StoragePath,
		"camera_id":    camera.ID.String(),
	}); err != nil {
		return fmt.Errorf("ingest: publish image-ingested: %w", err)
	}

	return os.Remove(path)
}

func (p Pipeline) uploadThumbnail(ctx context.Context, raw []byte, identifier string, capturedAt time.Time, imageUUID, filename string) (string, error) {
	src, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return "", err
	}
	thumb := imaging.Resize(src, thumbnailWidth, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return "", err
	}

	key := objectstore.CameraObjectPath(identifier, capturedAt, imageUUID, filename)
	if err := p.Store.Put(ctx, objectstore.BucketThumbnails, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "image/jpeg"); err != nil {
		return "", err
	}
	return key, nil
}

func (p Pipeline) processDailyReport(ctx context.Context, path string) error {
	report, err := ParseDailyReport(path)
	if err != nil {
		return p.reject(path, "daily_report_malformed", err.Error(), nil)
	}

	camera, err := p.Cameras.GetBySerialOrName(ctx, report.CameraID)
	if err == data.ErrRecordNotFound {
		camera = &data.Camera{SerialNumber: report.CameraID, IMEI: report.CameraID, Name: report.CameraID}
	} else if err != nil {
		return fmt.Errorf("ingest: load camera for daily report: %w", err)
	}

	health := data.HealthSnapshot{
		BatteryPercent:     report.BatteryPercent,
		TemperatureCelsius: intToFloatPtr(report.TemperatureCelsius),
		SignalStrength:     report.SignalQuality,
		SDUsedPercent:      report.SDUsedPercent,
	}

	configPatch := map[string]any{
		"total_images_reported": report.TotalImages,
		"sent_images_reported":  report.SentImages,
	}

	reportedAt := time.Now().UTC()
	if report.ReportedAt != nil {
		reportedAt = *report.ReportedAt
	}

	if camera.ID == uuid.Nil {
		camera.Status = data.CameraStatusActive
		camera.LastHealth = health
		camera.LastDailyReportAt = &reportedAt
		camera.Latitude = report.Latitude
		camera.Longitude = report.Longitude
		if err := p.Cameras.Upsert(ctx, camera); err != nil {
			return fmt.Errorf("ingest: upsert camera from daily report: %w", err)
		}
	} else if err := p.Cameras.UpdateHealthSnapshot(ctx, camera.ID, health, reportedAt, configPatch); err != nil {
		return fmt.Errorf("ingest: update health snapshot: %w", err)
	}

	return os.Remove(path)
}

func (p Pipeline) reject(path, reason, details string, exifMeta map[string]string) error {
	if err := Quarantine(p.DropRoot, path, reason, details, exifMeta); err != nil {
		return err
	}
	return nil
}

func resolveCapturedAt(profile CameraProfile, e ImageExif, path string) (time.Time, error) {
	if e.DateTimeOriginal != nil {
		return e.DateTimeOriginal.UTC(), nil
	}
	if profile.RequiresDateTime {
		return time.Time{}, fmt.Errorf("profile %s requires DateTimeOriginal and none was found", profile.Name)
	}
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime().UTC(), nil
}

func resolveGPS(e ImageExif) (*float64, *float64) {
	if e.GPSLatitude == nil || e.GPSLongitude == nil {
		return nil, nil
	}
	if *e.GPSLatitude == 0 && *e.GPSLongitude == 0 {
		return nil, nil
	}
	return e.GPSLatitude, e.GPSLongitude
}

func exifStringMap(e ImageExif) map[string]string {
	out := map[string]string{}
	if e.Make != "" {
		out["Make"] = e.Make
	}
	if e.Model != "" {
		out["Model"] = e.Model
	}
	if e.SerialNumber != "" {
		out["SerialNumber"] = e.SerialNumber
	}
	if e.DateTimeOriginal != nil {
		out["DateTimeOriginal"] = e.DateTimeOriginal.Format(time.RFC3339)
	}
	return out
}

func timePtr(t time.Time) *time.Time { return &t }

func intToFloatPtr(i *int) *float64 {
	if i == nil {
		return nil
	}
	f := float64(*i)
	return &f
}
