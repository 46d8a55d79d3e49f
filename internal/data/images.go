package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ImageStatus string

const (
	ImageStatusPending     ImageStatus = "pending"
	ImageStatusProcessing  ImageStatus = "processing"
	ImageStatusClassifying ImageStatus = "classifying"
	ImageStatusClassified  ImageStatus = "classified"
	ImageStatusFailed      ImageStatus = "failed"
)

// ImageMetadata is the open-ended EXIF bag plus the handful of fields the
// pipeline resolves from it. Unlike Camera.Config, this isn't merged across
// writes: it is written once at ingestion.
type ImageMetadata struct {
	EXIF              map[string]string `json:"exif,omitempty"`
	GPSLatitude       *float64          `json:"gps_latitude,omitempty"`
	GPSLongitude      *float64          `json:"gps_longitude,omitempty"`
	CameraMake        string            `json:"camera_make,omitempty"`
	CameraModel       string            `json:"camera_model,omitempty"`
	CameraSerial      string            `json:"camera_serial,omitempty"`
}

// Image is one captured frame. CapturedAt is kept as a dedicated UTC field,
// distinct from IngestedAt, so downstream statistics never have to guess
// which timestamp a historical value represents (see independence grouping
// and report-period filtering, both of which key off CapturedAt).
type Image struct {
	ID             uuid.UUID
	CameraID       uuid.UUID
	Filename       string
	CapturedAt     time.Time
	IngestedAt     time.Time
	StoragePath    string
	ThumbnailPath  string
	AnnotatedPath  string
	Status         ImageStatus
	Metadata       ImageMetadata
	IsVerified     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type ImageModel struct {
	DB DBTX
}

const imageColumns = `id, camera_id, filename, captured_at, ingested_at, storage_path,
	thumbnail_path, annotated_path, status, metadata, is_verified, created_at, updated_at`

func (m ImageModel) GetByID(ctx context.Context, id uuid.UUID) (*Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE id = $1`
	return m.scanOne(ctx, m.DB.QueryRowContext(ctx, query, id))
}

// ExistsForCameraFilenameCapture implements the ingestion duplicate check:
// (camera, filename, capture timestamp within 1s) already present.
func (m ImageModel) ExistsForCameraFilenameCapture(ctx context.Context, cameraID uuid.UUID, filename string, capturedAt time.Time) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM images
			WHERE camera_id = $1 AND filename = $2
			  AND captured_at BETWEEN $3::timestamptz - interval '1 second'
			                      AND $3::timestamptz + interval '1 second'
		)`
	var exists bool
	err := m.DB.QueryRowContext(ctx, query, cameraID, filename, capturedAt).Scan(&exists)
	return exists, err
}

func (m ImageModel) scanOne(ctx context.Context, row *sql.Row) (*Image, error) {
	var img Image
	var metadataRaw []byte
	var thumbnailPath, annotatedPath sql.NullString

	err := row.Scan(
		&img.ID, &img.CameraID, &img.Filename, &img.CapturedAt, &img.IngestedAt,
		&img.StoragePath, &thumbnailPath, &annotatedPath, &img.Status, &metadataRaw,
		&img.IsVerified, &img.CreatedAt, &img.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	img.ThumbnailPath = thumbnailPath.String
	img.AnnotatedPath = annotatedPath.String
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &img.Metadata); err != nil {
			return nil, err
		}
	}
	return &img, nil
}

func (m ImageModel) Create(ctx context.Context, img *Image) error {
	metadataRaw, err := json.Marshal(img.Metadata)
	if err != nil {
		return err
	}
	if img.ID == uuid.Nil {
		img.ID = uuid.New()
	}
	if img.Status == "" {
		img.Status = ImageStatusPending
	}

	query := `
		INSERT INTO images (id, camera_id, filename, captured_at, ingested_at, storage_path,
		                     thumbnail_path, status, metadata, is_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	return m.DB.QueryRowContext(ctx, query,
		img.ID, img.CameraID, img.Filename, img.CapturedAt, img.IngestedAt, img.StoragePath,
		nullableString(img.ThumbnailPath), img.Status, metadataRaw, img.IsVerified,
	).Scan(&img.CreatedAt, &img.UpdatedAt)
}

func (m ImageModel) SetStatus(ctx context.Context, id uuid.UUID, status ImageStatus) error {
	query := `UPDATE images SET status = $1, updated_at = (NOW() AT TIME ZONE 'UTC') WHERE id = $2`
	res, err := m.DB.ExecContext(ctx, query, status, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// AdvanceStatus applies the status transition only if the row is currently
// in fromStatus, matching the "advancing from processing only on success"
// rule so a late retry can't regress a further-along image.
func (m ImageModel) AdvanceStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus ImageStatus) error {
	query := `
		UPDATE images
		SET status = $1, updated_at = (NOW() AT TIME ZONE 'UTC')
		WHERE id = $2 AND status = $3`
	res, err := m.DB.ExecContext(ctx, query, toStatus, id, fromStatus)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (m ImageModel) SetAnnotatedPath(ctx context.Context, id uuid.UUID, path string) error {
	query := `UPDATE images SET annotated_path = $1, updated_at = (NOW() AT TIME ZONE 'UTC') WHERE id = $2`
	_, err := m.DB.ExecContext(ctx, query, path, id)
	return err
}

func (m ImageModel) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	query := `UPDATE images SET is_verified = $1, updated_at = (NOW() AT TIME ZONE 'UTC') WHERE id = $2`
	_, err := m.DB.ExecContext(ctx, query, verified, id)
	return err
}

// ListByCameraChronological backs the deployment-relocation backfill: an
// ordered (date, lat, lon) stream per camera.
func (m ImageModel) ListByCameraChronological(ctx context.Context, cameraID uuid.UUID) ([]Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE camera_id = $1 ORDER BY captured_at ASC`
	rows, err := m.DB.QueryContext(ctx, query, cameraID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Image
	for rows.Next() {
		var img Image
		var metadataRaw []byte
		var thumbnailPath, annotatedPath sql.NullString
		if err := rows.Scan(&img.ID, &img.CameraID, &img.Filename, &img.CapturedAt, &img.IngestedAt,
			&img.StoragePath, &thumbnailPath, &annotatedPath, &img.Status, &metadataRaw,
			&img.IsVerified, &img.CreatedAt, &img.UpdatedAt); err != nil {
			return nil, err
		}
		img.ThumbnailPath = thumbnailPath.String
		img.AnnotatedPath = annotatedPath.String
		if len(metadataRaw) > 0 {
			json.Unmarshal(metadataRaw, &img.Metadata)
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

func (m ImageModel) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := m.DB.ExecContext(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
