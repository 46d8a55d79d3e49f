package data

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

type DetectionCategory string

const (
	CategoryAnimal  DetectionCategory = "animal"
	CategoryPerson  DetectionCategory = "person"
	CategoryVehicle DetectionCategory = "vehicle"
)

// BBox is a normalized [x_min, y_min, w, h] box in [0,1]^4. Pixel
// coordinates are derived from it against the image's pixel dimensions and
// stored alongside so readers never need the image decoded to plot a box.
type BBox struct {
	X float64
	Y float64
	W float64
	H float64
}

type Detection struct {
	ID               uuid.UUID
	ImageID          uuid.UUID
	Category         DetectionCategory
	PixelX, PixelY   int
	PixelW, PixelH   int
	NormalizedBBox   BBox
	Confidence       float64
}

type DetectionModel struct {
	DB DBTX
}

func (m DetectionModel) Create(ctx context.Context, d *Detection) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	query := `
		INSERT INTO detections (id, image_id, category, pixel_x, pixel_y, pixel_w, pixel_h,
		                         norm_x, norm_y, norm_w, norm_h, confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := m.DB.ExecContext(ctx, query,
		d.ID, d.ImageID, d.Category, d.PixelX, d.PixelY, d.PixelW, d.PixelH,
		d.NormalizedBBox.X, d.NormalizedBBox.Y, d.NormalizedBBox.W, d.NormalizedBBox.H, d.Confidence)
	return err
}

func (m DetectionModel) GetByID(ctx context.Context, id uuid.UUID) (*Detection, error) {
	query := `
		SELECT id, image_id, category, pixel_x, pixel_y, pixel_w, pixel_h,
		       norm_x, norm_y, norm_w, norm_h, confidence
		FROM detections WHERE id = $1`
	return m.scanOne(ctx, m.DB.QueryRowContext(ctx, query, id))
}

func (m DetectionModel) scanOne(ctx context.Context, row *sql.Row) (*Detection, error) {
	var d Detection
	err := row.Scan(&d.ID, &d.ImageID, &d.Category, &d.PixelX, &d.PixelY, &d.PixelW, &d.PixelH,
		&d.NormalizedBBox.X, &d.NormalizedBBox.Y, &d.NormalizedBBox.W, &d.NormalizedBBox.H, &d.Confidence)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	return &d, err
}

// ListByImage returns detections ordered by descending confidence, the
// stable tie-break the spec asks tests to tolerate.
func (m DetectionModel) ListByImage(ctx context.Context, imageID uuid.UUID) ([]Detection, error) {
	query := `
		SELECT id, image_id, category, pixel_x, pixel_y, pixel_w, pixel_h,
		       norm_x, norm_y, norm_w, norm_h, confidence
		FROM detections WHERE image_id = $1
		ORDER BY confidence DESC, id ASC`
	rows, err := m.DB.QueryContext(ctx, query, imageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Detection
	for rows.Next() {
		var d Detection
		if err := rows.Scan(&d.ID, &d.ImageID, &d.Category, &d.PixelX, &d.PixelY, &d.PixelW, &d.PixelH,
			&d.NormalizedBBox.X, &d.NormalizedBBox.Y, &d.NormalizedBBox.W, &d.NormalizedBBox.H, &d.Confidence); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
