package data

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
)

// Classification is one species label for one detection. RawPredictions
// always persists the full softmax vector: the reprocess worker needs it
// to reapply a changed species filter without re-running inference (see
// DESIGN.md for why this resolves the spec's raw_predictions ambiguity).
type Classification struct {
	ID             uuid.UUID
	DetectionID    uuid.UUID
	Species        string
	Confidence     float64
	RawPredictions map[string]float64
}

type ClassificationModel struct {
	DB DBTX
}

func (m ClassificationModel) Create(ctx context.Context, c *Classification) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	raw, err := json.Marshal(c.RawPredictions)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO classifications (id, detection_id, species, confidence, raw_predictions)
		VALUES ($1, $2, $3, $4, $5)`
	_, err = m.DB.ExecContext(ctx, query, c.ID, c.DetectionID, c.Species, c.Confidence, raw)
	return err
}

// ReplaceTop1 is used by the classification and reprocess workers: it
// deletes any existing classification rows for the detection and writes a
// single new top-1, keeping RawPredictions unchanged so later reprocess
// passes stay cheap. Returns the new row's id for callers that need to
// report it downstream (e.g. the classification-complete event).
func (m ClassificationModel) ReplaceTop1(ctx context.Context, detectionID uuid.UUID, species string, confidence float64, rawPredictions map[string]float64) (uuid.UUID, error) {
	raw, err := json.Marshal(rawPredictions)
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := m.DB.ExecContext(ctx, `DELETE FROM classifications WHERE detection_id = $1`, detectionID); err != nil {
		return uuid.Nil, err
	}
	id := uuid.New()
	query := `
		INSERT INTO classifications (id, detection_id, species, confidence, raw_predictions)
		VALUES ($1, $2, $3, $4, $5)`
	_, err = m.DB.ExecContext(ctx, query, id, detectionID, species, confidence, raw)
	return id, err
}

func (m ClassificationModel) ListByDetection(ctx context.Context, detectionID uuid.UUID) ([]Classification, error) {
	query := `
		SELECT id, detection_id, species, confidence, raw_predictions
		FROM classifications WHERE detection_id = $1
		ORDER BY confidence DESC`
	rows, err := m.DB.QueryContext(ctx, query, detectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return m.scanRows(rows)
}

// ListByImage joins through detections for the annotation/notification path,
// which needs every classification produced for an image in one query.
func (m ClassificationModel) ListByImage(ctx context.Context, imageID uuid.UUID) ([]Classification, error) {
	query := `
		SELECT c.id, c.detection_id, c.species, c.confidence, c.raw_predictions
		FROM classifications c
		JOIN detections d ON d.id = c.detection_id
		WHERE d.image_id = $1
		ORDER BY c.confidence DESC`
	rows, err := m.DB.QueryContext(ctx, query, imageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return m.scanRows(rows)
}

func (m ClassificationModel) scanRows(rows *sql.Rows) ([]Classification, error) {
	var out []Classification
	for rows.Next() {
		var c Classification
		var raw []byte
		if err := rows.Scan(&c.ID, &c.DetectionID, &c.Species, &c.Confidence, &raw); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			json.Unmarshal(raw, &c.RawPredictions)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
