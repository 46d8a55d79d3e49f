package data

import (
	"context"

	"github.com/google/uuid"
)

// HumanObservation is curator-authored ground truth that overrides AI
// output for a verified image in every aggregation path.
type HumanObservation struct {
	ID      uuid.UUID
	ImageID uuid.UUID
	Species string
	Count   int
}

type HumanObservationModel struct {
	DB DBTX
}

func (m HumanObservationModel) Create(ctx context.Context, o *HumanObservation) error {
	if o.Count < 1 {
		o.Count = 1
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	query := `INSERT INTO human_observations (id, image_id, species, count) VALUES ($1, $2, $3, $4)`
	_, err := m.DB.ExecContext(ctx, query, o.ID, o.ImageID, o.Species, o.Count)
	return err
}

func (m HumanObservationModel) Update(ctx context.Context, o *HumanObservation) error {
	query := `UPDATE human_observations SET species = $1, count = $2 WHERE id = $3`
	res, err := m.DB.ExecContext(ctx, query, o.Species, o.Count, o.ID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (m HumanObservationModel) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := m.DB.ExecContext(ctx, `DELETE FROM human_observations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (m HumanObservationModel) ListByImage(ctx context.Context, imageID uuid.UUID) ([]HumanObservation, error) {
	query := `SELECT id, image_id, species, count FROM human_observations WHERE image_id = $1 ORDER BY species`
	rows, err := m.DB.QueryContext(ctx, query, imageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HumanObservation
	for rows.Next() {
		var o HumanObservation
		if err := rows.Scan(&o.ID, &o.ImageID, &o.Species, &o.Count); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
