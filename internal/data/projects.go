package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Project is a study-area tenant. BoundaryWKT holds an optional PostGIS
// polygon in WKT form (e.g. "POLYGON((...))"); nil means no spatial bound.
type Project struct {
	ID                        uuid.UUID
	Name                      string
	Description               string
	BoundaryWKT               *string
	IncludedSpecies           []string // empty means "all model classes"
	DetectionThreshold        float64
	BlurPeopleVehicles        bool
	IndependenceIntervalMins  int
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

type ProjectModel struct {
	DB DBTX
}

func (m ProjectModel) GetByID(ctx context.Context, id uuid.UUID) (*Project, error) {
	query := `
		SELECT id, name, description, ST_AsText(boundary), included_species,
		       detection_threshold, blur_people_vehicles, independence_interval_minutes,
		       created_at, updated_at
		FROM projects
		WHERE id = $1`

	var p Project
	var boundary sql.NullString
	var species []string

	err := m.DB.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Description, &boundary, pq.Array(&species),
		&p.DetectionThreshold, &p.BlurPeopleVehicles, &p.IndependenceIntervalMins,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if boundary.Valid {
		p.BoundaryWKT = &boundary.String
	}
	p.IncludedSpecies = species
	return &p, nil
}

func (m ProjectModel) Create(ctx context.Context, p *Project) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	var boundaryExpr any
	if p.BoundaryWKT != nil {
		boundaryExpr = *p.BoundaryWKT
	}

	query := `
		INSERT INTO projects (id, name, description, boundary, included_species,
		                       detection_threshold, blur_people_vehicles, independence_interval_minutes)
		VALUES ($1, $2, $3, ST_GeomFromText($4, 4326), $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	return m.DB.QueryRowContext(ctx, query,
		p.ID, p.Name, p.Description, boundaryExpr, pq.Array(p.IncludedSpecies),
		p.DetectionThreshold, p.BlurPeopleVehicles, p.IndependenceIntervalMins,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (m ProjectModel) Update(ctx context.Context, p *Project) error {
	query := `
		UPDATE projects
		SET name = $1, description = $2, included_species = $3, detection_threshold = $4,
		    blur_people_vehicles = $5, independence_interval_minutes = $6,
		    updated_at = (NOW() AT TIME ZONE 'UTC')
		WHERE id = $7
		RETURNING updated_at`
	err := m.DB.QueryRowContext(ctx, query,
		p.Name, p.Description, pq.Array(p.IncludedSpecies), p.DetectionThreshold,
		p.BlurPeopleVehicles, p.IndependenceIntervalMins, p.ID,
	).Scan(&p.UpdatedAt)
	if err == sql.ErrNoRows {
		return ErrRecordNotFound
	}
	return err
}

// Delete cascades to every owned entity (cameras, images, detections,
// classifications, memberships, invitations, notification prefs) via FK
// ON DELETE CASCADE, matching the "deletion cascades to all owned data"
// invariant.
func (m ProjectModel) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := m.DB.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (m ProjectModel) List(ctx context.Context) ([]Project, error) {
	query := `
		SELECT id, name, description, ST_AsText(boundary), included_species,
		       detection_threshold, blur_people_vehicles, independence_interval_minutes,
		       created_at, updated_at
		FROM projects
		ORDER BY name`
	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		var boundary sql.NullString
		var species []string
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &boundary, pq.Array(&species),
			&p.DetectionThreshold, &p.BlurPeopleVehicles, &p.IndependenceIntervalMins,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if boundary.Valid {
			p.BoundaryWKT = &boundary.String
		}
		p.IncludedSpecies = species
		out = append(out, p)
	}
	return out, rows.Err()
}

// AllowsSpecies reports whether a species passes the project's include
// filter; an empty list means every model class is permitted.
func (p Project) AllowsSpecies(species string) bool {
	if len(p.IncludedSpecies) == 0 {
		return true
	}
	for _, s := range p.IncludedSpecies {
		if s == species {
			return true
		}
	}
	return false
}
