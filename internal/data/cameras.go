package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// CameraStatus mirrors the operational lifecycle of a trap device.
type CameraStatus string

const (
	CameraStatusInventory       CameraStatus = "inventory"
	CameraStatusActive          CameraStatus = "active"
	CameraStatusInactive        CameraStatus = "inactive"
	CameraStatusNeverReported   CameraStatus = "never_reported"
)

// HealthSnapshot is the most recently reported device vitals, cached on the
// camera row so dashboards don't need to join the full report history.
type HealthSnapshot struct {
	BatteryPercent    *int     `json:"battery_percent,omitempty"`
	TemperatureCelsius *float64 `json:"temperature_celsius,omitempty"`
	SignalStrength    *int     `json:"signal_strength,omitempty"`
	SDUsedPercent     *float64 `json:"sd_used_percent,omitempty"`
}

// Camera is a physical trap device, not a network-attached live-view camera.
type Camera struct {
	ID                uuid.UUID
	ProjectID         *uuid.UUID
	Name              string
	Manufacturer      string
	Model             string
	SerialNumber      string
	IMEI              string
	Latitude          *float64
	Longitude         *float64
	Status            CameraStatus
	LastHealth        HealthSnapshot
	LastSeenAt        *time.Time
	LastDailyReportAt *time.Time
	LastImageAt       *time.Time
	Config            map[string]any
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CameraDeploymentPeriod is a contiguous interval the camera spent at
// effectively one location. EndDate nil means currently deployed there.
type CameraDeploymentPeriod struct {
	ID        uuid.UUID
	CameraID  uuid.UUID
	Sequence  int
	Latitude  float64
	Longitude float64
	StartDate time.Time
	EndDate   *time.Time
}

type CameraModel struct {
	DB DBTX
}

func (m CameraModel) GetByID(ctx context.Context, id uuid.UUID) (*Camera, error) {
	query := `
		SELECT id, project_id, name, manufacturer, model, serial_number, imei,
		       latitude, longitude, status, last_health, last_seen_at,
		       last_daily_report_at, last_image_at, config, created_at, updated_at
		FROM cameras
		WHERE id = $1`
	return m.scanOne(ctx, m.DB.QueryRowContext(ctx, query, id))
}

func (m CameraModel) GetBySerialOrName(ctx context.Context, serialOrName string) (*Camera, error) {
	query := `
		SELECT id, project_id, name, manufacturer, model, serial_number, imei,
		       latitude, longitude, status, last_health, last_seen_at,
		       last_daily_report_at, last_image_at, config, created_at, updated_at
		FROM cameras
		WHERE serial_number = $1 OR name = $1`
	return m.scanOne(ctx, m.DB.QueryRowContext(ctx, query, serialOrName))
}

func (m CameraModel) scanOne(ctx context.Context, row *sql.Row) (*Camera, error) {
	var c Camera
	var projectID uuid.NullUUID
	var lat, lon sql.NullFloat64
	var lastSeen, lastReport, lastImage sql.NullTime
	var healthRaw, configRaw []byte

	err := row.Scan(
		&c.ID, &projectID, &c.Name, &c.Manufacturer, &c.Model, &c.SerialNumber, &c.IMEI,
		&lat, &lon, &c.Status, &healthRaw, &lastSeen, &lastReport, &lastImage,
		&configRaw, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if projectID.Valid {
		c.ProjectID = &projectID.UUID
	}
	if lat.Valid {
		c.Latitude = &lat.Float64
	}
	if lon.Valid {
		c.Longitude = &lon.Float64
	}
	if lastSeen.Valid {
		c.LastSeenAt = &lastSeen.Time
	}
	if lastReport.Valid {
		c.LastDailyReportAt = &lastReport.Time
	}
	if lastImage.Valid {
		c.LastImageAt = &lastImage.Time
	}
	if len(healthRaw) > 0 {
		if err := json.Unmarshal(healthRaw, &c.LastHealth); err != nil {
			return nil, err
		}
	}
	if len(configRaw) > 0 {
		if err := json.Unmarshal(configRaw, &c.Config); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// Upsert inserts a camera or updates it in place, keyed by serial number.
// A camera with an empty serial number never matches an existing row and is
// always inserted as a new one. This mirrors the ingestion path's "upsert the camera row" requirement.
func (m CameraModel) Upsert(ctx context.Context, c *Camera) error {
	healthRaw, err := json.Marshal(c.LastHealth)
	if err != nil {
		return err
	}
	configRaw, err := json.Marshal(c.Config)
	if err != nil {
		return err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = CameraStatusNeverReported
	}

	query := `
		INSERT INTO cameras (id, project_id, name, manufacturer, model, serial_number, imei,
		                      latitude, longitude, status, last_health, last_seen_at,
		                      last_daily_report_at, last_image_at, config)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (serial_number) WHERE serial_number != '' DO UPDATE SET
			project_id = COALESCE(cameras.project_id, EXCLUDED.project_id),
			name = EXCLUDED.name,
			manufacturer = EXCLUDED.manufacturer,
			model = EXCLUDED.model,
			imei = EXCLUDED.imei,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			status = EXCLUDED.status,
			last_health = EXCLUDED.last_health,
			last_seen_at = EXCLUDED.last_seen_at,
			last_daily_report_at = EXCLUDED.last_daily_report_at,
			last_image_at = EXCLUDED.last_image_at,
			config = cameras.config || EXCLUDED.config,
			updated_at = (NOW() AT TIME ZONE 'UTC')
		RETURNING id, created_at, updated_at`

	return m.DB.QueryRowContext(ctx, query,
		c.ID, c.ProjectID, c.Name, c.Manufacturer, c.Model, c.SerialNumber, c.IMEI,
		c.Latitude, c.Longitude, c.Status, healthRaw, c.LastSeenAt,
		c.LastDailyReportAt, c.LastImageAt, configRaw,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (m CameraModel) UpdateHealthSnapshot(ctx context.Context, id uuid.UUID, health HealthSnapshot, reportedAt time.Time, configPatch map[string]any) error {
	healthRaw, err := json.Marshal(health)
	if err != nil {
		return err
	}
	patchRaw, err := json.Marshal(configPatch)
	if err != nil {
		return err
	}
	query := `
		UPDATE cameras
		SET last_health = $1, last_daily_report_at = $2, status = 'active',
		    config = config || $3, updated_at = (NOW() AT TIME ZONE 'UTC')
		WHERE id = $4`
	res, err := m.DB.ExecContext(ctx, query, healthRaw, reportedAt, patchRaw, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (m CameraModel) TouchLastImage(ctx context.Context, id uuid.UUID, capturedAt time.Time) error {
	query := `
		UPDATE cameras
		SET last_image_at = $1, last_seen_at = (NOW() AT TIME ZONE 'UTC'),
		    status = CASE WHEN status = 'never_reported' THEN 'active' ELSE status END,
		    updated_at = (NOW() AT TIME ZONE 'UTC')
		WHERE id = $2`
	_, err := m.DB.ExecContext(ctx, query, capturedAt, id)
	return err
}

// CountBelowBatteryThreshold counts cameras in a project whose last reported
// battery_percent is known and at or below threshold, for the daily digest.
func (m CameraModel) CountBelowBatteryThreshold(ctx context.Context, projectID uuid.UUID, threshold int) (int, error) {
	query := `
		SELECT count(*)
		FROM cameras
		WHERE project_id = $1
		  AND last_health->>'battery_percent' IS NOT NULL
		  AND (last_health->>'battery_percent')::int <= $2`
	var count int
	err := m.DB.QueryRowContext(ctx, query, projectID, threshold).Scan(&count)
	return count, err
}

func (m CameraModel) ListByProject(ctx context.Context, projectID uuid.UUID) ([]Camera, error) {
	query := `
		SELECT id, project_id, name, manufacturer, model, serial_number, imei,
		       latitude, longitude, status, last_health, last_seen_at,
		       last_daily_report_at, last_image_at, config, created_at, updated_at
		FROM cameras
		WHERE project_id = $1
		ORDER BY name`
	rows, err := m.DB.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Camera
	for rows.Next() {
		var c Camera
		var projectIDCol uuid.NullUUID
		var lat, lon sql.NullFloat64
		var lastSeen, lastReport, lastImage sql.NullTime
		var healthRaw, configRaw []byte
		if err := rows.Scan(&c.ID, &projectIDCol, &c.Name, &c.Manufacturer, &c.Model, &c.SerialNumber,
			&c.IMEI, &lat, &lon, &c.Status, &healthRaw, &lastSeen, &lastReport, &lastImage,
			&configRaw, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if projectIDCol.Valid {
			c.ProjectID = &projectIDCol.UUID
		}
		if lat.Valid {
			c.Latitude = &lat.Float64
		}
		if lon.Valid {
			c.Longitude = &lon.Float64
		}
		if lastSeen.Valid {
			c.LastSeenAt = &lastSeen.Time
		}
		if lastReport.Valid {
			c.LastDailyReportAt = &lastReport.Time
		}
		if lastImage.Valid {
			c.LastImageAt = &lastImage.Time
		}
		if len(healthRaw) > 0 {
			json.Unmarshal(healthRaw, &c.LastHealth)
		}
		if len(configRaw) > 0 {
			json.Unmarshal(configRaw, &c.Config)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeploymentPeriodModel tracks CameraDeploymentPeriod rows. Periods for a
// camera must stay non-overlapping with a monotonically increasing
// start_date; callers enforce that invariant via CurrentPeriod + Close.
type DeploymentPeriodModel struct {
	DB DBTX
}

var ErrNoOpenPeriod = errors.New("camera has no open deployment period")

func (m DeploymentPeriodModel) CurrentPeriod(ctx context.Context, cameraID uuid.UUID) (*CameraDeploymentPeriod, error) {
	query := `
		SELECT id, camera_id, sequence, latitude, longitude, start_date, end_date
		FROM camera_deployment_periods
		WHERE camera_id = $1 AND end_date IS NULL`
	var p CameraDeploymentPeriod
	var endDate sql.NullTime
	err := m.DB.QueryRowContext(ctx, query, cameraID).Scan(
		&p.ID, &p.CameraID, &p.Sequence, &p.Latitude, &p.Longitude, &p.StartDate, &endDate)
	if err == sql.ErrNoRows {
		return nil, ErrNoOpenPeriod
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (m DeploymentPeriodModel) Open(ctx context.Context, cameraID uuid.UUID, lat, lon float64, startDate time.Time) (*CameraDeploymentPeriod, error) {
	query := `
		INSERT INTO camera_deployment_periods (id, camera_id, sequence, latitude, longitude, start_date)
		VALUES ($1, $2, (
			SELECT COALESCE(MAX(sequence), 0) + 1 FROM camera_deployment_periods WHERE camera_id = $2
		), $3, $4, $5)
		RETURNING id, sequence`
	p := &CameraDeploymentPeriod{CameraID: cameraID, Latitude: lat, Longitude: lon, StartDate: startDate}
	id := uuid.New()
	err := m.DB.QueryRowContext(ctx, query, id, cameraID, lat, lon, startDate).Scan(&p.ID, &p.Sequence)
	return p, err
}

func (m DeploymentPeriodModel) Close(ctx context.Context, periodID uuid.UUID, endDate time.Time) error {
	query := `UPDATE camera_deployment_periods SET end_date = $1 WHERE id = $2 AND end_date IS NULL`
	res, err := m.DB.ExecContext(ctx, query, endDate, periodID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (m DeploymentPeriodModel) ListByCamera(ctx context.Context, cameraID uuid.UUID) ([]CameraDeploymentPeriod, error) {
	query := `
		SELECT id, camera_id, sequence, latitude, longitude, start_date, end_date
		FROM camera_deployment_periods
		WHERE camera_id = $1
		ORDER BY sequence`
	rows, err := m.DB.QueryContext(ctx, query, cameraID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CameraDeploymentPeriod
	for rows.Next() {
		var p CameraDeploymentPeriod
		var endDate sql.NullTime
		if err := rows.Scan(&p.ID, &p.CameraID, &p.Sequence, &p.Latitude, &p.Longitude, &p.StartDate, &endDate); err != nil {
			return nil, err
		}
		if endDate.Valid {
			p.EndDate = &endDate.Time
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
