package data

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ReportStatsModel answers the aggregate queries the periodic email report
// needs. It reads across cameras/images/detections/classifications rather
// than living on any one of those models, since every query here spans all
// four tables for a single project and period.
type ReportStatsModel struct {
	DB DBTX
}

type ReportOverview struct {
	TotalImages  int
	NewImages    int
	TotalCameras int
	TotalSpecies int
	NewSpecies   int
}

func (m ReportStatsModel) Overview(ctx context.Context, projectID uuid.UUID, start, end time.Time, detectionThreshold float64) (ReportOverview, error) {
	var o ReportOverview

	err := m.DB.QueryRowContext(ctx, `
		SELECT count(*) FROM images i JOIN cameras c ON c.id = i.camera_id
		WHERE c.project_id = $1`, projectID).Scan(&o.TotalImages)
	if err != nil {
		return o, err
	}

	err = m.DB.QueryRowContext(ctx, `
		SELECT count(*) FROM images i JOIN cameras c ON c.id = i.camera_id
		WHERE c.project_id = $1 AND i.captured_at BETWEEN $2 AND $3`, projectID, start, end).Scan(&o.NewImages)
	if err != nil {
		return o, err
	}

	err = m.DB.QueryRowContext(ctx, `
		SELECT count(*) FROM cameras WHERE project_id = $1`, projectID).Scan(&o.TotalCameras)
	if err != nil {
		return o, err
	}

	err = m.DB.QueryRowContext(ctx, `
		SELECT count(DISTINCT cl.species)
		FROM classifications cl
		JOIN detections d ON d.id = cl.detection_id
		JOIN images i ON i.id = d.image_id
		JOIN cameras c ON c.id = i.camera_id
		WHERE c.project_id = $1 AND d.confidence >= $2`, projectID, detectionThreshold).Scan(&o.TotalSpecies)
	if err != nil {
		return o, err
	}

	rows, err := m.DB.QueryContext(ctx, `
		SELECT cl.species, min(i.captured_at)
		FROM classifications cl
		JOIN detections d ON d.id = cl.detection_id
		JOIN images i ON i.id = d.image_id
		JOIN cameras c ON c.id = i.camera_id
		WHERE c.project_id = $1 AND d.confidence >= $2
		GROUP BY cl.species`, projectID, detectionThreshold)
	if err != nil {
		return o, err
	}
	defer rows.Close()
	for rows.Next() {
		var species string
		var firstSeen time.Time
		if err := rows.Scan(&species, &firstSeen); err != nil {
			return o, err
		}
		if !firstSeen.Before(start) && !firstSeen.After(end) {
			o.NewSpecies++
		}
	}
	return o, rows.Err()
}

type SpeciesCount struct {
	Species string
	Count   int
}

func (m ReportStatsModel) SpeciesDistribution(ctx context.Context, projectID uuid.UUID, start, end time.Time, detectionThreshold float64, limit int) ([]SpeciesCount, error) {
	rows, err := m.DB.QueryContext(ctx, `
		SELECT cl.species, count(*) AS n
		FROM classifications cl
		JOIN detections d ON d.id = cl.detection_id
		JOIN images i ON i.id = d.image_id
		JOIN cameras c ON c.id = i.camera_id
		WHERE c.project_id = $1 AND d.confidence >= $2
		  AND i.captured_at BETWEEN $3 AND $4
		GROUP BY cl.species
		ORDER BY n DESC
		LIMIT $5`, projectID, detectionThreshold, start, end, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SpeciesCount
	for rows.Next() {
		var sc SpeciesCount
		if err := rows.Scan(&sc.Species, &sc.Count); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

type NotableDetection struct {
	Species    string
	CameraName string
	CapturedAt time.Time
	Confidence float64
	ImageID    uuid.UUID
}

func (m ReportStatsModel) NotableDetections(ctx context.Context, projectID uuid.UUID, start, end time.Time, detectionThreshold float64, limit int) ([]NotableDetection, error) {
	rows, err := m.DB.QueryContext(ctx, `
		SELECT cl.species, cl.confidence, c.name, i.captured_at, i.id
		FROM classifications cl
		JOIN detections d ON d.id = cl.detection_id
		JOIN images i ON i.id = d.image_id
		JOIN cameras c ON c.id = i.camera_id
		WHERE c.project_id = $1 AND d.confidence >= $2
		  AND i.captured_at BETWEEN $3 AND $4
		ORDER BY cl.confidence DESC
		LIMIT $5`, projectID, detectionThreshold, start, end, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NotableDetection
	for rows.Next() {
		var n NotableDetection
		if err := rows.Scan(&n.Species, &n.Confidence, &n.CameraName, &n.CapturedAt, &n.ImageID); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

type ActivitySummary struct {
	TotalDetections    int
	PeakHour           *int
	HourlyDistribution [24]int
}

func (m ReportStatsModel) Activity(ctx context.Context, projectID uuid.UUID, start, end time.Time, detectionThreshold float64) (ActivitySummary, error) {
	var summary ActivitySummary

	rows, err := m.DB.QueryContext(ctx, `
		SELECT extract(hour FROM i.captured_at)::int AS hr, count(*)
		FROM classifications cl
		JOIN detections d ON d.id = cl.detection_id
		JOIN images i ON i.id = d.image_id
		JOIN cameras c ON c.id = i.camera_id
		WHERE c.project_id = $1 AND d.confidence >= $2
		  AND i.captured_at BETWEEN $3 AND $4
		GROUP BY hr`, projectID, detectionThreshold, start, end)
	if err != nil {
		return summary, err
	}
	defer rows.Close()

	for rows.Next() {
		var hour, count int
		if err := rows.Scan(&hour, &count); err != nil {
			return summary, err
		}
		if hour >= 0 && hour < 24 {
			summary.HourlyDistribution[hour] = count
		}
		summary.TotalDetections += count
	}
	if err := rows.Err(); err != nil {
		return summary, err
	}

	if summary.TotalDetections > 0 {
		peak, peakCount := 0, -1
		for h, c := range summary.HourlyDistribution {
			if c > peakCount {
				peak, peakCount = h, c
			}
		}
		summary.PeakHour = &peak
	}
	return summary, nil
}

type CameraHealthSummary struct {
	Total            int
	Active           int
	Inactive         int
	LowBatteryCount  int
	LowBatteryNames  []string
}

func (m ReportStatsModel) CameraHealth(ctx context.Context, projectID uuid.UUID, batteryThreshold int) (CameraHealthSummary, error) {
	var summary CameraHealthSummary
	cutoff := time.Now().UTC().Add(-7 * 24 * time.Hour)

	cameras, err := CameraModel{DB: m.DB}.ListByProject(ctx, projectID)
	if err != nil {
		return summary, err
	}

	summary.Total = len(cameras)
	for _, cam := range cameras {
		if cam.LastDailyReportAt != nil && !cam.LastDailyReportAt.Before(cutoff) {
			summary.Active++
		} else {
			summary.Inactive++
		}
		if cam.LastHealth.BatteryPercent != nil && *cam.LastHealth.BatteryPercent <= batteryThreshold {
			summary.LowBatteryCount++
			summary.LowBatteryNames = append(summary.LowBatteryNames, cam.Name)
		}
	}
	return summary, nil
}
