package data_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/technosupport/addaxai-connect/internal/data"
)

func TestReportStatsModel_Overview(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	projectID := uuid.New()
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM images").
		WithArgs(projectID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(120))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM images").
		WithArgs(projectID, start, end).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(15))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM cameras").
		WithArgs(projectID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(8))
	mock.ExpectQuery("SELECT count\\(DISTINCT cl.species\\)").
		WithArgs(projectID, 0.5).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(6))
	mock.ExpectQuery("SELECT cl.species, min\\(i.captured_at\\)").
		WithArgs(projectID, 0.5).
		WillReturnRows(sqlmock.NewRows([]string{"species", "min"}).
			AddRow("leopard", start.Add(24*time.Hour)).
			AddRow("genet", start.Add(-48*time.Hour)))

	m := data.ReportStatsModel{DB: db}
	overview, err := m.Overview(context.Background(), projectID, start, end, 0.5)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if overview.TotalImages != 120 || overview.NewImages != 15 || overview.TotalCameras != 8 || overview.TotalSpecies != 6 {
		t.Errorf("unexpected overview: %+v", overview)
	}
	if overview.NewSpecies != 1 {
		t.Errorf("NewSpecies = %d, want 1 (only leopard's first sighting falls in the period)", overview.NewSpecies)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReportStatsModel_SpeciesDistribution(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	projectID := uuid.New()
	start, end := time.Now().Add(-7*24*time.Hour), time.Now()

	mock.ExpectQuery("SELECT cl.species, count\\(\\*\\) AS n").
		WithArgs(projectID, 0.6, start, end, 5).
		WillReturnRows(sqlmock.NewRows([]string{"species", "n"}).
			AddRow("leopard", 12).
			AddRow("genet", 4))

	m := data.ReportStatsModel{DB: db}
	out, err := m.SpeciesDistribution(context.Background(), projectID, start, end, 0.6, 5)
	if err != nil {
		t.Fatalf("SpeciesDistribution: %v", err)
	}
	if len(out) != 2 || out[0].Species != "leopard" || out[0].Count != 12 {
		t.Errorf("unexpected distribution: %+v", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReportStatsModel_Activity_PeakHour(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	projectID := uuid.New()
	start, end := time.Now().Add(-24*time.Hour), time.Now()

	mock.ExpectQuery("SELECT extract\\(hour FROM i.captured_at\\)").
		WithArgs(projectID, 0.5, start, end).
		WillReturnRows(sqlmock.NewRows([]string{"hr", "count"}).
			AddRow(3, 2).
			AddRow(14, 9))

	m := data.ReportStatsModel{DB: db}
	summary, err := m.Activity(context.Background(), projectID, start, end, 0.5)
	if err != nil {
		t.Fatalf("Activity: %v", err)
	}
	if summary.TotalDetections != 11 {
		t.Errorf("TotalDetections = %d, want 11", summary.TotalDetections)
	}
	if summary.PeakHour == nil || *summary.PeakHour != 14 {
		t.Errorf("PeakHour = %v, want 14", summary.PeakHour)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
