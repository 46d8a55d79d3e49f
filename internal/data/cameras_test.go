package data_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/technosupport/addaxai-connect/internal/data"
)

func TestCameraModel_CountBelowBatteryThreshold(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	projectID := uuid.New()
	m := data.CameraModel{DB: db}

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM cameras").
		WithArgs(projectID, 20).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := m.CountBelowBatteryThreshold(context.Background(), projectID, 20)
	if err != nil {
		t.Fatalf("CountBelowBatteryThreshold: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCameraModel_TouchLastImage(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	cameraID := uuid.New()
	m := data.CameraModel{DB: db}

	mock.ExpectExec("UPDATE cameras").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := m.TouchLastImage(context.Background(), cameraID, time.Now().UTC()); err != nil {
		t.Fatalf("TouchLastImage: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
