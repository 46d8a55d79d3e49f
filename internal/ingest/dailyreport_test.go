package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeTempReport(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "report.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp report: %v", err)
	}
	return path
}

func TestParseDailyReport_NewVariant(t *testing.T) {
	content := "IMEI:861943070068027\nCSQ:31\nTemp:24℃\nBattery:60%\nSD:59405M/59628M\nGPS:52.098737,5.125504\nTotal:120\nSend:120\nDate:05/12/2025 15:46:47\n"
	path := writeTempReport(t, content)

	report, err := ParseDailyReport(path)

	if assert.NoError(t, err) {
		assert.Equal(t, "861943070068027", report.CameraID)
		if assert.NotNil(t, report.SignalQuality) {
			assert.Equal(t, 31, *report.SignalQuality)
		}
		if assert.NotNil(t, report.TemperatureCelsius) {
			assert.Equal(t, 24, *report.TemperatureCelsius)
		}
		if assert.NotNil(t, report.BatteryPercent) {
			assert.Equal(t, 60, *report.BatteryPercent)
		}
		if assert.NotNil(t, report.Latitude) {
			assert.InDelta(t, 52.098737, *report.Latitude, 0.000001)
		}
		if assert.NotNil(t, report.Longitude) {
			assert.InDelta(t, 5.125504, *report.Longitude, 0.000001)
		}
		assert.Equal(t, 120, report.TotalImages)
		assert.Equal(t, 120, report.SentImages)
	}
}

func TestParseDailyReport_LegacyVariant(t *testing.T) {
	content := "IMEI:861943070068027\nCamID:WUH09\nCSQ:18\nTemp:26 Celsius Degree\nBattery:45%\nSD:30000M/59628M\nGPS:N52*05'55\" E005*07'31\"\nTotal Pics:80\nSend times:80\nDate:19/12/2025  16:21:42\n"
	path := writeTempReport(t, content)

	report, err := ParseDailyReport(path)

	if assert.NoError(t, err) {
		assert.Equal(t, "861943070068027", report.CameraID)
		if assert.NotNil(t, report.TemperatureCelsius) {
			assert.Equal(t, 26, *report.TemperatureCelsius)
		}
		if assert.NotNil(t, report.Latitude) {
			assert.InDelta(t, 52.098611, *report.Latitude, 0.0001)
		}
		if assert.NotNil(t, report.Longitude) {
			assert.InDelta(t, 5.125278, *report.Longitude, 0.0001)
		}
		assert.Equal(t, 80, report.TotalImages)
		assert.Equal(t, 80, report.SentImages)
		if assert.NotNil(t, report.ReportedAt) {
			assert.Equal(t, 2025, report.ReportedAt.Year())
		}
	}
}

func TestParseDailyReport_UnknownGrammar(t *testing.T) {
	path := writeTempReport(t, "Foo:Bar\n")
	_, err := ParseDailyReport(path)
	assert.Error(t, err)
}
