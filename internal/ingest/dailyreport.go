package ingest

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DailyReport is the normalized result of parsing a camera's daily status
// TXT file, regardless of which device grammar produced it.
type DailyReport struct {
	CameraID               string // IMEI
	SignalQuality          *int
	TemperatureCelsius     *int
	BatteryPercent         *int
	SDUsedPercent          *float64
	Latitude               *float64
	Longitude              *float64
	TotalImages            int
	SentImages             int
	ReportedAt             *time.Time
}

// ParseDailyReport reads a daily report file and routes it to the legacy
// (Willfine-2024) or current (Willfine-2025) grammar based on which keys
// are present, since the two devices never share a format signature.
func ParseDailyReport(path string) (DailyReport, error) {
	raw, err := readKeyValueLines(path)
	if err != nil {
		return DailyReport{}, err
	}

	_, hasIMEI := raw["IMEI"]
	_, hasCamID := raw["CamID"]

	switch {
	case hasIMEI && hasCamID:
		return parseWillfine2024(raw), nil
	case hasIMEI:
		return parseWillfine2025(raw), nil
	default:
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		return DailyReport{}, fmt.Errorf("cannot determine camera type from daily report %s (keys=%v)", path, keys)
	}
}

func readKeyValueLines(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open daily report: %w", err)
	}
	defer f.Close()

	out := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		out[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ingest: read daily report: %w", err)
	}
	return out, nil
}

func parseWillfine2025(raw map[string]string) DailyReport {
	lat, lon := parseGPSDecimal(raw["GPS"])
	return DailyReport{
		CameraID:           raw["IMEI"],
		SignalQuality:      parseSignalQuality(raw["CSQ"]),
		TemperatureCelsius: parseTemperature2025(raw["Temp"]),
		BatteryPercent:     parseBattery(raw["Battery"]),
		SDUsedPercent:      parseSDCard(raw["SD"]),
		Latitude:           lat,
		Longitude:          lon,
		TotalImages:        atoiOrZero(raw["Total"]),
		SentImages:         atoiOrZero(raw["Send"]),
		ReportedAt:         parseReportDatetime2025(raw["Date"]),
	}
}

func parseWillfine2024(raw map[string]string) DailyReport {
	lat, lon := parseGPSDMS(raw["GPS"])
	return DailyReport{
		CameraID:           raw["IMEI"],
		SignalQuality:      parseSignalQuality(raw["CSQ"]),
		TemperatureCelsius: parseTemperature2024(raw["Temp"]),
		BatteryPercent:     parseBattery(raw["Battery"]),
		SDUsedPercent:      parseSDCard(raw["SD"]),
		Latitude:           lat,
		Longitude:          lon,
		TotalImages:        atoiOrZero(raw["Total Pics"]),
		SentImages:         atoiOrZero(raw["Send times"]),
		ReportedAt:         parseReportDatetime2024(raw["Date"]),
	}
}

func parseSignalQuality(s string) *int {
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	if v < 0 {
		v = 0
	}
	if v > 31 {
		v = 31
	}
	return &v
}

func parseTemperature2025(s string) *int {
	if s == "" {
		return nil
	}
	clean := strings.TrimRight(s, "℃ ")
	v, err := strconv.Atoi(clean)
	if err != nil {
		return nil
	}
	return &v
}

func parseTemperature2024(s string) *int {
	if s == "" {
		return nil
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	v, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil
	}
	return &v
}

func parseBattery(s string) *int {
	if s == "" {
		return nil
	}
	clean := strings.TrimSuffix(s, "%")
	v, err := strconv.Atoi(clean)
	if err != nil {
		return nil
	}
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return &v
}

var sdCardPattern = regexp.MustCompile(`^(\d+)M/(\d+)M$`)

func parseSDCard(s string) *float64 {
	if s == "" {
		return nil
	}
	match := sdCardPattern.FindStringSubmatch(s)
	if match == nil {
		return nil
	}
	used, err1 := strconv.Atoi(match[1])
	total, err2 := strconv.Atoi(match[2])
	if err1 != nil || err2 != nil || total == 0 {
		z := 0.0
		return &z
	}
	pct := (float64(used) / float64(total)) * 100
	pct = float64(int(pct*100)) / 100
	return &pct
}

func parseGPSDecimal(s string) (lat, lon *float64) {
	if s == "" {
		return nil, nil
	}
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return nil, nil
	}
	la, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lo, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return nil, nil
	}
	return &la, &lo
}

var gpsDMSPattern = regexp.MustCompile(`^([NS])(\d+)\*(\d+)'(\d+)"?\s*([EW])(\d+)\*(\d+)'(\d+)"?`)

func parseGPSDMS(s string) (lat, lon *float64) {
	if s == "" {
		return nil, nil
	}
	match := gpsDMSPattern.FindStringSubmatch(s)
	if match == nil {
		return nil, nil
	}
	latDir, latDeg, latMin, latSec := match[1], match[2], match[3], match[4]
	lonDir, lonDeg, lonMin, lonSec := match[5], match[6], match[7], match[8]

	la := dmsToDecimal(latDeg, latMin, latSec)
	lo := dmsToDecimal(lonDeg, lonMin, lonSec)
	if latDir == "S" {
		la = -la
	}
	if lonDir == "W" {
		lo = -lo
	}
	return &la, &lo
}

func dmsToDecimal(deg, min, sec string) float64 {
	d, _ := strconv.Atoi(deg)
	m, _ := strconv.Atoi(min)
	s, _ := strconv.Atoi(sec)
	return float64(d) + float64(m)/60 + float64(s)/3600
}

func parseReportDatetime2025(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("02/01/2006 15:04:05", s)
	if err != nil {
		return nil
	}
	return &t
}

func parseReportDatetime2024(s string) *time.Time {
	if s == "" {
		return nil
	}
	normalized := strings.Join(strings.Fields(s), " ")
	t, err := time.Parse("02/01/2006 15:04:05", normalized)
	if err != nil {
		return nil
	}
	return &t
}

func atoiOrZero(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
