package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// rejectionSidecar is the JSON shape written alongside every quarantined
// file, matching the external-interface contract byte for byte.
type rejectionSidecar struct {
	Filename      string            `json:"filename"`
	RejectedAt    time.Time         `json:"rejected_at"`
	Reason        string            `json:"reason"`
	Details       string            `json:"details"`
	FileSizeBytes int64             `json:"file_size_bytes"`
	ExifMetadata  map[string]string `json:"exif_metadata,omitempty"`
}

// Quarantine moves a rejected drop-directory file into
// rejected/<reason>/<name> and writes a <name>.error.json sidecar next to
// it. It never deletes the operator's evidence trail, even on a failed move.
func Quarantine(dropRoot, sourcePath, reason, details string, exifMeta map[string]string) error {
	info, statErr := os.Stat(sourcePath)
	var size int64
	if statErr == nil {
		size = info.Size()
	}

	destDir := filepath.Join(dropRoot, "rejected", reason)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("ingest: create quarantine dir: %w", err)
	}

	name := filepath.Base(sourcePath)
	destPath := filepath.Join(destDir, name)
	if err := moveFile(sourcePath, destPath); err != nil {
		return fmt.Errorf("ingest: move to quarantine: %w", err)
	}

	sidecar := rejectionSidecar{
		Filename:      name,
		RejectedAt:    time.Now().UTC(),
		Reason:        reason,
		Details:       details,
		FileSizeBytes: size,
		ExifMetadata:  exifMeta,
	}
	data, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return fmt.Errorf("ingest: marshal sidecar: %w", err)
	}
	sidecarPath := destPath + ".error.json"
	if err := os.WriteFile(sidecarPath, data, 0o644); err != nil {
		return fmt.Errorf("ingest: write sidecar: %w", err)
	}
	return nil
}

func listDropFiles(dropRoot string) ([]string, error) {
	entries, err := os.ReadDir(dropRoot)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		out = append(out, filepath.Join(dropRoot, e.Name()))
	}
	return out, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// os.Rename fails across filesystems/devices; fall back to copy+remove.
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return err
	}
	return os.Remove(src)
}
