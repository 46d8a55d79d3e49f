package ingest

import (
	"fmt"
	"os"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// ImageExif is the normalized set of EXIF fields ingestion needs, decoupled
// from goexif's tag-by-tag API so the rest of the package works with plain
// Go values.
type ImageExif struct {
	Make            string
	Model           string
	SerialNumber    string
	DateTimeOriginal *time.Time
	GPSLatitude     *float64
	GPSLongitude    *float64
}

// ReadExif decodes the EXIF block from a JPEG file on disk. A missing or
// unreadable EXIF block is not necessarily fatal: the caller decides
// whether the matched camera profile requires any of these fields.
func ReadExif(path string) (ImageExif, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImageExif{}, fmt.Errorf("ingest: open image: %w", err)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return ImageExif{}, fmt.Errorf("ingest: decode exif: %w", err)
	}

	out := ImageExif{}
	if tag, err := x.Get(exif.Make); err == nil {
		out.Make, _ = tag.StringVal()
	}
	if tag, err := x.Get(exif.Model); err == nil {
		out.Model, _ = tag.StringVal()
	}
	if tag, err := x.Get(exif.SerialNumber); err == nil {
		out.SerialNumber, _ = tag.StringVal()
	}
	if t, err := x.DateTime(); err == nil {
		out.DateTimeOriginal = &t
	}
	if lat, lon, err := x.LatLong(); err == nil {
		out.GPSLatitude = &lat
		out.GPSLongitude = &lon
	}
	return out, nil
}

// Fields projects the fields a CameraProfile matches against.
func (e ImageExif) Fields() ExifFields {
	return ExifFields{Make: e.Make, Model: e.Model, SerialNumber: e.SerialNumber}
}
