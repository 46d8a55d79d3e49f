// Package ingest implements the drop-directory watcher that turns camera
// trap uploads (images and daily status reports) into database rows and
// object-store blobs.
package ingest

import (
	"fmt"
	"regexp"
)

// willfine2024SerialMapping maps the friendly camera name embedded in
// Willfine-2024 filenames to the IMEI serial number, since those units never
// put SerialNumber into EXIF. Extending support to a new unit means adding a
// row here.
var willfine2024SerialMapping = map[string]string{
	"0000000WUH01": "860946063666658",
	"0000000WUH02": "860946063362308",
	"0000000WUH03": "860946063655883",
	"0000000WUH04": "860946063352523",
	"0000000WUH05": "860946063653268",
	"0000000WUH06": "860946063340346",
	"0000000WUH07": "860946063351095",
	"0000000WUH08": "860946063337391",
	"0000000WUH09": "860946063660255",
	"0000000WUH10": "860946063339116",
	"0000000WUH11": "860946062360345",
}

var willfine2024FilenamePattern = regexp.MustCompile(`([A-Z]{3}\d{2})`)

// CameraIdentity is what a profile resolves an image's EXIF/filename into:
// the serial number cameras are keyed on, plus an optional friendly name.
type CameraIdentity struct {
	SerialNumber string
	FriendlyName string
}

// ExifFields is the subset of EXIF tags a profile needs, already stringified
// by the caller so profile matching doesn't depend on the EXIF library's
// concrete tag types.
type ExifFields struct {
	Make         string
	Model        string
	SerialNumber string
}

// CameraProfile describes how one camera model's images self-identify.
// Order in the registry matters: first match wins, same as upstream.
type CameraProfile struct {
	Name          string
	makePattern   *regexp.Regexp
	modelPattern  *regexp.Regexp
	extractID     func(exif ExifFields, filename string) (CameraIdentity, error)
	RequiresDateTime bool
	RequiresGPS      bool
}

func (p CameraProfile) matches(exif ExifFields) bool {
	makeOK := p.makePattern == nil || p.makePattern.MatchString(exif.Make)
	modelOK := p.modelPattern == nil || p.modelPattern.MatchString(exif.Model)
	return makeOK && modelOK
}

func extractWillfine2025(exif ExifFields, _ string) (CameraIdentity, error) {
	if exif.SerialNumber == "" {
		return CameraIdentity{}, fmt.Errorf("willfine-2025: no SerialNumber in EXIF")
	}
	return CameraIdentity{SerialNumber: exif.SerialNumber}, nil
}

func extractWillfine2024(_ ExifFields, filename string) (CameraIdentity, error) {
	match := willfine2024FilenamePattern.FindStringSubmatch(filename)
	if match == nil {
		return CameraIdentity{}, fmt.Errorf("willfine-2024: filename %q has no camera code", filename)
	}
	friendlyName := match[1]
	fullKey := "0000000" + friendlyName
	serial, ok := willfine2024SerialMapping[fullKey]
	if !ok {
		return CameraIdentity{}, fmt.Errorf(
			"unknown willfine-2024 camera %s: not present in the serial number mapping, add %s to support it",
			friendlyName, fullKey)
	}
	return CameraIdentity{SerialNumber: serial, FriendlyName: friendlyName}, nil
}

var profileRegistry = []CameraProfile{
	{
		Name:             "Willfine-2025",
		makePattern:      regexp.MustCompile(`(?i)Willfine`),
		modelPattern:     regexp.MustCompile(`(?i)4\.0T CG`),
		extractID:        extractWillfine2025,
		RequiresDateTime: true,
	},
	{
		Name:             "Willfine-2024",
		makePattern:      regexp.MustCompile(`(?i)SY`),
		modelPattern:     regexp.MustCompile(`(?i)4\.0PCG`),
		extractID:        extractWillfine2024,
		RequiresDateTime: true,
	},
}

// IdentifyProfile picks the first registered profile whose Make/Model
// patterns match. An unmatched image is a hard rejection, not a guess.
func IdentifyProfile(exif ExifFields) (CameraProfile, error) {
	for _, p := range profileRegistry {
		if p.matches(exif) {
			return p, nil
		}
	}
	return CameraProfile{}, fmt.Errorf(
		"unsupported camera model (make=%q model=%q): add a camera profile before ingesting its images",
		exif.Make, exif.Model)
}

// Identify resolves a camera's identity from EXIF + filename using the
// matched profile's extraction strategy.
func (p CameraProfile) Identify(exif ExifFields, filename string) (CameraIdentity, error) {
	return p.extractID(exif, filename)
}
