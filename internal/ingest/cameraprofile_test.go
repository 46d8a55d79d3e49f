package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentifyProfile_Willfine2025(t *testing.T) {
	profile, err := IdentifyProfile(ExifFields{Make: "Willfine", Model: "4.0T CG"})
	if assert.NoError(t, err) {
		assert.Equal(t, "Willfine-2025", profile.Name)
	}
}

func TestIdentifyProfile_Willfine2024(t *testing.T) {
	profile, err := IdentifyProfile(ExifFields{Make: "SY", Model: "4.0PCG"})
	if assert.NoError(t, err) {
		assert.Equal(t, "Willfine-2024", profile.Name)
	}
}

func TestIdentifyProfile_Unsupported(t *testing.T) {
	_, err := IdentifyProfile(ExifFields{Make: "Reconyx", Model: "HC600"})
	assert.Error(t, err)
}

func TestWillfine2025_Identity_FromSerialNumber(t *testing.T) {
	profile, err := IdentifyProfile(ExifFields{Make: "Willfine", Model: "4.0T CG", SerialNumber: "861943070068027"})
	if assert.NoError(t, err) {
		identity, err := profile.Identify(ExifFields{SerialNumber: "861943070068027"}, "E1000159.JPG")
		if assert.NoError(t, err) {
			assert.Equal(t, "861943070068027", identity.SerialNumber)
		}
	}
}

func TestWillfine2024_Identity_FromFilenameMapping(t *testing.T) {
	profile, err := IdentifyProfile(ExifFields{Make: "SY", Model: "4.0PCG"})
	if assert.NoError(t, err) {
		identity, err := profile.Identify(ExifFields{}, "0000000WUH09-SYPR1113.JPG")
		if assert.NoError(t, err) {
			assert.Equal(t, "860946063660255", identity.SerialNumber)
			assert.Equal(t, "WUH09", identity.FriendlyName)
		}
	}
}

func TestWillfine2024_Identity_UnknownCamera(t *testing.T) {
	profile, err := IdentifyProfile(ExifFields{Make: "SY", Model: "4.0PCG"})
	if assert.NoError(t, err) {
		_, err := profile.Identify(ExifFields{}, "0000000WUH99-SYPR1113.JPG")
		assert.Error(t, err)
	}
}
