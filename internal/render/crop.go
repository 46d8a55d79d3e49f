// Package render implements the classification worker's image-shaping
// steps: square-cropping a detection for the classifier, species-filter
// renormalization, privacy blurring, and annotated-frame rendering.
package render

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
)

// NormalizedBBox is a detection's bounding box in [0,1]^4 coordinates.
type NormalizedBBox struct {
	X, Y, W, H float64
}

// SquareCrop widens the shorter side of a normalized bbox by half the
// difference so its aspect becomes 1:1, then clips to the unit square. This
// is the exact rule the classification worker applies before resizing a
// detection crop to the model's square input.
func SquareCrop(b NormalizedBBox) NormalizedBBox {
	if b.W == b.H {
		return clipToUnitSquare(b)
	}
	if b.W > b.H {
		diff := b.W - b.H
		b.Y -= diff / 2
		b.H = b.W
	} else {
		diff := b.H - b.W
		b.X -= diff / 2
		b.W = b.H
	}
	return clipToUnitSquare(b)
}

func clipToUnitSquare(b NormalizedBBox) NormalizedBBox {
	if b.X < 0 {
		b.W += b.X
		b.X = 0
	}
	if b.Y < 0 {
		b.H += b.Y
		b.Y = 0
	}
	if b.X+b.W > 1 {
		b.W = 1 - b.X
	}
	if b.Y+b.H > 1 {
		b.H = 1 - b.Y
	}
	return b
}

// PixelRect converts a normalized bbox to a pixel rectangle against the
// given image dimensions.
func (b NormalizedBBox) PixelRect(width, height int) image.Rectangle {
	x0 := int(b.X * float64(width))
	y0 := int(b.Y * float64(height))
	x1 := int((b.X + b.W) * float64(width))
	y1 := int((b.Y + b.H) * float64(height))
	return image.Rect(x0, y0, x1, y1)
}

// CropAndResize extracts the square crop for a detection and resizes it to
// the classifier's expected square input using bicubic resampling.
func CropAndResize(src image.Image, bbox NormalizedBBox, modelInputSize int) []byte {
	bounds := src.Bounds()
	rect := SquareCrop(bbox).PixelRect(bounds.Dx(), bounds.Dy())
	cropped := imaging.Crop(src, rect)
	resized := imaging.Resize(cropped, modelInputSize, modelInputSize, imaging.CatmullRom)

	var buf bytes.Buffer
	imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(90))
	return buf.Bytes()
}
