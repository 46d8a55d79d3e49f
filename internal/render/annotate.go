package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// bracketColor is the fixed stroke color for detection corner brackets.
var bracketColor = color.RGBA{R: 0xEF, G: 0x44, B: 0x44, A: 0xFF}
var labelBackground = color.RGBA{A: 128} // rgba(0,0,0,0.5)

// Annotation is one detection's rendering input: its pixel box, category
// and the species label line (empty for non-animal detections).
type Annotation struct {
	Box          image.Rectangle
	CategoryLine string // "{Category} {P%}"
	SpeciesLine  string // "{Species Title} {P%}", empty if not classified
}

// BlurRegion is a pixel rectangle to Gaussian-blur before annotation, used
// for person/vehicle privacy masking.
type BlurRegion struct {
	Box image.Rectangle
}

// Render draws corner-bracket boxes and labels onto a copy of src, first
// applying any requested blur regions. Scaling factor s = image width / 1000
// drives every dimension, per the fixed rendering contract.
func Render(src image.Image, annotations []Annotation, blurRegions []BlurRegion) image.Image {
	bounds := src.Bounds()
	s := float64(bounds.Dx()) / 1000.0
	if s <= 0 {
		s = 1
	}

	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, src, bounds.Min, draw.Src)

	for _, region := range blurRegions {
		applyRegionBlur(canvas, region.Box, s)
	}

	for _, a := range annotations {
		drawCornerBrackets(canvas, a.Box, s)
		drawLabel(canvas, a.Box, a.CategoryLine, a.SpeciesLine, s)
	}

	return canvas
}

// Encode renders to a JPEG byte slice ready for upload.
func Encode(img image.Image) []byte {
	var buf bytes.Buffer
	imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90))
	return buf.Bytes()
}

func applyRegionBlur(canvas *image.RGBA, box image.Rectangle, s float64) {
	box = box.Intersect(canvas.Bounds())
	if box.Empty() {
		return
	}
	radius := 15 + 10*s // 15-25px, proportional to image size
	if radius > 25 {
		radius = 25
	}
	sub := cropRGBA(canvas, box)
	blurred := imaging.Blur(sub, radius)
	draw.Draw(canvas, box, blurred, image.Point{}, draw.Src)
}

func cropRGBA(canvas *image.RGBA, box image.Rectangle) image.Image {
	out := image.NewRGBA(image.Rect(0, 0, box.Dx(), box.Dy()))
	draw.Draw(out, out.Bounds(), canvas, box.Min, draw.Src)
	return out
}

func drawCornerBrackets(canvas *image.RGBA, box image.Rectangle, s float64) {
	bracketLen := int(12 * s)
	lineWidth := int(4 * s)
	if lineWidth < 1 {
		lineWidth = 1
	}
	if bracketLen < 1 {
		bracketLen = 1
	}

	corners := []image.Point{
		{X: box.Min.X, Y: box.Min.Y},
		{X: box.Max.X, Y: box.Min.Y},
		{X: box.Min.X, Y: box.Max.Y},
		{X: box.Max.X, Y: box.Max.Y},
	}
	for _, c := range corners {
		drawCorner(canvas, c, bracketLen, lineWidth, box)
	}
}

func drawCorner(canvas *image.RGBA, corner image.Point, length, width int, box image.Rectangle) {
	dx := 1
	if corner.X == box.Max.X {
		dx = -1
	}
	dy := 1
	if corner.Y == box.Max.Y {
		dy = -1
	}

	horiz := image.Rect(corner.X, corner.Y, corner.X+dx*length, corner.Y+dy*width)
	vert := image.Rect(corner.X, corner.Y, corner.X+dx*width, corner.Y+dy*length)
	fillRect(canvas, horiz)
	fillRect(canvas, vert)
}

func fillRect(canvas *image.RGBA, r image.Rectangle) {
	r = normalizeRect(r).Intersect(canvas.Bounds())
	if r.Empty() {
		return
	}
	draw.Draw(canvas, r, &image.Uniform{C: bracketColor}, image.Point{}, draw.Src)
}

func normalizeRect(r image.Rectangle) image.Rectangle {
	if r.Min.X > r.Max.X {
		r.Min.X, r.Max.X = r.Max.X, r.Min.X
	}
	if r.Min.Y > r.Max.Y {
		r.Min.Y, r.Max.Y = r.Max.Y, r.Min.Y
	}
	return r
}

func drawLabel(canvas *image.RGBA, box image.Rectangle, line1, line2 string, s float64) {
	if line1 == "" && line2 == "" {
		return
	}
	lines := []string{line1}
	if line2 != "" {
		lines = append(lines, line2)
	}

	fontHeight := int(9 * s)
	if fontHeight < 7 {
		fontHeight = 7
	}
	lineHeight := fontHeight + int(4*s)
	padding := int(3 * s)
	if padding < 1 {
		padding = 1
	}

	maxWidth := 0
	for _, l := range lines {
		w := len(l) * (fontHeight / 2)
		if w > maxWidth {
			maxWidth = w
		}
	}

	labelBox := image.Rect(box.Min.X, box.Min.Y-lineHeight*len(lines)-padding*2, box.Min.X+maxWidth+padding*2, box.Min.Y)
	labelBox = clampToCanvas(labelBox, canvas.Bounds())

	draw.Draw(canvas, labelBox, &image.Uniform{C: labelBackground}, image.Point{}, draw.Over)

	face := basicfont.Face7x13
	y := labelBox.Min.Y + padding + lineHeight/2
	for _, l := range lines {
		drawText(canvas, face, labelBox.Min.X+padding, y, l)
		y += lineHeight
	}
}

func clampToCanvas(r, canvas image.Rectangle) image.Rectangle {
	if r.Min.Y < canvas.Min.Y {
		height := r.Dy()
		r.Min.Y = canvas.Min.Y
		r.Max.Y = r.Min.Y + height
	}
	if r.Max.X > canvas.Max.X {
		width := r.Dx()
		r.Max.X = canvas.Max.X
		r.Min.X = r.Max.X - width
	}
	if r.Min.X < canvas.Min.X {
		r.Min.X = canvas.Min.X
	}
	return r.Intersect(canvas)
}

func drawText(canvas *image.RGBA, face font.Face, x, y int, text string) {
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// FormatLabel builds the two-line "{Category} {P%}" / "{Species Title}
// {P%}" label the contract specifies.
func FormatLabel(category string, detectionConfidence float64, species string, classificationConfidence float64) (categoryLine, speciesLine string) {
	categoryLine = fmt.Sprintf("%s %d%%", titleCase(category), int(detectionConfidence*100))
	if species == "" {
		return categoryLine, ""
	}
	speciesLine = fmt.Sprintf("%s %d%%", titleCase(species), int(classificationConfidence*100))
	return categoryLine, speciesLine
}

func titleCase(s string) string {
	words := strings.Split(strings.ReplaceAll(s, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
