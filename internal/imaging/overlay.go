package imaging

import (
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/ar-anchor-mcp/internal/detection"
	"github.com/ironsheep/ar-anchor-mcp/internal/geom"
)

// markerColor is used for the candidate crosshair.
var markerColor = color.RGBA{255, 255, 255, 255}

// LabelColor returns a stable, saturated color for a detection label.
func LabelColor(label string) color.RGBA {
	h := fnv.New32a()
	h.Write([]byte(label))
	hue := float64(h.Sum32() % 360)
	r, g, b := colorful.Hcl(hue, 0.8, 0.6).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// Overlay draws every detection box onto a copy of img, colored by label,
// and a crosshair at marker when it is non-nil. marker is a normalized point
// (bottom-left origin), typically a candidate converted with
// detection.ScreenToNormalized.
func Overlay(img image.Image, dets []detection.Detection, marker *geom.Point2) (*EncodedImage, error) {
	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, img, bounds.Min, draw.Src)

	for _, d := range dets {
		drawBox(out, PixelBounds(d.BoundingBox, bounds), LabelColor(d.Label))
	}

	if marker != nil {
		x := bounds.Min.X + int(marker.X*float64(bounds.Dx()))
		y := bounds.Min.Y + int((1-marker.Y)*float64(bounds.Dy()))
		drawCrosshair(out, x, y, 5, markerColor)
	}

	return encodePNG(out)
}

// drawBox draws a 2-pixel outline just inside r.
func drawBox(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	if r.Empty() {
		return
	}
	for t := 0; t < 2; t++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			setClipped(img, x, r.Min.Y+t, c)
			setClipped(img, x, r.Max.Y-1-t, c)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			setClipped(img, r.Min.X+t, y, c)
			setClipped(img, r.Max.X-1-t, y, c)
		}
	}
}

func drawCrosshair(img *image.RGBA, x, y, size int, c color.RGBA) {
	for d := -size; d <= size; d++ {
		setClipped(img, x+d, y, c)
		setClipped(img, x, y+d, c)
	}
}

func setClipped(img *image.RGBA, x, y int, c color.RGBA) {
	if (image.Point{X: x, Y: y}).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}
