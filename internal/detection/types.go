package detection

import (
	"errors"
	"math"

	"github.com/ironsheep/ar-anchor-mcp/internal/geom"
)

var (
	// ErrModelLoad marks a bundled model that could not be loaded.
	ErrModelLoad = errors.New("detection model unavailable")

	// ErrBusy is returned by Runner.Submit while an inference is in flight.
	ErrBusy = errors.New("inference already in flight")
)

// Rect is a normalized bounding box. X and Y locate the bottom-left corner,
// all values are in [0,1] relative to the image.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Mid returns the box center in normalized coordinates.
func (r Rect) Mid() geom.Point2 {
	return geom.Point2{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// MaxSide returns the larger of width and height.
func (r Rect) MaxSide() float64 {
	return math.Max(r.Width, r.Height)
}

// Valid reports whether the box has positive size and lies inside [0,1].
func (r Rect) Valid() bool {
	return r.Width > 0 && r.Height > 0 &&
		r.X >= 0 && r.Y >= 0 &&
		r.X+r.Width <= 1+1e-9 && r.Y+r.Height <= 1+1e-9
}

// Detection is one labeled object found in a frame.
type Detection struct {
	Label       string  `json:"label"`
	Confidence  float64 `json:"confidence"`
	BoundingBox Rect    `json:"bounding_box"`
}

// NormalizedToScreen converts a normalized image point (bottom-left origin)
// to a screen point on a view of the given size (top-left origin).
func NormalizedToScreen(p geom.Point2, view geom.Size) geom.Point2 {
	return geom.Point2{
		X: p.X * view.Width,
		Y: (1 - p.Y) * view.Height,
	}
}

// ScreenToNormalized is the inverse of NormalizedToScreen.
func ScreenToNormalized(p geom.Point2, view geom.Size) geom.Point2 {
	return geom.Point2{
		X: p.X / view.Width,
		Y: 1 - p.Y/view.Height,
	}
}

// pixelRect converts a pixel-space box (top-left origin, exclusive max) in an
// image of w × h pixels into a normalized Rect.
func pixelRect(x1, y1, x2, y2, w, h int) Rect {
	fw, fh := float64(w), float64(h)
	return Rect{
		X:      float64(x1) / fw,
		Y:      1 - float64(y2)/fh,
		Width:  float64(x2-x1) / fw,
		Height: float64(y2-y1) / fh,
	}
}
