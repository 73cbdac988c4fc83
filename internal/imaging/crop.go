package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/ar-anchor-mcp/internal/detection"
)

// EncodedImage is a PNG image ready for embedding in a tool result.
type EncodedImage struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// encodePNG wraps img as a base64 PNG.
func encodePNG(img image.Image) (*EncodedImage, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	b := img.Bounds()
	return &EncodedImage{
		Width:       b.Dx(),
		Height:      b.Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// PixelBounds converts a normalized detection box (bottom-left origin) into
// the pixel rectangle it covers in an image with the given bounds.
func PixelBounds(r detection.Rect, bounds image.Rectangle) image.Rectangle {
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	x1 := floor(r.X * w)
	x2 := ceil((r.X + r.Width) * w)
	y1 := floor((1 - r.Y - r.Height) * h)
	y2 := ceil((1 - r.Y) * h)
	return image.Rect(x1, y1, x2, y2).Add(bounds.Min).Intersect(bounds)
}

// floor and ceil ignore rounding noise from normalized arithmetic.
func floor(v float64) int { return int(math.Floor(v + 1e-9)) }
func ceil(v float64) int  { return int(math.Ceil(v - 1e-9)) }

// CropDetection extracts the region covered by a normalized detection box,
// optionally resized by scale.
func CropDetection(img image.Image, r detection.Rect, scale float64) (*EncodedImage, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid detection box %+v", r)
	}
	rect := PixelBounds(r, img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("detection box %+v covers no pixels", r)
	}

	cropped := imaging.Crop(img, rect)
	if scale != 1.0 && scale > 0 {
		newWidth := max(1, int(float64(cropped.Bounds().Dx())*scale))
		newHeight := max(1, int(float64(cropped.Bounds().Dy())*scale))
		cropped = imaging.Resize(cropped, newWidth, newHeight, imaging.Lanczos)
	}
	return encodePNG(cropped)
}
