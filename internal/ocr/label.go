package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/ironsheep/ar-anchor-mcp/internal/detection"
)

// DefaultLanguage is used when a LabelDetector has no language configured.
const DefaultLanguage = "eng"

// word is a recognized word in pixel coordinates.
type word struct {
	Text       string
	Confidence float64 // 0-100 as reported by tesseract
	Box        image.Rectangle
}

// engine is the part of the tesseract client a LabelDetector drives.
type engine interface {
	SetImageFromBytes(data []byte) error
	GetBoundingBoxes(level gosseract.PageIteratorLevel) ([]gosseract.BoundingBox, error)
	Text() (string, error)
	Close() error
}

// newEngine opens a tesseract client for language.
var newEngine = func(language string) (engine, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage(language); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// LabelDetector implements detection.Detector with word-level OCR.
//
// The tesseract client and its language data are loaded once by
// NewLabelDetector. Detect calls are serialized on that client, so one
// detector can serve several sessions.
type LabelDetector struct {
	// Language is the tesseract language code, e.g. "eng".
	Language string

	// MinConfidence drops words below this confidence (0.0 to 1.0).
	MinConfidence float64

	mu     sync.Mutex
	client engine
}

// NewLabelDetector loads the tesseract language data and returns a ready
// detector. A missing engine or language fails here with an error wrapping
// detection.ErrModelLoad.
func NewLabelDetector(language string, minConfidence float64) (*LabelDetector, error) {
	if language == "" {
		language = DefaultLanguage
	}
	client, err := newEngine(language)
	if err != nil {
		return nil, fmt.Errorf("%w: tesseract %q: %v", detection.ErrModelLoad, language, err)
	}
	// Tesseract loads language data lazily, on the first recognition.
	if err := warmUp(client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: tesseract %q: %v", detection.ErrModelLoad, language, err)
	}
	return &LabelDetector{Language: language, MinConfidence: minConfidence, client: client}, nil
}

// warmUp runs one recognition over a blank tile.
func warmUp(client engine) error {
	tile := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range tile.Pix {
		tile.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, tile); err != nil {
		return err
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return err
	}
	_, err := client.Text()
	return err
}

// Close releases the tesseract client.
func (d *LabelDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}

// Detect runs OCR over img and returns one detection per recognized word.
func (d *LabelDetector) Detect(ctx context.Context, img image.Image) ([]detection.Detection, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.client == nil {
		return nil, fmt.Errorf("%w: label detector closed", detection.ErrModelLoad)
	}
	if err := d.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}
	boxes, err := d.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	words := make([]word, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, word{Text: b.Word, Confidence: b.Confidence, Box: b.Box})
	}
	return toDetections(words, img.Bounds(), d.MinConfidence), nil
}

// toDetections converts pixel-space words inside bounds into normalized
// detections, skipping blank words and words below minConfidence.
func toDetections(words []word, bounds image.Rectangle, minConfidence float64) []detection.Detection {
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	dets := make([]detection.Detection, 0, len(words))
	if w <= 0 || h <= 0 {
		return dets
	}

	for _, wd := range words {
		text := strings.TrimSpace(wd.Text)
		if text == "" {
			continue
		}
		conf := wd.Confidence / 100.0
		if conf < minConfidence {
			continue
		}
		r := wd.Box.Intersect(bounds)
		if r.Empty() {
			continue
		}
		dets = append(dets, detection.Detection{
			Label:      text,
			Confidence: conf,
			BoundingBox: detection.Rect{
				X:      float64(r.Min.X-bounds.Min.X) / w,
				Y:      1 - float64(r.Max.Y-bounds.Min.Y)/h,
				Width:  float64(r.Dx()) / w,
				Height: float64(r.Dy()) / h,
			},
		})
	}
	return dets
}
