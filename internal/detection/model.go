package detection

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Shape names accepted in a model class.
const (
	ShapeCircle    = "circle"
	ShapeRectangle = "rectangle"
)

// Class maps one detectable shape to a label.
type Class struct {
	// Label is reported on every detection of this class (e.g. "pan").
	Label string `yaml:"label"`

	// Shape is "circle" or "rectangle".
	Shape string `yaml:"shape"`

	// MinSize and MaxSize bound the detection's longest side as a fraction
	// of the shorter image side.
	MinSize float64 `yaml:"min_size"`
	MaxSize float64 `yaml:"max_size"`
}

// accepts reports whether a shape of the given relative size belongs to c.
func (c Class) accepts(shape string, size float64) bool {
	return c.Shape == shape && size >= c.MinSize && size <= c.MaxSize
}

// Model is the bundled shape-class model artifact.
type Model struct {
	Name    string `yaml:"name"`
	Version int    `yaml:"version"`

	// InputSize is the longest image side after downscaling. Frames larger
	// than this are resized before inference.
	InputSize int `yaml:"input_size"`

	// MinConfidence drops weaker detections.
	MinConfidence float64 `yaml:"min_confidence"`

	// BlurRadius is the gaussian blur applied before edge extraction.
	BlurRadius float64 `yaml:"blur_radius"`

	// EdgeThreshold is the sobel magnitude (0-255) at which a pixel is an edge.
	EdgeThreshold uint8 `yaml:"edge_threshold"`

	// Rectangularity is the minimum contour score for rectangle classes.
	Rectangularity float64 `yaml:"rectangularity"`

	// Circularity is the minimum contour score for circle classes.
	Circularity float64 `yaml:"circularity"`

	Classes []Class `yaml:"classes"`
}

// Model defaults applied when a field is omitted.
const (
	DefaultInputSize      = 160
	DefaultBlurRadius     = 1.0
	DefaultEdgeThreshold  = 64
	DefaultRectangularity = 0.8
	DefaultCircularity    = 0.6
)

// LoadModel reads and validates a model artifact. Any failure wraps
// ErrModelLoad.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	return ParseModel(data)
}

// ParseModel decodes and validates a model artifact from YAML.
func ParseModel(data []byte) (*Model, error) {
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrModelLoad, err)
	}
	m.applyDefaults()
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	return &m, nil
}

func (m *Model) applyDefaults() {
	if m.InputSize == 0 {
		m.InputSize = DefaultInputSize
	}
	if m.BlurRadius == 0 {
		m.BlurRadius = DefaultBlurRadius
	}
	if m.EdgeThreshold == 0 {
		m.EdgeThreshold = DefaultEdgeThreshold
	}
	if m.Rectangularity == 0 {
		m.Rectangularity = DefaultRectangularity
	}
	if m.Circularity == 0 {
		m.Circularity = DefaultCircularity
	}
	for i := range m.Classes {
		m.Classes[i].Shape = strings.ToLower(m.Classes[i].Shape)
	}
}

func (m *Model) validate() error {
	if len(m.Classes) == 0 {
		return fmt.Errorf("model %q has no classes", m.Name)
	}
	if m.InputSize < 16 {
		return fmt.Errorf("input_size %d too small", m.InputSize)
	}
	for _, c := range m.Classes {
		if c.Label == "" {
			return fmt.Errorf("class with empty label")
		}
		if c.Shape != ShapeCircle && c.Shape != ShapeRectangle {
			return fmt.Errorf("class %q: unknown shape %q", c.Label, c.Shape)
		}
		if c.MinSize <= 0 || c.MaxSize < c.MinSize || c.MaxSize > 1 {
			return fmt.Errorf("class %q: invalid size range [%v,%v]", c.Label, c.MinSize, c.MaxSize)
		}
	}
	return nil
}

// classify returns the first class accepting the shape and relative size.
func (m *Model) classify(shape string, size float64) (Class, bool) {
	for _, c := range m.Classes {
		if c.accepts(shape, size) {
			return c, true
		}
	}
	return Class{}, false
}

// sizeRange returns the smallest and largest relative size over all classes
// of the given shape.
func (m *Model) sizeRange(shape string) (lo, hi float64, ok bool) {
	for _, c := range m.Classes {
		if c.Shape != shape {
			continue
		}
		if !ok || c.MinSize < lo {
			lo = c.MinSize
		}
		if !ok || c.MaxSize > hi {
			hi = c.MaxSize
		}
		ok = true
	}
	return lo, hi, ok
}
