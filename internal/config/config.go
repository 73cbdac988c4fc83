// Package config loads the anchoring configuration.
//
// Values are resolved in this order, later sources winning:
//
//  1. Built-in defaults
//  2. The YAML file passed to Load (optional)
//  3. ANCHOR_* environment variables, including those set by a .env file
//
// The result is validated before it is returned.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Detector backends.
const (
	DetectorShape  = "shape"
	DetectorRemote = "remote"
	DetectorOCR    = "ocr"
)

// Config is the full runtime configuration.
type Config struct {
	// Target is the container label searched for in detections.
	Target string `yaml:"target" validate:"required"`

	// Asset is the manifest or mesh placed at the detected location.
	Asset string `yaml:"asset" validate:"required"`

	Detection DetectionConfig `yaml:"detection"`
	Retry     RetryConfig     `yaml:"retry"`
	Placement PlacementConfig `yaml:"placement"`
	Raycast   RaycastConfig   `yaml:"raycast"`
	Log       LogConfig       `yaml:"log"`
}

// DetectionConfig selects and tunes the detector backend.
type DetectionConfig struct {
	Backend string `yaml:"backend" validate:"oneof=shape remote ocr"`

	// Model is the shape model artifact, required for the shape backend.
	Model string `yaml:"model" validate:"required_if=Backend shape"`

	// RemoteURL is the inference endpoint for the remote backend.
	RemoteURL string        `yaml:"remote_url" validate:"required_if=Backend remote,omitempty,url"`
	Timeout   time.Duration `yaml:"timeout" validate:"gte=0"`

	// MinConfidence applies to the OCR backend.
	MinConfidence float64 `yaml:"min_confidence" validate:"gte=0,lte=1"`
	Language      string  `yaml:"language"`
}

// RetryConfig bounds the detection loop.
type RetryConfig struct {
	Interval    time.Duration `yaml:"interval" validate:"gt=0"`
	MaxAttempts int           `yaml:"max_attempts" validate:"gte=0"`
	Timeout     time.Duration `yaml:"timeout" validate:"gte=0"`
}

// PlacementConfig tunes the anchor placer.
type PlacementConfig struct {
	MaxScale         float64 `yaml:"max_scale" validate:"gt=0"`
	DropHeight       float64 `yaml:"drop_height" validate:"gte=0"`
	DefaultFootprint float64 `yaml:"default_footprint" validate:"gt=0,lte=1"`
}

// RaycastConfig tunes the world locator.
type RaycastConfig struct {
	Alignment string   `yaml:"alignment" validate:"oneof=any horizontal vertical"`
	Targets   []string `yaml:"targets" validate:"dive,oneof=existing_plane existing_plane_infinite estimated_plane"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=trace debug info warn warning error"`
	File  string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Target: "bowl",
		Asset:  "assets/omelette.yaml",
		Detection: DetectionConfig{
			Backend:       DetectorShape,
			Model:         "models/cookdetect.yaml",
			Timeout:       5 * time.Second,
			MinConfidence: 0.3,
			Language:      "eng",
		},
		Retry: RetryConfig{
			Interval: 500 * time.Millisecond,
		},
		Placement: PlacementConfig{
			MaxScale:         1.0,
			DropHeight:       0.3,
			DefaultFootprint: 0.2,
		},
		Raycast: RaycastConfig{
			Alignment: "any",
			Targets:   []string{"existing_plane", "estimated_plane"},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (when
// path is non-empty), and the environment. A .env file in the working
// directory is read first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// applyEnv overlays ANCHOR_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"ANCHOR_TARGET":            &c.Target,
		"ANCHOR_ASSET":             &c.Asset,
		"ANCHOR_DETECTOR":          &c.Detection.Backend,
		"ANCHOR_MODEL":             &c.Detection.Model,
		"ANCHOR_REMOTE_URL":        &c.Detection.RemoteURL,
		"ANCHOR_OCR_LANGUAGE":      &c.Detection.Language,
		"ANCHOR_RAYCAST_ALIGNMENT": &c.Raycast.Alignment,
		"ANCHOR_MCP_LOG_LEVEL":     &c.Log.Level,
		"ANCHOR_MCP_LOG_FILE":      &c.Log.File,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"ANCHOR_RETRY_INTERVAL":   &c.Retry.Interval,
		"ANCHOR_TIMEOUT":          &c.Retry.Timeout,
		"ANCHOR_DETECTOR_TIMEOUT": &c.Detection.Timeout,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = d
		}
	}

	floats := map[string]*float64{
		"ANCHOR_MAX_SCALE":         &c.Placement.MaxScale,
		"ANCHOR_DROP_HEIGHT":       &c.Placement.DropHeight,
		"ANCHOR_DEFAULT_FOOTPRINT": &c.Placement.DefaultFootprint,
		"ANCHOR_MIN_CONFIDENCE":    &c.Detection.MinConfidence,
	}
	for key, dst := range floats {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = f
		}
	}

	if v, ok := lookup("ANCHOR_MAX_ATTEMPTS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ANCHOR_MAX_ATTEMPTS: %w", err)
		}
		c.Retry.MaxAttempts = n
	}
	if v, ok := lookup("ANCHOR_RAYCAST_TARGETS"); ok && v != "" {
		c.Raycast.Targets = nil
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				c.Raycast.Targets = append(c.Raycast.Targets, t)
			}
		}
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
	return nil
}
