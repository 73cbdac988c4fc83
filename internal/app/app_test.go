package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/ar-anchor-mcp/internal/anchor"
	"github.com/ironsheep/ar-anchor-mcp/internal/config"
	"github.com/ironsheep/ar-anchor-mcp/internal/detection"
	"github.com/ironsheep/ar-anchor-mcp/internal/logging"
	"github.com/ironsheep/ar-anchor-mcp/internal/ocr"
	"github.com/ironsheep/ar-anchor-mcp/internal/session"
	"github.com/ironsheep/ar-anchor-mcp/internal/world"
)

const (
	testModel = `
name: cookdetect
classes:
  - {label: bowl, shape: circle, min_size: 0.1, max_size: 0.5}
`
	testAsset = "id: omelette\nmodel: omelette.usdz\nextent: [0.25, 0.05, 0.2]\n"
	testScene = `
viewport: {width: 200, height: 400}
camera: {eye: [1, 1.5, 3.5], target: [1, 0, 2]}
planes:
  - {id: floor, center: [0, 0, 0], normal: [0, 1, 0], extent: [10, 10]}
`
)

func writeFixtures(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{"model.yaml": testModel, "omelette.yaml": testAsset, "scene.yaml": testScene}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfg := config.Default()
	cfg.Detection.Model = filepath.Join(dir, "model.yaml")
	cfg.Asset = filepath.Join(dir, "omelette.yaml")
	cfg.Retry.Interval = 5 * time.Millisecond
	return cfg, filepath.Join(dir, "scene.yaml")
}

func quiet() *logrus.Entry {
	return logrus.NewEntry(logging.Discard())
}

func TestBuild_ConfigurationErrors(t *testing.T) {
	cfg, _ := writeFixtures(t)

	missingModel := *cfg
	missingModel.Detection.Model = filepath.Join(t.TempDir(), "none.yaml")
	if _, err := Build(&missingModel, nil, quiet()); !errors.Is(err, detection.ErrModelLoad) {
		t.Errorf("missing model: got %v, want ErrModelLoad", err)
	}

	missingAsset := *cfg
	missingAsset.Asset = filepath.Join(t.TempDir(), "none.yaml")
	if _, err := Build(&missingAsset, nil, quiet()); !errors.Is(err, anchor.ErrAssetLoad) {
		t.Errorf("missing asset: got %v, want ErrAssetLoad", err)
	}
}

func TestNewDetector_Backends(t *testing.T) {
	cfg, _ := writeFixtures(t)

	d, err := NewDetector(cfg.Detection)
	if err != nil {
		t.Fatalf("shape: %v", err)
	}
	if _, ok := d.(*detection.ShapeDetector); !ok {
		t.Errorf("shape backend = %T", d)
	}

	remote := cfg.Detection
	remote.Backend = config.DetectorRemote
	remote.RemoteURL = "http://localhost:9/predict"
	if d, err := NewDetector(remote); err != nil {
		t.Errorf("remote: %v", err)
	} else if _, ok := d.(*detection.RemoteDetector); !ok {
		t.Errorf("remote backend = %T", d)
	}

	bad := cfg.Detection
	bad.Backend = "magic"
	if _, err := NewDetector(bad); !errors.Is(err, detection.ErrModelLoad) {
		t.Errorf("unknown backend: got %v", err)
	}
}

func TestNewDetector_OCR(t *testing.T) {
	cfg, _ := writeFixtures(t)
	label := cfg.Detection
	label.Backend = config.DetectorOCR

	d, err := NewDetector(label)
	if err != nil {
		if !errors.Is(err, detection.ErrModelLoad) {
			t.Fatalf("ocr: got %v, want ErrModelLoad", err)
		}
		t.Skipf("Tesseract not available: %v", err)
	}
	if _, ok := d.(*ocr.LabelDetector); !ok {
		t.Errorf("ocr backend = %T", d)
	}
	c := &Components{Detector: d}
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestBuild_UnknownOCRLanguageFails(t *testing.T) {
	cfg, _ := writeFixtures(t)
	cfg.Detection.Backend = config.DetectorOCR
	cfg.Detection.Language = "no-such-language"

	if _, err := Build(cfg, nil, quiet()); !errors.Is(err, detection.ErrModelLoad) {
		t.Errorf("got %v, want ErrModelLoad", err)
	}
}

func TestNewLocator(t *testing.T) {
	loc, err := NewLocator(config.RaycastConfig{Alignment: "horizontal", Targets: []string{"estimated_plane"}})
	if err != nil {
		t.Fatalf("NewLocator: %v", err)
	}
	if loc.Alignment != world.AlignHorizontal || len(loc.Targets) != 1 || loc.Targets[0] != world.EstimatedPlane {
		t.Errorf("locator = %+v", loc)
	}
	if _, err := NewLocator(config.RaycastConfig{Targets: []string{"mesh"}}); err == nil {
		t.Error("expected error for unknown target")
	}
}

func TestPlaceOnce_BlankFrameFallsBackToCenter(t *testing.T) {
	cfg, scenePath := writeFixtures(t)
	c, err := Build(cfg, nil, quiet())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, scene, err := c.PlaceOnce(ctx, scenePath, session.Options{})
	if err != nil {
		t.Fatalf("PlaceOnce: %v", err)
	}
	if res.State != session.Placed {
		t.Fatalf("state = %v, want placed", res.State)
	}
	if !res.Placement.Fallback {
		t.Error("blank frame should use the center fallback")
	}
	if scene.Len() != 1 {
		t.Fatalf("scene has %d anchors, want 1", scene.Len())
	}
	got := scene.Anchors()[0].Transform.Translation
	if got.Sub(r3.Vector{X: 1, Y: 0, Z: 2}).Norm() > 1e-6 {
		t.Errorf("anchor at %v, want (1,0,2)", got)
	}
}

func TestPlaceOnce_NoSurfaceFails(t *testing.T) {
	cfg, _ := writeFixtures(t)
	cfg.Retry.MaxAttempts = 2
	scenePath := filepath.Join(t.TempDir(), "sky.yaml")
	os.WriteFile(scenePath, []byte("viewport: {width: 10, height: 10}\ncamera: {eye: [0,1,0], target: [0,2,-1]}\n"), 0o644)

	c, err := Build(cfg, nil, quiet())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	res, scene, err := c.PlaceOnce(context.Background(), scenePath, session.Options{})
	if !errors.Is(err, session.ErrPlacementFailed) {
		t.Fatalf("err = %v, want ErrPlacementFailed", err)
	}
	if res.Attempts != 2 || scene.Len() != 0 {
		t.Errorf("attempts = %d, anchors = %d", res.Attempts, scene.Len())
	}
}
