package server

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/ar-anchor-mcp/internal/anchor"
	"github.com/ironsheep/ar-anchor-mcp/internal/app"
	"github.com/ironsheep/ar-anchor-mcp/internal/config"
	"github.com/ironsheep/ar-anchor-mcp/internal/detection"
	"github.com/ironsheep/ar-anchor-mcp/internal/imaging"
	"github.com/ironsheep/ar-anchor-mcp/internal/logging"
	"github.com/ironsheep/ar-anchor-mcp/internal/world"
)

// Camera looks straight down at (1,0,2) on a large floor.
const testSceneYAML = `
viewport: {width: 200, height: 400}
camera: {eye: [1, 1.5, 3.5], target: [1, 0, 2]}
planes:
  - {id: floor, center: [0, 0, 0], normal: [0, 1, 0], extent: [10, 10]}
`

var panDetection = detection.Detection{
	Label:       "pan",
	Confidence:  0.9,
	BoundingBox: detection.Rect{X: 0.4, Y: 0.4, Width: 0.2, Height: 0.2},
}

// newTestServer returns a server whose detector always reports dets.
func newTestServer(t *testing.T, dets ...detection.Detection) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Target = "pan"
	cfg.Retry.Interval = 5 * time.Millisecond
	c := &app.Components{
		Config: cfg,
		Detector: detection.DetectorFunc(func(ctx context.Context, img image.Image) ([]detection.Detection, error) {
			return dets, nil
		}),
		Asset:   &anchor.Asset{ID: "omelette", Source: "omelette.usdz", Extent: r3.Vector{X: 0.25, Y: 0.05, Z: 0.2}},
		Locator: world.NewLocator(world.AlignAny),
		Frames:  imaging.NewImageCache(),
		Log:     logrus.NewEntry(logging.Discard()),
	}
	s := New(c)
	t.Cleanup(s.Close)
	return s
}

func writeScene(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write scene: %v", err)
	}
	return path
}

// createTestImageFile creates a test image file and returns its path
func createTestImageFile(t *testing.T, width, height int, c color.Color) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	path := filepath.Join(t.TempDir(), "frame.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

// callTool invokes a tool through handleRequest and decodes the text
// content into out. It fails the test on a JSON-RPC error.
func callTool(t *testing.T, s *Server, name string, args map[string]interface{}, out interface{}) {
	t.Helper()
	resp := callToolRaw(t, s, name, args)
	if resp.Error != nil {
		t.Fatalf("%s: unexpected error: %+v", name, resp.Error)
	}
	result := resp.Result.(map[string]interface{})
	content := result["content"].([]map[string]interface{})
	text := content[0]["text"].(string)
	if out != nil {
		if err := json.Unmarshal([]byte(text), out); err != nil {
			t.Fatalf("%s: failed to decode %q: %v", name, text, err)
		}
	}
}

func callToolRaw(t *testing.T, s *Server, name string, args map[string]interface{}) *MCPResponse {
	t.Helper()
	params := map[string]interface{}{"name": name, "arguments": args}
	paramsJSON, _ := json.Marshal(params)
	resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: paramsJSON})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	return resp
}
