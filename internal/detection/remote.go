package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// RemoteDetector delegates inference to an HTTP service that accepts a
// multipart "file" upload and answers with normalized detections:
//
//	{"detections": [{"label": "pan", "confidence": 0.9,
//	                 "box": {"x": 0.4, "y": 0.4, "width": 0.2, "height": 0.2}}]}
type RemoteDetector struct {
	url    string
	client *http.Client
}

// NewRemoteDetector creates a detector posting to url. A zero timeout
// defaults to 5 seconds.
func NewRemoteDetector(url string, timeout time.Duration) *RemoteDetector {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &RemoteDetector{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type remoteDetection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Rect    `json:"box"`
}

// Detect encodes img as PNG and posts it to the inference service.
func (d *RemoteDetector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "frame.png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := png.Encode(part, img); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Detections []remoteDetection `json:"detections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	dets := make([]Detection, 0, len(result.Detections))
	for _, r := range result.Detections {
		if !r.Box.Valid() {
			continue
		}
		dets = append(dets, Detection{Label: r.Label, Confidence: r.Confidence, BoundingBox: r.Box})
	}
	return dets, nil
}

// CheckHealth queries <url>/health.
func (d *RemoteDetector) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(d.url, "/")+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: %d", resp.StatusCode)
	}
	return nil
}
