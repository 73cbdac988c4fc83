package detection

import (
	"context"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRemoteDetector_Detect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s, want POST", r.Method)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file part: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"detections":[
			{"label":"pan","confidence":0.9,"box":{"x":0.4,"y":0.4,"width":0.2,"height":0.2}},
			{"label":"junk","confidence":0.5,"box":{"x":0.9,"y":0.9,"width":0.5,"height":0.5}}
		]}`))
	}))
	defer srv.Close()

	d := NewRemoteDetector(srv.URL, 0)
	dets, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("got %d detections, want 1 (invalid box dropped)", len(dets))
	}
	if dets[0].Label != "pan" || dets[0].BoundingBox.Width != 0.2 {
		t.Errorf("unexpected detection: %+v", dets[0])
	}
}

func TestRemoteDetector_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model warming up", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewRemoteDetector(srv.URL, 0).Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)))
	if err == nil {
		t.Error("expected error for non-200 status")
	}
}

func TestRemoteDetector_CheckHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := NewRemoteDetector(srv.URL+"/predict", 0).CheckHealth(context.Background()); err != nil {
		t.Errorf("CheckHealth failed: %v", err)
	}
	if err := NewRemoteDetector(srv.URL+"/other", 0).CheckHealth(context.Background()); err == nil {
		t.Error("expected unhealthy error")
	}
}
