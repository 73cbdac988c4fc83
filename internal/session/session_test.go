package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/ar-anchor-mcp/internal/anchor"
	"github.com/ironsheep/ar-anchor-mcp/internal/detection"
	"github.com/ironsheep/ar-anchor-mcp/internal/geom"
	"github.com/ironsheep/ar-anchor-mcp/internal/render"
	"github.com/ironsheep/ar-anchor-mcp/internal/world"
)

var testView = geom.Size{Width: 400, Height: 800}

// stubSource hands out a blank frame and answers ray casts with hit.
type stubSource struct {
	mu      sync.Mutex
	noFrame int
	hit     func(q world.RaycastQuery) (world.WorldPoint, bool)
	queries []world.RaycastQuery
	frames  int
}

func (s *stubSource) CurrentFrame() (*world.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	if s.noFrame > 0 {
		s.noFrame--
		return nil, false
	}
	return &world.Frame{Seq: uint64(s.frames), Image: image.NewGray(image.Rect(0, 0, 4, 8))}, true
}

func (s *stubSource) Raycast(q world.RaycastQuery) (world.WorldPoint, bool) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	hit := s.hit
	s.mu.Unlock()
	if hit == nil {
		return world.WorldPoint{}, false
	}
	return hit(q)
}

func (s *stubSource) lastQuery() world.RaycastQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries[len(s.queries)-1]
}

func hitAt(p r3.Vector) func(world.RaycastQuery) (world.WorldPoint, bool) {
	return func(q world.RaycastQuery) (world.WorldPoint, bool) {
		return world.WorldPoint{Position: p, Normal: geom.AxisY, Target: q.Target}, true
	}
}

func returns(dets ...detection.Detection) detection.DetectorFunc {
	return func(ctx context.Context, img image.Image) ([]detection.Detection, error) {
		return dets, nil
	}
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fixture struct {
	source *stubSource
	scene  *anchor.Scene
	loop   *render.Loop
	placer *anchor.Placer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	placer, err := anchor.NewPlacer(&anchor.Asset{ID: "omelette", Extent: r3.Vector{X: 0.25, Y: 0.05, Z: 0.2}})
	if err != nil {
		t.Fatalf("NewPlacer: %v", err)
	}
	loop := render.NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
	})
	return &fixture{source: &stubSource{}, scene: anchor.NewScene(), loop: loop, placer: placer}
}

func (f *fixture) start(t *testing.T, d detection.Detector, opts Options) *Session {
	t.Helper()
	if opts.RetryInterval == 0 {
		opts.RetryInterval = 5 * time.Millisecond
	}
	s, err := New(Deps{
		Source:   f.source,
		Locator:  world.NewLocator(world.AlignAny),
		Placer:   f.placer,
		Detector: d,
		Logger:   quietLogger(),
	}, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background(), Surface{Bounds: testView, Scene: f.scene, Render: f.loop}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s
}

func wait(t *testing.T, s *Session) (Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := s.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("session did not finish, state %v", s.State())
	}
	return res, err
}

func TestSession_PanDetectionPlacesAnchor(t *testing.T) {
	f := newFixture(t)
	f.source.hit = hitAt(r3.Vector{X: 1, Y: 0, Z: 2})
	pan := detection.Detection{Label: "pan", Confidence: 0.9, BoundingBox: detection.Rect{X: 0.4, Y: 0.4, Width: 0.2, Height: 0.2}}

	s := f.start(t, returns(pan), Options{TargetLabel: "pan"})
	res, err := wait(t, s)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if res.State != Placed || s.State() != Placed {
		t.Fatalf("state = %v, want placed", res.State)
	}
	if f.scene.Len() != 1 {
		t.Fatalf("scene has %d anchors, want 1", f.scene.Len())
	}
	a := f.scene.Anchors()[0]
	if a.Transform.Translation != (r3.Vector{X: 1, Y: 0, Z: 2}) {
		t.Errorf("anchor at %v, want (1,0,2)", a.Transform.Translation)
	}
	if a.Entity.Local.Translation != (r3.Vector{Y: anchor.DefaultDropHeight}) {
		t.Errorf("entity offset = %v, want drop height", a.Entity.Local.Translation)
	}
	if a.Entity.Scale > f.placer.MaxScale {
		t.Errorf("scale %v exceeds max %v", a.Entity.Scale, f.placer.MaxScale)
	}
	if res.Placement == nil || res.Placement.Fallback {
		t.Errorf("placement = %+v, want footprint from detection", res.Placement)
	}
	if math.Abs(res.Placement.FootprintSide-0.2) > 1e-9 {
		t.Errorf("FootprintSide = %v, want 0.2", res.Placement.FootprintSide)
	}

	// Box center (0.5, 0.5) maps to the view center.
	if q := f.source.lastQuery(); q.Point != (geom.Point2{X: 200, Y: 400}) {
		t.Errorf("ray cast from %v, want (200,400)", q.Point)
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", res.Attempts)
	}
}

func TestSession_InvertedYCandidate(t *testing.T) {
	f := newFixture(t)
	f.source.hit = hitAt(r3.Vector{})
	bowl := detection.Detection{Label: "Mixing BOWL", Confidence: 0.7, BoundingBox: detection.Rect{X: 0.1, Y: 0.7, Width: 0.2, Height: 0.2}}

	res, err := wait(t, f.start(t, returns(bowl), Options{TargetLabel: "bowl"}))
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	want := geom.Point2{X: 0.2 * 400, Y: (1 - 0.8) * 800}
	got := res.Candidate.Point
	if math.Abs(got.X-want.X) > 1e-9 || math.Abs(got.Y-want.Y) > 1e-9 {
		t.Errorf("candidate = %v, want %v", got, want)
	}
}

func TestSession_ZeroDetectionsUsesCenter(t *testing.T) {
	f := newFixture(t)
	f.source.hit = hitAt(r3.Vector{X: 0.5, Z: -1})

	res, err := wait(t, f.start(t, returns(), Options{TargetLabel: "bowl"}))
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if q := f.source.lastQuery(); q.Point != testView.Center() {
		t.Errorf("ray cast from %v, want exact center %v", q.Point, testView.Center())
	}
	if !res.Candidate.Fallback {
		t.Error("candidate should be a fallback")
	}
	if !res.Placement.Fallback || res.Placement.FootprintSide != anchor.DefaultFootprint {
		t.Errorf("placement = %+v, want default footprint", res.Placement)
	}
	if f.scene.Len() != 1 {
		t.Errorf("scene has %d anchors, want 1", f.scene.Len())
	}
}

func TestSession_FailedRayCastRetriesAfterDelay(t *testing.T) {
	f := newFixture(t)
	interval := 40 * time.Millisecond

	var mu sync.Mutex
	var calls []time.Time
	detector := detection.DetectorFunc(func(ctx context.Context, img image.Image) ([]detection.Detection, error) {
		mu.Lock()
		calls = append(calls, time.Now())
		n := len(calls)
		mu.Unlock()
		if n >= 2 {
			f.source.mu.Lock()
			f.source.hit = hitAt(r3.Vector{X: 1})
			f.source.mu.Unlock()
		}
		return []detection.Detection{{Label: "pan", Confidence: 0.9, BoundingBox: detection.Rect{X: 0.4, Y: 0.4, Width: 0.2, Height: 0.2}}}, nil
	})

	var statesMu sync.Mutex
	var states []State
	s := f.start(t, detector, Options{
		TargetLabel:   "pan",
		RetryInterval: interval,
		OnTransition: func(st State) {
			statesMu.Lock()
			states = append(states, st)
			statesMu.Unlock()
		},
	})
	res, err := wait(t, s)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if res.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", res.Attempts)
	}
	mu.Lock()
	gap := calls[1].Sub(calls[0])
	mu.Unlock()
	if gap < interval {
		t.Errorf("retry after %v, want at least %v", gap, interval)
	}

	statesMu.Lock()
	defer statesMu.Unlock()
	want := []State{Detecting, Retrying, Detecting, Placed}
	if fmt.Sprint(states) != fmt.Sprint(want) {
		t.Errorf("transitions = %v, want %v", states, want)
	}
}

func TestSession_NoFrameRetries(t *testing.T) {
	f := newFixture(t)
	f.source.noFrame = 2
	f.source.hit = hitAt(r3.Vector{})

	res, err := wait(t, f.start(t, returns(), Options{}))
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
}

func TestSession_InferenceErrorIsTransient(t *testing.T) {
	f := newFixture(t)
	f.source.hit = hitAt(r3.Vector{})
	var n atomic.Int32
	detector := detection.DetectorFunc(func(ctx context.Context, img image.Image) ([]detection.Detection, error) {
		if n.Add(1) == 1 {
			return nil, errors.New("model returned no results")
		}
		return nil, nil
	})

	res, err := wait(t, f.start(t, detector, Options{}))
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res.State != Placed || res.Attempts != 2 {
		t.Errorf("result = %v after %d attempts, want placed after 2", res.State, res.Attempts)
	}
}

func TestSession_ModelLoadErrorIsFatal(t *testing.T) {
	f := newFixture(t)
	f.source.hit = hitAt(r3.Vector{})
	detector := detection.DetectorFunc(func(ctx context.Context, img image.Image) ([]detection.Detection, error) {
		return nil, fmt.Errorf("%w: weights missing", detection.ErrModelLoad)
	})

	res, err := wait(t, f.start(t, detector, Options{}))
	if !errors.Is(err, detection.ErrModelLoad) {
		t.Fatalf("err = %v, want ErrModelLoad", err)
	}
	if res.State != Failed || res.Attempts != 1 {
		t.Errorf("result = %v after %d attempts, want failed after 1", res.State, res.Attempts)
	}
	if f.scene.Len() != 0 {
		t.Error("no anchor should be placed")
	}
}

func TestSession_NoOverlappingInference(t *testing.T) {
	f := newFixture(t)
	f.source.hit = hitAt(r3.Vector{})

	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	detector := detection.DetectorFunc(func(ctx context.Context, img image.Image) ([]detection.Detection, error) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
		return nil, nil
	})

	s := f.start(t, detector, Options{RetryInterval: time.Millisecond})
	<-entered
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("%d inference calls while the first was outstanding, want 1", got)
	}
	if s.State() != Detecting {
		t.Errorf("state = %v, want detecting", s.State())
	}

	close(release)
	if _, err := wait(t, s); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestSession_LateCallbackAfterCancel(t *testing.T) {
	f := newFixture(t)
	f.source.hit = hitAt(r3.Vector{X: 1, Z: 2})

	entered := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})
	detector := detection.DetectorFunc(func(ctx context.Context, img image.Image) ([]detection.Detection, error) {
		defer close(finished)
		close(entered)
		<-release
		return []detection.Detection{{Label: "bowl", Confidence: 1, BoundingBox: detection.Rect{X: 0.4, Y: 0.4, Width: 0.2, Height: 0.2}}}, nil
	})

	s := f.start(t, detector, Options{TargetLabel: "bowl"})
	<-entered
	s.Cancel()

	res, err := wait(t, s)
	if !errors.Is(err, ErrCancelled) || res.State != Cancelled {
		t.Fatalf("result = %v, %v; want cancelled", res.State, err)
	}

	// Let the inference complete after teardown.
	close(release)
	<-finished
	time.Sleep(20 * time.Millisecond)
	f.loop.Do(context.Background(), func() {})

	if f.scene.Len() != 0 {
		t.Errorf("late callback mutated the scene: %d anchors", f.scene.Len())
	}
	if s.State() != Cancelled {
		t.Errorf("state = %v after late callback, want cancelled", s.State())
	}
}

func TestSession_CommitAfterCancelIsDiscarded(t *testing.T) {
	f := newFixture(t)

	// Hold the render context so the commit queues behind it.
	block := make(chan struct{})
	f.loop.Post(func() { <-block })

	located := make(chan struct{})
	var once sync.Once
	f.source.hit = func(q world.RaycastQuery) (world.WorldPoint, bool) {
		once.Do(func() { close(located) })
		return world.WorldPoint{Position: r3.Vector{X: 1}}, true
	}

	s := f.start(t, returns(), Options{})
	<-located
	s.Cancel()
	if _, err := wait(t, s); !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}

	close(block)
	f.loop.Do(context.Background(), func() {})
	if f.scene.Len() != 0 {
		t.Errorf("scene has %d anchors after cancel, want 0", f.scene.Len())
	}
}

func TestSession_MaxAttempts(t *testing.T) {
	f := newFixture(t)

	res, err := wait(t, f.start(t, returns(), Options{MaxAttempts: 3, RetryInterval: time.Millisecond}))
	if !errors.Is(err, ErrPlacementFailed) {
		t.Fatalf("err = %v, want ErrPlacementFailed", err)
	}
	if res.State != Failed || res.Attempts != 3 {
		t.Errorf("result = %v after %d attempts, want failed after 3", res.State, res.Attempts)
	}
}

func TestSession_Timeout(t *testing.T) {
	f := newFixture(t)

	res, err := wait(t, f.start(t, returns(), Options{Timeout: 30 * time.Millisecond, RetryInterval: 5 * time.Millisecond}))
	if !errors.Is(err, ErrPlacementFailed) {
		t.Fatalf("err = %v, want ErrPlacementFailed", err)
	}
	if res.State != Failed {
		t.Errorf("state = %v, want failed", res.State)
	}
}

func TestSession_ParentContextCancel(t *testing.T) {
	f := newFixture(t)
	s, err := New(Deps{Source: f.source, Locator: world.NewLocator(world.AlignAny), Placer: f.placer, Detector: returns(), Logger: quietLogger()}, Options{RetryInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx, Surface{Bounds: testView, Scene: f.scene, Render: f.loop}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	if _, err := wait(t, s); !errors.Is(err, ErrCancelled) {
		t.Errorf("err = %v, want ErrCancelled", err)
	}
}

func TestSession_StartTwiceAndCancelBeforeStart(t *testing.T) {
	f := newFixture(t)
	f.source.hit = hitAt(r3.Vector{})
	s := f.start(t, returns(), Options{})
	if err := s.Start(context.Background(), Surface{Bounds: testView, Scene: f.scene, Render: f.loop}); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
	wait(t, s)
	s.Cancel()
	if s.State() != Placed {
		t.Errorf("Cancel after placement changed state to %v", s.State())
	}

	idle, err := New(Deps{Source: f.source, Locator: world.NewLocator(world.AlignAny), Placer: f.placer, Detector: returns()}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if idle.State() != Idle {
		t.Errorf("new session state = %v, want idle", idle.State())
	}
	idle.Cancel()
	select {
	case <-idle.Done():
	default:
		t.Fatal("Done should be closed after cancelling an idle session")
	}
	if err := idle.Start(context.Background(), Surface{Bounds: testView, Scene: f.scene, Render: f.loop}); !errors.Is(err, ErrCancelled) {
		t.Errorf("Start after Cancel = %v, want ErrCancelled", err)
	}
}

func TestNew_Validation(t *testing.T) {
	f := newFixture(t)
	loc := world.NewLocator(world.AlignAny)
	tests := []struct {
		name string
		deps Deps
		opts Options
	}{
		{"no source", Deps{Locator: loc, Placer: f.placer, Detector: returns()}, Options{}},
		{"no locator", Deps{Source: f.source, Placer: f.placer, Detector: returns()}, Options{}},
		{"no placer", Deps{Source: f.source, Locator: loc, Detector: returns()}, Options{}},
		{"no detector", Deps{Source: f.source, Locator: loc, Placer: f.placer}, Options{}},
		{"negative attempts", Deps{Source: f.source, Locator: loc, Placer: f.placer, Detector: returns()}, Options{MaxAttempts: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps, tt.opts); err == nil {
				t.Error("expected error")
			}
		})
	}

	s, err := New(Deps{Source: f.source, Locator: loc, Placer: f.placer, Detector: returns()}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.ID() == "" {
		t.Error("ID should be generated")
	}
	if s.opts.RetryInterval != DefaultRetryInterval {
		t.Errorf("RetryInterval = %v, want %v", s.opts.RetryInterval, DefaultRetryInterval)
	}
	if err := s.Start(context.Background(), Surface{Bounds: geom.Size{}, Scene: f.scene, Render: f.loop}); err == nil {
		t.Error("Start with empty bounds should fail")
	}
}

func TestStateString(t *testing.T) {
	for st, want := range map[State]string{Idle: "idle", Detecting: "detecting", Retrying: "retrying", Placed: "placed", Failed: "failed", Cancelled: "cancelled"} {
		if st.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(st), st.String(), want)
		}
	}
	if Retrying.Terminal() || !Placed.Terminal() || !Cancelled.Terminal() {
		t.Error("Terminal is wrong")
	}
}
