package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/ar-anchor-mcp/internal/anchor"
	"github.com/ironsheep/ar-anchor-mcp/internal/detection"
	"github.com/ironsheep/ar-anchor-mcp/internal/geom"
	"github.com/ironsheep/ar-anchor-mcp/internal/world"
)

var (
	// ErrCancelled is the result error of a cancelled session.
	ErrCancelled = errors.New("anchoring cancelled")

	// ErrPlacementFailed is the result error of a session that gave up.
	ErrPlacementFailed = errors.New("placement failed")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("session already started")
)

// DefaultRetryInterval is the delay between attempts.
const DefaultRetryInterval = 500 * time.Millisecond

// RenderContext runs scene mutations on the rendering goroutine.
// *render.Loop implements it.
type RenderContext interface {
	Do(ctx context.Context, fn func()) error
}

// Surface is the rendering surface a session places onto.
type Surface struct {
	// Bounds is the view size in screen units.
	Bounds geom.Size

	// Scene receives the anchor.
	Scene anchor.SceneGraph

	// Render is the context Scene may be mutated on.
	Render RenderContext
}

// Deps are the collaborators of a session.
type Deps struct {
	Source  world.FrameSource
	Locator *world.Locator
	Placer  *anchor.Placer

	// Runner executes inference. When nil, one is created around Detector.
	Runner   *detection.Runner
	Detector detection.Detector

	Logger *logrus.Entry
}

// Options configure a session.
type Options struct {
	// ID names the session; a ULID is generated when empty.
	ID string

	// TargetLabel is matched case-insensitively against detection labels.
	TargetLabel string

	// RetryInterval is the wait between attempts (default 500ms).
	RetryInterval time.Duration

	// MaxAttempts bounds the number of attempts; 0 means unbounded.
	MaxAttempts int

	// Timeout bounds the whole flow; 0 means none.
	Timeout time.Duration

	// OnTransition, when set, is called after every state change.
	OnTransition func(State)
}

// Result describes how a session ended, or its progress so far.
type Result struct {
	ID        string               `json:"id"`
	State     State                `json:"state"`
	Target    string               `json:"target"`
	Attempts  int                  `json:"attempts"`
	Candidate *detection.Candidate `json:"candidate,omitempty"`
	Placement *anchor.Placement    `json:"placement,omitempty"`
	Anchor    *anchor.Anchor       `json:"anchor,omitempty"`
	Err       error                `json:"-"`
	Started   time.Time            `json:"started"`
	Finished  time.Time            `json:"finished"`
}

// Session is one anchoring flow. Create it with New and run it with Start.
type Session struct {
	deps   Deps
	opts   Options
	runner *detection.Runner
	log    *logrus.Entry

	mu        sync.Mutex
	state     State
	started   bool
	cancelled bool
	result    Result
	cancel    context.CancelCauseFunc
	done      chan struct{}
}

// New validates deps and returns an idle session.
func New(deps Deps, opts Options) (*Session, error) {
	if deps.Source == nil {
		return nil, errors.New("session requires a frame source")
	}
	if deps.Locator == nil {
		return nil, errors.New("session requires a locator")
	}
	if deps.Placer == nil {
		return nil, errors.New("session requires a placer")
	}
	runner := deps.Runner
	if runner == nil {
		if deps.Detector == nil {
			return nil, errors.New("session requires a detector")
		}
		runner = detection.NewRunner(deps.Detector)
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.MaxAttempts < 0 {
		return nil, fmt.Errorf("max attempts must not be negative, got %d", opts.MaxAttempts)
	}
	if opts.ID == "" {
		opts.ID = ulid.Make().String()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Session{
		deps:   deps,
		opts:   opts,
		runner: runner,
		log:    logger.WithFields(logrus.Fields{"session": opts.ID, "target": opts.TargetLabel}),
		state:  Idle,
		result: Result{ID: opts.ID, State: Idle, Target: opts.TargetLabel},
		done:   make(chan struct{}),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.opts.ID
}

// Start begins the flow on surface. It returns immediately; use Wait or
// Done to observe completion.
func (s *Session) Start(ctx context.Context, surface Surface) error {
	if surface.Bounds.Empty() {
		return fmt.Errorf("surface bounds must be positive, got %vx%v", surface.Bounds.Width, surface.Bounds.Height)
	}
	if surface.Scene == nil || surface.Render == nil {
		return errors.New("surface requires a scene and a render context")
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	if s.cancelled {
		s.mu.Unlock()
		return ErrCancelled
	}
	s.started = true
	runCtx, cancel := context.WithCancelCause(ctx)
	s.cancel = cancel
	s.result.Started = time.Now()
	s.mu.Unlock()

	var stop context.CancelFunc = func() {}
	if s.opts.Timeout > 0 {
		runCtx, stop = context.WithTimeoutCause(runCtx, s.opts.Timeout,
			fmt.Errorf("%w: timed out after %v", ErrPlacementFailed, s.opts.Timeout))
	}

	s.log.Info("Anchoring started")
	go func() {
		defer stop()
		defer cancel(nil)
		s.run(runCtx, surface)
	}()
	return nil
}

// Cancel stops the flow. Retries stop, an in-flight attempt is discarded,
// and a placement that has not been committed never will be. Cancel after
// the session ended has no effect.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.state.Terminal() || s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	cancel := s.cancel
	if cancel == nil {
		// Never started.
		s.state = Cancelled
		s.result.State = Cancelled
		s.result.Err = ErrCancelled
		s.result.Finished = time.Now()
		close(s.done)
		s.mu.Unlock()
		s.log.Info("Anchoring cancelled")
		s.notify(Cancelled)
		return
	}
	s.mu.Unlock()
	cancel(ErrCancelled)
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session ends or ctx is done.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
		r := s.Result()
		return r, r.Err
	case <-ctx.Done():
		return s.Result(), ctx.Err()
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns a snapshot of the session's progress.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

func (s *Session) run(ctx context.Context, surface Surface) {
	defer close(s.done)

	for attempt := 1; ; attempt++ {
		if limit := s.opts.MaxAttempts; limit > 0 && attempt > limit {
			s.finish(Failed, fmt.Errorf("%w: no placement after %d attempts", ErrPlacementFailed, limit))
			return
		}
		if ctx.Err() != nil {
			s.finishContext(ctx)
			return
		}

		if !s.transition(Detecting, attempt) {
			return
		}
		log := s.log.WithField("attempt", attempt)

		placed, err := s.attempt(ctx, surface, log)
		switch {
		case placed:
			return
		case err != nil:
			s.finish(Failed, err)
			return
		case ctx.Err() != nil:
			s.finishContext(ctx)
			return
		}

		if !s.transition(Retrying, attempt) {
			return
		}
		timer := time.NewTimer(s.opts.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.finishContext(ctx)
			return
		case <-timer.C:
		}
	}
}

// attempt runs one detection cycle. It reports whether the anchor was
// placed; a non-nil error is fatal to the session.
func (s *Session) attempt(ctx context.Context, surface Surface, log *logrus.Entry) (bool, error) {
	frame, ok := s.deps.Source.CurrentFrame()
	if !ok || frame == nil || frame.Image == nil {
		log.Debug("No frame available")
		return false, nil
	}

	dets, err := s.infer(ctx, frame)
	if err != nil {
		if errors.Is(err, detection.ErrModelLoad) || errors.Is(err, anchor.ErrAssetLoad) {
			log.WithError(err).Error("Detector configuration error")
			return false, err
		}
		if ctx.Err() == nil {
			log.WithError(err).Debug("Inference failed")
		}
		return false, nil
	}

	cand := detection.ChooseCandidate(dets, s.opts.TargetLabel, surface.Bounds)
	s.mu.Lock()
	s.result.Candidate = &cand
	s.mu.Unlock()
	log = log.WithFields(logrus.Fields{"detections": len(dets), "fallback": cand.Fallback})

	wp, ok := s.deps.Locator.Locate(s.deps.Source, cand.Point)
	if !ok {
		log.Debug("Ray cast found no surface")
		return false, nil
	}

	pl := s.deps.Placer.Plan(wp, cand.Footprint())
	return s.commit(ctx, surface, pl, log)
}

// infer submits one inference and waits for its callback. A callback that
// arrives after ctx is done is dropped.
func (s *Session) infer(ctx context.Context, frame *world.Frame) ([]detection.Detection, error) {
	type outcome struct {
		dets []detection.Detection
		err  error
	}
	ch := make(chan outcome, 1)
	err := s.runner.Submit(ctx, frame.Image, func(dets []detection.Detection, err error) {
		ch <- outcome{dets, err}
	})
	if err != nil {
		return nil, err
	}
	select {
	case o := <-ch:
		return o.dets, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// commit applies pl on the render context. The scene is only touched while
// the session lock is held and the session is neither cancelled nor placed.
func (s *Session) commit(ctx context.Context, surface Surface, pl anchor.Placement, log *logrus.Entry) (bool, error) {
	var placeErr error
	err := surface.Render.Do(ctx, func() {
		s.mu.Lock()
		if s.cancelled || s.state.Terminal() || ctx.Err() != nil {
			s.mu.Unlock()
			return
		}
		a, err := s.deps.Placer.Place(surface.Scene, pl)
		if err != nil {
			placeErr = err
			s.mu.Unlock()
			return
		}
		s.state = Placed
		s.result.State = Placed
		s.result.Placement = &pl
		s.result.Anchor = a
		s.result.Finished = time.Now()
		s.mu.Unlock()
		s.notify(Placed)
	})

	s.mu.Lock()
	placed := s.state == Placed
	s.mu.Unlock()
	if placed {
		log.WithFields(logrus.Fields{
			"anchor": pl.AnchorID,
			"x":      pl.Position.X,
			"y":      pl.Position.Y,
			"z":      pl.Position.Z,
			"scale":  pl.Scale,
		}).Info("Anchor placed")
		return true, nil
	}

	switch {
	case ctx.Err() != nil:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("%w: render context: %v", ErrPlacementFailed, err)
	case placeErr != nil:
		return false, fmt.Errorf("%w: %v", ErrPlacementFailed, placeErr)
	}
	return false, nil
}

// transition moves to a non-terminal state, reporting false if the session
// already ended.
func (s *Session) transition(to State, attempt int) bool {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return false
	}
	s.state = to
	s.result.State = to
	s.result.Attempts = attempt
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"attempt": attempt, "state": to}).Debug("State changed")
	s.notify(to)
	return true
}

func (s *Session) finish(state State, err error) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.result.State = state
	s.result.Err = err
	s.result.Finished = time.Now()
	attempts := s.result.Attempts
	s.mu.Unlock()

	entry := s.log.WithFields(logrus.Fields{"attempts": attempts, "state": state})
	if state == Failed {
		entry.WithError(err).Warn("Anchoring failed")
	} else {
		entry.Info("Anchoring cancelled")
	}
	s.notify(state)
}

// finishContext ends the session after its context is done.
func (s *Session) finishContext(ctx context.Context) {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, ErrPlacementFailed):
		s.finish(Failed, cause)
	case errors.Is(cause, ErrCancelled):
		s.finish(Cancelled, ErrCancelled)
	default:
		s.finish(Cancelled, fmt.Errorf("%w: %v", ErrCancelled, cause))
	}
}

func (s *Session) notify(state State) {
	if s.opts.OnTransition != nil {
		s.opts.OnTransition(state)
	}
}
