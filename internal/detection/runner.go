package detection

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
)

// Detector runs one inference pass over a frame.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, img image.Image) ([]Detection, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	return f(ctx, img)
}

// Runner executes a Detector off the caller's goroutine with at most one
// inference in flight. Runner is safe for concurrent use.
type Runner struct {
	detector Detector
	inFlight atomic.Bool
	wg       sync.WaitGroup
}

// NewRunner wraps d.
func NewRunner(d Detector) *Runner {
	return &Runner{detector: d}
}

// Submit starts inference on img in a background goroutine and calls done
// with the result once it completes. The in-flight slot is released before
// done runs.
//
// Submit returns ErrBusy without calling done if an inference is already
// running.
func (r *Runner) Submit(ctx context.Context, img image.Image, done func([]Detection, error)) error {
	if !r.inFlight.CompareAndSwap(false, true) {
		return ErrBusy
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		dets, err := r.run(ctx, img)
		r.inFlight.Store(false)
		done(dets, err)
	}()
	return nil
}

// InFlight reports whether an inference is currently running.
func (r *Runner) InFlight() bool {
	return r.inFlight.Load()
}

// Wait blocks until every submitted inference has delivered its callback.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// run calls the detector, converting a panic inside the model into an error
// so that it is handled like any other inference failure.
func (r *Runner) run(ctx context.Context, img image.Image) (dets []Detection, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("inference panicked: %v", p)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.detector.Detect(ctx, img)
}
