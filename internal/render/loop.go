// Package render provides the render context: a single goroutine that owns
// the scene and runs every mutation posted to it in order.
package render

import (
	"context"
	"errors"
)

// ErrStopped is returned when posting to a loop that is not running.
var ErrStopped = errors.New("render loop stopped")

// DefaultQueueSize is the number of posted functions buffered before Post
// blocks.
const DefaultQueueSize = 64

// Loop runs posted functions one at a time on its own goroutine.
type Loop struct {
	queue chan func()
	done  chan struct{}
}

// NewLoop creates a loop. Call Run to start processing.
func NewLoop() *Loop {
	return &Loop{
		queue: make(chan func(), DefaultQueueSize),
		done:  make(chan struct{}),
	}
}

// Run processes posted functions in FIFO order until ctx is cancelled.
// Functions still queued at shutdown are dropped. Run must be called at
// most once.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.queue:
			fn()
		}
	}
}

// Post enqueues fn to run on the loop. Functions posted before Run starts
// run once it does.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	select {
	case l.queue <- fn:
		return nil
	case <-l.done:
		return ErrStopped
	}
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.Post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
