// Package looper provides the serialized mailbox every playback actor runs
// on. Tasks posted to a Looper execute one at a time, in post order, on a
// single goroutine, so an actor's own state needs no locking.
package looper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// ErrStopped is returned by Call when the looper has been stopped.
var ErrStopped = errors.New("looper: stopped")

// Looper is an unbounded FIFO of tasks drained by one goroutine. Post never
// blocks, so actors may post into each other freely without deadlock.
type Looper struct {
	name string
	log  *slog.Logger
	clk  clock.WithDelayedExecution

	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

// New starts a looper. A nil clk uses the real clock.
func New(name string, clk clock.WithDelayedExecution, log *slog.Logger) *Looper {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	l := &Looper{
		name: name,
		log:  log.With("looper", name),
		clk:  clk,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// Clock returns the clock driving delayed posts.
func (l *Looper) Clock() clock.WithDelayedExecution { return l.clk }

// Post enqueues fn. It reports false if the looper has stopped, in which
// case fn never runs.
func (l *Looper) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// PostDelayed enqueues fn once d has elapsed on the looper's clock. There
// is no cancellation; callers guard delayed tasks with a generation number.
func (l *Looper) PostDelayed(d time.Duration, fn func()) {
	if d <= 0 {
		l.Post(fn)
		return
	}
	l.clk.AfterFunc(d, func() { l.Post(fn) })
}

// Call runs fn on the looper and waits for it to finish.
func (l *Looper) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop discards pending tasks and ends the drain goroutine after the
// running task returns. It is safe to call from inside a task.
func (l *Looper) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done is closed once the drain goroutine has exited.
func (l *Looper) Done() <-chan struct{} { return l.done }

func (l *Looper) run() {
	defer close(l.done)
	defer l.log.Debug("looper exited")

	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.stopped {
			l.mu.Unlock()
			<-l.wake
			l.mu.Lock()
		}
		if l.stopped {
			l.queue = nil
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
	}
}
