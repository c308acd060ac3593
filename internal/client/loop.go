package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Tyrowin/nexus-chat-client/internal/logging"
)

// ErrLoopStopped is returned by Do once the loop is no longer running.
var ErrLoopStopped = errors.New("event loop stopped")

// Loop runs posted closures one at a time, in order, on the goroutine that
// calls Run. Post never blocks, so closures may post more work.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	notify chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	log    logging.Logger
}

// NewLoop creates a Loop ready to Run.
func NewLoop(log logging.Logger) *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		notify: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		log:    log,
	}
}

// Post queues fn. Work posted after Shutdown is dropped.
func (l *Loop) Post(fn func()) {
	if fn == nil || l.ctx.Err() != nil {
		return
	}

	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Do runs fn on the loop and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		fn()
	})

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopStopped
	case <-l.ctx.Done():
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued closures.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Run executes queued closures until ctx is done or Shutdown is called.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)

	for {
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			l.safeRun(fn)
			if l.ctx.Err() != nil {
				return
			}
		}

		select {
		case <-ctx.Done():
			l.cancel()
			return
		case <-l.ctx.Done():
			return
		case <-l.notify:
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

func (l *Loop) safeRun(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error(context.Background(), "recovered from panic in event loop", "panic", r)
		}
	}()
	fn()
}

// Shutdown stops Run after the closure in progress and waits up to timeout
// for it to return. Queued closures are discarded.
func (l *Loop) Shutdown(timeout time.Duration) error {
	l.cancel()

	select {
	case <-l.done:
		return nil
	case <-time.After(timeout):
		l.log.Warn(context.Background(), "event loop shutdown timeout reached")
		return context.DeadlineExceeded
	}
}

// Stopped is closed when Run returns.
func (l *Loop) Stopped() <-chan struct{} {
	return l.done
}
