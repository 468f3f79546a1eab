// Package bridge runs the control-service session on a single dedicated
// OS thread and serializes work submitted from arbitrary goroutines onto
// it. The session object forbids cross-thread entry for stateful calls;
// routing them through one locked thread's queue satisfies that contract
// structurally, without a lock.
package bridge

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/wslbridge/wsl/lxss"
)

// ErrClosed is returned by submissions after the bridge has shut down.
var ErrClosed = errors.New("bridge is closed")

const workQueueDepth = 64

type workItem struct {
	fn   func(lxss.Session) error
	resp chan error
}

// Bridge owns the session and its apartment thread. One session per
// bridge, held for the bridge's entire lifetime.
type Bridge struct {
	work   chan workItem
	done   chan struct{}
	logger *log.Logger

	mu      sync.RWMutex
	closed  bool
	session lxss.Session
}

// New spawns the apartment thread, activates the session on it, and waits
// for readiness. Activation failures are returned synchronously; classify
// them with lxss.KindOf. If the apartment goroutine dies before signaling
// readiness, New panics: there is no session to report an error through
// and no way to recover the thread.
func New(activate lxss.Activator, logger *log.Logger) (*Bridge, error) {
	if activate == nil {
		return nil, errors.New("activator is required")
	}

	b := &Bridge{
		work:   make(chan workItem, workQueueDepth),
		done:   make(chan struct{}),
		logger: logger,
	}

	ready := make(chan error, 1)
	go b.run(activate, ready)

	err, ok := <-ready
	if !ok {
		panic("bridge: apartment thread died before signaling readiness")
	}
	if err != nil {
		return nil, fmt.Errorf("activate session: %w", err)
	}
	return b, nil
}

// run is the apartment thread. The goroutine stays locked to its OS
// thread for the session's whole lifetime.
func (b *Bridge) run(activate lxss.Activator, ready chan<- error) {
	defer close(b.done)
	defer close(ready)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	session, err := activate()
	if err != nil {
		ready <- err
		return
	}
	b.mu.Lock()
	b.session = session
	b.mu.Unlock()
	ready <- nil

	for item := range b.work {
		item.resp <- item.fn(session)
	}

	session.Release()
}

// ExecuteThread runs fn against the session on the apartment thread and
// blocks until it completes. Submissions execute in FIFO order, one at a
// time; use this for anything that mutates session-wide state or must be
// ordered relative to other calls.
func (b *Bridge) ExecuteThread(fn func(lxss.Session) error) error {
	item := workItem{fn: fn, resp: make(chan error, 1)}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	b.work <- item
	b.mu.RUnlock()

	return <-item.resp
}

// Execute runs fn immediately on the calling thread against the shared
// session. Valid only for read-style calls the session tolerates
// concurrently once initialized; carries no ordering guarantee relative to
// ExecuteThread submissions.
func (b *Bridge) Execute(fn func(lxss.Session) error) error {
	b.mu.RLock()
	session := b.session
	closed := b.closed
	b.mu.RUnlock()

	if closed || session == nil {
		return ErrClosed
	}
	return fn(session)
}

// Close ends the work queue, waits for in-flight and queued items to
// drain, and releases the session. In-flight operations are never
// interrupted. Safe to call more than once.
func (b *Bridge) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.work)
	}
	b.mu.Unlock()

	<-b.done

	if b.logger != nil {
		b.logger.Debug("bridge closed")
	}
}
