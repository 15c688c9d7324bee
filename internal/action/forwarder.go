// Package action turns keyboard commits into keystrokes for another program.
package action

import (
	"sync"

	"go.uber.org/zap"

	"github.com/pleimann/gazeboard/internal/keyboard"
)

// Diff returns the key sequence that edits before into after: one
// backspace per rune past the shared prefix, then the new runes.
func Diff(before, after string) []string {
	b, a := []rune(before), []rune(after)

	common := 0
	for common < len(b) && common < len(a) && b[common] == a[common] {
		common++
	}

	keys := make([]string, 0, len(b)-common+len(a)-common)
	for range b[common:] {
		keys = append(keys, "backspace")
	}
	for _, r := range a[common:] {
		switch r {
		case ' ':
			keys = append(keys, "space")
		case '\n':
			keys = append(keys, "enter")
		case '\t':
			keys = append(keys, "tab")
		default:
			keys = append(keys, string(r))
		}
	}
	return keys
}

// batch is the key sequence for one commit
type batch struct {
	target string
	keys   []string
}

// Forwarder replays every committed edit into a KeyWriter. Keys are written
// from a worker goroutine in commit order; a slow writer never holds up the
// session.
type Forwarder struct {
	executor *Executor
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	pending []batch
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

// NewForwarder creates a forwarder writing to w and starts its worker.
// Close stops it.
func NewForwarder(w KeyWriter, logger *zap.SugaredLogger) *Forwarder {
	f := &Forwarder{
		executor: NewExecutor(w),
		logger:   logger,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go f.run()
	return f
}

// OnUpdate is a keyboard.Session listener. It only queues keys.
func (f *Forwarder) OnUpdate(u keyboard.Update) {
	if u.Commit == nil {
		return
	}
	keys := Diff(u.Previous, u.State.Text)
	if len(keys) == 0 {
		return
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.pending = append(f.pending, batch{target: u.Commit.Target.String(), keys: keys})
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Close writes the keys already queued, then stops the worker
func (f *Forwarder) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		<-f.stopped
		return
	}
	f.closed = true
	f.mu.Unlock()

	close(f.done)
	<-f.stopped
}

func (f *Forwarder) run() {
	defer close(f.stopped)
	for {
		select {
		case <-f.wake:
			f.drain()
		case <-f.done:
			f.drain()
			return
		}
	}
}

func (f *Forwarder) drain() {
	for {
		f.mu.Lock()
		if len(f.pending) == 0 {
			f.mu.Unlock()
			return
		}
		b := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()

		if err := f.executor.Execute(b.keys); err != nil {
			f.logger.Warnw("failed to forward commit", "target", b.target, "error", err)
		}
	}
}
