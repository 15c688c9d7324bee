package feedback

import (
	"sync"
	"time"

	"github.com/pleimann/gazeboard/internal/dwell"
)

// Highlight tracks which element is being dwelt on so a renderer can draw
// the countdown without asking the engine
type Highlight struct {
	mu       sync.Mutex
	target   dwell.Target
	started  time.Time
	duration time.Duration
	now      func() time.Time
}

// NewHighlight creates a highlight tracker using clock for progress
func NewHighlight(clock func() time.Time) *Highlight {
	if clock == nil {
		clock = time.Now
	}
	return &Highlight{now: clock}
}

// OnEvent updates the highlighted element
func (h *Highlight) OnEvent(ev dwell.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch ev.Type {
	case dwell.EventDwellStarted:
		h.target = ev.Target
		h.started = ev.At
		h.duration = ev.Duration
	case dwell.EventDwellCancelled, dwell.EventCommitted, dwell.EventCommitDropped:
		// Events are delivered after the engine lock is released, so a
		// dwell on another element may already have started
		if ev.Target == h.target {
			h.target = dwell.Target{}
		}
	}
}

// Current returns the highlighted target and countdown progress in [0, 1]
func (h *Highlight) Current() (dwell.Target, float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.target.IsZero() {
		return dwell.Target{}, 0, false
	}
	if h.duration <= 0 {
		return h.target, 1, true
	}
	p := float64(h.now().Sub(h.started)) / float64(h.duration)
	return h.target, min(max(p, 0), 1), true
}

// Multi fans events out to several observers in order
type Multi []dwell.Observer

func (m Multi) OnEvent(ev dwell.Event) {
	for _, o := range m {
		if o != nil {
			o.OnEvent(ev)
		}
	}
}
