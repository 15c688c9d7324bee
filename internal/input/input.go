package input

import (
	"github.com/pleimann/gazeboard/internal/dwell"
)

// Engine is the dwell surface the adapters drive
type Engine interface {
	dwell.Sink
	Cancel()
	Confirm(t dwell.Target)
	CommitLive(src dwell.Source) bool
}

// Mouse turns pointer movement into dwell notifications. Hover only reports
// a target when the element under the pointer changes, the way pointer
// enter events behave.
type Mouse struct {
	engine  Engine
	hit     dwell.HitTester
	hovered dwell.Target
}

// NewMouse creates a pointer adapter
func NewMouse(engine Engine, hit dwell.HitTester) *Mouse {
	return &Mouse{engine: engine, hit: hit}
}

// Hover handles the pointer moving to (x, y)
func (m *Mouse) Hover(x, y float64) {
	t, ok := m.hit.HitTest(x, y)
	if !ok {
		t = dwell.Target{}
	}
	if t == m.hovered {
		return
	}
	if !m.hovered.IsZero() {
		m.engine.Leave(m.hovered)
	}
	m.hovered = t
	if !t.IsZero() {
		m.engine.Enter(t)
	}
}

// Out handles the pointer leaving the element at (x, y)
func (m *Mouse) Out(x, y float64) {
	t, ok := m.hit.HitTest(x, y)
	if !ok {
		return
	}
	m.engine.Leave(t)
	if t == m.hovered {
		m.hovered = dwell.Target{}
	}
}

// Exit handles the pointer leaving the keyboard area entirely
func (m *Mouse) Exit() {
	if m.hovered.IsZero() {
		return
	}
	m.engine.Leave(m.hovered)
	m.hovered = dwell.Target{}
}

// Click commits the element at (x, y) immediately
func (m *Mouse) Click(x, y float64) bool {
	t, ok := m.hit.HitTest(x, y)
	if !ok {
		return false
	}
	m.engine.Commit(t, dwell.SourceClick)
	return true
}

// Reset forgets the hovered element, e.g. after the layout changes
func (m *Mouse) Reset() {
	m.hovered = dwell.Target{}
}
