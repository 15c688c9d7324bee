package dwell

import (
	"fmt"
	"math"
	"time"
)

const (
	DefaultDebounce   = 500 * time.Millisecond
	DefaultRadius     = 20.0
	DefaultMinSamples = 3
)

// FilterConfig tunes the gaze stability filter
type FilterConfig struct {
	Debounce   time.Duration
	Radius     float64
	MinSamples int
}

// DefaultFilterConfig returns the default gaze filter settings
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		Debounce:   DefaultDebounce,
		Radius:     DefaultRadius,
		MinSamples: DefaultMinSamples,
	}
}

// Validate checks the filter settings
func (c FilterConfig) Validate() error {
	if c.Debounce < 0 {
		return fmt.Errorf("gaze debounce must not be negative")
	}
	if c.Radius <= 0 {
		return fmt.Errorf("gaze radius must be positive")
	}
	if c.MinSamples < 1 {
		return fmt.Errorf("gaze min samples must be at least 1")
	}
	return nil
}

// Decision is the filter's verdict for one sample
type Decision int

const (
	// Skip leaves all state untouched
	Skip Decision = iota
	// Hold means the fixation continues but is not yet confirmed
	Hold
	// Confirm means enough consecutive stable samples landed on the target
	Confirm
	// Relocate means the gaze moved to a new element
	Relocate
	// Lost means the gaze moved to empty space
	Lost
)

func (d Decision) String() string {
	switch d {
	case Skip:
		return "skip"
	case Hold:
		return "hold"
	case Confirm:
		return "confirm"
	case Relocate:
		return "relocate"
	case Lost:
		return "lost"
	default:
		return fmt.Sprintf("unknown(%d)", d)
	}
}

// HitTester maps a point to the element under it
type HitTester interface {
	HitTest(x, y float64) (Target, bool)
}

// HitTestFunc adapts a function to HitTester
type HitTestFunc func(x, y float64) (Target, bool)

func (f HitTestFunc) HitTest(x, y float64) (Target, bool) { return f(x, y) }

// GazeFilter debounces a raw gaze stream into fixation decisions.
// It is not safe for concurrent use; one goroutine feeds it.
type GazeFilter struct {
	cfg FilterConfig
	hit HitTester

	last    Sample
	hasLast bool
	target  Target
	count   int
}

// NewGazeFilter creates a filter that hit-tests with hit
func NewGazeFilter(cfg FilterConfig, hit HitTester) *GazeFilter {
	return &GazeFilter{cfg: cfg, hit: hit}
}

// SetConfig swaps the filter settings, keeping the fixation state
func (f *GazeFilter) SetConfig(cfg FilterConfig) {
	f.cfg = cfg
}

// Reset forgets the previous sample
func (f *GazeFilter) Reset() {
	f.hasLast = false
	f.target = Target{}
	f.count = 0
}

// Count returns the consecutive stable sample count
func (f *GazeFilter) Count() int {
	return f.count
}

// Feed classifies one sample
func (f *GazeFilter) Feed(s *Sample) (Decision, Target) {
	if !s.Valid() {
		return Skip, Target{}
	}
	if f.hasLast {
		delta := s.Timestamp.Sub(f.last.Timestamp)
		if delta < 0 {
			// The producer's clock went backwards (page reload, new tracker):
			// start over from this sample.
			f.Reset()
		} else if delta < f.cfg.Debounce {
			return Skip, f.target
		}
	}

	t, ok := f.hit.HitTest(s.X, s.Y)
	if !ok {
		t = Target{}
	}
	stable := f.hasLast && math.Hypot(s.X-f.last.X, s.Y-f.last.Y) <= f.cfg.Radius
	f.last = *s
	f.hasLast = true

	if stable && t == f.target {
		f.count++
		if t.IsZero() {
			return Hold, t
		}
		if f.count >= f.cfg.MinSamples {
			return Confirm, t
		}
		return Hold, t
	}

	f.count = 1
	f.target = t
	if t.IsZero() {
		return Lost, t
	}
	return Relocate, t
}
