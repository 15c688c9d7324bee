package input

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/pleimann/gazeboard/internal/dwell"
	"github.com/pleimann/gazeboard/internal/sensor"
)

// StatusFunc reports sensor status changes to the user
type StatusFunc func(ok bool, err error)

// Gaze feeds sensor samples through the stability filter into the engine.
// Every accepted sample on an element re-asserts it, so fixation that
// outlasts a commit (or a key press, or the pointer moving elsewhere)
// starts a new dwell on the same element.
type Gaze struct {
	mu     sync.Mutex
	engine Engine
	filter *dwell.GazeFilter
	logger *zap.SugaredLogger
	tap    func(*dwell.Sample)
}

// NewGaze creates a gaze adapter
func NewGaze(engine Engine, hit dwell.HitTester, cfg dwell.FilterConfig, logger *zap.SugaredLogger) *Gaze {
	return &Gaze{
		engine: engine,
		filter: dwell.NewGazeFilter(cfg, hit),
		logger: logger,
	}
}

// SetFilterConfig applies new filter settings
func (g *Gaze) SetFilterConfig(cfg dwell.FilterConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.filter.SetConfig(cfg)
}

// Reset forgets the fixation history, e.g. when a new tracker connects
func (g *Gaze) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.filter.Reset()
}

// Tap registers a function that sees every raw sample, e.g. a recorder
func (g *Gaze) Tap(fn func(*dwell.Sample)) {
	g.tap = fn
}

// Feed processes one sample
func (g *Gaze) Feed(s *dwell.Sample) dwell.Decision {
	if g.tap != nil {
		g.tap(s)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	d, t := g.filter.Feed(s)
	switch d {
	case dwell.Relocate, dwell.Hold:
		// Enter is a no-op while t is already being dwelt on
		if !t.IsZero() {
			g.engine.Enter(t)
		}
	case dwell.Confirm:
		g.engine.Enter(t)
		g.engine.Confirm(t)
	case dwell.Lost:
		g.engine.Cancel()
	}
	return d
}

// Run consumes samples until the channel closes or ctx is done
func (g *Gaze) Run(ctx context.Context, samples <-chan *dwell.Sample) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-samples:
			if !ok {
				return nil
			}
			g.Feed(s)
		}
	}
}

// Attach starts s and runs the adapter on its samples. A sensor that fails
// to start is reported through status and the keyboard stays usable with
// the pointer; the returned error is only for logging.
func (g *Gaze) Attach(ctx context.Context, s sensor.Sensor, opts sensor.Options, status StatusFunc) error {
	if rc, ok := s.(sensor.Reconnector); ok {
		rc.OnConnect(g.Reset)
	}
	if err := s.Start(ctx, opts); err != nil {
		g.logger.Warnw("gaze sensor failed to start", "error", err)
		if status != nil {
			status(false, err)
		}
		return err
	}
	if status != nil {
		status(true, nil)
	}

	err := g.Run(ctx, s.Samples())
	if stopErr := s.Stop(); stopErr != nil {
		g.logger.Debugw("gaze sensor stop", "error", stopErr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
