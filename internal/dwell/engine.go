package dwell

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultDuration = 600 * time.Millisecond
	MinDuration     = 100 * time.Millisecond
	MaxDuration     = 5 * time.Second
)

// Config holds the dwell timing
type Config struct {
	Duration time.Duration
}

// DefaultConfig returns the default dwell timing
func DefaultConfig() Config {
	return Config{Duration: DefaultDuration}
}

// Validate checks that the dwell duration is in range
func (c Config) Validate() error {
	if c.Duration < MinDuration || c.Duration > MaxDuration {
		return fmt.Errorf("dwell duration %s out of range [%s, %s]", c.Duration, MinDuration, MaxDuration)
	}
	return nil
}

// episode is the single live dwell record
type episode struct {
	seq           uint64
	target        Target
	started       time.Time
	duration      time.Duration
	confirmations int
	timer         Timer
}

// Snapshot is a point-in-time view of the engine for renderers
type Snapshot struct {
	State         State
	Target        Target
	Started       time.Time
	Duration      time.Duration
	Confirmations int
	Progress      float64
}

// Engine turns target enter/leave notifications into debounced commits.
// At most one dwell episode is live; a commit claims the episode under the
// lock before dispatching so each episode commits at most once.
type Engine struct {
	mu         sync.Mutex
	duration   time.Duration
	live       *episode
	seq        uint64
	committing bool
	stopped    bool

	dispatchMu sync.Mutex

	sched     Scheduler
	resolver  Resolver
	handler   Handler
	observers []Observer
	logger    *zap.SugaredLogger
}

// Option configures an Engine
type Option func(*Engine)

// WithScheduler replaces the runtime timers
func WithScheduler(s Scheduler) Option {
	return func(e *Engine) { e.sched = s }
}

// WithObserver registers an observer for dwell events
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// WithLogger sets the engine logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a new dwell engine
func NewEngine(cfg Config, resolver Resolver, handler Handler, opts ...Option) *Engine {
	e := &Engine{
		duration: cfg.Duration,
		sched:    RealScheduler,
		resolver: resolver,
		handler:  handler,
		logger:   zap.NewNop().Sugar(),
	}
	if e.duration <= 0 {
		e.duration = DefaultDuration
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddObserver registers an observer after construction
func (e *Engine) AddObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// Duration returns the dwell time used for new episodes
func (e *Engine) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

// SetDuration changes the dwell time. A live episode keeps its duration.
func (e *Engine) SetDuration(d time.Duration) {
	if d <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.duration = d
}

// Enter starts dwelling on t. Re-entering the live target is a no-op and
// never restarts the countdown.
func (e *Engine) Enter(t Target) {
	if t.IsZero() {
		e.Cancel()
		return
	}

	e.mu.Lock()
	if e.stopped || (e.live != nil && e.live.target == t) {
		e.mu.Unlock()
		return
	}
	var events []Event
	if ev, ok := e.cancelLocked(); ok {
		events = append(events, ev)
	}
	events = append(events, e.startLocked(t))
	e.mu.Unlock()

	e.emit(events...)
}

// Leave cancels the live episode only if it is for t
func (e *Engine) Leave(t Target) {
	e.mu.Lock()
	if e.live == nil || e.live.target != t {
		e.mu.Unlock()
		return
	}
	ev, _ := e.cancelLocked()
	e.mu.Unlock()

	e.emit(ev)
}

// Cancel abandons whatever episode is live
func (e *Engine) Cancel() {
	e.mu.Lock()
	ev, ok := e.cancelLocked()
	e.mu.Unlock()

	if ok {
		e.emit(ev)
	}
}

// Confirm records continued fixation on the live target without touching
// its timer
func (e *Engine) Confirm(t Target) {
	e.mu.Lock()
	if e.live == nil || e.live.target != t {
		e.mu.Unlock()
		return
	}
	e.live.confirmations++
	ev := Event{Type: EventConfirmed, Target: t, At: e.sched.Now()}
	e.mu.Unlock()

	e.emit(ev)
}

// Commit selects t immediately, cancelling any pending dwell first
func (e *Engine) Commit(t Target, src Source) {
	if t.IsZero() {
		return
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	ev, cancelled := e.cancelLocked()
	e.mu.Unlock()

	if cancelled {
		e.emit(ev)
	}
	e.dispatch(t, src)
}

// CommitLive commits the live target immediately. It returns false when
// nothing is being dwelt on.
func (e *Engine) CommitLive(src Source) bool {
	e.mu.Lock()
	if e.stopped || e.live == nil {
		e.mu.Unlock()
		return false
	}
	t := e.live.target
	e.live.timer.Stop()
	e.live = nil
	e.mu.Unlock()

	e.dispatch(t, src)
	return true
}

// Snapshot returns the current state for rendering
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.live == nil {
		if e.committing {
			return Snapshot{State: Committed}
		}
		return Snapshot{State: Idle}
	}
	s := Snapshot{
		State:         Dwelling,
		Target:        e.live.target,
		Started:       e.live.started,
		Duration:      e.live.duration,
		Confirmations: e.live.confirmations,
	}
	if s.Duration > 0 {
		p := float64(e.sched.Now().Sub(s.Started)) / float64(s.Duration)
		s.Progress = min(max(p, 0), 1)
	}
	return s
}

// Stop cancels any live episode; later calls to the engine are ignored
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	ev, ok := e.cancelLocked()
	e.mu.Unlock()

	if ok {
		e.emit(ev)
	}
}

func (e *Engine) startLocked(t Target) Event {
	e.seq++
	seq := e.seq
	ep := &episode{
		seq:      seq,
		target:   t,
		started:  e.sched.Now(),
		duration: e.duration,
	}
	ep.timer = e.sched.AfterFunc(ep.duration, func() { e.fire(seq, t) })
	e.live = ep

	e.logger.Debugw("dwell started", "target", t.String(), "duration", ep.duration)
	return Event{Type: EventDwellStarted, Target: t, Duration: ep.duration, At: ep.started}
}

func (e *Engine) cancelLocked() (Event, bool) {
	if e.live == nil {
		return Event{}, false
	}
	ep := e.live
	ep.timer.Stop()
	e.live = nil

	e.logger.Debugw("dwell cancelled", "target", ep.target.String())
	return Event{Type: EventDwellCancelled, Target: ep.target, At: e.sched.Now()}, true
}

// fire runs on the timer goroutine. A firing whose episode has since been
// cancelled or replaced finds a different sequence and does nothing.
func (e *Engine) fire(seq uint64, t Target) {
	e.mu.Lock()
	if e.live == nil || e.live.seq != seq || e.live.target != t {
		e.mu.Unlock()
		e.logger.Debugw("stale dwell timer ignored", "target", t.String())
		return
	}
	e.live = nil
	e.mu.Unlock()

	e.dispatch(t, SourceDwell)
}

func (e *Engine) dispatch(t Target, src Source) {
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()

	e.setCommitting(true)
	payload, ok := e.resolver.Resolve(t)
	if !ok {
		e.setCommitting(false)
		e.logger.Debugw("commit dropped, target no longer resolves", "target", t.String(), "source", src.String())
		e.emit(Event{Type: EventCommitDropped, Target: t, Source: src, At: e.sched.Now()})
		return
	}

	c := Commit{Target: t, Payload: payload, Source: src, At: e.sched.Now()}
	e.handler.HandleCommit(c)
	e.setCommitting(false)

	e.logger.Debugw("committed", "target", t.String(), "source", src.String(), "payload", payload.Kind.String())
	e.emit(Event{Type: EventCommitted, Target: t, Source: src, Payload: payload, At: c.At})
}

func (e *Engine) setCommitting(v bool) {
	e.mu.Lock()
	e.committing = v
	e.mu.Unlock()
}

func (e *Engine) emit(events ...Event) {
	e.mu.Lock()
	observers := append([]Observer(nil), e.observers...)
	e.mu.Unlock()

	for _, ev := range events {
		for _, o := range observers {
			o.OnEvent(ev)
		}
	}
}
