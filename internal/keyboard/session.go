package keyboard

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/pleimann/gazeboard/internal/dwell"
	"github.com/pleimann/gazeboard/internal/layout"
	"github.com/pleimann/gazeboard/internal/suggest"
	"github.com/pleimann/gazeboard/internal/textbuf"
)

// Status describes the gaze sensor situation shown to the user
type Status int

const (
	StatusPointer Status = iota
	StatusStarting
	StatusActive
	StatusWarning
)

func (s Status) String() string {
	switch s {
	case StatusPointer:
		return "pointer"
	case StatusStarting:
		return "starting"
	case StatusActive:
		return "active"
	case StatusWarning:
		return "warning"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Status messages
const (
	MessageStarting     = "Starting eye tracking..."
	MessageActive       = "Eye tracking active"
	MessageSensorFailed = "Eye tracking failed. Using mouse mode."
	MessagePointerOnly  = "Mouse mode"
)

// Suggestion is a word placed on the suggestion ring
type Suggestion struct {
	Index int     `json:"index"`
	Word  string  `json:"word"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// DwellView is the countdown state for renderers
type DwellView struct {
	State      string  `json:"state"`
	Target     string  `json:"target,omitempty"`
	Glyph      string  `json:"glyph,omitempty"`
	Slot       int     `json:"slot"`
	Progress   float64 `json:"progress"`
	DurationMs int64   `json:"durationMs"`
}

// State is a snapshot of the session
type State struct {
	Text        string       `json:"text"`
	Suggestions []Suggestion `json:"suggestions"`
	Generation  uint64       `json:"generation"`
	Dwell       DwellView    `json:"dwell"`
	Status      string       `json:"status"`
	StatusText  string       `json:"statusText"`
}

// Update is delivered to listeners after every change. Commit is set when
// the change came from a selection; Previous holds the text before it.
type Update struct {
	State    State
	Previous string
	Commit   *dwell.Commit
	Event    *dwell.Event
}

// Finalizer receives the text when the user finalizes it
type Finalizer interface {
	Finalize(ctx context.Context, text string) error
}

// FinalizerFunc adapts a function to Finalizer
type FinalizerFunc func(ctx context.Context, text string) error

func (f FinalizerFunc) Finalize(ctx context.Context, text string) error { return f(ctx, text) }

// Session is one keyboard: text buffer, suggestion ring and dwell engine
type Session struct {
	board   *layout.Board
	lexicon *suggest.Lexicon
	buffer  *textbuf.Buffer
	engine  *dwell.Engine
	logger  *zap.SugaredLogger

	mu          sync.RWMutex
	suggestions []Suggestion
	generation  uint64
	status      Status
	statusText  string
	listeners   []func(Update)
	finalizers  []Finalizer
	finalizeWg  sync.WaitGroup
}

type options struct {
	engineOpts []dwell.Option
	logger     *zap.SugaredLogger
	text       string
}

// Option configures a Session
type Option func(*options)

// WithScheduler replaces the dwell timers
func WithScheduler(s dwell.Scheduler) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, dwell.WithScheduler(s)) }
}

// WithObserver registers a dwell observer such as a tone player
func WithObserver(obs dwell.Observer) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, dwell.WithObserver(obs)) }
}

// WithLogger sets the session logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) { o.logger = l }
}

// WithText seeds the buffer
func WithText(text string) Option {
	return func(o *options) { o.text = text }
}

// NewSession creates a new keyboard session
func NewSession(board *layout.Board, lexicon *suggest.Lexicon, cfg dwell.Config, opts ...Option) *Session {
	o := options{logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		board:      board,
		lexicon:    lexicon,
		buffer:     textbuf.New(o.text),
		logger:     o.logger,
		status:     StatusPointer,
		statusText: MessagePointerOnly,
	}
	engineOpts := append([]dwell.Option{dwell.WithLogger(o.logger)}, o.engineOpts...)
	s.engine = dwell.NewEngine(cfg, s, s, engineOpts...)
	s.engine.AddObserver(dwell.ObserverFunc(s.onDwellEvent))
	s.recompute(o.text)
	return s
}

// Engine returns the dwell engine input adapters drive
func (s *Session) Engine() *dwell.Engine {
	return s.engine
}

// Board returns the key layout
func (s *Session) Board() *layout.Board {
	return s.board
}

// Text returns the typed text
func (s *Session) Text() string {
	return s.buffer.Text()
}

// Subscribe registers a listener for session updates. Listeners run on the
// goroutine that caused the change and must not block.
func (s *Session) Subscribe(fn func(Update)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// AddFinalizer registers a receiver for finalized text
func (s *Session) AddFinalizer(f Finalizer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizers = append(s.finalizers, f)
}

// Resolve produces the payload for t from the current session state
func (s *Session) Resolve(t dwell.Target) (dwell.Payload, bool) {
	switch t.Kind {
	case dwell.TargetKey:
		if !s.board.Contains(t.Glyph) {
			return dwell.Payload{}, false
		}
		if t.Glyph == layout.DeleteGlyph {
			return dwell.Payload{Kind: dwell.PayloadDelete}, true
		}
		return dwell.Payload{Kind: dwell.PayloadChar, Text: t.Glyph}, true

	case dwell.TargetSuggestion:
		s.mu.RLock()
		defer s.mu.RUnlock()
		if t.Generation != s.generation || t.Slot < 0 || t.Slot >= len(s.suggestions) {
			return dwell.Payload{}, false
		}
		return dwell.Payload{Kind: dwell.PayloadSuggestion, Text: s.suggestions[t.Slot].Word}, true

	case dwell.TargetControl:
		switch t.Glyph {
		case dwell.ControlSpace:
			return dwell.Payload{Kind: dwell.PayloadChar, Text: " "}, true
		case dwell.ControlDelete:
			return dwell.Payload{Kind: dwell.PayloadDelete}, true
		case dwell.ControlClear:
			return dwell.Payload{Kind: dwell.PayloadClear}, true
		}
	}
	return dwell.Payload{}, false
}

// HandleCommit applies a committed payload, recomputes suggestions and
// notifies listeners before returning
func (s *Session) HandleCommit(c dwell.Commit) {
	prev, text := s.buffer.Apply(c.Payload)
	s.recompute(text)

	s.logger.Debugw("commit applied", "target", c.Target.String(), "source", c.Source.String(), "text", text)
	s.notify(Update{State: s.State(), Previous: prev, Commit: &c})
}

// Clear empties the text outside of the dwell flow
func (s *Session) Clear() {
	s.engine.Commit(dwell.ControlTarget(dwell.ControlClear), dwell.SourceKeyboard)
}

// HitTest maps a point relative to the keyboard center to a target.
// Suggestions are tested first since they share the outer ring radius.
func (s *Session) HitTest(x, y float64) (dwell.Target, bool) {
	s.mu.RLock()
	slots := make([]layout.Slot, len(s.suggestions))
	for i, sg := range s.suggestions {
		slots[i] = layout.Slot{Index: sg.Index, X: sg.X, Y: sg.Y}
	}
	gen := s.generation
	s.mu.RUnlock()

	if idx, ok := s.board.HitSlot(slots, x, y); ok {
		return dwell.SuggestionTarget(idx, gen), true
	}
	if k, ok := s.board.HitKey(x, y); ok {
		return dwell.KeyTarget(k.Glyph), true
	}
	return dwell.Target{}, false
}

// SuggestionTarget returns the target for slot in the current generation
func (s *Session) SuggestionTarget(slot int) (dwell.Target, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if slot < 0 || slot >= len(s.suggestions) {
		return dwell.Target{}, false
	}
	return dwell.SuggestionTarget(slot, s.generation), true
}

// SetStatus updates the sensor status line
func (s *Session) SetStatus(st Status, text string) {
	s.mu.Lock()
	s.status = st
	s.statusText = text
	s.mu.Unlock()

	s.notify(Update{State: s.State(), Previous: s.Text()})
}

// State returns a snapshot for rendering
func (s *Session) State() State {
	snap := s.engine.Snapshot()
	text := s.buffer.Text()

	s.mu.RLock()
	defer s.mu.RUnlock()

	st := State{
		Text:        text,
		Suggestions: append([]Suggestion{}, s.suggestions...),
		Generation:  s.generation,
		Status:      s.status.String(),
		StatusText:  s.statusText,
		Dwell: DwellView{
			State:      snap.State.String(),
			Slot:       snap.Target.Slot,
			Progress:   snap.Progress,
			DurationMs: snap.Duration.Milliseconds(),
		},
	}
	if !snap.Target.IsZero() {
		st.Dwell.Target = snap.Target.Kind.String()
		st.Dwell.Glyph = snap.Target.Glyph
	}
	return st
}

// Finalize hands the current text to every finalizer in the background.
// Failures are logged and never surface to the typist.
func (s *Session) Finalize(ctx context.Context) {
	text := s.buffer.Text()
	if strings.TrimSpace(text) == "" {
		return
	}

	s.mu.RLock()
	finalizers := append([]Finalizer(nil), s.finalizers...)
	s.mu.RUnlock()

	for _, f := range finalizers {
		s.finalizeWg.Add(1)
		go func(f Finalizer) {
			defer s.finalizeWg.Done()
			if err := f.Finalize(ctx, text); err != nil {
				s.logger.Warnw("failed to finalize text", "error", err)
			}
		}(f)
	}
}

// Close stops the dwell engine and waits for pending finalizers
func (s *Session) Close() {
	s.engine.Stop()
	s.finalizeWg.Wait()
}

func (s *Session) recompute(text string) {
	words := s.lexicon.Suggest(text)
	slots := s.board.Suggestions(len(words))

	suggestions := make([]Suggestion, 0, len(slots))
	for _, slot := range slots {
		suggestions = append(suggestions, Suggestion{
			Index: slot.Index,
			Word:  words[slot.Index],
			X:     slot.X,
			Y:     slot.Y,
		})
	}

	s.mu.Lock()
	s.suggestions = suggestions
	s.generation++
	s.mu.Unlock()
}

func (s *Session) onDwellEvent(ev dwell.Event) {
	switch ev.Type {
	case dwell.EventDwellStarted, dwell.EventDwellCancelled, dwell.EventCommitted, dwell.EventCommitDropped:
		s.notify(Update{State: s.State(), Previous: s.Text(), Event: &ev})
	}
}

func (s *Session) notify(u Update) {
	s.mu.RLock()
	listeners := slices.Clone(s.listeners)
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(u)
	}
}
