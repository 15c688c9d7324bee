package dwell

import (
	"fmt"
	"math"
	"time"
)

// State of the dwell machine
type State int

const (
	Idle State = iota
	Dwelling
	Committed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dwelling:
		return "dwelling"
	case Committed:
		return "committed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// TargetKind distinguishes the selectable element types
type TargetKind int

const (
	TargetNone TargetKind = iota
	TargetKey
	TargetSuggestion
	TargetControl
)

func (k TargetKind) String() string {
	switch k {
	case TargetNone:
		return "none"
	case TargetKey:
		return "key"
	case TargetSuggestion:
		return "suggestion"
	case TargetControl:
		return "control"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Control names
const (
	ControlSpace  = "space"
	ControlDelete = "delete"
	ControlClear  = "clear"
)

// Target identifies a selectable element. Targets are compared by value;
// a suggestion target is only valid for the generation it was rendered in.
type Target struct {
	Kind       TargetKind
	Glyph      string
	Slot       int
	Generation uint64
}

// KeyTarget creates a target for a keyboard glyph
func KeyTarget(glyph string) Target {
	return Target{Kind: TargetKey, Glyph: glyph}
}

// SuggestionTarget creates a target for a suggestion slot in a given generation
func SuggestionTarget(slot int, generation uint64) Target {
	return Target{Kind: TargetSuggestion, Slot: slot, Generation: generation}
}

// ControlTarget creates a target for a named control
func ControlTarget(name string) Target {
	return Target{Kind: TargetControl, Glyph: name}
}

// IsZero reports whether t refers to nothing
func (t Target) IsZero() bool {
	return t.Kind == TargetNone
}

func (t Target) String() string {
	switch t.Kind {
	case TargetNone:
		return "none"
	case TargetSuggestion:
		return fmt.Sprintf("suggestion:%d@%d", t.Slot, t.Generation)
	default:
		return t.Kind.String() + ":" + t.Glyph
	}
}

// PayloadKind is what a commit does to the text buffer
type PayloadKind int

const (
	PayloadChar PayloadKind = iota
	PayloadDelete
	PayloadSuggestion
	PayloadClear
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadChar:
		return "char"
	case PayloadDelete:
		return "delete"
	case PayloadSuggestion:
		return "suggestion"
	case PayloadClear:
		return "clear"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Payload is resolved from a target at commit time
type Payload struct {
	Kind PayloadKind
	Text string
}

// Source records what triggered a commit
type Source int

const (
	SourceDwell Source = iota
	SourceClick
	SourceKeyboard
	SourceSwitch
)

func (s Source) String() string {
	switch s {
	case SourceDwell:
		return "dwell"
	case SourceClick:
		return "click"
	case SourceKeyboard:
		return "keyboard"
	case SourceSwitch:
		return "switch"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Commit is a resolved selection handed to the Handler
type Commit struct {
	Target  Target
	Payload Payload
	Source  Source
	At      time.Time
}

// Sample is one gaze position. A nil *Sample means the sensor had no
// reliable estimate.
type Sample struct {
	X         float64
	Y         float64
	Timestamp time.Time
}

// Valid reports whether the sample carries usable coordinates
func (s *Sample) Valid() bool {
	if s == nil {
		return false
	}
	for _, v := range []float64{s.X, s.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Resolver produces the payload for a target at commit time
type Resolver interface {
	Resolve(t Target) (Payload, bool)
}

// Handler receives resolved commits
type Handler interface {
	HandleCommit(c Commit)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(Commit)

func (f HandlerFunc) HandleCommit(c Commit) { f(c) }

// EventType is the kind of notification sent to observers
type EventType int

const (
	EventDwellStarted EventType = iota
	EventDwellCancelled
	EventConfirmed
	EventCommitted
	EventCommitDropped
)

func (e EventType) String() string {
	switch e {
	case EventDwellStarted:
		return "dwell_started"
	case EventDwellCancelled:
		return "dwell_cancelled"
	case EventConfirmed:
		return "confirmed"
	case EventCommitted:
		return "committed"
	case EventCommitDropped:
		return "commit_dropped"
	default:
		return fmt.Sprintf("unknown(%d)", e)
	}
}

// Event is delivered to observers. Duration is set for EventDwellStarted so
// countdown renderers can run for exactly the dwell time.
type Event struct {
	Type     EventType
	Target   Target
	Duration time.Duration
	Source   Source
	Payload  Payload
	At       time.Time
}

// Observer is notified of dwell progress
type Observer interface {
	OnEvent(ev Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

// Sink is the capability surface input adapters drive
type Sink interface {
	Enter(t Target)
	Leave(t Target)
	Commit(t Target, src Source)
}
