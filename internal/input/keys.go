package input

import (
	"strings"
	"unicode/utf8"

	"github.com/pleimann/gazeboard/internal/dwell"
	"github.com/pleimann/gazeboard/internal/layout"
)

// Keyboard maps physical key presses to instant commits
type Keyboard struct {
	engine Engine
	board  *layout.Board
}

// NewKeyboard creates a physical keyboard adapter
func NewKeyboard(engine Engine, board *layout.Board) *Keyboard {
	return &Keyboard{engine: engine, board: board}
}

// Target maps a key name to the element it selects
func (k *Keyboard) Target(name string) (dwell.Target, bool) {
	switch strings.ToLower(name) {
	case "backspace", "delete":
		return dwell.KeyTarget(layout.DeleteGlyph), true
	case "space", " ":
		return dwell.ControlTarget(dwell.ControlSpace), true
	case "clear", "escape", "esc":
		return dwell.ControlTarget(dwell.ControlClear), true
	}
	if utf8.RuneCountInString(name) != 1 {
		return dwell.Target{}, false
	}
	key, ok := k.board.Key(name)
	if !ok {
		return dwell.Target{}, false
	}
	return dwell.KeyTarget(key.Glyph), true
}

// Press commits the element for the named key. Unknown keys are ignored.
func (k *Keyboard) Press(name string) bool {
	t, ok := k.Target(name)
	if !ok {
		return false
	}
	k.engine.Commit(t, dwell.SourceKeyboard)
	return true
}
