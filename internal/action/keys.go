package action

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// KeyPress represents a parsed key with modifiers
type KeyPress struct {
	Ctrl  bool
	Alt   bool
	Shift bool
	Meta  bool
	Key   string // A single character or a named key such as "enter"
}

// special maps named keys to the bytes a terminal sends for them
var special = map[string][]byte{
	"enter":     {'\r'},
	"return":    {'\r'},
	"tab":       {'\t'},
	"esc":       {0x1b},
	"escape":    {0x1b},
	"space":     {' '},
	"backspace": {0x7f},
	"delete":    {0x1b, '[', '3', '~'},
	"del":       {0x1b, '[', '3', '~'},
	"insert":    {0x1b, '[', '2', '~'},
	"ins":       {0x1b, '[', '2', '~'},
	"home":      {0x1b, '[', 'H'},
	"end":       {0x1b, '[', 'F'},
	"pageup":    {0x1b, '[', '5', '~'},
	"pgup":      {0x1b, '[', '5', '~'},
	"pagedown":  {0x1b, '[', '6', '~'},
	"pgdn":      {0x1b, '[', '6', '~'},
	"up":        {0x1b, '[', 'A'},
	"down":      {0x1b, '[', 'B'},
	"right":     {0x1b, '[', 'C'},
	"left":      {0x1b, '[', 'D'},
	"f1":        {0x1b, 'O', 'P'},
	"f2":        {0x1b, 'O', 'Q'},
	"f3":        {0x1b, 'O', 'R'},
	"f4":        {0x1b, 'O', 'S'},
	"f5":        {0x1b, '[', '1', '5', '~'},
	"f6":        {0x1b, '[', '1', '7', '~'},
	"f7":        {0x1b, '[', '1', '8', '~'},
	"f8":        {0x1b, '[', '1', '9', '~'},
	"f9":        {0x1b, '[', '2', '0', '~'},
	"f10":       {0x1b, '[', '2', '1', '~'},
	"f11":       {0x1b, '[', '2', '3', '~'},
	"f12":       {0x1b, '[', '2', '4', '~'},
}

// ctrlSymbols are the control codes for ctrl+punctuation
var ctrlSymbols = map[byte]byte{
	'[':  0x1b,
	'\\': 0x1c,
	']':  0x1d,
	'^':  0x1e,
	'_':  0x1f,
	'?':  0x7f,
}

// ParseKey parses a key string like "ctrl+shift+c" into a KeyPress.
// A lone character keeps its case so typed text survives forwarding.
func ParseKey(s string) (KeyPress, error) {
	if utf8.RuneCountInString(s) == 1 {
		return KeyPress{Key: s}, nil
	}

	var kp KeyPress
	parts := strings.Split(s, "+")
	last := len(parts) - 1
	for _, part := range parts[:last] {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "ctrl", "control":
			kp.Ctrl = true
		case "alt", "option":
			kp.Alt = true
		case "shift":
			kp.Shift = true
		case "meta", "cmd", "command", "win", "super":
			kp.Meta = true
		default:
			return KeyPress{}, fmt.Errorf("unknown modifier: %s", part)
		}
	}

	key := strings.TrimSpace(parts[last])
	if key == "" {
		return KeyPress{}, fmt.Errorf("no key specified")
	}
	if utf8.RuneCountInString(key) > 1 {
		key = strings.ToLower(key)
	}
	if !isValidKey(key) {
		return KeyPress{}, fmt.Errorf("invalid key: %s", key)
	}
	kp.Key = key
	return kp, nil
}

func isValidKey(key string) bool {
	if utf8.RuneCountInString(key) == 1 {
		return true
	}
	_, ok := special[key]
	return ok
}

// ToBytes converts a KeyPress to the bytes to write to a PTY
func (kp KeyPress) ToBytes() []byte {
	single := len(kp.Key) == 1

	if kp.Ctrl && !kp.Alt && !kp.Meta && single {
		c := kp.Key[0]
		switch {
		case c >= 'a' && c <= 'z':
			return []byte{c - 'a' + 1}
		case c >= 'A' && c <= 'Z':
			return []byte{c - 'A' + 1}
		}
		if code, ok := ctrlSymbols[c]; ok {
			return []byte{code}
		}
	}

	if seq, ok := special[kp.Key]; ok {
		return append([]byte(nil), seq...)
	}

	if kp.Alt && single {
		return []byte{0x1b, kp.Key[0]}
	}

	if utf8.RuneCountInString(kp.Key) == 1 {
		if kp.Shift {
			return []byte(strings.ToUpper(kp.Key))
		}
		return []byte(kp.Key)
	}

	return nil
}

// KeyWriter is the interface for writing key sequences
type KeyWriter interface {
	WriteKey(key KeyPress) error
}

// Executor executes key sequences
type Executor struct {
	writer KeyWriter
}

// NewExecutor creates a new action executor
func NewExecutor(writer KeyWriter) *Executor {
	return &Executor{writer: writer}
}

// Execute executes a sequence of key strings
func (e *Executor) Execute(keys []string) error {
	for _, keyStr := range keys {
		key, err := ParseKey(keyStr)
		if err != nil {
			return fmt.Errorf("invalid key %q: %w", keyStr, err)
		}
		if err := e.writer.WriteKey(key); err != nil {
			return fmt.Errorf("failed to write key %q: %w", keyStr, err)
		}
	}
	return nil
}
