package textbuf

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pleimann/gazeboard/internal/dwell"
	"github.com/pleimann/gazeboard/internal/layout"
)

// ApplyKey returns buf after typing glyph. The delete glyph removes the
// last character; every other glyph is appended as is.
func ApplyKey(buf, glyph string) string {
	if glyph == layout.DeleteGlyph {
		return DeleteLast(buf)
	}
	return buf + glyph
}

// DeleteLast removes one trailing character
func DeleteLast(buf string) string {
	if buf == "" {
		return buf
	}
	_, size := utf8.DecodeLastRuneInString(buf)
	return buf[:len(buf)-size]
}

// ApplySuggestion replaces the word being typed with word and adds a
// trailing space
func ApplySuggestion(buf, word string) string {
	words := strings.Split(buf, " ")
	words = append(words[:len(words)-1], word)
	return strings.Join(words, " ") + " "
}

// Buffer is the mutable typed text
type Buffer struct {
	mu   sync.RWMutex
	text string
}

// New creates a buffer holding text
func New(text string) *Buffer {
	return &Buffer{text: text}
}

// Text returns the current text
func (b *Buffer) Text() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text
}

// Apply mutates the buffer with a committed payload and returns the old and
// new text
func (b *Buffer) Apply(p dwell.Payload) (string, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.text
	switch p.Kind {
	case dwell.PayloadChar:
		b.text = ApplyKey(b.text, p.Text)
	case dwell.PayloadDelete:
		b.text = DeleteLast(b.text)
	case dwell.PayloadSuggestion:
		b.text = ApplySuggestion(b.text, p.Text)
	case dwell.PayloadClear:
		b.text = ""
	}
	return prev, b.text
}

// Clear empties the buffer and returns the previous text
func (b *Buffer) Clear() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.text
	b.text = ""
	return prev
}
