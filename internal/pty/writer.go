package pty

import (
	"time"

	"github.com/pleimann/gazeboard/internal/action"
)

// Writer paces key presses into a Manager
type Writer struct {
	manager  *Manager
	keyDelay time.Duration
}

// NewWriter creates a new PTY writer
func NewWriter(manager *Manager, keyDelay time.Duration) *Writer {
	return &Writer{
		manager:  manager,
		keyDelay: keyDelay,
	}
}

// WriteKey writes a single key press, then waits keyDelay
func (w *Writer) WriteKey(key action.KeyPress) error {
	if err := w.manager.WriteKey(key); err != nil {
		return err
	}
	// Some programs drop keys that arrive in one burst
	if w.keyDelay > 0 {
		time.Sleep(w.keyDelay)
	}
	return nil
}
