package pty

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pleimann/gazeboard/internal/action"
)

func TestRingBuffer(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		writes []string
		want   string
	}{
		{"empty", 5, nil, ""},
		{"partial", 5, []string{"abc"}, "abc"},
		{"exact fit", 5, []string{"12345"}, "12345"},
		{"overwrite in one write", 5, []string{"hello world"}, "world"},
		{"wrap across writes", 10, []string{"hello", " ", "world"}, "ello world"},
		{"wrap then partial", 4, []string{"abc", "de"}, "bcde"},
		{"keeps zero bytes", 4, []string{"a\x00b"}, "a\x00b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := NewRingBuffer(tt.size)
			for _, w := range tt.writes {
				rb.Write([]byte(w))
			}
			if got := rb.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager("", nil, "", nil); err == nil {
		t.Error("NewManager() with empty command should return error")
	}

	m, err := NewManager("cat", nil, "", nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if m.IsRunning() {
		t.Error("IsRunning() = true before Start(), want false")
	}
	if m.RecentOutput() != "" {
		t.Errorf("RecentOutput() = %q, want empty", m.RecentOutput())
	}
}

func TestManagerWriteBeforeStart(t *testing.T) {
	m, _ := NewManager("cat", nil, "", nil)

	err := m.WriteKey(action.KeyPress{Key: "a"})
	if !errors.Is(err, ErrNotStarted) {
		t.Errorf("WriteKey() error = %v, want ErrNotStarted", err)
	}
	if err := m.Resize(24, 80); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Resize() error = %v, want ErrNotStarted", err)
	}
}

func TestManagerEchoesTypedKeys(t *testing.T) {
	m, err := NewManager("cat", nil, "", zap.NewNop().Sugar())
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Skipf("PTY unavailable: %v", err)
	}
	defer m.Stop()

	if !m.IsRunning() {
		t.Fatal("IsRunning() = false after Start()")
	}

	exec := action.NewExecutor(NewWriter(m, time.Millisecond))
	if err := exec.Execute(action.Diff("", "Hi there")); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(m.RecentOutput(), "Hi there") {
		if time.Now().After(deadline) {
			t.Fatalf("RecentOutput() = %q, want it to contain the typed text", m.RecentOutput())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestManagerStop(t *testing.T) {
	m, _ := NewManager("cat", nil, "", nil)
	if err := m.Start(context.Background()); err != nil {
		t.Skipf("PTY unavailable: %v", err)
	}

	m.Stop()

	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("program still running after Stop()")
	}
	if m.IsRunning() {
		t.Error("IsRunning() = true after Stop()")
	}
	if err := m.WriteKey(action.KeyPress{Key: "a"}); !errors.Is(err, ErrNotStarted) {
		t.Errorf("WriteKey() after Stop() error = %v, want ErrNotStarted", err)
	}
}
