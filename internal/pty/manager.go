// Package pty runs a program in a pseudo-terminal and types into it.
package pty

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"go.uber.org/zap"

	"github.com/pleimann/gazeboard/internal/action"
)

// ErrNotStarted is returned when writing before Start or after Stop
var ErrNotStarted = errors.New("PTY not started")

// DefaultOutputSize is how much recent program output is retained
const DefaultOutputSize = 4096

// RingBuffer keeps the most recent bytes written to it
type RingBuffer struct {
	data   []byte
	write  int
	filled bool
}

// NewRingBuffer creates a new ring buffer with the given size
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{data: make([]byte, size)}
}

// Write appends p, overwriting the oldest bytes once full
func (rb *RingBuffer) Write(p []byte) {
	if len(p) >= len(rb.data) {
		copy(rb.data, p[len(p)-len(rb.data):])
		rb.write = 0
		rb.filled = true
		return
	}
	n := copy(rb.data[rb.write:], p)
	if n < len(p) {
		copy(rb.data, p[n:])
		rb.filled = true
	}
	next := rb.write + len(p)
	if next >= len(rb.data) {
		rb.filled = true
	}
	rb.write = next % len(rb.data)
}

// String returns the buffer contents from oldest to newest
func (rb *RingBuffer) String() string {
	if !rb.filled {
		return string(rb.data[:rb.write])
	}
	return string(rb.data[rb.write:]) + string(rb.data[:rb.write])
}

// Manager runs the forwarding target in a PTY
type Manager struct {
	command    string
	args       []string
	workingDir string
	logger     *zap.SugaredLogger

	mu   sync.Mutex
	ptmx *os.File
	cmd  *exec.Cmd
	done chan struct{}

	outputMu     sync.RWMutex
	outputBuffer *RingBuffer
	onOutput     func()
}

// NewManager creates a new PTY manager
func NewManager(command string, args []string, workingDir string, logger *zap.SugaredLogger) (*Manager, error) {
	if command == "" {
		return nil, fmt.Errorf("command is required")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Manager{
		command:      command,
		args:         args,
		workingDir:   workingDir,
		logger:       logger,
		outputBuffer: NewRingBuffer(DefaultOutputSize),
	}, nil
}

// OnOutput registers a callback run after new output arrives
func (m *Manager) OnOutput(fn func()) {
	m.outputMu.Lock()
	m.onOutput = fn
	m.outputMu.Unlock()
}

// Start starts the program in a PTY
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ptmx != nil {
		return fmt.Errorf("already started")
	}

	cmd := exec.CommandContext(ctx, m.command, m.args...)
	if m.workingDir != "" {
		cmd.Dir = m.workingDir
	}
	cmd.Env = os.Environ()

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("failed to start PTY: %w", err)
	}

	m.ptmx = ptmx
	m.cmd = cmd
	m.done = make(chan struct{})

	go m.readOutput(ptmx)
	go func(done chan struct{}) {
		if err := cmd.Wait(); err != nil {
			m.logger.Debugw("forward target exited", "command", m.command, "error", err)
		}
		close(done)
	}(m.done)

	m.logger.Infow("forward target started", "command", m.command, "pid", cmd.Process.Pid)
	return nil
}

// Done is closed when the program exits
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// Stop interrupts the program and closes the PTY
func (m *Manager) Stop() {
	m.mu.Lock()
	cmd, ptmx, done := m.cmd, m.ptmx, m.done
	m.ptmx = nil
	m.mu.Unlock()

	if cmd != nil && cmd.Process != nil && done != nil {
		select {
		case <-done:
		default:
			if err := cmd.Process.Signal(os.Interrupt); err != nil {
				m.logger.Debugw("failed to interrupt forward target", "error", err)
			}
			<-done
		}
	}
	if ptmx != nil {
		ptmx.Close()
	}
}

func (m *Manager) readOutput(ptmx *os.File) {
	buf := make([]byte, 1024)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 {
			m.outputMu.Lock()
			m.outputBuffer.Write(buf[:n])
			fn := m.onOutput
			m.outputMu.Unlock()
			if fn != nil {
				fn()
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				m.logger.Debugw("PTY read ended", "error", err)
			}
			return
		}
	}
}

// WriteKey writes a key press to the PTY
func (m *Manager) WriteKey(key action.KeyPress) error {
	data := key.ToBytes()
	if data == nil {
		return fmt.Errorf("could not convert key %q to bytes", key.Key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ptmx == nil {
		return ErrNotStarted
	}
	_, err := m.ptmx.Write(data)
	return err
}

// RecentOutput returns recent output from the program
func (m *Manager) RecentOutput() string {
	m.outputMu.RLock()
	defer m.outputMu.RUnlock()
	return m.outputBuffer.String()
}

// Resize resizes the PTY window
func (m *Manager) Resize(rows, cols uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ptmx == nil {
		return ErrNotStarted
	}
	return pty.Setsize(m.ptmx, &pty.Winsize{Rows: rows, Cols: cols})
}

// IsRunning returns whether the program is running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()

	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}
