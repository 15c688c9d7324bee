package sensor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pleimann/gazeboard/internal/dwell"
)

// Replay plays back a JSON-lines recording of tracker samples
type Replay struct {
	r      io.Reader
	closer io.Closer
	speed  float64

	samples chan *dwell.Sample
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
	started bool
}

// NewReplay plays samples from r. A speed of 0 emits samples as fast as
// the consumer reads them; 1 keeps the recorded pacing.
func NewReplay(r io.Reader, speed float64) *Replay {
	return &Replay{
		r:       r,
		speed:   speed,
		samples: make(chan *dwell.Sample),
		done:    make(chan struct{}),
	}
}

// OpenReplay plays samples from a recording file
func OpenReplay(path string, speed float64) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open gaze recording: %w", err)
	}
	r := NewReplay(f, speed)
	r.closer = f
	return r, nil
}

// Start begins playback in the background
func (r *Replay) Start(ctx context.Context, opts Options) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("replay already started")
	}
	if r.r == nil {
		return fmt.Errorf("replay has no input")
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)
	go r.run(ctx)
	return nil
}

// Samples returns the replayed stream; it is closed at the end of the recording
func (r *Replay) Samples() <-chan *dwell.Sample {
	return r.samples
}

// Done is closed when playback finishes
func (r *Replay) Done() <-chan struct{} {
	return r.done
}

// Stop ends playback early
func (r *Replay) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	started := r.started
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-r.done
	}
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

func (r *Replay) run(ctx context.Context) {
	defer close(r.done)
	defer close(r.samples)

	var prev time.Time
	scanner := bufio.NewScanner(r.r)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		s := DecodeSample(line)

		if s != nil && r.speed > 0 {
			if !prev.IsZero() {
				if gap := s.Timestamp.Sub(prev); gap > 0 {
					if !sleep(ctx, time.Duration(float64(gap)/r.speed)) {
						return
					}
				}
			}
			prev = s.Timestamp
		}

		select {
		case r.samples <- s:
		case <-ctx.Done():
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Recorder writes samples in the replay format
type Recorder struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewRecorder creates a recorder writing to w
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{w: bufio.NewWriter(w)}
}

// Record appends one sample
func (rec *Recorder) Record(s *dwell.Sample) error {
	data, err := EncodeSample(s)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if _, err := rec.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write sample: %w", err)
	}
	return nil
}

// Flush writes buffered samples
func (rec *Recorder) Flush() error {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.w.Flush()
}
