package input

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pleimann/gazeboard/internal/dwell"
	"github.com/pleimann/gazeboard/internal/hid"
)

const reconnectInterval = 2 * time.Second

// EventSource is a switch device
type EventSource interface {
	ReadEvents(ctx context.Context, events chan<- hid.Event) error
	WaitForDevice(ctx context.Context, pollInterval time.Duration) error
}

// Switch commits the element being dwelt on when the assistive switch
// button goes down
type Switch struct {
	engine Engine
	button int
	logger *zap.SugaredLogger
	held   bool
}

// NewSwitch creates a switch adapter listening to button
func NewSwitch(engine Engine, button int, logger *zap.SugaredLogger) *Switch {
	return &Switch{engine: engine, button: button, logger: logger}
}

// Handle processes one switch event. It returns true when a commit was made.
func (s *Switch) Handle(ev hid.Event) bool {
	down := ev.Pressed(s.button)
	wasHeld := s.held
	s.held = down
	if !down || wasHeld {
		return false
	}
	return s.engine.CommitLive(dwell.SourceSwitch)
}

// Run reads switch events until ctx is done, reconnecting when the device
// goes away
func (s *Switch) Run(ctx context.Context, src EventSource) error {
	events := make(chan hid.Event, 16)
	errCh := make(chan error, 1)

	go func() {
		for {
			err := src.ReadEvents(ctx, events)
			if ctx.Err() != nil {
				errCh <- ctx.Err()
				return
			}
			s.logger.Warnw("switch disconnected, waiting for it to return", "error", err)
			if err := src.WaitForDevice(ctx, reconnectInterval); err != nil {
				errCh <- err
				return
			}
			s.logger.Infow("switch reconnected")
		}
	}()

	for {
		select {
		case ev := <-events:
			s.Handle(ev)
		case err := <-errCh:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}
