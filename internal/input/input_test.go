package input

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pleimann/gazeboard/internal/dwell"
	"github.com/pleimann/gazeboard/internal/hid"
	"github.com/pleimann/gazeboard/internal/keyboard"
	"github.com/pleimann/gazeboard/internal/layout"
	"github.com/pleimann/gazeboard/internal/sensor"
	"github.com/pleimann/gazeboard/internal/suggest"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeEngine records the calls adapters make
type fakeEngine struct {
	mu    sync.Mutex
	calls []string
	live  bool
}

func (f *fakeEngine) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeEngine) Enter(t dwell.Target) { f.record("enter %s", t) }
func (f *fakeEngine) Leave(t dwell.Target) { f.record("leave %s", t) }
func (f *fakeEngine) Commit(t dwell.Target, s dwell.Source) { f.record("commit %s %s", t, s) }
func (f *fakeEngine) Cancel() { f.record("cancel") }
func (f *fakeEngine) Confirm(t dwell.Target) { f.record("confirm %s", t) }
func (f *fakeEngine) CommitLive(s dwell.Source) bool {
	f.record("commit-live %s", s)
	return f.live
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// stripHitTester: key A for x in [0,100), key B for x in [100,200)
var stripHitTester = dwell.HitTestFunc(func(x, y float64) (dwell.Target, bool) {
	switch {
	case x >= 0 && x < 100:
		return dwell.KeyTarget("A"), true
	case x >= 100 && x < 200:
		return dwell.KeyTarget("B"), true
	}
	return dwell.Target{}, false
})

func TestMouseHover(t *testing.T) {
	e := &fakeEngine{}
	m := NewMouse(e, stripHitTester)

	m.Hover(10, 0)
	m.Hover(20, 0)
	m.Hover(150, 0)
	m.Hover(500, 0)
	m.Hover(50, 0)

	want := []string{
		"enter key:A",
		"leave key:A",
		"enter key:B",
		"leave key:B",
		"enter key:A",
	}
	assert.Equal(t, want, e.Calls())
}

func TestMouseOutAndClick(t *testing.T) {
	e := &fakeEngine{}
	m := NewMouse(e, stripHitTester)

	m.Hover(10, 0)
	m.Out(150, 0)
	m.Out(10, 0)
	m.Out(999, 0)
	assert.True(t, m.Click(120, 0))
	assert.False(t, m.Click(-5, 0))

	// Hovering A again after leaving it re-enters
	m.Hover(10, 0)

	want := []string{
		"enter key:A",
		"leave key:B",
		"leave key:A",
		"commit key:B click",
		"enter key:A",
	}
	assert.Equal(t, want, e.Calls())
}

func TestMouseExit(t *testing.T) {
	e := &fakeEngine{}
	m := NewMouse(e, stripHitTester)

	m.Exit()
	m.Hover(10, 0)
	m.Exit()
	m.Exit()
	m.Hover(10, 0)

	want := []string{
		"enter key:A",
		"leave key:A",
		"enter key:A",
	}
	assert.Equal(t, want, e.Calls())
}

func TestKeyboardPress(t *testing.T) {
	board := layout.Default()

	tests := []struct {
		key  string
		ok   bool
		call string
	}{
		{"a", true, "commit key:A keyboard"},
		{"Z", true, "commit key:Z keyboard"},
		{"?", true, "commit key:? keyboard"},
		{"backspace", true, "commit key:⌫ keyboard"},
		{"space", true, "commit control:space keyboard"},
		{" ", true, "commit control:space keyboard"},
		{"esc", true, "commit control:clear keyboard"},
		{"~", false, ""},
		{"ctrl+c", false, ""},
		{"", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			e := &fakeEngine{}
			k := NewKeyboard(e, board)
			assert.Equal(t, tt.ok, k.Press(tt.key))
			if tt.ok {
				assert.Equal(t, []string{tt.call}, e.Calls())
			} else {
				assert.Empty(t, e.Calls())
			}
		})
	}
}

func sample(x float64, ms int) *dwell.Sample {
	return &dwell.Sample{X: x, Y: 0, Timestamp: epoch.Add(time.Duration(ms) * time.Millisecond)}
}

func TestGazeFeed(t *testing.T) {
	e := &fakeEngine{}
	g := NewGaze(e, stripHitTester, dwell.DefaultFilterConfig(), zap.NewNop().Sugar())

	var tapped int
	g.Tap(func(*dwell.Sample) { tapped++ })

	g.Feed(sample(50, 0))    // relocate A
	g.Feed(sample(51, 100))  // debounced
	g.Feed(nil)              // no estimate
	g.Feed(sample(52, 600))  // hold
	g.Feed(sample(53, 1200)) // confirm
	g.Feed(sample(10, 1800)) // relocate within A
	g.Feed(sample(150, 2400))
	g.Feed(sample(900, 3000))
	g.Feed(sample(905, 3600)) // still nowhere

	want := []string{
		"enter key:A",
		"enter key:A",
		"enter key:A",
		"confirm key:A",
		"enter key:A",
		"enter key:B",
		"cancel",
	}
	assert.Equal(t, want, e.Calls())
	assert.Equal(t, 9, tapped)
}

func newGazeSession(t *testing.T) (*keyboard.Session, *dwell.ManualScheduler, *Gaze) {
	t.Helper()
	sched := dwell.NewManualScheduler(epoch)
	session := keyboard.NewSession(layout.Default(), suggest.DefaultLexicon(), dwell.Config{Duration: 600 * time.Millisecond}, keyboard.WithScheduler(sched))
	t.Cleanup(session.Close)
	return session, sched, NewGaze(session.Engine(), session, dwell.DefaultFilterConfig(), zap.NewNop().Sugar())
}

func TestGazeFixationTypesRepeatedLetters(t *testing.T) {
	session, sched, g := newGazeSession(t)
	a, _ := session.Board().Key("A")

	for i := 0; i < 3; i++ {
		g.Feed(&dwell.Sample{X: a.X, Y: a.Y, Timestamp: epoch.Add(time.Duration(i) * 600 * time.Millisecond)})
		sched.Advance(600 * time.Millisecond)
	}
	assert.Equal(t, "AAA", session.Text())
}

func TestGazeRedwellsAfterKeyPress(t *testing.T) {
	session, sched, g := newGazeSession(t)
	a, _ := session.Board().Key("A")
	keys := NewKeyboard(session.Engine(), session.Board())

	g.Feed(&dwell.Sample{X: a.X, Y: a.Y, Timestamp: epoch})
	sched.Advance(300 * time.Millisecond)
	require.True(t, keys.Press("x"))

	for ms := 600; ms <= 3500; ms += 600 {
		g.Feed(&dwell.Sample{X: a.X + 1, Y: a.Y, Timestamp: epoch.Add(time.Duration(ms) * time.Millisecond)})
		if session.Text() == "XA" {
			break
		}
		sched.Advance(600 * time.Millisecond)
	}
	assert.Equal(t, "XA", session.Text())
}

func TestGazeRecoversFromClockReset(t *testing.T) {
	session, sched, g := newGazeSession(t)
	a, _ := session.Board().Key("A")
	b, _ := session.Board().Key("B")

	g.Feed(&dwell.Sample{X: a.X, Y: a.Y, Timestamp: epoch.Add(time.Hour)})
	session.Engine().Cancel()

	// A reloaded tracker page counts from zero again
	var decisions []dwell.Decision
	for i := 0; i < 4; i++ {
		k := a
		if i%2 == 1 {
			k = b
		}
		decisions = append(decisions, g.Feed(&dwell.Sample{X: k.X, Y: k.Y, Timestamp: epoch.Add(time.Duration(2+i) * time.Second)}))
	}
	assert.NotContains(t, decisions, dwell.Skip)

	sched.Advance(600 * time.Millisecond)
	assert.Equal(t, "B", session.Text())
}

type reconnectingSensor struct {
	fakeSensor
	onConnect func()
}

func (r *reconnectingSensor) OnConnect(fn func()) { r.onConnect = fn }

func TestGazeAttachResetsOnReconnect(t *testing.T) {
	e := &fakeEngine{}
	g := NewGaze(e, stripHitTester, dwell.DefaultFilterConfig(), zap.NewNop().Sugar())
	s := &reconnectingSensor{fakeSensor: fakeSensor{samples: make(chan *dwell.Sample)}}
	close(s.samples)

	require.NoError(t, g.Attach(context.Background(), s, sensor.Options{}, nil))
	require.NotNil(t, s.onConnect)

	g.Feed(sample(50, 0))
	s.onConnect()
	// Inside the old debounce window, but the history was dropped
	assert.Equal(t, dwell.Relocate, g.Feed(sample(50, 100)))
}

type fakeSensor struct {
	startErr error
	samples  chan *dwell.Sample
	stopped  bool
	opts     sensor.Options
}

func (f *fakeSensor) Start(ctx context.Context, opts sensor.Options) error {
	f.opts = opts
	return f.startErr
}
func (f *fakeSensor) Samples() <-chan *dwell.Sample { return f.samples }
func (f *fakeSensor) Stop() error {
	f.stopped = true
	return nil
}

func TestGazeAttachFailure(t *testing.T) {
	e := &fakeEngine{}
	g := NewGaze(e, stripHitTester, dwell.DefaultFilterConfig(), zap.NewNop().Sugar())
	s := &fakeSensor{startErr: sensor.ErrStartTimeout}

	var reported error
	err := g.Attach(context.Background(), s, sensor.Options{ShowPreview: false}, func(ok bool, err error) {
		assert.False(t, ok)
		reported = err
	})

	assert.ErrorIs(t, err, sensor.ErrStartTimeout)
	assert.ErrorIs(t, reported, sensor.ErrStartTimeout)
	assert.Empty(t, e.Calls())
}

func TestGazeAttachDrivesSession(t *testing.T) {
	sched := dwell.NewManualScheduler(epoch)
	session := keyboard.NewSession(layout.Default(), suggest.DefaultLexicon(), dwell.Config{Duration: 600 * time.Millisecond}, keyboard.WithScheduler(sched))
	defer session.Close()

	g := NewGaze(session.Engine(), session, dwell.DefaultFilterConfig(), zap.NewNop().Sugar())

	a, _ := session.Board().Key("A")
	s := &fakeSensor{samples: make(chan *dwell.Sample, 4)}
	s.samples <- &dwell.Sample{X: a.X, Y: a.Y, Timestamp: epoch}
	s.samples <- &dwell.Sample{X: a.X + 2, Y: a.Y, Timestamp: epoch.Add(550 * time.Millisecond)}
	close(s.samples)

	var active bool
	err := g.Attach(context.Background(), s, sensor.Options{}, func(ok bool, err error) {
		active = ok
		if ok {
			session.SetStatus(keyboard.StatusActive, keyboard.MessageActive)
		}
	})
	require.NoError(t, err)
	assert.True(t, active)
	assert.True(t, s.stopped)

	sched.Advance(600 * time.Millisecond)
	assert.Equal(t, "A", session.Text())
	assert.Equal(t, "active", session.State().Status)
}

func TestSwitchHandle(t *testing.T) {
	e := &fakeEngine{live: true}
	s := NewSwitch(e, 0, zap.NewNop().Sugar())

	press := hid.Event{Type: hid.Press, ButtonMask: 0x0001}
	other := hid.Event{Type: hid.Press, ButtonMask: 0x0002}
	release := hid.Event{Type: hid.Release}

	assert.True(t, s.Handle(press))
	assert.False(t, s.Handle(press), "held button must not repeat")
	assert.False(t, s.Handle(release))
	assert.False(t, s.Handle(other))
	assert.True(t, s.Handle(press))

	assert.Equal(t, []string{"commit-live switch", "commit-live switch"}, e.Calls())
}

type fakeSource struct {
	events []hid.Event
	waits  int
}

func (f *fakeSource) ReadEvents(ctx context.Context, events chan<- hid.Event) error {
	for _, ev := range f.events {
		events <- ev
	}
	f.events = nil
	return errors.New("device unplugged")
}

func (f *fakeSource) WaitForDevice(ctx context.Context, interval time.Duration) error {
	f.waits++
	<-ctx.Done()
	return ctx.Err()
}

func TestSwitchRun(t *testing.T) {
	e := &fakeEngine{live: true}
	s := NewSwitch(e, 1, zap.NewNop().Sugar())
	src := &fakeSource{events: []hid.Event{
		{Type: hid.Press, ButtonMask: 0x0002},
		{Type: hid.Release},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, src) }()

	require.Eventually(t, func() bool { return len(e.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 1, src.waits)
}
