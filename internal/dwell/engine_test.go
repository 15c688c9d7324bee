package dwell

import (
	"sync"
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeResolver resolves keys to their glyph and drops everything in stale
type fakeResolver struct {
	mu    sync.Mutex
	stale map[Target]bool
}

func (r *fakeResolver) Resolve(t Target) (Payload, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stale[t] {
		return Payload{}, false
	}
	return Payload{Kind: PayloadChar, Text: t.Glyph}, true
}

func (r *fakeResolver) invalidate(t Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stale == nil {
		r.stale = make(map[Target]bool)
	}
	r.stale[t] = true
}

type recorder struct {
	mu      sync.Mutex
	commits []Commit
	events  []Event
}

func (r *recorder) HandleCommit(c Commit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits = append(r.commits, c)
}

func (r *recorder) OnEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Commits() []Commit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Commit(nil), r.commits...)
}

func (r *recorder) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EventType
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestEngine(d time.Duration) (*Engine, *ManualScheduler, *recorder, *fakeResolver) {
	sched := NewManualScheduler(epoch)
	rec := &recorder{}
	res := &fakeResolver{}
	e := NewEngine(Config{Duration: d}, res, rec, WithScheduler(sched), WithObserver(rec))
	return e, sched, rec, res
}

func typesEqual(a, b []EventType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEngineDwellCommits(t *testing.T) {
	e, sched, rec, _ := newTestEngine(800 * time.Millisecond)
	a := KeyTarget("A")

	e.Enter(a)
	sched.Advance(799 * time.Millisecond)
	if n := len(rec.Commits()); n != 0 {
		t.Fatalf("commits before deadline = %d, want 0", n)
	}

	sched.Advance(time.Millisecond)
	commits := rec.Commits()
	if len(commits) != 1 {
		t.Fatalf("commits = %d, want 1", len(commits))
	}
	if commits[0].Target != a || commits[0].Payload.Text != "A" || commits[0].Source != SourceDwell {
		t.Errorf("commit = %+v, want dwell commit of A", commits[0])
	}
	if got := e.Snapshot().State; got != Idle {
		t.Errorf("state after commit = %v, want idle", got)
	}

	want := []EventType{EventDwellStarted, EventCommitted}
	if got := rec.Types(); !typesEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestEngineReenterDoesNotRestart(t *testing.T) {
	e, sched, rec, _ := newTestEngine(600 * time.Millisecond)
	a := KeyTarget("A")

	e.Enter(a)
	sched.Advance(400 * time.Millisecond)
	e.Enter(a)
	e.Enter(a)
	sched.Advance(200 * time.Millisecond)

	if n := len(rec.Commits()); n != 1 {
		t.Fatalf("commits = %d, want 1 at the original deadline", n)
	}
}

func TestEngineSwitchTargetCancelsPrevious(t *testing.T) {
	e, sched, rec, _ := newTestEngine(800 * time.Millisecond)
	a, b := KeyTarget("A"), KeyTarget("B")

	e.Enter(a)
	sched.Advance(500 * time.Millisecond)
	e.Enter(b)
	sched.Advance(800 * time.Millisecond)

	commits := rec.Commits()
	if len(commits) != 1 || commits[0].Target != b {
		t.Fatalf("commits = %+v, want only B", commits)
	}
	want := []EventType{EventDwellStarted, EventDwellCancelled, EventDwellStarted, EventCommitted}
	if got := rec.Types(); !typesEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestEngineLeave(t *testing.T) {
	e, sched, rec, _ := newTestEngine(600 * time.Millisecond)
	a, b := KeyTarget("A"), KeyTarget("B")

	e.Enter(a)
	e.Leave(b)
	if got := e.Snapshot(); got.State != Dwelling || got.Target != a {
		t.Fatalf("leaving another element changed state to %+v", got)
	}

	e.Leave(a)
	sched.Advance(time.Second)
	if n := len(rec.Commits()); n != 0 {
		t.Errorf("commits after leave = %d, want 0", n)
	}
	if got := e.Snapshot().State; got != Idle {
		t.Errorf("state = %v, want idle", got)
	}
}

func TestEngineCancelIsIdempotent(t *testing.T) {
	e, _, rec, _ := newTestEngine(600 * time.Millisecond)

	e.Cancel()
	e.Enter(KeyTarget("A"))
	e.Cancel()
	e.Cancel()

	want := []EventType{EventDwellStarted, EventDwellCancelled}
	if got := rec.Types(); !typesEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestEngineEnterZeroTargetCancels(t *testing.T) {
	e, sched, rec, _ := newTestEngine(600 * time.Millisecond)

	e.Enter(KeyTarget("A"))
	e.Enter(Target{})
	sched.Advance(time.Second)

	if n := len(rec.Commits()); n != 0 {
		t.Errorf("commits = %d, want 0", n)
	}
}

func TestEngineClickDuringDwellCommitsOnce(t *testing.T) {
	e, sched, rec, _ := newTestEngine(800 * time.Millisecond)
	a := KeyTarget("A")

	e.Enter(a)
	sched.Advance(799 * time.Millisecond)
	e.Commit(a, SourceClick)
	sched.Advance(time.Second)

	commits := rec.Commits()
	if len(commits) != 1 {
		t.Fatalf("commits = %d, want 1", len(commits))
	}
	if commits[0].Source != SourceClick {
		t.Errorf("source = %v, want click", commits[0].Source)
	}
	if n := sched.Pending(); n != 0 {
		t.Errorf("pending timers = %d, want 0", n)
	}
}

func TestEngineClickOtherTargetCancelsDwell(t *testing.T) {
	e, sched, rec, _ := newTestEngine(800 * time.Millisecond)

	e.Enter(KeyTarget("A"))
	e.Commit(KeyTarget("B"), SourceKeyboard)
	sched.Advance(time.Second)

	commits := rec.Commits()
	if len(commits) != 1 || commits[0].Target.Glyph != "B" {
		t.Fatalf("commits = %+v, want only B", commits)
	}
}

// leakyScheduler ignores Stop so the engine's sequence check is the only
// thing standing between a cancelled episode and a commit.
type leakyScheduler struct {
	mu    sync.Mutex
	funcs []func()
}

type leakyTimer struct{}

func (leakyTimer) Stop() bool { return true }

func (s *leakyScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funcs = append(s.funcs, f)
	return leakyTimer{}
}

func (s *leakyScheduler) Now() time.Time { return epoch }

func (s *leakyScheduler) fireAll() {
	s.mu.Lock()
	funcs := s.funcs
	s.funcs = nil
	s.mu.Unlock()
	for _, f := range funcs {
		f()
	}
}

func TestEngineStaleTimerIsNoop(t *testing.T) {
	sched := &leakyScheduler{}
	rec := &recorder{}
	e := NewEngine(DefaultConfig(), &fakeResolver{}, rec, WithScheduler(sched))

	e.Enter(KeyTarget("A"))
	e.Enter(KeyTarget("B"))
	e.Cancel()
	e.Enter(KeyTarget("C"))

	sched.fireAll()

	commits := rec.Commits()
	if len(commits) != 1 || commits[0].Target.Glyph != "C" {
		t.Fatalf("commits = %+v, want only C", commits)
	}

	// The C timer was consumed by its firing
	sched.fireAll()
	if n := len(rec.Commits()); n != 1 {
		t.Errorf("commits after refire = %d, want 1", n)
	}
}

func TestEngineStaleTimerAfterClick(t *testing.T) {
	sched := &leakyScheduler{}
	rec := &recorder{}
	e := NewEngine(DefaultConfig(), &fakeResolver{}, rec, WithScheduler(sched))

	a := KeyTarget("A")
	e.Enter(a)
	e.Commit(a, SourceClick)
	sched.fireAll()

	if n := len(rec.Commits()); n != 1 {
		t.Errorf("commits = %d, want 1", n)
	}
}

func TestEngineUnresolvableTargetDropsCommit(t *testing.T) {
	e, sched, rec, res := newTestEngine(600 * time.Millisecond)
	s := SuggestionTarget(0, 1)

	e.Enter(s)
	res.invalidate(s)
	sched.Advance(600 * time.Millisecond)

	if n := len(rec.Commits()); n != 0 {
		t.Errorf("commits = %d, want 0", n)
	}
	want := []EventType{EventDwellStarted, EventCommitDropped}
	if got := rec.Types(); !typesEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if got := e.Snapshot().State; got != Idle {
		t.Errorf("state = %v, want idle", got)
	}
}

func TestEngineConfirmDoesNotRestart(t *testing.T) {
	e, sched, rec, _ := newTestEngine(600 * time.Millisecond)
	a := KeyTarget("A")

	e.Enter(a)
	sched.Advance(300 * time.Millisecond)
	e.Confirm(a)
	e.Confirm(KeyTarget("B"))

	snap := e.Snapshot()
	if snap.Confirmations != 1 {
		t.Errorf("confirmations = %d, want 1", snap.Confirmations)
	}
	if snap.Progress != 0.5 {
		t.Errorf("progress = %v, want 0.5", snap.Progress)
	}

	sched.Advance(300 * time.Millisecond)
	if n := len(rec.Commits()); n != 1 {
		t.Errorf("commits = %d, want 1", n)
	}
}

func TestEngineSetDurationAppliesToNextEpisode(t *testing.T) {
	e, sched, rec, _ := newTestEngine(800 * time.Millisecond)

	e.Enter(KeyTarget("A"))
	e.SetDuration(200 * time.Millisecond)
	sched.Advance(200 * time.Millisecond)
	if n := len(rec.Commits()); n != 0 {
		t.Fatalf("live episode used new duration")
	}
	sched.Advance(600 * time.Millisecond)

	e.Enter(KeyTarget("B"))
	sched.Advance(200 * time.Millisecond)
	if n := len(rec.Commits()); n != 2 {
		t.Errorf("commits = %d, want 2", n)
	}
}

func TestEngineCommitLive(t *testing.T) {
	e, sched, rec, _ := newTestEngine(800 * time.Millisecond)

	if e.CommitLive(SourceSwitch) {
		t.Error("CommitLive() with nothing live = true, want false")
	}

	e.Enter(KeyTarget("E"))
	if !e.CommitLive(SourceSwitch) {
		t.Fatal("CommitLive() = false, want true")
	}
	sched.Advance(time.Second)

	commits := rec.Commits()
	if len(commits) != 1 || commits[0].Source != SourceSwitch {
		t.Errorf("commits = %+v, want one switch commit", commits)
	}
}

func TestEngineStop(t *testing.T) {
	e, sched, rec, _ := newTestEngine(600 * time.Millisecond)

	e.Enter(KeyTarget("A"))
	e.Stop()
	e.Enter(KeyTarget("B"))
	e.Commit(KeyTarget("C"), SourceClick)
	sched.Advance(time.Second)
	e.Stop()

	if n := len(rec.Commits()); n != 0 {
		t.Errorf("commits after stop = %d, want 0", n)
	}
}

func TestEngineObserverCanReadSnapshot(t *testing.T) {
	sched := NewManualScheduler(epoch)
	var e *Engine
	var states []State
	obs := ObserverFunc(func(ev Event) {
		states = append(states, e.Snapshot().State)
	})
	var during State
	handler := HandlerFunc(func(Commit) { during = e.Snapshot().State })
	e = NewEngine(DefaultConfig(), &fakeResolver{}, handler, WithScheduler(sched), WithObserver(obs))

	e.Enter(KeyTarget("A"))
	sched.Advance(DefaultDuration)

	want := []State{Dwelling, Idle}
	if len(states) != len(want) || states[0] != want[0] || states[1] != want[1] {
		t.Errorf("observed states = %v, want %v", states, want)
	}
	if during != Committed {
		t.Errorf("state during commit = %v, want committed", during)
	}
}

func TestEngineRealTimer(t *testing.T) {
	var mu sync.Mutex
	var received []Commit

	e := NewEngine(Config{Duration: 50 * time.Millisecond}, &fakeResolver{}, HandlerFunc(func(c Commit) {
		mu.Lock()
		received = append(received, c)
		mu.Unlock()
	}))
	defer e.Stop()

	e.Enter(KeyTarget("A"))
	time.Sleep(20 * time.Millisecond)
	e.Enter(KeyTarget("B"))

	// Wait for the B dwell to complete
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(received) != 1 {
		t.Fatalf("received %d commits, want 1", len(received))
	}
	if received[0].Target.Glyph != "B" {
		t.Errorf("committed %v, want key:B", received[0].Target)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		d       time.Duration
		wantErr bool
	}{
		{DefaultDuration, false},
		{400 * time.Millisecond, false},
		{800 * time.Millisecond, false},
		{MinDuration, false},
		{MaxDuration, false},
		{50 * time.Millisecond, true},
		{10 * time.Second, true},
	}
	for _, tt := range tests {
		err := Config{Duration: tt.d}.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%s) error = %v, wantErr %v", tt.d, err, tt.wantErr)
		}
	}
}
