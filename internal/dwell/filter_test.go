package dwell

import (
	"math"
	"testing"
	"time"
)

// gridHitTester puts key A in the square [0,100) and key B in [100,200)
// along x; everything else is empty space.
var gridHitTester = HitTestFunc(func(x, y float64) (Target, bool) {
	if y < 0 || y >= 100 {
		return Target{}, false
	}
	switch {
	case x >= 0 && x < 100:
		return KeyTarget("A"), true
	case x >= 100 && x < 200:
		return KeyTarget("B"), true
	}
	return Target{}, false
})

func sampleAt(x, y float64, ms int) *Sample {
	return &Sample{X: x, Y: y, Timestamp: epoch.Add(time.Duration(ms) * time.Millisecond)}
}

func TestGazeFilterSequence(t *testing.T) {
	f := NewGazeFilter(DefaultFilterConfig(), gridHitTester)

	tests := []struct {
		name       string
		sample     *Sample
		want       Decision
		wantTarget string
	}{
		{"first sample on A", sampleAt(50, 50, 0), Relocate, "A"},
		{"inside debounce window", sampleAt(52, 50, 100), Skip, "A"},
		{"stable second sample", sampleAt(55, 50, 600), Hold, "A"},
		{"stable third sample confirms", sampleAt(60, 55, 1200), Confirm, "A"},
		{"still stable", sampleAt(60, 55, 1800), Confirm, "A"},
		{"large jump within A", sampleAt(10, 10, 2400), Relocate, "A"},
		{"moves to B", sampleAt(120, 10, 3000), Relocate, "B"},
		{"empty space", sampleAt(500, 500, 3600), Lost, ""},
		{"stays in empty space", sampleAt(505, 500, 4200), Hold, ""},
	}

	for _, tt := range tests {
		d, target := f.Feed(tt.sample)
		if d != tt.want {
			t.Errorf("%s: decision = %v, want %v", tt.name, d, tt.want)
		}
		if target.Glyph != tt.wantTarget {
			t.Errorf("%s: target = %v, want %q", tt.name, target, tt.wantTarget)
		}
	}
}

func TestGazeFilterInvalidSamples(t *testing.T) {
	f := NewGazeFilter(DefaultFilterConfig(), gridHitTester)
	f.Feed(sampleAt(50, 50, 0))
	f.Feed(sampleAt(50, 50, 600))

	invalid := []*Sample{
		nil,
		{X: math.NaN(), Y: 10, Timestamp: epoch.Add(2 * time.Second)},
		{X: 10, Y: math.Inf(1), Timestamp: epoch.Add(3 * time.Second)},
	}
	for _, s := range invalid {
		if d, _ := f.Feed(s); d != Skip {
			t.Errorf("Feed(%v) = %v, want skip", s, d)
		}
	}

	if f.Count() != 2 {
		t.Errorf("count = %d, want 2 (state untouched)", f.Count())
	}
	if d, _ := f.Feed(sampleAt(50, 50, 1200)); d != Confirm {
		t.Errorf("decision after invalid samples = %v, want confirm", d)
	}
}

func TestGazeFilterClockReset(t *testing.T) {
	f := NewGazeFilter(DefaultFilterConfig(), gridHitTester)
	f.Feed(sampleAt(50, 50, 3600*1000))

	// A restarted tracker counts from zero again
	d, target := f.Feed(sampleAt(150, 50, 2000))
	if d != Relocate || target.Glyph != "B" {
		t.Fatalf("first sample after reset = %v %v, want relocate to B", d, target)
	}

	var decisions []Decision
	for i := 1; i <= 3; i++ {
		d, _ := f.Feed(sampleAt(150, 50, 2000+i*1000))
		decisions = append(decisions, d)
	}
	want := []Decision{Hold, Confirm, Confirm}
	for i := range want {
		if decisions[i] != want[i] {
			t.Errorf("decisions = %v, want %v", decisions, want)
			break
		}
	}

	if d, _ := f.Feed(sampleAt(150, 50, 5200)); d != Skip {
		t.Errorf("sample inside the debounce after reset = %v, want skip", d)
	}
}

func TestGazeFilterHitTestsEverySample(t *testing.T) {
	// A point inside the radius but across an element boundary relocates
	f := NewGazeFilter(DefaultFilterConfig(), gridHitTester)
	f.Feed(sampleAt(95, 50, 0))

	d, target := f.Feed(sampleAt(105, 50, 600))
	if d != Relocate || target.Glyph != "B" {
		t.Errorf("Feed = %v %v, want relocate to B", d, target)
	}
}

func TestGazeFilterReset(t *testing.T) {
	f := NewGazeFilter(DefaultFilterConfig(), gridHitTester)
	f.Feed(sampleAt(50, 50, 0))
	f.Reset()

	if d, _ := f.Feed(sampleAt(50, 50, 10)); d != Relocate {
		t.Errorf("decision after reset = %v, want relocate", d)
	}
}

func TestFilterConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     FilterConfig
		wantErr bool
	}{
		{"defaults", DefaultFilterConfig(), false},
		{"no debounce", FilterConfig{Debounce: 0, Radius: 20, MinSamples: 1}, false},
		{"negative debounce", FilterConfig{Debounce: -1, Radius: 20, MinSamples: 3}, true},
		{"zero radius", FilterConfig{Debounce: 0, Radius: 0, MinSamples: 3}, true},
		{"zero samples", FilterConfig{Debounce: 0, Radius: 20, MinSamples: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
