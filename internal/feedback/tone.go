package feedback

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/speaker"
	"go.uber.org/zap"

	"github.com/pleimann/gazeboard/internal/dwell"
)

const (
	DefaultFrequency = 800.0
	DefaultLength    = 100 * time.Millisecond
	DefaultGain      = 0.1

	sampleRate = beep.SampleRate(44100)
)

// ToneConfig describes the commit confirmation tone
type ToneConfig struct {
	Enabled   bool
	Frequency float64
	Length    time.Duration
	Gain      float64
}

// DefaultToneConfig returns the standard confirmation beep
func DefaultToneConfig() ToneConfig {
	return ToneConfig{
		Enabled:   true,
		Frequency: DefaultFrequency,
		Length:    DefaultLength,
		Gain:      DefaultGain,
	}
}

// Player plays a finite streamer
type Player interface {
	Play(s beep.Streamer) error
}

// speakerPlayer plays through the default audio device, initialising it once
type speakerPlayer struct {
	once    sync.Once
	initErr error
}

func (p *speakerPlayer) Play(s beep.Streamer) error {
	p.once.Do(func() {
		p.initErr = speaker.Init(sampleRate, sampleRate.N(time.Second/10))
	})
	if p.initErr != nil {
		return fmt.Errorf("failed to open audio device: %w", p.initErr)
	}
	speaker.Play(s)
	return nil
}

// Tone beeps on every commit. If the audio device fails the tone is
// disabled for the rest of the session and typing carries on.
type Tone struct {
	cfg    ToneConfig
	player Player
	logger *zap.SugaredLogger

	mu       sync.Mutex
	disabled bool
}

// NewTone creates a tone player on the default audio device
func NewTone(cfg ToneConfig, logger *zap.SugaredLogger) *Tone {
	return NewToneWithPlayer(cfg, &speakerPlayer{}, logger)
}

// NewToneWithPlayer creates a tone that plays through p
func NewToneWithPlayer(cfg ToneConfig, p Player, logger *zap.SugaredLogger) *Tone {
	return &Tone{cfg: cfg, player: p, logger: logger}
}

// OnEvent plays the tone for commits
func (t *Tone) OnEvent(ev dwell.Event) {
	if ev.Type != dwell.EventCommitted {
		return
	}
	t.Beep()
}

// Beep plays the tone once
func (t *Tone) Beep() {
	t.mu.Lock()
	if t.disabled || !t.cfg.Enabled {
		t.mu.Unlock()
		return
	}
	cfg := t.cfg
	t.mu.Unlock()

	if err := t.player.Play(Sine(cfg)); err != nil {
		t.mu.Lock()
		t.disabled = true
		t.mu.Unlock()
		t.logger.Warnw("commit tone disabled", "error", err)
	}
}

// SetConfig replaces the tone settings
func (t *Tone) SetConfig(cfg ToneConfig) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg = cfg
}

// Sine returns a finite sine wave streamer for cfg
func Sine(cfg ToneConfig) beep.Streamer {
	n := sampleRate.N(cfg.Length)
	step := 2 * math.Pi * cfg.Frequency / float64(sampleRate)
	phase := 0.0

	wave := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			v := math.Sin(phase)
			samples[i][0], samples[i][1] = v, v
			phase += step
		}
		return len(samples), true
	})

	return &effects.Volume{
		Streamer: beep.Take(n, wave),
		Base:     2,
		Volume:   math.Log2(cfg.Gain),
		Silent:   cfg.Gain <= 0,
	}
}
