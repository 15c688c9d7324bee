package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/pleimann/gazeboard/internal/dwell"
	"github.com/pleimann/gazeboard/internal/feedback"
	"github.com/pleimann/gazeboard/internal/layout"
	"github.com/pleimann/gazeboard/internal/sensor"
	"github.com/pleimann/gazeboard/internal/utils"
)

// DefaultFileName is the config file looked up in the config directory
const DefaultFileName = "config.yaml"

type Config struct {
	Dwell    DwellConfig    `yaml:"dwell" toml:"dwell"`
	Gaze     GazeConfig     `yaml:"gaze" toml:"gaze"`
	Layout   LayoutConfig   `yaml:"layout" toml:"layout"`
	Feedback FeedbackConfig `yaml:"feedback" toml:"feedback"`
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Forward  ForwardConfig  `yaml:"forward" toml:"forward"`
	Switch   SwitchConfig   `yaml:"switch" toml:"switch"`
	Log      LogConfig      `yaml:"log" toml:"log"`
}

type DwellConfig struct {
	DurationMs int `yaml:"duration_ms" toml:"duration_ms" env:"GAZEBOARD_DWELL_MS"`
}

type GazeConfig struct {
	DebounceMs           int     `yaml:"debounce_ms" toml:"debounce_ms" env:"GAZEBOARD_GAZE_DEBOUNCE_MS"`
	RadiusPx             float64 `yaml:"radius_px" toml:"radius_px" env:"GAZEBOARD_GAZE_RADIUS_PX"`
	MinSamples           int     `yaml:"min_samples" toml:"min_samples" env:"GAZEBOARD_GAZE_MIN_SAMPLES"`
	StartTimeoutMs       int     `yaml:"start_timeout_ms" toml:"start_timeout_ms" env:"GAZEBOARD_GAZE_START_TIMEOUT_MS"`
	ShowPreview          bool    `yaml:"show_preview" toml:"show_preview" env:"GAZEBOARD_GAZE_SHOW_PREVIEW"`
	ShowPredictionPoints bool    `yaml:"show_prediction_points" toml:"show_prediction_points" env:"GAZEBOARD_GAZE_SHOW_PREDICTION_POINTS"`
}

type LayoutConfig struct {
	Radius      float64 `yaml:"radius" toml:"radius" env:"GAZEBOARD_LAYOUT_RADIUS"`
	LexiconPath string  `yaml:"lexicon_path,omitempty" toml:"lexicon_path,omitempty" env:"GAZEBOARD_LEXICON_PATH"`
}

type FeedbackConfig struct {
	Tone   bool    `yaml:"tone" toml:"tone" env:"GAZEBOARD_TONE"`
	ToneHz float64 `yaml:"tone_hz" toml:"tone_hz" env:"GAZEBOARD_TONE_HZ"`
	ToneMs int     `yaml:"tone_ms" toml:"tone_ms" env:"GAZEBOARD_TONE_MS"`
	Volume float64 `yaml:"volume" toml:"volume" env:"GAZEBOARD_VOLUME"`
}

type ServerConfig struct {
	Addr         string `yaml:"addr" toml:"addr" env:"GAZEBOARD_ADDR"`
	StaticDir    string `yaml:"static_dir,omitempty" toml:"static_dir,omitempty" env:"GAZEBOARD_STATIC_DIR"`
	DatabasePath string `yaml:"database_path,omitempty" toml:"database_path,omitempty" env:"GAZEBOARD_DATABASE_PATH"`
}

type ForwardConfig struct {
	Command    string   `yaml:"command,omitempty" toml:"command,omitempty" env:"GAZEBOARD_FORWARD_COMMAND"`
	Args       []string `yaml:"args,omitempty" toml:"args,omitempty" env:"GAZEBOARD_FORWARD_ARGS" envSeparator:" "`
	WorkingDir string   `yaml:"working_dir,omitempty" toml:"working_dir,omitempty"`
	KeyDelayMs int      `yaml:"key_delay_ms" toml:"key_delay_ms"`
}

type SwitchConfig struct {
	VendorID  uint16 `yaml:"vendor_id" toml:"vendor_id" env:"GAZEBOARD_SWITCH_VENDOR_ID"`
	ProductID uint16 `yaml:"product_id" toml:"product_id" env:"GAZEBOARD_SWITCH_PRODUCT_ID"`
	Button    int    `yaml:"button" toml:"button"`
	Format    string `yaml:"format" toml:"format"`
	Offset    int    `yaml:"offset" toml:"offset"`
}

// Enabled reports whether a switch device is configured
func (s SwitchConfig) Enabled() bool {
	return s.VendorID != 0 && s.ProductID != 0
}

type LogConfig struct {
	Level       string `yaml:"level" toml:"level" env:"GAZEBOARD_LOG_LEVEL"`
	File        string `yaml:"file,omitempty" toml:"file,omitempty" env:"GAZEBOARD_LOG_FILE"`
	Development bool   `yaml:"development" toml:"development" env:"GAZEBOARD_LOG_DEVELOPMENT"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Dwell: DwellConfig{DurationMs: int(dwell.DefaultDuration / time.Millisecond)},
		Gaze: GazeConfig{
			DebounceMs:     int(dwell.DefaultDebounce / time.Millisecond),
			RadiusPx:       dwell.DefaultRadius,
			MinSamples:     dwell.DefaultMinSamples,
			StartTimeoutMs: int(sensor.DefaultStartTimeout / time.Millisecond),
		},
		Layout: LayoutConfig{Radius: layout.DefaultRadius},
		Feedback: FeedbackConfig{
			Tone:   true,
			ToneHz: feedback.DefaultFrequency,
			ToneMs: int(feedback.DefaultLength / time.Millisecond),
			Volume: feedback.DefaultGain,
		},
		Server: ServerConfig{Addr: "127.0.0.1:5000"},
		Forward: ForwardConfig{
			KeyDelayMs: 5,
		},
		Switch: SwitchConfig{Format: "event"},
		Log:    LogConfig{Level: "info"},
	}
}

// DefaultPath returns the config file in the user config directory
func DefaultPath() string {
	return filepath.Join(utils.ConfigDir(), DefaultFileName)
}

// Load reads path over the defaults, applies environment overrides and
// validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to the defaults
// plus environment otherwise
func LoadOrDefault(path string) (*Config, error) {
	if path != "" && Exists(path) {
		return Load(path)
	}
	cfg := Default()
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// Validate checks every section and joins the problems found
func (c *Config) Validate() error {
	var errs []error

	if err := c.DwellConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("dwell.duration_ms: %w", err))
	}
	if err := c.FilterConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("gaze: %w", err))
	}
	if c.Gaze.StartTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("gaze.start_timeout_ms must be positive"))
	}
	if c.Layout.Radius <= 0 {
		errs = append(errs, fmt.Errorf("layout.radius must be positive"))
	}
	if c.Feedback.Volume < 0 || c.Feedback.Volume > 1 {
		errs = append(errs, fmt.Errorf("feedback.volume must be between 0 and 1"))
	}
	if c.Feedback.Tone && (c.Feedback.ToneHz <= 0 || c.Feedback.ToneMs <= 0) {
		errs = append(errs, fmt.Errorf("feedback.tone_hz and feedback.tone_ms must be positive"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, fmt.Errorf("server.addr is required"))
	}
	if c.Forward.KeyDelayMs < 0 {
		errs = append(errs, fmt.Errorf("forward.key_delay_ms must not be negative"))
	}
	switch c.Switch.Format {
	case "event", "mask":
	default:
		errs = append(errs, fmt.Errorf("switch.format must be \"event\" or \"mask\", got %q", c.Switch.Format))
	}
	if c.Switch.Button < 0 || c.Switch.Offset < 0 {
		errs = append(errs, fmt.Errorf("switch.button and switch.offset must not be negative"))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}

// DwellConfig returns the dwell engine settings
func (c *Config) DwellConfig() dwell.Config {
	return dwell.Config{Duration: time.Duration(c.Dwell.DurationMs) * time.Millisecond}
}

// FilterConfig returns the gaze filter settings
func (c *Config) FilterConfig() dwell.FilterConfig {
	return dwell.FilterConfig{
		Debounce:   time.Duration(c.Gaze.DebounceMs) * time.Millisecond,
		Radius:     c.Gaze.RadiusPx,
		MinSamples: c.Gaze.MinSamples,
	}
}

// SensorOptions returns the options sent to a gaze tracker
func (c *Config) SensorOptions() sensor.Options {
	return sensor.Options{
		ShowPreview:          c.Gaze.ShowPreview,
		ShowPredictionPoints: c.Gaze.ShowPredictionPoints,
		StartTimeout:         time.Duration(c.Gaze.StartTimeoutMs) * time.Millisecond,
	}
}

// ToneConfig returns the commit tone settings
func (c *Config) ToneConfig() feedback.ToneConfig {
	return feedback.ToneConfig{
		Enabled:   c.Feedback.Tone,
		Frequency: c.Feedback.ToneHz,
		Length:    time.Duration(c.Feedback.ToneMs) * time.Millisecond,
		Gain:      c.Feedback.Volume,
	}
}

// Write encodes cfg to path as TOML or YAML depending on the extension
func Write(path string, cfg *Config) error {
	var buf bytes.Buffer
	buf.WriteString("# gazeboard configuration\n\n")

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	default:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// CreateDefaultConfig creates a new config file with default values and the
// specified switch device. Zero IDs leave the switch disabled.
func CreateDefaultConfig(path string, vendorID, productID uint16) error {
	if strings.ToLower(filepath.Ext(path)) == ".toml" {
		cfg := Default()
		cfg.Switch.VendorID = vendorID
		cfg.Switch.ProductID = productID
		return Write(path, cfg)
	}

	d := Default()
	content := fmt.Sprintf(`# gazeboard configuration

dwell:
  # How long a key must be looked at before it is typed
  duration_ms: %d

gaze:
  # Samples closer together than this are ignored
  debounce_ms: %d
  radius_px: %g
  min_samples: %d
  start_timeout_ms: %d
  show_preview: false
  show_prediction_points: false

layout:
  radius: %g
  # lexicon_path: /path/to/words.txt

feedback:
  tone: true
  tone_hz: %g
  tone_ms: %d
  volume: %g

server:
  addr: %q
  # static_dir: ./public
  # database_path: ~/.config/gazeboard/history.db

# Type committed text into another program
forward:
  # command: "your-tui-app"
  # args: []
  key_delay_ms: %d

# Assistive switch; pressing the button commits the element being dwelt on
switch:
  vendor_id: 0x%04X
  product_id: 0x%04X
  button: 0
  format: event
  offset: 0

log:
  level: info
  development: false
`,
		d.Dwell.DurationMs,
		d.Gaze.DebounceMs, d.Gaze.RadiusPx, d.Gaze.MinSamples, d.Gaze.StartTimeoutMs,
		d.Layout.Radius,
		d.Feedback.ToneHz, d.Feedback.ToneMs, d.Feedback.Volume,
		d.Server.Addr,
		d.Forward.KeyDelayMs,
		vendorID, productID)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	return nil
}

// UpdateSwitchIDs updates the switch vendor_id and product_id in a config
// file while preserving the rest of the file structure and comments
func UpdateSwitchIDs(path string, vendorID, productID uint16) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	content := string(data)
	// vendor_id: 0x1234, vendor_id = 4660
	vendorRegex := regexp.MustCompile(`(?m)^(\s*vendor_id\s*[:=]\s*)(?:0x[0-9A-Fa-f]+|\d+)`)
	content = vendorRegex.ReplaceAllString(content, fmt.Sprintf("${1}%s", formatID(path, vendorID)))

	productRegex := regexp.MustCompile(`(?m)^(\s*product_id\s*[:=]\s*)(?:0x[0-9A-Fa-f]+|\d+)`)
	content = productRegex.ReplaceAllString(content, fmt.Sprintf("${1}%s", formatID(path, productID)))

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// TOML integers accept hex literals too, but the encoder writes decimal
func formatID(path string, id uint16) string {
	if strings.ToLower(filepath.Ext(path)) == ".toml" {
		return fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("0x%04X", id)
}

// Exists checks if a config file exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
