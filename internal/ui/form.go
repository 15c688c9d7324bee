package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/pleimann/gazeboard/internal/config"
)

// dwellChoices are the countdown lengths offered by the setup form
var dwellChoices = []int{400, 600, 800, 1000, 1500, 2000}

// formValues holds the editable settings as form fields
type formValues struct {
	DwellMs      int
	Tone         bool
	Volume       string
	Addr         string
	DatabasePath string
	LogLevel     string
	LogFile      string
}

func valuesFrom(cfg *config.Config) formValues {
	return formValues{
		DwellMs:      cfg.Dwell.DurationMs,
		Tone:         cfg.Feedback.Tone,
		Volume:       strconv.FormatFloat(cfg.Feedback.Volume, 'f', -1, 64),
		Addr:         cfg.Server.Addr,
		DatabasePath: cfg.Server.DatabasePath,
		LogLevel:     cfg.Log.Level,
		LogFile:      cfg.Log.File,
	}
}

// apply copies the form fields into cfg and validates the result
func (v formValues) apply(cfg *config.Config) error {
	volume, err := strconv.ParseFloat(strings.TrimSpace(v.Volume), 64)
	if err != nil {
		return fmt.Errorf("volume: %w", err)
	}
	cfg.Dwell.DurationMs = v.DwellMs
	cfg.Feedback.Tone = v.Tone
	cfg.Feedback.Volume = volume
	cfg.Server.Addr = strings.TrimSpace(v.Addr)
	cfg.Server.DatabasePath = strings.TrimSpace(v.DatabasePath)
	cfg.Log.Level = v.LogLevel
	cfg.Log.File = strings.TrimSpace(v.LogFile)
	return cfg.Validate()
}

func validVolume(s string) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 || f > 1 {
		return fmt.Errorf("enter a number between 0 and 1")
	}
	return nil
}

// EditConfig lets the user adjust cfg in place. It returns false when the
// form was cancelled.
func EditConfig(cfg *config.Config) (bool, error) {
	v := valuesFrom(cfg)

	dwellOpts := make([]huh.Option[int], 0, len(dwellChoices)+1)
	known := false
	for _, ms := range dwellChoices {
		dwellOpts = append(dwellOpts, huh.NewOption(fmt.Sprintf("%d ms", ms), ms))
		known = known || ms == v.DwellMs
	}
	if !known {
		dwellOpts = append(dwellOpts, huh.NewOption(fmt.Sprintf("%d ms (current)", v.DwellMs), v.DwellMs))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Dwell time").
				Description("How long to look at a key before it is typed").
				Options(dwellOpts...).
				Value(&v.DwellMs),
			huh.NewConfirm().
				Title("Play a tone on every selection?").
				Value(&v.Tone),
			huh.NewInput().
				Title("Tone volume").
				Description("0 is silent, 1 is full scale").
				Validate(validVolume).
				Value(&v.Volume),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Server address").
				Value(&v.Addr),
			huh.NewInput().
				Title("History database").
				Description("SQLite file; leave empty to keep history in memory").
				Value(&v.DatabasePath),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Log level").
				Options(huh.NewOptions("debug", "info", "warn", "error")...).
				Value(&v.LogLevel),
			huh.NewInput().
				Title("Log file").
				Description("Required when running the terminal keyboard").
				Value(&v.LogFile),
		),
	)

	ok, err := runForm(form)
	if err != nil || !ok {
		return false, err
	}
	return true, v.apply(cfg)
}
