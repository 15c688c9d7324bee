// Package ui holds the styled terminal output shared by the CLI commands.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Palette
var (
	ColorPrimary   = lipgloss.Color("#7C3AED")
	ColorSecondary = lipgloss.Color("#6366F1")
	ColorSuccess   = lipgloss.Color("#10B981")
	ColorWarning   = lipgloss.Color("#F59E0B")
	ColorError     = lipgloss.Color("#EF4444")
	ColorMuted     = lipgloss.Color("#6B7280")
	ColorText      = lipgloss.Color("#F9FAFB")
)

var (
	TitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	SubtitleStyle = lipgloss.NewStyle().Foreground(ColorSecondary)
	SuccessStyle  = lipgloss.NewStyle().Foreground(ColorSuccess)
	WarningStyle  = lipgloss.NewStyle().Foreground(ColorWarning)
	ErrorStyle    = lipgloss.NewStyle().Bold(true).Foreground(ColorError)
	MutedStyle    = lipgloss.NewStyle().Foreground(ColorMuted)
	BoldStyle     = lipgloss.NewStyle().Bold(true)
	CodeStyle     = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Background(lipgloss.Color("#1F2937")).
			Padding(0, 1)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted).
			Padding(0, 1)

	HighlightBoxStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorPrimary).
				Padding(0, 1)

	IDStyle = lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true)
)

func Title(text string) string    { return TitleStyle.Render(text) }
func Subtitle(text string) string { return SubtitleStyle.Render(text) }
func Muted(text string) string    { return MutedStyle.Render(text) }
func Code(text string) string     { return CodeStyle.Render(text) }
func Bold(text string) string     { return BoldStyle.Render(text) }

// Success renders text with a checkmark
func Success(text string) string {
	return SuccessStyle.Render("✓ " + text)
}

// Warning renders text with a warning sign
func Warning(text string) string {
	return WarningStyle.Render("⚠ " + text)
}

// Error renders text with a cross
func Error(text string) string {
	return ErrorStyle.Render("✗ " + text)
}

// Interactive reports whether stdin and stdout are both terminals, which
// forms and pickers need
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
