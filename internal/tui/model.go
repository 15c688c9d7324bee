// Package tui runs the circular keyboard in a terminal. The pointer drives
// dwell selection through mouse motion reporting; physical keys and clicks
// commit immediately.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"go.uber.org/zap"

	"github.com/pleimann/gazeboard/internal/dwell"
	"github.com/pleimann/gazeboard/internal/feedback"
	"github.com/pleimann/gazeboard/internal/input"
	"github.com/pleimann/gazeboard/internal/keyboard"
	"github.com/pleimann/gazeboard/internal/layout"
	"github.com/pleimann/gazeboard/internal/ui"
)

const (
	tickInterval = 50 * time.Millisecond
	headerRows   = 4 // title + boxed text line
	footerRows   = 2 // countdown + status
	outputRows   = 6 // boxed program output
	helpText     = "ctrl+s save · esc clear · ctrl+c quit"
)

var (
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9FAFB"))
	deleteStyle  = lipgloss.NewStyle().Foreground(ui.ColorError)
	suggestStyle = lipgloss.NewStyle().Foreground(ui.ColorSuccess).Bold(true)
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#111827")).Background(ui.ColorWarning).Bold(true)
)

type refreshMsg struct{}

type tickMsg time.Time

// OutputFunc returns the recent output of a forwarded program
type OutputFunc func() string

// Model implements tea.Model on top of a keyboard session
type Model struct {
	sess      *keyboard.Session
	board     *layout.Board
	highlight *feedback.Highlight
	mouse     *input.Mouse
	keys      *input.Keyboard
	bar       progress.Model
	output    OutputFunc
	logger    *zap.SugaredLogger

	width   int
	height  int
	grid    grid
	ticking bool
	dirty   chan struct{}
}

// Option configures a Model
type Option func(*Model)

// WithHighlight animates the countdown from h instead of polling the engine
func WithHighlight(h *feedback.Highlight) Option {
	return func(m *Model) { m.highlight = h }
}

// WithOutput shows a pane with the forwarded program's output
func WithOutput(fn OutputFunc) Option {
	return func(m *Model) { m.output = fn }
}

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(m *Model) { m.logger = l }
}

// NewModel creates the terminal keyboard for sess
func NewModel(sess *keyboard.Session, opts ...Option) *Model {
	engine := sess.Engine()
	m := &Model{
		sess:   sess,
		board:  sess.Board(),
		mouse:  input.NewMouse(engine, sess),
		keys:   input.NewKeyboard(engine, sess.Board()),
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		logger: zap.NewNop().Sugar(),
		dirty:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run starts the program and blocks until the user quits or ctx is done
func Run(ctx context.Context, m *Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseAllMotion(), tea.WithContext(ctx))

	// Commits made inside Update notify synchronously, so refreshes are
	// handed to the program from a separate goroutine
	done := make(chan struct{})
	m.sess.Subscribe(func(keyboard.Update) { m.Refresh() })
	go func() {
		for {
			select {
			case <-done:
				return
			case <-m.dirty:
				p.Send(refreshMsg{})
			}
		}
	}()

	_, err := p.Run()
	close(done)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Refresh asks a running program to redraw. It never blocks.
func (m *Model) Refresh() {
	select {
	case m.dirty <- struct{}{}:
	default:
	}
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	case refreshMsg:
		return m, m.startTicking()
	case tickMsg:
		if m.dwelling() {
			return m, tick()
		}
		m.ticking = false
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case tea.MouseMsg:
		m.handleMouse(msg)
		return m, m.startTicking()
	default:
		return m, nil
	}
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	rows := height - headerRows - footerRows
	if m.output != nil {
		rows -= outputRows
	}
	m.grid = newGrid(headerRows, width, rows, m.board.Extent())
	m.bar.Width = max(width/3, 10)
	m.mouse.Reset()
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "ctrl+q":
		return tea.Quit
	case "ctrl+s":
		m.sess.Finalize(context.Background())
		return nil
	case "esc":
		m.keys.Press("clear")
		return nil
	}

	switch msg.Type {
	case tea.KeyBackspace, tea.KeyDelete:
		m.keys.Press("backspace")
	case tea.KeySpace:
		m.keys.Press("space")
	case tea.KeyRunes:
		for _, r := range msg.Runes {
			if !m.keys.Press(string(r)) {
				m.logger.Debugw("key not on board", "key", string(r))
			}
		}
	}
	return nil
}

func (m *Model) handleMouse(msg tea.MouseMsg) {
	x, y, ok := m.grid.point(msg.X, msg.Y)
	switch {
	case !ok:
		m.mouse.Exit()
	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
		m.mouse.Click(x, y)
	case msg.Action == tea.MouseActionMotion:
		m.mouse.Hover(x, y)
	}
}

func (m *Model) startTicking() tea.Cmd {
	if m.ticking || !m.dwelling() {
		return nil
	}
	m.ticking = true
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// countdown returns the live target and its progress
func (m *Model) countdown() (dwell.Target, float64, bool) {
	if m.highlight != nil {
		return m.highlight.Current()
	}
	snap := m.sess.Engine().Snapshot()
	if snap.State != dwell.Dwelling {
		return dwell.Target{}, 0, false
	}
	return snap.Target, snap.Progress, true
}

func (m *Model) dwelling() bool {
	_, _, ok := m.countdown()
	return ok
}

// View implements tea.Model
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	st := m.sess.State()
	target, pct, live := m.countdown()

	sections := []string{
		ui.Title("gazeboard"),
		m.renderText(st.Text),
		m.renderBoard(st, target, live),
		m.renderCountdown(target, pct, live),
		m.renderStatus(st),
	}
	if m.output != nil {
		sections = append(sections, m.renderOutput())
	}
	return strings.Join(sections, "\n")
}

func (m *Model) renderText(text string) string {
	text = strings.ReplaceAll(text, "\n", "⏎")
	avail := max(m.width-6, 1)
	if w := runewidth.StringWidth(text); w > avail {
		text = runewidth.TruncateLeft(text, w-avail+1, "…")
	}
	return ui.HighlightBoxStyle.Width(max(m.width-2, 1)).Render(text + "▏")
}

func (m *Model) renderBoard(st keyboard.State, target dwell.Target, live bool) string {
	c := newCanvas(m.grid.cols, m.grid.rows)
	if m.grid.scale == 0 {
		return c.String()
	}

	for _, k := range m.board.Keys {
		style := keyStyle
		if k.Glyph == layout.DeleteGlyph {
			style = deleteStyle
		}
		if live && target.Kind == dwell.TargetKey && target.Glyph == k.Glyph {
			style = activeStyle
		}
		col, row := m.grid.cell(k.X, k.Y)
		c.putCentered(col, row, k.Glyph, style)
	}
	// Suggestions share the outer ring and are drawn over it
	for _, sg := range st.Suggestions {
		style := suggestStyle
		if live && target.Kind == dwell.TargetSuggestion && target.Slot == sg.Index && target.Generation == st.Generation {
			style = activeStyle
		}
		col, row := m.grid.cell(sg.X, sg.Y)
		c.putCentered(col, row, " "+sg.Word+" ", style)
	}
	return c.String()
}

func (m *Model) renderCountdown(target dwell.Target, pct float64, live bool) string {
	if !live {
		return ""
	}
	label := target.Glyph
	if target.Kind == dwell.TargetSuggestion {
		label = "word"
	}
	return ui.Muted(label+" ") + m.bar.ViewAs(pct)
}

func (m *Model) renderStatus(st keyboard.State) string {
	status := st.StatusText
	if status == "" {
		status = keyboard.MessagePointerOnly
	}
	line := status
	if st.Status == keyboard.StatusWarning.String() {
		line = ui.Warning(status)
	}
	return line + "  " + ui.Muted(helpText)
}

func (m *Model) renderOutput() string {
	lines := strings.Split(strings.TrimRight(m.output(), "\n"), "\n")
	keep := outputRows - 2
	if len(lines) > keep {
		lines = lines[len(lines)-keep:]
	}
	width := max(m.width-4, 1)
	for i, l := range lines {
		lines[i] = runewidth.Truncate(strings.TrimRight(l, "\r"), width, "")
	}
	for len(lines) < keep {
		lines = append(lines, "")
	}
	return ui.BoxStyle.Width(max(m.width-2, 1)).Render(strings.Join(lines, "\n"))
}
