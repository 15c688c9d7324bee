package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/pleimann/gazeboard/internal/hid"
)

// ErrNotInteractive is returned by pickers and forms run without a terminal
var ErrNotInteractive = errors.New("an interactive terminal is required")

// formModel runs a huh form inside Bubble Tea so esc and q abort it
type formModel struct {
	form    *huh.Form
	aborted bool
}

func (m formModel) Init() tea.Cmd {
	return m.form.Init()
}

func (m formModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "ctrl+c", "esc":
			m.aborted = true
			return m, tea.Quit
		}
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}
	if m.form.State == huh.StateCompleted {
		return m, tea.Quit
	}
	return m, cmd
}

func (m formModel) View() string {
	if m.form.State == huh.StateCompleted {
		return ""
	}
	return m.form.View()
}

// runForm shows form and reports whether the user completed it
func runForm(form *huh.Form) (bool, error) {
	if !Interactive() {
		return false, ErrNotInteractive
	}
	final, err := tea.NewProgram(formModel{form: form.WithTheme(theme()).WithShowHelp(false)}).Run()
	if err != nil {
		return false, err
	}
	return !final.(formModel).aborted, nil
}

// SwitchCandidates removes duplicates and devices without IDs
func SwitchCandidates(devices []hid.DeviceInfo) []hid.DeviceInfo {
	seen := make(map[uint32]bool)
	var out []hid.DeviceInfo
	for _, d := range devices {
		if d.VendorID == 0 && d.ProductID == 0 {
			continue
		}
		key := uint32(d.VendorID)<<16 | uint32(d.ProductID)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}

// SelectDevice asks the user to pick the assistive switch. It returns nil
// when the user cancels.
func SelectDevice(devices []hid.DeviceInfo) (*hid.DeviceInfo, error) {
	if len(devices) == 0 {
		return nil, fmt.Errorf("no devices to select from")
	}

	options := make([]huh.Option[int], len(devices))
	for i, d := range devices {
		options[i] = huh.NewOption(fmt.Sprintf("%s  %s", IDStyle.Render(deviceID(d.VendorID, d.ProductID)), deviceName(d)), i)
	}

	var selected int
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[int]().
			Title("Select switch device").
			Description("The button on this device commits the key being dwelt on (esc to cancel)").
			Options(options...).
			Value(&selected),
	))

	ok, err := runForm(form)
	if err != nil || !ok {
		return nil, err
	}
	return &devices[selected], nil
}

func deviceID(vendorID, productID uint16) string {
	return fmt.Sprintf("0x%04X:0x%04X", vendorID, productID)
}

func deviceName(d hid.DeviceInfo) string {
	name := d.Product
	if name == "" {
		name = "Unknown Device"
	}
	if d.Manufacturer != "" {
		name = d.Manufacturer + " " + name
	}
	return name
}

// PrintDeviceList writes a styled list of HID devices
func PrintDeviceList(w io.Writer, devices []hid.DeviceInfo) {
	if len(devices) == 0 {
		fmt.Fprintln(w, Warning("No HID devices found"))
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, Title("HID Devices"))
	fmt.Fprintln(w, Muted(fmt.Sprintf("Found %d device(s)", len(devices))))
	fmt.Fprintln(w)
	for _, d := range devices {
		name := d.Product
		if name == "" {
			name = "Unknown Device"
		}
		details := []string{lipgloss.NewStyle().Foreground(ColorText).Render(name)}
		if d.Manufacturer != "" {
			details = append(details, Muted("by "+d.Manufacturer))
		}
		fmt.Fprintf(w, "  %s  %s\n", IDStyle.Render(deviceID(d.VendorID, d.ProductID)), strings.Join(details, " "))
	}
	fmt.Fprintln(w)
}

// PrintSwitchSaved confirms the switch IDs written to a config file
func PrintSwitchSaved(w io.Writer, configPath string, vendorID, productID uint16, created bool) {
	msg := "Switch configuration updated"
	if created {
		msg = "Switch configuration created"
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, Success(msg))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", Muted("Config:"), configPath)
	fmt.Fprintf(w, "  %s %s\n", Muted("Switch:"), IDStyle.Render(deviceID(vendorID, productID)))
	fmt.Fprintln(w)
}

// theme matches huh forms to the palette
func theme() *huh.Theme {
	t := huh.ThemeBase()
	t.Focused.Title = t.Focused.Title.Foreground(ColorPrimary).Bold(true)
	t.Focused.Description = t.Focused.Description.Foreground(ColorMuted)
	t.Focused.SelectedOption = t.Focused.SelectedOption.Foreground(ColorPrimary)
	t.Focused.UnselectedOption = t.Focused.UnselectedOption.Foreground(ColorText)
	t.Focused.SelectSelector = t.Focused.SelectSelector.Foreground(ColorPrimary)
	return t
}
