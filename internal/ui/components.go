package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/bnema/openvd/internal/display"
	"github.com/bnema/openvd/libevdi"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// StatusBar is the title line with a running spinner
type StatusBar struct {
	Width       int
	Title       string
	Status      string
	Active      bool
	ShowSpinner bool
	spinner     spinner.Model
}

// NewStatusBar creates a new status bar
func NewStatusBar(title string) *StatusBar {
	s := spinner.New()
	s.Spinner = spinner.Spinner{
		Frames: SpinnerDot,
		FPS:    time.Second / 10,
	}
	s.Style = SpinnerStyle

	return &StatusBar{
		Title:       title,
		ShowSpinner: true,
		spinner:     s,
	}
}

// Init implements tea.Model
func (s *StatusBar) Init() tea.Cmd {
	return s.spinner.Tick
}

// Update implements tea.Model
func (s *StatusBar) Update(msg tea.Msg) (*StatusBar, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		s.spinner, cmd = s.spinner.Update(msg)
		return s, cmd
	case tea.WindowSizeMsg:
		s.Width = msg.Width
	}
	return s, nil
}

// View renders the status bar
func (s *StatusBar) View() string {
	title := TitleStyle.Render(s.Title)

	status := s.Status
	if s.ShowSpinner && s.Active {
		status = s.spinner.View() + " " + s.Status
	}
	statusFormatted := FormatStatus(s.Active, status)

	gap := s.Width - lipgloss.Width(title) - lipgloss.Width(statusFormatted) - 6
	if gap < 1 {
		gap = 1
	}

	return BoxStyle.Width(s.Width).Render(title + strings.Repeat(" ", gap) + statusFormatted)
}

// DisplayPanel lists the virtual displays
type DisplayPanel struct {
	Stats []display.Stats
	Width int
}

// View renders the display panel
func (p *DisplayPanel) View() string {
	var b strings.Builder

	b.WriteString(SubheaderStyle.Render(fmt.Sprintf("%d virtual display(s)", len(p.Stats))))
	b.WriteString("\n\n")

	if len(p.Stats) == 0 {
		b.WriteString(MutedStyle.Render("No displays"))
	}

	for i, s := range p.Stats {
		b.WriteString(FormatStatus(s.Power == libevdi.DPMSOn, BoldStyle.Render(s.Name)))
		b.WriteString("  ")
		b.WriteString(SubtleStyle.Render(FormatMode(s.Mode)))
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("  frames %d  rects %d  events %d  cursor %d,%d",
			s.Frames, s.Rects, s.Events, s.CursorX, s.CursorY))
		if s.Dropped > 0 {
			b.WriteString(WarningStyle.Render(fmt.Sprintf("  dropped %d", s.Dropped)))
		}
		if i < len(p.Stats)-1 {
			b.WriteString("\n\n")
		}
	}

	return BoxStyle.Width(p.Width).Render(b.String())
}

// ControlsHelp displays keyboard controls
type ControlsHelp struct {
	Controls []Control
	Width    int
}

// Control represents a keyboard control
type Control struct {
	Key  string
	Desc string
}

// View renders the controls help on one line
func (c *ControlsHelp) View() string {
	parts := make([]string, len(c.Controls))
	for i, ctrl := range c.Controls {
		parts[i] = FormatControl(ctrl.Key, ctrl.Desc)
	}
	return MutedStyle.Render("  ") + strings.Join(parts, SubtleStyle.Render("  •  "))
}

// Message displays a styled message
type Message struct {
	Type    MessageType
	Content string
}

// MessageType represents the type of message
type MessageType int

const (
	MessageInfo MessageType = iota
	MessageSuccess
	MessageWarning
	MessageError
)

// View renders the message
func (m *Message) View() string {
	var style lipgloss.Style
	var prefix string

	switch m.Type {
	case MessageSuccess:
		style = SuccessStyle
		prefix = IconSuccess + " "
	case MessageWarning:
		style = WarningStyle
		prefix = IconWarning + " "
	case MessageError:
		style = ErrorStyle
		prefix = IconError + " "
	default:
		style = InfoStyle
		prefix = IconInfo + " "
	}

	return style.Render(prefix + m.Content)
}
