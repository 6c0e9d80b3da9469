package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bnema/openvd/internal/display"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const defaultFeedLines = 200

// NotificationMsg carries one display notification into the program
type NotificationMsg display.Notification

// FeedClosedMsg is sent once the notification channel is closed
type FeedClosedMsg struct{}

type statsTickMsg time.Time

// LiveConfig configures the live event view
type LiveConfig struct {
	Title         string
	Notifications <-chan display.Notification
	Snapshot      func() []display.Stats
	MaxLines      int
	Refresh       time.Duration
}

// LiveModel is the Bubble Tea model behind `openvd run --tui`
type LiveModel struct {
	cfg       LiveConfig
	statusBar *StatusBar
	panel     *DisplayPanel
	controls  *ControlsHelp
	feed      []string
	paused    bool
	skipped   int
	closed    bool
	width     int
	height    int
	quitting  bool
}

// NewLiveModel creates the live view model
func NewLiveModel(cfg LiveConfig) *LiveModel {
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = defaultFeedLines
	}
	if cfg.Refresh <= 0 {
		cfg.Refresh = time.Second
	}
	if cfg.Title == "" {
		cfg.Title = "openvd"
	}

	statusBar := NewStatusBar(cfg.Title)
	statusBar.Active = true
	statusBar.Status = "Waiting for events"

	m := &LiveModel{
		cfg:       cfg,
		statusBar: statusBar,
		panel:     &DisplayPanel{},
		controls: &ControlsHelp{
			Controls: []Control{
				{Key: "q", Desc: "Quit"},
				{Key: "p", Desc: "Pause feed"},
				{Key: "c", Desc: "Clear feed"},
			},
		},
	}
	m.refreshStats()
	return m
}

// Init implements tea.Model
func (m *LiveModel) Init() tea.Cmd {
	return tea.Batch(m.statusBar.Init(), m.waitForNotification(), m.tick())
}

// Update implements tea.Model
func (m *LiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "c":
			m.feed = nil
			m.skipped = 0
		case "p":
			m.paused = !m.paused
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.panel.Width = msg.Width
		m.controls.Width = msg.Width

	case NotificationMsg:
		m.addNotification(display.Notification(msg))
		cmds = append(cmds, m.waitForNotification())

	case FeedClosedMsg:
		m.closed = true
		m.statusBar.Active = false
		m.statusBar.Status = "Stopped"

	case statsTickMsg:
		m.refreshStats()
		cmds = append(cmds, m.tick())
	}

	m.updateStatus()

	statusBar, cmd := m.statusBar.Update(msg)
	m.statusBar = statusBar
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View implements tea.Model
func (m *LiveModel) View() string {
	if m.quitting {
		return MutedStyle.Render("Shutting down virtual displays...\n")
	}

	sections := []string{m.statusBar.View(), m.panel.View()}

	var feed strings.Builder
	feed.WriteString(SubheaderStyle.Render("Events"))
	feed.WriteString("\n\n")

	lines := m.visibleFeed()
	if len(lines) == 0 {
		feed.WriteString(MutedStyle.Render("No events yet"))
	} else {
		feed.WriteString(strings.Join(lines, "\n"))
	}
	sections = append(sections, feed.String(), m.controls.View())

	return lipgloss.JoinVertical(lipgloss.Top, sections...)
}

// Feed returns the buffered feed lines
func (m *LiveModel) Feed() []string {
	return append([]string(nil), m.feed...)
}

func (m *LiveModel) addNotification(n display.Notification) {
	if m.paused {
		m.skipped++
		return
	}
	m.feed = append(m.feed, FormatNotification(n))
	if over := len(m.feed) - m.cfg.MaxLines; over > 0 {
		m.feed = m.feed[over:]
	}
}

func (m *LiveModel) visibleFeed() []string {
	if m.height <= 0 {
		return m.feed
	}
	// status bar, display panel and controls take the rest of the screen
	room := m.height - lipgloss.Height(m.statusBar.View()) - lipgloss.Height(m.panel.View()) - 4
	if room < 1 {
		room = 1
	}
	if len(m.feed) > room {
		return m.feed[len(m.feed)-room:]
	}
	return m.feed
}

func (m *LiveModel) updateStatus() {
	if m.closed {
		return
	}
	switch {
	case m.paused:
		m.statusBar.Status = fmt.Sprintf("Paused (%d skipped)", m.skipped)
	case len(m.feed) > 0:
		m.statusBar.Status = "Receiving events"
	}
}

func (m *LiveModel) refreshStats() {
	if m.cfg.Snapshot != nil {
		m.panel.Stats = m.cfg.Snapshot()
	}
}

func (m *LiveModel) waitForNotification() tea.Cmd {
	ch := m.cfg.Notifications
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return FeedClosedMsg{}
		}
		return NotificationMsg(n)
	}
}

func (m *LiveModel) tick() tea.Cmd {
	return tea.Tick(m.cfg.Refresh, func(t time.Time) tea.Msg {
		return statsTickMsg(t)
	})
}

// RunLive runs the live view until the user quits or ctx is done
func RunLive(ctx context.Context, cfg LiveConfig) error {
	p := tea.NewProgram(NewLiveModel(cfg), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("live view: %w", err)
	}
	return nil
}
