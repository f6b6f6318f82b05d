// Package home renders the idle screen shown while the pipeline waits for
// a trigger: connection state and the recent check-in notifications.
package home

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/responder-checkin/internal/keys"
	"github.com/nhle/responder-checkin/internal/model"
	"github.com/nhle/responder-checkin/internal/theme"
)

// recentLimit is how many notifications the screen lists.
const recentLimit = 10

// Notifications is the slice of the ledger the home screen reads.
type Notifications interface {
	GetRecentNotifications(ctx context.Context, limit int) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

// NotificationsLoadedMsg carries the recent notifications.
type NotificationsLoadedMsg struct {
	Items []model.Notification
	Err   error
}

// OpenChatMsg asks the parent to open a manual check-in.
type OpenChatMsg struct{}

// ReconnectMsg asks the parent to remount the trigger pipeline.
type ReconnectMsg struct{}

// Status is the pipeline summary the parent pushes into the screen.
type Status struct {
	Connection string
	Attempts   int
	Polling    string
	LastPoll   time.Time
	PollError  string
}

// Model is the home screen.
type Model struct {
	store  Notifications
	keys   *keys.KeyMap
	items  []model.Notification
	cursor int
	status Status
	err    error
	width  int
	height int
}

// New creates the home screen. A nil store shows an empty list.
func New(s Notifications, k *keys.KeyMap, width, height int) Model {
	return Model{
		store:  s,
		keys:   k,
		width:  width,
		height: height,
	}
}

// Init loads the notification list.
func (m Model) Init() tea.Cmd {
	return m.Load()
}

// Load returns a command that reads recent notifications from the ledger.
func (m Model) Load() tea.Cmd {
	s := m.store
	if s == nil {
		return nil
	}
	return func() tea.Msg {
		items, err := s.GetRecentNotifications(context.Background(), recentLimit)
		return NotificationsLoadedMsg{Items: items, Err: err}
	}
}

// Update handles messages for the home screen.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case NotificationsLoadedMsg:
		m.err = msg.Err
		if msg.Err == nil {
			m.items = msg.Items
		}
		if m.cursor >= len(m.items) {
			m.cursor = max(len(m.items)-1, 0)
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Chat):
			return m, func() tea.Msg { return OpenChatMsg{} }
		case key.Matches(msg, m.keys.Reconnect):
			return m, func() tea.Msg { return ReconnectMsg{} }
		case key.Matches(msg, m.keys.MarkRead):
			return m, m.markSelectedRead()
		}
	}
	return m, nil
}

func (m Model) markSelectedRead() tea.Cmd {
	if m.store == nil || m.cursor >= len(m.items) {
		return nil
	}
	s := m.store
	id := m.items[m.cursor].ID
	return func() tea.Msg {
		if err := s.MarkNotificationRead(context.Background(), id); err != nil {
			return NotificationsLoadedMsg{Err: err}
		}
		items, err := s.GetRecentNotifications(context.Background(), recentLimit)
		return NotificationsLoadedMsg{Items: items, Err: err}
	}
}

// SetStatus replaces the pipeline summary.
func (m *Model) SetStatus(s Status) {
	m.status = s
}

// SetSize updates the screen dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// Unread returns how many listed notifications are unread.
func (m Model) Unread() int {
	n := 0
	for _, it := range m.items {
		if !it.Read {
			n++
		}
	}
	return n
}

// View renders the home screen.
func (m Model) View() string {
	title := theme.HeadlineStyle.Render("Waiting for your next call to finish")

	conn := theme.ConnectionStyle(m.status.Connection).Render(m.status.Connection)
	statusLine := fmt.Sprintf("realtime: %s", conn)
	if m.status.Attempts > 0 {
		statusLine += theme.DimmedStyle.Render(fmt.Sprintf(" (retry %d)", m.status.Attempts))
	}
	pollLine := "polling: " + m.status.Polling
	if !m.status.LastPoll.IsZero() {
		pollLine += theme.DimmedStyle.Render(" last " + m.status.LastPoll.Format("15:04:05"))
	}
	if m.status.PollError != "" {
		pollLine += "  " + lipgloss.NewStyle().Foreground(theme.ColorRed).Render(m.status.PollError)
	}

	sections := []string{title, "", statusLine, pollLine, "", m.renderNotifications()}
	if m.err != nil {
		sections = append(sections, "", lipgloss.NewStyle().
			Foreground(theme.ColorRed).
			Render("ledger: "+m.err.Error()))
	}

	return theme.PanelStyle.
		Width(max(m.width-4, 20)).
		Render(strings.Join(sections, "\n"))
}

func (m Model) renderNotifications() string {
	if len(m.items) == 0 {
		return theme.DimmedStyle.Render("No check-ins yet.")
	}

	lines := []string{theme.AccentStyle.Render("Recent check-ins")}
	for i, n := range m.items {
		line := fmt.Sprintf("%s %s  %s",
			n.CreatedAt.Local().Format("Jan 02 15:04"),
			theme.TierStyle(string(n.Tier)).Render(string(n.Tier)),
			n.Message,
		)
		switch {
		case i == m.cursor:
			line = theme.SelectedItemStyle.Render(line)
		case n.Read:
			line = theme.ListItemStyle.Inherit(theme.DimmedStyle).Render(line)
		default:
			line = theme.ListItemStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
