// Package contacts renders the support contacts shown after a crisis
// escalation.
package contacts

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/responder-checkin/internal/keys"
	"github.com/nhle/responder-checkin/internal/model"
	"github.com/nhle/responder-checkin/internal/theme"
)

// Contact is one support option.
type Contact struct {
	Label  string
	Detail string
}

// Default is the static escalation list.
var Default = []Contact{
	{Label: "Union Therapist", Detail: "Counselors provided through your union's assistance program."},
	{Label: "Local Therapist", Detail: "Licensed therapists near you who work with first responders."},
	{Label: "Preferred Therapist", Detail: "The therapist saved in your profile."},
}

// crisisLine is always shown regardless of selection.
const crisisLine = "If you are in immediate danger, call or text 988."

// BackMsg asks the parent to return home.
type BackMsg struct{}

// SelectedMsg reports the contact the user chose.
type SelectedMsg struct {
	Contact Contact
}

// Model is the contacts screen.
type Model struct {
	pctx     model.PauseContext
	contacts []Contact
	cursor   int
	chosen   *Contact
	keys     *keys.KeyMap
	width    int
	height   int
}

// New creates the contacts screen for the escalated conversation.
func New(pctx model.PauseContext, k *keys.KeyMap, width, height int) Model {
	return Model{
		pctx:     pctx,
		contacts: Default,
		keys:     k,
		width:    width,
		height:   height,
	}
}

// Update handles messages for the contacts screen.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case SelectedMsg:
		c := msg.Contact
		m.chosen = &c
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg { return BackMsg{} }
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.contacts)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Select):
			c := m.contacts[m.cursor]
			return m, func() tea.Msg { return SelectedMsg{Contact: c} }
		}
	}
	return m, nil
}

// Chosen returns the selected contact, if any.
func (m Model) Chosen() (Contact, bool) {
	if m.chosen == nil {
		return Contact{}, false
	}
	return *m.chosen, true
}

// SetSize updates the screen dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// View renders the contacts screen.
func (m Model) View() string {
	lines := []string{
		theme.HeadlineStyle.Render("Contact Support"),
		theme.DimmedStyle.Render("You don't have to handle this alone."),
		"",
	}
	for i, c := range m.contacts {
		if i == m.cursor {
			lines = append(lines, theme.SelectedItemStyle.Render(c.Label))
		} else {
			lines = append(lines, theme.ListItemStyle.Render(c.Label))
		}
	}
	lines = append(lines, "")
	if c, ok := m.Chosen(); ok {
		lines = append(lines, theme.AccentStyle.Render(c.Label), c.Detail, "")
	}
	lines = append(lines, lipgloss.NewStyle().Foreground(theme.ColorRed).Bold(true).Render(crisisLine))

	return theme.PanelStyle.
		Width(max(m.width-4, 20)).
		Render(strings.Join(lines, "\n"))
}
