// Package chat renders the check-in conversation on top of a chat.Session.
package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	core "github.com/nhle/responder-checkin/internal/chat"
	"github.com/nhle/responder-checkin/internal/keys"
	"github.com/nhle/responder-checkin/internal/model"
	"github.com/nhle/responder-checkin/internal/theme"
)

// CloseMsg signals the parent to close the chat and return home.
type CloseMsg struct{}

// UpdatedMsg reports that a session's snapshot changed.
type UpdatedMsg struct {
	session *core.Session
}

// Model is the chat screen. It owns the session for one conversation.
type Model struct {
	session  *core.Session
	snap     core.Snapshot
	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	keys     *keys.KeyMap
	width    int
	height   int
}

// New wraps session in a screen. The session is not started until Mount.
func New(session *core.Session, k *keys.KeyMap, width, height int) Model {
	ta := textarea.New()
	ta.Placeholder = "How are you doing?"
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.SetWidth(width - 4)
	ta.SetHeight(3)
	ta.CharLimit = 2000
	ta.Focus()

	vp := viewport.New(width-4, viewportHeight(height))
	vp.Style = lipgloss.NewStyle()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorSafetyOrange)

	return Model{
		session:  session,
		input:    ta,
		viewport: vp,
		spinner:  sp,
		keys:     k,
		width:    width,
		height:   height,
	}
}

func viewportHeight(height int) int {
	h := height - 10 // input area, title and borders
	if h < 4 {
		h = 4
	}
	return h
}

// Mount starts the session and subscribes to its updates.
func (m *Model) Mount() tea.Cmd {
	m.session.Start()
	m.snap = m.session.Snapshot()
	m.refreshViewport()
	return tea.Batch(textarea.Blink, m.spinner.Tick, waitForUpdate(m.session))
}

// Unmount closes the session. Pending replies are discarded.
func (m *Model) Unmount() {
	m.session.Close()
}

// Session returns the owned session.
func (m Model) Session() *core.Session {
	return m.session
}

// waitForUpdate blocks until the session changes or closes.
func waitForUpdate(s *core.Session) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-s.Updates():
			return UpdatedMsg{session: s}
		case <-s.Done():
			return nil
		}
	}
}

// Update handles messages for the chat screen.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case UpdatedMsg:
		if msg.session != m.session {
			return m, nil
		}
		m.snap = m.session.Snapshot()
		m.refreshViewport()
		return m, waitForUpdate(m.session)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.snap.Typing {
			m.refreshViewport()
		}
		return m, cmd

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	var cmds []tea.Cmd

	var taCmd tea.Cmd
	m.input, taCmd = m.input.Update(msg)
	if taCmd != nil {
		cmds = append(cmds, taCmd)
	}

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	if vpCmd != nil {
		cmds = append(cmds, vpCmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		return m, func() tea.Msg { return CloseMsg{} }

	case key.Matches(msg, m.keys.Send):
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		if !m.session.Send(text) {
			return m, nil
		}
		m.input.Reset()
		m.snap = m.session.Snapshot()
		m.refreshViewport()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// refreshViewport re-renders the conversation and scrolls to the bottom.
func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.renderConversation())
	m.viewport.GotoBottom()
}

func (m Model) renderConversation() string {
	var sections []string
	contentStyle := lipgloss.NewStyle().
		Foreground(theme.ColorWhite).
		Width(max(m.width-8, 10))

	for _, msg := range m.snap.Messages {
		label := theme.SystemStyle.Render("Check-in:")
		if msg.Sender == model.SenderUser {
			label = theme.UserStyle.Render("You:")
		}
		sections = append(sections,
			label+" "+theme.DimmedStyle.Render(msg.Timestamp.Local().Format("15:04")),
			contentStyle.Render(msg.Text),
			"",
		)
	}

	if m.snap.Typing {
		sections = append(sections, m.spinner.View()+theme.DimmedStyle.Render(" typing"))
	}
	if m.snap.State == core.StateEscalated {
		sections = append(sections, theme.AccentStyle.Render("Opening support contacts..."))
	}

	return strings.Join(sections, "\n")
}

// View renders the chat screen.
func (m Model) View() string {
	title := theme.HeadlineStyle.Render("Check-in") +
		theme.DimmedStyle.Render(fmt.Sprintf("  incident %s", m.snap.IncidentID))

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(
		strings.Repeat("─", max(min(m.width-6, 80), 1)),
	)

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		title,
		"",
		m.viewport.View(),
		sep,
		m.input.View(),
	)

	return theme.PanelStyle.
		Width(max(m.width-4, 20)).
		Render(content)
}

// SetSize updates the screen dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.SetWidth(width - 4)
	m.viewport.Width = width - 4
	m.viewport.Height = viewportHeight(height)
	m.refreshViewport()
}
