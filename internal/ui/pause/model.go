// Package pause renders the interstitial between a finished call and the
// check-in chat.
package pause

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/responder-checkin/internal/keys"
	"github.com/nhle/responder-checkin/internal/model"
	core "github.com/nhle/responder-checkin/internal/pause"
	"github.com/nhle/responder-checkin/internal/theme"
)

// frameRate is how often the countdown bar redraws.
const frameRate = 100 * time.Millisecond

// BackMsg asks the parent to dismiss the pause and return home.
type BackMsg struct{}

// tickMsg redraws the countdown for one controller.
type tickMsg struct {
	ctrl *core.Controller
	at   time.Time
}

// Model is the pause screen. It owns the controller for one presentation.
type Model struct {
	ctrl    *core.Controller
	keys    *keys.KeyMap
	bar     progress.Model
	started time.Time
	now     time.Time
	width   int
	height  int
}

// New wraps ctrl in a screen. The controller is not started until Mount.
func New(ctrl *core.Controller, k *keys.KeyMap, width, height int) Model {
	bar := progress.New(
		progress.WithSolidFill("#F66B0E"),
		progress.WithoutPercentage(),
	)
	bar.Width = min(max(width-12, 10), 60)
	return Model{
		ctrl:   ctrl,
		keys:   k,
		bar:    bar,
		width:  width,
		height: height,
	}
}

// Mount starts the controller's timer and begins redrawing.
func (m *Model) Mount() tea.Cmd {
	m.started = time.Now()
	m.now = m.started
	m.ctrl.Start()
	return m.tick()
}

// Unmount dismisses the controller. It is safe after the controller has
// already navigated.
func (m *Model) Unmount() {
	m.ctrl.Dismiss()
}

// Controller returns the owned controller.
func (m Model) Controller() *core.Controller {
	return m.ctrl
}

func (m Model) tick() tea.Cmd {
	ctrl := m.ctrl
	return tea.Tick(frameRate, func(t time.Time) tea.Msg {
		return tickMsg{ctrl: ctrl, at: t}
	})
}

// Update handles messages for the pause screen.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if msg.ctrl != m.ctrl {
			return m, nil
		}
		m.now = msg.at
		if m.ctrl.State().Terminal() {
			return m, nil
		}
		return m, m.tick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg { return BackMsg{} }
		case key.Matches(msg, m.keys.Skip):
			m.ctrl.Skip()
		}
	}
	return m, nil
}

// SetSize updates the screen dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.bar.Width = min(max(width-12, 10), 60)
}

// View renders the pause screen.
func (m Model) View() string {
	pctx := m.ctrl.Context()

	elapsed := m.now.Sub(m.started)
	percent := 0.0
	if d := m.ctrl.Delay(); d > 0 {
		percent = min(float64(elapsed)/float64(d), 1)
	}

	tier := model.TierFor(pctx.SeverityValue())
	meta := fmt.Sprintf("incident %s  severity %s", pctx.IncidentID, pctx.Severity)
	if pctx.Source == model.NavSourceDemo {
		meta += "  (demo)"
	}

	body := strings.Join([]string{
		theme.HeadlineStyle.Render(core.Headline),
		"",
		theme.TierStyle(string(tier)).Render(string(tier)) + theme.DimmedStyle.Render(meta),
		"",
		m.bar.ViewAs(percent),
		"",
		theme.HelpStyle.Render("Take a breath. enter to continue now."),
	}, "\n")

	return lipgloss.Place(
		m.width, m.height,
		lipgloss.Center, lipgloss.Center,
		theme.PanelStyle.Render(body),
	)
}
