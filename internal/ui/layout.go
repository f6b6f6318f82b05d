package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/responder-checkin/internal/theme"
)

// Layout splits the terminal into a header, one mounted screen and a hint
// bar.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with one-line header and hint bar.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the width handed to the mounted screen.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height left for the mounted screen.
func (l Layout) ContentHeight() int {
	return max(l.Height-l.HeaderHeight-l.StatusBarHeight, 0)
}

// PipelineBadge is what the header shows about the trigger pipeline. While
// a pause, chat or contacts screen is mounted the pipeline is stopped and
// only Screen is shown.
type PipelineBadge struct {
	Screen     string
	Connection string
	Retries    int
	Polling    string
	Demo       bool
}

// Segments returns the header fragments in display order.
func (b PipelineBadge) Segments() []string {
	if b.Screen != "" {
		return []string{b.Screen}
	}
	conn := "live " + b.Connection
	if b.Retries > 0 {
		conn += fmt.Sprintf(" (retry %d)", b.Retries)
	}
	out := []string{conn, "poll " + b.Polling}
	if b.Demo {
		out = append(out, "demo")
	}
	return out
}

// RenderHeader renders the title on the left and the pipeline badge on the
// right. The connection segment is colored by its state.
func (l Layout) RenderHeader(title string, badge PipelineBadge) string {
	bg := theme.HeaderStyle.GetBackground()
	titleRendered := theme.HeaderStyle.Render(title)

	segments := badge.Segments()
	parts := make([]string, 0, len(segments))
	for i, s := range segments {
		style := theme.HeaderStyle
		if i == 0 && badge.Screen == "" {
			style = style.Foreground(theme.ConnectionStyle(badge.Connection).GetForeground())
		}
		parts = append(parts, style.Render(s))
	}
	statusRendered := strings.Join(parts, theme.HeaderStyle.UnsetPadding().Render("·"))

	gap := l.Width - lipgloss.Width(titleRendered) - lipgloss.Width(statusRendered)
	return lipgloss.JoinHorizontal(lipgloss.Top, titleRendered, fill(gap, bg), statusRendered)
}

// RenderStatusBar renders the bottom bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)
	gap := l.Width - lipgloss.Width(rendered)
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, fill(gap, theme.StatusBarStyle.GetBackground()))
}

// RenderWithFrame stacks header, content and status bar.
func (l Layout) RenderWithFrame(header, content, statusBar string) string {
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}

// Center places content in the middle of the content area.
func (l Layout) Center(content string) string {
	return lipgloss.Place(
		l.ContentWidth(),
		l.ContentHeight(),
		lipgloss.Center,
		lipgloss.Center,
		content,
	)
}

func fill(width int, bg lipgloss.TerminalColor) string {
	if width <= 0 {
		return ""
	}
	return lipgloss.NewStyle().Width(width).Background(bg).Render("")
}
