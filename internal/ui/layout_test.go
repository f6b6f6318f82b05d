package ui

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestPipelineBadgeSegments(t *testing.T) {
	tests := []struct {
		name  string
		badge PipelineBadge
		want  []string
	}{
		{
			name:  "live",
			badge: PipelineBadge{Connection: "authenticated", Polling: "idle"},
			want:  []string{"live authenticated", "poll idle"},
		},
		{
			name:  "reconnecting with demo",
			badge: PipelineBadge{Connection: "connecting", Retries: 3, Polling: "error", Demo: true},
			want:  []string{"live connecting (retry 3)", "poll error", "demo"},
		},
		{
			name:  "screen mounted",
			badge: PipelineBadge{Screen: "chat", Connection: "disconnected"},
			want:  []string{"chat"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.badge.Segments())
		})
	}
}

func TestRenderHeaderFillsWidth(t *testing.T) {
	l := NewLayout(80, 24)
	header := l.RenderHeader("Check-in", PipelineBadge{Connection: "connected", Polling: "idle"})

	assert.Equal(t, 80, lipgloss.Width(header))
	assert.Contains(t, header, "Check-in")
	assert.Contains(t, header, "live connected")
	assert.Contains(t, header, "poll idle")
}

func TestRenderHeaderNarrowTerminal(t *testing.T) {
	l := NewLayout(10, 24)
	header := l.RenderHeader("Check-in", PipelineBadge{Screen: "pause"})
	assert.Contains(t, header, "pause")
}

func TestContentHeight(t *testing.T) {
	assert.Equal(t, 22, NewLayout(80, 24).ContentHeight())
	assert.Equal(t, 0, NewLayout(80, 1).ContentHeight())
}
