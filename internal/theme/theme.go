package theme

import "github.com/charmbracelet/lipgloss"

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorNavy         = lipgloss.AdaptiveColor{Dark: "#112B3C", Light: "#112B3C"}
	ColorSteelBlue    = lipgloss.AdaptiveColor{Dark: "#5B8DB8", Light: "#205375"}
	ColorSafetyOrange = lipgloss.AdaptiveColor{Dark: "#F66B0E", Light: "#C2540A"}
	ColorSoftGray     = lipgloss.AdaptiveColor{Dark: "#EFEFEF", Light: "#475569"}
	ColorWhite        = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#122B3C"}
	ColorMuted        = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#9CA3AF"}
	ColorRed          = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorGreen        = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorBorder       = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for the top bar and the application title.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#FFFFFF")).
	Background(ColorNavy).
	Padding(0, 1)

// StatusBarStyle is used for the bottom status bar.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorSoftGray).
	Background(ColorSteelBlue).
	Padding(0, 1)

// PanelStyle wraps a screen's main content.
var PanelStyle = lipgloss.NewStyle().
	Padding(1, 2).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// HeadlineStyle is the large centered prompt on the pause screen.
var HeadlineStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite)

// AccentStyle highlights calls to action.
var AccentStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorSafetyOrange)

// ListItemStyle is the base style for items in a list.
var ListItemStyle = lipgloss.NewStyle().
	PaddingLeft(2)

// SelectedItemStyle highlights the focused list item.
var SelectedItemStyle = lipgloss.NewStyle().
	PaddingLeft(1).
	Bold(true).
	Foreground(ColorSafetyOrange).
	Border(lipgloss.NormalBorder(), false, false, false, true).
	BorderForeground(ColorSafetyOrange)

// HelpStyle is used for keyboard hints.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorMuted).
	Italic(true)

// DimmedStyle renders secondary text such as timestamps and read items.
var DimmedStyle = lipgloss.NewStyle().
	Foreground(ColorMuted)

// UserStyle and SystemStyle label chat senders.
var (
	UserStyle   = lipgloss.NewStyle().Bold(true).Foreground(ColorSteelBlue)
	SystemStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorGreen)
)

// TierStyle returns a color-coded style for a severity tier.
func TierStyle(tier string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch tier {
	case "critical":
		return base.Foreground(ColorRed)
	case "warning":
		return base.Foreground(ColorSafetyOrange)
	case "reminder":
		return base.Foreground(ColorSteelBlue)
	default:
		return base.Foreground(ColorMuted)
	}
}

// ConnectionStyle colors the realtime connection status label.
func ConnectionStyle(status string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch status {
	case "authenticated", "connected":
		return base.Foreground(ColorGreen)
	case "connecting":
		return base.Foreground(ColorSafetyOrange)
	default:
		return base.Foreground(ColorRed)
	}
}
