package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	secondaryColor = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	dangerColor    = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	fgColor        = lipgloss.Color("#F9FAFB") // Light foreground
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	clockStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(fgColor).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(1, 4)

	badgeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(fgColor).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	historyStyle = lipgloss.NewStyle().
			Foreground(fgColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(dangerColor).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)
)

func stateBadge(label string, running, paused, loading bool) string {
	bg := mutedColor
	switch {
	case loading:
		bg = primaryColor
	case running:
		bg = secondaryColor
	case paused:
		bg = warningColor
	}
	return badgeStyle.Background(bg).Render(label)
}
