package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/snapknow/internal/models"
)

// Theme holds the color scheme for CLI output.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
	Accent  lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
	Accent:  lipgloss.Color("#D7AF5F"), // amber
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) successStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func (t Theme) accentStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Accent)
}

// renderStatus colors a record status for terminal display.
func (t Theme) renderStatus(status models.Status) string {
	switch status {
	case models.StatusCompleted:
		return t.successStyle().Render(string(status))
	case models.StatusFailed:
		return t.errorStyle().Render(string(status))
	case models.StatusProcessing:
		return t.statusStyle().Render(string(status))
	default:
		return t.hintStyle().Render(string(status))
	}
}
