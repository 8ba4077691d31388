package report

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/pipeline/internal/orchestrator"
)

// Status styles
var (
	StyleStatusRunning = lipgloss.NewStyle().
				Foreground(lipgloss.Color("yellow")).
				Bold(true)

	StyleStatusSuccess = lipgloss.NewStyle().
				Foreground(lipgloss.Color("green")).
				Bold(true)

	StyleStatusFailed = lipgloss.NewStyle().
				Foreground(lipgloss.Color("red")).
				Bold(true)

	StyleStatusSkipped = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))
)

// UI element styles
var (
	StyleTitle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	StyleHelp = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	StyleBorder = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// StatusStyle returns the style for a task status.
func StatusStyle(s orchestrator.Status) lipgloss.Style {
	switch s {
	case orchestrator.StatusSuccess:
		return StyleStatusSuccess
	case orchestrator.StatusFailed, orchestrator.StatusTimedOut:
		return StyleStatusFailed
	default:
		return StyleStatusSkipped
	}
}
