package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/pipeline/internal/events"
	"github.com/aristath/pipeline/internal/orchestrator"
	"github.com/aristath/pipeline/internal/report"
)

// ProgressPaneModel shows run state, wave progress and task counts.
type ProgressPaneModel struct {
	runID        string
	state        string
	total        int
	waves        int
	wave         int
	finished     int
	running      int
	counts       map[string]int
	qualityScore float64
	abortReason  string
	bar          progress.Model
	width        int
	height       int
	focused      bool
}

// NewProgressPaneModel creates a pane for a run of total tasks.
func NewProgressPaneModel(total int) ProgressPaneModel {
	return ProgressPaneModel{
		state:  "idle",
		total:  total,
		wave:   -1,
		counts: make(map[string]int),
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case events.RunStartedEvent:
		m.runID = msg.RunID
		m.total = msg.Tasks
		m.waves = msg.Waves

	case events.StateChangedEvent:
		m.state = msg.To

	case events.WaveStartedEvent:
		m.wave = msg.Index

	case events.WaveCompletedEvent:
		m.qualityScore = msg.QualityScore

	case events.TaskStartedEvent:
		m.running++

	case events.TaskFinishedEvent:
		// Skipped tasks finish without having started.
		if msg.Attempts > 0 && m.running > 0 {
			m.running--
		}
		m.finished++
		m.counts[msg.Status]++

	case events.RunFinishedEvent:
		m.state = msg.Status
		m.qualityScore = msg.QualityScore
		m.abortReason = msg.AbortReason
		m.running = 0
	}

	return m, nil
}

// Percent returns the finished fraction of tasks.
func (m ProgressPaneModel) Percent() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.finished) / float64(m.total)
}

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := report.StyleTitle.Render("Run " + m.runID)
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	waveLabel := "-"
	if m.wave >= 0 {
		waveLabel = fmt.Sprintf("%d/%d", m.wave+1, m.waves)
	}
	b.WriteString(fmt.Sprintf("State:     %s\n", m.state))
	b.WriteString(fmt.Sprintf("Wave:      %s\n", waveLabel))
	b.WriteString(fmt.Sprintf("Score:     %.1f\n", m.qualityScore))
	b.WriteString(fmt.Sprintf("Running:   %s\n", report.StyleStatusRunning.Render(fmt.Sprint(m.running))))
	b.WriteString(fmt.Sprintf("Succeeded: %s\n", report.StyleStatusSuccess.Render(fmt.Sprint(m.counts[string(orchestrator.StatusSuccess)]))))
	failed := m.counts[string(orchestrator.StatusFailed)] + m.counts[string(orchestrator.StatusTimedOut)]
	b.WriteString(fmt.Sprintf("Failed:    %s\n", report.StyleStatusFailed.Render(fmt.Sprint(failed))))
	b.WriteString(fmt.Sprintf("Skipped:   %s\n", report.StyleStatusSkipped.Render(fmt.Sprint(m.counts[string(orchestrator.StatusSkipped)]))))
	b.WriteString("\n")

	m.bar.Width = max(min(m.width-16, 60), 10)
	b.WriteString(fmt.Sprintf("%s  %d/%d\n", m.bar.ViewAs(m.Percent()), m.finished, m.total))

	if m.abortReason != "" {
		b.WriteString("\n")
		b.WriteString(report.StyleStatusFailed.Render("aborted: " + m.abortReason))
		b.WriteString("\n")
	}

	return borderStyle(m.focused).
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
