package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/pipeline/internal/events"
	"github.com/aristath/pipeline/internal/orchestrator"
	"github.com/aristath/pipeline/internal/report"
)

const statusPending = "pending"
const statusRunning = "running"

// TaskState is what the pane knows about one task.
type TaskState struct {
	Name      string
	Status    string // pending, running, or a terminal orchestrator.Status
	Wave      int
	Attempts  int
	Log       []string
	StartTime time.Time
	Duration  time.Duration
}

// TaskPaneModel lists tasks on the left and the selected task's log in a
// scrollable viewport on the right.
type TaskPaneModel struct {
	tasks       map[string]*TaskState
	order       []string // declaration order
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
}

// NewTaskPaneModel creates a pane listing names as pending.
func NewTaskPaneModel(names []string) TaskPaneModel {
	m := TaskPaneModel{
		tasks:    make(map[string]*TaskState, len(names)),
		viewport: viewport.New(0, 0),
	}
	for _, name := range names {
		m.ensure(name)
	}
	return m
}

func (m *TaskPaneModel) ensure(name string) *TaskState {
	if task, ok := m.tasks[name]; ok {
		return task
	}
	task := &TaskState{Name: name, Status: statusPending, Wave: -1}
	m.tasks[name] = task
	m.order = append(m.order, name)
	return task
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskStartedEvent:
		task := m.ensure(msg.Name)
		task.Status = statusRunning
		task.Wave = msg.Wave
		task.StartTime = msg.Timestamp
		task.Log = append(task.Log, fmt.Sprintf("[%s] started in wave %d", msg.Timestamp.Format(time.TimeOnly), msg.Wave))
		m.refresh(msg.Name)

	case events.TaskRetryingEvent:
		task := m.ensure(msg.Name)
		task.Attempts = msg.Attempt
		task.Log = append(task.Log, fmt.Sprintf("attempt %d failed: %s (retrying in %v)", msg.Attempt, msg.Err, msg.Delay))
		m.refresh(msg.Name)

	case events.TaskFinishedEvent:
		task := m.ensure(msg.Name)
		task.Status = msg.Status
		task.Attempts = msg.Attempts
		task.Duration = msg.Duration
		if msg.Output != "" {
			task.Log = append(task.Log, strings.TrimRight(msg.Output, "\n"))
		}
		line := fmt.Sprintf("[%s after %d attempt(s), %v]", msg.Status, msg.Attempts, msg.Duration.Round(time.Millisecond))
		if msg.Err != "" {
			line += " " + msg.Err
		}
		task.Log = append(task.Log, line)
		m.refresh(msg.Name)
	}

	return m, cmd
}

// refresh redraws the viewport if name is the selected task.
func (m *TaskPaneModel) refresh(name string) {
	if m.selectedName() == name {
		m.updateViewportContent()
	}
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := 28
	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	return borderStyle(m.focused).
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderList(width int) string {
	var b strings.Builder

	title := report.StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	for i, name := range m.order {
		task := m.tasks[name]
		if len(name) > width-6 {
			name = name[:width-9] + "..."
		}
		line := fmt.Sprintf("%s %s", StatusIcon(task.Status), name)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status string) string {
	switch status {
	case statusRunning:
		return report.StyleStatusRunning.Render("●")
	case string(orchestrator.StatusSuccess):
		return report.StyleStatusSuccess.Render("✓")
	case string(orchestrator.StatusFailed):
		return report.StyleStatusFailed.Render("✗")
	case string(orchestrator.StatusTimedOut):
		return report.StyleStatusFailed.Render("⧗")
	case string(orchestrator.StatusSkipped):
		return report.StyleStatusSkipped.Render("-")
	default:
		return report.StyleStatusSkipped.Render("○")
	}
}

func (m TaskPaneModel) selectedName() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.order[m.selectedIdx]
	}
	return ""
}

// Selected returns the state of the selected task.
func (m TaskPaneModel) Selected() (TaskState, bool) {
	task, ok := m.tasks[m.selectedName()]
	if !ok {
		return TaskState{}, false
	}
	return *task, true
}

func (m *TaskPaneModel) updateViewportContent() {
	task, ok := m.tasks[m.selectedName()]
	if !ok || len(task.Log) == 0 {
		m.viewport.SetContent("Waiting...")
		return
	}
	m.viewport.SetContent(strings.Join(task.Log, "\n"))
	m.viewport.GotoBottom()
}

func (m *TaskPaneModel) resizeViewport() {
	m.viewport.Width = max(m.width-28-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
	m.updateViewportContent()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
