package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/pipeline/internal/events"
)

func apply(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestModelTracksRun(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	now := time.Now()
	m := New(bus, []string{"compile", "test", "lint"})
	m = apply(t, m,
		tea.WindowSizeMsg{Width: 120, Height: 30},
		events.RunStartedEvent{RunID: "run-1", Tasks: 3, Waves: 2, Timestamp: now},
		events.StateChangedEvent{From: "planning", To: "running"},
		events.WaveStartedEvent{Index: 0, Tasks: []string{"compile"}},
		events.TaskStartedEvent{Name: "compile", Wave: 0, Timestamp: now},
		events.TaskFinishedEvent{Name: "compile", Status: "success", Attempts: 1, Output: "ok\n"},
		events.WaveCompletedEvent{Index: 0, QualityScore: 100, Continue: true},
		events.TaskStartedEvent{Name: "test", Wave: 1, Timestamp: now},
		events.TaskRetryingEvent{Name: "test", Attempt: 1, Err: "exit status 1", Delay: time.Millisecond},
	)

	if got := m.progressPane.running; got != 1 {
		t.Errorf("running = %d, want 1", got)
	}
	if got := m.progressPane.Percent(); got < 0.33 || got > 0.34 {
		t.Errorf("percent = %v, want 1/3", got)
	}

	selected, ok := m.taskPane.Selected()
	if !ok || selected.Name != "compile" || selected.Status != "success" {
		t.Fatalf("selected = %+v", selected)
	}
	if !strings.Contains(strings.Join(selected.Log, "\n"), "ok") {
		t.Errorf("compile log missing output: %q", selected.Log)
	}

	view := m.View()
	for _, want := range []string{"Tasks", "compile", "Run run-1", "running"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModelSkippedTasksDoNotUnderflowRunning(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	m := New(bus, []string{"a"})
	m = apply(t, m, events.TaskFinishedEvent{Name: "a", Status: "skipped"})

	if m.progressPane.running != 0 {
		t.Errorf("running = %d, want 0", m.progressPane.running)
	}
	if m.progressPane.Percent() != 1 {
		t.Errorf("percent = %v, want 1", m.progressPane.Percent())
	}
}

func TestModelKeys(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	m := New(bus, []string{"a", "b"})
	m = apply(t, m, tea.WindowSizeMsg{Width: 100, Height: 20})

	m = apply(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	if sel, _ := m.taskPane.Selected(); sel.Name != "b" {
		t.Errorf("selected %q after j, want b", sel.Name)
	}

	m = apply(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focusedPane != PaneProgress {
		t.Errorf("focus = %d after tab, want progress", m.focusedPane)
	}

	m = apply(t, m, RunDoneMsg{})
	if !m.Done() {
		t.Error("Done() = false after RunDoneMsg")
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !next.(Model).Quitting() || cmd == nil {
		t.Error("q should quit")
	}
}

func TestModelEventsOnClosedBus(t *testing.T) {
	bus := events.NewEventBus()
	m := New(bus, nil)
	bus.Close()

	if msg := m.Init()(); msg != nil {
		t.Errorf("Init on closed bus returned %v, want nil", msg)
	}
}
