package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	Topic() string
}

// Topic constants
const (
	TopicRun  = "run"
	TopicWave = "wave"
	TopicTask = "task"
)

// Event type constants
const (
	EventTypeRunStarted    = "run.started"
	EventTypeStateChanged  = "run.state"
	EventTypeRunFinished   = "run.finished"
	EventTypeWaveStarted   = "wave.started"
	EventTypeWaveCompleted = "wave.completed"
	EventTypeTaskStarted   = "task.started"
	EventTypeTaskRetrying  = "task.retrying"
	EventTypeTaskFinished  = "task.finished"
)

// RunStartedEvent is published once the plan is fixed and execution begins.
type RunStartedEvent struct {
	RunID     string
	Tasks     int
	Waves     int
	Timestamp time.Time
}

func (e RunStartedEvent) EventType() string { return EventTypeRunStarted }
func (e RunStartedEvent) Topic() string     { return TopicRun }

// StateChangedEvent is published on every coordinator state transition.
type StateChangedEvent struct {
	RunID     string
	From      string
	To        string
	Timestamp time.Time
}

func (e StateChangedEvent) EventType() string { return EventTypeStateChanged }
func (e StateChangedEvent) Topic() string     { return TopicRun }

// RunFinishedEvent is published when the run reaches a terminal state.
type RunFinishedEvent struct {
	RunID        string
	Status       string
	QualityScore float64
	AbortReason  string
	Duration     time.Duration
	Timestamp    time.Time
}

func (e RunFinishedEvent) EventType() string { return EventTypeRunFinished }
func (e RunFinishedEvent) Topic() string     { return TopicRun }

// WaveStartedEvent is published when a wave is handed to the executor.
type WaveStartedEvent struct {
	Index     int
	Tasks     []string
	Timestamp time.Time
}

func (e WaveStartedEvent) EventType() string { return EventTypeWaveStarted }
func (e WaveStartedEvent) Topic() string     { return TopicWave }

// WaveCompletedEvent is published after a wave's checkpoint.
type WaveCompletedEvent struct {
	Index        int
	QualityScore float64
	Continue     bool
	Timestamp    time.Time
}

func (e WaveCompletedEvent) EventType() string { return EventTypeWaveCompleted }
func (e WaveCompletedEvent) Topic() string     { return TopicWave }

// TaskStartedEvent is published when a task is admitted and its first
// attempt begins.
type TaskStartedEvent struct {
	Name      string
	Wave      int
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) Topic() string     { return TopicTask }

// TaskRetryingEvent is published before a task's next attempt.
type TaskRetryingEvent struct {
	Name      string
	Attempt   int // Attempt that just failed
	Err       string
	Delay     time.Duration
	Timestamp time.Time
}

func (e TaskRetryingEvent) EventType() string { return EventTypeTaskRetrying }
func (e TaskRetryingEvent) Topic() string     { return TopicTask }

// TaskFinishedEvent is published for every terminal task result, including
// skipped tasks.
type TaskFinishedEvent struct {
	Name      string
	Status    string
	Attempts  int
	Duration  time.Duration
	Err       string
	Output    string // Tail of the last attempt's stdout and stderr
	Timestamp time.Time
}

func (e TaskFinishedEvent) EventType() string { return EventTypeTaskFinished }
func (e TaskFinishedEvent) Topic() string     { return TopicTask }
