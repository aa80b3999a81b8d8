package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicRun        = "run"
	TopicTask       = "task"
	TopicValidation = "validation"
	TopicSearch     = "search"
)

// Event type constants
const (
	EventTypeRunPhase         = "run.phase"
	EventTypeRunProgress      = "run.progress"
	EventTypeTaskStarted      = "task.started"
	EventTypeTaskSucceeded    = "task.succeeded"
	EventTypeTaskFailed       = "task.failed"
	EventTypeTaskSkipped      = "task.skipped"
	EventTypeTaskRetrying     = "task.retrying"
	EventTypeValidationResult = "validation.result"
	EventTypeSearchPerformed  = "search.performed"
)

// RunPhaseEvent is published when the orchestrator changes state.
type RunPhaseEvent struct {
	Phase     string // planning, selecting, executing, validating, retrying, aborting, reporting
	Detail    string // abort reason or active task, when relevant
	Timestamp time.Time
}

func (e RunPhaseEvent) EventType() string { return EventTypeRunPhase }
func (e RunPhaseEvent) TaskID() string    { return "" }

// RunProgressEvent carries graph status tallies.
type RunProgressEvent struct {
	Total      int
	Pending    int
	InProgress int
	Succeeded  int
	Failed     int
	Skipped    int
	Iterations int
	Timestamp  time.Time
}

func (e RunProgressEvent) EventType() string { return EventTypeRunProgress }
func (e RunProgressEvent) TaskID() string    { return "" }

// TaskStartedEvent is published when an execution attempt begins.
type TaskStartedEvent struct {
	ID        string
	Name      string
	Category  string
	Attempt   int // 1-based
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskSucceededEvent is published when a task passes validation.
type TaskSucceededEvent struct {
	ID        string
	Summary   string
	Attempts  int
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskSucceededEvent) EventType() string { return EventTypeTaskSucceeded }
func (e TaskSucceededEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task reaches terminal failure.
type TaskFailedEvent struct {
	ID        string
	Reason    string
	Attempts  int
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskSkippedEvent is published when a task is skipped.
type TaskSkippedEvent struct {
	ID        string
	Reason    string
	Timestamp time.Time
}

func (e TaskSkippedEvent) EventType() string { return EventTypeTaskSkipped }
func (e TaskSkippedEvent) TaskID() string    { return e.ID }

// TaskRetryingEvent is published when a failed validation consumes a retry.
type TaskRetryingEvent struct {
	ID        string
	Retry     int // retries consumed so far, including this one
	Findings  string
	Timestamp time.Time
}

func (e TaskRetryingEvent) EventType() string { return EventTypeTaskRetrying }
func (e TaskRetryingEvent) TaskID() string    { return e.ID }

// ValidationResultEvent carries per-gate outcomes for one validation call.
type ValidationResultEvent struct {
	ID        string // task under validation
	Pass      bool
	Gates     map[string]bool
	Timestamp time.Time
}

func (e ValidationResultEvent) EventType() string { return EventTypeValidationResult }
func (e ValidationResultEvent) TaskID() string    { return e.ID }

// SearchPerformedEvent is published after the executor consults the gateway.
type SearchPerformedEvent struct {
	ID          string // task being executed
	Query       string
	Unavailable bool
	Results     int
	Timestamp   time.Time
}

func (e SearchPerformedEvent) EventType() string { return EventTypeSearchPerformed }
func (e SearchPerformedEvent) TaskID() string    { return e.ID }
