package graph

// Status represents the current state of a task.
type Status int

const (
	StatusPending    Status = iota // Waiting for dependencies
	StatusReady                    // All dependencies succeeded, selected for execution
	StatusInProgress               // Currently executing
	StatusSucceeded                // Finished and passed validation
	StatusFailed                   // Exhausted retries or hit a fatal execution error
	StatusSkipped                  // Not run because a dependency failed or the run aborted
)

// String returns the lowercase name used in reports and logs.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusInProgress:
		return "in-progress"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	}
	return "unknown"
}

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusSkipped
}

// Category classifies a task for agent routing and search heuristics.
type Category int

const (
	CategoryFeature  Category = iota // feature-implementation
	CategoryFixTests                 // fix-tests
	CategoryFixLint                  // fix-lint
	CategoryRefactor                 // refactor
	CategoryOther                    // other
)

// String returns the wire name of the category.
func (c Category) String() string {
	switch c {
	case CategoryFeature:
		return "feature-implementation"
	case CategoryFixTests:
		return "fix-tests"
	case CategoryFixLint:
		return "fix-lint"
	case CategoryRefactor:
		return "refactor"
	}
	return "other"
}

// ParseCategory maps a wire name to a Category. Unknown names map to other.
func ParseCategory(s string) Category {
	switch s {
	case "feature-implementation", "feature":
		return CategoryFeature
	case "fix-tests":
		return CategoryFixTests
	case "fix-lint":
		return CategoryFixLint
	case "refactor":
		return CategoryRefactor
	}
	return CategoryOther
}

// Task represents a unit of work in the task graph.
// Created once by the planner; status, retry count and error context are
// mutated only by the orchestrator. Tasks are never deleted, only
// transitioned, so a completed graph doubles as the run record.
type Task struct {
	ID           string   // Unique identifier, stable for the run
	Name         string   // Human-readable name
	Category     Category // Drives agent routing and search heuristics
	Detail       string   // Free-text implementation detail
	Priority     int      // Lower executes first among ready tasks
	DependsOn    []string // Task IDs that must succeed before this task is ready
	Status       Status
	Retries      int    // Validation retries consumed so far
	Attempts     int    // Executing entries for this task
	ErrorContext string // Accumulated validation findings, grows across retries
	Result       string // Mutation summary from the last attempt
	SkipReason   string // Why the task was skipped, for the report
	FailReason   string // Why the task failed, for the report
}
