package orchestrator

import "fmt"

// Abort reasons recorded in the run report.
const (
	AbortPlanningFailed = "planning_failed"
	AbortDeadlock       = "deadlock"
	AbortBudgetExceeded = "budget_exceeded"
)

// PlanningError is fatal: without a valid task graph there is nothing to run.
type PlanningError struct {
	Err error
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning failed: %v", e.Err)
}

func (e *PlanningError) Unwrap() error {
	return e.Err
}

// ExecutionError is task-local: the executor could not apply any change.
// It marks the task failed without consuming a retry and never aborts the
// run.
type ExecutionError struct {
	TaskID string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution of task %s failed: %v", e.TaskID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
