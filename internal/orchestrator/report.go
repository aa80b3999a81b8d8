package orchestrator

import (
	"time"

	"github.com/devflowhq/devflow/internal/graph"
	"github.com/devflowhq/devflow/internal/validate"
)

// GateReport is one gate's verdict from a task's last validation.
type GateReport struct {
	Gate     string
	Pass     bool
	Duration time.Duration
}

// TaskReport is the terminal record of one task.
type TaskReport struct {
	ID         string
	Name       string
	Category   string
	Status     string
	Attempts   int
	Retries    int
	Result     string
	FailReason string
	SkipReason string
	Gates      []GateReport // last validation, empty if the task never validated
}

// Report is the final aggregate of a run. Produced once, at run end; the
// presentation layer renders it but never mutates it.
type Report struct {
	Goal        string
	Success     bool // true iff no task failed and the run was not aborted
	AbortReason string
	Iterations  int // Executing entries consumed across the run
	StartedAt   time.Time
	FinishedAt  time.Time
	Elapsed     time.Duration
	Tasks       []TaskReport
}

// Counts tallies terminal statuses in the report.
func (r *Report) Counts() (succeeded, failed, skipped int) {
	for _, t := range r.Tasks {
		switch t.Status {
		case graph.StatusSucceeded.String():
			succeeded++
		case graph.StatusFailed.String():
			failed++
		case graph.StatusSkipped.String():
			skipped++
		}
	}
	return succeeded, failed, skipped
}

// buildReport assembles the run report from the graph's terminal state.
// validations holds each task's last validation result, keyed by task ID.
func buildReport(goal string, g *graph.Graph, iterations int, abortReason string, started time.Time, validations map[string]validate.Result) *Report {
	finished := time.Now()
	report := &Report{
		Goal:        goal,
		AbortReason: abortReason,
		Iterations:  iterations,
		StartedAt:   started,
		FinishedAt:  finished,
		Elapsed:     finished.Sub(started),
	}

	failed := 0
	if g != nil {
		for _, task := range g.Tasks() {
			var gates []GateReport
			if vres, ok := validations[task.ID]; ok {
				for _, gr := range vres.Gates {
					gates = append(gates, GateReport{
						Gate:     gr.Gate,
						Pass:     gr.Pass,
						Duration: gr.Duration,
					})
				}
			}
			report.Tasks = append(report.Tasks, TaskReport{
				ID:         task.ID,
				Name:       task.Name,
				Category:   task.Category.String(),
				Status:     task.Status.String(),
				Attempts:   task.Attempts,
				Retries:    task.Retries,
				Result:     task.Result,
				FailReason: task.FailReason,
				SkipReason: task.SkipReason,
				Gates:      gates,
			})
			if task.Status == graph.StatusFailed {
				failed++
			}
		}
	}

	report.Success = abortReason == "" && failed == 0 && g != nil
	return report
}
