// Package orchestrator drives the run: it plans a task graph from a goal,
// then walks Planning, Selecting, Executing, Validating and the retry,
// advance and abort transitions between them until every task is settled,
// finally assembling the run report.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/devflowhq/devflow/internal/contextstore"
	"github.com/devflowhq/devflow/internal/events"
	"github.com/devflowhq/devflow/internal/executor"
	"github.com/devflowhq/devflow/internal/graph"
	"github.com/devflowhq/devflow/internal/validate"
)

// Phase names published on the run topic.
const (
	PhasePlanning   = "planning"
	PhaseSelecting  = "selecting"
	PhaseExecuting  = "executing"
	PhaseValidating = "validating"
	PhaseRetrying   = "retrying"
	PhaseAborting   = "aborting"
	PhaseReporting  = "reporting"
	PhaseDone       = "done"
)

// Planner builds the task graph for a goal.
type Planner interface {
	Plan(ctx context.Context, goal, repoSummary string) (*graph.Graph, error)
}

// Applier applies one task attempt to the workspace.
type Applier interface {
	Apply(ctx context.Context, task *graph.Task, snap *contextstore.Snapshot) (executor.Result, error)
}

// Validator judges the current workspace state.
type Validator interface {
	Validate(ctx context.Context) validate.Result
}

// Summarizer describes the repository for snapshots. Optional.
type Summarizer interface {
	Summary(ctx context.Context) (string, error)
}

// Config bounds a run.
type Config struct {
	MaxRetries      int // Per-task validation retry ceiling
	IterationBudget int // Total Executing entries allowed across the run
}

// Machine is the core state machine. One Machine drives one run at a time.
type Machine struct {
	cfg        Config
	planner    Planner
	exec       Applier
	validator  Validator
	summarizer Summarizer
	bus        *events.Bus
	store      contextstore.Store // nil disables run history

	iterations  int
	validations map[string]validate.Result // last validation per task
}

// NewMachine wires a state machine. summarizer and bus may be nil.
func NewMachine(cfg Config, planner Planner, exec Applier, validator Validator) *Machine {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.IterationBudget <= 0 {
		cfg.IterationBudget = 25
	}
	return &Machine{
		cfg:       cfg,
		planner:   planner,
		exec:      exec,
		validator: validator,
	}
}

// SetBus enables event publication.
func (m *Machine) SetBus(bus *events.Bus) {
	m.bus = bus
}

// SetSummarizer provides repository summaries for snapshots.
func (m *Machine) SetSummarizer(s Summarizer) {
	m.summarizer = s
}

// SetStore enables run history persistence.
func (m *Machine) SetStore(store contextstore.Store) {
	m.store = store
}

// Run executes the whole lifecycle for one goal. The report is always
// non-nil and reflects partial progress even when an error is returned.
func (m *Machine) Run(ctx context.Context, goal string) (*Report, error) {
	started := time.Now()
	m.iterations = 0
	m.validations = make(map[string]validate.Result)

	m.publishPhase(PhasePlanning, "")

	repoSummary := ""
	if m.summarizer != nil {
		summary, err := m.summarizer.Summary(ctx)
		if err != nil {
			log.Printf("WARNING: repository summary unavailable: %v", err)
		} else {
			repoSummary = summary
		}
	}

	g, err := m.planner.Plan(ctx, goal, repoSummary)
	if err != nil {
		perr := &PlanningError{Err: err}
		m.publishPhase(PhaseAborting, AbortPlanningFailed)
		report := buildReport(goal, nil, 0, AbortPlanningFailed, started, nil)
		m.finish(ctx, 0, report)
		return report, perr
	}

	var runID int64
	if m.store != nil {
		runID, err = m.store.BeginRun(ctx, goal)
		if err != nil {
			log.Printf("WARNING: failed to record run start: %v", err)
			runID = 0
		}
	}

	abortReason := m.loop(ctx, goal, repoSummary, g, runID)

	if abortReason != "" {
		m.publishPhase(PhaseAborting, abortReason)
		for _, id := range g.SkipRemaining("run aborted: " + abortReason) {
			m.publishTaskSkipped(id, "run aborted: "+abortReason)
			m.persistTask(ctx, runID, g, id)
		}
	}

	report := buildReport(goal, g, m.iterations, abortReason, started, m.validations)
	m.finish(ctx, runID, report)

	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	return report, nil
}

// loop runs Selecting through Advancing until the graph settles or the run
// aborts. Returns the abort reason, empty for a normal finish.
func (m *Machine) loop(ctx context.Context, goal, repoSummary string, g *graph.Graph, runID int64) string {
	for {
		if ctx.Err() != nil {
			return "cancelled"
		}

		m.publishPhase(PhaseSelecting, "")
		task, ok := g.Next()
		if !ok {
			if g.Settled() {
				return ""
			}
			// Unsettled graph with nothing ready should be unreachable:
			// the failure cascade skips unsatisfiable tasks eagerly.
			return AbortDeadlock
		}

		reason := m.runTask(ctx, goal, repoSummary, g, task, runID)
		if reason != "" {
			return reason
		}

		m.publishProgress(g)
	}
}

// runTask drives one task through Executing, Validating and Retrying until
// it reaches a terminal state. Returns an abort reason when the run-level
// budget is exhausted.
func (m *Machine) runTask(ctx context.Context, goal, repoSummary string, g *graph.Graph, task *graph.Task, runID int64) string {
	taskStart := time.Now()

	for {
		if m.iterations >= m.cfg.IterationBudget {
			return AbortBudgetExceeded
		}
		m.iterations++

		if err := g.MarkInProgress(task.ID); err != nil {
			log.Printf("WARNING: %v", err)
			return ""
		}

		fresh, _ := g.Get(task.ID)
		m.publishPhase(PhaseExecuting, task.ID)
		m.publish(events.TopicTask, events.TaskStartedEvent{
			ID:        fresh.ID,
			Name:      fresh.Name,
			Category:  fresh.Category.String(),
			Attempt:   fresh.Attempts,
			Timestamp: time.Now(),
		})

		snap := &contextstore.Snapshot{
			Goal:        goal,
			RepoSummary: repoSummary,
			TaskID:      fresh.ID,
			TaskName:    fresh.Name,
			TaskDetail:  fresh.Detail,
			Category:    fresh.Category.String(),
			Attempt:     fresh.Attempts,
			PriorErrors: fresh.ErrorContext,
		}

		res, err := m.exec.Apply(ctx, fresh, snap)
		if err != nil {
			// Task-local: mark failed without consuming a retry
			execErr := &ExecutionError{TaskID: task.ID, Err: err}
			log.Printf("WARNING: %v", execErr)
			m.failTask(ctx, g, task.ID, execErr.Error(), fresh.Attempts, runID)
			return ""
		}

		m.publishPhase(PhaseValidating, task.ID)
		vres := m.validator.Validate(ctx)
		m.validations[task.ID] = vres
		m.publishValidation(task.ID, vres)

		if vres.Pass {
			if err := g.MarkSucceeded(task.ID, res.Summary); err != nil {
				log.Printf("WARNING: %v", err)
			}
			m.publish(events.TopicTask, events.TaskSucceededEvent{
				ID:        task.ID,
				Summary:   res.Summary,
				Attempts:  fresh.Attempts,
				Duration:  time.Since(taskStart),
				Timestamp: time.Now(),
			})
			m.persistTask(ctx, runID, g, task.ID)
			return ""
		}

		findings := vres.Findings()

		if fresh.Retries < m.cfg.MaxRetries {
			if err := g.AddRetry(task.ID, findings); err != nil {
				log.Printf("WARNING: %v", err)
			}
			retried, _ := g.Get(task.ID)
			m.publishPhase(PhaseRetrying, task.ID)
			m.publish(events.TopicTask, events.TaskRetryingEvent{
				ID:        task.ID,
				Retry:     retried.Retries,
				Findings:  findings,
				Timestamp: time.Now(),
			})
			m.persistTask(ctx, runID, g, task.ID)
			continue
		}

		reason := fmt.Sprintf("validation failed after %d attempts", fresh.Attempts)
		if findings != "" {
			reason += ": " + findings
		}
		m.failTask(ctx, g, task.ID, reason, fresh.Attempts, runID)
		return ""
	}
}

// failTask marks a task failed, cascades skips, and publishes the fallout.
func (m *Machine) failTask(ctx context.Context, g *graph.Graph, taskID, reason string, attempts int, runID int64) {
	skipped, err := g.MarkFailed(taskID, reason)
	if err != nil {
		log.Printf("WARNING: %v", err)
		return
	}

	m.publish(events.TopicTask, events.TaskFailedEvent{
		ID:        taskID,
		Reason:    reason,
		Attempts:  attempts,
		Timestamp: time.Now(),
	})
	m.persistTask(ctx, runID, g, taskID)

	for _, id := range skipped {
		m.publishTaskSkipped(id, "dependency failed")
		m.persistTask(ctx, runID, g, id)
	}
}

// finish publishes the terminal phases and records the run outcome.
func (m *Machine) finish(ctx context.Context, runID int64, report *Report) {
	m.publishPhase(PhaseReporting, "")

	if m.store != nil && runID != 0 {
		outcome := "completed"
		if report.AbortReason != "" {
			outcome = "aborted: " + report.AbortReason
		}
		if err := m.store.FinishRun(ctx, runID, outcome, report.Iterations); err != nil {
			log.Printf("WARNING: failed to record run outcome: %v", err)
		}
	}

	m.publishPhase(PhaseDone, "")
}

func (m *Machine) persistTask(ctx context.Context, runID int64, g *graph.Graph, taskID string) {
	if m.store == nil || runID == 0 {
		return
	}
	task, ok := g.Get(taskID)
	if !ok {
		return
	}
	rec := contextstore.TaskRecord{
		RunID:        runID,
		TaskID:       task.ID,
		Name:         task.Name,
		Category:     task.Category.String(),
		Status:       task.Status.String(),
		Attempts:     task.Attempts,
		Result:       task.Result,
		FailReason:   task.FailReason,
		SkipReason:   task.SkipReason,
		ErrorContext: task.ErrorContext,
	}
	if err := m.store.SaveTask(ctx, rec); err != nil {
		log.Printf("WARNING: failed to persist task %s: %v", task.ID, err)
	}
}

func (m *Machine) publish(topic string, event events.Event) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(topic, event)
}

func (m *Machine) publishPhase(phase, detail string) {
	m.publish(events.TopicRun, events.RunPhaseEvent{
		Phase:     phase,
		Detail:    detail,
		Timestamp: time.Now(),
	})
}

func (m *Machine) publishProgress(g *graph.Graph) {
	c := g.Counts()
	m.publish(events.TopicRun, events.RunProgressEvent{
		Total:      c.Total,
		Pending:    c.Pending,
		InProgress: c.InProgress,
		Succeeded:  c.Succeeded,
		Failed:     c.Failed,
		Skipped:    c.Skipped,
		Iterations: m.iterations,
		Timestamp:  time.Now(),
	})
}

func (m *Machine) publishTaskSkipped(taskID, reason string) {
	m.publish(events.TopicTask, events.TaskSkippedEvent{
		ID:        taskID,
		Reason:    reason,
		Timestamp: time.Now(),
	})
}

func (m *Machine) publishValidation(taskID string, vres validate.Result) {
	gates := make(map[string]bool, len(vres.Gates))
	for _, gr := range vres.Gates {
		gates[gr.Gate] = gr.Pass
	}
	m.publish(events.TopicValidation, events.ValidationResultEvent{
		ID:        taskID,
		Pass:      vres.Pass,
		Gates:     gates,
		Timestamp: time.Now(),
	})
}
