package graph

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gammazero/toposort"
)

// Graph is the directed acyclic set of tasks for one goal.
// Owned by the orchestrator for the duration of a run; the mutex exists so
// the event-driven UI can take consistent snapshots while a run is active.
type Graph struct {
	mu         sync.RWMutex
	tasks      map[string]*Task
	order      []string            // Declaration order, the scheduling tie-break
	dependents map[string][]string // taskID -> tasks that depend on it
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
	}
}

// Add inserts a task. Returns an error if the task ID already exists.
func (g *Graph) Add(task *Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %q already exists", task.ID)
	}

	g.tasks[task.ID] = task
	g.order = append(g.order, task.ID)

	for _, depID := range task.DependsOn {
		g.dependents[depID] = append(g.dependents[depID], task.ID)
	}

	return nil
}

// Validate verifies every dependency reference exists and the graph is
// acyclic, using a topological sort. Returns the sorted task IDs.
func (g *Graph) Validate() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for taskID, task := range g.tasks {
		for _, depID := range task.DependsOn {
			if _, exists := g.tasks[depID]; !exists {
				return nil, fmt.Errorf("task %q depends on non-existent task %q", taskID, depID)
			}
			if depID == taskID {
				return nil, fmt.Errorf("task %q depends on itself", taskID)
			}
		}
	}

	var edges []toposort.Edge
	for _, taskID := range g.order {
		task := g.tasks[taskID]
		if len(task.DependsOn) == 0 {
			// Edge from nil ensures isolated tasks appear in the sort
			edges = append(edges, toposort.Edge{nil, taskID})
		} else {
			for _, depID := range task.DependsOn {
				edges = append(edges, toposort.Edge{depID, taskID})
			}
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("task graph contains cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	if len(order) != len(g.tasks) {
		missing := []string{}
		found := make(map[string]bool, len(order))
		for _, id := range order {
			found[id] = true
		}
		for _, taskID := range g.order {
			if !found[taskID] {
				missing = append(missing, taskID)
			}
		}
		return nil, fmt.Errorf("topological sort lost %d tasks: %s", len(missing), strings.Join(missing, ", "))
	}

	return order, nil
}

// Ready returns the tasks whose status is pending and whose dependencies have
// all succeeded, ordered by priority (lower first) then declaration order.
// A task with a failed or skipped dependency is never ready; the skip cascade
// handles it.
func (g *Graph) Ready() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []*Task
	for _, taskID := range g.order {
		task := g.tasks[taskID]
		if task.Status != StatusPending {
			continue
		}

		allSucceeded := true
		for _, depID := range task.DependsOn {
			dep, exists := g.tasks[depID]
			if !exists || dep.Status != StatusSucceeded {
				allSucceeded = false
				break
			}
		}
		if allSucceeded {
			ready = append(ready, cloneTask(task))
		}
	}

	// Stable sort preserves declaration order among equal priorities.
	sort.SliceStable(ready, func(i, j int) bool {
		return ready[i].Priority < ready[j].Priority
	})

	return ready
}

// Next selects the next ready task by the scheduling tie-break and marks it
// ready. Returns false when no task is currently ready.
func (g *Graph) Next() (*Task, bool) {
	candidates := g.Ready()
	if len(candidates) == 0 {
		return nil, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	task := g.tasks[candidates[0].ID]
	task.Status = StatusReady
	return cloneTask(task), true
}

// MarkInProgress transitions a task to in-progress and counts the attempt.
func (g *Graph) MarkInProgress(taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}
	task.Status = StatusInProgress
	task.Attempts++
	return nil
}

// MarkSucceeded transitions a task to succeeded, storing the mutation summary
// and clearing its retry bookkeeping.
func (g *Graph) MarkSucceeded(taskID, result string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}
	task.Status = StatusSucceeded
	task.Result = result
	task.Retries = 0
	task.ErrorContext = ""
	return nil
}

// MarkFailed transitions a task to failed and cascade-skips every task that
// transitively depends on it. Returns the IDs that were skipped.
func (g *Graph) MarkFailed(taskID, reason string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("task %q not found", taskID)
	}
	task.Status = StatusFailed
	task.FailReason = reason

	return g.skipDependentsLocked(taskID), nil
}

// skipDependentsLocked walks the dependents of a failed task breadth-first,
// marking every non-terminal task it reaches as skipped.
func (g *Graph) skipDependentsLocked(failedID string) []string {
	var skipped []string
	queue := append([]string(nil), g.dependents[failedID]...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		task, exists := g.tasks[id]
		if !exists || task.Status.Terminal() {
			continue
		}

		task.Status = StatusSkipped
		task.SkipReason = "dependency failed"
		skipped = append(skipped, id)
		queue = append(queue, g.dependents[id]...)
	}

	return skipped
}

// SkipRemaining marks every non-terminal task as skipped with the given
// reason. Used when a run aborts.
func (g *Graph) SkipRemaining(reason string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var skipped []string
	for _, taskID := range g.order {
		task := g.tasks[taskID]
		if task.Status.Terminal() {
			continue
		}
		task.Status = StatusSkipped
		task.SkipReason = reason
		skipped = append(skipped, taskID)
	}
	return skipped
}

// AddRetry increments a task's retry count and appends findings to its error
// context. The error context only ever grows within a task's lifetime.
func (g *Graph) AddRetry(taskID, findings string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}
	task.Retries++
	if task.ErrorContext == "" {
		task.ErrorContext = findings
	} else {
		task.ErrorContext += "\n" + findings
	}
	return nil
}

// Get returns a copy of the task with the given ID.
func (g *Graph) Get(taskID string) (*Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return nil, false
	}
	return cloneTask(task), true
}

// Tasks returns copies of all tasks in declaration order.
func (g *Graph) Tasks() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := make([]*Task, 0, len(g.tasks))
	for _, taskID := range g.order {
		tasks = append(tasks, cloneTask(g.tasks[taskID]))
	}
	return tasks
}

// Counts summarizes task statuses for progress reporting.
type Counts struct {
	Total      int
	Pending    int
	InProgress int
	Succeeded  int
	Failed     int
	Skipped    int
}

// Counts returns the current status tallies.
func (g *Graph) Counts() Counts {
	g.mu.RLock()
	defer g.mu.RUnlock()

	c := Counts{Total: len(g.tasks)}
	for _, task := range g.tasks {
		switch task.Status {
		case StatusPending, StatusReady:
			c.Pending++
		case StatusInProgress:
			c.InProgress++
		case StatusSucceeded:
			c.Succeeded++
		case StatusFailed:
			c.Failed++
		case StatusSkipped:
			c.Skipped++
		}
	}
	return c
}

// Settled reports whether every task has reached a terminal state.
func (g *Graph) Settled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, task := range g.tasks {
		if !task.Status.Terminal() {
			return false
		}
	}
	return true
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}
	cp := *task
	if task.DependsOn != nil {
		cp.DependsOn = append([]string(nil), task.DependsOn...)
	}
	return &cp
}
