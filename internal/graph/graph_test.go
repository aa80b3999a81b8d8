package graph

import (
	"strings"
	"testing"
)

// TestGraphValidate tests graph validation with various structures.
func TestGraphValidate(t *testing.T) {
	tests := []struct {
		name        string
		setup       func() *Graph
		wantErr     bool
		errContains string
	}{
		{
			name: "valid linear chain",
			setup: func() *Graph {
				g := New()
				g.Add(&Task{ID: "A"})
				g.Add(&Task{ID: "B", DependsOn: []string{"A"}})
				g.Add(&Task{ID: "C", DependsOn: []string{"B"}})
				return g
			},
			wantErr: false,
		},
		{
			name: "valid diamond",
			setup: func() *Graph {
				g := New()
				g.Add(&Task{ID: "A"})
				g.Add(&Task{ID: "B", DependsOn: []string{"A"}})
				g.Add(&Task{ID: "C", DependsOn: []string{"A"}})
				g.Add(&Task{ID: "D", DependsOn: []string{"B", "C"}})
				return g
			},
			wantErr: false,
		},
		{
			name: "single task no deps",
			setup: func() *Graph {
				g := New()
				g.Add(&Task{ID: "A"})
				return g
			},
			wantErr: false,
		},
		{
			name: "direct cycle",
			setup: func() *Graph {
				g := New()
				g.Add(&Task{ID: "A", DependsOn: []string{"B"}})
				g.Add(&Task{ID: "B", DependsOn: []string{"A"}})
				return g
			},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name: "self dependency",
			setup: func() *Graph {
				g := New()
				g.Add(&Task{ID: "A", DependsOn: []string{"A"}})
				return g
			},
			wantErr:     true,
			errContains: "depends on itself",
		},
		{
			name: "dangling dependency",
			setup: func() *Graph {
				g := New()
				g.Add(&Task{ID: "X", DependsOn: []string{"Y"}})
				return g
			},
			wantErr:     true,
			errContains: "non-existent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := tt.setup()
			order, err := g.Validate()

			if tt.wantErr {
				if err == nil {
					t.Fatalf("Validate() expected error, got nil")
				}
				if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("Validate() error = %v, want containing %q", err, tt.errContains)
				}
				return
			}

			if err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
			if len(order) != len(g.Tasks()) {
				t.Errorf("Validate() returned %d IDs, want %d", len(order), len(g.Tasks()))
			}
		})
	}
}

// TestGraphReady verifies the ready set is exactly the pending tasks whose
// dependencies have all succeeded.
func TestGraphReady(t *testing.T) {
	g := New()
	g.Add(&Task{ID: "A"})
	g.Add(&Task{ID: "B", DependsOn: []string{"A"}})
	g.Add(&Task{ID: "C", DependsOn: []string{"A"}})

	ready := g.Ready()
	if len(ready) != 1 || ready[0].ID != "A" {
		t.Fatalf("Ready() = %v, want [A]", readyIDs(ready))
	}

	g.MarkInProgress("A")
	if got := g.Ready(); len(got) != 0 {
		t.Fatalf("Ready() during A in-progress = %v, want empty", readyIDs(got))
	}

	g.MarkSucceeded("A", "done")
	ready = g.Ready()
	if len(ready) != 2 {
		t.Fatalf("Ready() after A succeeded = %v, want [B C]", readyIDs(ready))
	}
}

// TestGraphReadyTieBreak verifies ordering: lower priority first, then
// declaration order among equals.
func TestGraphReadyTieBreak(t *testing.T) {
	g := New()
	g.Add(&Task{ID: "first", Priority: 2})
	g.Add(&Task{ID: "second", Priority: 1})
	g.Add(&Task{ID: "third", Priority: 2})

	ready := g.Ready()
	want := []string{"second", "first", "third"}
	got := readyIDs(ready)
	if len(got) != len(want) {
		t.Fatalf("Ready() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Ready()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	task, ok := g.Next()
	if !ok || task.ID != "second" {
		t.Errorf("Next() = %v, want second", task)
	}
}

// TestGraphFailureCascade verifies that tasks depending on a failed task are
// skipped (never ready), transitively.
func TestGraphFailureCascade(t *testing.T) {
	g := New()
	g.Add(&Task{ID: "A"})
	g.Add(&Task{ID: "B", DependsOn: []string{"A"}})
	g.Add(&Task{ID: "C", DependsOn: []string{"B"}})
	g.Add(&Task{ID: "D"}) // unrelated

	skipped, err := g.MarkFailed("A", "validation retries exhausted")
	if err != nil {
		t.Fatalf("MarkFailed() error: %v", err)
	}
	if len(skipped) != 2 {
		t.Fatalf("MarkFailed() skipped %v, want [B C]", skipped)
	}

	for _, id := range []string{"B", "C"} {
		task, _ := g.Get(id)
		if task.Status != StatusSkipped {
			t.Errorf("task %s status = %s, want skipped", id, task.Status)
		}
		if task.SkipReason != "dependency failed" {
			t.Errorf("task %s skip reason = %q, want %q", id, task.SkipReason, "dependency failed")
		}
	}

	// The unrelated task is unaffected and still schedulable.
	ready := g.Ready()
	if len(ready) != 1 || ready[0].ID != "D" {
		t.Errorf("Ready() after cascade = %v, want [D]", readyIDs(ready))
	}
}

// TestGraphRetryBookkeeping verifies the error context only grows across
// retries and is cleared on success.
func TestGraphRetryBookkeeping(t *testing.T) {
	g := New()
	g.Add(&Task{ID: "A"})

	g.AddRetry("A", "lint: unused variable x")
	task, _ := g.Get("A")
	if task.Retries != 1 {
		t.Errorf("Retries = %d, want 1", task.Retries)
	}
	first := task.ErrorContext

	g.AddRetry("A", "test: TestFoo failed")
	task, _ = g.Get("A")
	if task.Retries != 2 {
		t.Errorf("Retries = %d, want 2", task.Retries)
	}
	if !strings.HasPrefix(task.ErrorContext, first) {
		t.Errorf("error context shrank: %q does not extend %q", task.ErrorContext, first)
	}
	if !strings.Contains(task.ErrorContext, "TestFoo") {
		t.Errorf("error context missing new findings: %q", task.ErrorContext)
	}

	g.MarkSucceeded("A", "fixed")
	task, _ = g.Get("A")
	if task.Retries != 0 || task.ErrorContext != "" {
		t.Errorf("success did not clear retry state: retries=%d ctx=%q", task.Retries, task.ErrorContext)
	}
}

// TestGraphSkipRemaining covers the abort path.
func TestGraphSkipRemaining(t *testing.T) {
	g := New()
	g.Add(&Task{ID: "A"})
	g.Add(&Task{ID: "B", DependsOn: []string{"A"}})
	g.MarkInProgress("A")
	g.MarkSucceeded("A", "ok")

	skipped := g.SkipRemaining("run aborted")
	if len(skipped) != 1 || skipped[0] != "B" {
		t.Fatalf("SkipRemaining() = %v, want [B]", skipped)
	}

	task, _ := g.Get("A")
	if task.Status != StatusSucceeded {
		t.Errorf("abort must not touch terminal tasks, A = %s", task.Status)
	}

	if !g.Settled() {
		t.Error("Settled() = false after abort, want true")
	}
}

// TestGraphCounts checks status tallies.
func TestGraphCounts(t *testing.T) {
	g := New()
	g.Add(&Task{ID: "A"})
	g.Add(&Task{ID: "B"})
	g.Add(&Task{ID: "C", DependsOn: []string{"A"}})

	g.MarkInProgress("A")
	g.MarkSucceeded("A", "ok")
	g.MarkInProgress("B")

	c := g.Counts()
	if c.Total != 3 || c.Succeeded != 1 || c.InProgress != 1 || c.Pending != 1 {
		t.Errorf("Counts() = %+v", c)
	}
}

// TestGraphDuplicateID verifies duplicate task IDs are rejected.
func TestGraphDuplicateID(t *testing.T) {
	g := New()
	if err := g.Add(&Task{ID: "A"}); err != nil {
		t.Fatalf("first Add() error: %v", err)
	}
	if err := g.Add(&Task{ID: "A"}); err == nil {
		t.Fatal("second Add() with duplicate ID succeeded, want error")
	}
}

func readyIDs(tasks []*Task) []string {
	ids := make([]string, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
	}
	return ids
}
