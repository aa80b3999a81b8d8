// Package contextstore carries the working context an agent sees for a task:
// the snapshot assembled before each attempt, and the SQLite-backed history
// of runs, task outcomes, and cached search results.
package contextstore

import (
	"fmt"
	"strings"
)

// Snapshot is everything the executing agent is shown for one task attempt.
// It is rebuilt from current state before every attempt; prior error context
// accumulates across retries of the same task and is never trimmed until the
// task succeeds.
type Snapshot struct {
	Goal        string // The run's high-level goal
	RepoSummary string // Short description of the repository state

	TaskID     string
	TaskName   string
	TaskDetail string
	Category   string
	Attempt    int // 1-based attempt number for this task

	PriorErrors string   // Accumulated findings from failed validations
	Validation  string   // Findings from the most recent validation, verbatim
	Findings    []string // Formatted external search results, if any
}

// Render assembles the snapshot into prompt text. Sections with no content
// are omitted entirely rather than rendered empty.
func (s *Snapshot) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Goal: %s\n", s.Goal)
	if s.RepoSummary != "" {
		fmt.Fprintf(&b, "\nRepository:\n%s\n", s.RepoSummary)
	}

	fmt.Fprintf(&b, "\nTask: %s", s.TaskName)
	if s.TaskDetail != "" {
		fmt.Fprintf(&b, "\n%s", s.TaskDetail)
	}
	b.WriteString("\n")

	if s.Attempt > 1 {
		fmt.Fprintf(&b, "\nThis is attempt %d for this task.\n", s.Attempt)
	}

	if s.PriorErrors != "" {
		fmt.Fprintf(&b, "\nPrevious attempts failed validation with:\n%s\n", s.PriorErrors)
	}

	if s.Validation != "" && s.Validation != s.PriorErrors {
		fmt.Fprintf(&b, "\nMost recent validation output:\n%s\n", s.Validation)
	}

	if len(s.Findings) > 0 {
		b.WriteString("\nRelevant information from external search:\n")
		for _, f := range s.Findings {
			b.WriteString(f)
			b.WriteString("\n")
		}
	}

	return b.String()
}
