// Package planner turns a high-level goal into a validated task graph by
// asking a planning agent for a structured decomposition.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/devflowhq/devflow/internal/backend"
	"github.com/devflowhq/devflow/internal/graph"
)

// Builder produces a task graph from a goal.
type Builder struct {
	backend backend.Backend
}

// New creates a Builder that plans through the given backend.
func New(b backend.Backend) *Builder {
	return &Builder{backend: b}
}

// planTask is the wire shape of one planned task.
type planTask struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Category  string   `json:"category"`
	Detail    string   `json:"detail"`
	Priority  int      `json:"priority"`
	DependsOn []string `json:"depends_on"`
}

// Plan asks the planning agent to decompose goal into tasks and returns the
// validated graph. Any failure here is fatal to the run: there is no graph
// to fall back on.
func (p *Builder) Plan(ctx context.Context, goal, repoSummary string) (*graph.Graph, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, fmt.Errorf("goal must not be empty")
	}

	resp, err := p.backend.Send(ctx, backend.Message{
		Content: buildPrompt(goal, repoSummary),
		Role:    "user",
	})
	if err != nil {
		return nil, fmt.Errorf("planning agent failed: %w", err)
	}

	tasks, err := parsePlan(resp.Content)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("planning agent returned no tasks")
	}

	g := graph.New()
	for i, pt := range tasks {
		id := strings.TrimSpace(pt.ID)
		if id == "" {
			id = fmt.Sprintf("task-%d", i+1)
		}
		name := strings.TrimSpace(pt.Name)
		if name == "" {
			name = id
		}

		task := &graph.Task{
			ID:        id,
			Name:      name,
			Category:  graph.ParseCategory(pt.Category),
			Detail:    pt.Detail,
			Priority:  pt.Priority,
			DependsOn: pt.DependsOn,
		}
		if err := g.Add(task); err != nil {
			return nil, fmt.Errorf("invalid plan: %w", err)
		}
	}

	if _, err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	return g, nil
}

func buildPrompt(goal, repoSummary string) string {
	var b strings.Builder

	b.WriteString("Decompose the following development goal into discrete tasks.\n\n")
	fmt.Fprintf(&b, "Goal: %s\n", goal)
	if repoSummary != "" {
		fmt.Fprintf(&b, "\nRepository: %s\n", repoSummary)
	}

	b.WriteString(`
Respond with a JSON array only. Each element:
  {
    "id": "short-unique-id",
    "name": "what the task accomplishes",
    "category": "feature-implementation|fix-tests|fix-lint|refactor|other",
    "detail": "implementation guidance",
    "priority": 0,
    "depends_on": ["ids of prerequisite tasks"]
  }

Lower priority numbers run first among tasks whose dependencies are met.
Dependencies must form a directed acyclic graph. Do not include any text
outside the JSON array.
`)
	return b.String()
}

// parsePlan extracts the task list from agent output. Agents often wrap
// JSON in code fences or an object envelope; both are tolerated.
func parsePlan(output string) ([]planTask, error) {
	cleaned := stripCodeFences(output)
	if cleaned == "" {
		return nil, fmt.Errorf("planning agent returned empty output")
	}

	var tasks []planTask
	if err := json.Unmarshal([]byte(cleaned), &tasks); err == nil {
		return tasks, nil
	}

	var envelope struct {
		Tasks []planTask `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(cleaned), &envelope); err == nil && envelope.Tasks != nil {
		return envelope.Tasks, nil
	}

	return nil, fmt.Errorf("failed to parse plan output as JSON task list")
}

// stripCodeFences removes a surrounding markdown code fence, if present,
// and trims to the outermost JSON bracket.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	// Tolerate prose before or after the JSON payload
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return ""
	}
	var end int
	if s[start] == '[' {
		end = strings.LastIndex(s, "]")
	} else {
		end = strings.LastIndex(s, "}")
	}
	if end <= start {
		return ""
	}
	return s[start : end+1]
}
