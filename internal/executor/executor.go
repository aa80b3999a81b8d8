// Package executor applies one task to the workspace through an agent
// backend. It assembles the prompt from the task snapshot, optionally
// enriches it with external search findings, and guarantees that a failed
// attempt leaves the working tree untouched.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/devflowhq/devflow/internal/backend"
	"github.com/devflowhq/devflow/internal/config"
	"github.com/devflowhq/devflow/internal/contextstore"
	"github.com/devflowhq/devflow/internal/events"
	"github.com/devflowhq/devflow/internal/graph"
	"github.com/devflowhq/devflow/internal/search"
	"github.com/devflowhq/devflow/internal/workspace"
)

// maxSummary caps the mutation summary carried into reports.
const maxSummary = 2048

// Result is the outcome of applying one task.
type Result struct {
	Changed bool   // Whether the working tree was mutated
	Summary string // Agent's description of what it did
}

// searchCache lets repeated queries skip the network across runs.
type searchCache interface {
	CachedSearch(ctx context.Context, query string) (string, bool, error)
	SaveSearch(ctx context.Context, query, formatted string) error
}

// Executor routes tasks to agent backends and applies their mutations.
type Executor struct {
	cfg      *config.Config
	backends map[string]backend.Backend // agent role -> backend instance
	gateway  search.Gateway             // nil when search is disabled
	cache    searchCache                // nil when no store is configured
	ws       *workspace.Manager
	bus      *events.Bus
}

// New creates an Executor. gateway and cache may be nil; search is then
// skipped entirely.
func New(cfg *config.Config, ws *workspace.Manager, bus *events.Bus) *Executor {
	return &Executor{
		cfg:      cfg,
		backends: make(map[string]backend.Backend),
		ws:       ws,
		bus:      bus,
	}
}

// RegisterBackend maps an agent role to a backend instance.
func (e *Executor) RegisterBackend(agentRole string, b backend.Backend) {
	e.backends[agentRole] = b
}

// SetGateway enables external search through the given gateway.
func (e *Executor) SetGateway(g search.Gateway) {
	e.gateway = g
}

// SetSearchCache enables cross-run caching of search results.
func (e *Executor) SetSearchCache(c searchCache) {
	e.cache = c
}

// Apply executes one task attempt. The snapshot is enriched with search
// findings in place before the prompt is built. On any failure the
// workspace is rolled back to its pre-attempt state and Changed is false.
func (e *Executor) Apply(ctx context.Context, task *graph.Task, snap *contextstore.Snapshot) (Result, error) {
	agentRole := e.cfg.AgentFor(task.Category.String())
	b, ok := e.backends[agentRole]
	if !ok {
		return Result{}, fmt.Errorf("no backend registered for agent role %q", agentRole)
	}

	snap.Findings = append(snap.Findings, e.gatherFindings(ctx, task, snap)...)

	cp, err := e.ws.Checkpoint(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to checkpoint workspace: %w", err)
	}

	resp, err := b.Send(ctx, backend.Message{Content: snap.Render(), Role: "user"})
	if err != nil {
		if rbErr := e.ws.Rollback(ctx, cp); rbErr != nil {
			log.Printf("WARNING: rollback after failed attempt on task %s: %v", task.ID, rbErr)
		}
		return Result{}, fmt.Errorf("agent %q failed: %w", agentRole, err)
	}

	changed, err := e.treeChanged(ctx, cp)
	if err != nil {
		return Result{}, err
	}

	summary := strings.TrimSpace(resp.Content)
	if len(summary) > maxSummary {
		summary = summary[:maxSummary] + "... (truncated)"
	}

	return Result{Changed: changed, Summary: summary}, nil
}

// Discard rolls the workspace back to the given checkpoint state. Exposed
// for callers that must unwind a mutation after validation rejected it.
func (e *Executor) Discard(ctx context.Context, cp *workspace.Checkpoint) error {
	return e.ws.Rollback(ctx, cp)
}

// Checkpoint records the current workspace state.
func (e *Executor) Checkpoint(ctx context.Context) (*workspace.Checkpoint, error) {
	return e.ws.Checkpoint(ctx)
}

// treeChanged reports whether anything moved since the checkpoint.
func (e *Executor) treeChanged(ctx context.Context, cp *workspace.Checkpoint) (bool, error) {
	head, err := e.ws.Head(ctx)
	if err != nil {
		return false, err
	}
	if head != cp.Head {
		return true, nil
	}

	dirty, err := e.ws.DirtyFiles(ctx)
	if err != nil {
		return false, err
	}
	return len(dirty) > 0, nil
}

// gatherFindings runs the search heuristics for a task and returns formatted
// findings. Gateway failures degrade silently: a task never fails because
// search was down.
func (e *Executor) gatherFindings(ctx context.Context, task *graph.Task, snap *contextstore.Snapshot) []string {
	if e.gateway == nil || !e.cfg.Search.Enabled {
		return nil
	}

	queries := buildQueries(task, e.cfg.Search.MaxQueries)
	if len(queries) == 0 {
		return nil
	}

	if !e.gateway.Available() {
		e.publishSearch(task.ID, "", true, 0)
		return nil
	}

	var findings []string
	for _, q := range queries {
		if cached, ok := e.cachedResult(ctx, q); ok {
			findings = append(findings, cached)
			e.publishSearch(task.ID, q, false, 1)
			continue
		}

		res, err := e.gateway.Search(ctx, q)
		if err != nil {
			if !errors.Is(err, search.ErrUnavailable) {
				log.Printf("WARNING: search for task %s: %v", task.ID, err)
			}
			e.publishSearch(task.ID, q, true, 0)
			// One degraded query means the rest will degrade too
			return findings
		}

		formatted := search.Format(q, res, e.cfg.Search.MaxResults)
		if formatted == "" {
			e.publishSearch(task.ID, q, false, 0)
			continue
		}

		findings = append(findings, formatted)
		e.publishSearch(task.ID, q, false, len(res.Organic))
		e.saveResult(ctx, q, formatted)
	}
	return findings
}

func (e *Executor) cachedResult(ctx context.Context, query string) (string, bool) {
	if e.cache == nil {
		return "", false
	}
	cached, ok, err := e.cache.CachedSearch(ctx, query)
	if err != nil {
		log.Printf("WARNING: search cache lookup: %v", err)
		return "", false
	}
	return cached, ok
}

func (e *Executor) saveResult(ctx context.Context, query, formatted string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.SaveSearch(ctx, query, formatted); err != nil {
		log.Printf("WARNING: search cache save: %v", err)
	}
}

func (e *Executor) publishSearch(taskID, query string, unavailable bool, results int) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.TopicSearch, events.SearchPerformedEvent{
		ID:          taskID,
		Query:       query,
		Unavailable: unavailable,
		Results:     results,
		Timestamp:   time.Now(),
	})
}
