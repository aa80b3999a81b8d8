// Package validate runs the quality gates that decide whether a task's
// mutation is accepted. Gates run in parallel; the overall verdict is the
// conjunction of every enabled gate.
package validate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// GateResult is the outcome of one gate.
type GateResult struct {
	Gate     string
	Pass     bool
	Findings string // Diagnostic output on failure, empty on pass
	Duration time.Duration
}

// Result is the combined outcome of a validation pass.
type Result struct {
	Pass  bool
	Gates []GateResult
}

// Findings joins the diagnostic output of every failing gate, prefixed with
// the gate name. Returns empty when all gates passed.
func (r *Result) Findings() string {
	var parts []string
	for _, g := range r.Gates {
		if g.Pass {
			continue
		}
		findings := g.Findings
		if findings == "" {
			findings = "failed with no output"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", g.Gate, findings))
	}
	return strings.Join(parts, "\n")
}

// Gate is one validation check.
type Gate interface {
	// Name identifies the gate in results and events.
	Name() string

	// Run executes the check. Findings carry diagnostic output when the
	// check fails and are empty otherwise.
	Run(ctx context.Context) (pass bool, findings string)
}

// Pipeline runs a fixed set of gates against the workspace.
type Pipeline struct {
	gates []Gate
}

// NewPipeline builds a pipeline from the given gates. Nil gates are skipped.
func NewPipeline(gates ...Gate) *Pipeline {
	p := &Pipeline{}
	for _, g := range gates {
		if g != nil {
			p.gates = append(p.gates, g)
		}
	}
	return p
}

// Gates returns the names of the configured gates in execution order.
func (p *Pipeline) Gates() []string {
	names := make([]string, len(p.gates))
	for i, g := range p.gates {
		names[i] = g.Name()
	}
	return names
}

// Validate runs every gate in parallel and combines the verdicts. A gate
// that panics is recorded as a failure rather than crashing the run.
func (p *Pipeline) Validate(ctx context.Context) Result {
	results := make([]GateResult, len(p.gates))

	g, ctx := errgroup.WithContext(ctx)
	for i, gate := range p.gates {
		i, gate := i, gate
		g.Go(func() error {
			results[i] = runGate(ctx, gate)
			return nil
		})
	}
	// Gates report failures through their result, never through an error
	_ = g.Wait()

	res := Result{Pass: true, Gates: results}
	for _, gr := range results {
		if !gr.Pass {
			res.Pass = false
		}
	}
	return res
}

// runGate executes one gate with panic recovery.
func runGate(ctx context.Context, gate Gate) (result GateResult) {
	start := time.Now()
	result = GateResult{Gate: gate.Name()}

	defer func() {
		if r := recover(); r != nil {
			result.Pass = false
			result.Findings = fmt.Sprintf("gate panicked: %v", r)
		}
		result.Duration = time.Since(start)
	}()

	result.Pass, result.Findings = gate.Run(ctx)
	return result
}
