package report

import (
	"strings"
	"testing"
	"time"

	"github.com/devflowhq/devflow/internal/orchestrator"
)

func TestRender(t *testing.T) {
	r := &orchestrator.Report{
		Goal:       "add pagination",
		Success:    false,
		Iterations: 5,
		Elapsed:    3 * time.Second,
		Tasks: []orchestrator.TaskReport{
			{ID: "A", Name: "implement handler", Category: "feature-implementation", Status: "succeeded", Attempts: 1, Result: "added handler"},
			{ID: "B", Name: "fix tests", Category: "fix-tests", Status: "failed", Attempts: 3, FailReason: "validation failed after 3 attempts: test: TestX",
				Gates: []orchestrator.GateReport{
					{Gate: "lint", Pass: true, Duration: 1200 * time.Millisecond},
					{Gate: "test", Pass: false, Duration: 4 * time.Second},
				}},
			{ID: "C", Name: "refactor", Category: "refactor", Status: "skipped", SkipReason: "dependency failed"},
		},
	}

	out := Render(r)

	for _, want := range []string{
		"FAILED",
		"add pagination",
		"1 succeeded, 1 failed, 1 skipped of 3",
		"Iterations: 5",
		"implement handler",
		"[3 attempts]",
		"dependency failed",
		"gates: lint ✓ 1.2s, test ✗ 4s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q in:\n%s", want, out)
		}
	}
}

func TestRenderSuccess(t *testing.T) {
	r := &orchestrator.Report{
		Goal:    "small fix",
		Success: true,
		Tasks: []orchestrator.TaskReport{
			{ID: "A", Name: "do it", Category: "other", Status: "succeeded", Attempts: 1},
		},
	}

	out := Render(r)
	if !strings.Contains(out, "SUCCEEDED") {
		t.Errorf("Render() missing success verdict:\n%s", out)
	}
	if strings.Contains(out, "Aborted") {
		t.Errorf("Render() must not mention abort on clean run:\n%s", out)
	}
}

func TestRenderAborted(t *testing.T) {
	r := &orchestrator.Report{
		Goal:        "doomed",
		Success:     false,
		AbortReason: "planning_failed",
	}

	out := Render(r)
	if !strings.Contains(out, "Aborted: planning_failed") {
		t.Errorf("Render() missing abort reason:\n%s", out)
	}
}
