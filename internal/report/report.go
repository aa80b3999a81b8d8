// Package report renders the final run report for terminal output.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/devflowhq/devflow/internal/orchestrator"
)

var (
	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	styleSucceeded = lipgloss.NewStyle().
			Foreground(lipgloss.Color("green")).
			Bold(true)

	styleFailed = lipgloss.NewStyle().
			Foreground(lipgloss.Color("red")).
			Bold(true)

	styleSkipped = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	styleDetail = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			PaddingLeft(4)

	styleSummary = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

// Render formats a run report as styled terminal text.
func Render(r *orchestrator.Report) string {
	var b strings.Builder

	verdict := styleFailed.Render("FAILED")
	if r.Success {
		verdict = styleSucceeded.Render("SUCCEEDED")
	}

	b.WriteString(styleTitle.Render(fmt.Sprintf("Run %s", verdict)))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Goal: %s\n", r.Goal)
	if r.AbortReason != "" {
		fmt.Fprintf(&b, "Aborted: %s\n", r.AbortReason)
	}

	succeeded, failed, skipped := r.Counts()
	fmt.Fprintf(&b, "Tasks: %d succeeded, %d failed, %d skipped of %d\n",
		succeeded, failed, skipped, len(r.Tasks))
	fmt.Fprintf(&b, "Iterations: %d, elapsed %s\n\n", r.Iterations, r.Elapsed.Round(time.Millisecond))

	for _, task := range r.Tasks {
		b.WriteString(renderTask(task))
	}

	return styleSummary.Render(strings.TrimRight(b.String(), "\n"))
}

func renderTask(t orchestrator.TaskReport) string {
	var b strings.Builder

	marker := statusMarker(t.Status)
	fmt.Fprintf(&b, "%s %s (%s)", marker, t.Name, t.Category)
	if t.Attempts > 1 {
		fmt.Fprintf(&b, " [%d attempts]", t.Attempts)
	}
	b.WriteString("\n")

	switch t.Status {
	case "failed":
		b.WriteString(styleDetail.Render(firstLine(t.FailReason)))
		b.WriteString("\n")
	case "skipped":
		b.WriteString(styleDetail.Render(t.SkipReason))
		b.WriteString("\n")
	case "succeeded":
		if t.Result != "" {
			b.WriteString(styleDetail.Render(firstLine(t.Result)))
			b.WriteString("\n")
		}
	}

	if line := renderGates(t.Gates); line != "" {
		b.WriteString(styleDetail.Render(line))
		b.WriteString("\n")
	}

	return b.String()
}

// renderGates formats a task's last validation, e.g. "lint ✓ 1.2s, test ✗ 4s".
func renderGates(gates []orchestrator.GateReport) string {
	if len(gates) == 0 {
		return ""
	}
	parts := make([]string, 0, len(gates))
	for _, g := range gates {
		mark := "✓"
		if !g.Pass {
			mark = "✗"
		}
		parts = append(parts, fmt.Sprintf("%s %s %s", g.Gate, mark, g.Duration.Round(time.Millisecond)))
	}
	return "gates: " + strings.Join(parts, ", ")
}

func statusMarker(status string) string {
	switch status {
	case "succeeded":
		return styleSucceeded.Render("✓")
	case "failed":
		return styleFailed.Render("✗")
	case "skipped":
		return styleSkipped.Render("·")
	}
	return " "
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[:idx]
	}
	const max = 120
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
