package executor

import (
	"strings"

	"github.com/devflowhq/devflow/internal/graph"
)

// maxQueryLen bounds query length; search APIs truncate long queries anyway
// and error output can run to pages.
const maxQueryLen = 160

// buildQueries derives search queries for a task attempt, capped at max.
// Retries query on the freshest validation findings first; first attempts
// query only when the task description suggests unfamiliar territory.
func buildQueries(task *graph.Task, max int) []string {
	if max <= 0 {
		return nil
	}

	var queries []string
	seen := make(map[string]bool)
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] || len(queries) >= max {
			return
		}
		if len(q) > maxQueryLen {
			q = q[:maxQueryLen]
		}
		seen[q] = true
		queries = append(queries, q)
	}

	// A retry searches for the error it is trying to clear
	if task.ErrorContext != "" {
		if line := firstDiagnosticLine(task.ErrorContext); line != "" {
			add("golang " + line)
		}
	}

	switch task.Category {
	case graph.CategoryFixTests, graph.CategoryFixLint:
		// Fix tasks carry their subject in the name
		add("golang " + task.Name)
	case graph.CategoryFeature:
		if wantsResearch(task.Detail) {
			add("golang " + task.Name)
		}
	}

	return queries
}

// gatePrefixes are stripped so the query carries the diagnostic, not the
// gate name.
var gatePrefixes = []string{"lint: ", "test: ", "security: "}

// firstDiagnosticLine picks the first non-empty line of accumulated error
// context, without its gate prefix.
func firstDiagnosticLine(errorContext string) string {
	for _, line := range strings.Split(errorContext, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, prefix := range gatePrefixes {
			if strings.HasPrefix(line, prefix) {
				line = strings.TrimSpace(strings.TrimPrefix(line, prefix))
				break
			}
		}
		if line != "" {
			return line
		}
	}
	return ""
}

// researchMarkers are words in a task detail that suggest the agent will
// need external documentation.
var researchMarkers = []string{
	"library", "package", "api", "protocol", "format", "specification",
	"rfc", "algorithm", "sdk",
}

func wantsResearch(detail string) bool {
	lower := strings.ToLower(detail)
	for _, marker := range researchMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
