// Package search provides the external search gateway. It is an optional
// capability: every failure mode (missing credentials, rate limits, network
// errors, open circuit) collapses into ErrUnavailable so callers can degrade
// to "no search performed" instead of handling transport details.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable is the sentinel for a gateway that cannot serve queries.
// Callers must treat it as "no search performed", never as a task failure.
var ErrUnavailable = errors.New("search gateway unavailable")

// Result is one ranked search hit.
type Result struct {
	Title   string
	Snippet string
	Link    string
}

// Results is the shaped response for one query.
type Results struct {
	Answer  string   // Direct answer extracted from an answer box, if any
	Organic []Result // Ranked organic results
	Related []string // Related query suggestions
}

// Gateway turns a query into ranked text snippets.
type Gateway interface {
	// Search executes one query. Any error wraps ErrUnavailable.
	Search(ctx context.Context, query string) (*Results, error)

	// Available reports whether the gateway is configured to serve queries.
	// A true result is not a guarantee; Search can still degrade.
	Available() bool
}

// Format renders results as text suitable for folding into a model prompt,
// capped at maxResults organic hits.
func Format(query string, res *Results, maxResults int) string {
	if res == nil {
		return ""
	}

	var parts []string

	if res.Answer != "" {
		parts = append(parts, fmt.Sprintf("Answer: %s", res.Answer))
	}

	if len(res.Organic) > 0 {
		parts = append(parts, fmt.Sprintf("Search results for %q:", query))
		n := len(res.Organic)
		if maxResults > 0 && n > maxResults {
			n = maxResults
		}
		for i := 0; i < n; i++ {
			r := res.Organic[i]
			entry := fmt.Sprintf("%d. %s", i+1, r.Title)
			if r.Link != "" {
				entry += "\n   " + r.Link
			}
			if r.Snippet != "" {
				entry += "\n   " + r.Snippet
			}
			parts = append(parts, entry)
		}
	}

	if len(res.Related) > 0 {
		parts = append(parts, "Related searches: "+strings.Join(res.Related, ", "))
	}

	return strings.Join(parts, "\n\n")
}
