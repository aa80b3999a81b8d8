package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/devflowhq/devflow/internal/config"
)

func newTestGateway(t *testing.T, endpoint string) *SerperGateway {
	t.Helper()
	t.Setenv("TEST_SEARCH_KEY", "test-key")
	g := NewSerperGateway(config.SearchConfig{
		Enabled:    true,
		APIKeyEnv:  "TEST_SEARCH_KEY",
		Endpoint:   endpoint,
		TimeoutSec: 5,
		MaxResults: 3,
	})
	// Keep retries snappy in tests
	g.retryCfg.InitialInterval = time.Millisecond
	g.retryCfg.MaxElapsedTime = 200 * time.Millisecond
	return g
}

func TestSerperSearch(t *testing.T) {
	var gotKey string
	var gotQuery string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-KEY")
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		gotQuery = req["q"]

		resp := map[string]interface{}{
			"answerBox": map[string]string{"answer": "42"},
			"organic": []map[string]string{
				{"title": "First", "link": "https://a.example", "snippet": "alpha"},
				{"title": "Second", "link": "https://b.example", "snippet": "beta"},
			},
			"relatedSearches": []map[string]string{
				{"query": "follow-up"},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL)
	if !g.Available() {
		t.Fatal("expected gateway to be available")
	}

	res, err := g.Search(context.Background(), "what is the answer")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if gotKey != "test-key" {
		t.Errorf("X-API-KEY = %q, want %q", gotKey, "test-key")
	}
	if gotQuery != "what is the answer" {
		t.Errorf("query = %q, want %q", gotQuery, "what is the answer")
	}
	if res.Answer != "42" {
		t.Errorf("Answer = %q, want %q", res.Answer, "42")
	}
	if len(res.Organic) != 2 {
		t.Fatalf("got %d organic results, want 2", len(res.Organic))
	}
	if res.Organic[0].Title != "First" || res.Organic[1].Snippet != "beta" {
		t.Errorf("unexpected organic results: %+v", res.Organic)
	}
	if len(res.Related) != 1 || res.Related[0] != "follow-up" {
		t.Errorf("unexpected related searches: %v", res.Related)
	}
}

func TestSerperSearchAnswerBoxSnippetFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"answerBox": map[string]string{"snippet": "from snippet"},
		})
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL)
	res, err := g.Search(context.Background(), "q")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if res.Answer != "from snippet" {
		t.Errorf("Answer = %q, want %q", res.Answer, "from snippet")
	}
}

func TestSerperSearchNoAPIKey(t *testing.T) {
	t.Setenv("TEST_SEARCH_KEY", "")
	g := NewSerperGateway(config.SearchConfig{
		Enabled:   true,
		APIKeyEnv: "TEST_SEARCH_KEY",
		Endpoint:  "https://unused.example",
	})

	if g.Available() {
		t.Error("expected gateway to be unavailable without an API key")
	}

	_, err := g.Search(context.Background(), "q")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Search() error = %v, want ErrUnavailable", err)
	}
}

func TestSerperSearchClientErrorNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL)
	_, err := g.Search(context.Background(), "q")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Search() error = %v, want ErrUnavailable", err)
	}
	if calls != 1 {
		t.Errorf("got %d requests, want 1 (client errors must not be retried)", calls)
	}
}

func TestSerperSearchServerErrorRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"organic": []map[string]string{{"title": "ok"}},
		})
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL)
	res, err := g.Search(context.Background(), "q")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if calls < 3 {
		t.Errorf("got %d requests, want at least 3", calls)
	}
	if len(res.Organic) != 1 || res.Organic[0].Title != "ok" {
		t.Errorf("unexpected results: %+v", res)
	}
}

func TestSerperSearchCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be reached with a cancelled context")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := newTestGateway(t, srv.URL)
	_, err := g.Search(ctx, "q")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Search() error = %v, want ErrUnavailable", err)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name       string
		res        *Results
		maxResults int
		contains   []string
		absent     []string
	}{
		{
			name: "full response",
			res: &Results{
				Answer: "direct answer",
				Organic: []Result{
					{Title: "One", Link: "https://one.example", Snippet: "first hit"},
					{Title: "Two", Link: "https://two.example", Snippet: "second hit"},
				},
				Related: []string{"narrower query"},
			},
			maxResults: 3,
			contains: []string{
				"Answer: direct answer",
				"1. One",
				"https://one.example",
				"2. Two",
				"Related searches: narrower query",
			},
		},
		{
			name: "caps organic results",
			res: &Results{
				Organic: []Result{
					{Title: "A"}, {Title: "B"}, {Title: "C"},
				},
			},
			maxResults: 2,
			contains:   []string{"1. A", "2. B"},
			absent:     []string{"3. C"},
		},
		{
			name:       "nil results",
			res:        nil,
			maxResults: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Format("query", tt.res, tt.maxResults)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("Format() missing %q in:\n%s", want, got)
				}
			}
			for _, notWant := range tt.absent {
				if strings.Contains(got, notWant) {
					t.Errorf("Format() should not contain %q in:\n%s", notWant, got)
				}
			}
		})
	}
}
