package executor

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/devflowhq/devflow/internal/backend"
	"github.com/devflowhq/devflow/internal/config"
	"github.com/devflowhq/devflow/internal/contextstore"
	"github.com/devflowhq/devflow/internal/events"
	"github.com/devflowhq/devflow/internal/graph"
	"github.com/devflowhq/devflow/internal/search"
	"github.com/devflowhq/devflow/internal/workspace"
)

// fakeBackend runs a hook when Send is called, so tests can mutate the
// workspace the way a real agent would.
type fakeBackend struct {
	response string
	err      error
	onSend   func()
	gotMsg   backend.Message
}

func (f *fakeBackend) Send(ctx context.Context, msg backend.Message) (backend.Response, error) {
	f.gotMsg = msg
	if f.onSend != nil {
		f.onSend()
	}
	if f.err != nil {
		return backend.Response{}, f.err
	}
	return backend.Response{Content: f.response}, nil
}

func (f *fakeBackend) Close() error      { return nil }
func (f *fakeBackend) SessionID() string { return "" }

// fakeGateway serves canned results or degrades.
type fakeGateway struct {
	available bool
	results   *search.Results
	err       error
	queries   []string
}

func (f *fakeGateway) Available() bool { return f.available }

func (f *fakeGateway) Search(ctx context.Context, query string) (*search.Results, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

// fakeCache is an in-memory search cache.
type fakeCache struct {
	entries map[string]string
	saves   int
}

func (f *fakeCache) CachedSearch(ctx context.Context, query string) (string, bool, error) {
	v, ok := f.entries[query]
	return v, ok, nil
}

func (f *fakeCache) SaveSearch(ctx context.Context, query, formatted string) error {
	if f.entries == nil {
		f.entries = make(map[string]string)
	}
	f.entries[query] = formatted
	f.saves++
	return nil
}

func setupTestRepo(t *testing.T) string {
	t.Helper()
	repoPath := t.TempDir()
	for _, args := range [][]string{
		{"init"},
		{"config", "user.name", "Test User"},
		{"config", "user.email", "test@example.com"},
		{"checkout", "-b", "main"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = repoPath
		if output, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v (output: %s)", args, err, string(output))
		}
	}
	if err := os.WriteFile(filepath.Join(repoPath, "README.md"), []byte("# repo\n"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	for _, args := range [][]string{{"add", "."}, {"commit", "-m", "initial"}} {
		cmd := exec.Command("git", args...)
		cmd.Dir = repoPath
		if output, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v (output: %s)", args, err, string(output))
		}
	}
	return repoPath
}

func newTestExecutor(t *testing.T, fb *fakeBackend) (*Executor, string) {
	t.Helper()
	repoPath := setupTestRepo(t)
	ws, err := workspace.New(repoPath)
	if err != nil {
		t.Fatalf("workspace.New() error = %v", err)
	}

	cfg := config.DefaultConfig()
	e := New(cfg, ws, nil)
	e.RegisterBackend("coder", fb)
	e.RegisterBackend("fixer", fb)
	return e, repoPath
}

func TestApplyReportsChanges(t *testing.T) {
	var repoPath string
	fb := &fakeBackend{
		response: "added the handler",
		onSend: func() {
			os.WriteFile(filepath.Join(repoPath, "handler.go"), []byte("package main\n"), 0644)
		},
	}
	e, rp := newTestExecutor(t, fb)
	repoPath = rp

	task := &graph.Task{ID: "t1", Name: "add handler", Category: graph.CategoryFeature}
	snap := &contextstore.Snapshot{Goal: "g", TaskName: task.Name, Attempt: 1}

	res, err := e.Apply(context.Background(), task, snap)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !res.Changed {
		t.Error("expected Changed after agent wrote a file")
	}
	if res.Summary != "added the handler" {
		t.Errorf("Summary = %q", res.Summary)
	}
	if !strings.Contains(fb.gotMsg.Content, "add handler") {
		t.Error("prompt missing task name")
	}
}

func TestApplyNoChanges(t *testing.T) {
	fb := &fakeBackend{response: "nothing to do"}
	e, _ := newTestExecutor(t, fb)

	task := &graph.Task{ID: "t1", Name: "noop", Category: graph.CategoryOther}
	snap := &contextstore.Snapshot{Goal: "g", TaskName: task.Name, Attempt: 1}

	res, err := e.Apply(context.Background(), task, snap)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.Changed {
		t.Error("expected Changed=false when tree untouched")
	}
}

func TestApplyRollsBackOnBackendFailure(t *testing.T) {
	var repoPath string
	fb := &fakeBackend{
		err: errors.New("model crashed"),
		onSend: func() {
			os.WriteFile(filepath.Join(repoPath, "half-done.go"), []byte("package broken\n"), 0644)
		},
	}
	e, rp := newTestExecutor(t, fb)
	repoPath = rp

	task := &graph.Task{ID: "t1", Name: "doomed", Category: graph.CategoryFeature}
	snap := &contextstore.Snapshot{Goal: "g", TaskName: task.Name, Attempt: 1}

	_, err := e.Apply(context.Background(), task, snap)
	if err == nil {
		t.Fatal("expected error from failing backend")
	}
	if !strings.Contains(err.Error(), "model crashed") {
		t.Errorf("error = %v, want backend failure", err)
	}

	if _, statErr := os.Stat(filepath.Join(repoPath, "half-done.go")); !os.IsNotExist(statErr) {
		t.Error("partial mutation should be rolled back")
	}
}

func TestApplyNoBackendRegistered(t *testing.T) {
	fb := &fakeBackend{}
	e, _ := newTestExecutor(t, fb)
	e.backends = map[string]backend.Backend{} // nothing registered

	task := &graph.Task{ID: "t1", Name: "x", Category: graph.CategoryFeature}
	snap := &contextstore.Snapshot{TaskName: "x", Attempt: 1}

	_, err := e.Apply(context.Background(), task, snap)
	if err == nil || !strings.Contains(err.Error(), "no backend registered") {
		t.Errorf("error = %v, want no backend registered", err)
	}
}

func TestGatherFindingsAppendsToSnapshot(t *testing.T) {
	fb := &fakeBackend{response: "done"}
	e, _ := newTestExecutor(t, fb)

	gw := &fakeGateway{
		available: true,
		results: &search.Results{
			Organic: []search.Result{{Title: "Fix guide", Snippet: "do X"}},
		},
	}
	e.SetGateway(gw)
	cache := &fakeCache{}
	e.SetSearchCache(cache)

	task := &graph.Task{
		ID:           "t1",
		Name:         "fix parser test",
		Category:     graph.CategoryFixTests,
		ErrorContext: "test: TestParser failed: unexpected token",
	}
	snap := &contextstore.Snapshot{Goal: "g", TaskName: task.Name, Attempt: 2}

	if _, err := e.Apply(context.Background(), task, snap); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if len(snap.Findings) == 0 {
		t.Fatal("expected search findings in snapshot")
	}
	if !strings.Contains(snap.Findings[0], "Fix guide") {
		t.Errorf("findings = %q, want gateway result", snap.Findings[0])
	}
	if cache.saves == 0 {
		t.Error("expected findings to be cached")
	}
	if !strings.Contains(fb.gotMsg.Content, "Fix guide") {
		t.Error("prompt missing search findings")
	}
}

func TestGatherFindingsUnavailableGatewayDegrades(t *testing.T) {
	fb := &fakeBackend{response: "done"}
	e, _ := newTestExecutor(t, fb)

	bus := events.NewBus()
	defer bus.Close()
	searchEvents := bus.Subscribe(events.TopicSearch, 8)
	e.bus = bus

	gw := &fakeGateway{available: true, err: search.ErrUnavailable}
	e.SetGateway(gw)

	task := &graph.Task{
		ID:           "t1",
		Name:         "fix flaky test",
		Category:     graph.CategoryFixTests,
		ErrorContext: "test: TestFlaky failed",
	}
	snap := &contextstore.Snapshot{Goal: "g", TaskName: task.Name, Attempt: 2}

	if _, err := e.Apply(context.Background(), task, snap); err != nil {
		t.Fatalf("Apply() should not fail when search degrades: %v", err)
	}
	if len(snap.Findings) != 0 {
		t.Errorf("findings = %v, want none", snap.Findings)
	}

	select {
	case ev := <-searchEvents:
		se, ok := ev.(events.SearchPerformedEvent)
		if !ok {
			t.Fatalf("unexpected event type %T", ev)
		}
		if !se.Unavailable {
			t.Error("expected Unavailable flag on search event")
		}
	default:
		t.Error("expected a search event")
	}
}

func TestGatherFindingsCacheHitSkipsGateway(t *testing.T) {
	fb := &fakeBackend{response: "done"}
	e, _ := newTestExecutor(t, fb)

	gw := &fakeGateway{available: true, results: &search.Results{}}
	e.SetGateway(gw)
	e.SetSearchCache(&fakeCache{entries: map[string]string{
		"golang TestParser failed: unexpected token": "cached findings",
	}})

	task := &graph.Task{
		ID:           "t1",
		Name:         "fix parser",
		Category:     graph.CategoryFixTests,
		ErrorContext: "test: TestParser failed: unexpected token",
	}
	snap := &contextstore.Snapshot{Goal: "g", TaskName: task.Name, Attempt: 2}

	if _, err := e.Apply(context.Background(), task, snap); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if len(snap.Findings) == 0 || snap.Findings[0] != "cached findings" {
		t.Errorf("findings = %v, want cached entry", snap.Findings)
	}
	for _, q := range gw.queries {
		if q == "golang TestParser failed: unexpected token" {
			t.Error("cached query should not hit the gateway")
		}
	}
}

func TestBuildQueries(t *testing.T) {
	tests := []struct {
		name string
		task graph.Task
		max  int
		want int
	}{
		{
			name: "retry queries error context",
			task: graph.Task{
				Name:         "fix it",
				Category:     graph.CategoryFixTests,
				ErrorContext: "test: TestX failed",
			},
			max:  2,
			want: 2, // error line + fix-task name
		},
		{
			name: "feature without research markers stays quiet",
			task: graph.Task{Name: "rename a variable", Category: graph.CategoryFeature, Detail: "simple rename"},
			max:  2,
			want: 0,
		},
		{
			name: "feature mentioning a protocol researches",
			task: graph.Task{Name: "add websocket support", Category: graph.CategoryFeature, Detail: "implement the websocket protocol handshake"},
			max:  2,
			want: 1,
		},
		{
			name: "cap respected",
			task: graph.Task{
				Name:         "fix lint",
				Category:     graph.CategoryFixLint,
				ErrorContext: "lint: unused variable x",
			},
			max:  1,
			want: 1,
		},
		{
			name: "zero budget",
			task: graph.Task{Name: "x", Category: graph.CategoryFixTests, ErrorContext: "boom"},
			max:  0,
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildQueries(&tt.task, tt.max)
			if len(got) != tt.want {
				t.Errorf("buildQueries() = %v, want %d queries", got, tt.want)
			}
		})
	}
}

func TestFirstDiagnosticLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"strips gate prefix", "test: TestFoo failed", "TestFoo failed"},
		{"skips blank lines", "\n\nlint: unused var", "unused var"},
		{"plain line kept", "undefined: frobnicate", "undefined: frobnicate"},
		{"empty input", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := firstDiagnosticLine(tt.input); got != tt.want {
				t.Errorf("firstDiagnosticLine(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
