package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/devflowhq/devflow/internal/backend"
	"github.com/devflowhq/devflow/internal/config"
	"github.com/devflowhq/devflow/internal/contextstore"
	"github.com/devflowhq/devflow/internal/events"
	"github.com/devflowhq/devflow/internal/executor"
	"github.com/devflowhq/devflow/internal/orchestrator"
	"github.com/devflowhq/devflow/internal/planner"
	"github.com/devflowhq/devflow/internal/report"
	"github.com/devflowhq/devflow/internal/search"
	"github.com/devflowhq/devflow/internal/tui"
	"github.com/devflowhq/devflow/internal/validate"
	"github.com/devflowhq/devflow/internal/workspace"
)

func main() {
	var (
		goal    = flag.String("goal", "", "development goal to achieve")
		dir     = flag.String("dir", ".", "workspace directory (must be a git repository)")
		useTUI  = flag.Bool("tui", false, "show the interactive terminal UI")
		history = flag.Bool("history", false, "list recent runs and exit")
	)
	flag.Parse()

	// Allow the goal as positional arguments too
	if *goal == "" && flag.NArg() > 0 {
		*goal = strings.Join(flag.Args(), " ")
	}

	// Signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *history {
		if err := printHistory(ctx, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *goal == "" {
		fmt.Fprintln(os.Stderr, "Usage: devflow -goal \"what to build\" [-dir path] [-tui]")
		os.Exit(2)
	}

	ws, err := workspace.New(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	pm := backend.NewProcessManager()
	bus := events.NewBus()

	machine, store, err := wire(ctx, cfg, ws, pm, bus)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if store != nil {
		defer store.Close()
	}

	var rep *orchestrator.Report
	var runErr error
	if *useTUI {
		rep, runErr = runWithTUI(ctx, stop, machine, pm, bus, *goal)
	} else {
		rep, runErr = machine.Run(ctx, *goal)
		bus.Close()
	}

	if rep != nil {
		fmt.Println(report.Render(rep))
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
	}
	if rep == nil || !rep.Success {
		os.Exit(1)
	}
}

// wire assembles the orchestration stack from configuration.
func wire(ctx context.Context, cfg *config.Config, ws *workspace.Manager, pm *backend.ProcessManager, bus *events.Bus) (*orchestrator.Machine, *contextstore.SQLiteStore, error) {
	backends, err := buildBackends(cfg, pm, ws.Root())
	if err != nil {
		return nil, nil, err
	}

	planBackend, ok := backends["planner"]
	if !ok {
		return nil, nil, fmt.Errorf("no planner agent configured")
	}

	exec := executor.New(cfg, ws, bus)
	for role, b := range backends {
		exec.RegisterBackend(role, b)
	}
	if cfg.Search.Enabled {
		exec.SetGateway(search.NewSerperGateway(cfg.Search))
	}

	var store *contextstore.SQLiteStore
	if cfg.Run.HistoryPath != "" {
		store, err = contextstore.NewSQLiteStore(ctx, cfg.Run.HistoryPath)
		if err != nil {
			log.Printf("WARNING: run history disabled: %v", err)
		} else {
			exec.SetSearchCache(store)
		}
	}

	pipeline := validate.FromConfig(ws.Root(), cfg.Validation)

	machine := orchestrator.NewMachine(orchestrator.Config{
		MaxRetries:      cfg.Run.MaxRetries,
		IterationBudget: cfg.Run.IterationBudget,
	}, planner.New(planBackend), exec, pipeline)
	machine.SetBus(bus)
	machine.SetSummarizer(ws)
	if store != nil {
		machine.SetStore(store)
	}

	return machine, store, nil
}

// buildBackends creates one backend per configured agent role.
func buildBackends(cfg *config.Config, pm *backend.ProcessManager, workDir string) (map[string]backend.Backend, error) {
	backends := make(map[string]backend.Backend, len(cfg.Agents))
	for role, agent := range cfg.Agents {
		provider, ok := cfg.Providers[agent.Provider]
		if !ok {
			return nil, fmt.Errorf("agent %q references unknown provider %q", role, agent.Provider)
		}

		b, err := backend.New(backend.Config{
			Type:         provider.Type,
			Command:      provider.Command,
			WorkDir:      workDir,
			Model:        agent.Model,
			SystemPrompt: agent.SystemPrompt,
			ExtraArgs:    provider.Args,
		}, pm)
		if err != nil {
			return nil, fmt.Errorf("failed to create backend for agent %q: %w", role, err)
		}
		backends[role] = b
	}
	return backends, nil
}

// runWithTUI drives the machine alongside the terminal UI; the run publishes
// to the bus from a background goroutine while the UI owns the terminal.
func runWithTUI(ctx context.Context, stop context.CancelFunc, machine *orchestrator.Machine, pm *backend.ProcessManager, bus *events.Bus, goal string) (*orchestrator.Report, error) {
	p := tea.NewProgram(tui.New(bus), tea.WithAltScreen())

	tuiDone := make(chan error, 1)
	go func() {
		_, err := p.Run()
		tuiDone <- err
	}()

	type runResult struct {
		report *orchestrator.Report
		err    error
	}
	runDone := make(chan runResult, 1)
	go func() {
		rep, err := machine.Run(ctx, goal)
		runDone <- runResult{report: rep, err: err}
	}()

	var result runResult
	select {
	case result = <-runDone:
		// Give the UI a moment to drain final events, then close it
		time.Sleep(200 * time.Millisecond)
		bus.Close()
		p.Quit()
		waitWithTimeout(tuiDone, 10*time.Second)

	case err := <-tuiDone:
		// User quit the UI; cancel the run and wait for its report
		if err != nil {
			log.Printf("TUI exit error: %v", err)
		}
		stop()
		if killErr := pm.KillAll(); killErr != nil {
			log.Printf("Error killing subprocesses: %v", killErr)
		}
		result = <-runDone
		bus.Close()

	case <-ctx.Done():
		stop()
		log.Println("Shutdown signal received, cleaning up...")
		if err := pm.KillAll(); err != nil {
			log.Printf("Error killing subprocesses: %v", err)
		}
		result = <-runDone
		bus.Close()
		p.Quit()
		waitWithTimeout(tuiDone, 10*time.Second)
	}

	return result.report, result.err
}

func waitWithTimeout(done <-chan error, timeout time.Duration) {
	select {
	case err := <-done:
		if err != nil {
			log.Printf("TUI exit error: %v", err)
		}
	case <-time.After(timeout):
		log.Println("Shutdown timeout exceeded, forcing exit")
	}
}

// printHistory lists the most recent runs from the history store.
func printHistory(ctx context.Context, cfg *config.Config) error {
	if cfg.Run.HistoryPath == "" {
		return fmt.Errorf("run history is not configured; set run.history_path in config")
	}

	store, err := contextstore.NewSQLiteStore(ctx, cfg.Run.HistoryPath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, 20)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	for _, r := range runs {
		fmt.Printf("#%d  %s  %s  (%d iterations)\n    %s\n",
			r.ID, r.StartedAt.Format(time.RFC3339), r.Outcome, r.Iterations, r.Goal)
	}
	return nil
}
