// Package workspace wraps the git repository the run mutates. It answers
// what changed, produces the repository summary for task snapshots, and
// provides checkpoint/rollback so a failed attempt can be discarded without
// leaving half-applied edits behind.
package workspace

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Checkpoint marks a repository state that Rollback can restore.
type Checkpoint struct {
	Head string // Commit hash at checkpoint time
}

// Manager operates on a single git working tree.
type Manager struct {
	root string
}

// New validates that root is a git working tree and returns a manager for it.
func New(root string) (*Manager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace root not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root is not a directory: %s", abs)
	}

	m := &Manager{root: abs}
	out, err := m.git(context.Background(), "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return nil, fmt.Errorf("not a git repository: %s", abs)
	}
	if strings.TrimSpace(out) != "true" {
		return nil, fmt.Errorf("not a git working tree: %s", abs)
	}

	return m, nil
}

// Root returns the absolute workspace root.
func (m *Manager) Root() string {
	return m.root
}

// Head returns the current HEAD commit hash.
func (m *Manager) Head(ctx context.Context) (string, error) {
	out, err := m.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Branch returns the current branch name, or the short HEAD hash when
// detached.
func (m *Manager) Branch(ctx context.Context) (string, error) {
	out, err := m.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// DirtyFiles returns the paths with uncommitted changes, parsed from
// porcelain status output.
func (m *Manager) DirtyFiles(ctx context.Context) ([]string, error) {
	out, err := m.git(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}

	var files []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		// Porcelain format: two status characters, a space, then the path
		if len(line) < 4 {
			continue
		}
		path := strings.TrimSpace(line[3:])
		// Renames are reported as "old -> new"
		if idx := strings.Index(path, " -> "); idx >= 0 {
			path = path[idx+4:]
		}
		files = append(files, path)
	}
	return files, nil
}

// Summary describes the repository for inclusion in a task snapshot.
func (m *Manager) Summary(ctx context.Context) (string, error) {
	branch, err := m.Branch(ctx)
	if err != nil {
		return "", err
	}

	head, err := m.Head(ctx)
	if err != nil {
		return "", err
	}
	if len(head) > 12 {
		head = head[:12]
	}

	tracked, err := m.git(ctx, "ls-files")
	if err != nil {
		return "", err
	}
	fileCount := 0
	if s := strings.TrimSpace(tracked); s != "" {
		fileCount = len(strings.Split(s, "\n"))
	}

	dirty, err := m.DirtyFiles(ctx)
	if err != nil {
		return "", err
	}

	summary := fmt.Sprintf("%s at %s (%s), %d tracked files",
		filepath.Base(m.root), branch, head, fileCount)
	if len(dirty) > 0 {
		summary += fmt.Sprintf(", %d uncommitted changes", len(dirty))
	}
	return summary, nil
}

// Checkpoint records the current HEAD so a later Rollback can restore it.
func (m *Manager) Checkpoint(ctx context.Context) (*Checkpoint, error) {
	head, err := m.Head(ctx)
	if err != nil {
		return nil, err
	}
	return &Checkpoint{Head: head}, nil
}

// Rollback discards everything after the checkpoint: commits, staged and
// unstaged edits, and untracked files. Used when a task attempt must leave
// no trace.
func (m *Manager) Rollback(ctx context.Context, cp *Checkpoint) error {
	if cp == nil || cp.Head == "" {
		return fmt.Errorf("invalid checkpoint")
	}

	if _, err := m.git(ctx, "reset", "--hard", cp.Head); err != nil {
		return fmt.Errorf("failed to reset to checkpoint: %w", err)
	}
	if _, err := m.git(ctx, "clean", "-fd"); err != nil {
		return fmt.Errorf("failed to clean untracked files: %w", err)
	}
	return nil
}

// git runs a git subcommand in the workspace root and returns its combined
// output. Errors include the output for diagnosis.
func (m *Manager) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = m.root
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w (output: %s)", args[0], err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}
