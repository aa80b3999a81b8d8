package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// CodexAdapter is the Codex CLI backend adapter.
type CodexAdapter struct {
	command   string
	threadID  string // Thread ID for resuming conversations
	workDir   string
	model     string
	extraArgs []string
	started   bool
	procMgr   *ProcessManager
}

// codexEvent is the base event type for all Codex events.
type codexEvent struct {
	Type string `json:"type"`
}

// codexThreadStarted represents the ThreadStarted event.
type codexThreadStarted struct {
	Type     string `json:"type"`
	ThreadID string `json:"thread_id"`
}

// codexTurnCompleted represents the TurnCompleted event.
type codexTurnCompleted struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// NewCodexAdapter creates a new Codex backend adapter.
// If cfg.SessionID is provided it is used as the initial thread ID.
func NewCodexAdapter(cfg Config, procMgr *ProcessManager) (*CodexAdapter, error) {
	return &CodexAdapter{
		command:   cfg.command(),
		threadID:  cfg.SessionID,
		workDir:   cfg.WorkDir,
		model:     cfg.Model,
		extraArgs: cfg.ExtraArgs,
		started:   cfg.SessionID != "",
		procMgr:   procMgr,
	}, nil
}

// Send sends a message to the Codex CLI and returns the response.
func (c *CodexAdapter) Send(ctx context.Context, msg Message) (Response, error) {
	args := c.buildArgs(msg)

	cmd := newCommand(ctx, c.command, args...)
	cmd.Dir = c.workDir

	stdout, _, err := executeCommand(ctx, cmd, c.procMgr)
	if err != nil {
		return Response{
			Error: fmt.Sprintf("codex command failed: %v", err),
		}, err
	}

	threadID, content, parseErr := parseCodexEvents(stdout)
	if parseErr != nil {
		return Response{
			Error: fmt.Sprintf("failed to parse codex events: %v", parseErr),
		}, parseErr
	}

	if threadID != "" {
		c.threadID = threadID
	}
	c.started = true

	return Response{
		Content:   content,
		SessionID: c.threadID,
	}, nil
}

// buildArgs constructs the command arguments for the codex CLI.
// First message: ["exec", prompt, "--json"]
// Resume: ["resume", threadID, prompt, "--json"]
func (c *CodexAdapter) buildArgs(msg Message) []string {
	var args []string

	if !c.started && c.threadID == "" {
		args = []string{"exec", msg.Content, "--json"}
	} else {
		args = []string{"resume", c.threadID, msg.Content, "--json"}
	}

	if c.model != "" {
		args = append(args, "--model", c.model)
	}

	return append(args, c.extraArgs...)
}

// parseCodexEvents parses newline-delimited JSON events from Codex CLI output.
// It extracts the thread_id from ThreadStarted and content from TurnCompleted.
func parseCodexEvents(data []byte) (threadID string, content string, err error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var evt codexEvent
		if parseErr := json.Unmarshal([]byte(line), &evt); parseErr != nil {
			return "", "", fmt.Errorf("failed to parse event type: %w", parseErr)
		}

		switch evt.Type {
		case "ThreadStarted":
			var started codexThreadStarted
			if parseErr := json.Unmarshal([]byte(line), &started); parseErr != nil {
				return "", "", fmt.Errorf("failed to parse ThreadStarted event: %w", parseErr)
			}
			threadID = started.ThreadID

		case "TurnCompleted":
			var completed codexTurnCompleted
			if parseErr := json.Unmarshal([]byte(line), &completed); parseErr != nil {
				return "", "", fmt.Errorf("failed to parse TurnCompleted event: %w", parseErr)
			}
			content = completed.Content
		}
	}

	if err := scanner.Err(); err != nil {
		return "", "", fmt.Errorf("error reading events: %w", err)
	}

	return threadID, content, nil
}

// Close is a no-op: Codex is invoked per-message, not as a persistent process.
func (c *CodexAdapter) Close() error {
	return nil
}

// SessionID returns the current thread ID.
func (c *CodexAdapter) SessionID() string {
	return c.threadID
}
