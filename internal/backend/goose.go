package backend

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// GooseAdapter is a Backend implementation for the Goose CLI.
// Goose supports local LLM providers (Ollama, LM Studio, llama.cpp) via
// --provider and --model flags.
type GooseAdapter struct {
	command      string
	sessionName  string
	workDir      string
	model        string
	provider     string
	systemPrompt string
	extraArgs    []string
	started      bool
	procMgr      *ProcessManager
}

// gooseResponse represents the JSON response structure from the Goose CLI.
type gooseResponse struct {
	Content string `json:"content"`
}

// NewGooseAdapter creates a new Goose adapter.
// If cfg.SessionID is empty, a session name "devflow-{random-hex}" is generated.
func NewGooseAdapter(cfg Config, procMgr *ProcessManager) (*GooseAdapter, error) {
	sessionName := cfg.SessionID
	if sessionName == "" {
		randomBytes := make([]byte, 4)
		if _, err := rand.Read(randomBytes); err != nil {
			return nil, fmt.Errorf("failed to generate session name: %w", err)
		}
		sessionName = "devflow-" + hex.EncodeToString(randomBytes)
	}

	return &GooseAdapter{
		command:      cfg.command(),
		sessionName:  sessionName,
		workDir:      cfg.WorkDir,
		model:        cfg.Model,
		provider:     cfg.Provider,
		systemPrompt: cfg.SystemPrompt,
		extraArgs:    cfg.ExtraArgs,
		procMgr:      procMgr,
	}, nil
}

// Send sends a message to Goose and returns the response.
// First call uses --name to start a session, subsequent calls use --resume.
func (g *GooseAdapter) Send(ctx context.Context, msg Message) (Response, error) {
	args := g.buildArgs(msg)

	cmd := newCommand(ctx, g.command, args...)
	cmd.Dir = g.workDir

	stdout, stderr, err := executeCommand(ctx, cmd, g.procMgr)
	if err != nil {
		return Response{
			Error:     fmt.Sprintf("goose command failed: %v", err),
			SessionID: g.sessionName,
		}, err
	}

	resp, parseErr := parseGooseResponse(stdout)
	if parseErr != nil {
		// Not all goose builds support --output-format json; fall back to
		// treating stdout as plain text.
		resp = Response{
			Content:   string(stdout),
			SessionID: g.sessionName,
		}
		if len(stderr) > 0 {
			resp.Content = string(stdout) + "\n[stderr]: " + string(stderr)
		}
	} else {
		resp.SessionID = g.sessionName
	}

	g.started = true

	return resp, nil
}

// buildArgs constructs the command-line arguments for the Goose CLI.
func (g *GooseAdapter) buildArgs(msg Message) []string {
	args := []string{"run", "--text", msg.Content, "--output-format", "json"}

	if !g.started {
		args = append(args, "--name", g.sessionName)
	} else {
		args = append(args, "--resume")
	}

	if g.provider != "" {
		args = append(args, "--provider", g.provider)
	}
	if g.model != "" {
		args = append(args, "--model", g.model)
	}
	if g.systemPrompt != "" {
		args = append(args, "--system", g.systemPrompt)
	}

	return append(args, g.extraArgs...)
}

// parseGooseResponse parses the JSON response from the Goose CLI.
// Tries a single JSON object first, then newline-delimited JSON.
func parseGooseResponse(data []byte) (Response, error) {
	var gooseResp gooseResponse
	if err := json.Unmarshal(data, &gooseResp); err == nil {
		return Response{Content: gooseResp.Content}, nil
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	var contents []string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var lineResp gooseResponse
		if err := json.Unmarshal([]byte(line), &lineResp); err == nil {
			if lineResp.Content != "" {
				contents = append(contents, lineResp.Content)
			}
		}
	}

	if len(contents) > 0 {
		return Response{Content: strings.Join(contents, "\n")}, nil
	}

	return Response{}, fmt.Errorf("failed to parse Goose JSON response")
}

// Close is a no-op: each invocation is a separate subprocess.
func (g *GooseAdapter) Close() error {
	return nil
}

// SessionID returns the current session name.
func (g *GooseAdapter) SessionID() string {
	return g.sessionName
}
