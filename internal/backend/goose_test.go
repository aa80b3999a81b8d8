package backend

import (
	"strings"
	"testing"
)

func TestGooseSessionNameGenerated(t *testing.T) {
	g, err := NewGooseAdapter(Config{Type: "goose"}, nil)
	if err != nil {
		t.Fatalf("NewGooseAdapter() error: %v", err)
	}
	if !strings.HasPrefix(g.SessionID(), "devflow-") {
		t.Errorf("SessionID() = %q, want devflow- prefix", g.SessionID())
	}
}

func TestGooseBuildArgs(t *testing.T) {
	g := &GooseAdapter{
		command:     "goose",
		sessionName: "devflow-abcd",
		provider:    "ollama",
		model:       "qwen3",
	}

	args := g.buildArgs(Message{Content: "refactor the loop"})
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--name devflow-abcd") {
		t.Errorf("first call missing --name: %v", args)
	}
	if !strings.Contains(joined, "--provider ollama") || !strings.Contains(joined, "--model qwen3") {
		t.Errorf("local LLM flags missing: %v", args)
	}

	g.started = true
	args = g.buildArgs(Message{Content: "again"})
	if !strings.Contains(strings.Join(args, " "), "--resume") {
		t.Errorf("resume call missing --resume: %v", args)
	}
}

func TestParseGooseResponse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "single object",
			input: `{"content": "all done"}`,
			want:  "all done",
		},
		{
			name:  "newline-delimited stream",
			input: `{"content": "step 1"}` + "\n" + `{"content": "step 2"}`,
			want:  "step 1\nstep 2",
		},
		{
			name:    "unparseable",
			input:   "plain text output",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := parseGooseResponse([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatal("parseGooseResponse() succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseGooseResponse() error: %v", err)
			}
			if resp.Content != tt.want {
				t.Errorf("Content = %q, want %q", resp.Content, tt.want)
			}
		})
	}
}
