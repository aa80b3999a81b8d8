package backend

// Message represents a message sent to the backend.
type Message struct {
	Content string
	Role    string // "user" or "system"
}

// Response represents a response from the backend.
type Response struct {
	Content   string
	SessionID string
	Error     string
}

// Config defines the configuration for a backend.
type Config struct {
	Type         string // "claude", "codex", or "goose"
	Command      string // CLI binary; defaults to Type when empty
	WorkDir      string
	SessionID    string
	Model        string
	Provider     string // For Goose local LLMs (e.g., "ollama", "lmstudio")
	SystemPrompt string
	ExtraArgs    []string // Appended to every CLI invocation
}

// command returns the CLI binary to invoke.
func (c Config) command() string {
	if c.Command != "" {
		return c.Command
	}
	return c.Type
}
