package config

// ProviderConfig defines a transport layer (CLI command, args, base settings).
// Providers are separate from agents -- multiple agents can share one provider.
type ProviderConfig struct {
	Command string   `json:"command"`        // CLI binary name (e.g., "claude", "codex", "goose")
	Args    []string `json:"args,omitempty"` // Default args appended to every invocation
	Type    string   `json:"type"`           // Backend type: "claude", "codex", "goose"
}

// AgentConfig defines a role that uses a specific provider and model.
type AgentConfig struct {
	Provider     string `json:"provider"`                // Key into Providers map
	Model        string `json:"model,omitempty"`         // Model override (e.g., "opus-4", "gpt-4.1")
	SystemPrompt string `json:"system_prompt,omitempty"` // Role-specific system prompt
}

// GateConfig defines one validation gate.
type GateConfig struct {
	Enabled bool     `json:"enabled"`
	Command string   `json:"command,omitempty"` // Runner binary (e.g., "golangci-lint")
	Args    []string `json:"args,omitempty"`
}

// ValidationConfig holds the gate pipeline. A disabled gate drops out of the
// overall conjunction entirely, it does not count as a pass.
type ValidationConfig struct {
	Lint     GateConfig `json:"lint"`
	Test     GateConfig `json:"test"`
	Security GateConfig `json:"security"`
}

// SearchConfig configures the external search gateway.
type SearchConfig struct {
	Enabled    bool   `json:"enabled"`
	APIKeyEnv  string `json:"api_key_env,omitempty"` // Env var holding the API key
	Endpoint   string `json:"endpoint,omitempty"`    // Search API URL
	TimeoutSec int    `json:"timeout_sec,omitempty"` // Per-request timeout
	MaxQueries int    `json:"max_queries,omitempty"` // Queries per execution attempt
	MaxResults int    `json:"max_results,omitempty"` // Results folded in per query
}

// RunConfig holds the orchestration policy knobs.
type RunConfig struct {
	MaxRetries      int    `json:"max_retries"`      // Validation retries per task
	IterationBudget int    `json:"iteration_budget"` // Total execution attempts per run
	HistoryPath     string `json:"history_path,omitempty"` // SQLite cache; empty disables persistence
}

// Config is the top-level configuration.
type Config struct {
	Providers  map[string]ProviderConfig `json:"providers"`
	Agents     map[string]AgentConfig    `json:"agents"`
	Categories map[string]string         `json:"categories"` // task category -> agent role
	Validation ValidationConfig          `json:"validation"`
	Search     SearchConfig              `json:"search"`
	Run        RunConfig                 `json:"run"`
}

// AgentFor resolves the agent role for a task category, falling back to the
// "other" mapping and then to "coder".
func (c *Config) AgentFor(category string) string {
	if role, ok := c.Categories[category]; ok && role != "" {
		return role
	}
	if role, ok := c.Categories["other"]; ok && role != "" {
		return role
	}
	return "coder"
}
