package config

// DefaultConfig returns the default configuration with built-in providers,
// agents, category routing, and run policy.
func DefaultConfig() *Config {
	return &Config{
		Providers: map[string]ProviderConfig{
			"claude": {
				Command: "claude",
				Type:    "claude",
			},
			"codex": {
				Command: "codex",
				Type:    "codex",
			},
			"goose": {
				Command: "goose",
				Type:    "goose",
			},
		},
		Agents: map[string]AgentConfig{
			"planner": {
				Provider:     "claude",
				SystemPrompt: "You decompose a development goal into an ordered task graph.",
			},
			"coder": {
				Provider:     "claude",
				SystemPrompt: "You implement features and write production code.",
			},
			"fixer": {
				Provider:     "claude",
				SystemPrompt: "You repair failing tests and lint findings with minimal diffs.",
			},
		},
		Categories: map[string]string{
			"feature-implementation": "coder",
			"fix-tests":              "fixer",
			"fix-lint":               "fixer",
			"refactor":               "coder",
			"other":                  "coder",
		},
		Validation: ValidationConfig{
			Lint: GateConfig{
				Enabled: true,
				Command: "golangci-lint",
				Args:    []string{"run", "./..."},
			},
			Test: GateConfig{
				Enabled: true,
				Command: "go",
				Args:    []string{"test", "./..."},
			},
			Security: GateConfig{
				Enabled: true,
				Command: "gitleaks",
				Args:    []string{"detect", "--no-banner", "--exit-code", "1"},
			},
		},
		Search: SearchConfig{
			Enabled:    true,
			APIKeyEnv:  "SERPER_API_KEY",
			Endpoint:   "https://google.serper.dev/search",
			TimeoutSec: 10,
			MaxQueries: 2,
			MaxResults: 3,
		},
		Run: RunConfig{
			MaxRetries:      2,
			IterationBudget: 25,
			HistoryPath:     "", // set via ~/.devflow/config.json to enable
		},
	}
}
