package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config,
// defaults. Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.devflow/config.json
// Project: .devflow/config.json (relative to cwd)
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".devflow", "config.json")
	projectPath := filepath.Join(".devflow", "config.json")

	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a JSON config file and merges it into the base config.
// Missing files are silently skipped. Malformed JSON returns an error.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded fileConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	for key, provider := range loaded.Providers {
		base.Providers[key] = provider
	}
	for key, agent := range loaded.Agents {
		base.Agents[key] = agent
	}
	for key, role := range loaded.Categories {
		base.Categories[key] = role
	}

	if loaded.Validation != nil {
		base.Validation = *loaded.Validation
	}
	if loaded.Search != nil {
		base.Search = *loaded.Search
	}
	if loaded.Run != nil {
		if loaded.Run.MaxRetries != nil {
			base.Run.MaxRetries = *loaded.Run.MaxRetries
		}
		if loaded.Run.IterationBudget != nil {
			base.Run.IterationBudget = *loaded.Run.IterationBudget
		}
		if loaded.Run.HistoryPath != nil {
			base.Run.HistoryPath = *loaded.Run.HistoryPath
		}
	}

	return nil
}

// fileConfig mirrors Config with optional sections so a partial file only
// overrides the keys it sets.
type fileConfig struct {
	Providers  map[string]ProviderConfig `json:"providers"`
	Agents     map[string]AgentConfig    `json:"agents"`
	Categories map[string]string         `json:"categories"`
	Validation *ValidationConfig         `json:"validation"`
	Search     *SearchConfig             `json:"search"`
	Run        *fileRunConfig            `json:"run"`
}

type fileRunConfig struct {
	MaxRetries      *int    `json:"max_retries"`
	IterationBudget *int    `json:"iteration_budget"`
	HistoryPath     *string `json:"history_path"`
}
