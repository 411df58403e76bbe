// Package config loads and validates smali-lsp configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config contains the workspace and logging configuration.
type Config struct {
	Workspace WorkspaceConfig `yaml:"workspace"`
	Log       LogConfig       `yaml:"log"`
}

// WorkspaceConfig controls discovery and index maintenance.
type WorkspaceConfig struct {
	// Pattern is the doublestar glob matching indexable files,
	// relative to the workspace root.
	Pattern string `yaml:"pattern"`
	// MaxParallelParses bounds concurrent in-flight parses during the
	// bulk load.
	MaxParallelParses int `yaml:"max_parallel_parses"`
	// WatchDebounceMs is how long a file must stay quiet after a write
	// before it is reparsed.
	WatchDebounceMs int `yaml:"watch_debounce_ms"`
	// Watch enables the file-system watcher alongside LSP events.
	Watch bool `yaml:"watch"`
}

// LogConfig controls stderr logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// GetDefaultConfig returns the configuration used when no file is given.
func GetDefaultConfig() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Pattern:           "**/*.smali",
			MaxParallelParses: 50,
			WatchDebounceMs:   500,
			Watch:             true,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig loads configuration from a YAML file, filling defaults for
// omitted fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := GetDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// SaveConfig saves configuration to a YAML file.
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	if config.Workspace.Pattern == "" {
		return fmt.Errorf("workspace pattern is required")
	}
	if config.Workspace.MaxParallelParses <= 0 {
		return fmt.Errorf("max_parallel_parses must be positive")
	}
	if config.Workspace.WatchDebounceMs < 0 {
		return fmt.Errorf("watch_debounce_ms must not be negative")
	}
	switch config.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", config.Log.Level)
	}
	return nil
}
