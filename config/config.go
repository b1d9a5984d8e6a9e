// Package config handles repository and server configuration.
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/codexlens/codexlens/github"
)

const (
	// DefaultConfigPath is the default path for the codexlens config file.
	DefaultConfigPath = ".github/codexlens.yml"

	// TriggerAuto triggers a review automatically on PR events.
	TriggerAuto = "auto"
	// TriggerOnRequest triggers a review only when requested.
	TriggerOnRequest = "on-request"
)

// ConfigParseError indicates a configuration file exists but contains invalid content.
// This is distinct from "file not found" errors, which should use default config.
type ConfigParseError struct {
	Path string
	Err  error
}

func (e *ConfigParseError) Error() string {
	return fmt.Sprintf("invalid config at %s: %v", e.Path, e.Err)
}

func (e *ConfigParseError) Unwrap() error {
	return e.Err
}

// Config represents the repository configuration for the reviewer.
type Config struct {
	// Enabled determines if the reviewer is enabled for this repository.
	Enabled bool `yaml:"enabled"`
	// Trigger determines when reviews are triggered.
	// Valid values: "auto", "on-request"
	Trigger string `yaml:"trigger"`
	// Exclude is a list of glob patterns for files to skip during review.
	// Example: ["vendor/**", "*_pb2.py", "migrations/**"]
	Exclude []string `yaml:"exclude"`
	// Tools optionally restricts which analyzers run. Empty means all.
	// Valid entries: "ruff", "bandit", "semgrep".
	Tools []string `yaml:"tools"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Trigger: TriggerAuto,
	}
}

// Loader loads configuration from repositories.
type Loader struct {
	client *github.Client
}

// NewLoader creates a new config loader.
func NewLoader(client *github.Client) *Loader {
	return &Loader{client: client}
}

// Load fetches and parses the config from a repository.
// If the config file doesn't exist, returns the default config.
// If the config file exists but is invalid, returns a ConfigParseError.
func (l *Loader) Load(ctx context.Context, installationID int64, owner, repo, ref string) (*Config, error) {
	content, err := l.client.FetchFileContent(ctx, installationID, owner, repo, DefaultConfigPath, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch config: %w", err)
	}

	if content == "" {
		return DefaultConfig(), nil
	}

	config, err := Parse([]byte(content))
	if err != nil {
		// Wrap parse errors so callers can distinguish from fetch errors
		return nil, &ConfigParseError{Path: DefaultConfigPath, Err: err}
	}

	return config, nil
}

// Parse parses a config from YAML content.
func Parse(content []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(content, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Trigger {
	case TriggerAuto, TriggerOnRequest, "":
		if c.Trigger == "" {
			c.Trigger = TriggerAuto
		}
	default:
		return fmt.Errorf("invalid trigger value: %s (must be 'auto' or 'on-request')", c.Trigger)
	}

	for _, tool := range c.Tools {
		switch tool {
		case "ruff", "bandit", "semgrep":
		default:
			return fmt.Errorf("unknown tool: %s", tool)
		}
	}

	return nil
}

// ShouldReviewOnEvent returns true if a review should be triggered for automatic events.
func (c *Config) ShouldReviewOnEvent() bool {
	return c.Enabled && c.Trigger == TriggerAuto
}

// ToolEnabled returns true if the given analyzer should run. An empty Tools
// list enables all analyzers.
func (c *Config) ToolEnabled(name string) bool {
	if len(c.Tools) == 0 {
		return true
	}
	for _, tool := range c.Tools {
		if tool == name {
			return true
		}
	}
	return false
}

// ShouldExcludeFile returns true if the file path matches any exclude pattern.
func (c *Config) ShouldExcludeFile(path string) bool {
	for _, pattern := range c.Exclude {
		// Handle ** patterns by checking if any path segment matches
		if strings.Contains(pattern, "**") {
			// Convert ** pattern to check directory prefix
			prefix := strings.Split(pattern, "**")[0]
			// The prefix must match through its trailing slash so that
			// "vendor/**" never swallows a sibling like "vendors/app.py".
			if prefix != "" && strings.HasPrefix(path, prefix) {
				// Check suffix if present
				suffix := strings.Split(pattern, "**")[1]
				if suffix == "" || strings.HasSuffix(path, strings.TrimPrefix(suffix, "/")) {
					return true
				}
			}
		}

		// Standard glob matching
		if matched, _ := filepath.Match(pattern, path); matched {
			return true
		}

		// Also try matching just the filename for patterns like "*_pb2.py"
		if matched, _ := filepath.Match(pattern, filepath.Base(path)); matched {
			return true
		}
	}
	return false
}
