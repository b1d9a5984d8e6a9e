package config

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	content := []byte(`
enabled: true
trigger: auto
exclude:
  - "vendor/**"
  - "*_pb2.py"
tools:
  - ruff
  - bandit
`)

	cfg, err := Parse(content)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if !cfg.Enabled {
		t.Error("Enabled = false, want true")
	}
	if cfg.Trigger != TriggerAuto {
		t.Errorf("Trigger = %q, want %q", cfg.Trigger, TriggerAuto)
	}
	if len(cfg.Exclude) != 2 {
		t.Errorf("len(Exclude) = %d, want 2", len(cfg.Exclude))
	}
	if len(cfg.Tools) != 2 {
		t.Errorf("len(Tools) = %d, want 2", len(cfg.Tools))
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`exclude: ["docs/**"]`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// Omitted trigger falls back to auto; enabled is explicit in yaml or
	// false, matching the zero value.
	if cfg.Trigger != TriggerAuto {
		t.Errorf("Trigger = %q, want %q", cfg.Trigger, TriggerAuto)
	}
}

func TestParseInvalidTrigger(t *testing.T) {
	if _, err := Parse([]byte(`trigger: whenever`)); err == nil {
		t.Error("Parse() expected error for invalid trigger")
	}
}

func TestParseUnknownTool(t *testing.T) {
	if _, err := Parse([]byte("tools:\n  - pylint\n")); err == nil {
		t.Error("Parse() expected error for unknown tool")
	}
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("enabled: [not: valid"))
	if err == nil {
		t.Fatal("Parse() expected error for invalid yaml")
	}
}

func TestConfigParseErrorUnwraps(t *testing.T) {
	inner := errors.New("bad yaml")
	err := &ConfigParseError{Path: DefaultConfigPath, Err: inner}
	if !errors.Is(err, inner) {
		t.Error("ConfigParseError should unwrap to the inner error")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.Enabled {
		t.Error("default config should be enabled")
	}
	if !cfg.ShouldReviewOnEvent() {
		t.Error("default config should review on events")
	}
}

func TestToolEnabled(t *testing.T) {
	all := DefaultConfig()
	for _, tool := range []string{"ruff", "bandit", "semgrep"} {
		if !all.ToolEnabled(tool) {
			t.Errorf("empty Tools should enable %s", tool)
		}
	}

	restricted := &Config{Tools: []string{"ruff"}}
	if !restricted.ToolEnabled("ruff") {
		t.Error("listed tool should be enabled")
	}
	if restricted.ToolEnabled("bandit") {
		t.Error("unlisted tool should be disabled")
	}
}

func TestShouldExcludeFile(t *testing.T) {
	cfg := &Config{
		Exclude: []string{"vendor/**", "*_pb2.py", "migrations/**", "setup.py"},
	}

	tests := []struct {
		path string
		want bool
	}{
		{"vendor/lib/util.py", true},
		{"vendor/api.py", true},
		{"vendors/app.py", false},
		{"proto/api_pb2.py", true},
		{"migrations/0001_initial.py", true},
		{"setup.py", true},
		{"src/app.py", false},
		{"tools/gen.py", false},
	}

	for _, tt := range tests {
		if got := cfg.ShouldExcludeFile(tt.path); got != tt.want {
			t.Errorf("ShouldExcludeFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestShouldExcludeFileNoPatterns(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ShouldExcludeFile("anything.py") {
		t.Error("no patterns should exclude nothing")
	}
}
