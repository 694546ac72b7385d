package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arc.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Agent.MaxIterations != 20 {
		t.Errorf("max_iterations = %d, want 20", cfg.Agent.MaxIterations)
	}
	if cfg.Scheduler.PollIntervalSeconds != 30 {
		t.Errorf("poll_interval_seconds = %d, want 30", cfg.Scheduler.PollIntervalSeconds)
	}
	if cfg.Agent.ApprovalTimeoutSeconds != 300 {
		t.Errorf("approval_timeout_seconds = %d, want 300", cfg.Agent.ApprovalTimeoutSeconds)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[agent]
max_iterations = 5

[llm]
model = "llama3.1:70b"
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Agent.MaxIterations != 5 {
		t.Errorf("max_iterations = %d, want 5", cfg.Agent.MaxIterations)
	}
	if cfg.LLM.Model != "llama3.1:70b" {
		t.Errorf("model = %q", cfg.LLM.Model)
	}
	// Untouched sections keep defaults.
	if cfg.LLM.BaseURL != "http://localhost:11434" {
		t.Errorf("base_url = %q", cfg.LLM.BaseURL)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[llm]
model = "from-file"
`)
	t.Setenv("ARC_LLM_MODEL", "from-env")
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.Model != "from-env" {
		t.Errorf("model = %q, want from-env", cfg.LLM.Model)
	}
}

func TestVarSubstitution(t *testing.T) {
	t.Setenv("ARC_TEST_TOKEN", "s3cret")
	path := writeConfig(t, `
[telegram]
token = "${ARC_TEST_TOKEN}"
chat_id = "42"
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "s3cret" {
		t.Errorf("token = %q, want s3cret", cfg.Telegram.Token)
	}
	if !cfg.TelegramEnabled() {
		t.Error("telegram should be enabled with token and chat_id set")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero iterations", func(c *Config) { c.Agent.MaxIterations = 0 }},
		{"negative temperature", func(c *Config) { c.Agent.Temperature = -1 }},
		{"unknown store", func(c *Config) { c.Scheduler.Store = "redis" }},
		{"zero poll interval", func(c *Config) { c.Scheduler.PollIntervalSeconds = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestMalformedFile(t *testing.T) {
	path := writeConfig(t, `[agent` + "\n")
	if _, err := LoadFile(path); !errors.Is(err, ErrInvalid) {
		t.Errorf("LoadFile on malformed TOML = %v, want ErrInvalid", err)
	}
}
