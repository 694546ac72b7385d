package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/BurntSushi/toml"
)

// ErrInvalid marks configuration that fails validation.
var ErrInvalid = errors.New("invalid config")

// Config is the full runtime configuration. Values are layered:
// built-in defaults, then the user file (~/.arc/config.toml), then the
// project file (./arc.toml), then ARC_* environment variables, then
// explicit overrides.
type Config struct {
	Agent     AgentConfig     `toml:"agent"`
	Security  SecurityConfig  `toml:"security"`
	Memory    MemoryConfig    `toml:"memory"`
	Cost      CostConfig      `toml:"cost"`
	LLM       LLMConfig       `toml:"llm"`
	Shell     ShellConfig     `toml:"shell"`
	Identity  IdentityConfig  `toml:"identity"`
	Telegram  TelegramConfig  `toml:"telegram"`
	Discord   DiscordConfig   `toml:"discord"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Tracing   TracingConfig   `toml:"tracing"`
}

type AgentConfig struct {
	Name                     string  `toml:"name"`
	MaxIterations            int     `toml:"max_iterations"`
	Temperature              float64 `toml:"temperature"`
	RecentWindow             int     `toml:"recent_window"`
	ApprovalTimeoutSeconds   int     `toml:"approval_timeout_seconds"`
	EscalationTimeoutSeconds int     `toml:"escalation_timeout_seconds"`
}

type SecurityConfig struct {
	AutoAllow  []string `toml:"auto_allow"`
	AlwaysAsk  []string `toml:"always_ask"`
	NeverAllow []string `toml:"never_allow"`
}

type MemoryConfig struct {
	Enabled bool   `toml:"enabled"`
	DBPath  string `toml:"db_path"`
}

type CostConfig struct {
	InputPerMillion  float64 `toml:"input_per_million"`
	OutputPerMillion float64 `toml:"output_per_million"`
}

type LLMConfig struct {
	Provider        string  `toml:"provider"`
	BaseURL         string  `toml:"base_url"`
	Model           string  `toml:"model"`
	ContextWindow   int     `toml:"context_window"`
	MaxOutputTokens int     `toml:"max_output_tokens"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
	Temperature     float64 `toml:"temperature"`
}

type ShellConfig struct {
	WorkingDir     string `toml:"working_dir"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type IdentityConfig struct {
	Path string `toml:"path"`
}

type TelegramConfig struct {
	Token  string `toml:"token"`
	ChatID string `toml:"chat_id"`
}

type DiscordConfig struct {
	Token     string `toml:"token"`
	ChannelID string `toml:"channel_id"`
}

type SchedulerConfig struct {
	Enabled             bool   `toml:"enabled"`
	Store               string `toml:"store"` // "sqlite" or "postgres"
	DBPath              string `toml:"db_path"`
	PostgresDSN         string `toml:"postgres_dsn"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
}

type TracingConfig struct {
	Endpoint    string `toml:"endpoint"`
	ServiceName string `toml:"service_name"`
}

// Dir returns the per-user state directory (~/.arc).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".arc"
	}
	return filepath.Join(home, ".arc")
}

// UserConfigPath returns the user config file location.
func UserConfigPath() string { return filepath.Join(Dir(), "config.toml") }

// Default returns the built-in configuration.
func Default() *Config {
	dir := Dir()
	return &Config{
		Agent: AgentConfig{
			Name:                     "arc",
			MaxIterations:            20,
			Temperature:              0.7,
			RecentWindow:             10,
			ApprovalTimeoutSeconds:   300,
			EscalationTimeoutSeconds: 300,
		},
		Security: SecurityConfig{
			AutoAllow:  []string{"file:read"},
			AlwaysAsk:  []string{"file:write", "file:delete", "shell:exec", "network:http"},
			NeverAllow: []string{},
		},
		Memory: MemoryConfig{
			Enabled: false,
			DBPath:  filepath.Join(dir, "memory", "memory.db"),
		},
		LLM: LLMConfig{
			Provider:        "ollama",
			BaseURL:         "http://localhost:11434",
			Model:           "qwen3:8b",
			ContextWindow:   8192,
			MaxOutputTokens: 2048,
			TimeoutSeconds:  120,
			Temperature:     0.7,
		},
		Shell: ShellConfig{
			TimeoutSeconds: 60,
		},
		Identity: IdentityConfig{
			Path: filepath.Join(dir, "identity.md"),
		},
		Scheduler: SchedulerConfig{
			Enabled:             true,
			Store:               "sqlite",
			DBPath:              filepath.Join(dir, "scheduler.db"),
			PollIntervalSeconds: 30,
		},
		Tracing: TracingConfig{
			ServiceName: "arc",
		},
	}
}

// Override mutates a config after the file and environment layers.
type Override func(*Config)

// Load builds the layered configuration. Missing files are skipped;
// unreadable or malformed files are errors.
func Load(overrides ...Override) (*Config, error) {
	cfg := Default()

	for _, path := range []string{UserConfigPath(), "arc.toml"} {
		if err := mergeFile(cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	for _, o := range overrides {
		o(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a single config file over the defaults, skipping the
// user/project layers. Used by tests and one-off tooling.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := mergeFile(cfg, path); err != nil {
		return nil, err
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandVars substitutes ${VAR} references with environment values.
// Unset variables expand to the empty string.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(m[2 : len(m)-1])
	})
}

func mergeFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal([]byte(expandVars(string(raw))), cfg); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalid, path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setStr := func(target *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*target = v
		}
	}
	setInt := func(target *int, key string) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*target = n
			}
		}
	}

	setStr(&cfg.LLM.Provider, "ARC_LLM_PROVIDER")
	setStr(&cfg.LLM.BaseURL, "ARC_LLM_BASE_URL")
	setStr(&cfg.LLM.Model, "ARC_LLM_MODEL")
	setInt(&cfg.LLM.ContextWindow, "ARC_LLM_CONTEXT_WINDOW")
	setInt(&cfg.Agent.MaxIterations, "ARC_AGENT_MAX_ITERATIONS")
	setInt(&cfg.Agent.ApprovalTimeoutSeconds, "ARC_AGENT_APPROVAL_TIMEOUT_SECONDS")
	setStr(&cfg.Telegram.Token, "ARC_TELEGRAM_TOKEN")
	setStr(&cfg.Telegram.ChatID, "ARC_TELEGRAM_CHAT_ID")
	setStr(&cfg.Discord.Token, "ARC_DISCORD_TOKEN")
	setStr(&cfg.Discord.ChannelID, "ARC_DISCORD_CHANNEL_ID")
	setStr(&cfg.Scheduler.DBPath, "ARC_SCHEDULER_DB_PATH")
	setStr(&cfg.Scheduler.PostgresDSN, "ARC_SCHEDULER_POSTGRES_DSN")
	setStr(&cfg.Identity.Path, "ARC_IDENTITY_PATH")
	setStr(&cfg.Tracing.Endpoint, "ARC_TRACING_ENDPOINT")
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("%w: agent.max_iterations must be >= 1", ErrInvalid)
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		return fmt.Errorf("%w: agent.temperature must be in [0, 2]", ErrInvalid)
	}
	if c.LLM.ContextWindow < 1 {
		return fmt.Errorf("%w: llm.context_window must be >= 1", ErrInvalid)
	}
	if c.LLM.MaxOutputTokens < 1 {
		return fmt.Errorf("%w: llm.max_output_tokens must be >= 1", ErrInvalid)
	}
	switch c.Scheduler.Store {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: scheduler.store must be sqlite or postgres", ErrInvalid)
	}
	if c.Scheduler.PollIntervalSeconds < 1 {
		return fmt.Errorf("%w: scheduler.poll_interval_seconds must be >= 1", ErrInvalid)
	}
	return nil
}

// TelegramEnabled reports whether Telegram delivery is configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.Token != "" && c.Telegram.ChatID != ""
}

// DiscordEnabled reports whether Discord delivery is configured.
func (c *Config) DiscordEnabled() bool {
	return c.Discord.Token != "" && c.Discord.ChannelID != ""
}
