// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Agent() AgentConfig
	Memory() MemoryConfig

	SetPromptVision(bool)
	SetMemoryDir(string)
	SetCriticEnabled(bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg LoggerConfig `mapstructure:"logger" yaml:"logger"`
	AgentCfg  AgentConfig  `mapstructure:"agent" yaml:"agent"`
	MemoryCfg MemoryConfig `mapstructure:"memory" yaml:"memory"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig { return c.LoggerCfg }
func (c *Config) Agent() AgentConfig   { return c.AgentCfg }
func (c *Config) Memory() MemoryConfig { return c.MemoryCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetPromptVision(b bool)  { c.AgentCfg.Prompt.Vision = b }
func (c *Config) SetMemoryDir(dir string) { c.MemoryCfg.Dir = dir }
func (c *Config) SetCriticEnabled(b bool) { c.AgentCfg.Critic.Enabled = b }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// AgentConfig holds settings related to the decision engine and its components.
type AgentConfig struct {
	LLM      LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
	Decision DecisionConfig  `mapstructure:"decision" yaml:"decision"`
	Critic   CriticConfig    `mapstructure:"critic" yaml:"critic"`
	Ledger   LedgerConfig    `mapstructure:"ledger" yaml:"ledger"`
	Prompt   PromptConfig    `mapstructure:"prompt" yaml:"prompt"`
}

// DecisionConfig controls the retry discipline of the main decision call.
type DecisionConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// CriticConfig controls the periodic second-opinion call.
type CriticConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval   int           `mapstructure:"interval" yaml:"interval"`
	StartAfter int           `mapstructure:"start_after" yaml:"start_after"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LedgerConfig holds the stagnation thresholds and the outcome matcher knobs.
type LedgerConfig struct {
	ReplanThreshold   int `mapstructure:"replan_threshold" yaml:"replan_threshold"`
	AutoBailThreshold int `mapstructure:"auto_bail_threshold" yaml:"auto_bail_threshold"`
	NoProgressSteps   int `mapstructure:"no_progress_steps" yaml:"no_progress_steps"`
	SameScreenLimit   int `mapstructure:"same_screen_limit" yaml:"same_screen_limit"`
	ElementDelta      int `mapstructure:"element_delta" yaml:"element_delta"`
	MinWordLength     int `mapstructure:"min_word_length" yaml:"min_word_length"`
	MinSharedWords    int `mapstructure:"min_shared_words" yaml:"min_shared_words"`
}

// PromptConfig controls prompt rendering.
type PromptConfig struct {
	HistoryLimit  int    `mapstructure:"history_limit" yaml:"history_limit"`
	MaxElements   int    `mapstructure:"max_elements" yaml:"max_elements"`
	Vision        bool   `mapstructure:"vision" yaml:"vision"`
	ScreenshotDir string `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
}

// LLMProvider defines the supported completion adapters.
type LLMProvider string

const (
	ProviderCLI    LLMProvider = "cli"
	ProviderGemini LLMProvider = "gemini"
)

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
	RequestsPerMinute    float64                   `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	MaxResponseBytes     int64                     `mapstructure:"max_response_bytes" yaml:"max_response_bytes"`
	KillGracePeriod      time.Duration             `mapstructure:"kill_grace_period" yaml:"kill_grace_period"`
}

// LLMModelConfig defines the configuration for a single model.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	Binary      string        `mapstructure:"binary" yaml:"binary"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	// MaxRetries is the number of extra requests an HTTP provider may make
	// for one call. Zero leaves retrying to the decision loop.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// MemoryConfig selects where cached action sequences and lessons live.
type MemoryConfig struct {
	Backend        string         `mapstructure:"backend" yaml:"backend"`
	Dir            string         `mapstructure:"dir" yaml:"dir"`
	CacheCapacity  int            `mapstructure:"cache_capacity" yaml:"cache_capacity"`
	LessonCapacity int            `mapstructure:"lesson_capacity" yaml:"lesson_capacity"`
	Postgres       PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// PostgresConfig holds the connection string for the SQL memory backend.
type PostgresConfig struct {
	URL string `mapstructure:"url" yaml:"-"`
}

const (
	MemoryBackendFile     = "file"
	MemoryBackendPostgres = "postgres"
)

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "uiprobe")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Agent LLM --
	v.SetDefault("agent.llm.default_fast_model", "fast")
	v.SetDefault("agent.llm.default_powerful_model", "powerful")
	v.SetDefault("agent.llm.models", map[string]interface{}{
		"fast":     map[string]interface{}{"provider": "cli", "binary": "claude", "model": "haiku"},
		"powerful": map[string]interface{}{"provider": "cli", "binary": "claude", "model": "sonnet"},
	})
	v.SetDefault("agent.llm.requests_per_minute", 0)
	v.SetDefault("agent.llm.max_response_bytes", 2<<20)
	v.SetDefault("agent.llm.kill_grace_period", "2s")

	// -- Agent Decision / Critic --
	v.SetDefault("agent.decision.max_attempts", 3)
	v.SetDefault("agent.decision.timeout", "600s")
	v.SetDefault("agent.critic.enabled", true)
	v.SetDefault("agent.critic.interval", 10)
	v.SetDefault("agent.critic.start_after", 3)
	v.SetDefault("agent.critic.timeout", "60s")

	// -- Agent Ledger --
	v.SetDefault("agent.ledger.replan_threshold", 4)
	v.SetDefault("agent.ledger.auto_bail_threshold", 8)
	v.SetDefault("agent.ledger.no_progress_steps", 4)
	v.SetDefault("agent.ledger.same_screen_limit", 3)
	v.SetDefault("agent.ledger.element_delta", 3)
	v.SetDefault("agent.ledger.min_word_length", 5)
	v.SetDefault("agent.ledger.min_shared_words", 2)

	// -- Agent Prompt --
	v.SetDefault("agent.prompt.history_limit", 50)
	v.SetDefault("agent.prompt.max_elements", 25)
	v.SetDefault("agent.prompt.vision", false)
	v.SetDefault("agent.prompt.screenshot_dir", filepath.Join(os.TempDir(), "uiprobe-screens"))

	// -- Memory --
	v.SetDefault("memory.backend", MemoryBackendFile)
	v.SetDefault("memory.dir", "~/.uiprobe/memory")
	v.SetDefault("memory.cache_capacity", 20)
	v.SetDefault("memory.lesson_capacity", 50)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("memory.postgres.url", "UIPROBE_MEMORY_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	for name, model := range cfg.AgentCfg.LLM.Models {
		if model.Provider == ProviderGemini && model.APIKey == "" {
			model.APIKey = os.Getenv("GEMINI_API_KEY")
			cfg.AgentCfg.LLM.Models[name] = model
		}
	}

	dir, err := homedir.Expand(cfg.MemoryCfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand memory.dir %q: %w", cfg.MemoryCfg.Dir, err)
	}
	cfg.MemoryCfg.Dir = dir

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.AgentCfg.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if err := c.MemoryCfg.Validate(); err != nil {
		return fmt.Errorf("memory configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the agent settings.
func (a *AgentConfig) Validate() error {
	if a.Decision.MaxAttempts <= 0 {
		return fmt.Errorf("decision.max_attempts must be a positive integer")
	}
	if a.Decision.Timeout <= 0 {
		return fmt.Errorf("decision.timeout must be a positive duration")
	}
	if a.Critic.Enabled && a.Critic.Interval <= 0 {
		return fmt.Errorf("critic.interval must be a positive integer when the critic is enabled")
	}
	if a.Ledger.AutoBailThreshold <= a.Ledger.ReplanThreshold {
		return fmt.Errorf("ledger.auto_bail_threshold must be greater than ledger.replan_threshold")
	}
	if a.Prompt.HistoryLimit <= 0 || a.Prompt.MaxElements <= 0 {
		return fmt.Errorf("prompt.history_limit and prompt.max_elements must be positive")
	}
	return a.LLM.Validate()
}

// Validate checks that both routing tiers resolve to a configured model.
func (l *LLMRouterConfig) Validate() error {
	for _, name := range []string{l.DefaultFastModel, l.DefaultPowerfulModel} {
		model, ok := l.Models[name]
		if !ok {
			return fmt.Errorf("llm model %q is not configured under llm.models", name)
		}
		switch model.Provider {
		case ProviderCLI, ProviderGemini:
		default:
			return fmt.Errorf("llm model %q has unsupported provider %q", name, model.Provider)
		}
	}
	if l.MaxResponseBytes <= 0 {
		return fmt.Errorf("llm.max_response_bytes must be positive")
	}
	return nil
}

// Validate checks the MemoryConfig settings.
func (m *MemoryConfig) Validate() error {
	if m.CacheCapacity <= 0 || m.LessonCapacity <= 0 {
		return fmt.Errorf("cache_capacity and lesson_capacity must be positive")
	}
	switch m.Backend {
	case MemoryBackendFile:
		if m.Dir == "" {
			return fmt.Errorf("dir is required for the file backend")
		}
	case MemoryBackendPostgres:
		if m.Postgres.URL == "" {
			return fmt.Errorf("postgres.url is required for the postgres backend. Ensure UIPROBE_MEMORY_DATABASE_URL is set")
		}
	default:
		return fmt.Errorf("unknown backend %q", m.Backend)
	}
	return nil
}
