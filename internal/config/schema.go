package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/outline/internal/mapping"
)

// Oracle backends selectable under defaults.oracle.
const (
	OracleLLM  = "llm"
	OracleText = "text"
)

// Cache backends selectable under cache.backend.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Config holds outline configuration.
// Stored at: ~/.outline/config.yaml
type Config struct {
	LLMProviders map[string]LLMProviderCfg `mapstructure:"llm_providers" yaml:"llm_providers"`
	Retry        RetryCfg                  `mapstructure:"retry" yaml:"retry"`
	Defaults     DefaultsCfg               `mapstructure:"defaults" yaml:"defaults"`
	Mapping      mapping.Config            `mapstructure:"mapping" yaml:"mapping"`
	Cache        CacheCfg                  `mapstructure:"cache" yaml:"cache"`
	Store        StoreCfg                  `mapstructure:"store" yaml:"store"`
	Logging      LoggingCfg                `mapstructure:"logging" yaml:"logging"`
	Server       ServerCfg                 `mapstructure:"server" yaml:"server"`
}

// LLMProviderCfg configures an LLM provider.
type LLMProviderCfg struct {
	Type            string        `mapstructure:"type" yaml:"type"`                         // "openai", "openrouter", "ollama"
	Model           string        `mapstructure:"model" yaml:"model"`                       // Model name
	APIKey          string        `mapstructure:"api_key" yaml:"api_key"`                   // API key (supports ${ENV_VAR} syntax)
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url,omitempty"`       // Endpoint override
	RequestInterval time.Duration `mapstructure:"request_interval" yaml:"request_interval"` // Minimum gap between calls
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`                   // Per-request timeout
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
}

// RetryCfg is the backoff policy shared by every LLM provider.
type RetryCfg struct {
	MaxRetries   int           `mapstructure:"max_retries" yaml:"max_retries"`
	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	Jitter       bool          `mapstructure:"jitter" yaml:"jitter"`
}

// DefaultsCfg specifies default provider selections.
type DefaultsCfg struct {
	LLMProvider string `mapstructure:"llm_provider" yaml:"llm_provider"` // Default LLM provider
	Oracle      string `mapstructure:"oracle" yaml:"oracle"`             // "llm" or "text"
}

// CacheCfg configures the semantic score cache.
type CacheCfg struct {
	Backend     string        `mapstructure:"backend" yaml:"backend"` // "memory", "redis" or "none"
	MemoryLimit int           `mapstructure:"memory_limit" yaml:"memory_limit"`
	RedisAddr   string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	Password    string        `mapstructure:"password" yaml:"password,omitempty"`
	DB          int           `mapstructure:"db" yaml:"db"`
	TTL         time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// StoreCfg locates the SQLite database. An empty path means ~/.outline/outline.db.
type StoreCfg struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LoggingCfg sets the log level: debug, info, warn or error.
type LoggingCfg struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// ServerCfg is the listen address for `outline serve`.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// Addr returns host:port.
func (s ServerCfg) Addr() string {
	return s.Host + ":" + s.Port
}

// SlogLevel parses the configured level, falling back to info.
func (l LoggingCfg) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"deepseek": {
				Type:            "openai",
				Model:           "deepseek-chat",
				APIKey:          "${DEEPSEEK_API_KEY}",
				BaseURL:         "https://api.deepseek.com/v1",
				RequestInterval: time.Second,
				Timeout:         2 * time.Minute,
				Enabled:         true,
			},
			"openrouter": {
				Type:            "openrouter",
				Model:           "anthropic/claude-sonnet-4",
				APIKey:          "${OPENROUTER_API_KEY}",
				RequestInterval: time.Second,
				Timeout:         2 * time.Minute,
				Enabled:         true,
			},
			"ollama": {
				Type:    "ollama",
				Model:   "llama3.1",
				BaseURL: "http://localhost:11434",
				Timeout: 5 * time.Minute,
				Enabled: false,
			},
		},
		Retry: RetryCfg{
			MaxRetries:   3,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Jitter:       true,
		},
		Defaults: DefaultsCfg{
			LLMProvider: "deepseek",
			Oracle:      OracleLLM,
		},
		Mapping: mapping.DefaultConfig(),
		Cache: CacheCfg{
			Backend:     CacheMemory,
			MemoryLimit: 10000,
			RedisAddr:   "localhost:6379",
			TTL:         7 * 24 * time.Hour,
		},
		Logging: LoggingCfg{Level: "info"},
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: "8484",
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Mapping.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("mapping: %w", err))
	}
	switch c.Defaults.Oracle {
	case OracleLLM, OracleText:
	default:
		errs = append(errs, fmt.Errorf("defaults.oracle: unknown oracle %q", c.Defaults.Oracle))
	}
	switch c.Cache.Backend {
	case CacheMemory, CacheRedis, CacheNone:
	default:
		errs = append(errs, fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend))
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("retry.max_retries: must not be negative"))
	}
	return errors.Join(errs...)
}

// GetLLMProvider returns an LLM provider config by name.
func (c *Config) GetLLMProvider(name string) (LLMProviderCfg, bool) {
	cfg, ok := c.LLMProviders[name]
	return cfg, ok
}

// EnabledLLMProviders returns all enabled LLM providers.
func (c *Config) EnabledLLMProviders() map[string]LLMProviderCfg {
	result := make(map[string]LLMProviderCfg)
	for name, cfg := range c.LLMProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
