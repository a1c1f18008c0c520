package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jackzampolin/slate/internal/chunker"
	"github.com/jackzampolin/slate/internal/providers"
	"github.com/jackzampolin/slate/internal/store"
)

// Config holds slate configuration.
// Stored at: ~/.slate/config.yaml or ./config.yaml
type Config struct {
	Providers map[string]ProviderCfg `mapstructure:"providers" yaml:"providers" validate:"dive"`
	Defaults  DefaultsCfg            `mapstructure:"defaults" yaml:"defaults"`
	Analysis  AnalysisCfg            `mapstructure:"analysis" yaml:"analysis"`
	Storage   StorageCfg             `mapstructure:"storage" yaml:"storage"`
	Logging   LoggingCfg             `mapstructure:"logging" yaml:"logging"`
}

// ProviderCfg configures a reasoning provider.
type ProviderCfg struct {
	Type              string `mapstructure:"type" yaml:"type" validate:"required,oneof=openrouter openai ollama mock"`
	Model             string `mapstructure:"model" yaml:"model"`
	APIKey            string `mapstructure:"api_key" yaml:"api_key"`   // supports ${ENV_VAR} syntax
	BaseURL           string `mapstructure:"base_url" yaml:"base_url"` // optional endpoint override
	TimeoutSeconds    int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds" validate:"gte=0"`
	MaxRetries        int    `mapstructure:"max_retries" yaml:"max_retries" validate:"gte=0,lte=10"`
	ContextTokens     int    `mapstructure:"context_tokens" yaml:"context_tokens" validate:"gte=0"` // 0 = look up by model
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute" validate:"gte=0"`
	Local             bool   `mapstructure:"local" yaml:"local"`
	Enabled           bool   `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default provider selections.
type DefaultsCfg struct {
	Provider string `mapstructure:"provider" yaml:"provider" validate:"required"`
	Model    string `mapstructure:"model" yaml:"model"` // overrides the provider's model when set
}

// AnalysisCfg tunes the analysis pipeline.
type AnalysisCfg struct {
	InterRequestDelayMS   int      `mapstructure:"inter_request_delay_ms" yaml:"inter_request_delay_ms" validate:"gte=0"`
	LargeContextTokens    int      `mapstructure:"large_context_tokens" yaml:"large_context_tokens" validate:"gte=0"`
	PromptReserveTokens   int      `mapstructure:"prompt_reserve_tokens" yaml:"prompt_reserve_tokens" validate:"gte=0"`
	ChunkStrategy         string   `mapstructure:"chunk_strategy" yaml:"chunk_strategy" validate:"oneof=scene paragraph"`
	FullAnalysisThreshold int      `mapstructure:"full_analysis_threshold" yaml:"full_analysis_threshold" validate:"gte=1"`
	Language              string   `mapstructure:"language" yaml:"language" validate:"required"`
	Types                 []string `mapstructure:"types" yaml:"types"`             // default selection for analyze
	PromptsDir            string   `mapstructure:"prompts_dir" yaml:"prompts_dir"` // "" = <home>/prompts
}

// StorageCfg selects the persistence backend.
type StorageCfg struct {
	Backend       string `mapstructure:"backend" yaml:"backend" validate:"oneof=file memory sqlite redis nats"`
	Path          string `mapstructure:"path" yaml:"path"` // "" = under the home directory
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db" validate:"gte=0"`
	NATSURL       string `mapstructure:"nats_url" yaml:"nats_url" validate:"required_if=Backend nats"`
	NATSBucket    string `mapstructure:"nats_bucket" yaml:"nats_bucket"`
}

// LoggingCfg controls log output.
type LoggingCfg struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=auto text json"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Providers: map[string]ProviderCfg{
			"openrouter": {
				Type:              "openrouter",
				Model:             "anthropic/claude-sonnet-4",
				APIKey:            "${OPENROUTER_API_KEY}",
				TimeoutSeconds:    300,
				MaxRetries:        3,
				RequestsPerMinute: 30,
				Enabled:           true,
			},
			"openai": {
				Type:           "openai",
				Model:          "gpt-4.1",
				APIKey:         "${OPENAI_API_KEY}",
				TimeoutSeconds: 300,
				MaxRetries:     2,
				Enabled:        false,
			},
			"ollama": {
				Type:           "ollama",
				Model:          "llama3.1:8b",
				BaseURL:        "http://localhost:11434",
				TimeoutSeconds: 600,
				Local:          true,
				Enabled:        false,
			},
		},
		Defaults: DefaultsCfg{
			Provider: "openrouter",
		},
		Analysis: AnalysisCfg{
			InterRequestDelayMS:   2000,
			LargeContextTokens:    chunker.DefaultLargeContextTokens,
			PromptReserveTokens:   chunker.DefaultPromptReserveTokens,
			ChunkStrategy:         string(chunker.StrategyScene),
			FullAnalysisThreshold: 10,
			Language:              "English",
		},
		Storage: StorageCfg{
			Backend:    store.BackendFile,
			NATSBucket: "slate",
		},
		Logging: LoggingCfg{
			Level:  "info",
			Format: "auto",
		},
	}
}

var validate = validator.New()

// Validate checks field constraints and cross-field references.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, ok := c.Providers[c.Defaults.Provider]; !ok {
		return fmt.Errorf("invalid config: defaults.provider %q is not configured (have %s)",
			c.Defaults.Provider, strings.Join(c.ProviderNames(), ", "))
	}
	return nil
}

// ProviderNames returns configured provider names, sorted.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetProvider returns a provider config by name.
func (c *Config) GetProvider(name string) (ProviderCfg, bool) {
	cfg, ok := c.Providers[name]
	return cfg, ok
}

// EnabledProviders returns all enabled providers.
func (c *Config) EnabledProviders() map[string]ProviderCfg {
	result := make(map[string]ProviderCfg)
	for name, cfg := range c.Providers {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// ToProviderRegistryConfig converts the config to a format suitable for providers.Registry.
// It resolves all ${ENV_VAR} references in API keys.
func (c *Config) ToProviderRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		LLMProviders: make(map[string]providers.LLMProviderConfig),
	}
	for name, p := range c.Providers {
		cfg.LLMProviders[name] = providers.LLMProviderConfig{
			Type:              p.Type,
			Model:             p.Model,
			APIKey:            ResolveEnvVars(p.APIKey),
			BaseURL:           p.BaseURL,
			Timeout:           time.Duration(p.TimeoutSeconds) * time.Second,
			MaxRetries:        p.MaxRetries,
			ContextTokens:     p.ContextTokens,
			RequestsPerMinute: p.RequestsPerMinute,
			Local:             p.Local,
			Enabled:           p.Enabled,
		}
	}
	return cfg
}

// PlanConfig returns the chunk planning settings.
func (c *Config) PlanConfig() chunker.PlanConfig {
	return chunker.PlanConfig{
		LargeContextTokens:  c.Analysis.LargeContextTokens,
		PromptReserveTokens: c.Analysis.PromptReserveTokens,
		Strategy:            chunker.Strategy(c.Analysis.ChunkStrategy),
	}
}

// InterRequestDelay is the pause between chunk requests to remote providers.
func (c *Config) InterRequestDelay() time.Duration {
	return time.Duration(c.Analysis.InterRequestDelayMS) * time.Millisecond
}

// StoreConfig returns the persistence settings. Relative or empty paths are
// placed under homePath.
func (c *Config) StoreConfig(homePath string) store.Config {
	path := c.Storage.Path
	switch {
	case path == "" && c.Storage.Backend == store.BackendSQLite:
		path = filepath.Join(homePath, "slate.db")
	case path == "":
		path = filepath.Join(homePath, "store")
	case !filepath.IsAbs(path):
		path = filepath.Join(homePath, path)
	}
	return store.Config{
		Backend:       c.Storage.Backend,
		Path:          path,
		RedisAddr:     c.Storage.RedisAddr,
		RedisPassword: ResolveEnvVars(c.Storage.RedisPassword),
		RedisDB:       c.Storage.RedisDB,
		RedisPrefix:   "slate",
		NATSURL:       c.Storage.NATSURL,
		NATSBucket:    c.Storage.NATSBucket,
	}
}
