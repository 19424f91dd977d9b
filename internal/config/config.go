// Package config loads and validates the composer configuration from a YAML
// file merged with COMPOSER_-prefixed environment overrides.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/datakettle/dp-composer/internal/domain"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Provider  ProviderConfig  `koanf:"provider"`
	Storage   StorageConfig   `koanf:"storage"`
	Router    RouterConfig    `koanf:"router"`
	Context   ContextConfig   `koanf:"context"`
	Topics    TopicsConfig    `koanf:"topics"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type ServerConfig struct {
	Host      string          `koanf:"host"`
	Port      int             `koanf:"port"`
	Auth      AuthConfig      `koanf:"auth"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type AuthConfig struct {
	Enabled bool `koanf:"enabled"`
	// APIKeys holds SHA-256 hashes of accepted keys, as produced by
	// `composer keygen`.
	APIKeys []string `koanf:"api_keys"`
}

type RateLimitConfig struct {
	Enabled bool    `koanf:"enabled"`
	RPS     float64 `koanf:"rps"`
	Burst   int     `koanf:"burst"`
}

type ProviderConfig struct {
	// Name selects the completion service: "openai" or "anthropic".
	Name        string  `koanf:"name"`
	Model       string  `koanf:"model"`
	Temperature float32 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`
	BaseURL     string  `koanf:"base_url"`
	// APIKey supports ${VAR} substitution; when empty it falls back to the
	// provider's conventional environment variable.
	APIKey string `koanf:"api_key"`
}

type StorageConfig struct {
	// Driver selects the state store backend: file, sqlite, memory, redis.
	Driver string      `koanf:"driver"`
	Path   string      `koanf:"path"`
	DSN    string      `koanf:"dsn"`
	Redis  RedisConfig `koanf:"redis"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type RouterConfig struct {
	// Mode selects how free text picks a topic: "keyword" or "sequence".
	Mode string `koanf:"mode"`
}

type ContextConfig struct {
	// HistoryTurns caps how many recent turns the agent context includes.
	HistoryTurns int `koanf:"history_turns"`
	// TurnMaxChars truncates each included turn's content.
	TurnMaxChars int `koanf:"turn_max_chars"`
	// TokenBudget bounds the built context; oldest turns drop first.
	TokenBudget int `koanf:"token_budget"`
}

type TopicsConfig struct {
	// Dir holds per-topic YAML overrides; empty means built-ins only.
	Dir   string `koanf:"dir"`
	Watch bool   `koanf:"watch"`
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Provider names understood by the llm factory.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// EnvPrefix is the prefix for environment overrides. Double underscores map
// to nesting: COMPOSER_SERVER__PORT=9000 sets server.port.
const EnvPrefix = "COMPOSER_"

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads the config file at path (skipped when missing so env-only runs
// work), applies environment overrides, fills defaults, and substitutes
// ${VAR} references in credential fields.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = "config.yaml"
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	applyDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.Provider.APIKey = substituteEnvVars(cfg.Provider.APIKey)
	cfg.Storage.Redis.Password = substituteEnvVars(cfg.Storage.Redis.Password)
	if cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = os.Getenv(credentialEnvVar(cfg.Provider.Name))
	}

	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.rate_limit.rps":   5.0,
		"server.rate_limit.burst": 10,
		"provider.name":           ProviderOpenAI,
		"provider.model":          "gpt-4o-mini",
		"provider.temperature":    0.1,
		"provider.max_tokens":     2048,
		"storage.driver":          "file",
		"storage.path":            "./sessions",
		"storage.dsn":             "composer.db",
		"storage.redis.addr":      "localhost:6379",
		"router.mode":             "keyword",
		"context.history_turns":   10,
		"context.turn_max_chars":  100,
		"context.token_budget":    2048,
		"logging.level":           "info",
		"logging.format":          "json",
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// credentialEnvVar names the conventional environment variable for a
// provider's API key.
func credentialEnvVar(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

// Validate checks the invariants that must hold before the composer starts.
// Violations are configuration errors: fatal, reported once, exit non-zero.
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return domain.ErrConfiguration(fmt.Sprintf("unknown provider %q", c.Provider.Name))
	}

	if c.Provider.APIKey == "" {
		return domain.ErrConfiguration(fmt.Sprintf(
			"no API key for provider %q: set provider.api_key or %s",
			c.Provider.Name, credentialEnvVar(c.Provider.Name),
		)).WithCode(domain.ErrorCodeMissingCredential)
	}

	switch c.Storage.Driver {
	case "file", "sqlite", "memory", "redis":
	default:
		return domain.ErrConfiguration(fmt.Sprintf("unknown storage driver %q", c.Storage.Driver))
	}

	switch c.Router.Mode {
	case "keyword", "sequence":
	default:
		return domain.ErrConfiguration(fmt.Sprintf("unknown router mode %q", c.Router.Mode))
	}

	if c.Topics.Dir != "" {
		if info, err := os.Stat(c.Topics.Dir); err != nil || !info.IsDir() {
			return domain.ErrConfiguration(fmt.Sprintf("topics dir %q not readable", c.Topics.Dir))
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return domain.ErrConfiguration(fmt.Sprintf("invalid server port %d", c.Server.Port))
	}

	return nil
}

// Addr returns the listen address for serve mode.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
