// Package config handles logwarden configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level logwarden configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Storage  StorageConfig  `yaml:"storage"`
	Engine   EngineConfig   `yaml:"engine"`
	Notify   NotifyConfig   `yaml:"notify"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"` // e.g., 127.0.0.1:8080
	TLSCert    string `yaml:"tls_cert,omitempty"`
	TLSKey     string `yaml:"tls_key,omitempty"`
}

// AuthConfig controls token issuance and login throttling.
type AuthConfig struct {
	JWTSecret        string        `yaml:"jwt_secret"` // supports ${ENV_VAR}
	TokenTTL         time.Duration `yaml:"token_ttl"`
	MaxLoginAttempts int           `yaml:"max_login_attempts"`
	LockoutDuration  time.Duration `yaml:"lockout_duration"`
}

// StorageConfig controls the persistence layer.
type StorageConfig struct {
	Driver string `yaml:"driver"` // "sqlite"
	DSN    string `yaml:"dsn"`    // file path
}

// EngineConfig tunes the alert correlation engine.
type EngineConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"` // periodic re-evaluation
}

// NotifyConfig configures outbound alert channels.
type NotifyConfig struct {
	Webhook  WebhookConfig  `yaml:"webhook"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// WebhookConfig configures the generic HTTP JSON webhook channel.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret,omitempty"` // HMAC signing key, supports ${ENV_VAR}
}

// TelegramConfig configures the Telegram alert channel.
type TelegramConfig struct {
	Enabled  bool    `yaml:"enabled"`
	BotToken string  `yaml:"bot_token"` // supports ${ENV_VAR}
	ChatIDs  []int64 `yaml:"chat_ids"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// ResolveEnv replaces ${VAR} references in config strings with their env values.
func ResolveEnv(s string) string {
	if len(s) > 3 && s[0] == '$' && s[1] == '{' && s[len(s)-1] == '}' {
		envKey := s[2 : len(s)-1]
		if v := os.Getenv(envKey); v != "" {
			return v
		}
	}
	return s
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:8080",
		},
		Auth: AuthConfig{
			TokenTTL:         8 * time.Hour,
			MaxLoginAttempts: 5,
			LockoutDuration:  15 * time.Minute,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			DSN:    "./data/logwarden.db",
		},
		Engine: EngineConfig{
			SweepInterval: time.Minute,
		},
		Notify: NotifyConfig{},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a YAML config file and merges it with defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// Validate checks required fields and constraints.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Storage.Driver != "sqlite" {
		return fmt.Errorf("storage.driver must be 'sqlite', got %q", c.Storage.Driver)
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required")
	}
	if c.Engine.SweepInterval < time.Second {
		c.Engine.SweepInterval = time.Minute
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 8 * time.Hour
	}
	if c.Auth.MaxLoginAttempts < 1 {
		c.Auth.MaxLoginAttempts = 5
	}
	if c.Auth.LockoutDuration <= 0 {
		c.Auth.LockoutDuration = 15 * time.Minute
	}

	// Resolve env vars for secrets.
	c.Auth.JWTSecret = ResolveEnv(c.Auth.JWTSecret)
	c.Notify.Webhook.Secret = ResolveEnv(c.Notify.Webhook.Secret)
	c.Notify.Telegram.BotToken = ResolveEnv(c.Notify.Telegram.BotToken)

	if c.Notify.Webhook.Enabled && c.Notify.Webhook.URL == "" {
		return fmt.Errorf("notify.webhook.url is required when webhook is enabled")
	}
	if c.Notify.Telegram.Enabled && c.Notify.Telegram.BotToken == "" {
		return fmt.Errorf("notify.telegram.bot_token is required when telegram is enabled")
	}

	return nil
}
