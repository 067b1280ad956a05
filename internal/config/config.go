// Package config loads and validates profiler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Cache      CacheConfig      `mapstructure:"cache"`
	DB         DBConfig         `mapstructure:"db"`
	Fetcher    FetcherConfig    `mapstructure:"fetcher"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CacheConfig configures the derived artifact cache. An empty redis_addr
// selects the in-process cache.
type CacheConfig struct {
	RedisAddr  string `mapstructure:"redis_addr"`
	RedisDB    int    `mapstructure:"redis_db"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// DBConfig controls access to the visitor document database. An empty DSN
// selects the in-process store.
type DBConfig struct {
	DSN                string `mapstructure:"dsn"`
	MaxOpenConns       int    `mapstructure:"max_open_conns"`
	MinOpenConns       int    `mapstructure:"min_open_conns"`
	ConnLifetimeSecond int    `mapstructure:"conn_lifetime_seconds"`
}

// FetcherConfig selects and tunes the page fetcher.
type FetcherConfig struct {
	Mode           string `mapstructure:"mode"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxParallel    int    `mapstructure:"max_parallel"`
	NavTimeoutSec  int    `mapstructure:"nav_timeout_seconds"`
}

// ClassifierConfig configures the LLM classifier backend.
type ClassifierConfig struct {
	Provider        string  `mapstructure:"provider"`
	APIKey          string  `mapstructure:"api_key"`
	BaseURL         string  `mapstructure:"base_url"`
	Model           string  `mapstructure:"model"`
	Temperature     float64 `mapstructure:"temperature"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
	MaxContentChars int     `mapstructure:"max_content_chars"`
}

// PubSubConfig holds metadata for profile update notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PROFILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("cache.ttl_seconds", 86400)
	v.SetDefault("db.max_open_conns", 8)
	v.SetDefault("db.min_open_conns", 1)
	v.SetDefault("db.conn_lifetime_seconds", 1800)
	v.SetDefault("fetcher.mode", "headless")
	v.SetDefault("fetcher.user_agent", "visitor-profiler-bot/0.1")
	v.SetDefault("fetcher.timeout_seconds", 30)
	v.SetDefault("fetcher.max_parallel", 2)
	v.SetDefault("fetcher.nav_timeout_seconds", 25)
	v.SetDefault("classifier.provider", "openai")
	v.SetDefault("classifier.model", "gpt-4o-mini")
	v.SetDefault("classifier.temperature", 0.7)
	v.SetDefault("classifier.timeout_seconds", 60)
	v.SetDefault("classifier.max_content_chars", 1500)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be > 0")
	}
	switch c.Fetcher.Mode {
	case "headless", "plain":
	default:
		return fmt.Errorf("fetcher.mode must be 'headless' or 'plain'")
	}
	if c.Fetcher.Mode == "headless" && c.Fetcher.MaxParallel <= 0 {
		return fmt.Errorf("fetcher.max_parallel must be > 0 in headless mode")
	}
	if c.Fetcher.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetcher.timeout_seconds must be > 0")
	}
	switch c.Classifier.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("classifier.provider must be 'openai' or 'gemini'")
	}
	if c.Classifier.Model == "" {
		return fmt.Errorf("classifier.model must be set")
	}
	if c.Classifier.MaxContentChars <= 0 {
		return fmt.Errorf("classifier.max_content_chars must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}

// ArtifactTTL converts the cache TTL into a duration.
func (c Config) ArtifactTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// FetchTimeout converts the fetcher timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetcher.TimeoutSeconds) * time.Second
}

// ClassifyTimeout converts the classifier timeout into a duration.
func (c Config) ClassifyTimeout() time.Duration {
	return time.Duration(c.Classifier.TimeoutSeconds) * time.Second
}
