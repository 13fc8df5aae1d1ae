// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Redis     RedisConfig     `mapstructure:"redis"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// PipelineConfig governs the extraction pipeline loop.
type PipelineConfig struct {
	Workers        int      `mapstructure:"workers"`
	MinLength      int      `mapstructure:"min_length"`
	MaxLength      int      `mapstructure:"max_length"`
	Keywords       []string `mapstructure:"keywords"`
	IdleIntervalMs int      `mapstructure:"idle_interval_ms"`
	BackoffBaseMs  int      `mapstructure:"backoff_base_ms"`
	BackoffMaxMs   int      `mapstructure:"backoff_max_ms"`
}

// ExtractorConfig points at the extraction service.
type ExtractorConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// RedisConfig controls access to the pending queue.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// DBConfig controls access to the relational store.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	Table           string `mapstructure:"table"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	MaxConnLifetime string `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds metadata for stored-record event publishing. An
// empty topic disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TelegramConfig configures the notification side-channel. An empty
// token disables it.
type TelegramConfig struct {
	Token          string `mapstructure:"token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DEALPIPE")
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
	v.SetDefault("pipeline.workers", 1)
	v.SetDefault("pipeline.min_length", 50)
	v.SetDefault("pipeline.max_length", 2000)
	v.SetDefault("pipeline.idle_interval_ms", 1000)
	v.SetDefault("pipeline.backoff_base_ms", 100)
	v.SetDefault("pipeline.backoff_max_ms", 30000)
	v.SetDefault("extractor.base_url", "http://localhost:11434")
	v.SetDefault("extractor.model", "mistral")
	v.SetDefault("extractor.timeout_seconds", 60)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.key_prefix", "dealpipe")
	v.SetDefault("db.table", "product_data")
	v.SetDefault("telegram.timeout_seconds", 10)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	if c.Pipeline.MinLength < 0 || c.Pipeline.MaxLength <= c.Pipeline.MinLength {
		return fmt.Errorf("pipeline length window [%d, %d] is invalid", c.Pipeline.MinLength, c.Pipeline.MaxLength)
	}
	if c.Pipeline.IdleIntervalMs <= 0 {
		return fmt.Errorf("pipeline.idle_interval_ms must be > 0")
	}
	if c.Extractor.BaseURL == "" {
		return fmt.Errorf("extractor.base_url is required")
	}
	if c.Extractor.Model == "" {
		return fmt.Errorf("extractor.model is required")
	}
	if c.Extractor.TimeoutSeconds <= 0 {
		return fmt.Errorf("extractor.timeout_seconds must be > 0")
	}
	return nil
}

// IdleInterval is the sleep applied when the pending queue is empty.
func (c Config) IdleInterval() time.Duration {
	return time.Duration(c.Pipeline.IdleIntervalMs) * time.Millisecond
}

// BackoffBase is the smallest delay applied after a failure.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.Pipeline.BackoffBaseMs) * time.Millisecond
}

// BackoffMax caps the failure backoff.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Pipeline.BackoffMaxMs) * time.Millisecond
}

// ExtractorTimeout bounds one extraction call.
func (c Config) ExtractorTimeout() time.Duration {
	return time.Duration(c.Extractor.TimeoutSeconds) * time.Second
}
