// Package server provides configuration helpers that define runtime defaults,
// validation, and session parameters for the relay service.
package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Tyrowin/peerrelay/internal/relay"
)

// EnvPrefix prefixes every environment override, e.g. RELAY_RATE_LIMIT_BURST.
const EnvPrefix = "RELAY"

// RateLimitConfig defines per-session inbound message rate limiting.
type RateLimitConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Burst          int           `mapstructure:"burst"`
	RefillInterval time.Duration `mapstructure:"refill_interval"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Listen          string          `mapstructure:"listen"`
	AllowedOrigins  []string        `mapstructure:"allowed_origins"`
	MaxMessageSize  int64           `mapstructure:"max_message_size"`
	OutboxLimit     int             `mapstructure:"outbox_limit"`
	WriteWait       time.Duration   `mapstructure:"write_wait"`
	PongWait        time.Duration   `mapstructure:"pong_wait"`
	PingInterval    time.Duration   `mapstructure:"ping_interval"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	Log             LogConfig       `mapstructure:"log"`
	Metrics         MetricsConfig   `mapstructure:"metrics"`
}

// DefaultConfig returns a Config populated with default values for all settings.
func DefaultConfig() Config {
	return Config{
		Listen: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 512,
		OutboxLimit:    256,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingInterval:   54 * time.Second,
		RateLimit: RateLimitConfig{
			Enabled:        true,
			Burst:          5,
			RefillInterval: time.Second,
		},
		ShutdownTimeout: 10 * time.Second,
		Log:             LogConfig{Level: "info"},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// SetDefaults registers every key with its default so that environment
// variables are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("listen", d.Listen)
	v.SetDefault("allowed_origins", d.AllowedOrigins)
	v.SetDefault("max_message_size", d.MaxMessageSize)
	v.SetDefault("outbox_limit", d.OutboxLimit)
	v.SetDefault("write_wait", d.WriteWait)
	v.SetDefault("pong_wait", d.PongWait)
	// Zero derives the interval from pong_wait in sanitizeConfig.
	v.SetDefault("ping_interval", time.Duration(0))
	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)
	v.SetDefault("rate_limit.refill_interval", d.RateLimit.RefillInterval)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
}

// LoadConfig resolves defaults, the optional config file at path, RELAY_*
// environment variables and any flags already bound to v, in increasing
// order of precedence.
func LoadConfig(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg = sanitizeConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// sanitizeConfig replaces non-positive values with defaults.
func sanitizeConfig(cfg Config) Config {
	d := DefaultConfig()

	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = d.Listen
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = d.MaxMessageSize
	}
	if cfg.OutboxLimit <= 0 {
		cfg.OutboxLimit = d.OutboxLimit
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = d.WriteWait
	}
	if cfg.PongWait < 0 {
		cfg.PongWait = 0
	}
	if cfg.PongWait > 0 && cfg.PingInterval <= 0 {
		cfg.PingInterval = cfg.PongWait * 9 / 10
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = d.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = d.RateLimit.RefillInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = d.ShutdownTimeout
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = d.Log.Level
	}
	if strings.TrimSpace(cfg.Metrics.Path) == "" {
		cfg.Metrics.Path = d.Metrics.Path
	}
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	if c.PongWait > 0 && c.PingInterval >= c.PongWait {
		return &ConfigError{
			Key:    "ping_interval",
			Value:  c.PingInterval.String(),
			Reason: fmt.Sprintf("must be shorter than pong_wait (%s)", c.PongWait),
		}
	}
	if c.Metrics.Enabled {
		switch p := c.Metrics.Path; {
		case !strings.HasPrefix(p, "/"):
			return &ConfigError{Key: "metrics.path", Value: p, Reason: "must start with /"}
		case p == "/" || p == "/test" || p == "/ws" || strings.HasPrefix(p, "/ws/"):
			return &ConfigError{Key: "metrics.path", Value: p, Reason: "collides with a built-in route"}
		}
	}
	return nil
}

// SessionOptions maps the configuration onto relay session options.
func (c Config) SessionOptions() relay.Options {
	return relay.Options{
		MaxMessageSize: c.MaxMessageSize,
		OutboxLimit:    c.OutboxLimit,
		WriteWait:      c.WriteWait,
		PongWait:       c.PongWait,
		PingInterval:   c.PingInterval,
		RateLimit: relay.RateLimit{
			Enabled:  c.RateLimit.Enabled,
			Burst:    c.RateLimit.Burst,
			Interval: c.RateLimit.RefillInterval,
		},
	}
}
