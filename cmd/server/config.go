package main

import (
	"io"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/peerrelay/internal/server"
)

// configView is the TOML rendering of server.Config with durations
// written the way the loader reads them.
type configView struct {
	Listen          string        `toml:"listen"`
	AllowedOrigins  []string      `toml:"allowed_origins"`
	MaxMessageSize  int64         `toml:"max_message_size"`
	OutboxLimit     int           `toml:"outbox_limit"`
	WriteWait       string        `toml:"write_wait"`
	PongWait        string        `toml:"pong_wait"`
	PingInterval    string        `toml:"ping_interval"`
	ShutdownTimeout string        `toml:"shutdown_timeout"`
	RateLimit       rateLimitView `toml:"rate_limit"`
	Log             logView       `toml:"log"`
	Metrics         metricsView   `toml:"metrics"`
}

type rateLimitView struct {
	Enabled        bool   `toml:"enabled"`
	Burst          int    `toml:"burst"`
	RefillInterval string `toml:"refill_interval"`
}

type logView struct {
	Level string `toml:"level"`
}

type metricsView struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

func newConfigView(c server.Config) configView {
	return configView{
		Listen:          c.Listen,
		AllowedOrigins:  c.AllowedOrigins,
		MaxMessageSize:  c.MaxMessageSize,
		OutboxLimit:     c.OutboxLimit,
		WriteWait:       c.WriteWait.String(),
		PongWait:        c.PongWait.String(),
		PingInterval:    c.PingInterval.String(),
		ShutdownTimeout: c.ShutdownTimeout.String(),
		RateLimit: rateLimitView{
			Enabled:        c.RateLimit.Enabled,
			Burst:          c.RateLimit.Burst,
			RefillInterval: c.RateLimit.RefillInterval.String(),
		},
		Log:     logView{Level: c.Log.Level},
		Metrics: metricsView{Enabled: c.Metrics.Enabled, Path: c.Metrics.Path},
	}
}

func configCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "print the effective configuration as TOML",
		Long:  `config resolves defaults, the config file and RELAY_* environment variables and prints the result. The output can be used as a config file.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := server.LoadConfig(root.v, root.configPath)
			if err != nil {
				return err
			}
			return writeConfig(cmd.OutOrStdout(), cfg)
		},
	}
}

func writeConfig(w io.Writer, cfg server.Config) error {
	return toml.NewEncoder(w).Encode(newConfigView(cfg))
}
