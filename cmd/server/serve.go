package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/peerrelay/internal/log"
	"github.com/Tyrowin/peerrelay/internal/server"
)

// serveFlags maps command line flags onto config keys.
var serveFlags = map[string]string{
	"listen":           "listen",
	"allowed-origins":  "allowed_origins",
	"max-message-size": "max_message_size",
	"outbox-limit":     "outbox_limit",
	"pong-wait":        "pong_wait",
	"ping-interval":    "ping_interval",
	"rate-limit":       "rate_limit.enabled",
	"rate-limit-burst": "rate_limit.burst",
	"metrics":          "metrics.enabled",
	"metrics-path":     "metrics.path",
}

func serveCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "serve",
		SilenceUsage: true,
		Short:        "run the relay server",
		Long:         `serve accepts GET /ws/{selfId}/{peerId} upgrades and relays text frames between paired ids until interrupted.`,
		Args:         cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindFlags(cmd.Flags(), root.v, serveFlags)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), root.v, root.configPath)
		},
	}

	d := server.DefaultConfig()
	fs := cmd.Flags()
	fs.StringP("listen", "l", d.Listen, "address to listen on")
	fs.StringSlice("allowed-origins", d.AllowedOrigins, "browser origins allowed to connect, * for any")
	fs.Int64("max-message-size", d.MaxMessageSize, "largest inbound frame in bytes")
	fs.Int("outbox-limit", d.OutboxLimit, "queued messages per session before new ones are dropped")
	fs.Duration("pong-wait", d.PongWait, "time allowed without a pong, 0 disables keepalive")
	fs.Duration("ping-interval", d.PingInterval, "interval between pings, must be shorter than pong-wait")
	fs.Bool("rate-limit", d.RateLimit.Enabled, "limit inbound messages per session")
	fs.Int("rate-limit-burst", d.RateLimit.Burst, "messages allowed per refill interval")
	fs.Bool("metrics", d.Metrics.Enabled, "expose Prometheus metrics")
	fs.String("metrics-path", d.Metrics.Path, "path of the metrics endpoint")
	return cmd
}

// bindFlags binds each named flag to its config key. Unset flags do not
// override the file or environment.
func bindFlags(fs *pflag.FlagSet, v *viper.Viper, keys map[string]string) error {
	for name, key := range keys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

func runServe(ctx context.Context, v *viper.Viper, configPath string) error {
	cfg, err := server.LoadConfig(v, configPath)
	if err != nil {
		return err
	}
	log.SetLevel(cfg.Log.Level)
	logger := log.GetLogger("cmd")

	srv, err := server.New(cfg)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("stopping relay server", "timeout", cfg.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("relay server stopped", err)
		return err
	}
	return nil
}
