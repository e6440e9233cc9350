package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
	v          *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:          "relay [command]",
		SilenceUsage: true,
		Version:      version,
		Short:        "peer relay server",
		Long:         `relay pairs WebSocket clients by id and forwards each text frame to the peer named in the connection path.`,
	}

	fs := cmd.PersistentFlags()
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to a config file (toml, yaml or json)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	_ = opts.v.BindPFlag("log.level", fs.Lookup("log-level"))

	cmd.AddCommand(serveCmd(opts), configCmd(opts), chatCmd(), versionCmd())
	return cmd
}

// Execute runs the command line in args until it finishes or ctx is done.
func Execute(ctx context.Context, args []string) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the relay version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
