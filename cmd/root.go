package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"auth-service/internal/logging"
	"auth-service/internal/server"
	"auth-service/pkg/config"
)

// Version is set at build time with -ldflags "-X auth-service/cmd.Version=..."
var Version = "dev"

// NewRootCommand builds the auth-service command tree
func NewRootCommand() *cobra.Command {
	var configDir string

	rootCmd := &cobra.Command{
		Use:   "auth-service",
		Short: "Auth service HTTP listener",
		Long: `Listens on a TCP port (4000 by default) and answers every HTTP request
with "Hello from AUTH service!".

Configuration is read from application.yaml in the configuration directory,
then application-<profile>.yaml for APPLICATION_PROFILES_ACTIVE, then the
environment (SERVER_PORT=4001 sets server.port).`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDir(configDir)
			if err != nil {
				return err
			}
			return server.New(cfg, logging.New(cfg)).Run(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "",
		fmt.Sprintf("configuration directory (default is $%s or %s)", config.EnvConfigDir, config.DefaultConfigDir))

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	})

	return rootCmd
}

// Execute runs the root command until SIGINT or SIGTERM
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := NewRootCommand().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
