package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"teclab/bitgate/pkg/cli"
	"teclab/bitgate/pkg/server"
	"teclab/bitgate/pkg/telemetry/logging"
)

var serveFlags struct {
	listenAddress string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	Long: `Start the gateway with the specified configuration.

Every configured backend is initialized before the listener accepts
traffic: unified-login backends log in and probe a session, app-key
backends clear stale conversations. A failure aborts startup.

Examples:
  # Start with environment credentials
  bitgate serve

  # Start with a config file and a custom address
  bitgate serve --config config.yaml --listen 0.0.0.0:8000

  # Validate the configuration without starting
  bitgate serve --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting the gateway")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.listenAddress != "" {
		cfg.Proxy.ListenAddress = serveFlags.listenAddress
	}

	if _, err := logging.Setup(cfg.Telemetry.Logging); err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	if serveFlags.dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration valid (%d active models)\n", len(cfg.ActiveModels()))
		return nil
	}

	slog.Info("starting bitgate",
		"version", Version,
		"config", cfgFile,
		"listen_address", cfg.Proxy.ListenAddress,
	)

	srv, err := server.New(cfg,
		server.WithConfigPath(cfgFile),
		server.WithVersion(Version, GitCommit, BuildDate),
	)
	if err != nil {
		return cli.NewCommandError("serve", err)
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("serve", err)
	}
	return nil
}
