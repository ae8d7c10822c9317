package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"teclab/bitgate/pkg/cli"
	"teclab/bitgate/pkg/config"
)

var (
	// Global flags
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "bitgate",
	Short: "OpenAI-compatible gateway for campus assistants",
	Long: `Bitgate serves the campus unified-login assistant and the app-key agent
platform behind an OpenAI-compatible /v1/chat/completions endpoint.

Credentials come from the configuration file or from the environment
(BIT_USERNAME, BIT_PASSWORD, AGENT_APP_KEY, AGENT_VISITOR_KEY, API_KEY).
A .env file in the working directory is loaded when present.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and environment only when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

// loadConfig reads the configuration named by --config with environment
// overrides applied and installs it as the global configuration.
func loadConfig() (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError("config", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()
	if logLevel != "" {
		cfg.Telemetry.Logging.Level = logLevel
	}
	return cfg, nil
}
