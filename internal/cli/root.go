package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"universe/internal/config"
	appLog "universe/internal/log"
)

// version is injected at build time via -ldflags.
var version = "0.1.0-dev"

var (
	configPath string
	listenAddr string
	logLevel   string
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "universe",
		Short:         "Campus events API with a day-scoped upstream cache",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "/etc/universe/config.yaml", "Path to config file")
	root.PersistentFlags().StringVar(&listenAddr, "listen", "", "HTTP listen address (overrides config if set)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config if set)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newFetchCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "universe %s\n", version)
		},
	})
	return root
}

// ExecuteContext runs the root command with the given context.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig reads the config file and applies flag overrides, then sets up
// logging from the effective level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := appLog.Init(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}
