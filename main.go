package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mcp9808/config"
	"mcp9808/observability"
)

type flags struct {
	configFile string
	jsonLogs   bool
}

func (f *flags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(observability.NewLogger(cfg.LogLevel, observability.WithJSON(f.jsonLogs)))

	return cfg, nil
}

func newRootCommand() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "mcp9808",
		Short:         "Configuration and MQTT tooling for the MCP9808 temperature sensor",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			// Secrets are usually kept in .env during development
			_ = godotenv.Load()
		},
	}

	root.PersistentFlags().StringVarP(&f.configFile, "config", "c", os.Getenv("CONFIG_FILE"), "yaml config file, values from the environment take precedence")
	root.PersistentFlags().BoolVar(&f.jsonLogs, "json", false, "log as json")

	root.AddCommand(
		newConfigCommand(f),
		newHeaderCommand(f),
		newImportCommand(),
		newPublishCommand(f),
		newMonitorCommand(f),
	)

	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
