// Package cmd defines the serptrend command tree.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/serptrend/serptrend/internal/app"
	"github.com/serptrend/serptrend/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "serptrend",
	Short: "Tracks search result counts for a fixed query list over time",
	Long: `serptrend periodically fetches the result count for each tracked
search query and appends the values as a new dated column in a local
history table. Each run either commits a complete column or nothing.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// buildApp loads configuration and assembles the dependency graph for a
// command. The caller owns Close.
func buildApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg)
}
