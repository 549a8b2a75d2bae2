package cli

import (
	"github.com/spf13/cobra"

	"github.com/eleven-am/storm-composite/internal/logger"
	"github.com/eleven-am/storm-composite/pkg/storm"
)

// Global configuration variables
var (
	configFile  string
	config      *Config
	databaseURL string
	debug       bool
	verbose     bool
)

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "storm-composite",
		Short: "storm-composite - composite primary keys for storm",
		Long: `storm-composite lets storm models declare several primary key fields.

The key fields are demoted to ordinary columns, a record's identity becomes a
mapping of field names to values, and pk lookups are expanded into one
equality filter per key field.`,
		Version:       storm.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Configure(debug, verbose)

			var err error
			config, err = LoadConfig(configFile)
			if err != nil {
				logger.CLI().Warnf("Failed to load config file: %v", err)
				return
			}
			if config == nil {
				return
			}

			if databaseURL == "" && config.Database.URL != "" {
				databaseURL = config.Database.URL
			}

			if !debug && !verbose {
				level, err := logger.ParseLevel(config.Logging.Level)
				if err != nil {
					logger.CLI().Warnf("Ignoring logging level %q: %v", config.Logging.Level, err)
					return
				}
				logger.SetLevel(level)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: storm-composite.yaml, or $"+ConfigEnv+")")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "url", "", "database connection URL")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose output")

	rootCmd.AddCommand(newInspectCommand())
	rootCmd.AddCommand(newDemoCommand())
	rootCmd.AddCommand(versionCmd)

	return rootCmd
}
