package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/eleven-am/storm-composite/examples/auction"
	"github.com/eleven-am/storm-composite/internal/logger"
)

func newDemoCommand() *cobra.Command {
	var (
		migrate bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the people and auction lots scenario against a database",
		Long: `Create the example tables, save three people and three auction lots, and
read them back by composite primary key. The report is printed as YAML.

The tables must be empty.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return fmt.Errorf("database URL is required (--url or database.url in the config file)")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if migrate {
				if err := auction.Migrate(ctx, db); err != nil {
					return err
				}
			}

			store, err := auction.NewStore(db)
			if err != nil {
				return err
			}

			report, err := auction.Run(ctx, store)
			if err != nil {
				return fmt.Errorf("demo failed: %w", err)
			}

			return writeYAML(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "create the example tables first")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "overall timeout")

	return cmd
}

func openDatabase(ctx context.Context) (*sqlx.DB, error) {
	driver := "postgres"
	maxConns := 25
	if config != nil {
		driver = config.Database.Driver
		maxConns = config.Database.MaxConnections
	}

	logger.CLI().WithField("driver", driver).Info("Connecting to database")

	db, err := sqlx.ConnectContext(ctx, driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(maxConns)

	return db, nil
}
