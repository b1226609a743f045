package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/fineprint/internal/config"
	"github.com/jonathan/fineprint/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate up|down",
	Short:     "Apply PostgreSQL schema migrations",
	Long:      "Applies or rolls back the embedded PostgreSQL migrations. Uses DATABASE_URL unless the config sets database_url.",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(db.Up), string(db.Down)},
	RunE:      runMigrate,
}

var migrateSteps int

func init() {
	migrateCmd.Flags().IntVar(&migrateSteps, "steps", 0, "Number of migrations to apply (0 = all)")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("migrate requires a database URL: set %s or database_url in the config", config.EnvDatabaseURL)
	}

	direction := db.Direction(args[0])
	if err := db.Migrate(cfg.DatabaseURL, direction, migrateSteps); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied (%s).\n", direction)
	return nil
}
