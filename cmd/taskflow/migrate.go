package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long: `Create the account, refresh token and key-value tables in the
configured database (postgres or sqlite).`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := openDatabase(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("database migrated", zap.String("driver", cfg.Database.Driver))
	fmt.Fprintln(cmd.OutOrStdout(), "migration complete")
	return nil
}
