package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/fanshares/exchange-core/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the PostgreSQL schema",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.DB.DSN == "" {
		return errors.New("db.dsn is required (set FSX_DB_DSN)")
	}
	pg, err := store.OpenPostgres(cmd.Context(), cfg.DB.DSN, store.PoolConfig{MaxOpenConns: 1})
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := pg.Migrate(cmd.Context()); err != nil {
		return err
	}
	log.Info("schema migrated")
	return nil
}
