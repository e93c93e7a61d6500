package main

import (
	"context"
	"fmt"

	"custodial-wallet/config"
	pgStorage "custodial-wallet/internal/adapter/storage/postgres"
	"custodial-wallet/migrations"
	"custodial-wallet/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var migrateList bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded SQL schema",
	Long: `Apply the embedded SQL schema to the configured PostgreSQL database.

Statements are idempotent, so running migrate against an up-to-date database is safe.

Examples:
  custodial-wallet migrate
  custodial-wallet migrate --list`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateList, "list", false, "print the migration files without applying them")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if migrateList {
		names, err := migrations.Names()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	ctx := context.Background()
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	if err := runMigrations(ctx, pool, log); err != nil {
		return err
	}
	log.Info().Msg("Schema up to date")
	return nil
}

func runMigrations(ctx context.Context, db migrations.Execer, log zerolog.Logger) error {
	if err := migrations.Apply(ctx, db, log); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
