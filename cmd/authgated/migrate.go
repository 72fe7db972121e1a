package main

import (
	"github.com/MrEthical07/authgate/account/sqlstore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the account schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			store, err := sqlstore.Open(ctx, cfg.DB.Dialect, cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("schema migrated", zap.String("dialect", cfg.DB.Dialect))
			return nil
		},
	}
}
