package main

import (
	"github.com/spf13/cobra"

	"notebookrag/internal/bootstrap"
	"notebookrag/internal/config"
	"notebookrag/internal/pkg/logger"
	"notebookrag/internal/platform/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database tables and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log := logger.New("", cfg.Log.Level, cfg.App.Env == "prod")
		defer func() { _ = log.Sync() }()

		db, err := bootstrap.Open(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer func() { _ = database.Close(db) }()

		if err := database.Migrate(db); err != nil {
			return err
		}
		log.Info("migration complete")
		return nil
	},
}
