package main

import (
	"github.com/spf13/cobra"

	"github.com/Gamenter95/wewa/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrateUp()
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back all migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := db.NewMigrator(cfg.Database.URL, logger)
		if err != nil {
			return err
		}
		defer m.Close()
		return m.Down()
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
	rootCmd.AddCommand(migrateCmd)
}

func migrateUp() error {
	m, err := db.NewMigrator(cfg.Database.URL, logger)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}
