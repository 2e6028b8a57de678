package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harshul/trellis/internal/db"
	"github.com/harshul/trellis/internal/ui"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Subcommands for managing the database schema",
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create database schema and migration configuration",
	RunE:  runDBInit,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update database schema from migration scripts",
	RunE:  runDBMigrate,
}

var dbMakeMigrationsCmd = &cobra.Command{
	Use:   "makemigrations",
	Short: "Create autogenerated alembic migration scripts",
	RunE:  runDBMakeMigrations,
}

func init() {
	dbMakeMigrationsCmd.Flags().String("message", "", "Human readable identifier for the generated revision")

	dbCmd.AddCommand(dbInitCmd)
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbMakeMigrationsCmd)
}

func newMigrator(cmd *cobra.Command) (*db.Migrator, error) {
	cc, p, err := projectContext(cmd)
	if err != nil {
		return nil, err
	}
	return db.New(cc.Dir, p, os.Stdout, cc.Logger), nil
}

func runDBInit(cmd *cobra.Command, args []string) error {
	m, err := newMigrator(cmd)
	if err != nil {
		return err
	}
	if err := m.Init(cmd.Context()); err != nil {
		return err
	}
	ui.PrintSuccess("Database initialized.")
	return nil
}

func runDBMigrate(cmd *cobra.Command, args []string) error {
	m, err := newMigrator(cmd)
	if err != nil {
		return err
	}
	if err := m.Migrate(cmd.Context()); err != nil {
		return err
	}

	ok, err := m.SchemaUpToDate(cmd.Context())
	switch {
	case err != nil:
		m.Logger.Debug("schema check", zap.Error(err))
	case !ok:
		ui.PrintWarning("Database schema is still behind the migration scripts.")
	default:
		ui.PrintSuccess("Database is up to date.")
	}
	return nil
}

func runDBMakeMigrations(cmd *cobra.Command, args []string) error {
	m, err := newMigrator(cmd)
	if err != nil {
		return err
	}
	message, _ := cmd.Flags().GetString("message")
	if err := m.MakeMigrations(cmd.Context(), message); err != nil {
		return err
	}
	ui.PrintSuccess("Migration script created.")
	return nil
}
