package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tubesync/internal/shared"
)

// SetupDatabase writes a config file from the template when none exists, then initializes the database.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else if config, err := shared.LoadConfig(configPath); err != nil {
			r.logger.Warn("failed to load created config, using defaults", "error", err)
		} else {
			r.config = config
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)
	if _, err := r.open(); err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("✓ Database ready at %s\n", r.config.Database.Path)
}

// SetupMigrations prints every known migration and whether it has been applied.
func (r *Runner) SetupMigrations(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	statuses, err := shared.Migrations(db)
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Version", "Name", "Applied"})
	for _, s := range statuses {
		applied := "pending"
		if s.Applied {
			applied = "✓"
		}
		t.AppendRow(table.Row{s.Version, s.Name, applied})
	}
	return r.writePlain("%s\n", t.Render())
}

// SetupRollback undoes the newest applied migration.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RollbackMigration(db); err != nil {
		return fmt.Errorf("failed to roll back: %w", err)
	}
	r.logger.Info("rolled back latest migration", "database", r.config.Database.Path)
	return r.writePlain("✓ Rolled back latest migration\n")
}
