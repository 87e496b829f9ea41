package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
)

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back database migrations",
	Long: `Roll back database migrations. Without --num-steps this reverts
every applied migration, which drops the persisted table definitions.`,
	RunE: runMigrateDown,
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	m, dbCfg, err := newMigrator(cmd)
	if err != nil {
		return err
	}

	steps, err := numSteps(cmd)
	if err != nil {
		return err
	}

	prompt := fmt.Sprintf("About to roll back ALL migrations on database: %s@%s:%d/%s",
		dbCfg.User, dbCfg.Host, dbCfg.Port, dbCfg.Database)
	if steps > 0 {
		prompt = fmt.Sprintf("About to roll back %d migration(s) on database: %s@%s:%d/%s",
			steps, dbCfg.User, dbCfg.Host, dbCfg.Port, dbCfg.Database)
	}

	ok, err := confirm(cmd, prompt)
	if err != nil {
		return err
	}
	if !ok {
		slog.Info("Migration cancelled by user")
		return nil
	}

	slog.Info("Rolling back database migrations...", "steps", steps)
	if steps > 0 {
		err = m.Steps(-steps)
	} else {
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}

	reportVersion(m)
	return nil
}
