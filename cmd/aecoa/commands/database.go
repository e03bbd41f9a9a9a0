package commands

import (
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/aecoa/aecoa/am"
	"github.com/aecoa/aecoa/db"
	"github.com/aecoa/aecoa/errors"
	"github.com/aecoa/aecoa/logger"
)

// loadConfig reads --config when given, otherwise the merged config cascade
func loadConfig(cmd *cobra.Command) (*am.Config, error) {
	var (
		cfg *am.Config
		err error
	)
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err = am.LoadFromFile(path)
	} else {
		cfg, err = am.Load()
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithHint(errors.Wrap(err, "invalid configuration"), "run 'aecoa am validate' for details")
	}
	return cfg, nil
}

// databasePath resolves --db, then database.path
func databasePath(cmd *cobra.Command, cfg *am.Config) string {
	if path, _ := cmd.Flags().GetString("db"); path != "" {
		return path
	}
	return cfg.GetDatabasePath()
}

// openDatabase opens and migrates the database at dbPath
func openDatabase(dbPath string) (*sql.DB, error) {
	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, errors.Wrapf(err, "failed to run migrations on %s", dbPath)
	}

	return database, nil
}

// FormatError renders an error with its hints for the terminal
func FormatError(err error) string {
	msg := "Error: " + err.Error()
	for _, hint := range errors.GetAllHints(err) {
		msg += "\n  hint: " + hint
	}
	return msg
}
