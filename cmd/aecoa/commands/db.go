package commands

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/aecoa/aecoa/db"
	"github.com/aecoa/aecoa/errors"
	"github.com/aecoa/aecoa/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage the aecoa database",
	Long: sym.DB + ` db — Manage the run database

Runs, their artifacts and the gate execution log live in a SQLite database
(database.path, default aecoa.db).

Examples:
  aecoa db migrate                # Apply pending migrations
  aecoa db stats                  # Show run and event counts`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path := databasePath(cmd, cfg)

	database, err := openDatabase(path)
	if err != nil {
		return err
	}
	defer database.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Database %s is up to date\n", path)
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path := databasePath(cmd, cfg)

	database, err := openDatabase(path)
	if err != nil {
		return err
	}
	defer database.Close()

	stats, err := db.GetStats(database)
	if err != nil {
		return errors.Wrap(err, "failed to query database stats")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Database Statistics (%s)\n", sym.DB, path)
	return renderTable(out, pterm.TableData{
		{"Metric", "Count"},
		{"Runs", strconv.Itoa(stats.Runs)},
		{"Frozen runs", strconv.Itoa(stats.Frozen)},
		{"Artifacts", strconv.Itoa(stats.Artifacts)},
		{"Gate events", strconv.Itoa(stats.Events)},
	})
}
