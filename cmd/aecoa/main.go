package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aecoa/aecoa/cmd/aecoa/commands"
	"github.com/aecoa/aecoa/logger"
)

var rootCmd = &cobra.Command{
	Use:   "aecoa",
	Short: "aecoa - building drawing compliance checks with human approval gates",
	Long: `aecoa - building drawing compliance checks with human approval gates.

aecoa compares measurements extracted from drawings against a requirement table
and walks every run through INPUT → PROCESS → OUTPUT, each stage waiting for an
explicit human approval.

Available commands:
  am       - Manage aecoa configuration
  db       - Migrate and inspect the run database
  evaluate - Check measurements against a requirement table once, without gates
  run      - Start, review and approve gated compliance runs
  serve    - Serve runs over HTTP and stream gate events over /ws

Examples:
  aecoa evaluate --standard --measurements hs.csv --driver 65.5
  aecoa run start --table rules.yaml --measurements hs.json
  aecoa run approve <run-id> input
  aecoa serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// am show/get print config to stdout; keep logs out of the way
		if cmd.Name() == "show" || cmd.Name() == "get" {
			return nil
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if cmd.Name() == "serve" && verbosity == 0 && !jsonLogs {
			if err := logger.InitializeForServer(); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		}
		if err := logger.InitializeWithVerbosity(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit structured JSON logs")
	rootCmd.PersistentFlags().String("config", "", "Read configuration from this TOML file only")
	rootCmd.PersistentFlags().String("db", "", "Database path (overrides database.path)")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.EvaluateCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, commands.FormatError(err))
		os.Exit(1)
	}
}
