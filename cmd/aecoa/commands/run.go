package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aecoa/aecoa/am"
	"github.com/aecoa/aecoa/errors"
	"github.com/aecoa/aecoa/gate"
	"github.com/aecoa/aecoa/logger"
	"github.com/aecoa/aecoa/pipeline"
	"github.com/aecoa/aecoa/report"
	"github.com/aecoa/aecoa/sym"
)

// RunCmd groups the gated workflow commands
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: sym.Run + " Start, review and approve gated compliance runs",
	Long: sym.Run + ` run — Gated compliance runs

Every run moves through INPUT → PROCESS → OUTPUT. Each stage produces an
artifact that must be approved by a person before the next stage may use it.
With gate.auto_advance on, approving a stage immediately produces the next
stage's artifact; otherwise use 'aecoa run advance'.

Examples:
  aecoa run start --standard --measurements hs.csv --driver 65.5
  aecoa run status <run-id>
  aecoa run results <run-id>
  aecoa run approve <run-id> input
  aecoa run reject <run-id> process --reason "slab thickness read from wrong section"
  aecoa run regenerate <run-id> input --measurements hs-fixed.csv
  aecoa run supersede <run-id>`,
}

var runStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a run and submit its input for review",
	RunE:  runStart,
}

var runStatusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show a run's gates and artifacts",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var runListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recent runs",
	RunE:    runList,
}

var runApproveCmd = &cobra.Command{
	Use:   "approve <run-id> <stage>",
	Short: "Approve a stage",
	Args:  cobra.ExactArgs(2),
	RunE:  runApprove,
}

var runRejectCmd = &cobra.Command{
	Use:   "reject <run-id> <stage>",
	Short: "Reject a stage so it is regenerated",
	Args:  cobra.ExactArgs(2),
	RunE:  runReject,
}

var runRegenerateCmd = &cobra.Command{
	Use:   "regenerate <run-id> <stage>",
	Short: "Produce a new artifact for the current stage",
	Long: `Produce a new artifact for the current stage.

INPUT accepts new --table/--standard/--measurements flags; without them the
latest input is resubmitted. PROCESS and OUTPUT are recomputed from the
approved upstream artifact.`,
	Args: cobra.ExactArgs(2),
	RunE: runRegenerate,
}

var runAdvanceCmd = &cobra.Command{
	Use:   "advance <run-id>",
	Short: "Produce the next stage's artifact after an approval",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdvance,
}

var runSupersedeCmd = &cobra.Command{
	Use:   "supersede <run-id>",
	Short: "Start a new run from a frozen run's input",
	Args:  cobra.ExactArgs(1),
	RunE:  runSupersede,
}

var runEventsCmd = &cobra.Command{
	Use:   "events <run-id>",
	Short: "Show a run's execution log",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvents,
}

var runResultsCmd = &cobra.Command{
	Use:   "results <run-id>",
	Short: "Show the run's latest evaluation or report",
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

var (
	runInput      inputFlags
	regenInput    inputFlags
	runActor      string
	runReason     string
	runVersion    int64
	runListLimit  int
	runFormat     string
	runShowReport bool
)

func init() {
	runInput.register(runStartCmd)
	regenInput.register(runRegenerateCmd)

	RunCmd.PersistentFlags().StringVar(&runActor, "actor", defaultActor(), "Who is acting (recorded in the execution log)")
	runRejectCmd.Flags().StringVar(&runReason, "reason", "", "Why the artifact is rejected")
	runApproveCmd.Flags().Int64Var(&runVersion, "version", 0, "Only approve if the run is still at this version")
	runListCmd.Flags().IntVar(&runListLimit, "limit", 20, "Maximum runs to show")
	runResultsCmd.Flags().StringVarP(&runFormat, "format", "f", FormatTable, "Output format: table, json, csv")
	runResultsCmd.Flags().BoolVar(&runShowReport, "report", false, "Show the OUTPUT report instead of the PROCESS evaluation")

	RunCmd.AddCommand(runStartCmd)
	RunCmd.AddCommand(runStatusCmd)
	RunCmd.AddCommand(runListCmd)
	RunCmd.AddCommand(runApproveCmd)
	RunCmd.AddCommand(runRejectCmd)
	RunCmd.AddCommand(runRegenerateCmd)
	RunCmd.AddCommand(runAdvanceCmd)
	RunCmd.AddCommand(runSupersedeCmd)
	RunCmd.AddCommand(runEventsCmd)
	RunCmd.AddCommand(runResultsCmd)
}

func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

// openPipeline wires a pipeline to the configured database
func openPipeline(cmd *cobra.Command) (*pipeline.Pipeline, *am.Config, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	database, err := openDatabase(databasePath(cmd, cfg))
	if err != nil {
		return nil, nil, nil, err
	}

	p := newPipeline(cfg, gate.NewStore(database))
	return p, cfg, func() { database.Close() }, nil
}

func newPipeline(cfg *am.Config, store gate.Persister) *pipeline.Pipeline {
	return pipeline.New(pipeline.Config{
		Manager: gate.NewManager(gate.ManagerOptions{
			Store:  store,
			Logger: logger.ComponentLogger("gate"),
		}),
		Evaluator:   newEvaluator(cfg),
		AutoAdvance: cfg.Gate.AutoAdvance,
		Logger:      logger.ComponentLogger("pipeline"),
	})
}

// printTransition prints the new state, or the state and the error
func printTransition(cmd *cobra.Command, st gate.State, err error) error {
	if st.RunID != "" {
		writeState(cmd.OutOrStdout(), st)
	}
	return err
}

func runStart(cmd *cobra.Command, args []string) error {
	p, cfg, closeDB, err := openPipeline(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	in, given, err := runInput.load(cmd, cfg)
	if err != nil {
		return err
	}
	if !given {
		return errors.WithHint(
			errors.NewInvalidRequestError("no input"),
			"pass --table <file> or --standard, and --measurements <file>",
		)
	}

	st, err := p.Start(cmd.Context(), in, runActor)
	if err != nil {
		return err
	}
	writeState(cmd.OutOrStdout(), st)
	fmt.Fprintf(cmd.OutOrStdout(), "\nReview the input, then: aecoa run approve %s input\n", st.RunID)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	p, _, closeDB, err := openPipeline(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	st, err := p.State(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	writeState(cmd.OutOrStdout(), st)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	p, _, closeDB, err := openPipeline(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	states, err := p.List(cmd.Context(), runListLimit)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs yet. Start one with: aecoa run start")
		return nil
	}
	return writeRuns(cmd.OutOrStdout(), states)
}

func runApprove(cmd *cobra.Command, args []string) error {
	stage, err := gate.ParseStage(args[1])
	if err != nil {
		return err
	}
	p, _, closeDB, err := openPipeline(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	var version *int64
	if cmd.Flags().Changed("version") {
		version = &runVersion
	}
	st, err := p.Approve(cmd.Context(), args[0], stage, runActor, version)
	return printTransition(cmd, st, err)
}

func runReject(cmd *cobra.Command, args []string) error {
	stage, err := gate.ParseStage(args[1])
	if err != nil {
		return err
	}
	if runReason == "" {
		return errors.NewInvalidRequestError("--reason is required")
	}
	p, _, closeDB, err := openPipeline(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	st, err := p.Reject(cmd.Context(), args[0], stage, runActor, runReason)
	return printTransition(cmd, st, err)
}

func runRegenerate(cmd *cobra.Command, args []string) error {
	stage, err := gate.ParseStage(args[1])
	if err != nil {
		return err
	}
	p, cfg, closeDB, err := openPipeline(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	in, given, err := regenInput.load(cmd, cfg)
	if err != nil {
		return err
	}
	var input *pipeline.Input
	if given {
		input = &in
	}
	st, err := p.Regenerate(cmd.Context(), args[0], stage, runActor, input)
	return printTransition(cmd, st, err)
}

func runAdvance(cmd *cobra.Command, args []string) error {
	p, _, closeDB, err := openPipeline(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	st, err := p.Advance(cmd.Context(), args[0])
	return printTransition(cmd, st, err)
}

func runSupersede(cmd *cobra.Command, args []string) error {
	p, _, closeDB, err := openPipeline(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	st, err := p.Supersede(cmd.Context(), args[0], runActor)
	if err != nil {
		return err
	}
	writeState(cmd.OutOrStdout(), st)
	return nil
}

func runEvents(cmd *cobra.Command, args []string) error {
	p, _, closeDB, err := openPipeline(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	events, err := p.Events(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return writeEvents(cmd.OutOrStdout(), events)
}

func runResults(cmd *cobra.Command, args []string) error {
	p, _, closeDB, err := openPipeline(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	if runShowReport {
		rep, err := p.Report(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), *rep, runFormat)
	}

	eval, err := p.Results(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if runFormat == FormatJSON {
		return writeJSON(cmd.OutOrStdout(), eval)
	}
	// The PROCESS artifact carries no table; descriptions fall back to ids
	return writeReport(cmd.OutOrStdout(), report.Build(eval, nil), runFormat)
}
