package commands

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aecoa/aecoa/am"
	"github.com/aecoa/aecoa/compliance"
	"github.com/aecoa/aecoa/errors"
	"github.com/aecoa/aecoa/logger"
	"github.com/aecoa/aecoa/measurement"
	"github.com/aecoa/aecoa/report"
	"github.com/aecoa/aecoa/sym"
)

// ErrNonCompliant is returned by evaluate --strict when any requirement is not met
var ErrNonCompliant = errors.New("drawing is not compliant")

// EvaluateCmd checks a measurement index against a requirement table once
var EvaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: sym.Evaluate + " Check measurements against a requirement table",
	Long: sym.Evaluate + ` evaluate — Check measurements against a requirement table

Evaluates every requirement without approval gates and prints the comparisons
table. Use 'aecoa run start' for the reviewed workflow.

Examples:
  aecoa evaluate --standard --measurements hs.csv --driver 65.5
  aecoa evaluate --table rules.yaml --measurements m.json --format csv -o comparisons.csv
  aecoa evaluate --table rules.toml --measurements m.yaml --drivers gfa_m2=120 --strict`,
	RunE: runEvaluate,
}

var (
	evaluateInput  inputFlags
	evaluateFormat string
	evaluateOutput string
	evaluateStrict bool
)

func init() {
	evaluateInput.register(EvaluateCmd)
	EvaluateCmd.Flags().StringVarP(&evaluateFormat, "format", "f", FormatTable, "Output format: table, json, csv")
	EvaluateCmd.Flags().StringVarP(&evaluateOutput, "output", "o", "", "Write the report to a file instead of stdout")
	EvaluateCmd.Flags().BoolVar(&evaluateStrict, "strict", false, "Exit non-zero unless every requirement passes or is not applicable")
}

// newEvaluator builds an evaluator from the evaluation config
func newEvaluator(cfg *am.Config) *compliance.Evaluator {
	return compliance.NewEvaluator(compliance.Options{
		Workers:   cfg.GetWorkers(),
		Tolerance: cfg.GetEqualityTolerance(),
		Logger:    logger.ComponentLogger("evaluate"),
	})
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	in, given, err := evaluateInput.load(cmd, cfg)
	if err != nil {
		return err
	}
	if !given {
		return errors.WithHint(
			errors.NewInvalidRequestError("nothing to evaluate"),
			"pass --table <file> or --standard, and --measurements <file>",
		)
	}
	if err := in.Validate(); err != nil {
		return err
	}

	idx := measurement.NewIndex(in.Measurements)
	logger.Debugw("Evaluating",
		"table", in.Table.Name,
		"requirements", len(in.Table.Requirements),
		"parameters", idx.Parameters(),
	)
	eval, err := newEvaluator(cfg).Evaluate(cmd.Context(), in.Table, idx, compliance.NewDrivers(in.Drivers))
	if err != nil {
		return err
	}
	rep := report.Build(eval, in.Table)

	var out io.Writer = cmd.OutOrStdout()
	if evaluateOutput != "" {
		f, err := os.Create(evaluateOutput)
		if err != nil {
			return errors.Wrapf(err, "create %s", evaluateOutput)
		}
		defer f.Close()
		out = f
	}
	if err := writeReport(out, rep, evaluateFormat); err != nil {
		return err
	}

	if evaluateStrict && !eval.Summary.PassAll {
		return errors.Wrapf(ErrNonCompliant, "failed: %v, inconclusive: %v", eval.Summary.Failed, eval.Summary.Inconclusive)
	}
	return nil
}
