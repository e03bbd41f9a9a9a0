package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aecoa/aecoa/am"
	"github.com/aecoa/aecoa/errors"
	"github.com/aecoa/aecoa/measurement"
	"github.com/aecoa/aecoa/pipeline"
	"github.com/aecoa/aecoa/requirement"
)

// inputFlags are the flags that describe a run's input
type inputFlags struct {
	table        string
	standard     bool
	measurements string
	driver       float64
	drivers      map[string]string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.table, "table", "", "Requirement table file (.yaml, .json or .toml)")
	cmd.Flags().BoolVar(&f.standard, "standard", false, "Use the built-in household shelter table")
	cmd.Flags().StringVar(&f.measurements, "measurements", "", "Measurement index file (.json, .yaml or .csv)")
	cmd.Flags().Float64Var(&f.driver, "driver", 0, "Driver value for ranged requirements (e.g. GFA in m²)")
	cmd.Flags().StringToStringVar(&f.drivers, "drivers", nil, "Named driver values (e.g. gfa_m2=65.5)")
}

// load builds a run input from the flags. It returns false when no input flag
// was given, so regenerate can fall back to the latest input.
func (f *inputFlags) load(cmd *cobra.Command, cfg *am.Config) (pipeline.Input, bool, error) {
	if f.table == "" && !f.standard && f.measurements == "" {
		return pipeline.Input{}, false, nil
	}

	var in pipeline.Input
	switch {
	case f.table != "" && f.standard:
		return in, true, errors.NewInvalidRequestError("--table and --standard are mutually exclusive")
	case f.table != "":
		table, err := requirement.LoadFile(f.table)
		if err != nil {
			return in, true, err
		}
		in.Table = table
	case f.standard:
		in.Table = requirement.StandardTable()
	default:
		return in, true, errors.WithHint(
			errors.NewInvalidRequestError("no requirement table"),
			"pass --table <file> or --standard",
		)
	}

	if f.measurements == "" {
		return in, true, errors.NewInvalidRequestError("--measurements is required")
	}
	idx, drivers, err := measurement.LoadFile(f.measurements)
	if err != nil {
		return in, true, err
	}
	in.Measurements = idx.All()
	in.Drivers = drivers
	if in.Drivers == nil {
		in.Drivers = map[string]float64{}
	}

	for name, raw := range f.drivers {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return in, true, errors.NewInvalidRequestError("driver %s: %q is not a number", name, raw)
		}
		in.Drivers[name] = v
	}

	if cmd.Flags().Changed("driver") {
		if _, ok := in.Drivers[cfg.GetDefaultDriver()]; !ok {
			in.Drivers[cfg.GetDefaultDriver()] = f.driver
		}
		in = in.WithDriver(f.driver)
	}
	return in, true, nil
}
