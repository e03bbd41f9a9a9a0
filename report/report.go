// Package report renders evaluation results as the comparisons table
// reviewers sign off at the OUTPUT gate.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aecoa/aecoa/compliance"
	"github.com/aecoa/aecoa/errors"
	"github.com/aecoa/aecoa/requirement"
)

// Columns is the header of the comparisons table
var Columns = []string{
	"No", "Clause", "Requirement", "Parameter", "Required", "Unit",
	"Identified value", "Source", "Compliance", "Margin",
}

// Row is one line of the comparisons table
type Row struct {
	No              int                `json:"no"`
	RequirementID   string             `json:"requirement_id"`
	Clause          string             `json:"clause"`
	Requirement     string             `json:"requirement"`
	Parameter       string             `json:"parameter"`
	Required        string             `json:"required"`
	Unit            string             `json:"unit"`
	IdentifiedValue string             `json:"identified_value"`
	Source          string             `json:"source"`
	Compliance      string             `json:"compliance"`
	Verdict         compliance.Verdict `json:"verdict"`
	Margin          string             `json:"margin"`
}

// Report is the rendered comparisons table with its summary
type Report struct {
	Table   string             `json:"table,omitempty"`
	Rows    []Row              `json:"rows"`
	Summary compliance.Summary `json:"summary"`
}

// Build renders an evaluation. table supplies requirement descriptions and may be nil.
func Build(eval *compliance.Evaluation, table *requirement.Table) Report {
	rep := Report{
		Table:   eval.Table,
		Rows:    make([]Row, 0, len(eval.Results)),
		Summary: eval.Summary,
	}
	for i, r := range eval.Results {
		desc := r.RequirementID
		if table != nil {
			if req, ok := table.Find(r.RequirementID); ok && req.Description != "" {
				desc = req.Description
			}
		}
		rep.Rows = append(rep.Rows, Row{
			No:              i + 1,
			RequirementID:   r.RequirementID,
			Clause:          r.Clause,
			Requirement:     desc,
			Parameter:       r.Parameter,
			Required:        required(r),
			Unit:            r.Unit,
			IdentifiedValue: identified(r),
			Source:          source(r),
			Compliance:      Label(r),
			Verdict:         r.Verdict,
			Margin:          optional(r.Margin, true),
		})
	}
	return rep
}

// Label is the human-readable compliance column
func Label(r compliance.CheckResult) string {
	switch r.Verdict {
	case compliance.VerdictPass:
		return "Compliant"
	case compliance.VerdictFail:
		return "Non-compliant"
	case compliance.VerdictNotApplicable:
		return "Not applicable"
	case compliance.VerdictInconclusive:
		return "Inconclusive (" + strings.ReplaceAll(r.Reason, "_", " ") + ")"
	}
	return string(r.Verdict)
}

func required(r compliance.CheckResult) string {
	s := string(r.Op) + " " + optional(r.RequiredValue, false)
	if r.RequiredValue == nil {
		s = string(r.Op) + " ?"
	}
	if b := r.Bucket; b != nil {
		upper := "∞"
		if b.Upper != nil {
			upper = formatFloat(*b.Upper)
		}
		s += fmt.Sprintf(" (%s %s in [%s, %s))", b.Driver, formatFloat(b.DriverValue), formatFloat(b.Lower), upper)
	}
	return s
}

func identified(r compliance.CheckResult) string {
	if r.Verdict == compliance.VerdictNotApplicable {
		return "not found"
	}
	if r.MeasuredValue != nil {
		return formatFloat(*r.MeasuredValue)
	}
	var raw []string
	for _, ev := range r.Evidence {
		raw = append(raw, formatFloat(ev.RawValue)+" "+ev.RawUnit)
	}
	return strings.Join(raw, "; ")
}

func source(r compliance.CheckResult) string {
	var refs []string
	for _, ev := range r.Evidence {
		if r.MeasuredValue != nil && !ev.Selected {
			continue
		}
		ref := ev.EntityID
		if ev.SourceRef != "" {
			ref += " @ " + ev.SourceRef
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return "not analyzed"
	}
	return strings.Join(refs, "; ")
}

func optional(f *float64, signed bool) string {
	if f == nil {
		return ""
	}
	s := formatFloat(*f)
	if signed && *f > 0 {
		s = "+" + s
	}
	return s
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// WriteCSV writes the comparisons table with a header row
func WriteCSV(w io.Writer, rep Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	for _, row := range rep.Rows {
		record := []string{
			strconv.Itoa(row.No), row.Clause, row.Requirement, row.Parameter, row.Required,
			row.Unit, row.IdentifiedValue, row.Source, row.Compliance, row.Margin,
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrapf(err, "write csv row %d", row.No)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}

// WriteJSON writes the report as indented JSON
func WriteJSON(w io.Writer, rep Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(rep), "encode report")
}
