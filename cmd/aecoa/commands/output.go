package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/aecoa/aecoa/compliance"
	"github.com/aecoa/aecoa/gate"
	"github.com/aecoa/aecoa/report"
	"github.com/aecoa/aecoa/sym"
)

// Output formats shared by evaluate and run
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatCSV   = "csv"
)

func renderTable(out io.Writer, data pterm.TableData) error {
	s, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, s)
	return err
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeReport renders a comparisons report in format
func writeReport(out io.Writer, rep report.Report, format string) error {
	switch format {
	case FormatJSON:
		return report.WriteJSON(out, rep)
	case FormatCSV:
		return report.WriteCSV(out, rep)
	case FormatTable, "":
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, json, csv)", format)
	}

	data := pterm.TableData{{"", "No", "Clause", "Requirement", "Required", "Identified", "Source", "Margin"}}
	for _, row := range rep.Rows {
		data = append(data, []string{
			sym.Verdict(string(row.Verdict)),
			strconv.Itoa(row.No),
			row.Clause,
			row.Requirement,
			row.Required + " " + row.Unit,
			row.IdentifiedValue,
			row.Source,
			row.Margin,
		})
	}
	if err := renderTable(out, data); err != nil {
		return err
	}
	fmt.Fprintln(out, summaryLine(rep.Summary))
	return nil
}

func summaryLine(s compliance.Summary) string {
	parts := make([]string, 0, len(compliance.Verdicts))
	for _, v := range compliance.Verdicts {
		if n := s.Count(v); n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d %s", sym.Verdict(string(v)), n, strings.ToLower(string(v))))
		}
	}
	status := "NOT COMPLIANT"
	if s.PassAll {
		status = "COMPLIANT"
	}
	return fmt.Sprintf("%s: %s (%d checked)", status, strings.Join(parts, ", "), s.Total)
}

func gateCell(st gate.State, stage gate.Stage) string {
	status, ok := st.Gates[stage]
	if !ok {
		return "-"
	}
	return sym.Gate(string(status)) + " " + string(status)
}

func writeRuns(out io.Writer, states []gate.State) error {
	data := pterm.TableData{{"Run", "State", "Status", "INPUT", "PROCESS", "OUTPUT", "Created by", "Updated"}}
	for _, st := range states {
		data = append(data, []string{
			st.RunID,
			st.Label(),
			displayCell(st),
			gateCell(st, gate.StageInput),
			gateCell(st, gate.StageProcess),
			gateCell(st, gate.StageOutput),
			st.CreatedBy,
			st.UpdatedAt.Format(time.RFC3339),
		})
	}
	return renderTable(out, data)
}

func displayCell(st gate.State) string {
	if st.Frozen {
		return sym.Frozen + " " + st.Display()
	}
	return st.Display()
}

func writeState(out io.Writer, st gate.State) {
	fmt.Fprintf(out, "Run:      %s\n", st.RunID)
	if st.ParentRunID != "" {
		fmt.Fprintf(out, "Parent:   %s\n", st.ParentRunID)
	}
	fmt.Fprintf(out, "State:    %s (%s)\n", st.Label(), displayCell(st))
	fmt.Fprintf(out, "Version:  %d\n", st.Version)
	for _, stage := range gate.Stages {
		line := fmt.Sprintf("  %-8s %s", stage, gateCell(st, stage))
		if art := st.Artifacts[stage]; art != nil {
			line += fmt.Sprintf("  rev %d %s", art.Revision, shortDigest(art.Digest))
		}
		if f := st.Failures[stage]; f != nil {
			line += "  failed: " + f.Message
		}
		fmt.Fprintln(out, line)
	}
}

func writeEvents(out io.Writer, events []gate.Event) error {
	data := pterm.TableData{{"Seq", "Time", "Stage", "Action", "Actor", "Transition", "Note"}}
	for _, ev := range events {
		transition := ""
		if ev.From != "" || ev.To != "" {
			transition = fmt.Sprintf("%s → %s", orDash(string(ev.From)), orDash(string(ev.To)))
		}
		data = append(data, []string{
			strconv.Itoa(ev.Seq),
			ev.At.Format(time.RFC3339),
			string(ev.Stage),
			string(ev.Action),
			ev.Actor,
			transition,
			ev.Note,
		})
	}
	return renderTable(out, data)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
