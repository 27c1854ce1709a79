package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	docmodels "certverify/internal/document/models"
	"certverify/internal/matching"
	reviewmodels "certverify/internal/review/models"
	vmodels "certverify/internal/verification/models"
)

const (
	outputAuto  = "auto"
	outputTable = "table"
	outputJSON  = "json"
)

// useTable reports whether output goes to a terminal as a table. auto picks a
// table for a TTY and JSON for pipes.
func useTable(w io.Writer, format string) bool {
	switch format {
	case outputTable:
		return true
	case outputJSON:
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// emit writes v as JSON or as the table built by render.
func emit(cmd *cobra.Command, format string, v any, render func() string) error {
	out := cmd.OutOrStdout()
	if !useTable(out, format) {
		return writeJSON(out, v)
	}
	_, err := fmt.Fprintln(out, render())
	return err
}

func renderTable(headers []string, rows [][]string, rightAligned ...int) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)
	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, col := range rightAligned {
		configs = append(configs, table.ColumnConfig{Number: col, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func percent(v float64) string {
	return strconv.FormatFloat(v*100, 'f', 1, 64) + "%"
}

func documentTable(doc *docmodels.Document) string {
	rows := [][]string{
		{"ID", doc.ID.String()},
		{"Type", string(doc.DocumentType)},
		{"Status", string(doc.Status)},
		{"File", doc.FileName},
		{"Confidence", percent(doc.Confidence)},
		{"Updated", doc.UpdatedAt.Format(time.RFC3339)},
	}
	if doc.ErrorMessage != "" {
		rows = append(rows, []string{"Error", doc.ErrorMessage})
	}
	return renderTable([]string{"Field", "Value"}, rows)
}

func matchTable(result *matching.Result) string {
	rows := make([][]string, 0, len(result.FieldMatches)+1)
	for _, fm := range result.FieldMatches {
		rows = append(rows, []string{fm.Field, fm.Value1, fm.Value2, percent(fm.Score), yesNo(fm.Matched)})
	}
	rows = append(rows, []string{"overall", "", "", percent(result.MatchConfidence), string(result.MatchStatus)})
	return renderTable([]string{"Field", "PAN", "Aadhaar", "Score", "Matched"}, rows, 4)
}

func verificationTable(v *vmodels.Verification) string {
	rows := make([][]string, 0, len(v.Steps))
	for _, step := range v.Steps {
		mandatory := ""
		if step.Mandatory {
			mandatory = "*"
		}
		detail := step.Result
		if step.ErrorMessage != "" {
			detail = step.ErrorMessage
		}
		rows = append(rows, []string{string(step.StepType) + mandatory, string(step.Status), percent(step.Confidence), detail})
	}
	summary := fmt.Sprintf("%s  %s  %s  confidence %s  attempt %d",
		v.ID, v.Status, v.Result, percent(v.ConfidenceScore), v.Attempt)
	if v.FailureReason != "" {
		summary += "\n" + v.FailureReason
	}
	return summary + "\n" + renderTable([]string{"Step", "Status", "Confidence", "Detail"}, rows, 3)
}

func queueTable(reviews []*reviewmodels.Review, now time.Time) string {
	rows := make([][]string, 0, len(reviews))
	for _, r := range reviews {
		assignee := "-"
		if r.AssignedTo != nil {
			assignee = r.AssignedTo.String()
		}
		rows = append(rows, []string{
			r.ID.String(),
			string(r.Priority),
			string(r.Status),
			assignee,
			now.Sub(r.CreatedAt).Truncate(time.Second).String(),
			r.Reason,
		})
	}
	return renderTable([]string{"Review", "Priority", "Status", "Assignee", "Age", "Reason"}, rows)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
