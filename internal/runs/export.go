package runs

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// RunsFileSchema identifies the JSON runs file format.
const RunsFileSchema = "revops-agent-run"

// RunsFile is the JSON document written by `revops runs export --format json`.
type RunsFile struct {
	Schema string  `json:"schema"`
	Runs   []Run   `json:"runs"`
	Events []Event `json:"events,omitempty"`
}

// WriteRunsFile encodes runs and events as an indented runs file.
func WriteRunsFile(w io.Writer, runs []Run, events []Event) error {
	f := RunsFile{Schema: RunsFileSchema, Runs: runs, Events: events}
	if f.Runs == nil {
		f.Runs = []Run{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encode runs file: %w", err)
	}
	return nil
}

// ReadRunsFile decodes a runs file and checks its schema tag.
func ReadRunsFile(r io.Reader) (*RunsFile, error) {
	var f RunsFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode runs file: %w", err)
	}
	if f.Schema != RunsFileSchema {
		return nil, fmt.Errorf("decode runs file: schema %q, want %q", f.Schema, RunsFileSchema)
	}
	for _, run := range f.Runs {
		for _, is := range run.Issues {
			if !is.Status.Valid() {
				return nil, fmt.Errorf("decode runs file: issue %s has unknown status %q", is.ID, is.Status)
			}
		}
	}
	return &f, nil
}

// CSVColumns is the header written by WriteCSV.
var CSVColumns = []string{
	"id", "rule_id", "severity", "name", "scope",
	"account_name", "opportunity_name", "rep_name", "owner",
	"category", "fields", "metric_name", "metric_value", "formatted_metric_value",
	"explanation", "resolution",
	"status", "timestamp", "is_unread", "snoozed_until",
}

// CSVFileName is the default export name for a run.
func CSVFileName(runID int) string {
	return fmt.Sprintf("run-%d-issues.csv", runID)
}

// WriteCSV writes one row per issue. Missing values are empty, list
// values are joined with ", " and newlines are written as a literal \n so
// each issue stays on one line.
func WriteCSV(w io.Writer, run Run) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVColumns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, is := range run.Issues {
		if err := cw.Write(csvRow(is)); err != nil {
			return fmt.Errorf("write csv row %s: %w", is.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(is Issue) []string {
	snoozed := ""
	if is.SnoozedUntil != nil {
		snoozed = is.SnoozedUntil.UTC().Format(time.RFC3339)
	}
	row := []string{
		is.ID, is.RuleID, is.Severity.String(), is.Name, is.Scope,
		is.AccountName, is.OpportunityName, is.RepName, is.Owner,
		is.Category, strings.Join(is.Fields, ", "), is.MetricName,
		strconv.FormatFloat(is.MetricValue, 'f', -1, 64), is.FormattedMetricValue,
		is.Explanation, is.Resolution,
		string(is.Status), is.Timestamp.UTC().Format(time.RFC3339),
		strconv.FormatBool(is.IsUnread), snoozed,
	}
	for i, v := range row {
		row[i] = strings.ReplaceAll(v, "\n", `\n`)
	}
	return row
}
