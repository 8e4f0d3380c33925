package runs

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// RunDiff compares the findings of two runs. Issue ids and lifecycle
// state are ignored; two issues are the same finding when severity, rule
// and subject agree.
type RunDiff struct {
	From      int      `json:"from"`
	To        int      `json:"to"`
	Removed   []string `json:"removed"`
	Added     []string `json:"added"`
	Unchanged int      `json:"unchanged"`
	Unified   string   `json:"-"`
}

// FindingLine renders the comparable part of an issue on one line.
func FindingLine(is Issue) string {
	subject := is.OpportunityName
	if subject == "" {
		subject = is.AccountName
	}
	if subject == "" {
		subject = is.RepName
	}
	return fmt.Sprintf("%-6s %s %q", is.Severity, is.RuleID, subject)
}

func findingText(r Run) string {
	var b strings.Builder
	for _, is := range r.Issues {
		b.WriteString(FindingLine(is))
		b.WriteByte('\n')
	}
	return b.String()
}

// Diff computes a line diff of from's and to's findings in evaluation
// order.
func Diff(from, to Run) RunDiff {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0

	a, b, lineArray := dmp.DiffLinesToChars(findingText(from), findingText(to))
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	d := RunDiff{From: from.RunID, To: to.RunID, Removed: []string{}, Added: []string{}}
	var unified strings.Builder
	fmt.Fprintf(&unified, "--- run %d\n+++ run %d\n", from.RunID, to.RunID)
	for _, diff := range diffs {
		for _, line := range strings.SplitAfter(diff.Text, "\n") {
			line = strings.TrimSuffix(line, "\n")
			if line == "" {
				continue
			}
			switch diff.Type {
			case diffmatchpatch.DiffDelete:
				d.Removed = append(d.Removed, line)
				unified.WriteString("-" + line + "\n")
			case diffmatchpatch.DiffInsert:
				d.Added = append(d.Added, line)
				unified.WriteString("+" + line + "\n")
			case diffmatchpatch.DiffEqual:
				d.Unchanged++
				unified.WriteString(" " + line + "\n")
			}
		}
	}
	d.Unified = unified.String()
	return d
}
