package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/revops/internal/runs"
)

// AssertionError is returned when an assertion fails.
// It includes the final issues to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Issues   []runs.Issue // Final issues for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nIssues:\n")
	if len(e.Issues) == 0 {
		fmt.Fprintf(&buf, "  (none)\n")
	}
	for _, is := range e.Issues {
		fmt.Fprintf(&buf, "  [%s] %s %s %q %s\n", is.ID, is.RuleID, is.Severity, subject(is), is.Status)
	}
	return buf.String()
}

// subject names what the issue is about, most specific first.
func subject(is runs.Issue) string {
	switch {
	case is.OpportunityName != "":
		return is.OpportunityName
	case is.AccountName != "":
		return is.AccountName
	}
	return is.RepName
}

// matches reports whether is satisfies the assertion's filters. Empty
// filters match anything.
func matches(is runs.Issue, a Assertion) bool {
	if a.Rule != "" && is.RuleID != a.Rule {
		return false
	}
	if a.Severity != "" && is.Severity.String() != a.Severity {
		return false
	}
	if a.Subject != "" && is.OpportunityName != a.Subject && is.AccountName != a.Subject && is.RepName != a.Subject {
		return false
	}
	return true
}

func describe(a Assertion) string {
	parts := []string{"rule " + a.Rule}
	if a.Severity != "" {
		parts = append(parts, "severity "+a.Severity)
	}
	if a.Subject != "" {
		parts = append(parts, fmt.Sprintf("subject %q", a.Subject))
	}
	if a.Metric != nil {
		parts = append(parts, fmt.Sprintf("metric %v", *a.Metric))
	}
	return strings.Join(parts, ", ")
}

func assertIssuePresent(issues []runs.Issue, a Assertion) error {
	var metricMiss []string
	for _, is := range issues {
		if !matches(is, a) {
			continue
		}
		if a.Metric != nil && is.MetricValue != *a.Metric {
			metricMiss = append(metricMiss, fmt.Sprintf("%s has metric %v", is.ID, is.MetricValue))
			continue
		}
		return nil
	}

	actual := "no matching issue"
	if len(metricMiss) > 0 {
		actual = strings.Join(metricMiss, "; ")
	}
	return &AssertionError{
		Type:     AssertIssuePresent,
		Expected: describe(a),
		Actual:   actual,
		Issues:   issues,
	}
}

func assertIssueAbsent(issues []runs.Issue, a Assertion) error {
	for _, is := range issues {
		if matches(is, a) {
			return &AssertionError{
				Type:     AssertIssueAbsent,
				Expected: "no issue with " + describe(a),
				Actual:   fmt.Sprintf("found %s (%s)", is.ID, is.Severity),
				Issues:   issues,
			}
		}
	}
	return nil
}

func assertIssueCount(issues []runs.Issue, a Assertion) error {
	count := 0
	for _, is := range issues {
		if matches(is, a) {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	filter := "all issues"
	if a.Rule != "" || a.Severity != "" || a.Subject != "" {
		filter = describe(a)
	}
	return &AssertionError{
		Type:     AssertIssueCount,
		Expected: fmt.Sprintf("%d issue(s) for %s", a.Count, filter),
		Actual:   fmt.Sprintf("%d issue(s)", count),
		Issues:   issues,
	}
}

func assertFinalStatus(issues []runs.Issue, a Assertion) error {
	for _, is := range issues {
		if is.ID != a.Issue {
			continue
		}
		if string(is.Status) == a.Status {
			return nil
		}
		return &AssertionError{
			Type:     AssertFinalStatus,
			Expected: fmt.Sprintf("%s is %s", a.Issue, a.Status),
			Actual:   fmt.Sprintf("%s is %s", a.Issue, is.Status),
			Issues:   issues,
		}
	}
	return &AssertionError{
		Type:     AssertFinalStatus,
		Expected: fmt.Sprintf("%s is %s", a.Issue, a.Status),
		Actual:   "issue not found",
		Issues:   issues,
	}
}

// EvaluateAssertions checks every assertion against the result's issues
// and returns one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertIssuePresent:
			err = assertIssuePresent(result.Issues, a)
		case AssertIssueAbsent:
			err = assertIssueAbsent(result.Issues, a)
		case AssertIssueCount:
			err = assertIssueCount(result.Issues, a)
		case AssertFinalStatus:
			err = assertFinalStatus(result.Issues, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}
