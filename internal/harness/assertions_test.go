package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/revops/internal/runs"
)

func sampleIssues() []runs.Issue {
	return []runs.Issue{
		{ID: "issue-0001", RuleID: "stale_opportunity", Severity: runs.Medium, OpportunityName: "Deal A", AccountName: "Acme", RepName: "Ada", MetricValue: 79, Status: runs.Open},
		{ID: "issue-0002", RuleID: "no_opportunities", Severity: runs.High, AccountName: "Empty Co", RepName: "Ada", Status: runs.Acknowledged},
		{ID: "issue-0003", RuleID: "rep_overload", Severity: runs.Low, RepName: "Grace", MetricValue: 6, Status: runs.Snoozed},
	}
}

func metric(v float64) *float64 { return &v }

func TestEvaluateAssertions_Pass(t *testing.T) {
	result := &Result{Issues: sampleIssues()}
	assertions := []Assertion{
		{Type: AssertIssuePresent, Rule: "stale_opportunity", Severity: "Medium", Subject: "Deal A", Metric: metric(79)},
		{Type: AssertIssuePresent, Rule: "stale_opportunity", Subject: "Acme"},
		{Type: AssertIssuePresent, Rule: "rep_overload", Subject: "Grace"},
		{Type: AssertIssueAbsent, Rule: "no_opportunities", Subject: "Acme"},
		{Type: AssertIssueAbsent, Rule: "slipping"},
		{Type: AssertIssueCount, Count: 3},
		{Type: AssertIssueCount, Severity: "High", Count: 1},
		{Type: AssertIssueCount, Rule: "slipping", Count: 0},
		{Type: AssertFinalStatus, Issue: "issue-0003", Status: "Snoozed"},
	}

	assert.Empty(t, EvaluateAssertions(result, assertions))
}

func TestAssertIssuePresent_MetricMismatch(t *testing.T) {
	err := assertIssuePresent(sampleIssues(), Assertion{Type: AssertIssuePresent, Rule: "stale_opportunity", Metric: metric(80)})
	require.Error(t, err)

	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertIssuePresent, ae.Type)
	assert.Equal(t, "issue-0001 has metric 79", ae.Actual)
}

func TestAssertIssuePresent_Missing(t *testing.T) {
	err := assertIssuePresent(sampleIssues(), Assertion{Type: AssertIssuePresent, Rule: "stale_opportunity", Severity: "High"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: rule stale_opportunity, severity High")
	assert.Contains(t, err.Error(), "Actual: no matching issue")
	assert.Contains(t, err.Error(), `[issue-0001] stale_opportunity Medium "Deal A" Open`)
}

func TestAssertIssueAbsent_Found(t *testing.T) {
	err := assertIssueAbsent(sampleIssues(), Assertion{Type: AssertIssueAbsent, Rule: "no_opportunities"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "found issue-0002 (High)")
}

func TestAssertIssueCount_Mismatch(t *testing.T) {
	err := assertIssueCount(sampleIssues(), Assertion{Type: AssertIssueCount, Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 issue(s) for all issues")
	assert.Contains(t, err.Error(), "Actual: 3 issue(s)")
}

func TestAssertFinalStatus(t *testing.T) {
	err := assertFinalStatus(sampleIssues(), Assertion{Type: AssertFinalStatus, Issue: "issue-0001", Status: "Resolved"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "issue-0001 is Open")

	err = assertFinalStatus(sampleIssues(), Assertion{Type: AssertFinalStatus, Issue: "issue-9999", Status: "Open"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "issue not found")
}

func TestAssertionError_NoIssues(t *testing.T) {
	err := &AssertionError{Type: AssertIssueCount, Expected: "1", Actual: "0"}
	assert.Contains(t, err.Error(), "(none)")
}

func TestEvaluateAssertions_IndexesFailures(t *testing.T) {
	result := &Result{Issues: sampleIssues()}
	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertIssueCount, Count: 3},
		{Type: AssertIssueCount, Count: 1},
		{Type: "bogus"},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "assertion 1:")
	assert.Contains(t, errs[1], `assertion 2: unknown assertion type "bogus"`)
}
