package harness

import (
	"context"
	"strconv"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/revops/internal/dataset"
)

// Snapshot renders a result as canonical JSON for golden comparison.
// Timestamps are left out; they follow from the scenario's now.
func Snapshot(name string, result *Result) ([]byte, error) {
	issues := make([]any, len(result.Issues))
	for i, is := range result.Issues {
		m := map[string]any{
			"id":                     is.ID,
			"rule_id":                is.RuleID,
			"severity":               is.Severity.String(),
			"owner":                  is.Owner,
			"metric_value":           strconv.FormatFloat(is.MetricValue, 'f', -1, 64),
			"formatted_metric_value": is.FormattedMetricValue,
			"explanation":            is.Explanation,
			"status":                 string(is.Status),
			"is_unread":              is.IsUnread,
		}
		if is.AccountName != "" {
			m["account_name"] = is.AccountName
		}
		if is.OpportunityName != "" {
			m["opportunity_name"] = is.OpportunityName
		}
		if is.RepName != "" {
			m["rep_name"] = is.RepName
		}
		issues[i] = m
	}

	events := make([]any, len(result.Events))
	for i, ev := range result.Events {
		events[i] = map[string]any{
			"seq":      ev.Seq,
			"issue_id": ev.IssueID,
			"command":  ev.Command,
			"from":     string(ev.From),
			"to":       string(ev.To),
		}
	}

	return dataset.MarshalCanonical(map[string]any{
		"scenario_name": name,
		"issues":        issues,
		"events":        events,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}

	snapshot, err := Snapshot(scenario.Name, result)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snapshot)
	return result, nil
}
