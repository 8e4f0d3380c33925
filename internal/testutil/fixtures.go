package testutil

import (
	"cloud.google.com/go/civil"

	"github.com/roach88/revops/internal/dataset"
	"github.com/roach88/revops/internal/runs"
)

// Dataset returns a one-rep, one-account, one-opportunity dataset. The
// opportunity's last stage change is 2025-12-01, 79 days before Epoch.
// seed is added to the opportunity amount so different seeds fingerprint
// differently.
func Dataset(seed int64) *dataset.Dataset {
	closeDate := civil.Date{Year: 2026, Month: 4, Day: 1}
	old := "1 - Qualification"
	return &dataset.Dataset{
		GeneratedAt: Epoch,
		Seed:        seed,
		Territories: []dataset.Territory{{ID: 1, Name: "Retail Territory"}},
		Reps:        []dataset.Rep{{ID: 1, Name: "Ada Lovelace", HomeState: "CA", Region: "West", Quota: 90000, TerritoryID: 1}},
		Accounts: []dataset.Account{{
			ID: 1, Name: "Acme Labs", AnnualRevenue: 5_000_000, NumDevelopers: 40,
			State: "CA", Industry: "Retail", InPipeline: true, RepID: 1, TerritoryID: 1,
		}},
		Opportunities: []dataset.Opportunity{{
			ID: 1, Name: "Acme Labs Atlas", Amount: 25000 + seed, Stage: "2 - Solutioning",
			CreatedDate: civil.Date{Year: 2025, Month: 11, Day: 3}, CloseDate: &closeDate, RepID: 1, AccountID: 1,
		}},
		OpportunityHistory: []dataset.HistoryEvent{{
			ID: 1, OpportunityID: 1, FieldName: dataset.FieldStage, OldValue: &old,
			NewValue: "2 - Solutioning", ChangeDate: civil.Date{Year: 2025, Month: 12, Day: 1},
		}},
	}
}

// Issue returns an open, unread stale-opportunity issue for Dataset's
// opportunity, stamped at Epoch.
func Issue(id string, sev runs.Severity) runs.Issue {
	return runs.Issue{
		ID:                   id,
		RuleID:               "stale_opportunity",
		Severity:             sev,
		Name:                 "Stale Opportunity",
		Scope:                "opportunity",
		AccountName:          "Acme Labs",
		OpportunityName:      "Acme Labs Atlas",
		RepName:              "Ada Lovelace",
		Owner:                "Ada Lovelace",
		Category:             "Pipeline Hygiene",
		Fields:               []string{dataset.FieldStage},
		MetricName:           "Days since last stage change",
		MetricValue:          79,
		FormattedMetricValue: "Last change date: 2025-12-01\nDays since last change: 79 days",
		Explanation:          "Days since last stage change is 79 days old, which is above the medium threshold of 60 days",
		Resolution:           "Reach out to the sales rep to confirm the opportunity is still active.",
		Status:               runs.Open,
		Timestamp:            Epoch,
		IsUnread:             true,
	}
}
