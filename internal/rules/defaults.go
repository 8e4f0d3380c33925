package rules

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/roach88/revops/internal/dataset"
	"github.com/roach88/revops/internal/runs"
)

// Default rule ids, in registration order.
const (
	RuleStaleOpportunity    = "stale_opportunity"
	RuleMissingCloseDate    = "missing_close_date"
	RuleAmountOutlier       = "amount_outlier"
	RuleSlipping            = "slipping"
	RuleNoOpportunities     = "no_opportunities"
	RuleUndercoveredTAM     = "undercovered_tam"
	RuleRepOverload         = "rep_overload"
	RulePipelineImbalance   = "pipeline_imbalance"
	RuleRepEarlyStage       = "rep_early_stage_concentration"
	RuleDuplicateAccounts   = "duplicate_accounts"
	RulePortfolioEarlyStage = "portfolio_early_stage_concentration"
)

// DefaultRuleIDs lists the built-in rules in registration order.
var DefaultRuleIDs = []string{
	RuleStaleOpportunity,
	RuleMissingCloseDate,
	RuleAmountOutlier,
	RuleSlipping,
	RuleNoOpportunities,
	RuleUndercoveredTAM,
	RuleRepOverload,
	RulePipelineImbalance,
	RuleRepEarlyStage,
	RuleDuplicateAccounts,
	RulePortfolioEarlyStage,
}

// DefaultRules returns the built-in rules in registration order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Meta: Meta{
				ID:         RuleStaleOpportunity,
				Name:       "Stale Opportunity",
				Category:   "Pipeline Hygiene",
				Fields:     []string{dataset.FieldStage},
				MetricName: "Days since last stage change (or since creation if no stage changes)",
				Resolution: "Reach out to the sales rep to confirm the opportunity is still active.",
			},
			Scope:       PerOpportunity,
			Opportunity: staleOpportunity,
		},
		{
			Meta: Meta{
				ID:         RuleMissingCloseDate,
				Name:       "Missing close date",
				Category:   "Pipeline Hygiene",
				Fields:     []string{dataset.FieldCloseDate},
				MetricName: "Days since creation without a close date",
				Resolution: "Reach out to sales rep to populate missing close dates",
			},
			Scope:       PerOpportunity,
			Opportunity: missingCloseDate,
		},
		{
			Meta: Meta{
				ID:         RuleAmountOutlier,
				Name:       "Amount outlier",
				Category:   "Data Integrity",
				Fields:     []string{"amount"},
				MetricName: "Amount",
				Resolution: "Validate the opportunity amount; correct potential data entry issues or confirm this deal size is accurate.",
			},
			Scope:       PerOpportunity,
			Opportunity: amountOutlier,
		},
		{
			Meta: Meta{
				ID:         RuleSlipping,
				Name:       "Slipping Opp",
				Category:   "Forecast Risk",
				Fields:     []string{dataset.FieldStage, dataset.FieldCloseDate},
				MetricName: "Consecutive close date postponements",
				Resolution: "Reach out to the sales rep to understand why the close date has been postponed.",
			},
			Scope:       PerOpportunity,
			Opportunity: slipping,
		},
		{
			Meta: Meta{
				ID:         RuleNoOpportunities,
				Name:       "No opps",
				Category:   "Customer Expansion",
				Fields:     []string{"accountId"},
				MetricName: "No opps",
				Resolution: "Ops should ask rep why there are no opportunities for this account",
			},
			Scope:   PerAccount,
			Account: noOpportunities,
		},
		{
			Meta: Meta{
				ID:         RuleUndercoveredTAM,
				Name:       "Under-covered TAM",
				Category:   "Territory imbalance",
				Fields:     []string{"accountId", "amount"},
				MetricName: "Under-covered TAM",
				Resolution: "Ops should ask rep why there is not enough pipeline for this account",
			},
			Scope:   PerAccount,
			Account: undercoveredTAM,
		},
		{
			Meta: Meta{
				ID:         RuleRepOverload,
				Name:       "Acct rep concentration",
				Category:   "Pipeline Hygiene",
				Fields:     []string{"repId"},
				MetricName: "Accts per rep",
				Resolution: "Ops rebalance accounts among reps and see if there are routing issues in CRM",
				Owner:      OpsOwner,
			},
			Scope: PerRep,
			Rep:   repOverload,
		},
		{
			Meta: Meta{
				ID:         RulePipelineImbalance,
				Name:       "Pipeline imbalance",
				Category:   "Pipeline Hygiene",
				Fields:     []string{"amount"},
				MetricName: "Pipeline imbalance",
				Resolution: "Ops rebalance pipeline among reps and see if there are routing issues in CRM",
				Owner:      OpsOwner,
			},
			Scope: PerRep,
			Rep:   pipelineImbalance,
		},
		{
			Meta: Meta{
				ID:         RuleRepEarlyStage,
				Name:       "Rep concentration",
				Category:   "Pipeline Hygiene",
				Fields:     []string{dataset.FieldStage},
				MetricName: "Rep concentration",
				Resolution: "Ops work with rep to identify bottlenecks in moving forward opportunities",
			},
			Scope: PerRep,
			Rep:   repEarlyStage,
		},
		{
			Meta: Meta{
				ID:         RuleDuplicateAccounts,
				Name:       "Duplicate accounts",
				Category:   "Data Integrity",
				Fields:     []string{"name"},
				MetricName: "Duplicate accounts",
				Resolution: "Ops to clean up CRM data and rebalance accounts",
				Owner:      OpsOwner,
			},
			Scope:     PortfolioWide,
			Portfolio: duplicateAccounts,
		},
		{
			Meta: Meta{
				ID:         RulePortfolioEarlyStage,
				Name:       "Early stage concentration",
				Category:   "Pipeline Hygiene",
				Fields:     []string{dataset.FieldStage},
				MetricName: "Early stage concentration",
				Resolution: "Ops to analyse what is causing bottlenecks in early stages",
				Owner:      OpsOwner,
			},
			Scope:     PortfolioWide,
			Portfolio: portfolioEarlyStage,
		},
	}
}

// staleOpportunity measures days since the last stage change. With no
// stage history the created date stands in. A stage history that ends on
// a different stage than the opportunity's current one means the stage
// just moved, so the metric is 0.
func staleOpportunity(ec *Context, o *dataset.Opportunity) (Finding, error) {
	last := o.CreatedDate
	var lastStage *dataset.HistoryEvent
	events := ec.Index.History[o.ID]
	for i := range events {
		if events[i].FieldName == dataset.FieldStage {
			lastStage = &events[i]
		}
	}

	days := 0
	if lastStage != nil {
		last = lastStage.ChangeDate
	}
	if lastStage == nil || lastStage.NewValue == o.Stage {
		days = ec.Today.DaysSince(last)
	}

	t := ec.Settings.StaleOpportunity.Thresholds()
	sev := Classify(float64(days), t)
	if sev == runs.None {
		return Finding{}, nil
	}
	return Finding{
		Severity:  sev,
		Value:     float64(days),
		Formatted: fmt.Sprintf("Last change date: %s\nDays since last change: %d days", last, days),
		Explanation: fmt.Sprintf("Days since last stage change is %d days old, which is above the %s threshold of %d days",
			days, lower(sev), int(t.threshold(sev))),
	}, nil
}

func missingCloseDate(ec *Context, o *dataset.Opportunity) (Finding, error) {
	if o.CloseDate != nil {
		return Finding{}, nil
	}
	days := ec.Today.DaysSince(o.CreatedDate)
	t := ec.Settings.MissingCloseDate.Thresholds()
	sev := Classify(float64(days), t)
	if sev == runs.None {
		return Finding{}, nil
	}
	return Finding{
		Severity:  sev,
		Value:     float64(days),
		Formatted: fmt.Sprintf("Stage: %s\nClose Date: \nDays open: %d", o.Stage, days),
		Explanation: fmt.Sprintf("Close date has been missing for %d days since creation, which is above the %s threshold of %d days",
			days, lower(sev), int(t.threshold(sev))),
	}, nil
}

// amountOutlier flags amounts far outside the usual deal size. Closed
// deals are left alone.
func amountOutlier(ec *Context, o *dataset.Opportunity) (Finding, error) {
	if o.Amount <= 0 {
		return Finding{}, fmt.Errorf("amount must be positive, got %d", o.Amount)
	}
	if strings.Contains(strings.ToLower(o.Stage), "closed") {
		return Finding{}, nil
	}
	s := ec.Settings.AmountOutlier
	amount := float64(o.Amount)
	f := Finding{
		Value:     amount,
		Formatted: fmt.Sprintf("Stage: %s\nAmount: %s", o.Stage, usd(o.Amount)),
	}

	if sev := Classify(amount, s.Above()); sev != runs.None {
		f.Severity = sev
		f.Explanation = fmt.Sprintf("Amount (%s) is unusually large, above the %s threshold (%s)",
			grouped(o.Amount), lower(sev), grouped(roundInt(s.Above().threshold(sev))))
		return f, nil
	}
	if sev := ClassifyBelow(amount, s.Below()); sev != runs.None {
		f.Severity = sev
		f.Explanation = fmt.Sprintf("Amount (%s) is unusually small, below the %s threshold (%s)",
			grouped(o.Amount), lower(sev), grouped(roundInt(s.Below().threshold(sev))))
		return f, nil
	}
	return Finding{}, nil
}

// slipping counts consecutive close-date postponements recorded on or
// after the first move into a late stage. Only the last HistoryWindow
// close dates are considered.
func slipping(ec *Context, o *dataset.Opportunity) (Finding, error) {
	s := ec.Settings.Slipping
	events := ec.Index.History[o.ID]

	var lateSince *civil.Date
	for _, ev := range events {
		if ev.FieldName != dataset.FieldStage {
			continue
		}
		n, err := StageNumber(ev.NewValue)
		if err != nil {
			return Finding{}, fmt.Errorf("history event %d: %w", ev.ID, err)
		}
		if n >= s.LateStage {
			d := ev.ChangeDate
			lateSince = &d
			break
		}
	}
	if lateSince == nil {
		return Finding{}, nil
	}

	var dates []civil.Date
	for _, ev := range events {
		if ev.FieldName != dataset.FieldCloseDate || ev.ChangeDate.Before(*lateSince) {
			continue
		}
		d, err := civil.ParseDate(ev.NewValue)
		if err != nil {
			return Finding{}, fmt.Errorf("history event %d: closeDate %q is not a date", ev.ID, ev.NewValue)
		}
		dates = append(dates, d)
	}
	if len(dates) > s.HistoryWindow {
		dates = dates[len(dates)-s.HistoryWindow:]
	}
	if len(dates) < 2 {
		return Finding{}, nil
	}

	run, longest := 0, 0
	for i := 1; i < len(dates); i++ {
		if dates[i].After(dates[i-1]) {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}

	sev := Classify(float64(longest), s.Thresholds())
	if sev == runs.None {
		return Finding{}, nil
	}
	history := make([]string, len(dates))
	for i, d := range dates {
		history[i] = d.String()
	}
	return Finding{
		Severity:    sev,
		Value:       float64(longest),
		Formatted:   "Close date history:\n" + strings.Join(history, "\n"),
		Explanation: fmt.Sprintf("This opportunity is slipping: the close date has been postponed %d consecutive times.", longest),
	}, nil
}

func noOpportunities(ec *Context, a *dataset.Account) (Finding, error) {
	if len(ec.Index.OppsByAccount[a.ID]) > 0 {
		return Finding{}, nil
	}
	return Finding{
		Severity:    runs.High,
		Value:       0,
		Formatted:   "0",
		Explanation: "No opportunities found for this account",
	}, nil
}

// undercoveredTAM compares an account's pipeline with its expected share of
// TAM. Accounts without opportunities belong to no_opportunities.
func undercoveredTAM(ec *Context, a *dataset.Account) (Finding, error) {
	if a.NumDevelopers <= 0 {
		return Finding{}, fmt.Errorf("numDevelopers must be positive, got %d", a.NumDevelopers)
	}
	opps := ec.Index.OppsByAccount[a.ID]
	if len(opps) == 0 {
		return Finding{}, nil
	}
	s := ec.Settings.TAM
	tam := float64(a.NumDevelopers) * float64(s.RevenuePerDeveloper) * s.CoveragePercentage / 100
	if tam == 0 {
		// tam.revenue_per_developer set to 0 turns the check off.
		return Finding{}, nil
	}

	var pipeline int64
	for _, o := range opps {
		pipeline += o.Amount
	}
	coverage := int(float64(pipeline) / tam * 100)
	shortfall := float64(100 - coverage)

	sev := Classify(shortfall, s.Thresholds())
	if sev == runs.None {
		return Finding{}, nil
	}
	return Finding{
		Severity:    sev,
		Value:       shortfall,
		Formatted:   fmt.Sprintf("%d%%", coverage),
		Explanation: fmt.Sprintf("TAM: %s\nPipeline: %s\nCoverage: %d%%", usd(roundInt(tam)), usd(pipeline), coverage),
	}, nil
}

func repOverload(ec *Context, r *dataset.Rep) (Finding, error) {
	owned := len(ec.Index.AccountsByRep[r.ID])
	t := ec.Settings.RepOverload.Thresholds()
	sev := Classify(float64(owned), t)
	if sev == runs.None {
		return Finding{}, nil
	}
	return Finding{
		Severity:  sev,
		Value:     float64(owned),
		Formatted: fmt.Sprintf("%d", owned),
		Explanation: fmt.Sprintf("Accounts owned: %d which is above the threshold of %d for %s severity",
			owned, int(t.threshold(sev)), lower(sev)),
	}, nil
}

func pipelineImbalance(ec *Context, r *dataset.Rep) (Finding, error) {
	var total int64
	for _, o := range ec.Index.OppsByRep[r.ID] {
		total += o.Amount
	}
	t := ec.Settings.PipelineImbalance.Thresholds()
	sev := Classify(float64(total), t)
	if sev == runs.None {
		return Finding{}, nil
	}
	return Finding{
		Severity:  sev,
		Value:     float64(total),
		Formatted: usd(total),
		Explanation: fmt.Sprintf("Pipeline imbalance: %s which is above the threshold of %s for %s severity",
			usd(total), usd(roundInt(t.threshold(sev))), lower(sev)),
	}, nil
}

// earlyShare counts early-stage opportunities.
func earlyShare(ec *Context, opps []*dataset.Opportunity) (early int, pct float64, err error) {
	for _, o := range opps {
		ok, err := ec.IsEarlyStage(o.Stage)
		if err != nil {
			return 0, 0, fmt.Errorf("opportunity %d: %w", o.ID, err)
		}
		if ok {
			early++
		}
	}
	if len(opps) > 0 {
		pct = float64(early) / float64(len(opps)) * 100
	}
	return early, pct, nil
}

func earlyLabel(maxStage int) string {
	switch maxStage {
	case 0:
		return "Stage 0"
	case 1:
		return "Stage 0 & 1"
	}
	return fmt.Sprintf("Stage 0-%d", maxStage)
}

func concentrationSummary(ec *Context, total, early int, pct float64) string {
	return fmt.Sprintf("Total Opps: %d\n%s Opps: %d\nRatio: %s",
		total, earlyLabel(ec.Settings.Stages.EarlyStageMax), early, ratio(pct))
}

func repEarlyStage(ec *Context, r *dataset.Rep) (Finding, error) {
	s := ec.Settings.RepEarlyStage
	opps := ec.Index.OppsByRep[r.ID]
	if len(opps) < s.MinOpps {
		return Finding{}, nil
	}
	early, pct, err := earlyShare(ec, opps)
	if err != nil {
		return Finding{}, err
	}
	sev := Classify(pct, s.Thresholds())
	if sev == runs.None {
		return Finding{}, nil
	}
	summary := concentrationSummary(ec, len(opps), early, pct)
	return Finding{
		Severity:    sev,
		Value:       pct,
		Formatted:   summary,
		Explanation: summary,
	}, nil
}

// duplicateAccounts emits one finding per account name used more than
// once, in order of first appearance.
func duplicateAccounts(ec *Context) ([]Finding, error) {
	counts := map[string]int{}
	var order []string
	for _, a := range ec.Dataset.Accounts {
		if counts[a.Name] == 0 {
			order = append(order, a.Name)
		}
		counts[a.Name]++
	}

	var out []Finding
	for _, name := range order {
		extra := counts[name] - 1
		if extra == 0 {
			continue
		}
		out = append(out, Finding{
			Severity:    runs.High,
			Value:       float64(extra),
			Formatted:   fmt.Sprintf("%d", extra),
			Explanation: fmt.Sprintf("Duplicate accounts detected with %d duplicates", extra),
			Subject:     name,
		})
	}
	return out, nil
}

func portfolioEarlyStage(ec *Context) ([]Finding, error) {
	opps := make([]*dataset.Opportunity, len(ec.Dataset.Opportunities))
	for i := range ec.Dataset.Opportunities {
		opps[i] = &ec.Dataset.Opportunities[i]
	}
	if len(opps) == 0 {
		return nil, nil
	}
	early, pct, err := earlyShare(ec, opps)
	if err != nil {
		return nil, err
	}
	sev := Classify(pct, ec.Settings.PortfolioEarlyStage.Thresholds())
	if sev == runs.None {
		return nil, nil
	}
	return []Finding{{
		Severity:  sev,
		Value:     pct,
		Formatted: concentrationSummary(ec, len(opps), early, pct),
		Explanation: fmt.Sprintf("Early stage concentration detected with %d opportunities in early stages out of %d total opportunities (%s), which makes it %s severity",
			early, len(opps), ratio(pct), lower(sev)),
	}}, nil
}
