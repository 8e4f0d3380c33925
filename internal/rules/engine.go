// Package rules evaluates pipeline-hygiene rules against a dataset.
//
// An Engine holds rules in registration order. Evaluate walks them in that
// order, and for each rule walks the entities of its Scope in dataset
// order, so the same dataset, settings and clock always produce the same
// issues in the same order.
package rules

import (
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"

	"github.com/roach88/revops/internal/dataset"
	"github.com/roach88/revops/internal/runs"
)

// Engine evaluates registered rules.
type Engine struct {
	rules  []Rule
	ids    runs.IDGenerator
	logger *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithIDGenerator sets the issue id source. Default: runs.UUIDv7Generator.
func WithIDGenerator(g runs.IDGenerator) EngineOption {
	return func(e *Engine) { e.ids = g }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine with no rules.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{ids: runs.UUIDv7Generator{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewDefaultEngine creates an engine with DefaultRules registered.
func NewDefaultEngine(opts ...EngineOption) *Engine {
	e := NewEngine(opts...)
	for _, r := range DefaultRules() {
		if err := e.Register(r); err != nil {
			panic(err)
		}
	}
	return e
}

// Register appends r. Ids must be unique.
func (e *Engine) Register(r Rule) error {
	if err := r.check(); err != nil {
		return err
	}
	for _, existing := range e.rules {
		if existing.ID == r.ID {
			return fmt.Errorf("rule %s already registered", r.ID)
		}
	}
	e.rules = append(e.rules, r)
	return nil
}

// Rules returns the registered rules in order.
func (e *Engine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Evaluate runs every enabled rule. Each issue is new: Open, unread, and
// stamped with now. The first rule error aborts the pass.
func (e *Engine) Evaluate(ds *dataset.Dataset, s Settings, now time.Time) ([]runs.Issue, error) {
	ec := &Context{
		Dataset:  ds,
		Index:    dataset.NewIndex(ds),
		Settings: s,
		Now:      now,
		Today:    civil.DateOf(now),
	}

	var issues []runs.Issue
	for _, r := range e.rules {
		if !s.Enabled(r.ID) {
			e.logger.Debug("rule disabled", "rule_id", r.ID)
			continue
		}
		before := len(issues)
		found, err := e.evaluate(ec, r)
		if err != nil {
			return nil, err
		}
		issues = append(issues, found...)
		e.logger.Debug("rule evaluated", "rule_id", r.ID, "scope", r.Scope.String(), "issues", len(issues)-before)
	}

	e.logger.Info("evaluation complete", "rules", len(e.rules), "issues", len(issues))
	return issues, nil
}

func (e *Engine) evaluate(ec *Context, r Rule) ([]runs.Issue, error) {
	var out []runs.Issue
	switch r.Scope {
	case PerOpportunity:
		for i := range ec.Dataset.Opportunities {
			o := &ec.Dataset.Opportunities[i]
			acct, rep, err := ec.opportunityRefs(o)
			if err != nil {
				return nil, &RuleError{RuleID: r.ID, Entity: "opportunity", EntityID: o.ID, Err: err}
			}
			f, err := r.Opportunity(ec, o)
			if err != nil {
				return nil, &RuleError{RuleID: r.ID, Entity: "opportunity", EntityID: o.ID, Err: err}
			}
			if f.Severity == runs.None {
				continue
			}
			is := e.issue(ec, r, f)
			is.OpportunityName = o.Name
			is.AccountName = acct.Name
			is.RepName = rep.Name
			is.Owner = ownerOr(r.Owner, rep.Name)
			out = append(out, is)
		}

	case PerAccount:
		for i := range ec.Dataset.Accounts {
			a := &ec.Dataset.Accounts[i]
			rep, ok := ec.Index.Reps[a.RepID]
			if !ok {
				return nil, &RuleError{RuleID: r.ID, Entity: "account", EntityID: a.ID, Err: fmt.Errorf("repId %d does not resolve", a.RepID)}
			}
			f, err := r.Account(ec, a)
			if err != nil {
				return nil, &RuleError{RuleID: r.ID, Entity: "account", EntityID: a.ID, Err: err}
			}
			if f.Severity == runs.None {
				continue
			}
			is := e.issue(ec, r, f)
			is.AccountName = a.Name
			is.RepName = rep.Name
			is.Owner = ownerOr(r.Owner, rep.Name)
			out = append(out, is)
		}

	case PerRep:
		for i := range ec.Dataset.Reps {
			rep := &ec.Dataset.Reps[i]
			f, err := r.Rep(ec, rep)
			if err != nil {
				return nil, &RuleError{RuleID: r.ID, Entity: "rep", EntityID: rep.ID, Err: err}
			}
			if f.Severity == runs.None {
				continue
			}
			is := e.issue(ec, r, f)
			is.RepName = rep.Name
			is.Owner = ownerOr(r.Owner, rep.Name)
			out = append(out, is)
		}

	case PortfolioWide:
		findings, err := r.Portfolio(ec)
		if err != nil {
			return nil, &RuleError{RuleID: r.ID, Err: err}
		}
		for _, f := range findings {
			if f.Severity == runs.None {
				continue
			}
			is := e.issue(ec, r, f)
			is.AccountName = f.Subject
			is.Owner = ownerOr(r.Owner, OpsOwner)
			out = append(out, is)
		}

	default:
		return nil, &RuleError{RuleID: r.ID, Err: fmt.Errorf("unknown scope %s", r.Scope)}
	}
	return out, nil
}

func (e *Engine) issue(ec *Context, r Rule, f Finding) runs.Issue {
	return runs.Issue{
		ID:                   e.ids.Generate(),
		RuleID:               r.ID,
		Severity:             f.Severity,
		Name:                 r.Name,
		Scope:                r.Scope.String(),
		Category:             r.Category,
		Fields:               append([]string(nil), r.Fields...),
		MetricName:           r.MetricName,
		MetricValue:          f.Value,
		FormattedMetricValue: f.Formatted,
		Explanation:          f.Explanation,
		Resolution:           r.Resolution,
		Status:               runs.Open,
		Timestamp:            ec.Now,
		IsUnread:             true,
	}
}

func ownerOr(fixed, fallback string) string {
	if fixed != "" {
		return fixed
	}
	return fallback
}
