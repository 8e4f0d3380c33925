package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/roach88/revops/internal/dataset"
	"github.com/roach88/revops/internal/runs"
)

// Scope says which entities a rule is evaluated against.
type Scope int

const (
	PerOpportunity Scope = iota + 1
	PerAccount
	PerRep
	PortfolioWide
)

func (s Scope) String() string {
	switch s {
	case PerOpportunity:
		return "opportunity"
	case PerAccount:
		return "account"
	case PerRep:
		return "rep"
	case PortfolioWide:
		return "portfolio"
	}
	return fmt.Sprintf("Scope(%d)", int(s))
}

// OpsOwner owns issues that no single rep can fix.
const OpsOwner = "0 - Ops"

// Meta is the descriptive half of a rule, copied onto every issue it emits.
type Meta struct {
	ID         string
	Name       string
	Category   string
	Fields     []string
	MetricName string
	Resolution string

	// Owner overrides the default owner (the entity's rep).
	Owner string
}

// Finding is one rule hit before it becomes an Issue.
type Finding struct {
	Severity    runs.Severity
	Value       float64
	Formatted   string
	Explanation string

	// Subject names the entity for portfolio findings, e.g. the
	// duplicated account name.
	Subject string
}

// Rule pairs Meta with exactly one evaluation function matching Scope.
// A zero Finding.Severity means the entity is within tolerance.
type Rule struct {
	Meta
	Scope Scope

	Opportunity func(ec *Context, o *dataset.Opportunity) (Finding, error)
	Account     func(ec *Context, a *dataset.Account) (Finding, error)
	Rep         func(ec *Context, r *dataset.Rep) (Finding, error)
	Portfolio   func(ec *Context) ([]Finding, error)
}

func (r Rule) check() error {
	if r.ID == "" {
		return errors.New("rule id is required")
	}
	set := 0
	for _, fn := range []bool{r.Opportunity != nil, r.Account != nil, r.Rep != nil, r.Portfolio != nil} {
		if fn {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("rule %s: exactly one evaluation function must be set, got %d", r.ID, set)
	}
	ok := false
	switch r.Scope {
	case PerOpportunity:
		ok = r.Opportunity != nil
	case PerAccount:
		ok = r.Account != nil
	case PerRep:
		ok = r.Rep != nil
	case PortfolioWide:
		ok = r.Portfolio != nil
	}
	if !ok {
		return fmt.Errorf("rule %s: evaluation function does not match scope %s", r.ID, r.Scope)
	}
	return nil
}

// RuleError reports a data-shape problem found while evaluating a rule.
// It aborts the whole evaluation.
type RuleError struct {
	RuleID   string
	Entity   string
	EntityID int
	Err      error
}

func (e *RuleError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("rule %s: %v", e.RuleID, e.Err)
	}
	return fmt.Sprintf("rule %s: %s %d: %v", e.RuleID, e.Entity, e.EntityID, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// IsRuleError returns true if err is or wraps a RuleError.
func IsRuleError(err error) bool {
	var re *RuleError
	return errors.As(err, &re)
}

// Context is what an evaluation function sees.
type Context struct {
	Dataset  *dataset.Dataset
	Index    *dataset.Index
	Settings Settings
	Now      time.Time
	Today    civil.Date
}

// opportunityRefs resolves the account and rep an opportunity points at.
func (ec *Context) opportunityRefs(o *dataset.Opportunity) (*dataset.Account, *dataset.Rep, error) {
	acct, ok := ec.Index.Accounts[o.AccountID]
	if !ok {
		return nil, nil, fmt.Errorf("accountId %d does not resolve", o.AccountID)
	}
	rep, ok := ec.Index.Reps[o.RepID]
	if !ok {
		return nil, nil, fmt.Errorf("repId %d does not resolve", o.RepID)
	}
	return acct, rep, nil
}

// StageNumber parses the numeric prefix of "3 - Proposal".
func StageNumber(stage string) (int, error) {
	head, _, _ := strings.Cut(stage, "-")
	n, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return 0, fmt.Errorf("stage %q has no numeric prefix", stage)
	}
	return n, nil
}

// IsEarlyStage reports whether stage is at or below stages.early_stage_max.
func (ec *Context) IsEarlyStage(stage string) (bool, error) {
	n, err := StageNumber(stage)
	if err != nil {
		return false, err
	}
	return n <= ec.Settings.Stages.EarlyStageMax, nil
}
