package generator

import (
	"errors"
	"fmt"

	"github.com/roach88/revops/internal/dataset"
	"github.com/roach88/revops/internal/vocab"
)

// Validate checks every relational invariant of ds against cfg and returns
// all violations joined into one error, or nil.
func Validate(ds *dataset.Dataset, cfg Config) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if len(ds.Reps) != cfg.NumReps {
		fail("expected %d reps, got %d", cfg.NumReps, len(ds.Reps))
	}
	if len(ds.Accounts) != cfg.NumAccounts {
		fail("expected %d accounts, got %d", cfg.NumAccounts, len(ds.Accounts))
	}
	if len(ds.Opportunities) != cfg.NumOpportunities {
		fail("expected %d opportunities, got %d", cfg.NumOpportunities, len(ds.Opportunities))
	}

	checkSequential := func(kind string, ids []int) {
		for i, id := range ids {
			if id != i+1 {
				fail("%s ids must be sequential from 1: position %d has id %d", kind, i+1, id)
				return
			}
		}
	}
	checkUnique := func(kind string, names []string) {
		seen := make(map[string]bool, len(names))
		for _, n := range names {
			if seen[n] {
				fail("duplicate %s name %q", kind, n)
			}
			seen[n] = true
		}
	}

	var ids []int
	var names []string
	for _, t := range ds.Territories {
		ids, names = append(ids, t.ID), append(names, t.Name)
	}
	checkSequential("territory", ids)
	checkUnique("territory", names)

	ids, names = nil, nil
	for _, r := range ds.Reps {
		ids, names = append(ids, r.ID), append(names, r.Name)
	}
	checkSequential("rep", ids)
	checkUnique("rep", names)

	ids, names = nil, nil
	for _, a := range ds.Accounts {
		ids, names = append(ids, a.ID), append(names, a.Name)
	}
	checkSequential("account", ids)
	checkUnique("account", names)

	ids, names = nil, nil
	for _, o := range ds.Opportunities {
		ids, names = append(ids, o.ID), append(names, o.Name)
	}
	checkSequential("opportunity", ids)
	checkUnique("opportunity", names)

	idx := dataset.NewIndex(ds)

	repsPerTerritory := make(map[int]int)
	regionByTerritory := make(map[int]string)
	for _, r := range ds.Reps {
		if _, ok := idx.Territories[r.TerritoryID]; !ok {
			fail("rep %d has invalid territoryId %d", r.ID, r.TerritoryID)
		}
		repsPerTerritory[r.TerritoryID]++
		if r.HomeState == "" || r.Region == "" {
			fail("rep %d is missing homeState or region", r.ID)
		}
		if prev, seen := regionByTerritory[r.TerritoryID]; seen && prev != r.Region {
			fail("territory %d has reps in regions %q and %q", r.TerritoryID, prev, r.Region)
		} else if !seen {
			regionByTerritory[r.TerritoryID] = r.Region
		}
		if r.Quota < cfg.QuotaMin || r.Quota > cfg.QuotaMax {
			fail("rep %d quota %d outside [%d, %d]", r.ID, r.Quota, cfg.QuotaMin, cfg.QuotaMax)
		}
	}
	if len(ds.Reps) >= len(ds.Territories) {
		for _, t := range ds.Territories {
			if repsPerTerritory[t.ID] == 0 {
				fail("territory %d has no reps", t.ID)
			}
		}
	}

	territoryByIndustry := make(map[string]int)
	for _, a := range ds.Accounts {
		rep, ok := idx.Reps[a.RepID]
		if !ok {
			fail("account %d has invalid repId %d", a.ID, a.RepID)
			continue
		}
		if _, ok := idx.Territories[a.TerritoryID]; !ok {
			fail("account %d has invalid territoryId %d", a.ID, a.TerritoryID)
		}
		if rep.TerritoryID != a.TerritoryID {
			fail("account %d territoryId %d differs from its rep's territory %d", a.ID, a.TerritoryID, rep.TerritoryID)
		}
		if a.State != rep.HomeState {
			fail("account %d state %q differs from its rep's homeState %q", a.ID, a.State, rep.HomeState)
		}
		if prev, seen := territoryByIndustry[a.Industry]; seen && prev != a.TerritoryID {
			fail("industry %q maps to territories %d and %d", a.Industry, prev, a.TerritoryID)
		}
		territoryByIndustry[a.Industry] = a.TerritoryID
		if a.AnnualRevenue <= 0 || a.NumDevelopers <= 0 {
			fail("account %d must have positive annualRevenue and numDevelopers", a.ID)
		}

		opps := idx.OppsByAccount[a.ID]
		if a.InPipeline != (len(opps) > 0) {
			fail("account %d inPipeline=%t but has %d opportunities", a.ID, a.InPipeline, len(opps))
		}
		var total int64
		for _, o := range opps {
			total += o.Amount
		}
		if tam := cfg.TAMPerDeveloper * a.NumDevelopers; total > tam {
			fail("account %d pipeline %d exceeds TAM %d", a.ID, total, tam)
		}
	}

	created := cfg.CreatedWindow
	if created.End.After(cfg.AsOf) {
		created.End = cfg.AsOf
	}
	oppByID := make(map[int]dataset.Opportunity, len(ds.Opportunities))
	for _, o := range ds.Opportunities {
		oppByID[o.ID] = o
		acct, ok := idx.Accounts[o.AccountID]
		if !ok {
			fail("opportunity %d has invalid accountId %d", o.ID, o.AccountID)
			continue
		}
		if _, ok := idx.Reps[o.RepID]; !ok {
			fail("opportunity %d has invalid repId %d", o.ID, o.RepID)
		}
		if o.RepID != acct.RepID {
			fail("opportunity %d repId %d differs from its account's repId %d", o.ID, o.RepID, acct.RepID)
		}
		if o.Amount <= 0 {
			fail("opportunity %d amount must be positive, got %d", o.ID, o.Amount)
		}
		if !created.Contains(o.CreatedDate) {
			fail("opportunity %d created_date %s outside %s", o.ID, o.CreatedDate, created)
		}
		if o.CloseDate != nil && o.CloseDate.Before(o.CreatedDate) {
			fail("opportunity %d closeDate %s precedes created_date %s", o.ID, o.CloseDate, o.CreatedDate)
		}
	}

	lastID := 0
	for _, ev := range ds.OpportunityHistory {
		if ev.ID <= lastID {
			fail("history event ids must increase: %d after %d", ev.ID, lastID)
		}
		lastID = ev.ID
		o, ok := oppByID[ev.OpportunityID]
		if !ok {
			fail("history event %d has invalid opportunity_id %d", ev.ID, ev.OpportunityID)
			continue
		}
		if ev.FieldName != dataset.FieldStage && ev.FieldName != dataset.FieldCloseDate {
			fail("history event %d has unknown field_name %q", ev.ID, ev.FieldName)
		}
		if ev.ChangeDate.Before(o.CreatedDate) {
			fail("history event %d change_date %s precedes created_date %s", ev.ID, ev.ChangeDate, o.CreatedDate)
		}
	}

	return errors.Join(errs...)
}

// ValidateRegions checks every rep's homeState against the state-to-region
// mapping of v. Validate cannot do this on its own because the mapping is
// not part of the dataset.
func ValidateRegions(ds *dataset.Dataset, v *vocab.Vocabulary) error {
	var errs []error
	for _, r := range ds.Reps {
		region, ok := v.StateRegions[r.HomeState]
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("rep %d homeState %q is not a known state", r.ID, r.HomeState))
		case region != r.Region:
			errs = append(errs, fmt.Errorf("rep %d homeState %q is in region %q, not %q", r.ID, r.HomeState, region, r.Region))
		}
	}
	return errors.Join(errs...)
}
