// Package generator builds a self-consistent CRM dataset from a seed, a
// vocabulary and a Config.
//
// Every random draw comes from one rng.Rand created per call, in a fixed
// order. Generate never reads the wall clock except to stamp generated_at,
// which is excluded from dataset fingerprints.
package generator

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"cloud.google.com/go/civil"

	"github.com/roach88/revops/internal/dataset"
	"github.com/roach88/revops/internal/rng"
	"github.com/roach88/revops/internal/vocab"
)

// Option configures a single Generate call.
type Option func(*builder)

// WithNow overrides the clock used for generated_at.
func WithNow(now func() time.Time) Option {
	return func(b *builder) {
		b.now = now
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *builder) {
		b.logger = logger
	}
}

type builder struct {
	cfg    Config
	vocab  *vocab.Vocabulary
	rand   *rng.Rand
	now    func() time.Time
	logger *slog.Logger

	territories []dataset.Territory
	industries  []string       // indexed by territory id - 1
	regions     map[int]string // territory id -> region
	repsByTerr  map[int][]int  // territory id -> rep indices
	accounts    []dataset.Account
	reps        []dataset.Rep
}

// Generate builds a dataset. The same cfg, vocabulary and seed always
// produce the same dataset apart from GeneratedAt. Configuration problems
// are reported as *ConfigError before anything is built.
func Generate(cfg Config, v *vocab.Vocabulary, seed int64, opts ...Option) (*dataset.Dataset, error) {
	numTerritories, err := cfg.check(v)
	if err != nil {
		return nil, err
	}

	b := &builder{
		cfg:        cfg,
		vocab:      v,
		rand:       rng.New(seed),
		now:        time.Now,
		logger:     slog.Default(),
		regions:    make(map[int]string),
		repsByTerr: make(map[int][]int),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.buildTerritories(numTerritories)
	b.buildReps()
	b.buildAccounts()

	counts := b.opportunityCounts()
	amounts := b.amounts(counts)

	opps, err := b.buildOpportunities(counts, amounts)
	if err != nil {
		return nil, err
	}

	for i := range b.accounts {
		b.accounts[i].InPipeline = counts[i] > 0
	}

	history, err := b.buildHistory(opps)
	if err != nil {
		return nil, err
	}

	b.assignQuotas(opps)

	ds := &dataset.Dataset{
		GeneratedAt:        b.now().UTC(),
		Seed:               seed,
		Reps:               b.reps,
		Accounts:           b.accounts,
		Opportunities:      opps,
		Territories:        b.territories,
		OpportunityHistory: history,
	}

	b.logger.Debug("dataset generated",
		"seed", seed,
		"reps", len(ds.Reps),
		"accounts", len(ds.Accounts),
		"opportunities", len(ds.Opportunities),
		"territories", len(ds.Territories),
		"history_events", len(ds.OpportunityHistory),
		"pipeline", ds.Pipeline(),
	)
	return ds, nil
}

// buildTerritories creates one territory per industry, optionally limited
// to a seeded sample that keeps vocabulary order.
func (b *builder) buildTerritories(n int) {
	industries := b.vocab.Industries
	if n < len(industries) {
		picked := b.rand.Sample(len(industries), n)
		keep := make([]bool, len(industries))
		for _, idx := range picked {
			keep[idx] = true
		}
		var sampled []string
		for i, ind := range industries {
			if keep[i] {
				sampled = append(sampled, ind)
			}
		}
		industries = sampled
	}

	regions := b.vocab.Regions()
	names := make([]string, len(industries))
	for i, ind := range industries {
		names[i] = ind + " Territory"
	}
	names = uniqueNames(names)

	b.industries = industries
	b.territories = make([]dataset.Territory, len(industries))
	for i := range industries {
		id := i + 1
		b.territories[i] = dataset.Territory{ID: id, Name: names[i]}
		b.regions[id] = rng.Choice(b.rand, regions)
	}
}

// buildReps distributes reps round-robin over shuffled territories so each
// territory gets at least one.
func (b *builder) buildReps() {
	order := make([]int, len(b.territories))
	for i := range order {
		order[i] = i + 1
	}
	b.rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	names := make([]string, b.cfg.NumReps)
	b.reps = make([]dataset.Rep, b.cfg.NumReps)
	for i := range b.reps {
		terr := order[i%len(order)]
		region := b.regions[terr]
		b.reps[i] = dataset.Rep{
			ID:          i + 1,
			HomeState:   rng.Choice(b.rand, b.vocab.StatesIn(region)),
			Region:      region,
			TerritoryID: terr,
		}
		names[i] = rng.Choice(b.rand, b.vocab.FirstNames) + " " + rng.Choice(b.rand, b.vocab.LastNames)
		b.repsByTerr[terr] = append(b.repsByTerr[terr], i)
	}
	for i, name := range uniqueNames(names) {
		b.reps[i].Name = name
	}
}

// buildAccounts seeds one account per territory first, then lets the rest
// pick any rep. The account always inherits the rep's territory.
func (b *builder) buildAccounts() {
	seedTerr := make([]int, len(b.territories))
	for i := range seedTerr {
		seedTerr[i] = i + 1
	}
	b.rand.Shuffle(len(seedTerr), func(i, j int) { seedTerr[i], seedTerr[j] = seedTerr[j], seedTerr[i] })

	names := make([]string, b.cfg.NumAccounts)
	b.accounts = make([]dataset.Account, b.cfg.NumAccounts)
	for i := range b.accounts {
		var rep dataset.Rep
		if i < len(seedTerr) {
			rep = b.reps[rng.Choice(b.rand, b.repsByTerr[seedTerr[i]])]
		} else {
			rep = rng.Choice(b.rand, b.reps)
		}

		revenue := b.revenue()
		b.accounts[i] = dataset.Account{
			ID:            i + 1,
			AnnualRevenue: revenue,
			NumDevelopers: b.developers(revenue),
			State:         rep.HomeState,
			Industry:      b.industries[rep.TerritoryID-1],
			IsCustomer:    b.rand.Bernoulli(b.cfg.IsCustomerRate),
			RepID:         rep.ID,
			TerritoryID:   rep.TerritoryID,
		}
		names[i] = rng.Choice(b.rand, b.vocab.AccountNouns) + " " + rng.Choice(b.rand, b.vocab.AccountSuffixes)
	}
	for i, name := range uniqueNames(names) {
		b.accounts[i].Name = name
	}
}

func (b *builder) revenue() int64 {
	dollars := float64(b.cfg.RevenueScale) * b.rand.Pareto(b.cfg.ParetoAlpha)
	if dollars > float64(b.cfg.RevenueCap) {
		return b.cfg.RevenueCap
	}
	return max(1, int64(dollars))
}

func (b *builder) developers(revenue int64) int64 {
	perEmployee := b.rand.Uniform(b.cfg.RevenuePerEmployeeMin, b.cfg.RevenuePerEmployeeMax)
	pct := b.rand.Uniform(b.cfg.DeveloperPctMin, b.cfg.DeveloperPctMax)
	devs := int64(math.Round(float64(revenue) / perEmployee * pct))
	return max(1, devs)
}

func (b *builder) tam(a dataset.Account) int64 {
	return b.cfg.TAMPerDeveloper * a.NumDevelopers
}

// opportunityCounts draws a per-account count and nudges random eligible
// accounts until the total is exactly NumOpportunities. check guarantees
// the target is reachable.
func (b *builder) opportunityCounts() []int {
	lo, hi := b.cfg.OppsPerAccountMin, b.cfg.OppsPerAccountMax
	counts := make([]int, len(b.accounts))
	total := 0
	for i := range counts {
		counts[i] = b.rand.IntRange(lo, hi)
		total += counts[i]
	}

	eligible := func(ok func(c int) bool) []int {
		var idx []int
		for i, c := range counts {
			if ok(c) {
				idx = append(idx, i)
			}
		}
		return idx
	}
	for total < b.cfg.NumOpportunities {
		i := rng.Choice(b.rand, eligible(func(c int) bool { return c < hi }))
		counts[i]++
		total++
	}
	for total > b.cfg.NumOpportunities {
		i := rng.Choice(b.rand, eligible(func(c int) bool { return c > lo }))
		counts[i]--
		total--
	}
	return counts
}

// amounts draws per-account amounts bounded by account TAM and retries
// until the portfolio total lands in the pipeline range. When no attempt
// lands, the attempt closest to the target is kept.
func (b *builder) amounts(counts []int) [][]int64 {
	var best [][]int64
	bestDist := int64(math.MaxInt64)
	var total int64

	for attempt := 1; attempt <= b.cfg.AmountRetryLimit; attempt++ {
		amounts := b.drawAmounts(counts)
		amounts = b.scaleTowardTarget(amounts)

		total = sumAll(amounts)
		dist := total - b.cfg.PipelineTarget
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			best, bestDist = amounts, dist
		}
		if total >= b.cfg.PipelineMin && total <= b.cfg.PipelineMax {
			b.logger.Debug("pipeline amounts accepted", "attempt", attempt, "total", total)
			return amounts
		}
	}

	b.logger.Warn("pipeline total outside target range",
		"attempts", b.cfg.AmountRetryLimit,
		"total", sumAll(best),
		"min", b.cfg.PipelineMin,
		"max", b.cfg.PipelineMax,
	)
	return best
}

func (b *builder) drawAmounts(counts []int) [][]int64 {
	out := make([][]int64, len(b.accounts))
	for i, a := range b.accounts {
		n := counts[i]
		if n == 0 {
			continue
		}
		tam := b.tam(a)
		x := float64(tam) * b.rand.Uniform(b.cfg.CoverageMin, b.cfg.CoverageMax)
		raw := make([]int64, n)
		for j := range raw {
			raw[j] = max(1, int64(math.Round(x*b.rand.Uniform(b.cfg.AmountMultiplierMin, b.cfg.AmountMultiplierMax))))
		}
		out[i] = enforceTAM(raw, tam)
	}
	return out
}

// scaleTowardTarget multiplies every amount by one factor toward
// PipelineTarget. Scaling up stops at the factor where the tightest account
// reaches its TAM.
func (b *builder) scaleTowardTarget(amounts [][]int64) [][]int64 {
	total := sumAll(amounts)
	if total <= 0 {
		return amounts
	}

	k := float64(b.cfg.PipelineTarget) / float64(total)
	if k > 1 {
		for i, a := range b.accounts {
			acct := sum(amounts[i])
			if acct <= 0 {
				continue
			}
			k = math.Min(k, float64(b.tam(a))/float64(acct))
		}
	}
	if math.Abs(k-1) < 1e-12 {
		return amounts
	}

	out := make([][]int64, len(amounts))
	for i, acct := range amounts {
		if len(acct) == 0 {
			continue
		}
		scaled := make([]int64, len(acct))
		for j, v := range acct {
			scaled[j] = max(1, int64(math.Round(float64(v)*k)))
		}
		out[i] = enforceTAM(scaled, b.tam(b.accounts[i]))
	}
	return out
}

// enforceTAM scales amounts down to fit tam, then trims rounding overflow
// from the largest amount. Amounts never drop below 1.
func enforceTAM(amounts []int64, tam int64) []int64 {
	total := sum(amounts)
	if total <= tam {
		return amounts
	}
	factor := float64(tam) / float64(total)
	scaled := make([]int64, len(amounts))
	for i, v := range amounts {
		scaled[i] = max(1, int64(math.Round(float64(v)*factor)))
	}
	for total = sum(scaled); total > tam; total-- {
		largest := 0
		for i, v := range scaled {
			if v > scaled[largest] {
				largest = i
			}
		}
		if scaled[largest] <= 1 {
			break
		}
		scaled[largest]--
	}
	return scaled
}

func (b *builder) buildOpportunities(counts []int, amounts [][]int64) ([]dataset.Opportunity, error) {
	created := b.cfg.CreatedWindow
	if created.End.After(b.cfg.AsOf) {
		created.End = b.cfg.AsOf
	}

	var opps []dataset.Opportunity
	var names []string
	for i, a := range b.accounts {
		for j := 0; j < counts[i]; j++ {
			createdDate, err := b.rand.DateBetween(created.Start, created.End)
			if err != nil {
				return nil, &ConfigError{Field: "created_window", Message: err.Error()}
			}
			opps = append(opps, dataset.Opportunity{
				ID:          len(opps) + 1,
				Amount:      amounts[i][j],
				Stage:       rng.Choice(b.rand, b.vocab.Stages),
				CreatedDate: createdDate,
				RepID:       a.RepID,
				AccountID:   a.ID,
			})
			names = append(names, a.Name+" "+rng.Choice(b.rand, b.cfg.Products))
		}
	}
	for i, name := range uniqueNames(names) {
		opps[i].Name = name
	}

	if err := b.assignCloseDates(opps); err != nil {
		return nil, err
	}
	return opps, nil
}

// assignCloseDates leaves exactly round(n*MissingClosePct) close dates
// empty, draws exactly round(n*RecentClosePct) from the recent window and
// the rest from the future window. No close date precedes its created date.
func (b *builder) assignCloseDates(opps []dataset.Opportunity) error {
	n := len(opps)
	missing := int(math.Round(float64(n) * b.cfg.MissingClosePct))
	recent := int(math.Round(float64(n) * b.cfg.RecentClosePct))
	if missing+recent > n {
		recent = n - missing
	}

	kind := make([]byte, n)
	for pos, idx := range b.rand.Sample(n, missing+recent) {
		if pos < missing {
			kind[idx] = 'm'
		} else {
			kind[idx] = 'r'
		}
	}

	for i := range opps {
		window := b.cfg.FutureCloseWindow
		switch kind[i] {
		case 'm':
			continue
		case 'r':
			window = b.cfg.RecentCloseWindow
		}
		d, err := b.rand.DateBetween(window.Start, window.End)
		if err != nil {
			return &ConfigError{Field: "close_window", Message: err.Error()}
		}
		if d.Before(opps[i].CreatedDate) {
			d = opps[i].CreatedDate
		}
		opps[i].CloseDate = &d
	}
	return nil
}

type draftEvent struct {
	field    string
	oldValue *string
	newValue string
	date     civil.Date
}

// buildHistory gives each opportunity 0-2 stage changes ending at its
// current stage and, for a SlipRate share of dated opportunities, 1-3
// closeDate postponements ending at its current close date. Event ids are
// assigned after sorting each opportunity's events by date.
func (b *builder) buildHistory(opps []dataset.Opportunity) ([]dataset.HistoryEvent, error) {
	stageIndex := make(map[string]int, len(b.vocab.Stages))
	for i, s := range b.vocab.Stages {
		stageIndex[s] = i
	}

	var history []dataset.HistoryEvent
	for _, o := range opps {
		start := b.cfg.HistoryWindow.Start
		if o.CreatedDate.After(start) {
			start = o.CreatedDate
		}
		end := b.cfg.HistoryWindow.End
		if end.After(b.cfg.AsOf) {
			end = b.cfg.AsOf
		}

		stageChanges := b.rand.IntRange(0, 2)
		slips := 0
		if o.CloseDate != nil && b.rand.Bernoulli(b.cfg.SlipRate) {
			slips = b.rand.IntRange(1, 3)
		}
		if end.Before(start) {
			continue
		}

		var drafts []draftEvent
		current := stageIndex[o.Stage]
		first := max(0, current-stageChanges+1)
		for idx := first; stageChanges > 0 && idx <= current; idx++ {
			ev := draftEvent{field: dataset.FieldStage, newValue: b.vocab.Stages[idx]}
			if idx > 0 {
				prev := b.vocab.Stages[idx-1]
				ev.oldValue = &prev
			}
			drafts = append(drafts, ev)
		}

		if slips > 0 {
			values := make([]civil.Date, slips+1)
			values[slips] = *o.CloseDate
			for k := slips - 1; k >= 0; k-- {
				values[k] = values[k+1].AddDays(-b.rand.IntRange(7, 45))
			}
			for k := 1; k <= slips; k++ {
				old := values[k-1].String()
				drafts = append(drafts, draftEvent{
					field:    dataset.FieldCloseDate,
					oldValue: &old,
					newValue: values[k].String(),
				})
			}
		}

		dates := make([]civil.Date, len(drafts))
		for i := range dates {
			d, err := b.rand.DateBetween(start, end)
			if err != nil {
				return nil, &ConfigError{Field: "history_window", Message: err.Error()}
			}
			dates[i] = d
		}
		sortDates(dates)

		// Dates go out in ascending order, so each field's chain stays in
		// order.
		for i, ev := range drafts {
			history = append(history, dataset.HistoryEvent{
				ID:            len(history) + 1,
				OpportunityID: o.ID,
				FieldName:     ev.field,
				OldValue:      ev.oldValue,
				NewValue:      ev.newValue,
				ChangeDate:    dates[i],
			})
		}
	}
	return history, nil
}

func sortDates(dates []civil.Date) {
	slices.SortFunc(dates, func(a, b civil.Date) int {
		return a.DaysSince(b)
	})
}

// assignQuotas ties each rep's quota to its share of territory pipeline.
func (b *builder) assignQuotas(opps []dataset.Opportunity) {
	terrPipeline := make(map[int]int64)
	for _, o := range opps {
		terrPipeline[b.accounts[o.AccountID-1].TerritoryID] += o.Amount
	}
	for terr, reps := range b.repsByTerr {
		perRep := float64(terrPipeline[terr]) / float64(len(reps))
		quota := int64(math.Round(perRep * b.cfg.QuotaMultiplier))
		quota = min(max(quota, b.cfg.QuotaMin), b.cfg.QuotaMax)
		for _, i := range reps {
			b.reps[i].Quota = quota
		}
	}
}

// uniqueNames suffixes repeats with " (n)", n starting at 2, in order.
func uniqueNames(names []string) []string {
	out := make([]string, len(names))
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		candidate := name
		for n := 2; seen[candidate]; n++ {
			candidate = fmt.Sprintf("%s (%d)", name, n)
		}
		seen[candidate] = true
		out[i] = candidate
	}
	return out
}

func sum(xs []int64) int64 {
	var t int64
	for _, x := range xs {
		t += x
	}
	return t
}

func sumAll(xss [][]int64) int64 {
	var t int64
	for _, xs := range xss {
		t += sum(xs)
	}
	return t
}
