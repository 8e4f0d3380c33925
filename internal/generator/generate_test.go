package generator

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/revops/internal/dataset"
	"github.com/roach88/revops/internal/vocab"
)

var fixedNow = time.Date(2026, 2, 18, 9, 30, 0, 0, time.UTC)

func testVocab(t *testing.T) *vocab.Vocabulary {
	t.Helper()
	v, err := vocab.Default()
	require.NoError(t, err)
	return v
}

func generate(t *testing.T, cfg Config, seed int64) *dataset.Dataset {
	t.Helper()
	ds, err := Generate(cfg, testVocab(t), seed,
		WithNow(func() time.Time { return fixedNow }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	return ds
}

func TestGenerate_DefaultCounts(t *testing.T) {
	cfg := DefaultConfig()
	ds := generate(t, cfg, 123)

	assert.Len(t, ds.Reps, 30)
	assert.Len(t, ds.Accounts, 70)
	assert.Len(t, ds.Opportunities, 100)
	assert.Equal(t, int64(123), ds.Seed)
	assert.Equal(t, fixedNow, ds.GeneratedAt)

	industries := map[string]bool{}
	for _, a := range ds.Accounts {
		industries[a.Industry] = true
	}
	assert.Len(t, ds.Territories, len(industries),
		"territory count must equal the number of distinct account industries")

	require.NoError(t, Validate(ds, cfg))
}

func TestGenerate_Deterministic(t *testing.T) {
	cfg := DefaultConfig()
	a := generate(t, cfg, 7)
	b := generate(t, cfg, 7)

	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("same seed produced different datasets (-first +second):\n%s", diff)
	}

	fa, err := dataset.Fingerprint(a)
	require.NoError(t, err)
	fb, err := dataset.Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
}

func TestGenerate_SeedsDiffer(t *testing.T) {
	cfg := DefaultConfig()
	fa, err := dataset.Fingerprint(generate(t, cfg, 1))
	require.NoError(t, err)
	fb, err := dataset.Fingerprint(generate(t, cfg, 2))
	require.NoError(t, err)
	assert.NotEqual(t, fa, fb)
}

func TestGenerate_ValidAcrossSeeds(t *testing.T) {
	cfg := DefaultConfig()
	v := testVocab(t)
	for seed := int64(0); seed < 25; seed++ {
		ds := generate(t, cfg, seed)
		assert.NoError(t, Validate(ds, cfg), "seed %d", seed)
		assert.NoError(t, ValidateRegions(ds, v), "seed %d", seed)

		regions := make(map[int]string)
		for _, r := range ds.Reps {
			assert.Contains(t, v.StatesIn(r.Region), r.HomeState, "seed %d rep %d", seed, r.ID)
			if prev, ok := regions[r.TerritoryID]; ok {
				assert.Equal(t, prev, r.Region, "seed %d territory %d", seed, r.TerritoryID)
			}
			regions[r.TerritoryID] = r.Region
		}
	}
}

func TestGenerate_CloseDateShares(t *testing.T) {
	cfg := DefaultConfig()
	ds := generate(t, cfg, 99)

	missing, recent := 0, 0
	for _, o := range ds.Opportunities {
		switch {
		case o.CloseDate == nil:
			missing++
		case cfg.RecentCloseWindow.Contains(*o.CloseDate):
			recent++
		default:
			assert.True(t, cfg.FutureCloseWindow.Contains(*o.CloseDate),
				"opportunity %d closeDate %s outside both windows", o.ID, o.CloseDate)
		}
	}
	assert.Equal(t, 5, missing)
	assert.Equal(t, 10, recent)
}

func TestGenerate_DatesRespectAsOf(t *testing.T) {
	cfg := DefaultConfig()
	ds := generate(t, cfg, 5)

	created := map[int]civil.Date{}
	for _, o := range ds.Opportunities {
		assert.False(t, o.CreatedDate.After(cfg.AsOf), "opportunity %d created after as-of", o.ID)
		created[o.ID] = o.CreatedDate
	}
	for _, ev := range ds.OpportunityHistory {
		assert.False(t, ev.ChangeDate.Before(created[ev.OpportunityID]))
		assert.False(t, ev.ChangeDate.After(cfg.AsOf))
	}
}

func TestGenerate_HistoryChains(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SlipRate = 1
	ds := generate(t, cfg, 11)
	require.NotEmpty(t, ds.OpportunityHistory)

	idx := dataset.NewIndex(ds)
	sawSlip := false
	for _, o := range ds.Opportunities {
		var lastStage, lastClose string
		for _, ev := range idx.History[o.ID] {
			switch ev.FieldName {
			case dataset.FieldStage:
				lastStage = ev.NewValue
			case dataset.FieldCloseDate:
				require.NotNil(t, ev.OldValue)
				assert.Less(t, *ev.OldValue, ev.NewValue, "closeDate events must postpone")
				lastClose = ev.NewValue
				sawSlip = true
			}
		}
		if lastStage != "" {
			assert.Equal(t, o.Stage, lastStage, "stage chain must end at the current stage")
		}
		if lastClose != "" {
			require.NotNil(t, o.CloseDate)
			assert.Equal(t, o.CloseDate.String(), lastClose)
		}
	}
	assert.True(t, sawSlip)
}

func TestGenerate_TerritorySample(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Territories = 4
	ds := generate(t, cfg, 3)

	require.Len(t, ds.Territories, 4)
	for i, terr := range ds.Territories {
		assert.Equal(t, i+1, terr.ID)
		assert.Contains(t, terr.Name, " Territory")
	}
	require.NoError(t, Validate(ds, cfg))
}

func TestGenerate_ConcurrentSameSeed(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := DefaultConfig()
	v := testVocab(t)

	results := make([]*dataset.Dataset, 4)
	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			ds, err := Generate(cfg, v, 2024,
				WithNow(func() time.Time { return fixedNow }),
				WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			)
			results[i] = ds
			return err
		})
	}
	require.NoError(t, g.Wait())

	for i := 1; i < len(results); i++ {
		if diff := cmp.Diff(results[0], results[i]); diff != "" {
			t.Fatalf("concurrent generation %d diverged:\n%s", i, diff)
		}
	}
}

func TestGenerate_ConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"too few reps", func(c *Config) { c.NumReps = 3 }, "num_reps"},
		{"too few accounts", func(c *Config) { c.NumAccounts = 5 }, "num_accounts"},
		{"zero opportunities", func(c *Config) { c.NumOpportunities = 0 }, "num_opportunities"},
		{"unreachable opportunities", func(c *Config) { c.NumOpportunities = 141 }, "num_opportunities"},
		{"inverted created window", func(c *Config) {
			c.CreatedWindow = Window{Start: date(2026, 1, 1), End: date(2025, 1, 1)}
		}, "created_window"},
		{"history after as-of", func(c *Config) {
			c.HistoryWindow = Window{Start: date(2026, 3, 1), End: date(2026, 4, 1)}
		}, "history_window"},
		{"inverted coverage", func(c *Config) { c.CoverageMin, c.CoverageMax = 0.9, 0.1 }, "coverage"},
		{"bad rate", func(c *Config) { c.MissingClosePct = 1.5 }, "missing_close_pct"},
		{"no products", func(c *Config) { c.Products = nil }, "products"},
		{"territory sample too big", func(c *Config) { c.Territories = 99 }, "territories"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			ds, err := Generate(cfg, testVocab(t), 1)
			require.Error(t, err)
			assert.Nil(t, ds)
			assert.True(t, IsConfigError(err))

			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestGenerate_EmptyVocabulary(t *testing.T) {
	_, err := Generate(DefaultConfig(), &vocab.Vocabulary{}, 1)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestGenerate_DuplicateIndustry(t *testing.T) {
	v := testVocab(t)
	v.Industries = append(v.Industries, v.Industries[0])

	_, err := Generate(DefaultConfig(), v, 1)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), "duplicate entry")
}

func TestUniqueNames(t *testing.T) {
	got := uniqueNames([]string{"Oak Labs", "Pine Co", "Oak Labs", "Oak Labs"})
	assert.Equal(t, []string{"Oak Labs", "Pine Co", "Oak Labs (2)", "Oak Labs (3)"}, got)
}

func TestEnforceTAM(t *testing.T) {
	assert.Equal(t, []int64{10, 20}, enforceTAM([]int64{10, 20}, 100))

	got := enforceTAM([]int64{300, 300, 400}, 100)
	assert.LessOrEqual(t, sum(got), int64(100))
	for _, v := range got {
		assert.GreaterOrEqual(t, v, int64(1))
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
num_reps: 12
num_accounts: 40
num_opportunities: 50
created_window:
  start: 2025-01-01
  end: 2025-06-30
`))
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.NumReps)
	assert.Equal(t, date(2025, 1, 1), cfg.CreatedWindow.Start)
	assert.Equal(t, DefaultConfig().QuotaMax, cfg.QuotaMax, "omitted keys keep defaults")

	ds := generate(t, cfg, 8)
	require.NoError(t, Validate(ds, cfg))
}

func TestParseConfig_UnknownKey(t *testing.T) {
	_, err := ParseConfig([]byte("num_widgets: 3\n"))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestParseConfig_Empty(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
