package generator

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"gopkg.in/yaml.v3"

	"github.com/roach88/revops/internal/vocab"
)

// Window is an inclusive date range.
type Window struct {
	Start civil.Date `yaml:"start"`
	End   civil.Date `yaml:"end"`
}

// Contains reports whether d falls inside w.
func (w Window) Contains(d civil.Date) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s", w.Start, w.End)
}

// Config holds every count, window and numeric range used by Generate.
// Zero values are not meaningful; start from DefaultConfig.
type Config struct {
	NumReps          int `yaml:"num_reps"`
	NumAccounts      int `yaml:"num_accounts"`
	NumOpportunities int `yaml:"num_opportunities"`

	// Territories limits generation to a seeded sample of this many
	// industries. 0 uses every industry in the vocabulary.
	Territories int `yaml:"territories"`

	ParetoAlpha           float64 `yaml:"pareto_alpha"`
	RevenueScale          int64   `yaml:"revenue_scale"`
	RevenueCap            int64   `yaml:"revenue_cap"`
	RevenuePerEmployeeMin float64 `yaml:"revenue_per_employee_min"`
	RevenuePerEmployeeMax float64 `yaml:"revenue_per_employee_max"`
	DeveloperPctMin       float64 `yaml:"developer_pct_min"`
	DeveloperPctMax       float64 `yaml:"developer_pct_max"`
	IsCustomerRate        float64 `yaml:"is_customer_rate"`

	Products            []string `yaml:"products"`
	OppsPerAccountMin   int      `yaml:"opps_per_account_min"`
	OppsPerAccountMax   int      `yaml:"opps_per_account_max"`
	TAMPerDeveloper     int64    `yaml:"tam_per_developer"`
	CoverageMin         float64  `yaml:"coverage_min"`
	CoverageMax         float64  `yaml:"coverage_max"`
	AmountMultiplierMin float64  `yaml:"amount_multiplier_min"`
	AmountMultiplierMax float64  `yaml:"amount_multiplier_max"`

	PipelineTarget   int64 `yaml:"pipeline_target"`
	PipelineMin      int64 `yaml:"pipeline_min"`
	PipelineMax      int64 `yaml:"pipeline_max"`
	AmountRetryLimit int   `yaml:"amount_retry_limit"`

	// AsOf is the ceiling for every generated date except future close
	// dates.
	AsOf              civil.Date `yaml:"as_of"`
	CreatedWindow     Window     `yaml:"created_window"`
	RecentCloseWindow Window     `yaml:"recent_close_window"`
	FutureCloseWindow Window     `yaml:"future_close_window"`
	HistoryWindow     Window     `yaml:"history_window"`
	RecentClosePct    float64    `yaml:"recent_close_pct"`
	MissingClosePct   float64    `yaml:"missing_close_pct"`

	// SlipRate is the share of dated opportunities that get closeDate
	// postponement history.
	SlipRate float64 `yaml:"slip_rate"`

	QuotaMultiplier float64 `yaml:"quota_multiplier"`
	QuotaMin        int64   `yaml:"quota_min"`
	QuotaMax        int64   `yaml:"quota_max"`
}

func date(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

// DefaultConfig returns the stock 30 rep / 70 account / 100 opportunity
// configuration with an as-of date of 2026-02-18.
func DefaultConfig() Config {
	return Config{
		NumReps:          30,
		NumAccounts:      70,
		NumOpportunities: 100,

		ParetoAlpha:           1.0,
		RevenueScale:          75_000_000,
		RevenueCap:            700_000_000_000,
		RevenuePerEmployeeMin: 20_000,
		RevenuePerEmployeeMax: 1_000_000,
		DeveloperPctMin:       0.05,
		DeveloperPctMax:       0.50,
		IsCustomerRate:        0.30,

		Products:            []string{"Atlas", "Relay"},
		OppsPerAccountMin:   0,
		OppsPerAccountMax:   2,
		TAMPerDeveloper:     1000,
		CoverageMin:         0.50,
		CoverageMax:         1.00,
		AmountMultiplierMin: 0.50,
		AmountMultiplierMax: 2.00,

		PipelineTarget:   10_000_000,
		PipelineMin:      9_000_000,
		PipelineMax:      13_000_000,
		AmountRetryLimit: 20,

		AsOf:              date(2026, 2, 18),
		CreatedWindow:     Window{Start: date(2024, 7, 1), End: date(2026, 2, 18)},
		RecentCloseWindow: Window{Start: date(2025, 10, 1), End: date(2026, 2, 18)},
		FutureCloseWindow: Window{Start: date(2026, 2, 19), End: date(2026, 9, 30)},
		HistoryWindow:     Window{Start: date(2025, 10, 1), End: date(2026, 2, 18)},
		RecentClosePct:    0.10,
		MissingClosePct:   0.05,
		SlipRate:          0.25,

		QuotaMultiplier: 0.9,
		QuotaMin:        200_000,
		QuotaMax:        1_500_000,
	}
}

// LoadConfig reads a YAML file over DefaultConfig. Keys absent from the
// file keep their defaults; unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read generator config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over DefaultConfig.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, &ConfigError{Field: "yaml", Message: err.Error()}
	}
	return cfg, nil
}

// ConfigError reports a configuration that cannot produce a consistent
// dataset. It is always returned before any entity is built.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid generator config: %s: %s", e.Field, e.Message)
}

// IsConfigError reports whether err wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// check validates cfg against v and returns the territory count.
func (cfg Config) check(v *vocab.Vocabulary) (int, error) {
	if v == nil {
		return 0, &ConfigError{Field: "vocabulary", Message: "missing"}
	}
	if err := v.Validate(); err != nil {
		return 0, &ConfigError{Field: "vocabulary", Message: err.Error()}
	}
	if len(v.Regions()) == 0 {
		return 0, &ConfigError{Field: "vocabulary", Message: "no regions"}
	}

	positive := []struct {
		field string
		n     int
	}{
		{"num_reps", cfg.NumReps},
		{"num_accounts", cfg.NumAccounts},
		{"num_opportunities", cfg.NumOpportunities},
		{"amount_retry_limit", cfg.AmountRetryLimit},
	}
	for _, p := range positive {
		if p.n <= 0 {
			return 0, &ConfigError{Field: p.field, Message: fmt.Sprintf("must be positive, got %d", p.n)}
		}
	}

	territories := len(v.Industries)
	if cfg.Territories < 0 || cfg.Territories > territories {
		return 0, &ConfigError{
			Field:   "territories",
			Message: fmt.Sprintf("must be in [0, %d], got %d", territories, cfg.Territories),
		}
	}
	if cfg.Territories > 0 {
		territories = cfg.Territories
	}
	if cfg.NumReps < territories {
		return 0, &ConfigError{
			Field:   "num_reps",
			Message: fmt.Sprintf("%d reps cannot cover %d territories", cfg.NumReps, territories),
		}
	}
	if cfg.NumAccounts < territories {
		return 0, &ConfigError{
			Field:   "num_accounts",
			Message: fmt.Sprintf("%d accounts cannot populate %d territories", cfg.NumAccounts, territories),
		}
	}

	if cfg.OppsPerAccountMin < 0 || cfg.OppsPerAccountMax < cfg.OppsPerAccountMin {
		return 0, &ConfigError{
			Field:   "opps_per_account",
			Message: fmt.Sprintf("invalid range [%d, %d]", cfg.OppsPerAccountMin, cfg.OppsPerAccountMax),
		}
	}
	if lo, hi := cfg.NumAccounts*cfg.OppsPerAccountMin, cfg.NumAccounts*cfg.OppsPerAccountMax; cfg.NumOpportunities < lo || cfg.NumOpportunities > hi {
		return 0, &ConfigError{
			Field:   "num_opportunities",
			Message: fmt.Sprintf("%d not reachable with %d accounts (possible range [%d, %d])", cfg.NumOpportunities, cfg.NumAccounts, lo, hi),
		}
	}

	ranges := []struct {
		field  string
		lo, hi float64
	}{
		{"revenue_per_employee", cfg.RevenuePerEmployeeMin, cfg.RevenuePerEmployeeMax},
		{"developer_pct", cfg.DeveloperPctMin, cfg.DeveloperPctMax},
		{"coverage", cfg.CoverageMin, cfg.CoverageMax},
		{"amount_multiplier", cfg.AmountMultiplierMin, cfg.AmountMultiplierMax},
		{"pipeline", float64(cfg.PipelineMin), float64(cfg.PipelineMax)},
		{"quota", float64(cfg.QuotaMin), float64(cfg.QuotaMax)},
	}
	for _, r := range ranges {
		if r.lo <= 0 || r.hi < r.lo {
			return 0, &ConfigError{Field: r.field, Message: fmt.Sprintf("invalid range [%v, %v]", r.lo, r.hi)}
		}
	}

	rates := []struct {
		field string
		p     float64
	}{
		{"is_customer_rate", cfg.IsCustomerRate},
		{"recent_close_pct", cfg.RecentClosePct},
		{"missing_close_pct", cfg.MissingClosePct},
		{"slip_rate", cfg.SlipRate},
	}
	for _, r := range rates {
		if r.p < 0 || r.p > 1 {
			return 0, &ConfigError{Field: r.field, Message: fmt.Sprintf("must be in [0, 1], got %v", r.p)}
		}
	}
	if cfg.RecentClosePct+cfg.MissingClosePct > 1 {
		return 0, &ConfigError{Field: "recent_close_pct", Message: "recent and missing close shares exceed 1"}
	}

	if cfg.ParetoAlpha <= 0 {
		return 0, &ConfigError{Field: "pareto_alpha", Message: "must be positive"}
	}
	if cfg.RevenueScale <= 0 || cfg.RevenueCap < cfg.RevenueScale {
		return 0, &ConfigError{Field: "revenue", Message: fmt.Sprintf("invalid scale %d / cap %d", cfg.RevenueScale, cfg.RevenueCap)}
	}
	if cfg.TAMPerDeveloper <= 0 {
		return 0, &ConfigError{Field: "tam_per_developer", Message: "must be positive"}
	}
	if cfg.QuotaMultiplier <= 0 {
		return 0, &ConfigError{Field: "quota_multiplier", Message: "must be positive"}
	}
	if len(cfg.Products) == 0 {
		return 0, &ConfigError{Field: "products", Message: "at least one product is required"}
	}

	if cfg.AsOf == (civil.Date{}) || !cfg.AsOf.IsValid() {
		return 0, &ConfigError{Field: "as_of", Message: "must be a valid date"}
	}
	windows := []struct {
		field   string
		w       Window
		ceiling bool
	}{
		{"created_window", cfg.CreatedWindow, true},
		{"recent_close_window", cfg.RecentCloseWindow, true},
		{"future_close_window", cfg.FutureCloseWindow, false},
		{"history_window", cfg.HistoryWindow, true},
	}
	for _, w := range windows {
		if !w.w.Start.IsValid() || !w.w.End.IsValid() {
			return 0, &ConfigError{Field: w.field, Message: "invalid date"}
		}
		if w.w.End.Before(w.w.Start) {
			return 0, &ConfigError{Field: w.field, Message: fmt.Sprintf("inverted window %s", w.w)}
		}
		if w.ceiling && w.w.Start.After(cfg.AsOf) {
			return 0, &ConfigError{Field: w.field, Message: fmt.Sprintf("window %s starts after as_of %s", w.w, cfg.AsOf)}
		}
	}
	return territories, nil
}
