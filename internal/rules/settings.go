package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

//go:embed settings.cue
var settingsSchema string

// Thresholds are the three cut points used by Classify. For rules that
// fire on low values (ClassifyBelow) the order is reversed.
type Thresholds struct {
	Low    float64
	Medium float64
	High   float64
}

// DayThresholds is a day-count rule's configuration.
type DayThresholds struct {
	LowDays    int `json:"low_days"`
	MediumDays int `json:"medium_days"`
	HighDays   int `json:"high_days"`
}

func (d DayThresholds) Thresholds() Thresholds {
	return Thresholds{Low: float64(d.LowDays), Medium: float64(d.MediumDays), High: float64(d.HighDays)}
}

// AmountOutlierSettings bounds a single opportunity amount on both sides.
type AmountOutlierSettings struct {
	HighLow    int64 `json:"high_low_threshold"`
	HighMedium int64 `json:"high_medium_threshold"`
	HighHigh   int64 `json:"high_high_threshold"`
	LowLow     int64 `json:"low_low_threshold"`
	LowMedium  int64 `json:"low_medium_threshold"`
	LowHigh    int64 `json:"low_high_threshold"`
}

func (a AmountOutlierSettings) Above() Thresholds {
	return Thresholds{Low: float64(a.HighLow), Medium: float64(a.HighMedium), High: float64(a.HighHigh)}
}

func (a AmountOutlierSettings) Below() Thresholds {
	return Thresholds{Low: float64(a.LowLow), Medium: float64(a.LowMedium), High: float64(a.LowHigh)}
}

// SlippingSettings configures the close-date postponement rule.
type SlippingSettings struct {
	LateStage      int `json:"late_stage"`
	HistoryWindow  int `json:"history_window"`
	LowSeverity    int `json:"low_severity"`
	MediumSeverity int `json:"medium_severity"`
	HighSeverity   int `json:"high_severity"`
}

func (s SlippingSettings) Thresholds() Thresholds {
	return Thresholds{Low: float64(s.LowSeverity), Medium: float64(s.MediumSeverity), High: float64(s.HighSeverity)}
}

// TAMSettings configures under-covered TAM. Coverage is pipeline as a
// percentage of numDevelopers × RevenuePerDeveloper × CoveragePercentage/100;
// the rule classifies the shortfall 100 − coverage.
type TAMSettings struct {
	RevenuePerDeveloper int     `json:"revenue_per_developer"`
	CoveragePercentage  float64 `json:"coverage_percentage"`
	ShortfallLowPct     float64 `json:"shortfall_low_pct"`
	ShortfallMediumPct  float64 `json:"shortfall_medium_pct"`
	ShortfallHighPct    float64 `json:"shortfall_high_pct"`
}

func (t TAMSettings) Thresholds() Thresholds {
	return Thresholds{Low: t.ShortfallLowPct, Medium: t.ShortfallMediumPct, High: t.ShortfallHighPct}
}

// CountThresholds are integer severity cut points.
type CountThresholds struct {
	LowSeverity    int64 `json:"low_severity"`
	MediumSeverity int64 `json:"medium_severity"`
	HighSeverity   int64 `json:"high_severity"`
}

func (c CountThresholds) Thresholds() Thresholds {
	return Thresholds{Low: float64(c.LowSeverity), Medium: float64(c.MediumSeverity), High: float64(c.HighSeverity)}
}

// PercentThresholds are percentage cut points.
type PercentThresholds struct {
	LowPct    float64 `json:"low_pct"`
	MediumPct float64 `json:"medium_pct"`
	HighPct   float64 `json:"high_pct"`
}

func (p PercentThresholds) Thresholds() Thresholds {
	return Thresholds{Low: p.LowPct, Medium: p.MediumPct, High: p.HighPct}
}

// RepEarlyStageSettings only applies to reps with at least MinOpps
// opportunities.
type RepEarlyStageSettings struct {
	MinOpps   int     `json:"min_opps"`
	LowPct    float64 `json:"low_pct"`
	MediumPct float64 `json:"medium_pct"`
	HighPct   float64 `json:"high_pct"`
}

func (r RepEarlyStageSettings) Thresholds() Thresholds {
	return Thresholds{Low: r.LowPct, Medium: r.MediumPct, High: r.HighPct}
}

// StageSettings describes the stage vocabulary. Stages are "<n> - <label>";
// n <= EarlyStageMax counts as early.
type StageSettings struct {
	EarlyStageMax int `json:"early_stage_max"`
}

// Toggles switches the built-in rules on and off.
type Toggles struct {
	Enabled RuleToggles `json:"enabled"`
}

// RuleToggles holds one switch per built-in rule. It is a plain struct so
// that copies of a Settings never share toggles.
type RuleToggles struct {
	StaleOpportunity    bool `json:"stale_opportunity"`
	MissingCloseDate    bool `json:"missing_close_date"`
	AmountOutlier       bool `json:"amount_outlier"`
	Slipping            bool `json:"slipping"`
	NoOpportunities     bool `json:"no_opportunities"`
	UndercoveredTAM     bool `json:"undercovered_tam"`
	RepOverload         bool `json:"rep_overload"`
	PipelineImbalance   bool `json:"pipeline_imbalance"`
	RepEarlyStage       bool `json:"rep_early_stage_concentration"`
	DuplicateAccounts   bool `json:"duplicate_accounts"`
	PortfolioEarlyStage bool `json:"portfolio_early_stage_concentration"`
}

// field returns the switch for id, or nil for ids that are not built in.
func (t *RuleToggles) field(id string) *bool {
	switch id {
	case RuleStaleOpportunity:
		return &t.StaleOpportunity
	case RuleMissingCloseDate:
		return &t.MissingCloseDate
	case RuleAmountOutlier:
		return &t.AmountOutlier
	case RuleSlipping:
		return &t.Slipping
	case RuleNoOpportunities:
		return &t.NoOpportunities
	case RuleUndercoveredTAM:
		return &t.UndercoveredTAM
	case RuleRepOverload:
		return &t.RepOverload
	case RulePipelineImbalance:
		return &t.PipelineImbalance
	case RuleRepEarlyStage:
		return &t.RepEarlyStage
	case RuleDuplicateAccounts:
		return &t.DuplicateAccounts
	case RulePortfolioEarlyStage:
		return &t.PortfolioEarlyStage
	}
	return nil
}

// Set switches a built-in rule. It reports false for unknown ids.
func (t *RuleToggles) Set(id string, on bool) bool {
	f := t.field(id)
	if f == nil {
		return false
	}
	*f = on
	return true
}

// Settings is the validated rule configuration. Build it with
// DefaultSettings, LoadSettings, ParseSettings or SettingsFromMap.
type Settings struct {
	StaleOpportunity    DayThresholds         `json:"stale_opportunity"`
	MissingCloseDate    DayThresholds         `json:"missing_close_date"`
	AmountOutlier       AmountOutlierSettings `json:"amount_outlier"`
	Slipping            SlippingSettings      `json:"slipping"`
	TAM                 TAMSettings           `json:"tam"`
	RepOverload         CountThresholds       `json:"rep_overload"`
	PipelineImbalance   CountThresholds       `json:"pipeline_imbalance"`
	RepEarlyStage       RepEarlyStageSettings `json:"rep_early_stage_concentration"`
	PortfolioEarlyStage PercentThresholds     `json:"portfolio_early_stage_concentration"`
	Stages              StageSettings         `json:"stages"`
	Rules               Toggles               `json:"rules"`
}

// Enabled reports whether the rule with id should run. Rules registered
// outside the built-in set have no switch and always run.
func (s Settings) Enabled(id string) bool {
	if f := s.Rules.Enabled.field(id); f != nil {
		return *f
	}
	return true
}

// DefaultSettings returns the schema defaults.
func DefaultSettings() Settings {
	var enabled RuleToggles
	for _, id := range DefaultRuleIDs {
		enabled.Set(id, true)
	}
	return Settings{
		StaleOpportunity: DayThresholds{LowDays: 30, MediumDays: 60, HighDays: 90},
		MissingCloseDate: DayThresholds{LowDays: 30, MediumDays: 60, HighDays: 90},
		AmountOutlier: AmountOutlierSettings{
			HighLow: 300_000, HighMedium: 600_000, HighHigh: 1_000_000,
			LowLow: 60_000, LowMedium: 30_000, LowHigh: 20_000,
		},
		Slipping: SlippingSettings{LateStage: 4, HistoryWindow: 5, LowSeverity: 0, MediumSeverity: 1, HighSeverity: 2},
		TAM: TAMSettings{
			RevenuePerDeveloper: 1000, CoveragePercentage: 50,
			ShortfallLowPct: 40, ShortfallMediumPct: 50, ShortfallHighPct: 60,
		},
		RepOverload:         CountThresholds{LowSeverity: 5, MediumSeverity: 9, HighSeverity: 14},
		PipelineImbalance:   CountThresholds{LowSeverity: 500_000, MediumSeverity: 600_000, HighSeverity: 800_000},
		RepEarlyStage:       RepEarlyStageSettings{MinOpps: 10, LowPct: 35, MediumPct: 45, HighPct: 60},
		PortfolioEarlyStage: PercentThresholds{LowPct: 25, MediumPct: 35, HighPct: 50},
		Stages:              StageSettings{EarlyStageMax: 1},
		Rules:               Toggles{Enabled: enabled},
	}
}

// SettingsError reports an invalid settings key.
type SettingsError struct {
	Key     string
	Message string
	Pos     token.Pos
}

func (e *SettingsError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Key, e.Message)
	}
	return fmt.Sprintf("settings: %s: %s", e.Key, e.Message)
}

// IsSettingsError returns true if err is or wraps a SettingsError.
func IsSettingsError(err error) bool {
	var se *SettingsError
	return errors.As(err, &se)
}

// LoadSettings reads a YAML settings file.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	return ParseSettings(data)
}

// ParseSettings decodes YAML settings. Nested mappings and dotted keys
// ("stale_opportunity.low_days: 10") may be mixed. Empty input yields
// DefaultSettings.
func ParseSettings(data []byte) (Settings, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Settings{}, &SettingsError{Key: "yaml", Message: err.Error()}
	}
	return SettingsFromMap(raw)
}

// SettingsFromMap validates a key/value map against the schema. Keys may be
// dotted paths, e.g. "rules.enabled.slipping".
func SettingsFromMap(m map[string]any) (Settings, error) {
	tree, err := expandKeys(m)
	if err != nil {
		return Settings{}, err
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(settingsSchema, cue.Filename("settings.cue"))
	if err := schema.Err(); err != nil {
		return Settings{}, fmt.Errorf("compile settings schema: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Settings")).Unify(ctx.Encode(tree))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Settings{}, formatCUEError(err)
	}

	var s Settings
	if err := v.Decode(&s); err != nil {
		return Settings{}, formatCUEError(err)
	}
	if err := s.checkOrder(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// expandKeys turns dotted keys into nested maps and merges them with any
// nested mappings already present.
func expandKeys(m map[string]any) (map[string]any, error) {
	out := map[string]any{}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := insert(out, k, strings.Split(k, "."), m[k]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func insert(dst map[string]any, full string, path []string, val any) error {
	head := path[0]
	if head == "" {
		return &SettingsError{Key: full, Message: "empty path segment"}
	}

	if len(path) > 1 {
		val = map[string]any{strings.Join(path[1:], "."): val}
	}

	if nested, ok := val.(map[string]any); ok {
		child, exists := dst[head]
		if !exists {
			child = map[string]any{}
			dst[head] = child
		}
		childMap, ok := child.(map[string]any)
		if !ok {
			return &SettingsError{Key: full, Message: "conflicts with a scalar value"}
		}
		for k, v := range nested {
			if err := insert(childMap, full, strings.Split(k, "."), v); err != nil {
				return err
			}
		}
		return nil
	}

	if _, exists := dst[head]; exists {
		return &SettingsError{Key: full, Message: "set more than once"}
	}
	dst[head] = val
	return nil
}

// checkOrder enforces low < medium < high for every threshold group.
// Amount outlier's low side runs the other way.
func (s Settings) checkOrder() error {
	groups := []struct {
		key string
		t   Thresholds
	}{
		{"stale_opportunity", s.StaleOpportunity.Thresholds()},
		{"missing_close_date", s.MissingCloseDate.Thresholds()},
		{"amount_outlier.high", s.AmountOutlier.Above()},
		{"slipping", s.Slipping.Thresholds()},
		{"tam", s.TAM.Thresholds()},
		{"rep_overload", s.RepOverload.Thresholds()},
		{"pipeline_imbalance", s.PipelineImbalance.Thresholds()},
		{"rep_early_stage_concentration", s.RepEarlyStage.Thresholds()},
		{"portfolio_early_stage_concentration", s.PortfolioEarlyStage.Thresholds()},
	}
	for _, g := range groups {
		if !(g.t.Low < g.t.Medium && g.t.Medium < g.t.High) {
			return &SettingsError{
				Key:     g.key,
				Message: fmt.Sprintf("thresholds must ascend (low %g < medium %g < high %g)", g.t.Low, g.t.Medium, g.t.High),
			}
		}
	}

	below := s.AmountOutlier.Below()
	if !(below.Low > below.Medium && below.Medium > below.High) {
		return &SettingsError{
			Key:     "amount_outlier.low",
			Message: fmt.Sprintf("thresholds must descend (low %g > medium %g > high %g)", below.Low, below.Medium, below.High),
		}
	}
	if below.Low >= s.AmountOutlier.Above().Low {
		return &SettingsError{Key: "amount_outlier", Message: "low-side thresholds must sit below high-side thresholds"}
	}
	return nil
}

// formatCUEError converts the first CUE error into a SettingsError keyed
// by its path.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &SettingsError{Key: "settings", Message: err.Error()}
	}

	first := errs[0]
	format, args := first.Msg()
	path := first.Path()
	if len(path) > 0 && path[0] == "#Settings" {
		path = path[1:]
	}
	se := &SettingsError{
		Key:     strings.Join(path, "."),
		Message: fmt.Sprintf(format, args...),
	}
	if se.Key == "" {
		se.Key = "settings"
	}
	if pos := cueerrors.Positions(first); len(pos) > 0 {
		se.Pos = pos[0]
	}
	return se
}
