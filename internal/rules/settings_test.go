package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSettings_EmptyIsDefault(t *testing.T) {
	s, err := ParseSettings(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

func TestDefaultSettings_EnableEveryDefaultRule(t *testing.T) {
	s := DefaultSettings()
	for _, r := range DefaultRules() {
		assert.True(t, s.Enabled(r.ID), r.ID)
	}
	assert.True(t, s.Enabled("not_a_rule"), "unknown ids default to enabled")
}

func TestSettings_CopiesDoNotShareToggles(t *testing.T) {
	base := DefaultSettings()
	copied := base
	copied.Rules.Enabled.Set(RuleSlipping, false)

	assert.False(t, copied.Enabled(RuleSlipping))
	assert.True(t, base.Enabled(RuleSlipping))
	assert.Equal(t, DefaultSettings(), base)
}

func TestRuleToggles_Set(t *testing.T) {
	var toggles RuleToggles
	for _, id := range DefaultRuleIDs {
		require.True(t, toggles.Set(id, true), id)
	}
	assert.False(t, toggles.Set("not_a_rule", true))

	s := Settings{Rules: Toggles{Enabled: toggles}}
	for _, id := range DefaultRuleIDs {
		assert.True(t, s.Enabled(id), id)
	}
	assert.Equal(t, DefaultSettings().Rules, s.Rules)
}

func TestSettingsFromMap_FlatKeys(t *testing.T) {
	s, err := SettingsFromMap(map[string]any{
		"stale_opportunity.low_days":    10,
		"stale_opportunity.medium_days": 30,
		"stale_opportunity.high_days":   60,
		"rules.enabled.slipping":        false,
		"tam.coverage_percentage":       75.5,
	})
	require.NoError(t, err)

	assert.Equal(t, DayThresholds{LowDays: 10, MediumDays: 30, HighDays: 60}, s.StaleOpportunity)
	assert.False(t, s.Enabled(RuleSlipping))
	assert.True(t, s.Enabled(RuleStaleOpportunity))
	assert.Equal(t, 75.5, s.TAM.CoveragePercentage)
	assert.Equal(t, DefaultSettings().MissingCloseDate, s.MissingCloseDate, "omitted keys take defaults")
}

func TestParseSettings_NestedAndDottedMixed(t *testing.T) {
	s, err := ParseSettings([]byte(`
stale_opportunity:
  low_days: 5
  medium_days: 15
stale_opportunity.high_days: 25
rules:
  enabled:
    duplicate_accounts: false
stages.early_stage_max: 2
`))
	require.NoError(t, err)
	assert.Equal(t, DayThresholds{LowDays: 5, MediumDays: 15, HighDays: 25}, s.StaleOpportunity)
	assert.False(t, s.Enabled(RuleDuplicateAccounts))
	assert.Equal(t, 2, s.Stages.EarlyStageMax)
}

func TestSettingsFromMap_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		in      map[string]any
		wantKey string
		wantMsg string
	}{
		{
			name:    "unknown key",
			in:      map[string]any{"stale_opportunity.lowest_days": 1},
			wantMsg: "lowest_days",
		},
		{
			name:    "unknown group",
			in:      map[string]any{"forecast.accuracy": 1},
			wantMsg: "forecast",
		},
		{
			name:    "unknown rule toggle",
			in:      map[string]any{"rules.enabled.made_up": true},
			wantMsg: "made_up",
		},
		{
			name:    "wrong type",
			in:      map[string]any{"stale_opportunity.low_days": "ten"},
			wantMsg: "low_days",
		},
		{
			name:    "out of range",
			in:      map[string]any{"stale_opportunity.high_days": 500},
			wantMsg: "high_days",
		},
		{
			name:    "fractional day count",
			in:      map[string]any{"missing_close_date.low_days": 1.5},
			wantMsg: "low_days",
		},
		{
			name:    "not ascending",
			in:      map[string]any{"stale_opportunity.low_days": 60, "stale_opportunity.medium_days": 30},
			wantKey: "stale_opportunity",
		},
		{
			name:    "low side not descending",
			in:      map[string]any{"amount_outlier.low_medium_threshold": 70000},
			wantKey: "amount_outlier.low",
		},
		{
			name:    "scalar then group",
			in:      map[string]any{"stale_opportunity": 5, "stale_opportunity.low_days": 1},
			wantKey: "stale_opportunity.low_days",
		},
		{
			name:    "set twice",
			in:      map[string]any{"slipping": map[string]any{"late_stage": 3}, "slipping.late_stage": 2},
			wantKey: "slipping.late_stage",
		},
		{
			name:    "empty segment",
			in:      map[string]any{"stale_opportunity..low_days": 1},
			wantKey: "stale_opportunity..low_days",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SettingsFromMap(tt.in)
			require.Error(t, err)
			assert.True(t, IsSettingsError(err), "got %T: %v", err, err)

			var se *SettingsError
			require.ErrorAs(t, err, &se)
			if tt.wantKey != "" {
				assert.Equal(t, tt.wantKey, se.Key)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestParseSettings_InvalidYAML(t *testing.T) {
	_, err := ParseSettings([]byte("stale_opportunity: [1, 2"))
	require.Error(t, err)
	assert.True(t, IsSettingsError(err))
}

func TestLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rep_overload.low_severity: 3\n"), 0o644))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.RepOverload.LowSeverity)

	_, err = LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.False(t, IsSettingsError(err))
}

func TestSettingsError_Format(t *testing.T) {
	err := &SettingsError{Key: "tam", Message: "bad"}
	assert.Equal(t, "settings: tam: bad", err.Error())
}
