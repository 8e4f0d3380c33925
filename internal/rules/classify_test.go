package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/revops/internal/runs"
)

func TestClassify(t *testing.T) {
	th := Thresholds{Low: 10, Medium: 30, High: 60}
	tests := []struct {
		v    float64
		want runs.Severity
	}{
		{0, runs.None},
		{10, runs.None},
		{11, runs.Low},
		{30, runs.Low},
		{31, runs.Medium},
		{50, runs.Medium},
		{60, runs.Medium},
		{61, runs.High},
		{10_000, runs.High},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.v, th), "v=%v", tt.v)
	}
}

func TestClassifyBelow(t *testing.T) {
	th := Thresholds{Low: 60_000, Medium: 30_000, High: 20_000}
	assert.Equal(t, runs.None, ClassifyBelow(60_000, th))
	assert.Equal(t, runs.Low, ClassifyBelow(59_999, th))
	assert.Equal(t, runs.Medium, ClassifyBelow(25_000, th))
	assert.Equal(t, runs.High, ClassifyBelow(1, th))
}

// Raising the metric never lowers the severity.
func TestClassify_Monotonic(t *testing.T) {
	th := Thresholds{Low: 5, Medium: 9, High: 14}
	prev := runs.None
	for v := -5.0; v <= 30; v += 0.5 {
		got := Classify(v, th)
		assert.GreaterOrEqual(t, got, prev, "v=%v", v)
		prev = got
	}

	below := Thresholds{Low: 60, Medium: 30, High: 20}
	prev = runs.None
	for v := 100.0; v >= 0; v-- {
		got := ClassifyBelow(v, below)
		assert.GreaterOrEqual(t, got, prev, "v=%v", v)
		prev = got
	}
}

func TestThresholds_Threshold(t *testing.T) {
	th := Thresholds{Low: 1, Medium: 2, High: 3}
	assert.Equal(t, 3.0, th.threshold(runs.High))
	assert.Equal(t, 2.0, th.threshold(runs.Medium))
	assert.Equal(t, 1.0, th.threshold(runs.Low))
}

func TestStageNumber(t *testing.T) {
	n, err := StageNumber("3 - Proposal")
	assert.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = StageNumber(" 12-Custom")
	assert.NoError(t, err)
	assert.Equal(t, 12, n)

	_, err = StageNumber("Discovery")
	assert.Error(t, err)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "USD 1,234,567", usd(1_234_567))
	assert.Equal(t, "950", grouped(950))
	assert.Equal(t, "41.67%", ratio(41.666666))
	assert.Equal(t, "medium", lower(runs.Medium))
}
