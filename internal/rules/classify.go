package rules

import "github.com/roach88/revops/internal/runs"

// Classify maps v onto a severity. Checks run high to low so a value above
// every threshold is High, not Low.
func Classify(v float64, t Thresholds) runs.Severity {
	switch {
	case v > t.High:
		return runs.High
	case v > t.Medium:
		return runs.Medium
	case v > t.Low:
		return runs.Low
	}
	return runs.None
}

// ClassifyBelow is Classify for metrics that are bad when small. The
// thresholds descend: t.Low > t.Medium > t.High.
func ClassifyBelow(v float64, t Thresholds) runs.Severity {
	switch {
	case v < t.High:
		return runs.High
	case v < t.Medium:
		return runs.Medium
	case v < t.Low:
		return runs.Low
	}
	return runs.None
}

// threshold returns the cut point that produced sev.
func (t Thresholds) threshold(sev runs.Severity) float64 {
	switch sev {
	case runs.High:
		return t.High
	case runs.Medium:
		return t.Medium
	}
	return t.Low
}
