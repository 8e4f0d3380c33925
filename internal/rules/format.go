package rules

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/revops/internal/runs"
)

// grouped formats n with thousands separators: 1234567 -> "1,234,567".
func grouped(n int64) string {
	return message.NewPrinter(language.English).Sprintf("%d", n)
}

func usd(n int64) string {
	return "USD " + grouped(n)
}

func roundInt(v float64) int64 {
	return int64(math.Round(v))
}

// ratio formats a percentage with two decimals: 41.6666 -> "41.67%".
func ratio(pct float64) string {
	return fmt.Sprintf("%.2f%%", pct)
}

func lower(sev runs.Severity) string {
	return strings.ToLower(sev.String())
}
