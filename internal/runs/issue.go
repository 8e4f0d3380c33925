// Package runs holds rule-evaluation results and their lifecycle.
//
// A Book owns every Run in insertion order. Issues are mutated only through
// Book.Apply, which records an Event for each transition. Reads return
// copies, so callers never alias stored issues.
package runs

import (
	"fmt"
	"strings"
	"time"
)

// Severity ranks an issue. The zero value None means "no issue".
type Severity int

const (
	None Severity = iota
	Low
	Medium
	High
)

var severityNames = [...]string{"None", "Low", "Medium", "High"}

func (s Severity) String() string {
	if s < None || s > High {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

// ParseSeverity accepts the names produced by String, case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	for i, name := range severityNames {
		if strings.EqualFold(s, name) {
			return Severity(i), nil
		}
	}
	return None, fmt.Errorf("unknown severity %q", s)
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Status is an issue's lifecycle state.
type Status string

const (
	Open         Status = "Open"
	Acknowledged Status = "Acknowledged"
	Snoozed      Status = "Snoozed"
	Resolved     Status = "Resolved"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case Open, Acknowledged, Snoozed, Resolved:
		return true
	}
	return false
}

// Issue is one rule finding.
type Issue struct {
	ID       string   `json:"id"`
	RuleID   string   `json:"rule_id"`
	Severity Severity `json:"severity"`
	Name     string   `json:"name"`
	Scope    string   `json:"scope"`

	AccountName     string `json:"account_name,omitempty"`
	OpportunityName string `json:"opportunity_name,omitempty"`
	RepName         string `json:"rep_name,omitempty"`
	Owner           string `json:"owner"`

	Category             string   `json:"category"`
	Fields               []string `json:"fields"`
	MetricName           string   `json:"metric_name"`
	MetricValue          float64  `json:"metric_value"`
	FormattedMetricValue string   `json:"formatted_metric_value"`
	Explanation          string   `json:"explanation"`
	Resolution           string   `json:"resolution"`

	Status       Status     `json:"status"`
	Timestamp    time.Time  `json:"timestamp"`
	IsUnread     bool       `json:"is_unread"`
	SnoozedUntil *time.Time `json:"snoozed_until"`
}

// Clone returns a deep copy of i.
func (i Issue) Clone() Issue {
	out := i
	if i.Fields != nil {
		out.Fields = append([]string(nil), i.Fields...)
	}
	if i.SnoozedUntil != nil {
		t := *i.SnoozedUntil
		out.SnoozedUntil = &t
	}
	return out
}

// Run is the output of one evaluation pass.
type Run struct {
	RunID    int       `json:"run_id"`
	Datetime time.Time `json:"datetime"`
	Issues   []Issue   `json:"issues"`
}

// Clone returns a deep copy of r.
func (r Run) Clone() Run {
	out := r
	out.Issues = make([]Issue, len(r.Issues))
	for i, is := range r.Issues {
		out.Issues[i] = is.Clone()
	}
	return out
}

// CountBySeverity tallies the run's issues.
func (r Run) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	for _, is := range r.Issues {
		counts[is.Severity]++
	}
	return counts
}
