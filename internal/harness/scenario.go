package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/revops/internal/dataset"
	"github.com/roach88/revops/internal/rules"
	"github.com/roach88/revops/internal/runs"
)

// Scenario defines one rule scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// Now is the evaluation time, RFC 3339.
	Now string `yaml:"now"`

	// Rules limits evaluation to these rule ids. Empty means every rule
	// the settings enable.
	Rules []string `yaml:"rules,omitempty"`

	// Settings overrides, flat dotted keys or nested groups.
	Settings map[string]any `yaml:"settings,omitempty"`

	// Dataset is the input, in the generated JSON shape.
	Dataset map[string]any `yaml:"dataset"`

	// ExpectError makes the scenario pass only if evaluation fails with an
	// error containing this text.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Steps are lifecycle commands applied to the run in order.
	Steps []Step `yaml:"steps,omitempty"`

	// Assertions validate the final issues.
	Assertions []Assertion `yaml:"assertions"`
}

// Step applies one lifecycle command. Command "expire" reopens elapsed
// snoozes and takes no issue.
type Step struct {
	Command string `yaml:"command"`
	Issue   string `yaml:"issue,omitempty"`

	// After offsets the step from the scenario's now, e.g. "25h".
	After string `yaml:"after,omitempty"`

	// Error makes the step pass only if the command fails with an error
	// containing this text.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the final issues.
type Assertion struct {
	// Type is one of issue_present, issue_absent, issue_count, final_status.
	Type string `yaml:"type"`

	// Rule filters by rule id (issue_present, issue_absent, issue_count).
	Rule string `yaml:"rule,omitempty"`

	// Severity filters by severity name (issue_present, issue_count).
	Severity string `yaml:"severity,omitempty"`

	// Subject matches the issue's opportunity, account or rep name.
	Subject string `yaml:"subject,omitempty"`

	// Metric is the expected metric value (issue_present).
	Metric *float64 `yaml:"metric,omitempty"`

	// Count is the expected number of matching issues (issue_count).
	Count int `yaml:"count,omitempty"`

	// Issue and Status are used by final_status.
	Issue  string `yaml:"issue,omitempty"`
	Status string `yaml:"status,omitempty"`
}

// Assertion type constants.
const (
	AssertIssuePresent = "issue_present"
	AssertIssueAbsent  = "issue_absent"
	AssertIssueCount   = "issue_count"
	AssertFinalStatus  = "final_status"
)

// expireCommand is the step that reopens elapsed snoozes.
const expireCommand = "expire"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields, or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := s.nowTime(); err != nil {
		return err
	}
	if s.Dataset == nil {
		return fmt.Errorf("dataset is required")
	}
	if s.ExpectError == "" && len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	known := make(map[string]bool, len(rules.DefaultRuleIDs))
	for _, id := range rules.DefaultRuleIDs {
		known[id] = true
	}
	for i, id := range s.Rules {
		if !known[id] {
			return fmt.Errorf("rules[%d]: unknown rule %q", i, id)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	if step.After != "" {
		if _, err := time.ParseDuration(step.After); err != nil {
			return fmt.Errorf("steps[%d]: after: %w", i, err)
		}
	}
	if step.Command == expireCommand {
		if step.Issue != "" {
			return fmt.Errorf("steps[%d]: expire takes no issue", i)
		}
		return nil
	}
	if _, err := runs.NewCommand(step.Command, step.Issue); err != nil {
		return fmt.Errorf("steps[%d]: %w", i, err)
	}
	if step.Issue == "" {
		return fmt.Errorf("steps[%d]: issue is required for %s", i, step.Command)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Severity != "" {
		if _, err := runs.ParseSeverity(a.Severity); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	}

	switch a.Type {
	case AssertIssuePresent, AssertIssueAbsent:
		if a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for %s", index, a.Type)
		}
	case AssertIssueCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for issue_count", index)
		}
	case AssertFinalStatus:
		if a.Issue == "" {
			return fmt.Errorf("assertions[%d]: issue is required for final_status", index)
		}
		if !runs.Status(a.Status).Valid() {
			return fmt.Errorf("assertions[%d]: unknown status %q", index, a.Status)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func (s *Scenario) nowTime() (time.Time, error) {
	if s.Now == "" {
		return time.Time{}, fmt.Errorf("now is required")
	}
	t, err := time.Parse(time.RFC3339, s.Now)
	if err != nil {
		return time.Time{}, fmt.Errorf("now: %w", err)
	}
	return t.UTC(), nil
}

// buildDataset converts the YAML dataset block into a Dataset by way of
// its JSON form, so field names and unknown-field checks match the
// generator's output.
func (s *Scenario) buildDataset() (*dataset.Dataset, error) {
	raw, err := json.Marshal(s.Dataset)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	ds, err := dataset.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	return ds, nil
}

// buildSettings applies the scenario's overrides and rule selection.
func (s *Scenario) buildSettings() (rules.Settings, error) {
	m := make(map[string]any, len(s.Settings)+len(rules.DefaultRuleIDs))
	for k, v := range s.Settings {
		m[k] = v
	}
	if len(s.Rules) > 0 {
		selected := make(map[string]bool, len(s.Rules))
		for _, id := range s.Rules {
			selected[id] = true
		}
		for _, id := range rules.DefaultRuleIDs {
			key := "rules.enabled." + id
			if _, set := m[key]; !set {
				m[key] = selected[id]
			}
		}
	}
	return rules.SettingsFromMap(m)
}
