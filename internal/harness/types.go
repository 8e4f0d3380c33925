package harness

import "github.com/roach88/revops/internal/runs"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step and assertion held.
	Pass bool `json:"pass"`

	// Issues are the run's issues in their final lifecycle state.
	Issues []runs.Issue `json:"issues"`

	// Events is the audit log of the steps.
	Events []runs.Event `json:"events"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Issues: []runs.Issue{},
		Events: []runs.Event{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
