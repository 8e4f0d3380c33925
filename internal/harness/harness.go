package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/revops/internal/rules"
	"github.com/roach88/revops/internal/runs"
	"github.com/roach88/revops/internal/store"
)

// Option configures a scenario run.
type Option func(*Harness)

// WithLogger routes harness and engine logs to logger. The default
// discards them.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// Harness executes one scenario.
type Harness struct {
	store  *store.Store
	engine *rules.Engine
	now    time.Time
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. Execution flow:
//  1. Build the dataset and settings
//  2. Evaluate the rules and record the run
//  3. Apply the lifecycle steps
//  4. Evaluate assertions against the final issues
//
// An error is returned only when the scenario cannot be executed at all;
// failed expectations are reported in the Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	now, err := scenario.nowTime()
	if err != nil {
		return nil, err
	}
	h.now = now

	ds, err := scenario.buildDataset()
	if err != nil {
		return nil, err
	}
	settings, err := scenario.buildSettings()
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()
	h.store = st

	h.engine = rules.NewDefaultEngine(
		rules.WithIDGenerator(runs.NewSequenceGenerator("issue")),
		rules.WithLogger(h.logger),
	)

	result := NewResult()
	issues, err := h.engine.Evaluate(ds, settings, now)
	if scenario.ExpectError != "" {
		switch {
		case err == nil:
			result.AddError(fmt.Sprintf("expected evaluation error containing %q, got none", scenario.ExpectError))
		case !strings.Contains(err.Error(), scenario.ExpectError):
			result.AddError(fmt.Sprintf("expected evaluation error containing %q, got %q", scenario.ExpectError, err.Error()))
		}
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	fp, err := st.SaveDataset(ctx, ds)
	if err != nil {
		return nil, err
	}
	run, err := st.RecordRun(ctx, issues, now, fp)
	if err != nil {
		return nil, err
	}
	h.logger.Info("run recorded", "scenario", scenario.Name, "run_id", run.RunID, "issues", len(run.Issues))

	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	final, err := st.LoadRuns(ctx)
	if err != nil {
		return nil, err
	}
	if len(final) > 0 {
		result.Issues = final[len(final)-1].Issues
	}
	events, err := st.LoadEvents(ctx)
	if err != nil {
		return nil, err
	}
	if events != nil {
		result.Events = events
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// executeSteps applies lifecycle commands in order. A command error is a
// scenario failure unless the step expects it.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		at := h.now
		if step.After != "" {
			d, err := time.ParseDuration(step.After)
			if err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
			at = at.Add(d)
		}

		var err error
		if step.Command == expireCommand {
			_, err = h.store.ExpireSnoozes(ctx, at)
		} else {
			cmd, cerr := runs.NewCommand(step.Command, step.Issue)
			if cerr != nil {
				return fmt.Errorf("step %d: %w", i, cerr)
			}
			_, _, err = h.store.ApplyCommand(ctx, cmd, at)
		}

		switch {
		case step.Error != "" && err == nil:
			result.AddError(fmt.Sprintf("step %d (%s %s): expected error containing %q, got none",
				i, step.Command, step.Issue, step.Error))
		case step.Error != "" && !strings.Contains(err.Error(), step.Error):
			result.AddError(fmt.Sprintf("step %d (%s %s): expected error containing %q, got %q",
				i, step.Command, step.Issue, step.Error, err.Error()))
		case step.Error == "" && err != nil:
			result.AddError(fmt.Sprintf("step %d (%s %s): %v", i, step.Command, step.Issue, err))
		}

		h.logger.Debug("step applied",
			"step", i,
			"command", step.Command,
			"issue_id", step.Issue,
			"at", at,
		)
	}
	return nil
}
