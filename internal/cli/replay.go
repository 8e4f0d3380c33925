package cli

import (
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/roach88/revops/internal/runs"
)

// ReplayRunResult holds the replay result for a single run.
type ReplayRunResult struct {
	RunID      int      `json:"run_id"`
	Issues     int      `json:"issues"`
	Events     int      `json:"events"`
	Mismatches []string `json:"mismatches,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Runs          []ReplayRunResult `json:"runs"`
	TotalEvents   int               `json:"total_events"`
	Deterministic bool              `json:"deterministic"`
	Consistent    bool              `json:"consistent"`
	Error         string            `json:"error,omitempty"`
}

// Text renders the result for humans.
func (r ReplayResult) Text() string {
	if len(r.Runs) == 0 {
		return "No runs found in database.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Replay Results: %d run(s), %d event(s)\n", len(r.Runs), r.TotalEvents)
	fmt.Fprintf(&b, "%s\n", strings.Repeat("=", 50))
	for _, run := range r.Runs {
		mark := "✓"
		if len(run.Mismatches) > 0 {
			mark = "✗"
		}
		fmt.Fprintf(&b, "%s Run %d: %d issue(s), %d event(s)\n", mark, run.RunID, run.Issues, run.Events)
		for _, m := range run.Mismatches {
			fmt.Fprintf(&b, "    %s\n", m)
		}
	}
	fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 50))
	if r.Error != "" {
		fmt.Fprintf(&b, "Result: ✗ replay failed: %s\n", r.Error)
		return b.String()
	}
	switch {
	case !r.Deterministic:
		fmt.Fprintf(&b, "Result: ✗ replay is not deterministic\n")
	case !r.Consistent:
		fmt.Fprintf(&b, "Result: ✗ stored state differs from the audit log\n")
	default:
		fmt.Fprintf(&b, "Result: ✓ stored state matches the audit log\n")
	}
	return b.String()
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild issue state from the audit log and compare",
		Long: `Replay the lifecycle audit log over freshly emitted issues and check
that the result matches the stored issue state.

Every issue starts Open and unread; events are applied in sequence order
at their recorded times. The replay runs twice to verify determinism.

Exit codes:
  0 - Stored state matches the audit log
  1 - Mismatch detected, or the log cannot be replayed
  2 - Command error (database not found, etc.)

Examples:
  revops replay
  revops replay --db ./revops.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, cmd)
		},
	}

	return cmd
}

func runReplay(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger()
	ctx := commandContext(cmd)

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	stored, err := st.LoadRuns(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
	}
	events, err := st.LoadEvents(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
	}

	result := ReplayResult{
		Runs:          make([]ReplayRunResult, 0, len(stored)),
		TotalEvents:   len(events),
		Deterministic: true,
		Consistent:    true,
	}
	perRun := map[int]int{}
	for _, ev := range events {
		perRun[ev.RunID]++
	}
	for _, r := range stored {
		result.Runs = append(result.Runs, ReplayRunResult{RunID: r.RunID, Issues: len(r.Issues), Events: perRun[r.RunID]})
	}

	first, err := runs.Replay(stored, events)
	if err != nil {
		result.Consistent = false
		result.Error = err.Error()
		return finishReplay(formatter, result)
	}
	second, err := runs.Replay(stored, events)
	if err != nil || !cmp.Equal(first, second) {
		result.Deterministic = false
	}
	formatter.VerboseLog("Replayed %d event(s) over %d run(s)", len(events), len(stored))

	byRun := map[int][]string{}
	for _, r := range stored {
		byRun[r.RunID] = runs.Mismatches([]runs.Run{r}, first)
	}
	for i := range result.Runs {
		result.Runs[i].Mismatches = byRun[result.Runs[i].RunID]
		if len(result.Runs[i].Mismatches) > 0 {
			result.Consistent = false
		}
	}

	return finishReplay(formatter, result)
}

func finishReplay(formatter *OutputFormatter, result ReplayResult) error {
	if err := formatter.Success(result); err != nil {
		return err
	}
	if !result.Deterministic || !result.Consistent {
		return NewExitError(ExitFailure, "replay verification failed")
	}
	return nil
}
