package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/revops/internal/runs"
)

// NewRunsCommand creates the runs command group.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect, compare and export recorded runs",
	}

	cmd.AddCommand(newRunsListCommand(rootOpts))
	cmd.AddCommand(newRunsShowCommand(rootOpts))
	cmd.AddCommand(newRunsDiffCommand(rootOpts))
	cmd.AddCommand(newRunsExportCommand(rootOpts))

	return cmd
}

// RunSummary is one line of `runs list`.
type RunSummary struct {
	RunID      int            `json:"run_id"`
	Datetime   time.Time      `json:"datetime"`
	Total      int            `json:"total"`
	Unread     int            `json:"unread"`
	BySeverity map[string]int `json:"by_severity"`
}

// RunList is the output of `runs list`.
type RunList struct {
	Runs []RunSummary `json:"runs"`
}

// Text renders the list for humans.
func (l RunList) Text() string {
	if len(l.Runs) == 0 {
		return "No runs recorded.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-5s %-20s %6s %6s %6s %6s %6s\n", "RUN", "DATETIME", "TOTAL", "HIGH", "MEDIUM", "LOW", "UNREAD")
	for _, r := range l.Runs {
		fmt.Fprintf(&b, "%-5d %-20s %6d %6d %6d %6d %6d\n",
			r.RunID, r.Datetime.Format(time.RFC3339), r.Total,
			r.BySeverity[runs.High.String()], r.BySeverity[runs.Medium.String()], r.BySeverity[runs.Low.String()],
			r.Unread)
	}
	return b.String()
}

func newRunsListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List recorded runs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			all, err := loadRuns(opts, cmd)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
			}
			list := RunList{Runs: make([]RunSummary, 0, len(all))}
			for _, r := range all {
				list.Runs = append(list.Runs, summarizeRun(r))
			}
			return formatter.Success(list)
		},
	}
}

func summarizeRun(r runs.Run) RunSummary {
	s := RunSummary{RunID: r.RunID, Datetime: r.Datetime, Total: len(r.Issues), BySeverity: map[string]int{}}
	for sev, n := range r.CountBySeverity() {
		s.BySeverity[sev.String()] = n
	}
	for _, is := range r.Issues {
		if is.IsUnread {
			s.Unread++
		}
	}
	return s
}

// RunDetail is the output of `runs show`.
type RunDetail struct {
	runs.Run
}

// Text renders one issue per line, then its explanation.
func (d RunDetail) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %d (%s): %d issue(s)\n", d.RunID, d.Datetime.Format(time.RFC3339), len(d.Issues))
	for _, is := range d.Issues {
		marker := " "
		if is.IsUnread {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s [%s] %-6s %-13s %s\n", marker, is.ID, is.Severity, is.Status, is.Name)
		fmt.Fprintf(&b, "    %s\n", is.Explanation)
		if is.SnoozedUntil != nil {
			fmt.Fprintf(&b, "    snoozed until %s\n", is.SnoozedUntil.Format(time.RFC3339))
		}
	}
	return b.String()
}

func newRunsShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show [run-id]",
		Short:         "Show the issues of a run (default: latest)",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			all, err := loadRuns(opts, cmd)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
			}
			run, err := selectRun(all, args)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeNotFound, err)
			}
			return formatter.Success(RunDetail{Run: run})
		},
	}
}

// runDiffOutput renders a RunDiff as a unified listing in text mode.
type runDiffOutput struct {
	runs.RunDiff
}

func (d runDiffOutput) Text() string {
	return d.Unified + fmt.Sprintf("%d removed, %d added, %d unchanged\n", len(d.Removed), len(d.Added), d.Unchanged)
}

func newRunsDiffCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <from-run> <to-run>",
		Short: "Compare the findings of two runs",
		Long: `Compare the findings of two runs. Findings are matched on severity,
rule and subject; issue ids and lifecycle state are ignored.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			all, err := loadRuns(opts, cmd)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
			}
			from, err := selectRun(all, args[:1])
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeNotFound, err)
			}
			to, err := selectRun(all, args[1:])
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeNotFound, err)
			}
			return formatter.Success(runDiffOutput{RunDiff: runs.Diff(from, to)})
		},
	}
}

func newRunsExportCommand(opts *RootOptions) *cobra.Command {
	var (
		asCSV  bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "export [run-id]",
		Short: "Export runs as JSON or one run as CSV",
		Long: `Export recorded runs.

By default every run and the lifecycle audit log are written as a JSON
runs file. With --csv a single run (default: latest) is written with one
row per issue; without -o the file is named run-<id>-issues.csv.

Examples:
  revops runs export -o runs.json
  revops runs export --csv
  revops runs export 3 --csv -o -`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd, args, asCSV, output)
		},
	}

	cmd.Flags().BoolVar(&asCSV, "csv", false, "export one run as CSV")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (- for stdout)")

	return cmd
}

func runExport(opts *RootOptions, cmd *cobra.Command, args []string, asCSV bool, output string) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger()

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	ctx := commandContext(cmd)
	all, err := st.LoadRuns(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
	}

	var write func(io.Writer) error
	if asCSV {
		run, err := selectRun(all, args)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, err)
		}
		if output == "" {
			output = runs.CSVFileName(run.RunID)
		}
		write = func(w io.Writer) error { return runs.WriteCSV(w, run) }
	} else {
		if len(args) == 1 {
			run, err := selectRun(all, args)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeNotFound, err)
			}
			all = []runs.Run{run}
		}
		events, err := st.LoadEvents(ctx)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
		}
		write = func(w io.Writer) error { return runs.WriteRunsFile(w, all, eventsFor(all, events)) }
	}

	if output == "" || output == "-" {
		return write(cmd.OutOrStdout())
	}

	f, err := os.Create(output)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Errorf("create %s: %w", output, err))
	}
	if err := write(f); err != nil {
		f.Close()
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
	}
	if err := f.Close(); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
	}
	logger.Info("export written", "path", output)
	return formatter.Success(exportResult{Output: output})
}

type exportResult struct {
	Output string `json:"output"`
}

func (r exportResult) Text() string {
	return fmt.Sprintf("Exported to %s\n", r.Output)
}

// eventsFor keeps the events that belong to the given runs.
func eventsFor(selected []runs.Run, events []runs.Event) []runs.Event {
	ids := make(map[int]bool, len(selected))
	for _, r := range selected {
		ids[r.RunID] = true
	}
	var out []runs.Event
	for _, ev := range events {
		if ids[ev.RunID] {
			out = append(out, ev)
		}
	}
	return out
}

func loadRuns(opts *RootOptions, cmd *cobra.Command) ([]runs.Run, error) {
	st, err := opts.openStore()
	if err != nil {
		return nil, err
	}
	defer closeStore(st, opts.logger())
	return st.LoadRuns(commandContext(cmd))
}

// selectRun picks the run named by args[0], or the latest when args is
// empty.
func selectRun(all []runs.Run, args []string) (runs.Run, error) {
	if len(all) == 0 {
		return runs.Run{}, fmt.Errorf("no runs recorded; run `revops run` first")
	}
	if len(args) == 0 {
		return all[len(all)-1], nil
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return runs.Run{}, fmt.Errorf("invalid run id %q", args[0])
	}
	for _, r := range all {
		if r.RunID == id {
			return r, nil
		}
	}
	return runs.Run{}, fmt.Errorf("run %d not found", id)
}
