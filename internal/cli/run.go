package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/revops/internal/dataset"
	"github.com/roach88/revops/internal/rules"
	"github.com/roach88/revops/internal/runs"
	"github.com/roach88/revops/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Settings string
	Dataset  string
	At       string
}

// RunResult summarizes a recorded run.
type RunResult struct {
	RunID       int            `json:"run_id"`
	Datetime    time.Time      `json:"datetime"`
	Fingerprint string         `json:"fingerprint"`
	Total       int            `json:"total"`
	BySeverity  map[string]int `json:"by_severity"`
}

// Text renders the result for humans.
func (r RunResult) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %d recorded at %s\n", r.RunID, r.Datetime.Format(time.RFC3339))
	fmt.Fprintf(&b, "  Dataset: %s\n", r.Fingerprint)
	fmt.Fprintf(&b, "  Issues:  %d (High %d, Medium %d, Low %d)\n",
		r.Total, r.BySeverity[runs.High.String()], r.BySeverity[runs.Medium.String()], r.BySeverity[runs.Low.String()])
	return b.String()
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate the hygiene rules and record a run",
		Long: `Evaluate every enabled rule over a dataset and record the issues as
a new run.

The dataset is the latest one in the database unless --dataset names a
JSON file. Settings default to the built-in thresholds; --settings reads
a YAML or JSON file whose keys may be nested or dotted.

Examples:
  revops run
  revops run --settings settings.yaml
  revops run --dataset dataset.json --now 2026-02-18T09:00:00Z`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Settings, "settings", rootOpts.Env.Settings, "rule settings file")
	cmd.Flags().StringVar(&opts.Dataset, "dataset", "", "dataset JSON file (default: latest in database)")
	cmd.Flags().StringVar(&opts.At, "now", "", "evaluation time, RFC3339 (default: current time)")

	return cmd
}

func runEvaluate(opts *RunOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger()
	ctx := commandContext(cmd)

	settings := rules.DefaultSettings()
	if opts.Settings != "" {
		s, err := rules.LoadSettings(opts.Settings)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeSettings, err)
		}
		settings = s
	}

	now := opts.now()
	if opts.At != "" {
		t, err := time.Parse(time.RFC3339, opts.At)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Errorf("--now: %w", err))
		}
		now = t.UTC()
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	var ds *dataset.Dataset
	if opts.Dataset != "" {
		ds, err = readDatasetFile(opts.Dataset)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDataset, err)
		}
	} else {
		ds, _, err = st.LatestDataset(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound,
				errors.New("no dataset in database; run `revops generate` first"))
		}
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDataset, err)
		}
	}

	engineOpts := []rules.EngineOption{rules.WithLogger(logger)}
	if opts.IDGenerator != nil {
		engineOpts = append(engineOpts, rules.WithIDGenerator(opts.IDGenerator))
	}
	issues, err := rules.NewDefaultEngine(engineOpts...).Evaluate(ds, settings, now)
	if err != nil {
		code := ErrCodeGeneric
		if rules.IsRuleError(err) {
			code = ErrCodeRule
		}
		return formatter.Fail(ExitCommandError, code, err)
	}

	fp, err := st.SaveDataset(ctx, ds)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
	}
	run, err := st.RecordRun(ctx, issues, now, fp)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
	}
	logger.Info("run recorded", "run_id", run.RunID, "issues", len(run.Issues))

	return formatter.Success(newRunResult(run, fp))
}

func newRunResult(run runs.Run, fingerprint string) RunResult {
	counts := map[string]int{}
	for sev, n := range run.CountBySeverity() {
		counts[sev.String()] = n
	}
	return RunResult{
		RunID:       run.RunID,
		Datetime:    run.Datetime,
		Fingerprint: fingerprint,
		Total:       len(run.Issues),
		BySeverity:  counts,
	}
}
