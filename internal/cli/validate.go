package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/revops/internal/dataset"
	"github.com/roach88/revops/internal/generator"
	"github.com/roach88/revops/internal/store"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Source     string   `json:"source"`
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations,omitempty"`
}

// Text renders the result for humans.
func (r ValidationResult) Text() string {
	if r.Valid {
		return fmt.Sprintf("✓ %s is valid\n", r.Source)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "✗ %s has %d violation(s):\n", r.Source, len(r.Violations))
	for _, v := range r.Violations {
		fmt.Fprintf(&b, "  - %s\n", v)
	}
	return b.String()
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var configPath, vocabDir string

	cmd := &cobra.Command{
		Use:   "validate [dataset.json]",
		Short: "Check a dataset against the generator invariants",
		Long: `Check a dataset against the generator's relational invariants:
counts, sequential ids, unique names, referential integrity, stage
history ordering and the pipeline range. Rep home states are checked
against the vocabulary's state-to-region mapping.

Without an argument the latest dataset in the database is checked.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, configPath, vocabDir, args, cmd)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "generator config YAML the dataset was built with")
	cmd.Flags().StringVar(&vocabDir, "vocab-dir", rootOpts.Env.VocabDir, "vocabulary directory the dataset was built with (default: bundled)")

	return cmd
}

func runValidate(opts *RootOptions, configPath, vocabDir string, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger()

	cfg, err := loadGeneratorConfig(configPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	v, err := loadVocab(vocabDir)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}

	var (
		ds     *dataset.Dataset
		source string
	)
	if len(args) == 1 {
		source = args[0]
		ds, err = readDatasetFile(source)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDataset, err)
		}
	} else {
		st, err := opts.openStore()
		if err != nil {
			return err
		}
		defer closeStore(st, logger)

		var info store.DatasetInfo
		ds, info, err = st.LatestDataset(commandContext(cmd))
		if errors.Is(err, store.ErrNotFound) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound,
				errors.New("no dataset in database; run `revops generate` first"))
		}
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDataset, err)
		}
		source = "dataset " + info.Fingerprint
	}

	formatter.VerboseLog("Validating %s", source)
	result := ValidationResult{Source: source, Valid: true}
	if err := errors.Join(generator.Validate(ds, cfg), generator.ValidateRegions(ds, v)); err != nil {
		result.Valid = false
		result.Violations = violations(err)
	}

	if err := formatter.Success(result); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

// violations splits a joined error into its messages.
func violations(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
