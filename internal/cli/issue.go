package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/revops/internal/runs"
)

// TransitionResult is the output of a lifecycle command.
type TransitionResult struct {
	Issue runs.Issue `json:"issue"`
	Event runs.Event `json:"event"`
}

// Text renders the transition for humans.
func (r TransitionResult) Text() string {
	line := fmt.Sprintf("%s: %s -> %s (%s)\n", r.Issue.ID, r.Event.From, r.Event.To, r.Event.Command)
	if r.Issue.SnoozedUntil != nil {
		line += fmt.Sprintf("  snoozed until %s\n", r.Issue.SnoozedUntil.Format(time.RFC3339))
	}
	return line
}

// ExpireResult is the output of `issue expire`.
type ExpireResult struct {
	Events []runs.Event `json:"events"`
}

// Text renders one line per reopened issue.
func (r ExpireResult) Text() string {
	if len(r.Events) == 0 {
		return "No snoozes expired.\n"
	}
	var b strings.Builder
	for _, ev := range r.Events {
		fmt.Fprintf(&b, "%s: %s -> %s\n", ev.IssueID, ev.From, ev.To)
	}
	return b.String()
}

// NewIssueCommand creates the issue command group.
func NewIssueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Triage issues: acknowledge, snooze, resolve, reopen",
		Long: `Move issues through their lifecycle. Every transition is recorded in
the audit log.

  acknowledge  Open -> Acknowledged, marks read (no-op otherwise)
  snooze       Open or Acknowledged -> Snoozed for 24h
  resolve      any -> Resolved
  reopen       any -> Open, marks unread
  expire       reopen every snooze that has ended`,
	}

	for _, c := range []struct{ name, short string }{
		{"acknowledge", "Acknowledge an open issue"},
		{"snooze", "Snooze an issue for 24 hours"},
		{"resolve", "Resolve an issue"},
		{"reopen", "Reopen an issue"},
	} {
		cmd.AddCommand(newTransitionCommand(rootOpts, c.name, c.short))
	}
	cmd.AddCommand(newExpireCommand(rootOpts))

	return cmd
}

func newTransitionCommand(opts *RootOptions, name, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           name + " <issue-id>",
		Short:         short,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(opts, cmd, name, args[0])
		},
	}
	if name == "acknowledge" {
		cmd.Aliases = []string{"ack"}
	}
	return cmd
}

func runTransition(opts *RootOptions, cmd *cobra.Command, name, issueID string) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger()

	command, err := runs.NewCommand(name, issueID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	is, ev, err := st.ApplyCommand(commandContext(cmd), command, opts.now())
	switch {
	case errors.Is(err, runs.ErrIssueNotFound):
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, err)
	case errors.Is(err, runs.ErrInvalidTransition):
		return formatter.Fail(ExitCommandError, ErrCodeTransition, err)
	case err != nil:
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
	}

	logger.Info("issue transitioned", "issue", is.ID, "command", ev.Command, "from", ev.From, "to", ev.To)
	return formatter.Success(TransitionResult{Issue: is, Event: ev})
}

func newExpireCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "expire",
		Short:         "Reopen issues whose snooze has ended",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			logger := opts.logger()

			st, err := opts.openStore()
			if err != nil {
				return err
			}
			defer closeStore(st, logger)

			events, err := st.ExpireSnoozes(commandContext(cmd), opts.now())
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
			}
			logger.Info("snoozes expired", "count", len(events))
			if events == nil {
				events = []runs.Event{}
			}
			return formatter.Success(ExpireResult{Events: events})
		},
	}
}
