package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/revops/internal/runs"
)

// LoadBook rebuilds the in-memory book from stored runs and events. The
// book's event clock resumes after the highest stored seq.
func (s *Store) LoadBook(ctx context.Context) (*runs.Book, error) {
	all, err := s.LoadRuns(ctx)
	if err != nil {
		return nil, err
	}
	events, err := s.LoadEvents(ctx)
	if err != nil {
		return nil, err
	}
	return runs.NewBook(all, events), nil
}

// ApplyCommand loads the book, applies cmd and persists the result.
func (s *Store) ApplyCommand(ctx context.Context, cmd runs.Command, now time.Time) (runs.Issue, runs.Event, error) {
	book, err := s.LoadBook(ctx)
	if err != nil {
		return runs.Issue{}, runs.Event{}, err
	}
	ev, err := book.Apply(cmd, now)
	if err != nil {
		return runs.Issue{}, runs.Event{}, err
	}
	is, _, err := book.Issue(ev.IssueID)
	if err != nil {
		return runs.Issue{}, runs.Event{}, err
	}
	if err := s.RecordTransition(ctx, is, ev); err != nil {
		return runs.Issue{}, runs.Event{}, err
	}
	return is, ev, nil
}

// ExpireSnoozes reopens every snooze that ended at or before now and
// persists each transition.
func (s *Store) ExpireSnoozes(ctx context.Context, now time.Time) ([]runs.Event, error) {
	book, err := s.LoadBook(ctx)
	if err != nil {
		return nil, err
	}
	events, err := book.ExpireSnoozes(now)
	if err != nil {
		return nil, fmt.Errorf("expire snoozes: %w", err)
	}
	for _, ev := range events {
		is, _, err := book.Issue(ev.IssueID)
		if err != nil {
			return nil, err
		}
		if err := s.RecordTransition(ctx, is, ev); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// RecordRun stores issues as a new run numbered after the highest stored
// run_id.
func (s *Store) RecordRun(ctx context.Context, issues []runs.Issue, at time.Time, fingerprint string) (runs.Run, error) {
	book, err := s.LoadBook(ctx)
	if err != nil {
		return runs.Run{}, err
	}
	run := book.Record(issues, at)
	if err := s.SaveRun(ctx, run, fingerprint); err != nil {
		return runs.Run{}, err
	}
	return run, nil
}
