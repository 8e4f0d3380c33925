package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/revops/internal/dataset"
	"github.com/roach88/revops/internal/runs"
)

// SaveDataset stores ds under its fingerprint and returns the fingerprint.
// Saving the same content twice is a no-op apart from making it latest
// again.
func (s *Store) SaveDataset(ctx context.Context, ds *dataset.Dataset) (string, error) {
	fp, err := dataset.Fingerprint(ds)
	if err != nil {
		return "", fmt.Errorf("save dataset: %w", err)
	}
	payload, err := dataset.Marshal(ds)
	if err != nil {
		return "", fmt.Errorf("save dataset: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("save dataset: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var next int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM datasets`).Scan(&next); err != nil {
		return "", fmt.Errorf("save dataset: next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO datasets (fingerprint, seed, generated_at, payload, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET seq = excluded.seq
	`, fp, ds.Seed, formatTime(ds.GeneratedAt), string(payload), next)
	if err != nil {
		return "", fmt.Errorf("save dataset: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("save dataset: commit: %w", err)
	}
	return fp, nil
}

// SaveRun inserts a run and its issues atomically. fingerprint links the
// run to the dataset it was evaluated against and may be empty.
func (s *Store) SaveRun(ctx context.Context, run runs.Run, fingerprint string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save run %d: begin tx: %w", run.RunID, err)
	}
	defer tx.Rollback() // No-op if committed

	var fp sql.NullString
	if fingerprint != "" {
		fp = sql.NullString{String: fingerprint, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, datetime, dataset_fingerprint) VALUES (?, ?, ?)
	`, run.RunID, formatTime(run.Datetime), fp); err != nil {
		return fmt.Errorf("save run %d: %w", run.RunID, err)
	}

	for pos, is := range run.Issues {
		if err := insertIssue(ctx, tx, run.RunID, pos, is); err != nil {
			return fmt.Errorf("save run %d: %w", run.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save run %d: commit: %w", run.RunID, err)
	}
	return nil
}

func insertIssue(ctx context.Context, tx *sql.Tx, runID, pos int, is runs.Issue) error {
	fields, err := marshalFields(is.Fields)
	if err != nil {
		return fmt.Errorf("issue %s: %w", is.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO issues
		(id, run_id, position, rule_id, severity, name, scope,
		 account_name, opportunity_name, rep_name, owner, category, fields,
		 metric_name, metric_value, formatted_metric_value, explanation, resolution,
		 status, timestamp, is_unread, snoozed_until)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		is.ID, runID, pos, is.RuleID, is.Severity.String(), is.Name, is.Scope,
		is.AccountName, is.OpportunityName, is.RepName, is.Owner, is.Category, fields,
		is.MetricName, is.MetricValue, is.FormattedMetricValue, is.Explanation, is.Resolution,
		string(is.Status), formatTime(is.Timestamp), boolToInt(is.IsUnread), formatOptionalTime(is.SnoozedUntil),
	)
	if err != nil {
		return fmt.Errorf("insert issue %s: %w", is.ID, err)
	}
	return nil
}

// RecordTransition stores the issue's new lifecycle state together with the
// event that produced it.
func (s *Store) RecordTransition(ctx context.Context, is runs.Issue, ev runs.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record transition: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		UPDATE issues SET status = ?, is_unread = ?, snoozed_until = ? WHERE id = ?
	`, string(is.Status), boolToInt(is.IsUnread), formatOptionalTime(is.SnoozedUntil), is.ID)
	if err != nil {
		return fmt.Errorf("record transition: update issue %s: %w", is.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("record transition: issue %s: %w", is.ID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO issue_events (seq, run_id, issue_id, command, from_status, to_status, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.Seq, ev.RunID, ev.IssueID, ev.Command, string(ev.From), string(ev.To), formatTime(ev.At)); err != nil {
		return fmt.Errorf("record transition: insert event %d: %w", ev.Seq, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record transition: commit: %w", err)
	}
	return nil
}
