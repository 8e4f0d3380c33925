package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/revops/internal/dataset"
	"github.com/roach88/revops/internal/runs"
)

// DatasetInfo summarizes a stored dataset.
type DatasetInfo struct {
	Fingerprint string
	Seed        int64
	GeneratedAt time.Time
}

// LatestDataset returns the most recently saved dataset.
// Returns ErrNotFound when the store holds none.
func (s *Store) LatestDataset(ctx context.Context) (*dataset.Dataset, DatasetInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, seed, generated_at, payload FROM datasets
		ORDER BY seq DESC LIMIT 1
	`)
	return scanDataset(row)
}

// Dataset returns the dataset with the given fingerprint.
func (s *Store) Dataset(ctx context.Context, fingerprint string) (*dataset.Dataset, DatasetInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, seed, generated_at, payload FROM datasets WHERE fingerprint = ?
	`, fingerprint)
	return scanDataset(row)
}

func scanDataset(row *sql.Row) (*dataset.Dataset, DatasetInfo, error) {
	var (
		info        DatasetInfo
		generatedAt string
		payload     string
	)
	if err := row.Scan(&info.Fingerprint, &info.Seed, &generatedAt, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, DatasetInfo{}, fmt.Errorf("dataset: %w", ErrNotFound)
		}
		return nil, DatasetInfo{}, fmt.Errorf("read dataset: %w", err)
	}
	t, err := parseTime(generatedAt)
	if err != nil {
		return nil, DatasetInfo{}, fmt.Errorf("read dataset: %w", err)
	}
	info.GeneratedAt = t

	ds, err := dataset.Unmarshal([]byte(payload))
	if err != nil {
		return nil, DatasetInfo{}, fmt.Errorf("read dataset %s: %w", info.Fingerprint, err)
	}
	return ds, info, nil
}

// Datasets lists stored datasets, oldest first.
func (s *Store) Datasets(ctx context.Context) ([]DatasetInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, seed, generated_at FROM datasets ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var out []DatasetInfo
	for rows.Next() {
		var (
			info DatasetInfo
			at   string
		)
		if err := rows.Scan(&info.Fingerprint, &info.Seed, &at); err != nil {
			return nil, fmt.Errorf("list datasets: %w", err)
		}
		if info.GeneratedAt, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("list datasets: %w", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	return out, nil
}

// RunDataset returns the fingerprint recorded with a run, or "" if none.
func (s *Store) RunDataset(ctx context.Context, runID int) (string, error) {
	var fp sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT dataset_fingerprint FROM runs WHERE run_id = ?`, runID).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("run %d: %w", runID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read run %d: %w", runID, err)
	}
	return fp.String, nil
}

// LoadRuns returns every run with its issues, ordered by run_id and issue
// position.
func (s *Store) LoadRuns(ctx context.Context) ([]runs.Run, error) {
	runRows, err := s.db.QueryContext(ctx, `SELECT run_id, datetime FROM runs ORDER BY run_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("load runs: %w", err)
	}
	defer runRows.Close()

	var out []runs.Run
	byID := map[int]int{}
	for runRows.Next() {
		var (
			r  runs.Run
			at string
		)
		if err := runRows.Scan(&r.RunID, &at); err != nil {
			return nil, fmt.Errorf("load runs: %w", err)
		}
		if r.Datetime, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("load runs: %w", err)
		}
		r.Issues = []runs.Issue{}
		byID[r.RunID] = len(out)
		out = append(out, r)
	}
	if err := runRows.Err(); err != nil {
		return nil, fmt.Errorf("load runs: %w", err)
	}
	runRows.Close()

	issueRows, err := s.db.QueryContext(ctx, `
		SELECT run_id, id, rule_id, severity, name, scope,
		       account_name, opportunity_name, rep_name, owner, category, fields,
		       metric_name, metric_value, formatted_metric_value, explanation, resolution,
		       status, timestamp, is_unread, snoozed_until
		FROM issues
		ORDER BY run_id ASC, position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load issues: %w", err)
	}
	defer issueRows.Close()

	for issueRows.Next() {
		runID, is, err := scanIssue(issueRows)
		if err != nil {
			return nil, fmt.Errorf("load issues: %w", err)
		}
		i, ok := byID[runID]
		if !ok {
			return nil, fmt.Errorf("load issues: issue %s references missing run %d", is.ID, runID)
		}
		out[i].Issues = append(out[i].Issues, is)
	}
	if err := issueRows.Err(); err != nil {
		return nil, fmt.Errorf("load issues: %w", err)
	}
	return out, nil
}

func scanIssue(rows *sql.Rows) (int, runs.Issue, error) {
	var (
		runID     int
		is        runs.Issue
		severity  string
		fields    string
		status    string
		timestamp string
		unread    int
		snoozed   *string
	)
	if err := rows.Scan(
		&runID, &is.ID, &is.RuleID, &severity, &is.Name, &is.Scope,
		&is.AccountName, &is.OpportunityName, &is.RepName, &is.Owner, &is.Category, &fields,
		&is.MetricName, &is.MetricValue, &is.FormattedMetricValue, &is.Explanation, &is.Resolution,
		&status, &timestamp, &unread, &snoozed,
	); err != nil {
		return 0, runs.Issue{}, err
	}

	var err error
	if is.Severity, err = runs.ParseSeverity(severity); err != nil {
		return 0, runs.Issue{}, fmt.Errorf("issue %s: %w", is.ID, err)
	}
	is.Status = runs.Status(status)
	if !is.Status.Valid() {
		return 0, runs.Issue{}, fmt.Errorf("issue %s: unknown status %q", is.ID, status)
	}
	if is.Fields, err = unmarshalFields(fields); err != nil {
		return 0, runs.Issue{}, fmt.Errorf("issue %s: %w", is.ID, err)
	}
	if is.Timestamp, err = parseTime(timestamp); err != nil {
		return 0, runs.Issue{}, fmt.Errorf("issue %s: %w", is.ID, err)
	}
	if is.SnoozedUntil, err = parseOptionalTime(snoozed); err != nil {
		return 0, runs.Issue{}, fmt.Errorf("issue %s: %w", is.ID, err)
	}
	is.IsUnread = unread != 0
	return runID, is, nil
}

// LoadEvents returns the audit log ordered by seq.
func (s *Store) LoadEvents(ctx context.Context) ([]runs.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, run_id, issue_id, command, from_status, to_status, at
		FROM issue_events
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	var out []runs.Event
	for rows.Next() {
		var (
			ev       runs.Event
			from, to string
			at       string
		)
		if err := rows.Scan(&ev.Seq, &ev.RunID, &ev.IssueID, &ev.Command, &from, &to, &at); err != nil {
			return nil, fmt.Errorf("load events: %w", err)
		}
		ev.From, ev.To = runs.Status(from), runs.Status(to)
		if ev.At, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("load events: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	return out, nil
}
