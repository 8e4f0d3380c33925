package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/revops/internal/runs"
	"github.com/roach88/revops/internal/testutil"
)

var t0 = testutil.Epoch

// setupTestStore opens a store in a temp dir.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"datasets", "runs", "issues", "issue_events"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := setupTestStore(t)

	checks := map[string]string{
		"journal_mode": "wal",
		"foreign_keys": "1",
		"busy_timeout": "5000",
	}
	for name, want := range checks {
		got, err := s.pragma(name)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer s.Close()

	if _, err := s.RecordRun(context.Background(), []runs.Issue{testutil.Issue("a", runs.Low)}, t0, ""); err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}
	loaded, err := s.LoadRuns(context.Background())
	if err != nil {
		t.Fatalf("LoadRuns() failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Errorf("in-memory store lost its run: %+v", loaded)
	}
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion+1)); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	s.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("Open() accepted a database from a newer schema")
	}
}

func TestDataset_SaveAndLatest(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	if _, _, err := s.LatestDataset(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LatestDataset() on empty store = %v, want ErrNotFound", err)
	}

	first := testutil.Dataset(1)
	fp1, err := s.SaveDataset(ctx, first)
	if err != nil {
		t.Fatalf("SaveDataset() failed: %v", err)
	}
	fp2, err := s.SaveDataset(ctx, testutil.Dataset(2))
	if err != nil {
		t.Fatalf("SaveDataset() failed: %v", err)
	}
	if fp1 == fp2 {
		t.Fatal("different datasets share a fingerprint")
	}

	_, info, err := s.LatestDataset(ctx)
	if err != nil {
		t.Fatalf("LatestDataset() failed: %v", err)
	}
	if info.Fingerprint != fp2 {
		t.Errorf("latest = %s, want %s", info.Fingerprint, fp2)
	}

	// Re-saving makes the dataset latest again without duplicating it.
	if _, err := s.SaveDataset(ctx, first); err != nil {
		t.Fatalf("SaveDataset() again failed: %v", err)
	}
	got, info, err := s.LatestDataset(ctx)
	if err != nil {
		t.Fatalf("LatestDataset() failed: %v", err)
	}
	if info.Fingerprint != fp1 || info.Seed != 1 || !info.GeneratedAt.Equal(t0) {
		t.Errorf("unexpected info %+v", info)
	}
	if diff := cmp.Diff(first, got); diff != "" {
		t.Errorf("dataset round trip mismatch (-want +got):\n%s", diff)
	}

	list, err := s.Datasets(ctx)
	if err != nil {
		t.Fatalf("Datasets() failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Datasets() returned %d rows, want 2", len(list))
	}
	if list[1].Fingerprint != fp1 {
		t.Errorf("Datasets() not ordered by last save")
	}

	if _, _, err := s.Dataset(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Dataset(nope) = %v, want ErrNotFound", err)
	}
}

func TestRecordRun_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	fp, err := s.SaveDataset(ctx, testutil.Dataset(1))
	if err != nil {
		t.Fatalf("SaveDataset() failed: %v", err)
	}

	r1, err := s.RecordRun(ctx, []runs.Issue{testutil.Issue("a", runs.Medium), testutil.Issue("b", runs.High)}, t0, fp)
	if err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}
	r2, err := s.RecordRun(ctx, nil, t0.Add(time.Hour), "")
	if err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}
	if r1.RunID != 1 || r2.RunID != 2 {
		t.Fatalf("run ids = %d, %d; want 1, 2", r1.RunID, r2.RunID)
	}

	loaded, err := s.LoadRuns(ctx)
	if err != nil {
		t.Fatalf("LoadRuns() failed: %v", err)
	}
	want := []runs.Run{r1, r2}
	if diff := cmp.Diff(want, loaded); diff != "" {
		t.Errorf("LoadRuns() mismatch (-want +got):\n%s", diff)
	}

	got, err := s.RunDataset(ctx, 1)
	if err != nil || got != fp {
		t.Errorf("RunDataset(1) = %q, %v; want %q", got, err, fp)
	}
	got, err = s.RunDataset(ctx, 2)
	if err != nil || got != "" {
		t.Errorf("RunDataset(2) = %q, %v; want empty", got, err)
	}
	if _, err := s.RunDataset(ctx, 9); !errors.Is(err, ErrNotFound) {
		t.Errorf("RunDataset(9) = %v, want ErrNotFound", err)
	}
}

func TestSaveRun_DuplicateRunIDFails(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	run := runs.Run{RunID: 1, Datetime: t0, Issues: []runs.Issue{testutil.Issue("a", runs.Low)}}
	if err := s.SaveRun(ctx, run, ""); err != nil {
		t.Fatalf("SaveRun() failed: %v", err)
	}
	run.Issues[0].ID = "b"
	if err := s.SaveRun(ctx, run, ""); err == nil {
		t.Fatal("SaveRun() with duplicate run_id succeeded")
	}

	loaded, err := s.LoadRuns(ctx)
	if err != nil {
		t.Fatalf("LoadRuns() failed: %v", err)
	}
	if len(loaded) != 1 || len(loaded[0].Issues) != 1 || loaded[0].Issues[0].ID != "a" {
		t.Errorf("failed SaveRun left partial state: %+v", loaded)
	}
}

func TestApplyCommand_PersistsTransition(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	if _, err := s.RecordRun(ctx, []runs.Issue{testutil.Issue("a", runs.Medium)}, t0, ""); err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}

	is, ev, err := s.ApplyCommand(ctx, runs.Snooze{IssueID: "a"}, t0)
	if err != nil {
		t.Fatalf("ApplyCommand() failed: %v", err)
	}
	if is.Status != runs.Snoozed || ev.Seq != 1 {
		t.Fatalf("unexpected result %+v %+v", is, ev)
	}

	_, ev2, err := s.ApplyCommand(ctx, runs.Acknowledge{IssueID: "a"}, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("ApplyCommand() failed: %v", err)
	}
	if ev2.Seq != 2 {
		t.Errorf("second event seq = %d, want 2", ev2.Seq)
	}

	book, err := s.LoadBook(ctx)
	if err != nil {
		t.Fatalf("LoadBook() failed: %v", err)
	}
	stored, _, err := book.Issue("a")
	if err != nil {
		t.Fatalf("Issue(a) failed: %v", err)
	}
	until := t0.Add(runs.SnoozeDuration)
	if stored.Status != runs.Snoozed || stored.SnoozedUntil == nil || !stored.SnoozedUntil.Equal(until) {
		t.Errorf("stored issue = %+v", stored)
	}

	events := book.Events()
	if len(events) != 2 || events[0].Command != "snooze" || events[1].Command != "acknowledge" {
		t.Errorf("events = %+v", events)
	}
}

func TestApplyCommand_Errors(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	if _, err := s.RecordRun(ctx, []runs.Issue{testutil.Issue("a", runs.Medium)}, t0, ""); err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}

	if _, _, err := s.ApplyCommand(ctx, runs.Resolve{IssueID: "missing"}, t0); !errors.Is(err, runs.ErrIssueNotFound) {
		t.Errorf("unknown issue: got %v, want ErrIssueNotFound", err)
	}

	if _, _, err := s.ApplyCommand(ctx, runs.Snooze{IssueID: "a"}, t0); err != nil {
		t.Fatalf("snooze failed: %v", err)
	}
	if _, _, err := s.ApplyCommand(ctx, runs.Snooze{IssueID: "a"}, t0); !errors.Is(err, runs.ErrInvalidTransition) {
		t.Errorf("double snooze: got %v, want ErrInvalidTransition", err)
	}

	events, err := s.LoadEvents(ctx)
	if err != nil {
		t.Fatalf("LoadEvents() failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("failed commands were recorded: %+v", events)
	}
}

func TestExpireSnoozes_Persists(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	if _, err := s.RecordRun(ctx, []runs.Issue{testutil.Issue("a", runs.Low), testutil.Issue("b", runs.Low)}, t0, ""); err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}
	if _, _, err := s.ApplyCommand(ctx, runs.Snooze{IssueID: "a"}, t0); err != nil {
		t.Fatalf("snooze failed: %v", err)
	}

	clock := testutil.NewClock(t0)
	events, err := s.ExpireSnoozes(ctx, clock.Advance(time.Hour))
	if err != nil {
		t.Fatalf("ExpireSnoozes() failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expired too early: %+v", events)
	}

	events, err = s.ExpireSnoozes(ctx, clock.Advance(24*time.Hour))
	if err != nil {
		t.Fatalf("ExpireSnoozes() failed: %v", err)
	}
	if len(events) != 1 || events[0].IssueID != "a" || events[0].To != runs.Open {
		t.Fatalf("events = %+v", events)
	}

	loaded, err := s.LoadRuns(ctx)
	if err != nil {
		t.Fatalf("LoadRuns() failed: %v", err)
	}
	a := loaded[0].Issues[0]
	if a.Status != runs.Open || !a.IsUnread || a.SnoozedUntil != nil {
		t.Errorf("issue a after expiry = %+v", a)
	}
}

func TestRecordTransition_UnknownIssue(t *testing.T) {
	s := setupTestStore(t)
	err := s.RecordTransition(context.Background(), runs.Issue{ID: "ghost", Status: runs.Open}, runs.Event{Seq: 1})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("RecordTransition(ghost) = %v, want ErrNotFound", err)
	}
}
