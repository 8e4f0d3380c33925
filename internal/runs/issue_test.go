package runs

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverity_TextRoundTrip(t *testing.T) {
	for _, s := range []Severity{None, Low, Medium, High} {
		text, err := s.MarshalText()
		require.NoError(t, err)

		var got Severity
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, s, got)
	}

	got, err := ParseSeverity("high")
	require.NoError(t, err)
	assert.Equal(t, High, got)

	_, err = ParseSeverity("critical")
	require.Error(t, err)
	assert.Equal(t, "Severity(9)", Severity(9).String())
}

func TestSeverity_Ordering(t *testing.T) {
	assert.Less(t, None, Low)
	assert.Less(t, Low, Medium)
	assert.Less(t, Medium, High)
}

func TestIssue_JSONShape(t *testing.T) {
	is := newIssue("issue-0001")
	data, err := json.Marshal(is)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "Medium", m["severity"])
	assert.Equal(t, "Open", m["status"])
	assert.Nil(t, m["snoozed_until"])
	assert.NotContains(t, m, "account_name", "empty entity names are omitted")
}

func TestIssue_Clone(t *testing.T) {
	until := t0
	is := newIssue("a")
	is.SnoozedUntil = &until

	c := is.Clone()
	c.Fields[0] = "x"
	*c.SnoozedUntil = t0.Add(time.Hour)

	assert.Equal(t, "stage", is.Fields[0])
	assert.Equal(t, t0, *is.SnoozedUntil)
}

func TestRun_CountBySeverity(t *testing.T) {
	a, b, c := newIssue("a"), newIssue("b"), newIssue("c")
	c.Severity = High
	r := Run{Issues: []Issue{a, b, c}}
	assert.Equal(t, map[Severity]int{Medium: 2, High: 1}, r.CountBySeverity())
}

func TestSequenceGenerator(t *testing.T) {
	g := NewSequenceGenerator("")
	assert.Equal(t, "issue-0001", g.Generate())
	assert.Equal(t, "issue-0002", g.Generate())

	var wg sync.WaitGroup
	seen := sync.Map{}
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, dup := seen.LoadOrStore(g.Generate(), true)
			assert.False(t, dup)
		}()
	}
	wg.Wait()
}

func TestUUIDv7Generator(t *testing.T) {
	id := UUIDv7Generator{}.Generate()
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestClock(t *testing.T) {
	c := NewClockAt(10)
	assert.Equal(t, int64(10), c.Current())
	assert.Equal(t, int64(11), c.Next())
	assert.Equal(t, int64(11), c.Current())
}

func TestRunsFile_RoundTrip(t *testing.T) {
	b := bookWith(t, "a", "b")
	_, err := b.Apply(Snooze{IssueID: "b"}, t0)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteRunsFile(&buf, b.Runs(), b.Events()))
	assert.Contains(t, buf.String(), `"schema": "revops-agent-run"`)

	f, err := ReadRunsFile(&buf)
	require.NoError(t, err)
	assert.Equal(t, b.Runs(), f.Runs)
	assert.Equal(t, b.Events(), f.Events)
}

func TestReadRunsFile_Rejects(t *testing.T) {
	_, err := ReadRunsFile(strings.NewReader(`{"schema":"other","runs":[]}`))
	require.Error(t, err)

	_, err = ReadRunsFile(strings.NewReader(`{"schema":"revops-agent-run","runs":[{"run_id":1,"issues":[{"id":"x","status":"Gone"}]}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")
}

func TestWriteCSV(t *testing.T) {
	is := newIssue("a")
	is.Fields = []string{"stage", "closeDate"}
	is.Explanation = "Total Opps: 12\nRatio: 50.00%"
	is.MetricValue = 50

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, Run{RunID: 3, Issues: []Issue{is}}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, CSVColumns, records[0])

	row := map[string]string{}
	for i, col := range CSVColumns {
		row[col] = records[1][i]
	}
	assert.Equal(t, "stage, closeDate", row["fields"])
	assert.Equal(t, `Total Opps: 12\nRatio: 50.00%`, row["explanation"])
	assert.Equal(t, "50", row["metric_value"])
	assert.Equal(t, "", row["snoozed_until"])
	assert.Equal(t, "", row["account_name"])
	assert.Equal(t, "true", row["is_unread"])
	assert.Equal(t, "run-3-issues.csv", CSVFileName(3))
}
