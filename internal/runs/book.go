package runs

import (
	"errors"
	"fmt"
	"time"
)

// SnoozeDuration is how long Snooze hides an issue.
const SnoozeDuration = 24 * time.Hour

var (
	// ErrIssueNotFound is returned when a command names an unknown issue.
	ErrIssueNotFound = errors.New("issue not found")

	// ErrInvalidTransition is returned when a command is not allowed from
	// the issue's current status.
	ErrInvalidTransition = errors.New("invalid transition")
)

// Command is a lifecycle mutation. The set is closed: Acknowledge, Snooze,
// Resolve and Reopen.
type Command interface {
	Target() string
	Name() string
	apply(is *Issue, now time.Time) error
}

// Acknowledge marks an open issue as read.
type Acknowledge struct{ IssueID string }

// Snooze hides an issue for SnoozeDuration.
type Snooze struct{ IssueID string }

// Resolve closes an issue.
type Resolve struct{ IssueID string }

// Reopen returns an issue to Open and marks it unread.
type Reopen struct{ IssueID string }

func (c Acknowledge) Target() string { return c.IssueID }
func (c Snooze) Target() string      { return c.IssueID }
func (c Resolve) Target() string     { return c.IssueID }
func (c Reopen) Target() string      { return c.IssueID }

func (Acknowledge) Name() string { return "acknowledge" }
func (Snooze) Name() string      { return "snooze" }
func (Resolve) Name() string     { return "resolve" }
func (Reopen) Name() string      { return "reopen" }

// Acknowledge only moves Open issues; anything else is left untouched.
func (Acknowledge) apply(is *Issue, _ time.Time) error {
	if is.Status != Open {
		return nil
	}
	is.Status = Acknowledged
	is.IsUnread = false
	return nil
}

func (Snooze) apply(is *Issue, now time.Time) error {
	if is.Status == Snoozed {
		return fmt.Errorf("%w: issue %s is already snoozed", ErrInvalidTransition, is.ID)
	}
	until := now.Add(SnoozeDuration)
	is.Status = Snoozed
	is.SnoozedUntil = &until
	return nil
}

func (Resolve) apply(is *Issue, _ time.Time) error {
	is.Status = Resolved
	is.SnoozedUntil = nil
	return nil
}

func (Reopen) apply(is *Issue, _ time.Time) error {
	is.Status = Open
	is.SnoozedUntil = nil
	is.IsUnread = true
	return nil
}

// NewCommand builds a command from its Name.
func NewCommand(name, issueID string) (Command, error) {
	switch name {
	case "acknowledge", "ack":
		return Acknowledge{IssueID: issueID}, nil
	case "snooze":
		return Snooze{IssueID: issueID}, nil
	case "resolve":
		return Resolve{IssueID: issueID}, nil
	case "reopen":
		return Reopen{IssueID: issueID}, nil
	}
	return nil, fmt.Errorf("unknown command %q", name)
}

// Event is the audit record of one applied command.
type Event struct {
	Seq     int64     `json:"seq"`
	RunID   int       `json:"run_id"`
	IssueID string    `json:"issue_id"`
	Command string    `json:"command"`
	From    Status    `json:"from"`
	To      Status    `json:"to"`
	At      time.Time `json:"at"`
}

// Book is the ordered collection of runs. It is not safe for concurrent
// use; the CLI applies one command per process.
type Book struct {
	runs   []Run
	events []Event
	clock  *Clock
	where  map[string]location
}

type location struct {
	run   int // index into runs
	issue int // index into runs[run].Issues
}

// NewBook creates a book over existing runs and their audit events, in
// insertion order. The slices are copied.
func NewBook(existing []Run, events []Event) *Book {
	b := &Book{where: make(map[string]location)}
	var lastSeq int64
	for _, ev := range events {
		lastSeq = max(lastSeq, ev.Seq)
	}
	b.clock = NewClockAt(lastSeq)
	b.events = append([]Event(nil), events...)
	for _, r := range existing {
		b.add(r.Clone())
	}
	return b
}

func (b *Book) add(r Run) {
	b.runs = append(b.runs, r)
	ri := len(b.runs) - 1
	for ii, is := range r.Issues {
		b.where[is.ID] = location{run: ri, issue: ii}
	}
}

// Record stores issues as a new run with id max(run_id)+1, or 1 when the
// book is empty.
func (b *Book) Record(issues []Issue, at time.Time) Run {
	next := 1
	for _, r := range b.runs {
		next = max(next, r.RunID+1)
	}
	r := Run{RunID: next, Datetime: at, Issues: make([]Issue, len(issues))}
	for i, is := range issues {
		r.Issues[i] = is.Clone()
	}
	b.add(r)
	return r.Clone()
}

// Runs returns copies of every run in insertion order.
func (b *Book) Runs() []Run {
	out := make([]Run, len(b.runs))
	for i, r := range b.runs {
		out[i] = r.Clone()
	}
	return out
}

// Run returns a copy of the run with id.
func (b *Book) Run(id int) (Run, bool) {
	for _, r := range b.runs {
		if r.RunID == id {
			return r.Clone(), true
		}
	}
	return Run{}, false
}

// Latest returns the most recently recorded run.
func (b *Book) Latest() (Run, bool) {
	if len(b.runs) == 0 {
		return Run{}, false
	}
	return b.runs[len(b.runs)-1].Clone(), true
}

// Issue returns a copy of the issue and the id of the run holding it.
func (b *Book) Issue(id string) (Issue, int, error) {
	loc, ok := b.where[id]
	if !ok {
		return Issue{}, 0, fmt.Errorf("%w: %s", ErrIssueNotFound, id)
	}
	r := b.runs[loc.run]
	return r.Issues[loc.issue].Clone(), r.RunID, nil
}

// Events returns the audit log in sequence order.
func (b *Book) Events() []Event {
	return append([]Event(nil), b.events...)
}

// Apply runs cmd against its issue in place and returns the audit event.
// A failed command leaves the issue unchanged and records nothing.
func (b *Book) Apply(cmd Command, now time.Time) (Event, error) {
	loc, ok := b.where[cmd.Target()]
	if !ok {
		return Event{}, fmt.Errorf("%s: %w: %s", cmd.Name(), ErrIssueNotFound, cmd.Target())
	}
	r := &b.runs[loc.run]
	is := &r.Issues[loc.issue]

	from := is.Status
	next := is.Clone()
	if err := cmd.apply(&next, now); err != nil {
		return Event{}, fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	*is = next

	ev := Event{
		Seq:     b.clock.Next(),
		RunID:   r.RunID,
		IssueID: is.ID,
		Command: cmd.Name(),
		From:    from,
		To:      is.Status,
		At:      now,
	}
	b.events = append(b.events, ev)
	return ev, nil
}

// ExpireSnoozes reopens every snoozed issue whose SnoozedUntil is at or
// before now.
func (b *Book) ExpireSnoozes(now time.Time) ([]Event, error) {
	var expired []string
	for _, r := range b.runs {
		for _, is := range r.Issues {
			if is.Status == Snoozed && is.SnoozedUntil != nil && !is.SnoozedUntil.After(now) {
				expired = append(expired, is.ID)
			}
		}
	}

	var events []Event
	for _, id := range expired {
		ev, err := b.Apply(Reopen{IssueID: id}, now)
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}
