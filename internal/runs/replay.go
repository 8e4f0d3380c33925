package runs

import (
	"fmt"
	"slices"
	"time"
)

// Replay rebuilds lifecycle state from the audit log. Every issue starts as
// the engine emits it (Open, unread, not snoozed) and events are applied in
// seq order at their recorded times. The result should equal the stored
// runs; Mismatches reports where it does not.
func Replay(stored []Run, events []Event) ([]Run, error) {
	fresh := make([]Run, len(stored))
	for i, r := range stored {
		fresh[i] = r.Clone()
		for j := range fresh[i].Issues {
			is := &fresh[i].Issues[j]
			is.Status = Open
			is.IsUnread = true
			is.SnoozedUntil = nil
		}
	}

	ordered := slices.Clone(events)
	slices.SortFunc(ordered, func(a, b Event) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})

	book := NewBook(fresh, nil)
	for _, ev := range ordered {
		cmd, err := NewCommand(ev.Command, ev.IssueID)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", ev.Seq, err)
		}
		got, err := book.Apply(cmd, ev.At)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", ev.Seq, err)
		}
		if got.From != ev.From || got.To != ev.To {
			return nil, fmt.Errorf("event %d: %s on %s went %s -> %s, recorded %s -> %s",
				ev.Seq, ev.Command, ev.IssueID, got.From, got.To, ev.From, ev.To)
		}
	}
	return book.Runs(), nil
}

// Mismatches lists issues whose lifecycle state differs between want and
// got, matched by issue id.
func Mismatches(want, got []Run) []string {
	index := map[string]Issue{}
	for _, r := range got {
		for _, is := range r.Issues {
			index[is.ID] = is
		}
	}

	var out []string
	for _, r := range want {
		for _, w := range r.Issues {
			g, ok := index[w.ID]
			switch {
			case !ok:
				out = append(out, fmt.Sprintf("%s: missing after replay", w.ID))
			case g.Status != w.Status:
				out = append(out, fmt.Sprintf("%s: status %s, replayed %s", w.ID, w.Status, g.Status))
			case g.IsUnread != w.IsUnread:
				out = append(out, fmt.Sprintf("%s: is_unread %t, replayed %t", w.ID, w.IsUnread, g.IsUnread))
			case !sameTime(w.SnoozedUntil, g.SnoozedUntil):
				out = append(out, fmt.Sprintf("%s: snoozed_until differs after replay", w.ID))
			}
		}
	}
	return out
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
