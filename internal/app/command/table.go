// Package command provides the phrase table and the command router.
package command

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Handler is a side-effecting closure bound to a phrase. The router never
// retries a handler; failures are the handler's own to report.
type Handler func(ctx context.Context, text string) error

// Entry binds one phrase to its handler.
type Entry struct {
	Phrase  string
	Handler Handler
}

// Table is the immutable, pre-sorted phrase table. Entries are ordered by
// descending phrase length so that more specific phrases ("stop bluetooth
// mode") are tested before shorter generic ones ("stop") that would
// otherwise shadow them.
type Table struct {
	entries []Entry
}

// NewTable validates the entries and builds the table. The order is
// asserted at startup rather than sorted at runtime: a table that is not
// in descending-length order is a construction bug.
func NewTable(entries []Entry) (Table, error) {
	if len(entries) == 0 {
		return Table{}, errors.New("phrase table must not be empty")
	}

	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.Phrase == "" {
			return Table{}, errors.Newf("entry %d has an empty phrase", i)
		}
		if e.Handler == nil {
			return Table{}, errors.Newf("phrase %q has a nil handler", e.Phrase)
		}
		if seen[e.Phrase] {
			return Table{}, errors.Newf("duplicate phrase %q", e.Phrase)
		}
		seen[e.Phrase] = true

		if i > 0 && len(entries[i-1].Phrase) < len(e.Phrase) {
			return Table{}, errors.Newf("phrase table not in descending length order: %q after %q",
				e.Phrase, entries[i-1].Phrase)
		}
	}

	copied := make([]Entry, len(entries))
	copy(copied, entries)
	return Table{entries: copied}, nil
}

// Phrases returns the phrases in table order.
func (t Table) Phrases() []string {
	phrases := make([]string, len(t.entries))
	for i, e := range t.entries {
		phrases[i] = e.Phrase
	}
	return phrases
}

// Len returns the number of entries.
func (t Table) Len() int {
	return len(t.entries)
}
