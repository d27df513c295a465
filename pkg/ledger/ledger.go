// Package ledger records what a build created so it can be reversed.
package ledger

import (
	"slices"
	"strconv"
	"strings"
)

// Ledger is an append-only list of created location ids in creation order.
type Ledger struct {
	ids []int64
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Append records a created id.
func (l *Ledger) Append(id int64) {
	l.ids = append(l.ids, id)
}

// Len returns the number of recorded ids.
func (l *Ledger) Len() int {
	return len(l.ids)
}

// IDs returns the recorded ids in creation order.
func (l *Ledger) IDs() []int64 {
	return slices.Clone(l.ids)
}

// Reversed returns the ids in removal order: children before their parents.
func (l *Ledger) Reversed() []int64 {
	out := slices.Clone(l.ids)
	slices.Reverse(out)
	return out
}

// String renders the removal order as a comma separated list, ready to be
// passed to the remove command.
func (l *Ledger) String() string {
	parts := make([]string, 0, len(l.ids))
	for _, id := range l.Reversed() {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}
