// Package roster loads the participant list and indexes it by normalized race
// number. A Roster is immutable after load; reloading produces a new instance
// so concurrent readers keep a consistent view.
package roster

import (
	"strings"
)

// Entry describes one registered participant.
type Entry struct {
	// Number is the race number as printed, possibly alphanumeric.
	Number   string
	Name     string
	Category string
	Team     string
	Tags     []string
}

// Roster is a read-only index of participants.
type Roster struct {
	entries []Entry
	byKey   map[string][]int
}

// New builds a roster index from the provided entries.
func New(entries []Entry) *Roster {
	r := &Roster{
		entries: make([]Entry, len(entries)),
		byKey:   make(map[string][]int, len(entries)),
	}
	copy(r.entries, entries)
	for i := range r.entries {
		key := NormalizeNumber(r.entries[i].Number)
		if key == "" {
			continue
		}
		r.byKey[key] = append(r.byKey[key], i)
	}
	return r
}

// Len returns the number of participants.
func (r *Roster) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Entries returns all participants. The returned slice must not be mutated.
func (r *Roster) Entries() []Entry {
	if r == nil {
		return nil
	}
	return r.entries
}

// ByNumber returns all entries whose normalized number equals the normalized
// form of the query. More than one entry is possible when numbers are reused
// across categories or when distinct printed forms ("7", "07") collapse under
// normalization.
func (r *Roster) ByNumber(number string) []Entry {
	if r == nil {
		return nil
	}
	key := NormalizeNumber(number)
	if key == "" {
		return nil
	}
	idx := r.byKey[key]
	if len(idx) == 0 {
		return nil
	}
	out := make([]Entry, 0, len(idx))
	for _, i := range idx {
		out = append(out, r.entries[i])
	}
	return out
}

// NormalizeNumber canonicalizes a race number for lookup: trims whitespace,
// uppercases, and strips leading zeros from purely numeric values ("07" and
// "7" identify the same participant). Alphanumeric numbers keep their zeros:
// "A07" stays distinct from "A7". This is the one normalization rule for the
// whole repository; the matcher and the roster index both use it.
func NormalizeNumber(number string) string {
	trimmed := strings.ToUpper(strings.Join(strings.Fields(number), ""))
	if trimmed == "" {
		return ""
	}
	allDigits := true
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			allDigits = false
			break
		}
	}
	if !allDigits {
		return trimmed
	}
	stripped := strings.TrimLeft(trimmed, "0")
	if stripped == "" {
		return "0"
	}
	return stripped
}
