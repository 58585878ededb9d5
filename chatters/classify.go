package chatters

import (
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// LargeCategoryThreshold is the number of returning viewers above which the
// returning list is withheld and only new viewers are surfaced.
const LargeCategoryThreshold = 100

// Section is the classification of one category of a snapshot.
type Section struct {
	Category  Category `json:"category"`
	Label     string   `json:"label"`
	New       []string `json:"new"`
	Returning []string `json:"returning"`
	// Truncated is set when returning accounts exist but were withheld.
	Truncated bool `json:"truncated"`
}

// Classify splits the accounts of one category into new and returning
// accounts relative to seen. It returns nil when there is nothing to render:
// no snapshot yet, an empty category, or a large viewers category with no new
// accounts. Neither snapshot nor seen is modified.
func Classify(snapshot Snapshot, seen SeenSet, category Category) *Section {
	if snapshot == nil {
		return nil
	}
	accounts := snapshot[category]
	if len(accounts) == 0 {
		return nil
	}

	newAccounts := make([]string, 0)
	returning := make([]string, 0, len(accounts))
	for _, a := range accounts {
		if seen.Len() > 0 && !seen.Has(a) {
			newAccounts = append(newAccounts, a)
		} else {
			returning = append(returning, a)
		}
	}

	large := category == Viewers && len(returning) > LargeCategoryThreshold
	if len(newAccounts) == 0 && (len(returning) == 0 || large) {
		return nil
	}

	sortAccounts(newAccounts)
	sortAccounts(returning)

	s := &Section{
		Category:  category,
		Label:     category.Label(),
		New:       newAccounts,
		Returning: returning,
	}
	if large {
		s.Returning = []string{}
		s.Truncated = true
	}
	return s
}

// ClassifyAll classifies every rendered category in DisplayOrder and drops the
// ones with nothing to show.
func ClassifyAll(snapshot Snapshot, seen SeenSet) []Section {
	out := make([]Section, 0, len(DisplayOrder))
	for _, c := range DisplayOrder {
		if s := Classify(snapshot, seen, c); s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// sortAccounts orders names the way a browser's localeCompare would, so
// "Alice" sorts before "bob" rather than by byte value.
// Collators keep internal buffers, so one is built per call.
func sortAccounts(names []string) {
	if len(names) < 2 {
		return
	}
	collate.New(language.English).SortStrings(names)
}
