package chatters

// Snapshot maps each category to the accounts present in it at fetch time.
// A Snapshot is treated as immutable once received.
type Snapshot map[Category][]string

// Total returns the number of entries across all categories.
func (s Snapshot) Total() int {
	n := 0
	for _, accounts := range s {
		n += len(accounts)
	}
	return n
}

// SeenSet is the flattened set of accounts observed in the previous snapshot.
type SeenSet map[string]struct{}

// Has reports whether account was seen.
func (s SeenSet) Has(account string) bool {
	_, ok := s[account]
	return ok
}

// Len returns the number of distinct accounts.
func (s SeenSet) Len() int { return len(s) }

// Flatten collapses every category of snapshot into one SeenSet. An account
// listed under several categories yields a single entry.
func Flatten(snapshot Snapshot) SeenSet {
	seen := make(SeenSet, snapshot.Total())
	for _, accounts := range snapshot {
		for _, a := range accounts {
			seen[a] = struct{}{}
		}
	}
	return seen
}
