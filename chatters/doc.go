// Package chatters classifies the accounts present in a channel's chat.
//
// A Snapshot is one fetched listing of accounts grouped by Category. The
// previous snapshot is flattened into a SeenSet, and Classify compares the
// current snapshot against it to split every category into accounts that are
// new since the last poll and accounts that were already there.
//
// Nothing in this package performs I/O or keeps state between calls; the
// dashboard package owns the snapshot lifecycle.
package chatters
