// Package ledger is the durable, append-only revision log.
//
// Every committed revision of every resource is one row in a SQLite table.
// The ledger is the single source of truth: the current state of a resource
// is its highest revision, the search projection is rebuilt from Scan, and
// nothing ever updates or deletes a row (triggers enforce this).
//
// Append is the only write. It checks, inside a transaction, that the new
// revision is exactly one above the current maximum for the resource and
// refuses anything else with a LedgerSequenceGap error. Callers serialize
// writers per resource; the check catches bugs, it does not arbitrate races.
package ledger
