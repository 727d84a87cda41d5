// Package provider declares the capability the core requires of a remote
// data provider. Concrete adapters — HTTP request shaping, field mapping,
// JSON path extraction for a specific exchange, tracker, or marketplace —
// are external collaborators constructed and injected by the caller; this
// package defines only the contract the Auth Manager and Poll Feed depend
// on.
package provider

import "github.com/corvid-labs/tideline/internal/record"

// Adapter is the capability the core depends on. Implementations are
// opaque: the core never inspects how Authenticate or Snapshot work, only
// their results.
type Adapter interface {
	// Name is this adapter's stable provenance identifier, stamped onto
	// every record and event published on its behalf.
	Name() string

	// Authenticate establishes or renews a session. It returns true iff a
	// valid session was established; after a true return, IsAuthenticated
	// must report true. Authenticate must not panic in normal operation —
	// the Auth Manager recovers panics defensively, but a well-behaved
	// adapter reports failure by returning false or an error instead.
	Authenticate() (bool, error)

	// IsAuthenticated reports whether this adapter currently considers
	// its own session valid, independent of the Auth Manager's bookkeeping.
	IsAuthenticated() bool

	// Snapshot fetches one batch of records for the given selectors
	// (adapter-specific query parameters — sport IDs, region codes,
	// search terms; opaque to the core).
	Snapshot(selectors []string) ([]record.Record, error)
}
