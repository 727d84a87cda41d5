// Package record defines the data shapes that flow through the harvesting
// core: Records produced by a provider adapter, the Snapshot batching them,
// and the Destination path the file store resolves to disk. The core
// treats the payload carried alongside these fields as opaque.
package record

import "strings"

// Record is one unit of harvested data. IdentityKey is the string the
// deduplicating store uses to recognize a record it has already persisted;
// Destination is the path tuple that store resolves to a file on disk.
// Source is the provenance tag; the poll feed overwrites it with the
// adapter's name on every record before publish.
type Record struct {
	Source      string
	IdentityKey string
	Destination Destination
	Payload     map[string]any
}

// Destination is the ordered path tuple "<root>/<kind>/<bucket...>/<filename>"
// a Record resolves to. Root is supplied by the store, not the adapter.
type Destination struct {
	Kind     string
	Buckets  []string
	Filename string
}

// Key returns a stable string key for grouping records bound for the same
// file, independent of the store's root directory.
func (d Destination) Key() string {
	parts := append([]string{d.Kind}, d.Buckets...)
	parts = append(parts, d.Filename)
	return strings.Join(parts, "/")
}

// Snapshot is an ordered, immutable batch of Records produced by one call
// to a provider adapter. The core never mutates a Snapshot after the
// producing Poll Feed publishes it.
type Snapshot struct {
	Source  string
	Records []Record
}
