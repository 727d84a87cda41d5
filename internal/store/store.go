// Package store persists records to flat JSON-array files on disk,
// grouped by destination and deduplicated by identity key, serialized
// across concurrent writers with a per-destination advisory file lock.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/corvid-labs/tideline/internal/lock"
	"github.com/corvid-labs/tideline/internal/record"
)

const defaultLockTimeout = 10 * time.Second

// Store writes records under a root directory, one JSON array file per
// destination, deduplicated by Record.IdentityKey.
type Store struct {
	rootDir     string
	lockTimeout time.Duration
	log         *slog.Logger
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLockTimeout overrides the default ten-second per-file lock timeout.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithLogger attaches a structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// New constructs a Store rooted at rootDir. rootDir is created on first
// write, not at construction time.
func New(rootDir string, opts ...Option) *Store {
	s := &Store{rootDir: rootDir, lockTimeout: defaultLockTimeout}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Save groups records by destination path and writes each group under its
// own lock. Existing records already present at a destination (matched by
// IdentityKey) are left untouched; only genuinely new records are
// appended. Returns the total number of records newly written across all
// destinations touched. A lock timeout or write failure for one
// destination is logged, that destination's records are dropped for this
// call, and the other destinations are still written; the returned error
// is always nil.
func (s *Store) Save(records []record.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	groups := make(map[string][]record.Record)
	dests := make(map[string]record.Destination)
	for _, r := range records {
		key := r.Destination.Key()
		groups[key] = append(groups[key], r)
		dests[key] = r.Destination
	}

	var total int
	for key, group := range groups {
		path := s.resolvePath(dests[key])
		n, err := s.writeGroup(path, group)
		total += n
		if err != nil {
			s.log.Error("store: write group failed", "path", path, "error", err)
			continue
		}
	}
	return total, nil
}

func (s *Store) resolvePath(dest record.Destination) string {
	parts := []string{s.rootDir}
	if dest.Kind != "" {
		parts = append(parts, dest.Kind)
	}
	parts = append(parts, dest.Buckets...)
	parts = append(parts, dest.Filename)
	return filepath.Join(parts...)
}

func (s *Store) writeGroup(path string, group []record.Record) (int, error) {
	lockPath := path + ".lock"

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("store: create destination dir: %w", err)
	}

	fl, err := lock.Acquire(lockPath, s.lockTimeout)
	if err != nil {
		return 0, fmt.Errorf("store: acquire lock for %s: %w", path, err)
	}
	defer fl.Release()

	return s.mergeAndWrite(path, group)
}

func (s *Store) mergeAndWrite(path string, group []record.Record) (int, error) {
	existing, err := readExisting(path)
	if err != nil {
		s.log.Warn("store: could not read existing file, overwriting", "path", path, "error", err)
		existing = nil
	}

	seen := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		seen[identityOf(r)] = struct{}{}
	}

	var fresh []map[string]any
	for _, r := range group {
		key := r.IdentityKey
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		fresh = append(fresh, payloadWithIdentity(r))
	}

	if len(fresh) == 0 {
		s.log.Debug("store: no new records", "path", path, "candidates", len(group))
		return 0, nil
	}

	merged := append(existing, fresh...)

	data, err := marshalPretty(merged)
	if err != nil {
		return 0, fmt.Errorf("store: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("store: write %s: %w", path, err)
	}

	s.log.Debug("store: wrote new records", "path", path, "new", len(fresh), "total", len(merged))
	return len(fresh), nil
}

func readExisting(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var out []map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

const identityField = "_identity_key"

func payloadWithIdentity(r record.Record) map[string]any {
	out := make(map[string]any, len(r.Payload)+1)
	for k, v := range r.Payload {
		out[k] = v
	}
	out[identityField] = r.IdentityKey
	return out
}

func identityOf(row map[string]any) string {
	v, ok := row[identityField]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// marshalPretty renders records as an indented JSON array without
// HTML-escaping, matching the byte-for-byte-stable output of a plain
// json.dump(..., indent=2, ensure_ascii=False) the store was modeled on.
func marshalPretty(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
