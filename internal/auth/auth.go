// Package auth authenticates a set of provider adapters concurrently and
// tracks per-adapter session state across the process lifetime, including
// transparent expiry once a session's age passes its token TTL.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/corvid-labs/tideline/internal/provider"
)

// Status is a point in the session state machine described by spec.md §4.2:
// PENDING -> SUCCESS -> EXPIRED -> SUCCESS, with FAILED reachable from
// PENDING and EXPIRED, and SUCCESS reachable again from FAILED.
type Status int

const (
	Pending Status = iota
	Success
	Failed
	Expired
)

func (s Status) String() string {
	switch s {
	case Success:
		return "SUCCESS"
	case Failed:
		return "FAILED"
	case Expired:
		return "EXPIRED"
	default:
		return "PENDING"
	}
}

// Result is the outcome of the most recent authentication attempt for one
// source. AuthenticatedAt is the zero time iff the source has never
// reached Success.
type Result struct {
	Source          string
	Status          Status
	AuthenticatedAt time.Time
	Err             error
}

// OK reports whether this result currently represents a valid session.
func (r Result) OK() bool { return r.Status == Success }

// Age returns how long ago this source last authenticated successfully,
// relative to now. Age is undefined (zero) if AuthenticatedAt is zero.
func (r Result) Age(now time.Time) time.Duration {
	if r.AuthenticatedAt.IsZero() {
		return 0
	}
	return now.Sub(r.AuthenticatedAt)
}

func (r Result) expired(now time.Time, ttl time.Duration) bool {
	if r.AuthenticatedAt.IsZero() {
		return false
	}
	return now.Sub(r.AuthenticatedAt) >= ttl
}

// Manager authenticates a fixed set of adapters concurrently and tracks
// their session state. Concurrent calls to AuthenticateAll on the same
// Manager are not required to be safe against each other — callers own
// that discipline, same as the system this was modeled on.
type Manager struct {
	clients    map[string]provider.Adapter
	tokenTTL   time.Duration
	maxWorkers int
	log        *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	results map[string]Result
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithClock overrides the Manager's notion of "now", for deterministic
// expiry tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger attaches a structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// New constructs a Manager over clients. tokenTTL is the wall-clock
// duration after which a SUCCESS session is considered EXPIRED regardless
// of the adapter's own opinion; maxWorkers bounds the concurrent
// authentication worker pool.
func New(clients map[string]provider.Adapter, tokenTTL time.Duration, maxWorkers int, opts ...Option) *Manager {
	m := &Manager{
		clients:    clients,
		tokenTTL:   tokenTTL,
		maxWorkers: maxWorkers,
		now:        time.Now,
		results:    make(map[string]Result, len(clients)),
	}
	for name := range clients {
		m.results[name] = Result{Source: name, Status: Pending}
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	return m
}

// AuthenticateAll authenticates every adapter whose session is PENDING,
// FAILED, EXPIRED, or whose SUCCESS session has aged past the token TTL,
// using a worker pool of size min(maxWorkers, len(targets)). Adapters with
// an already-valid session are skipped unless force is true. Returns once
// every dispatched attempt has recorded a result.
func (m *Manager) AuthenticateAll(ctx context.Context, force bool) map[string]Result {
	m.mu.Lock()
	targets := make(map[string]provider.Adapter)
	for name, client := range m.clients {
		if force || m.needsAuth(name) {
			targets[name] = client
		}
	}
	m.mu.Unlock()

	if len(targets) == 0 {
		m.log.Debug("auth: all sessions already valid, nothing to do")
		return m.Status()
	}

	workers := m.maxWorkers
	if workers > len(targets) {
		workers = len(targets)
	}
	if workers < 1 {
		workers = 1
	}

	m.log.Info("auth: authenticating concurrently", "sources", len(targets), "workers", workers)

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for name, client := range targets {
		wg.Add(1)
		go func(name string, client provider.Adapter) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result := m.authOne(ctx, name, client)
			m.mu.Lock()
			m.results[name] = result
			m.mu.Unlock()
			m.log.Info("auth: result", "source", name, "status", result.Status.String())
		}(name, client)
	}
	wg.Wait()

	return m.Status()
}

// RefreshExpired re-authenticates only the sources currently EXPIRED,
// FAILED, or PENDING (including sessions whose SUCCESS has aged past the
// TTL but have not yet been swept to EXPIRED by a status read).
func (m *Manager) RefreshExpired(ctx context.Context) map[string]Result {
	m.markExpired()

	m.mu.Lock()
	stale := false
	for _, r := range m.results {
		if r.Status != Success {
			stale = true
			break
		}
	}
	m.mu.Unlock()

	if !stale {
		return m.Status()
	}
	return m.AuthenticateAll(ctx, false)
}

// AuthenticatedClients returns a fresh map of the adapters currently in
// SUCCESS and not time-expired. Any SUCCESS record past its TTL is first
// transitioned to EXPIRED. Mutating the returned map never affects the
// Manager's internal state.
func (m *Manager) AuthenticatedClients() map[string]provider.Adapter {
	m.markExpired()

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]provider.Adapter)
	for name, r := range m.results {
		if r.Status == Success {
			out[name] = m.clients[name]
		}
	}
	return out
}

// Status returns a snapshot map of Result, after sweeping any aged-out
// SUCCESS sessions to EXPIRED.
func (m *Manager) Status() map[string]Result {
	m.markExpired()

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Result, len(m.results))
	for k, v := range m.results {
		out[k] = v
	}
	return out
}

func (m *Manager) needsAuth(name string) bool {
	r := m.results[name]
	switch r.Status {
	case Pending, Failed, Expired:
		return true
	case Success:
		return r.expired(m.now(), m.tokenTTL)
	default:
		return true
	}
}

func (m *Manager) markExpired() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, r := range m.results {
		if r.Status == Success && r.expired(now, m.tokenTTL) {
			m.results[name] = Result{Source: name, Status: Expired, AuthenticatedAt: r.AuthenticatedAt}
		}
	}
}

// authOne runs a single Authenticate call, retrying transient failures
// with a short exponential backoff, and never lets a panic or error
// escape: every outcome becomes a Result.
func (m *Manager) authOne(ctx context.Context, name string, client provider.Adapter) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{Source: name, Status: Failed, Err: fmt.Errorf("panic during authenticate: %v", r)}
		}
	}()

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)

	var ok bool
	var lastErr error
	err := backoff.Retry(func() error {
		var authErr error
		ok, authErr = client.Authenticate()
		if authErr != nil {
			lastErr = authErr
			return authErr
		}
		if !ok {
			lastErr = fmt.Errorf("authenticate() returned false")
			return lastErr
		}
		return nil
	}, bo)

	if err != nil {
		return Result{Source: name, Status: Failed, Err: lastErr}
	}
	return Result{Source: name, Status: Success, AuthenticatedAt: m.now()}
}
