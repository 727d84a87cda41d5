// Package feed runs one background polling loop per provider adapter,
// publishing each cycle's snapshot onto the topic bus and re-authenticating
// through the auth manager when a session has lapsed.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/corvid-labs/tideline/internal/auth"
	"github.com/corvid-labs/tideline/internal/bus"
	"github.com/corvid-labs/tideline/internal/provider"
	"github.com/corvid-labs/tideline/internal/record"
)

const stopGraceExtra = 5 * time.Second

// Feed polls a single provider adapter on a fixed interval in a
// background goroutine.
//
// Control topics published:
//
//	feed.started.<name>   after the first successful poll
//	feed.stopped.<name>    when Stop returns
//	feed.error.<name>      on any error during a poll cycle
//	odds.<name>            one event per successful poll, carrying the snapshot
type Feed struct {
	Name       string
	adapter    provider.Adapter
	authMgr    *auth.Manager
	bus        *bus.Bus
	selectors  []string
	interval   time.Duration
	log        *slog.Logger

	mu        sync.Mutex
	stopCh    chan struct{}
	doneCh    chan struct{}
	running   bool
	pollCount int
}

// Option configures a Feed at construction time.
type Option func(*Feed)

// WithLogger attaches a structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(f *Feed) { f.log = log }
}

// New constructs a Feed for one adapter. interval is the wait between the
// end of one poll cycle and the start of the next.
func New(name string, adapter provider.Adapter, authMgr *auth.Manager, b *bus.Bus, selectors []string, interval time.Duration, opts ...Option) *Feed {
	f := &Feed{
		Name:      name,
		adapter:   adapter,
		authMgr:   authMgr,
		bus:       b,
		selectors: selectors,
		interval:  interval,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = slog.Default()
	}
	return f
}

// Start launches the polling loop in a background goroutine. Calling
// Start while already running logs a warning and is a no-op.
func (f *Feed) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		f.log.Warn("feed already running", "source", f.Name)
		return
	}
	f.stopCh = make(chan struct{})
	f.doneCh = make(chan struct{})
	f.running = true
	f.mu.Unlock()

	go f.loop(f.stopCh, f.doneCh)
	f.log.Info("feed started", "source", f.Name, "interval", f.interval)
}

// Stop signals the polling loop to exit and waits for it to finish, up to
// interval+5s of grace, then publishes feed.stopped.<name>. Calling Stop
// when not running is a no-op.
func (f *Feed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	stopCh, doneCh := f.stopCh, f.doneCh
	f.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
	case <-time.After(f.interval + stopGraceExtra):
		f.log.Warn("feed did not stop within grace period", "source", f.Name)
	}

	f.mu.Lock()
	f.running = false
	f.mu.Unlock()

	f.bus.Publish(fmt.Sprintf("feed.stopped.%s", f.Name), f.Name, nil)
	f.log.Info("feed stopped", "source", f.Name)
}

// IsRunning reports whether the polling goroutine is currently active.
func (f *Feed) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *Feed) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	firstRun := true
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		if err := f.poll(); err != nil {
			f.log.Error("feed poll error", "source", f.Name, "error", err)
			f.bus.Publish(fmt.Sprintf("feed.error.%s", f.Name), f.Name, map[string]any{"error": err.Error()})
		} else if firstRun {
			f.bus.Publish(fmt.Sprintf("feed.started.%s", f.Name), f.Name, nil)
			firstRun = false
		}

		select {
		case <-stopCh:
			return
		case <-time.After(f.interval):
		}
	}
}

func (f *Feed) poll() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during poll: %v", r)
		}
	}()

	if !f.adapter.IsAuthenticated() {
		f.log.Info("feed: session invalid, re-authenticating", "source", f.Name)
		results := f.authMgr.RefreshExpired(context.Background())
		if r, ok := results[f.Name]; !ok || !r.OK() {
			return fmt.Errorf("re-auth failed for %s", f.Name)
		}
	}

	snapshot, err := f.snapshotWithBackoff()
	if err != nil {
		return err
	}
	for i := range snapshot {
		snapshot[i].Source = f.Name
	}

	f.mu.Lock()
	f.pollCount++
	count := f.pollCount
	f.mu.Unlock()

	f.log.Debug("feed: poll complete", "source", f.Name, "cycle", count, "records", len(snapshot))
	f.bus.Publish(fmt.Sprintf("odds.%s", f.Name), f.Name, snapshot)
	return nil
}

// snapshotWithBackoff retries a transient Snapshot failure a couple of
// times with a short exponential backoff before giving up for this
// cycle; a sustained failure still surfaces as a feed.error event on the
// cycle it exhausts, not a blocked poll loop.
func (f *Feed) snapshotWithBackoff() ([]record.Record, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 2 * time.Second
	limited := backoff.WithMaxRetries(bo, 2)

	var snapshot []record.Record
	err := backoff.Retry(func() error {
		var snapErr error
		snapshot, snapErr = f.adapter.Snapshot(f.selectors)
		return snapErr
	}, limited)
	return snapshot, err
}
