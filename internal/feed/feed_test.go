package feed

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/corvid-labs/tideline/internal/auth"
	"github.com/corvid-labs/tideline/internal/bus"
	"github.com/corvid-labs/tideline/internal/provider"
	"github.com/corvid-labs/tideline/internal/record"
)

type fakeAdapter struct {
	name string

	mu            sync.Mutex
	authenticated bool
	calls         int32
	// failFrom/failUntil mark an inclusive range of call numbers (1-based,
	// counting every underlying Snapshot call including backoff retries)
	// that return an error; zero means never fail.
	failFrom  int32
	failUntil int32
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Authenticate() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authenticated = true
	return true, nil
}

func (f *fakeAdapter) IsAuthenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authenticated
}

func (f *fakeAdapter) Snapshot(selectors []string) ([]record.Record, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.failFrom != 0 && n >= f.failFrom && n <= f.failUntil {
		return nil, errors.New("simulated snapshot error")
	}
	return []record.Record{{Source: f.name, IdentityKey: "x"}}, nil
}

func TestFeedPublishesLifecycleAndOddsEvents(t *testing.T) {
	b := bus.New(bus.Sync, nil)
	adapter := &fakeAdapter{name: "alpha", authenticated: true}
	clients := map[string]provider.Adapter{"alpha": adapter}
	mgr := auth.New(clients, time.Hour, 2)

	var mu sync.Mutex
	var topics []string
	b.Subscribe("*", func(e bus.Event) {
		mu.Lock()
		topics = append(topics, e.Topic)
		mu.Unlock()
	})

	f := New("alpha", adapter, mgr, b, nil, 10*time.Millisecond)
	f.Start()
	time.Sleep(35 * time.Millisecond)
	f.Stop()

	mu.Lock()
	defer mu.Unlock()

	var sawStarted, sawOdds, sawStopped bool
	for _, topic := range topics {
		switch topic {
		case "feed.started.alpha":
			sawStarted = true
		case "odds.alpha":
			sawOdds = true
		case "feed.stopped.alpha":
			sawStopped = true
		}
	}
	if !sawStarted {
		t.Error("expected feed.started.alpha event")
	}
	if !sawOdds {
		t.Error("expected odds.alpha event")
	}
	if !sawStopped {
		t.Error("expected feed.stopped.alpha event")
	}
}

func TestFeedErrorPathThenRecovery(t *testing.T) {
	b := bus.New(bus.Sync, nil)
	// The second poll cycle's underlying Snapshot calls (2, 3, 4) all fail,
	// exhausting snapshotWithBackoff's full retry budget for that cycle, so
	// the cycle still surfaces as feed.error.beta. Call 5, on the next
	// cycle, succeeds.
	adapter := &fakeAdapter{name: "beta", authenticated: true, failFrom: 2, failUntil: 4}
	clients := map[string]provider.Adapter{"beta": adapter}
	mgr := auth.New(clients, time.Hour, 2)

	var mu sync.Mutex
	var topics []string
	b.Subscribe("*", func(e bus.Event) {
		mu.Lock()
		topics = append(topics, e.Topic)
		mu.Unlock()
	})

	f := New("beta", adapter, mgr, b, nil, 15*time.Millisecond)
	f.Start()
	time.Sleep(700 * time.Millisecond)
	f.Stop()

	mu.Lock()
	defer mu.Unlock()

	var sawError bool
	for _, topic := range topics {
		if topic == "feed.error.beta" {
			sawError = true
		}
	}
	if !sawError {
		t.Errorf("expected feed.error.beta event among: %v", topics)
	}
}

func TestFeedStartTwiceIsNoOp(t *testing.T) {
	b := bus.New(bus.Sync, nil)
	adapter := &fakeAdapter{name: "gamma", authenticated: true}
	clients := map[string]provider.Adapter{"gamma": adapter}
	mgr := auth.New(clients, time.Hour, 1)

	f := New("gamma", adapter, mgr, b, nil, time.Second)
	f.Start()
	defer f.Stop()
	f.Start()

	if !f.IsRunning() {
		t.Error("expected feed to be running")
	}
}
