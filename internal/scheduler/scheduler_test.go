package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunOnceReturnsStats(t *testing.T) {
	var calls int32
	s := New(func(ctx context.Context) (BatchStats, error) {
		atomic.AddInt32(&calls, 1)
		return BatchStats{RecordsFetched: 3, RecordsWritten: 2}, nil
	}, time.Second)

	stats := s.RunOnce(context.Background())
	if stats.RecordsFetched != 3 || stats.RecordsWritten != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRunOnceBatchErrorDoesNotPanic(t *testing.T) {
	s := New(func(ctx context.Context) (BatchStats, error) {
		return BatchStats{}, context.DeadlineExceeded
	}, time.Second)

	// Should simply log and return, not panic.
	s.RunOnce(context.Background())
}

func TestRunForeverStopsOnContextCancel(t *testing.T) {
	var calls int32
	s := New(func(ctx context.Context) (BatchStats, error) {
		atomic.AddInt32(&calls, 1)
		return BatchStats{}, nil
	}, 50*time.Millisecond, withPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunForever(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunForever did not stop within 2s of context cancellation")
	}

	if atomic.LoadInt32(&calls) < 1 {
		t.Error("expected at least one batch to have run")
	}
}
