// Package scheduler runs a batch function on a fixed interval, forever,
// with graceful shutdown on SIGINT/SIGTERM.
package scheduler

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"
)

// BatchStats is the summary one RunOnce call returns, logged at the end
// of every batch regardless of success or partial failure.
type BatchStats struct {
	RecordsFetched int
	RecordsWritten int
	SourcesFailed  int
}

// RunBatchFunc executes one batch and reports its outcome. A non-nil
// error represents a batch-level failure (e.g. every source failed); it
// is logged and does not stop RunForever — only a termination signal
// does that.
type RunBatchFunc func(ctx context.Context) (BatchStats, error)

// Scheduler invokes a RunBatchFunc on a fixed interval until stopped.
type Scheduler struct {
	runBatch     RunBatchFunc
	interval     time.Duration
	log          *slog.Logger
	batchCount   int
	pollInterval time.Duration
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithLogger attaches a structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// withPollInterval overrides the shutdown-flag polling granularity,
// exposed only for tests that would otherwise wait a full second per
// check.
func withPollInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.pollInterval = d }
}

// New constructs a Scheduler that runs runBatch every interval.
func New(runBatch RunBatchFunc, interval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		runBatch:     runBatch,
		interval:     interval,
		pollInterval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// RunOnce executes exactly one batch and returns its stats.
func (s *Scheduler) RunOnce(ctx context.Context) BatchStats {
	batchNum := s.batchCount + 1
	s.log.Info("batch starting", "batch", batchNum)
	start := time.Now()

	stats, err := s.runBatch(ctx)
	elapsed := time.Since(start)
	s.batchCount++

	if err != nil {
		s.log.Error("batch failed", "batch", s.batchCount, "elapsed", elapsed, "error", err)
		return stats
	}
	s.log.Info("batch complete",
		"batch", s.batchCount,
		"elapsed", elapsed,
		"fetched", stats.RecordsFetched,
		"written", stats.RecordsWritten,
		"sources_failed", stats.SourcesFailed,
	)
	return stats
}

// RunForever runs batches on the configured interval until ctx is
// canceled or the process receives SIGINT/SIGTERM. A termination signal
// received during the inter-batch wait is observed within one second
// (the polling granularity used to check the shutdown flag), so the
// scheduler returns within roughly one second of the signal.
func (s *Scheduler) RunForever(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var stopped atomic.Bool
	go func() {
		select {
		case sig := <-sigCh:
			s.log.Info("signal received, stopping after current batch", "signal", sig.String())
			stopped.Store(true)
		case <-ctx.Done():
			stopped.Store(true)
		}
	}()

	s.log.Info("scheduler starting", "interval", s.interval)

	for !stopped.Load() {
		s.RunOnce(ctx)
		if stopped.Load() {
			break
		}

		s.log.Info("sleeping until next batch", "interval", s.interval)
		waited := time.Duration(0)
		for waited < s.interval {
			if stopped.Load() {
				break
			}
			time.Sleep(s.pollInterval)
			waited += s.pollInterval
		}
	}

	s.log.Info("scheduler stopped", "batches", s.batchCount)
}
