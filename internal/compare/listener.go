package compare

import (
	"log/slog"
	"sync"

	"github.com/corvid-labs/tideline/internal/bus"
	"github.com/corvid-labs/tideline/internal/fxrate"
	"github.com/corvid-labs/tideline/internal/record"
)

// Callback receives the result of one comparison run.
type Callback func([]MarketComparison)

// Listener subscribes to odds.* topics on a bus and runs CompareMarkets
// whenever any source publishes a new snapshot, once at least minSources
// sources have contributed data. Preserves the source behavior that the
// min-sources gate is re-checked on every event, not retroactively: if a
// source publishes twice before a second source has appeared, the second
// publish from the first source is silently suppressed rather than
// queued.
type Listener struct {
	bus               *bus.Bus
	fx                *fxrate.Rates
	maxDenominator    int
	fractionTolerance float64
	onComparison      Callback
	minSources        int
	log               *slog.Logger

	mu              sync.Mutex
	snapshots       map[string][]Market
	sub             bus.Subscription
	subscribed      bool
	comparisonCount int
}

// Option configures a Listener at construction time.
type Option func(*Listener)

// WithMaxDenominator overrides the default max denominator of 20.
func WithMaxDenominator(n int) Option {
	return func(l *Listener) { l.maxDenominator = n }
}

// WithFractionTolerance overrides the default tolerance of 0.01.
func WithFractionTolerance(tol float64) Option {
	return func(l *Listener) { l.fractionTolerance = tol }
}

// WithMinSources overrides the default minimum of 2 contributing sources
// before the first comparison runs.
func WithMinSources(n int) Option {
	return func(l *Listener) { l.minSources = n }
}

// WithLogger attaches a structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(l *Listener) { l.log = log }
}

// New constructs a Listener. onComparison is invoked synchronously (on
// the bus's delivery path) after every comparison run; pass nil to only
// track comparisonCount without reacting.
func New(b *bus.Bus, fx *fxrate.Rates, onComparison Callback, opts ...Option) *Listener {
	l := &Listener{
		bus:               b,
		fx:                fx,
		maxDenominator:    20,
		fractionTolerance: 0.01,
		onComparison:      onComparison,
		minSources:        2,
		snapshots:         make(map[string][]Market),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	if l.onComparison == nil {
		l.onComparison = func([]MarketComparison) {}
	}
	return l
}

// Start subscribes to odds.* on the bus.
func (l *Listener) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.subscribed {
		return
	}
	l.sub = l.bus.Subscribe("odds.*", l.handleOddsEvent)
	l.subscribed = true
	l.log.Info("comparator: subscribed to odds.*", "min_sources", l.minSources)
}

// Stop unsubscribes from the bus.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.subscribed {
		return
	}
	l.bus.Unsubscribe(l.sub)
	l.subscribed = false
	l.log.Info("comparator: unsubscribed")
}

func (l *Listener) handleOddsEvent(e bus.Event) {
	records, _ := e.Payload.([]record.Record)
	markets := marketsFromRecords(records)

	l.mu.Lock()
	l.snapshots[e.Source] = markets
	snapshotCopy := make(map[string][]Market, len(l.snapshots))
	for k, v := range l.snapshots {
		snapshotCopy[k] = v
	}
	l.mu.Unlock()

	if len(snapshotCopy) < l.minSources {
		l.log.Debug("comparator: waiting for more sources", "have", len(snapshotCopy), "need", l.minSources)
		return
	}

	l.runComparison(snapshotCopy, e.Source)
}

func (l *Listener) runComparison(marketsBySource map[string][]Market, trigger string) {
	comparisons, err := CompareMarkets(marketsBySource, l.fx, l.maxDenominator, l.fractionTolerance)
	if err != nil {
		l.log.Error("comparator: comparison failed", "error", err)
		return
	}

	l.mu.Lock()
	l.comparisonCount++
	count := l.comparisonCount
	l.mu.Unlock()

	l.log.Info("comparator: comparison complete", "run", count, "trigger", trigger, "markets_with_diffs", len(comparisons))
	l.onComparison(comparisons)
}
