// Package fxrate caches currency-to-USD conversion rates for the
// duration of the process, refreshing from a pluggable fetch function no
// more often than the cache TTL.
package fxrate

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

const defaultCacheTTL = 5 * time.Minute

// FetchFunc retrieves a fresh set of USD-per-unit rates keyed by ISO 4217
// currency code (excluding USD itself, which is always 1.0). Concrete
// implementations reaching out to a live rate provider are an external
// collaborator — this package only owns the cache and conversion math.
type FetchFunc func() (map[string]float64, error)

// Rates holds cached currency conversion rates, all expressed as USD
// value of one unit of the given currency.
type Rates struct {
	fetch    FetchFunc
	cacheTTL time.Duration
	now      func() time.Time

	mu        sync.Mutex
	rates     map[string]float64
	fetchedAt time.Time
}

// Option configures Rates at construction time.
type Option func(*Rates)

// WithCacheTTL overrides the default five-minute cache lifetime.
func WithCacheTTL(d time.Duration) Option {
	return func(r *Rates) { r.cacheTTL = d }
}

// WithClock overrides the notion of "now", for deterministic cache-expiry
// tests.
func WithClock(now func() time.Time) Option {
	return func(r *Rates) { r.now = now }
}

// New constructs a Rates cache backed by fetch.
func New(fetch FetchFunc, opts ...Option) *Rates {
	r := &Rates{
		fetch:    fetch,
		cacheTTL: defaultCacheTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rate returns the USD value of one unit of currency. Returns 1.0 for
// USD without consulting the cache.
func (r *Rates) Rate(currency string) (float64, error) {
	currency = normalizeCurrency(currency)
	if currency == "USD" {
		return 1.0, nil
	}
	if err := r.ensureFresh(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rate, ok := r.rates[currency]
	if !ok {
		available := make([]string, 0, len(r.rates))
		for c := range r.rates {
			available = append(available, c)
		}
		sort.Strings(available)
		return 0, fmt.Errorf("fxrate: unsupported currency %q (available: %v)", currency, available)
	}
	return rate, nil
}

// ToUSD converts amount in currency to its USD equivalent.
func (r *Rates) ToUSD(amount float64, currency string) (float64, error) {
	rate, err := r.Rate(currency)
	if err != nil {
		return 0, err
	}
	return round6(amount * rate), nil
}

// FromUSD converts a USD amount to currency.
func (r *Rates) FromUSD(usdAmount float64, currency string) (float64, error) {
	rate, err := r.Rate(currency)
	if err != nil {
		return 0, err
	}
	return round6(usdAmount / rate), nil
}

// AvailableCurrencies returns every currency code this cache currently
// knows a rate for, plus USD, sorted.
func (r *Rates) AvailableCurrencies() ([]string, error) {
	if err := r.ensureFresh(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.rates)+1)
	out = append(out, "USD")
	for c := range r.rates {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

// LastUpdated reports when the cache was last refreshed, or the zero
// value if it has never fetched.
func (r *Rates) LastUpdated() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetchedAt
}

func (r *Rates) ensureFresh() error {
	r.mu.Lock()
	age := r.now().Sub(r.fetchedAt)
	fresh := age < r.cacheTTL && len(r.rates) > 0
	r.mu.Unlock()
	if fresh {
		return nil
	}

	fetched, err := r.fetch()
	if err != nil {
		r.mu.Lock()
		hasStale := len(r.rates) > 0
		r.mu.Unlock()
		if hasStale {
			return nil
		}
		return fmt.Errorf("fxrate: fetch failed and no cached rates available: %w", err)
	}

	normalized := make(map[string]float64, len(fetched))
	for c, rate := range fetched {
		normalized[normalizeCurrency(c)] = rate
	}
	delete(normalized, "USD")

	r.mu.Lock()
	r.rates = normalized
	r.fetchedAt = r.now()
	r.mu.Unlock()
	return nil
}

func normalizeCurrency(c string) string {
	out := make([]byte, len(c))
	for i := 0; i < len(c); i++ {
		ch := c[i]
		if ch >= 'a' && ch <= 'z' {
			ch -= 'a' - 'A'
		}
		out[i] = ch
	}
	return string(out)
}

func round6(v float64) float64 {
	const scale = 1e6
	if v >= 0 {
		return float64(int64(v*scale+0.5)) / scale
	}
	return float64(int64(v*scale-0.5)) / scale
}
