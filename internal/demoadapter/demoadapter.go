// Package demoadapter is a minimal, generic HTTP-polling provider.Adapter
// used to wire and exercise the harvesting and watching binaries end to
// end. It is deliberately shallow: it fetches one JSON array from a URL
// and treats each element's configured identity field as the record's
// identity key, without the field-remapping machinery a production
// adapter would need. A real deployment supplies its own adapter; this
// one exists so the CLIs have something concrete to run against.
package demoadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/corvid-labs/tideline/internal/record"
)

// Config describes one demo adapter instance.
type Config struct {
	Name          string
	URL           string
	IdentityField string
	Buckets       []string
	Filename      string
	Timeout       time.Duration
}

// Adapter is a generic REST provider.Adapter: Authenticate is a no-op
// that always succeeds (the demo endpoint requires no session), and
// Snapshot performs one GET per call.
type Adapter struct {
	cfg    Config
	client *http.Client

	mu            sync.Mutex
	authenticated bool
}

// New constructs an Adapter from cfg. A zero Timeout defaults to 10s.
func New(cfg Config) *Adapter {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (a *Adapter) Name() string { return a.cfg.Name }

func (a *Adapter) Authenticate() (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.authenticated = true
	return true, nil
}

func (a *Adapter) IsAuthenticated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.authenticated
}

// Snapshot issues one GET to cfg.URL with selectors passed as repeated
// "selector" query parameters, and expects a JSON array of objects in
// response. Each object becomes one record, keyed by IdentityField.
func (a *Adapter) Snapshot(selectors []string) ([]record.Record, error) {
	reqURL := a.cfg.URL
	if len(selectors) > 0 {
		u, err := url.Parse(reqURL)
		if err != nil {
			return nil, fmt.Errorf("demoadapter: parse url: %w", err)
		}
		q := u.Query()
		for _, s := range selectors {
			q.Add("selector", s)
		}
		u.RawQuery = q.Encode()
		reqURL = u.String()
	}

	resp, err := a.client.Get(reqURL)
	if err != nil {
		return nil, fmt.Errorf("demoadapter: fetch %s: %w", a.cfg.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("demoadapter: %s returned status %d", a.cfg.Name, resp.StatusCode)
	}

	var items []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("demoadapter: decode response: %w", err)
	}

	dest := record.Destination{Buckets: a.cfg.Buckets, Filename: a.cfg.Filename}

	records := make([]record.Record, 0, len(items))
	for _, item := range items {
		idVal, _ := item[a.cfg.IdentityField].(string)
		records = append(records, record.Record{
			Source:      a.cfg.Name,
			IdentityKey: idVal,
			Destination: dest,
			Payload:     item,
		})
	}
	return records, nil
}
