package feed

import (
	"log/slog"
	"time"

	"github.com/corvid-labs/tideline/internal/auth"
	"github.com/corvid-labs/tideline/internal/bus"
	"github.com/corvid-labs/tideline/internal/provider"
)

// Manager owns and lifecycle-manages one Feed per adapter.
type Manager struct {
	feeds map[string]*Feed
}

// NewManager constructs a Feed for every client, sharing one auth manager,
// one bus, one selector set, and one poll interval across all of them.
func NewManager(clients map[string]provider.Adapter, authMgr *auth.Manager, b *bus.Bus, selectors []string, interval time.Duration, log *slog.Logger) *Manager {
	feeds := make(map[string]*Feed, len(clients))
	for name, client := range clients {
		opts := []Option{}
		if log != nil {
			opts = append(opts, WithLogger(log))
		}
		feeds[name] = New(name, client, authMgr, b, selectors, interval, opts...)
	}
	return &Manager{feeds: feeds}
}

// StartAll starts every managed feed.
func (m *Manager) StartAll() {
	for _, f := range m.feeds {
		f.Start()
	}
}

// StopAll stops every managed feed, waiting for each in turn.
func (m *Manager) StopAll() {
	for _, f := range m.feeds {
		f.Stop()
	}
}

// Status reports whether each managed feed is currently running.
func (m *Manager) Status() map[string]bool {
	out := make(map[string]bool, len(m.feeds))
	for name, f := range m.feeds {
		out[name] = f.IsRunning()
	}
	return out
}
