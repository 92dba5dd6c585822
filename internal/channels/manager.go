package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dayuer/kira-go/internal/dispatch"
)

// Manager holds the registered adapters. It is the adapter lookup used by
// the dispatcher.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Adapter
	logger   *slog.Logger
}

// NewManager creates an adapter manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		channels: make(map[string]Adapter),
		logger:   logger.With("component", "channels"),
	}
}

// Register adds an adapter, replacing any with the same name.
func (m *Manager) Register(ch Adapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

// Get returns an adapter by name, or nil.
func (m *Manager) Get(name string) Adapter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.channels[name]
}

// Sender implements dispatch.AdapterLookup.
func (m *Manager) Sender(name string) (dispatch.Sender, bool) {
	ch := m.Get(name)
	if ch == nil {
		return nil, false
	}
	return ch, true
}

// EmojiDict returns the named adapter's emoji dictionary.
func (m *Manager) EmojiDict(name string) map[string]string {
	if ch := m.Get(name); ch != nil {
		return ch.EmojiDict()
	}
	return nil
}

// EnabledChannels returns the registered adapter names, sorted.
func (m *Manager) EnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) snapshot() map[string]Adapter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Adapter, len(m.channels))
	for k, v := range m.channels {
		out[k] = v
	}
	return out
}

// StartAll starts every adapter and blocks until all have returned. The
// first adapter to fail cancels the others and its error is returned.
func (m *Manager) StartAll(ctx context.Context) error {
	channels := m.snapshot()
	if len(channels) == 0 {
		m.logger.Warn("no adapters enabled")
		<-ctx.Done()
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for name, ch := range channels {
		g.Go(func() error {
			m.logger.Info("starting adapter", "adapter", name)
			if err := ch.Start(gctx); err != nil {
				return fmt.Errorf("adapter %s: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// StopAll stops every adapter.
func (m *Manager) StopAll() {
	for name, ch := range m.snapshot() {
		if err := ch.Stop(); err != nil {
			m.logger.Error("stop adapter failed", "adapter", name, "error", err)
		}
	}
}

// Status returns whether each adapter is running.
func (m *Manager) Status() map[string]bool {
	channels := m.snapshot()
	status := make(map[string]bool, len(channels))
	for name, ch := range channels {
		status[name] = ch.IsRunning()
	}
	return status
}
