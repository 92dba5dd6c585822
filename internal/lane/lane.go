// Package lane buffers rapid-fire inbound messages per session.
//
// Every message for a session is appended to that session's lane. The
// caller that appended it then waits a quiet interval; if nothing else
// arrived in the meantime, it takes the whole pending batch. A burst of
// messages therefore yields one batch, taken by the caller that delivered
// the last message. A lane that reaches MaxBatch flushes immediately.
package lane

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dayuer/kira-go/internal/bus"
	"github.com/dayuer/kira-go/internal/session"
)

// lane holds one session's pending events.
type lane struct {
	mu       sync.Mutex
	pending  []bus.InboundEvent
	appended uint64 // total events ever appended
}

// Manager owns the lanes of all sessions.
type Manager struct {
	mu       sync.Mutex
	lanes    map[session.Key]*lane
	interval time.Duration
	maxBatch int
	logger   *slog.Logger
}

// ManagerConfig configures a lane Manager.
type ManagerConfig struct {
	Interval time.Duration // quiet period before a flush (default 2s)
	MaxBatch int           // pending size that forces a flush (default 5)
	Logger   *slog.Logger
}

// NewManager creates a lane manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		lanes:    make(map[session.Key]*lane),
		interval: cfg.Interval,
		maxBatch: cfg.MaxBatch,
		logger:   cfg.Logger.With("component", "lane"),
	}
}

// Enqueue adds ev to key's lane and reports whether this call owns the
// flush. When it does, the returned batch holds the pending events in
// arrival order and the lane is emptied. Callers that return false must do
// nothing further: a later caller will take their event.
//
// If ctx ends during the quiet interval the event stays pending and false
// is returned.
func (m *Manager) Enqueue(ctx context.Context, key session.Key, ev bus.InboundEvent) ([]bus.InboundEvent, bool) {
	l := m.getOrCreate(key)

	l.mu.Lock()
	l.pending = append(l.pending, ev)
	l.appended++
	gen := l.appended
	if len(l.pending) >= m.maxBatch {
		batch := l.take(len(l.pending))
		l.mu.Unlock()
		m.logger.Debug("lane full, flushing", "session", key.String(), "count", len(batch))
		return batch, true
	}
	l.mu.Unlock()

	timer := time.NewTimer(m.interval)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.appended != gen || len(l.pending) == 0 {
		return nil, false
	}
	batch := l.take(len(l.pending))
	if len(batch) > 1 {
		m.logger.Debug("lane merged burst", "session", key.String(), "count", len(batch))
	}
	return batch, true
}

// take removes and returns the first n pending events (called under l.mu).
func (l *lane) take(n int) []bus.InboundEvent {
	batch := make([]bus.InboundEvent, n)
	copy(batch, l.pending[:n])
	l.pending = append(l.pending[:0:0], l.pending[n:]...)
	return batch
}

func (m *Manager) getOrCreate(key session.Key) *lane {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lanes[key]
	if !ok {
		l = &lane{}
		m.lanes[key] = l
	}
	return l
}

// Pending returns the number of events waiting in key's lane.
func (m *Manager) Pending(key session.Key) int {
	m.mu.Lock()
	l, ok := m.lanes[key]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Stats returns lane manager statistics.
func (m *Manager) Stats() map[string]any {
	m.mu.Lock()
	lanes := make([]*lane, 0, len(m.lanes))
	for _, l := range m.lanes {
		lanes = append(lanes, l)
	}
	m.mu.Unlock()

	pending := 0
	for _, l := range lanes {
		l.mu.Lock()
		pending += len(l.pending)
		l.mu.Unlock()
	}
	return map[string]any{
		"totalLanes":    len(lanes),
		"pendingEvents": pending,
		"interval":      m.interval.String(),
		"maxBatch":      m.maxBatch,
	}
}
