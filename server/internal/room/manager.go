package room

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bru02/zhm/server/internal/metrics"
	"github.com/bru02/zhm/server/internal/store"
)

type roomKey struct {
	party string
	id    string
}

// Manager owns the rooms of one server. Rooms are created on first use and
// unloaded by Run once they have no viewers and have been idle.
type Manager struct {
	backend     store.Storage
	opts        Options
	idleTimeout time.Duration

	mu    sync.Mutex
	rooms map[roomKey]*Room
}

// NewManager creates a Manager whose rooms persist to backend. When
// opts.Metrics is set the room, session and file gauges are registered on it.
func NewManager(backend store.Storage, opts Options, idleTimeout time.Duration) *Manager {
	m := &Manager{
		backend:     backend,
		opts:        opts,
		idleTimeout: idleTimeout,
		rooms:       make(map[roomKey]*Room),
	}
	if opts.Metrics != nil {
		opts.Metrics.RegisterGauge(metrics.RoomsActive, "Rooms loaded in memory.", func() float64 { return float64(m.Rooms()) })
		opts.Metrics.RegisterGauge(metrics.SessionsActive, "Connected viewer sessions.", func() float64 { return float64(m.Sessions()) })
		opts.Metrics.RegisterGauge(metrics.FilesStored, "Files held in memory across rooms.", func() float64 { return float64(m.Files()) })
	}
	return m
}

// Get returns the room for (party, id), creating it if needed.
func (m *Manager) Get(party, id string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := roomKey{party: party, id: id}
	r, ok := m.rooms[k]
	if !ok {
		r = New(party, id, m.backend, m.opts)
		m.rooms[k] = r
		slog.Debug("room: created", "party", party, "room", id)
	}
	r.touch()
	return r
}

// Run unloads idle rooms until ctx is cancelled. It ticks at half the idle
// timeout (minimum 1 second).
func (m *Manager) Run(ctx context.Context) {
	interval := m.idleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := m.Sweep(now); n > 0 {
				slog.Debug("room: unloaded idle rooms", "count", n)
			}
		}
	}
}

// Sweep unloads every room that is idle at now and returns how many were
// removed. A later Get starts a fresh room that reloads from storage.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, r := range m.rooms {
		if r.idle(now, m.idleTimeout) {
			delete(m.rooms, k)
			r.Close()
			removed++
		}
	}
	return removed
}

// Close disconnects every viewer in every room.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		r.Close()
	}
}

// Rooms returns the number of loaded rooms.
func (m *Manager) Rooms() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// Sessions returns the number of connected viewers across rooms.
func (m *Manager) Sessions() int {
	n := 0
	for _, r := range m.snapshot() {
		n += r.Sessions()
	}
	return n
}

// Files returns the number of files held in memory across rooms.
func (m *Manager) Files() int {
	n := 0
	for _, r := range m.snapshot() {
		n += r.Files()
	}
	return n
}

func (m *Manager) snapshot() []*Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	return out
}
