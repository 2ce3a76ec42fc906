package room

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bru02/zhm/pkg/protocol"
	"github.com/bru02/zhm/server/internal/metrics"
	"github.com/bru02/zhm/server/internal/storage"
	"github.com/bru02/zhm/server/internal/store"
	"github.com/bru02/zhm/server/internal/ws"
)

// Options configures every room a Manager creates.
type Options struct {
	Retention  time.Duration
	SendBuffer int
	Metrics    *metrics.Registry
}

// Room relays one room's files between writers and connected viewers.
// Mutations and the broadcasts they trigger are serialized, so the room
// behaves as a single-threaded actor over its FileStore.
type Room struct {
	Party string
	ID    string

	store   *store.FileStore
	hub     *ws.Hub
	metrics *metrics.Registry

	mu         sync.Mutex
	lastActive atomic.Int64 // unix nanoseconds
	busy       atomic.Int32
	loadFailed atomic.Bool
}

// New creates a room persisting its files to backend.
func New(party, id string, backend store.Storage, opts Options) *Room {
	r := &Room{
		Party:   party,
		ID:      id,
		store:   store.New(backend, storage.RoomKey(party, id), opts.Retention),
		hub:     ws.New(opts.SendBuffer),
		metrics: opts.Metrics,
	}
	r.touch()
	return r
}

// Load waits for the room's persisted files to be read. The read happens
// once per room lifetime; every caller sees its outcome.
func (r *Room) Load(ctx context.Context) error {
	if err := r.store.Load(ctx); err != nil {
		r.loadFailed.Store(true)
		return err
	}
	return nil
}

// Ingest stores rec, persists the room and broadcasts a file-update.
// A record already older than the retention window is accepted and
// broadcast, then disappears from the next snapshot.
func (r *Room) Ingest(ctx context.Context, req IngestRequest) (protocol.FileRecord, error) {
	defer r.enter()()
	if err := r.Load(ctx); err != nil {
		return protocol.FileRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.store.Upsert(req.Name, req.Content, req.UpdatedAt)
	if err != nil {
		return protocol.FileRecord{}, err
	}
	r.store.EvictExpired(time.UnixMilli(rec.UpdatedAt))
	if err := r.store.Persist(ctx); err != nil {
		return protocol.FileRecord{}, err
	}

	r.broadcast(protocol.NewFileUpdate(rec))
	r.metrics.IncIngest()
	slog.Debug("room: ingested", "party", r.Party, "room", r.ID, "file", rec.Name, "bytes", len(rec.Content))
	return rec, nil
}

// Prune removes every file, persists the empty room and tells every viewer
// to reset. It returns the number of files removed.
func (r *Room) Prune(ctx context.Context) (int, error) {
	defer r.enter()()
	if err := r.Load(ctx); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.store.Clear()
	if err := r.store.Persist(ctx); err != nil {
		return 0, err
	}

	r.broadcast(protocol.NewInit(nil, ""))
	r.metrics.IncPrune()
	slog.Info("room: pruned", "party", r.Party, "room", r.ID, "files", n)
	return n, nil
}

// State returns the room's files newest-first and the newest file's name.
func (r *Room) State(ctx context.Context) (StateResponse, error) {
	defer r.enter()()
	if err := r.Load(ctx); err != nil {
		return StateResponse{}, err
	}

	files := r.store.Snapshot()
	resp := StateResponse{Files: files}
	if latest := store.Latest(files); latest != "" {
		resp.Latest = &latest
	}
	return resp, nil
}

// Connect joins conn to the room. The session's first message is an init
// carrying the current files; later broadcasts follow it. Connect blocks
// until the session ends.
func (r *Room) Connect(ctx context.Context, conn *websocket.Conn) error {
	session, err := r.attach(ctx, conn)
	if err != nil {
		conn.Close()
		return err
	}
	r.hub.Serve(session)
	r.touch()
	return nil
}

func (r *Room) attach(ctx context.Context, conn *websocket.Conn) (*ws.Session, error) {
	defer r.enter()()
	if err := r.Load(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	files := r.store.Snapshot()
	data, err := protocol.Encode(protocol.NewInit(files, store.Latest(files)))
	if err != nil {
		return nil, fmt.Errorf("room: encode init: %w", err)
	}
	s := r.hub.Attach(conn, data)
	slog.Debug("room: session joined", "party", r.Party, "room", r.ID, "session", s.ID, "files", len(files))
	return s, nil
}

// broadcast sends m to every session. Caller must hold r.mu.
func (r *Room) broadcast(m protocol.Message) {
	data, err := protocol.Encode(m)
	if err != nil {
		slog.Error("room: encode broadcast", "party", r.Party, "room", r.ID, "err", err)
		return
	}
	sent, dropped := r.hub.Broadcast(data)
	r.metrics.AddBroadcast(sent)
	r.metrics.AddDropped(dropped)
}

// Sessions returns the number of connected viewers.
func (r *Room) Sessions() int { return r.hub.Count() }

// Files returns the number of files held in memory.
func (r *Room) Files() int { return r.store.Len() }

// Close disconnects every viewer.
func (r *Room) Close() { r.hub.CloseAll() }

// enter marks the room busy until the returned func is called.
func (r *Room) enter() func() {
	r.busy.Add(1)
	r.touch()
	return func() {
		r.busy.Add(-1)
		r.touch()
	}
}

func (r *Room) touch() { r.lastActive.Store(time.Now().UnixNano()) }

// idle reports whether the room can be unloaded: nothing in flight, no
// viewers, and either its load failed or it has been quiet for timeout.
func (r *Room) idle(now time.Time, timeout time.Duration) bool {
	if r.busy.Load() > 0 || r.hub.Count() > 0 {
		return false
	}
	if r.loadFailed.Load() {
		return true
	}
	return now.Sub(time.Unix(0, r.lastActive.Load())) > timeout
}
