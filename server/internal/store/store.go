package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bru02/zhm/pkg/protocol"
	"github.com/bru02/zhm/server/internal/storage"
)

// maxTimestampMs bounds record timestamps to the range a JavaScript Date can
// represent (±100,000,000 days from the epoch).
const maxTimestampMs = 8.64e15

// ErrInvalidRecord is returned by Upsert when the record name is empty after trimming.
var ErrInvalidRecord = errors.New("store: record name is required")

// Storage is the durable side of a FileStore. A key that was never written
// must yield an error matching storage.ErrNotFound.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// entry is a record together with its first-insertion sequence number.
type entry struct {
	rec protocol.FileRecord
	seq uint64
}

// FileStore is the per-room set of recent SQL files, keyed by name.
// Records older than the retention window are evicted before every snapshot.
type FileStore struct {
	mu        sync.Mutex
	data      map[string]*entry
	seq       uint64
	retention time.Duration
	storage   Storage
	key       string
	now       func() time.Time // injectable for deterministic tests

	loadOnce sync.Once
	loadErr  error
}

// New creates an empty FileStore persisting to key in backend.
func New(backend Storage, key string, retention time.Duration) *FileStore {
	return &FileStore{
		data:      make(map[string]*entry),
		retention: retention,
		storage:   backend,
		key:       key,
		now:       time.Now,
	}
}

// Load reads the persisted snapshot once. Every caller, concurrent or later,
// gets the outcome of that single read. The read is not cancelled when the
// first caller's ctx is.
func (s *FileStore) Load(ctx context.Context) error {
	s.loadOnce.Do(func() {
		s.loadErr = s.load(context.WithoutCancel(ctx))
	})
	return s.loadErr
}

func (s *FileStore) load(ctx context.Context) error {
	data, err := s.storage.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("store: load %q: %w", s.key, err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Warn("store: ignoring malformed snapshot", "key", s.key, "err", err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	nowMs := s.now().UnixMilli()
	skipped := 0
	for _, item := range raw {
		rec, ok := decodeRecord(item)
		if !ok || expired(rec.UpdatedAt, nowMs, s.retention.Milliseconds()) {
			skipped++
			continue
		}
		s.put(rec)
	}
	if skipped > 0 {
		slog.Debug("store: skipped persisted records", "key", s.key, "count", skipped)
	}
	return nil
}

// decodeRecord accepts a persisted element only when it has a non-empty
// string name, string content and a numeric updatedAt.
func decodeRecord(item json.RawMessage) (protocol.FileRecord, bool) {
	var fields struct {
		Name      *string  `json:"name"`
		Content   *string  `json:"content"`
		UpdatedAt *float64 `json:"updatedAt"`
	}
	if err := json.Unmarshal(item, &fields); err != nil {
		return protocol.FileRecord{}, false
	}
	if fields.Name == nil || *fields.Name == "" || fields.Content == nil || fields.UpdatedAt == nil {
		return protocol.FileRecord{}, false
	}
	return protocol.FileRecord{
		Name:      *fields.Name,
		Content:   *fields.Content,
		UpdatedAt: clampMillis(*fields.UpdatedAt),
	}, true
}

// clampMillis truncates a finite millisecond timestamp to an integer within
// ±maxTimestampMs.
func clampMillis(v float64) int64 {
	switch {
	case v > maxTimestampMs:
		return maxTimestampMs
	case v < -maxTimestampMs:
		return -maxTimestampMs
	}
	return int64(v)
}

// expired reports whether a record stamped tsMs is older than window at refMs.
func expired(tsMs, refMs, window int64) bool {
	return tsMs < refMs-window
}

// put inserts or replaces rec, keeping the original sequence on replace.
// Caller must hold s.mu.
func (s *FileStore) put(rec protocol.FileRecord) {
	if e, ok := s.data[rec.Name]; ok {
		e.rec = rec
		return
	}
	s.seq++
	s.data[rec.Name] = &entry{rec: rec, seq: s.seq}
}

// Upsert stores a record under its trimmed name and returns what was stored.
// A NaN or infinite updatedAt is replaced with the current time, and one
// beyond ±maxTimestampMs is clamped to that bound.
// Older timestamps are accepted and overwrite newer ones.
func (s *FileStore) Upsert(name, content string, updatedAt float64) (protocol.FileRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return protocol.FileRecord{}, ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.now().UnixMilli()
	if !math.IsNaN(updatedAt) && !math.IsInf(updatedAt, 0) {
		ts = clampMillis(updatedAt)
	}
	rec := protocol.FileRecord{Name: name, Content: content, UpdatedAt: ts}
	s.put(rec)
	return rec, nil
}

// EvictExpired removes records whose age relative to ref exceeds the
// retention window. It returns the number of records removed.
func (s *FileStore) EvictExpired(ref time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evict(ref.UnixMilli())
}

func (s *FileStore) evict(refMs int64) int {
	window := s.retention.Milliseconds()
	removed := 0
	for name, e := range s.data {
		if expired(e.rec.UpdatedAt, refMs, window) {
			delete(s.data, name)
			removed++
		}
	}
	return removed
}

// Snapshot evicts against the current time and returns copies of the
// remaining records, most recently updated first. Ties keep insertion order.
func (s *FileStore) Snapshot() []protocol.FileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.evict(s.now().UnixMilli()); n > 0 {
		slog.Debug("store: evicted expired files", "key", s.key, "count", n)
	}

	entries := s.sorted()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].rec.UpdatedAt > entries[j].rec.UpdatedAt
	})
	out := make([]protocol.FileRecord, len(entries))
	for i, e := range entries {
		out[i] = e.rec
	}
	return out
}

// sorted returns the entries in insertion order. Caller must hold s.mu.
func (s *FileStore) sorted() []*entry {
	entries := make([]*entry, 0, len(s.data))
	for _, e := range s.data {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	return entries
}

// Latest returns the name of the first record in files, or "" when empty.
func Latest(files []protocol.FileRecord) string {
	if len(files) == 0 {
		return ""
	}
	return files[0].Name
}

// Clear removes every record and returns how many there were.
func (s *FileStore) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.data)
	s.data = make(map[string]*entry)
	return n
}

// Persist overwrites the durable snapshot with the current records.
func (s *FileStore) Persist(ctx context.Context) error {
	s.mu.Lock()
	entries := s.sorted()
	recs := make([]protocol.FileRecord, len(entries))
	for i, e := range entries {
		recs[i] = e.rec
	}
	s.mu.Unlock()

	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("store: marshal snapshot: %w", err)
	}
	if err := s.storage.Put(ctx, s.key, data); err != nil {
		return fmt.Errorf("store: persist %q: %w", s.key, err)
	}
	return nil
}

// Len returns the number of records held, including ones not yet evicted.
func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
