package shipper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/bru02/zhm/pkg/protocol"
	"github.com/bru02/zhm/watcher/internal/config"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second
)

// StatusError is returned when the relay answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay responded %d %s: %s", e.Code, http.StatusText(e.Code), e.Body)
}

// Shipper buffers file records and posts them to the relay's ingest endpoint.
// Ship() is non-blocking; when the buffer is full the oldest record is evicted.
// Run() must be called in a goroutine to drain the buffer.
type Shipper struct {
	cfg    config.WatcherConfig
	buf    chan protocol.FileRecord
	client *http.Client

	backoffInitial time.Duration // injectable for tests
}

// New creates a Shipper using the given watcher config.
func New(cfg config.WatcherConfig) *Shipper {
	size := cfg.BufferSize
	if size <= 0 {
		size = config.DefaultBufferSize
	}
	return &Shipper{
		cfg:            cfg,
		buf:            make(chan protocol.FileRecord, size),
		client:         &http.Client{Timeout: sendTimeout},
		backoffInitial: backoffInitial,
	}
}

// Ship enqueues rec for delivery and never blocks.
// If the buffer is full the oldest entry is evicted to make room. Concurrent
// callers may race for the freed slot, so eviction repeats until rec fits.
func (s *Shipper) Ship(rec protocol.FileRecord) {
	for {
		select {
		case s.buf <- rec:
			return
		default:
		}
		// Buffer full: drop the oldest record, keep the newest.
		select {
		case old := <-s.buf:
			slog.Warn("shipper: buffer full, evicted oldest file",
				"file", old.Name, "buffer_cap", cap(s.buf))
		default:
		}
	}
}

// Run drains the buffer, posting records in order. A record that fails with
// a transport error or a 5xx is retried with exponential backoff; a 4xx is
// logged and discarded. Run blocks until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff(s.backoffInitial)

	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-s.buf:
			for {
				err := s.send(ctx, rec)
				if err == nil {
					bo.reset()
					break
				}
				if isPermanentError(err) {
					slog.Error("shipper: relay rejected file, discarding",
						"file", rec.Name, "err", err)
					break
				}
				if ctx.Err() != nil {
					return
				}

				wait := bo.next()
				slog.Warn("shipper: push failed, will retry",
					"file", rec.Name,
					"err", err,
					"retry_in", wait)
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
			}
		}
	}
}

// Pending returns the number of records waiting to be sent.
func (s *Shipper) Pending() int { return len(s.buf) }

// send posts one record to the ingest endpoint.
func (s *Shipper) send(ctx context.Context, rec protocol.FileRecord) error {
	req, err := newIngestRequest(ctx, s.cfg.IngestURL(), rec)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", rec.Name, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}

	slog.Info("shipper: pushed",
		"file", rec.Name,
		"bytes", len(rec.Content),
		"updated_at", time.UnixMilli(rec.UpdatedAt).UTC().Format(time.RFC3339Nano))
	return nil
}

// Prune asks the relay to remove every file in the room and returns how many
// were removed, or -1 when the relay did not say.
func (s *Shipper) Prune(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.PruneURL(), nil)
	if err != nil {
		return 0, fmt.Errorf("build prune request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return 0, err
	}

	var body struct {
		Pruned *int `json:"pruned"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Pruned == nil {
		return -1, nil
	}
	return *body.Pruned, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Body: string(msg)}
}

// isPermanentError returns true for relay answers that mean the record
// itself is unacceptable and should not be retried.
func isPermanentError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	initial time.Duration
	current time.Duration
}

func newBackoff(initial time.Duration) *backoff {
	return &backoff{initial: initial, current: initial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	// Advance for next call.
	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = b.initial
}
