package metrics

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Metric names exported on /metrics.
const (
	IngestsTotal         = "relay_ingests_total"
	IngestsRejectedTotal = "relay_ingests_rejected_total"
	PrunesTotal          = "relay_prunes_total"
	BroadcastsTotal      = "relay_broadcast_messages_total"
	SessionsDroppedTotal = "relay_sessions_dropped_total"
	RoomsActive          = "relay_rooms_active"
	SessionsActive       = "relay_sessions_active"
	FilesStored          = "relay_files_stored"
)

// Format is the exposition format written by Write.
var Format = expfmt.NewFormat(expfmt.TypeTextPlain)

type gauge struct {
	name string
	help string
	fn   func() float64
}

// Registry holds the relay's counters and callback gauges.
// A nil *Registry is valid and records nothing.
type Registry struct {
	ingests    atomic.Uint64
	rejected   atomic.Uint64
	prunes     atomic.Uint64
	broadcasts atomic.Uint64
	dropped    atomic.Uint64

	mu     sync.Mutex
	gauges []gauge
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{}
}

// IncIngest counts one accepted ingest.
func (r *Registry) IncIngest() {
	if r != nil {
		r.ingests.Add(1)
	}
}

// IncRejected counts one ingest rejected with a client error.
func (r *Registry) IncRejected() {
	if r != nil {
		r.rejected.Add(1)
	}
}

// IncPrune counts one prune.
func (r *Registry) IncPrune() {
	if r != nil {
		r.prunes.Add(1)
	}
}

// AddBroadcast counts n messages handed to sessions.
func (r *Registry) AddBroadcast(n int) {
	if r != nil && n > 0 {
		r.broadcasts.Add(uint64(n))
	}
}

// AddDropped counts n sessions disconnected for being too slow.
func (r *Registry) AddDropped(n int) {
	if r != nil && n > 0 {
		r.dropped.Add(uint64(n))
	}
}

// RegisterGauge adds a gauge whose value is read from fn at collection time.
func (r *Registry) RegisterGauge(name, help string, fn func() float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges = append(r.gauges, gauge{name: name, help: help, fn: fn})
}

// Families returns every metric as a dto.MetricFamily, sorted by name.
func (r *Registry) Families() []*dto.MetricFamily {
	out := []*dto.MetricFamily{
		counter(IngestsTotal, "Files accepted by the ingest endpoint.", r.ingests.Load()),
		counter(IngestsRejectedTotal, "Ingest requests rejected with a client error.", r.rejected.Load()),
		counter(PrunesTotal, "Prune requests handled.", r.prunes.Load()),
		counter(BroadcastsTotal, "Messages queued to viewer sessions.", r.broadcasts.Load()),
		counter(SessionsDroppedTotal, "Viewer sessions disconnected because their send buffer was full.", r.dropped.Load()),
	}

	r.mu.Lock()
	gauges := append([]gauge(nil), r.gauges...)
	r.mu.Unlock()
	for _, g := range gauges {
		out = append(out, &dto.MetricFamily{
			Name:   ptr(g.name),
			Help:   ptr(g.help),
			Type:   dto.MetricType_GAUGE.Enum(),
			Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: ptr(g.fn())}}},
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

// Write encodes all families to w in the Prometheus text format.
func (r *Registry) Write(w io.Writer) error {
	enc := expfmt.NewEncoder(w, Format)
	for _, mf := range r.Families() {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func counter(name, help string, v uint64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   ptr(name),
		Help:   ptr(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: ptr(float64(v))}}},
	}
}

func ptr[T any](v T) *T { return &v }
