package genarena

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// arenaMetrics are the Prometheus collectors of a single arena. Collectors
// carry a constant "arena" label. Arenas registering under the same name on
// the same registry share collectors, so counters accumulate across them.
type arenaMetrics struct {
	allocations  prometheus.Counter
	destructions prometheus.Counter
	staleHandles *prometheus.CounterVec
	leaks        prometheus.Counter
	live         prometheus.Gauge
	slots        prometheus.Gauge
}

func newArenaMetrics(reg prometheus.Registerer, name string) *arenaMetrics {
	labels := prometheus.Labels{"arena": name}
	return &arenaMetrics{
		allocations: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "genarena_allocations_total",
			Help:        "Total number of slots handed out by Allocate.",
			ConstLabels: labels,
		})),
		destructions: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "genarena_destructions_total",
			Help:        "Total number of slots released by Destroy.",
			ConstLabels: labels,
		})),
		staleHandles: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "genarena_stale_handle_errors_total",
			Help:        "Total number of operations rejected because of a stale handle.",
			ConstLabels: labels,
		}, []string{"op"})),
		leaks: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "genarena_leaked_slots_total",
			Help:        "Total number of slots still live when the arena was released.",
			ConstLabels: labels,
		})),
		live: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "genarena_live_slots",
			Help:        "Number of slots currently holding a constructed payload.",
			ConstLabels: labels,
		})),
		slots: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "genarena_slots",
			Help:        "Number of slots backing the arena, in any state.",
			ConstLabels: labels,
		})),
	}
}

// register registers c with reg, returning the collector already registered
// under the same descriptor if there is one. A nil reg leaves c unregistered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Len returns the number of live slots.
func (a *Arena[T]) Len() int {
	return a.live
}

// Reserved returns the number of slots allocated but not constructed.
func (a *Arena[T]) Reserved() int {
	return a.reserved
}

// Cap returns the number of slots backing the arena, in any state.
func (a *Arena[T]) Cap() int {
	return a.n
}

// Free returns the number of slots available for reuse.
func (a *Arena[T]) Free() int {
	if a.free == nil {
		return 0
	}
	return int(a.free.GetCardinality())
}

// Retired returns the number of slots taken out of service because their
// generation counter is exhausted.
func (a *Arena[T]) Retired() int {
	return a.retired
}

// NumChunks returns the number of chunks currently allocated by the arena.
func (a *Arena[T]) NumChunks() int {
	return len(a.chunks)
}

// ChunkSize returns the number of slots per chunk.
func (a *Arena[T]) ChunkSize() int {
	return a.cfg.ChunkSize
}

// Utilization returns the ratio of live slots to backing slots (0.0 to 1.0).
// Returns 0.0 if the arena has no slots.
func (a *Arena[T]) Utilization() float64 {
	if a.n == 0 {
		return 0
	}
	return float64(a.live) / float64(a.n)
}

// Metrics returns a snapshot of arena statistics.
func (a *Arena[T]) Metrics() ArenaMetrics {
	return ArenaMetrics{
		Live:        a.Len(),
		Reserved:    a.Reserved(),
		Free:        a.Free(),
		Retired:     a.Retired(),
		Slots:       a.Cap(),
		NumChunks:   a.NumChunks(),
		ChunkSize:   a.ChunkSize(),
		Utilization: a.Utilization(),
	}
}

// ArenaMetrics contains statistical information about an arena.
type ArenaMetrics struct {
	Live        int     // Slots holding a payload
	Reserved    int     // Slots allocated but not constructed
	Free        int     // Slots available for reuse
	Retired     int     // Slots out of service
	Slots       int     // Backing slots in any state
	NumChunks   int     // Number of chunks
	ChunkSize   int     // Slots per chunk
	Utilization float64 // Ratio of live to backing slots (0.0-1.0)
}

func (a *Arena[T]) updateGauges() {
	a.metrics.live.Set(float64(a.live))
	a.metrics.slots.Set(float64(a.n))
}
