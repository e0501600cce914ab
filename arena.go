// Package genarena implements a generational slot arena with lifecycle tracking.
// Typical usage: create one arena per owner, hand out handles instead of
// pointers, destroy payloads explicitly, and Release the arena at the end to
// surface anything that was never destroyed.
package genarena

import (
	"iter"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// maxIndex bounds the number of slots so every index fits in a Handle.
const maxIndex = math.MaxUint32

// slot is a single storage unit of the arena.
type slot[T any] struct {
	value      T // valid only while state == SlotLive
	generation uint32
	state      SlotState
}

// LeakFunc is called by Release for every slot that is still live.
type LeakFunc func(h Handle, index int)

// Arena is a generational slot arena. Not goroutine-safe.
// Use SafeArena for concurrent access.
type Arena[T any] struct {
	cfg      Config
	chunks   [][]slot[T]
	n        int             // number of slots in use by the arena, in any state
	free     *roaring.Bitmap // indexes of SlotFree slots
	live     int
	reserved int
	retired  int
	released bool

	finalizer func(Handle, *T)
	logger    log.Logger
	metrics   *arenaMetrics
}

// NewArena creates a new Arena. Zero config values fall back to defaults.
func NewArena[T any](cfg Config, opts ...Option[T]) *Arena[T] {
	o := options[T]{logger: log.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	a := &Arena[T]{
		cfg:       cfg.withDefaults(),
		free:      roaring.New(),
		finalizer: o.finalizer,
		logger:    o.logger,
	}
	a.metrics = newArenaMetrics(o.reg, a.cfg.Name)
	a.chunks = append(a.chunks, make([]slot[T], a.cfg.ChunkSize))
	return a
}

// Allocate reserves a slot and returns a handle to it. The lowest-index free
// slot is reused first; otherwise the arena grows by one slot. The slot holds
// no payload until Construct is called.
func (a *Arena[T]) Allocate() (Handle, error) {
	if a.released {
		return Handle{}, errors.Wrap(ErrReleased, "allocate")
	}

	var idx int
	if !a.free.IsEmpty() {
		lowest := a.free.Minimum()
		a.free.Remove(lowest)
		idx = int(lowest)
	} else {
		if (a.cfg.MaxSlots > 0 && a.n >= a.cfg.MaxSlots) || uint64(a.n) >= maxIndex {
			return Handle{}, errors.Wrapf(ErrArenaFull, "allocate: %d slots in use", a.n)
		}
		idx = a.grow()
	}

	s := a.slotAt(idx)
	s.state = SlotReserved
	a.reserved++
	a.metrics.allocations.Inc()
	return Handle{index: uint32(idx), generation: s.generation}, nil
}

// Construct stores v in the slot reserved for h and marks it live.
// An already live slot is left untouched and ErrAlreadyLive is returned.
func (a *Arena[T]) Construct(h Handle, v T) error {
	if a.released {
		return errors.Wrapf(ErrReleased, "construct %s", h)
	}
	s, ok := a.lookup(h)
	if !ok {
		return a.stale("construct", h)
	}
	switch s.state {
	case SlotLive:
		return errors.Wrapf(ErrAlreadyLive, "construct %s", h)
	case SlotReserved:
		s.value = v
		s.state = SlotLive
		a.reserved--
		a.live++
		a.updateGauges()
		return nil
	default:
		return a.stale("construct", h)
	}
}

// Get returns a pointer to the payload of a live slot. The pointer stays
// valid until the slot is destroyed; growing the arena never moves payloads.
func (a *Arena[T]) Get(h Handle) (*T, error) {
	if a.released {
		return nil, errors.Wrapf(ErrReleased, "get %s", h)
	}
	s, ok := a.lookup(h)
	if !ok || s.state != SlotLive {
		return nil, a.stale("get", h)
	}
	return &s.value, nil
}

// Destroy drops the payload of h and returns its slot to the free set with
// the next generation, so h and any copy of it become stale. Destroying a
// reserved, never constructed handle cancels the reservation.
func (a *Arena[T]) Destroy(h Handle) error {
	if a.released {
		return errors.Wrapf(ErrReleased, "destroy %s", h)
	}
	s, ok := a.lookup(h)
	if !ok || (s.state != SlotLive && s.state != SlotReserved) {
		return a.stale("destroy", h)
	}

	wasLive := s.state == SlotLive
	s.state = SlotDestroyed
	if wasLive {
		a.live--
		if a.finalizer != nil {
			a.finalizer(h, &s.value)
		}
	} else {
		a.reserved--
	}
	a.recycle(h.Index(), s)
	a.metrics.destructions.Inc()
	a.updateGauges()
	return nil
}

// State returns the state of the slot h refers to. Handles whose generation
// no longer matches report SlotFree.
func (a *Arena[T]) State(h Handle) SlotState {
	s, ok := a.lookup(h)
	if !ok {
		return SlotFree
	}
	return s.state
}

// Contains reports whether h refers to a live slot.
func (a *Arena[T]) Contains(h Handle) bool {
	return a.State(h) == SlotLive
}

// All returns a sequence of every live slot in ascending index order.
// The arena must not be mutated while the sequence is being consumed.
func (a *Arena[T]) All() iter.Seq2[Handle, *T] {
	return func(yield func(Handle, *T) bool) {
		for i := 0; i < a.n; i++ {
			s := a.slotAt(i)
			if s.state != SlotLive {
				continue
			}
			if !yield(Handle{index: uint32(i), generation: s.generation}, &s.value) {
				return
			}
		}
	}
}

// LeakedHandles returns a sequence of the handles of every slot that is
// still live, in ascending index order. The sequence reads the arena lazily
// and can be ranged over any number of times.
func (a *Arena[T]) LeakedHandles() iter.Seq[Handle] {
	return func(yield func(Handle) bool) {
		for h := range a.All() {
			if !yield(h) {
				return
			}
		}
	}
}

// Release tears the arena down. Every slot still live is reported to onLeak
// (which may be nil) and logged, then finalized and dropped, in ascending
// index order. The slot is still live while onLeak runs; a payload that
// onLeak destroys or takes is not finalized again. Release returns the number
// of leaked slots. Any subsequent operation returns ErrReleased; releasing
// twice is a no-op.
func (a *Arena[T]) Release(onLeak LeakFunc) int {
	if a.released {
		return 0
	}

	leaked := 0
	for i := 0; i < a.n; i++ {
		s := a.slotAt(i)
		if s.state != SlotLive {
			continue
		}
		h := Handle{index: uint32(i), generation: s.generation}
		leaked++
		level.Warn(a.logger).Log("msg", "slot leaked", "arena", a.cfg.Name, "handle", h, "index", i)
		a.metrics.leaks.Inc()
		if onLeak != nil {
			onLeak(h, i)
			// The callback may have destroyed or taken the payload itself.
			if s.state != SlotLive || s.generation != h.generation {
				continue
			}
		}

		s.state = SlotDestroyed
		if a.finalizer != nil {
			a.finalizer(h, &s.value)
		}
		var zero T
		s.value = zero
	}
	level.Info(a.logger).Log("msg", "arena released", "arena", a.cfg.Name, "slots", a.n, "leaked", leaked, "reserved", a.reserved)

	a.released = true
	a.chunks = nil
	a.n = 0
	a.free.Clear()
	a.live = 0
	a.reserved = 0
	a.retired = 0
	a.updateGauges()
	return leaked
}

// lookup returns the slot h points to if the generations match.
func (a *Arena[T]) lookup(h Handle) (*slot[T], bool) {
	idx := h.Index()
	if idx >= a.n {
		return nil, false
	}
	s := a.slotAt(idx)
	if s.generation != h.generation {
		return nil, false
	}
	return s, true
}

func (a *Arena[T]) slotAt(idx int) *slot[T] {
	return &a.chunks[idx/a.cfg.ChunkSize][idx%a.cfg.ChunkSize]
}

// grow appends one slot, allocating a new chunk when the last one is full,
// and returns its index.
func (a *Arena[T]) grow() int {
	idx := a.n
	if idx/a.cfg.ChunkSize >= len(a.chunks) {
		a.chunks = append(a.chunks, make([]slot[T], a.cfg.ChunkSize))
	}
	s := a.slotAt(idx)
	s.generation = 1
	s.state = SlotFree
	a.n++
	a.updateGauges()
	return idx
}

// recycle zeroes the payload of a destroyed slot and puts it back on the
// free set under the next generation. A slot whose generation cannot be
// incremented any more is retired instead and stays destroyed.
func (a *Arena[T]) recycle(idx int, s *slot[T]) {
	var zero T
	s.value = zero
	if s.generation == math.MaxUint32 {
		a.retired++
		level.Debug(a.logger).Log("msg", "slot retired", "arena", a.cfg.Name, "index", idx)
		return
	}
	s.generation++
	s.state = SlotFree
	a.free.Add(uint32(idx))
}

func (a *Arena[T]) stale(op string, h Handle) error {
	a.metrics.staleHandles.WithLabelValues(op).Inc()
	return errors.Wrapf(ErrStaleHandle, "%s %s", op, h)
}
