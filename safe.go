package genarena

import (
	"iter"
	"slices"
	"sync"
)

// SafeArena is a mutex-protected wrapper around Arena for concurrent access.
// Every operation holds the lock for its whole duration. Finalizers and leak
// callbacks run with the lock held and must not call back into the SafeArena.
type SafeArena[T any] struct {
	mu sync.Mutex
	a  *Arena[T]
}

// NewSafeArena creates a new thread-safe arena.
func NewSafeArena[T any](cfg Config, opts ...Option[T]) *SafeArena[T] {
	return &SafeArena[T]{a: NewArena(cfg, opts...)}
}

// Allocate thread-safely reserves a slot and returns its handle.
func (s *SafeArena[T]) Allocate() (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.Allocate()
}

// Construct thread-safely stores v in the slot reserved for h.
func (s *SafeArena[T]) Construct(h Handle, v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.Construct(h, v)
}

// New thread-safely allocates and constructs a slot in one step.
func (s *SafeArena[T]) New(v T) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.New(v)
}

// Get thread-safely returns a copy of the payload of a live slot.
// A pointer would outlive the lock, so use Update to mutate in place.
func (s *SafeArena[T]) Get(h Handle) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.Value(h)
}

// Update thread-safely calls fn with the payload of a live slot.
// fn must not retain the pointer.
func (s *SafeArena[T]) Update(h Handle, fn func(*T)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.a.Get(h)
	if err != nil {
		return err
	}
	fn(p)
	return nil
}

// Destroy thread-safely drops the payload of h.
func (s *SafeArena[T]) Destroy(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.Destroy(h)
}

// Take thread-safely moves the payload of h out of the arena.
func (s *SafeArena[T]) Take(h Handle) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.Take(h)
}

// State thread-safely returns the state of the slot h refers to.
func (s *SafeArena[T]) State(h Handle) SlotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.State(h)
}

// Contains thread-safely reports whether h refers to a live slot.
func (s *SafeArena[T]) Contains(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.Contains(h)
}

// LeakedHandles returns the handles of the slots live at the time of the
// call. The handles are snapshotted under the lock, so the sequence does not
// observe later changes.
func (s *SafeArena[T]) LeakedHandles() iter.Seq[Handle] {
	s.mu.Lock()
	handles := slices.Collect(s.a.LeakedHandles())
	s.mu.Unlock()
	return slices.Values(handles)
}

// Release thread-safely tears the arena down, reporting leaks to onLeak.
func (s *SafeArena[T]) Release(onLeak LeakFunc) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.Release(onLeak)
}

// Thread-safe metrics for SafeArena

// Len thread-safely returns the number of live slots.
func (s *SafeArena[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.Len()
}

// Cap thread-safely returns the number of backing slots.
func (s *SafeArena[T]) Cap() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.Cap()
}

// Metrics thread-safely returns a snapshot of arena statistics.
func (s *SafeArena[T]) Metrics() ArenaMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.Metrics()
}
