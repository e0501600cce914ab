// Package genarena implements a generational slot arena with lifecycle tracking.
//
// # Overview
//
// An Arena owns a growable pool of typed slots. Callers never hold pointers
// to arena memory across operations; they hold a Handle, an (index,
// generation) pair. Every time a slot is destroyed its generation is bumped,
// so old handles are detected by a value comparison instead of being
// dereferenced. This turns the classic manual-memory bugs into errors:
//
//   - Use after destroy returns ErrStaleHandle
//   - Double destroy returns ErrStaleHandle
//   - Constructing twice returns ErrAlreadyLive
//   - Forgetting to destroy is reported as a leak by Release
//
// # Basic Usage
//
//	a := genarena.NewArena[Session](genarena.Config{Name: "sessions"})
//	defer a.Release(func(h genarena.Handle, index int) {
//		log.Printf("leaked %s", h)
//	})
//
//	h, _ := a.Allocate()       // storage reserved
//	_ = a.Construct(h, sess)   // lifetime begins
//	s, _ := a.Get(h)           // *Session, valid until Destroy
//	_ = a.Destroy(h)           // lifetime ends, slot reusable
//	_, err := a.Get(h)         // errors.Is(err, genarena.ErrStaleHandle)
//
// New combines Allocate and Construct, Take moves a payload out and frees its
// slot without running the finalizer.
//
// # Slot Lifecycle
//
//	Free --Allocate--> Reserved --Construct--> Live --Destroy--> Free (generation+1)
//	                   Reserved --Destroy--> Free (generation+1)
//
// Allocate always reuses the lowest free index before growing the arena.
// A slot whose generation counter reaches its maximum is retired rather than
// reused, so a handle can never alias a later payload.
//
// # Thread Safety
//
// The basic Arena type is not thread-safe. For concurrent access, use SafeArena:
//
//	s := genarena.NewSafeArena[Session](genarena.Config{})
//	h, _ := s.New(sess)
//	_ = s.Update(h, func(p *Session) { p.Touch() })
//
// # Memory Layout
//
// Slots are stored in chunks of Config.ChunkSize slots (default 64). Growing
// the arena appends a chunk and never moves existing slots, which keeps the
// pointers returned by Get stable until the slot is destroyed.
//
// # Metrics and Monitoring
//
// Metrics returns a snapshot of slot usage. Passing WithRegisterer exports
// the same information as Prometheus collectors labelled with the arena name,
// and WithLogger receives leak reports at warn level.
package genarena
