package genarena

import "github.com/pkg/errors"

// New allocates a slot and constructs v in it in one step.
func (a *Arena[T]) New(v T) (Handle, error) {
	h, err := a.Allocate()
	if err != nil {
		return Handle{}, err
	}
	if err := a.Construct(h, v); err != nil {
		return Handle{}, err
	}
	return h, nil
}

// Take moves the payload of h out of the arena and frees the slot. The
// finalizer does not run because ownership passes to the caller.
func (a *Arena[T]) Take(h Handle) (T, error) {
	var zero T
	if a.released {
		return zero, errors.Wrapf(ErrReleased, "take %s", h)
	}
	s, ok := a.lookup(h)
	if !ok || s.state != SlotLive {
		return zero, a.stale("take", h)
	}

	v := s.value
	s.state = SlotDestroyed
	a.live--
	a.recycle(h.Index(), s)
	a.metrics.destructions.Inc()
	a.updateGauges()
	return v, nil
}

// Value returns a copy of the payload of a live slot.
func (a *Arena[T]) Value(h Handle) (T, error) {
	p, err := a.Get(h)
	if err != nil {
		var zero T
		return zero, err
	}
	return *p, nil
}
