package genarena

import "github.com/pkg/errors"

var (
	// ErrStaleHandle is returned when a handle does not refer to a slot in
	// the expected state at the handle's generation. It covers double
	// destroy, use after destroy, and handles that were never issued.
	ErrStaleHandle = errors.New("stale handle")

	// ErrAlreadyLive is returned by Construct on a slot that already holds
	// a payload.
	ErrAlreadyLive = errors.New("slot already live")

	// ErrArenaFull is returned by Allocate when Config.MaxSlots is reached
	// and no slot can be reused.
	ErrArenaFull = errors.New("arena full")

	// ErrReleased is returned by every operation after Release.
	ErrReleased = errors.New("arena released")
)
