package genarena

import "strconv"

// Handle identifies a slot at a particular generation. It is a plain value:
// copying or dropping a Handle has no effect on the arena, which remains the
// sole owner of every payload.
//
// The zero Handle is never valid because slot generations start at 1.
type Handle struct {
	index      uint32
	generation uint32
}

// Index returns the slot index the handle refers to.
func (h Handle) Index() int { return int(h.index) }

// Generation returns the slot generation the handle was issued for.
func (h Handle) Generation() uint32 { return h.generation }

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h == Handle{} }

// String formats the handle as "index@generation".
func (h Handle) String() string {
	return strconv.FormatUint(uint64(h.index), 10) + "@" + strconv.FormatUint(uint64(h.generation), 10)
}

// SlotState is the lifecycle state of a slot.
type SlotState uint8

const (
	// SlotFree slots hold no payload and are available to Allocate.
	SlotFree SlotState = iota
	// SlotReserved slots were handed out by Allocate but not constructed yet.
	SlotReserved
	// SlotLive slots hold a constructed payload.
	SlotLive
	// SlotDestroyed slots are being torn down. Slots whose generation
	// counter is exhausted stay in this state permanently.
	SlotDestroyed
)

func (s SlotState) String() string {
	switch s {
	case SlotFree:
		return "free"
	case SlotReserved:
		return "reserved"
	case SlotLive:
		return "live"
	case SlotDestroyed:
		return "destroyed"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}
