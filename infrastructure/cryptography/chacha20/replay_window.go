package chacha20

import "synapseguard/infrastructure/settings"

// ReplayWindow is a sliding bitmap over one-based transport counters.
// Counter zero means "nothing seen", so callers pass wire counter + 1.
//
// The bitmap is a ring of 64-bit words with one spare word beyond the window,
// so a slide clears whole words in O(diff/64) without ever touching a bit
// that is still inside the window.
//
// The Check/Accept split exists because a counter may only be committed after
// the AEAD opens: Check before decrypting, Accept once the tag verified.
// The owning session serializes calls, so there is no internal lock.
type ReplayWindow struct {
	lastSeen uint64
	bitmap   []uint64
	size     uint64
}

// NewReplayWindow builds a window of the given width in packets, rounded up
// to a multiple of 64. Non-positive widths fall back to the default.
func NewReplayWindow(bits int) *ReplayWindow {
	if bits <= 0 {
		bits = settings.ReplayWindowSize
	}
	size := ((uint64(bits) + 63) / 64) * 64
	return &ReplayWindow{
		bitmap: make([]uint64, size/64+1),
		size:   size,
	}
}

// Check reports whether counter c would be accepted, without modifying state.
func (w *ReplayWindow) Check(c uint64) error {
	switch {
	case c == 0 || c >= settings.RejectAfterMessages:
		return ErrNonUniqueCounter
	case c > w.lastSeen:
		return nil
	case w.lastSeen-c >= w.size:
		return ErrNonUniqueCounter // too old
	default:
		if w.word(c)&w.bit(c) != 0 {
			return ErrNonUniqueCounter // replay
		}
		return nil
	}
}

// Accept commits counter c. Must only be called after Check(c) returned nil
// and the packet authenticated.
func (w *ReplayWindow) Accept(c uint64) {
	switch {
	case c > w.lastSeen:
		words := uint64(len(w.bitmap))
		if diff := c/64 - w.lastSeen/64; diff >= words {
			for i := range w.bitmap {
				w.bitmap[i] = 0
			}
		} else {
			for i := w.lastSeen/64 + 1; i <= c/64; i++ {
				w.bitmap[i%words] = 0
			}
		}
		w.lastSeen = c
		w.setBit(c)
	case w.lastSeen-c < w.size:
		w.setBit(c)
	}
}

// Validate checks and accepts in one call, for paths where nothing can fail
// between the two.
func (w *ReplayWindow) Validate(c uint64) error {
	if err := w.Check(c); err != nil {
		return err
	}
	w.Accept(c)
	return nil
}

// Reset zeroes the window. Called when a session is promoted from handshake.
func (w *ReplayWindow) Reset() {
	w.lastSeen = 0
	for i := range w.bitmap {
		w.bitmap[i] = 0
	}
}

func (w *ReplayWindow) word(c uint64) uint64 {
	return w.bitmap[(c/64)%uint64(len(w.bitmap))]
}

func (w *ReplayWindow) bit(c uint64) uint64 {
	return uint64(1) << (c % 64)
}

func (w *ReplayWindow) setBit(c uint64) {
	w.bitmap[(c/64)%uint64(len(w.bitmap))] |= uint64(1) << (c % 64)
}
