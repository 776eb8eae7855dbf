package chacha20

import (
	"errors"
	"testing"

	"synapseguard/infrastructure/settings"
)

func TestReplayWindowRejectsZero(t *testing.T) {
	w := NewReplayWindow(0)
	if err := w.Validate(0); !errors.Is(err, ErrNonUniqueCounter) {
		t.Fatalf("expected rejection of counter 0, got %v", err)
	}
}

func TestReplayWindowRejectsLimit(t *testing.T) {
	w := NewReplayWindow(0)
	if err := w.Validate(settings.RejectAfterMessages); !errors.Is(err, ErrNonUniqueCounter) {
		t.Fatalf("expected rejection at RejectAfterMessages, got %v", err)
	}
}

func TestReplayWindowMonotonicAccept(t *testing.T) {
	w := NewReplayWindow(0)
	for c := uint64(1); c <= 100; c++ {
		if err := w.Validate(c); err != nil {
			t.Fatalf("counter %d rejected: %v", c, err)
		}
	}
}

func TestReplayWindowRejectsReplay(t *testing.T) {
	w := NewReplayWindow(0)
	for _, c := range []uint64{100, 50, 99, 101, 48} {
		if err := w.Validate(c); err != nil {
			t.Fatalf("counter %d rejected: %v", c, err)
		}
	}
	if err := w.Validate(100); !errors.Is(err, ErrNonUniqueCounter) {
		t.Fatalf("expected replay rejection of 100, got %v", err)
	}
}

func TestReplayWindowSlide(t *testing.T) {
	w := NewReplayWindow(0)
	size := uint64(settings.ReplayWindowSize)
	if err := w.Validate(5000); err != nil {
		t.Fatalf("5000 rejected: %v", err)
	}
	// a gap of 4999 is far outside the window
	if err := w.Validate(1); !errors.Is(err, ErrNonUniqueCounter) {
		t.Fatalf("expected too-old rejection of 1, got %v", err)
	}
	// a gap of 1000 is inside the default 2048-bit window
	if err := w.Validate(4000); err != nil {
		t.Fatalf("in-window 4000 rejected: %v", err)
	}
	// exactly size behind lastSeen is the first too-old counter
	if err := w.Validate(5000 - size); !errors.Is(err, ErrNonUniqueCounter) {
		t.Fatalf("expected too-old rejection at window edge, got %v", err)
	}
	if err := w.Validate(5001); err != nil {
		t.Fatalf("5001 rejected: %v", err)
	}
}

func TestReplayWindowEdgeOfWindow(t *testing.T) {
	w := NewReplayWindow(0)
	size := uint64(settings.ReplayWindowSize)
	if err := w.Validate(size + 10); err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	// exactly size behind lastSeen: too old
	if err := w.Validate(10); !errors.Is(err, ErrNonUniqueCounter) {
		t.Fatalf("expected too-old at window edge, got %v", err)
	}
	// size-1 behind lastSeen: still in window
	if err := w.Validate(11); err != nil {
		t.Fatalf("in-window counter rejected: %v", err)
	}
	if err := w.Validate(11); !errors.Is(err, ErrNonUniqueCounter) {
		t.Fatalf("expected replay rejection, got %v", err)
	}
}

func TestReplayWindowBigJumpClearsHistory(t *testing.T) {
	w := NewReplayWindow(0)
	if err := w.Validate(3); err != nil {
		t.Fatalf("3 rejected: %v", err)
	}
	jump := uint64(settings.ReplayWindowSize) * 10
	if err := w.Validate(jump); err != nil {
		t.Fatalf("jump rejected: %v", err)
	}
	if err := w.Validate(jump); !errors.Is(err, ErrNonUniqueCounter) {
		t.Fatalf("expected replay after jump, got %v", err)
	}
	if err := w.Validate(jump - 1); err != nil {
		t.Fatalf("in-window after jump rejected: %v", err)
	}
}

func TestReplayWindowCheckDoesNotCommit(t *testing.T) {
	w := NewReplayWindow(0)
	if err := w.Check(42); err != nil {
		t.Fatalf("Check: %v", err)
	}
	// not accepted yet, so checking again still passes
	if err := w.Check(42); err != nil {
		t.Fatalf("second Check: %v", err)
	}
	w.Accept(42)
	if err := w.Check(42); !errors.Is(err, ErrNonUniqueCounter) {
		t.Fatalf("expected replay after Accept, got %v", err)
	}
}

func TestReplayWindowReset(t *testing.T) {
	w := NewReplayWindow(0)
	if err := w.Validate(1000); err != nil {
		t.Fatalf("1000 rejected: %v", err)
	}
	w.Reset()
	if err := w.Validate(1); err != nil {
		t.Fatalf("counter 1 rejected after reset: %v", err)
	}
}

func TestReplayWindowRoundsUpSize(t *testing.T) {
	w := NewReplayWindow(100)
	if w.size != 128 {
		t.Fatalf("expected size rounded to 128, got %d", w.size)
	}
	if len(w.bitmap) != 3 {
		t.Fatalf("expected 3 words (window + spare), got %d", len(w.bitmap))
	}
}
