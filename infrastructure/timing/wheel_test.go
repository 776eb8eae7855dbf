package timing

import (
	"testing"
	"time"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time          { return c.now }
func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestWheelFiresDueTimer(t *testing.T) {
	clock := &manualClock{now: time.Unix(100, 0)}
	w := NewWheel(clock, time.Millisecond)

	var fired int
	w.ArmAfter("keepalive", time.Second, func(time.Time) { fired++ })

	w.Tick(clock.Now())
	if fired != 0 {
		t.Fatal("timer fired early")
	}
	clock.Advance(time.Second)
	w.Tick(clock.Now())
	if fired != 1 {
		t.Fatalf("fired %d times, want 1", fired)
	}
	// one-shot: no refire
	clock.Advance(time.Minute)
	w.Tick(clock.Now())
	if fired != 1 {
		t.Fatalf("fired %d times after expiry, want 1", fired)
	}
}

func TestWheelCancel(t *testing.T) {
	clock := &manualClock{now: time.Unix(100, 0)}
	w := NewWheel(clock, time.Millisecond)

	fired := false
	w.ArmAfter("rekey-timeout", time.Second, func(time.Time) { fired = true })
	if !w.Armed("rekey-timeout") {
		t.Fatal("timer not armed")
	}
	w.Cancel("rekey-timeout")
	w.Cancel("rekey-timeout") // idempotent
	clock.Advance(time.Minute)
	w.Tick(clock.Now())
	if fired {
		t.Fatal("cancelled timer fired")
	}
}

func TestWheelRearmMovesDeadline(t *testing.T) {
	clock := &manualClock{now: time.Unix(100, 0)}
	w := NewWheel(clock, time.Millisecond)

	var fired int
	w.ArmAfter("keepalive", time.Second, func(time.Time) { fired++ })
	w.ArmAfter("keepalive", 10*time.Second, func(time.Time) { fired++ })

	clock.Advance(2 * time.Second)
	w.Tick(clock.Now())
	if fired != 0 {
		t.Fatal("re-armed timer fired at the old deadline")
	}
	clock.Advance(10 * time.Second)
	w.Tick(clock.Now())
	if fired != 1 {
		t.Fatalf("fired %d times, want 1", fired)
	}
}

func TestWheelCallbackMayRearm(t *testing.T) {
	clock := &manualClock{now: time.Unix(100, 0)}
	w := NewWheel(clock, time.Millisecond)

	var fired int
	var tick func(time.Time)
	tick = func(time.Time) {
		fired++
		w.ArmAfter("keepalive", time.Second, tick)
	}
	w.ArmAfter("keepalive", time.Second, tick)

	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		w.Tick(clock.Now())
	}
	if fired != 3 {
		t.Fatalf("fired %d times, want 3", fired)
	}
}

func TestWheelFiresInNameOrder(t *testing.T) {
	clock := &manualClock{now: time.Unix(100, 0)}
	w := NewWheel(clock, time.Millisecond)

	var order []string
	w.ArmAfter("b-second", time.Second, func(time.Time) { order = append(order, "b") })
	w.ArmAfter("a-first", time.Second, func(time.Time) { order = append(order, "a") })

	clock.Advance(2 * time.Second)
	w.Tick(clock.Now())
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("firing order %v", order)
	}
}
