package timing

import "time"

// Clock abstracts the monotonic time source so timer-driven behavior is
// testable without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real monotonic clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
