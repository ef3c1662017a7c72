package host

import "time"

// Clock abstracts wall-clock time so tests can substitute a fixed or
// scripted source instead of the operating system clock.
type Clock interface {
	Now() time.Time
}

// WallClock reads the operating system clock.
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now() }

// FixedClock always reports the same instant; useful for deterministic
// tests and for replaying a snapshot at the timestamp it was taken.
type FixedClock struct{ At time.Time }

func (c FixedClock) Now() time.Time { return c.At }

// EngineClock adapts any Clock to the orderbook package's nanosecond
// uint64 timestamp convention, since events and queue priorities are
// ordered on integers rather than time.Time.
type EngineClock struct{ Clock }

func (c EngineClock) Now() uint64 { return uint64(c.Clock.Now().UnixNano()) }
