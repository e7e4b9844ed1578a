package hal

import "time"

// Clock is the monotonic microsecond clock collaborator (§6).
type Clock interface {
	NowUs() uint32
}

// SystemClock reads the monotonic wall clock via time.Now, truncated to the
// 32-bit microsecond counter the wire format and neuron records use (§3).
// It wraps after ~71 minutes like the real hardware counter would; callers
// must not assume monotonic comparisons hold across a wrap.
type SystemClock struct{ epoch time.Time }

func NewSystemClock() *SystemClock { return &SystemClock{epoch: time.Now()} }

func (c *SystemClock) NowUs() uint32 {
	return uint32(time.Since(c.epoch).Microseconds())
}

// SimClock is a manually-advanced clock for deterministic tests, mirroring
// how neuron/neuron_test.go in the teacher corpus steps time by hand rather
// than sleeping.
type SimClock struct{ us uint32 }

func NewSimClock(startUs uint32) *SimClock { return &SimClock{us: startUs} }

func (c *SimClock) NowUs() uint32 { return c.us }

func (c *SimClock) Advance(deltaUs uint32) { c.us += deltaUs }

func (c *SimClock) Set(us uint32) { c.us = us }
