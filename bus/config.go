package bus

import "time"

// Config holds the write-once boot tunables governing bus timing (§4.E,
// §9). Defaults mirror the reference timing named in the spec.
type Config struct {
	ClockHighUs     int
	ClockLowUs      int
	AckTimeoutMs    int
	BackoffBaseUs   int
	BroadcastHoldMs int
}

// DefaultConfig returns the reference timing values.
func DefaultConfig() Config {
	return Config{
		ClockHighUs:     100,
		ClockLowUs:      50,
		AckTimeoutMs:    10,
		BackoffBaseUs:   50,
		BroadcastHoldMs: 10,
	}
}

func (c Config) ackTimeout() time.Duration {
	return time.Duration(c.AckTimeoutMs) * time.Millisecond
}

func (c Config) broadcastHold() time.Duration {
	return time.Duration(c.BroadcastHoldMs) * time.Millisecond
}

const maxBackoff = 10 * time.Millisecond

const maxClaimAttempts = 10
