package mesh

import "time"

// Config holds the write-once boot tunables governing ping/discovery timing
// (§4.F, §9).
type Config struct {
	PingResponseWaitMs int
	PingNodeDelayMs    int
	DiscoveryPollMs    int
}

// DefaultConfig returns the reference timing values.
func DefaultConfig() Config {
	return Config{
		PingResponseWaitMs: 1500,
		PingNodeDelayMs:    10,
		DiscoveryPollMs:    30,
	}
}

func (c Config) pingResponseWait() time.Duration {
	return time.Duration(c.PingResponseWaitMs) * time.Millisecond
}

func (c Config) pingNodeDelay() time.Duration {
	return time.Duration(c.PingNodeDelayMs) * time.Millisecond
}

func (c Config) discoveryPoll() time.Duration {
	return time.Duration(c.DiscoveryPollMs) * time.Millisecond
}
