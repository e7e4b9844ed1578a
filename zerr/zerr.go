// Package zerr collects the typed error kinds shared across the cluster
// firmware packages (bus, transport, store, cache, engine, dispatch).
//
// Every error returned across a package boundary wraps one of these
// sentinels so callers can classify failures with errors.Is rather than
// string matching, the way github.com/SynapticNetworks/temporal-neuron
// wraps its own sentinels with fmt.Errorf("...: %w", err).
package zerr

import "errors"

// Bus PHY / framing (§4.E, §7).
var (
	ErrBusBusy            = errors.New("bus busy")
	ErrAckTimeout         = errors.New("ack timeout")
	ErrClockTimeout       = errors.New("clock timeout")
	ErrFrameMagicMismatch = errors.New("frame magic mismatch")
)

// Dispatcher (§4.J, §7).
var ErrUnknownCommand = errors.New("unknown command")

// Shared bounds/codec/store/cache (§4.A-D, §7).
var (
	ErrOutOfRange  = errors.New("out of range")
	ErrCodecError  = errors.New("codec error")
	ErrStoreFault  = errors.New("store fault")
	ErrCacheFault  = errors.New("cache fault")
)

// Spike queue (§4.H, §7).
var ErrQueueFull = errors.New("spike queue full")

// Multi-frame transport (§4.G, §7).
var (
	ErrProtocolState = errors.New("multi-frame protocol state error")
	ErrTimeout       = errors.New("multi-frame transfer timeout")
)

// Engine (§4.I).
var ErrNeuronOutOfRange = errors.New("neuron id out of range")
