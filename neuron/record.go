// Package neuron holds the bit-exact 280-byte neuron record layout (§3) and
// its codec (§4.B): the sole authority over the on-disk format so tables
// generated on a host machine (see tablegen) load unchanged on a node.
//
// This package is the data-model leaf of the stack: it knows nothing about
// PSRAM addressing (store), caching (cache), or the LIF loop (engine).
package neuron

import "time"

// RecordSize is the fixed, bit-exact on-disk size of one neuron record (§3).
//
// The byte-offset table in §3 is internally consistent field-by-field
// (every offset+size lands exactly on the next field's offset) and ends
// with synapses[60] at offset 40, 4 bytes each: 40+240 = 280. That is taken
// as authoritative over the prose "256 bytes" label, since
// MAX_SYNAPSES_PER_NEURON is pinned at 60 by name elsewhere in the spec and
// only fits the offset table at 280 bytes. See DESIGN.md.
const RecordSize = 280

// MaxSynapsesPerNeuron bounds synapse_count (§3).
const MaxSynapsesPerNeuron = 60

// MaxLocalID is the exclusive upper bound on neuron_id (§3).
const MaxLocalID = 1024

// TerminatorID marks the end of a table's contiguous run of valid records.
const TerminatorID = 0xFFFF

// Flag bits within the record's flags field (§3).
const (
	FlagActive      uint16 = 1 << 0
	FlagInhibitory  uint16 = 1 << 1
	FlagInput       uint16 = 1 << 2
	FlagOutput      uint16 = 1 << 3
	FlagRefractory  uint16 = 1 << 4
)

// Synapse is a decoded packed synapse entry (§3): a directed, weighted
// connection from a source neuron, identified by a 24-bit global id, to the
// neuron owning the record. Delay is not modeled; runtime delay is fixed at
// zero (§3, Non-goals).
type Synapse struct {
	SourceGlobalID uint32 // 24-bit: upper 8 bits node id, lower 16 bits local id
	Weight         float64
}

// SourceNode returns the 8-bit node id packed into the upper byte of the
// 24-bit global id.
func (s Synapse) SourceNode() uint8 { return uint8(s.SourceGlobalID >> 16) }

// SourceLocalID returns the 16-bit local neuron id packed into the lower
// bytes of the 24-bit global id.
func (s Synapse) SourceLocalID() uint16 { return uint16(s.SourceGlobalID) }

// GlobalID packs a node id and local id into the 24-bit global id used
// throughout the wire format and spike routing (§3, GLOSSARY).
func GlobalID(node uint8, local uint16) uint32 {
	return uint32(node)<<16 | uint32(local)
}

// Record is the decoded form of one 280-byte neuron record (§3).
type Record struct {
	NeuronID          uint16
	Flags             uint16
	MembranePotential float32
	Threshold         float32
	LastSpikeTimeUs   uint32
	SynapseCount      uint16
	SynapseCapacity   uint16 // informational, ignored on load
	LeakRate          float32
	RefractoryPeriodUs uint32
	Synapses          [MaxSynapsesPerNeuron]Synapse

	// RefractoryUntilUs is a runtime-only derived field (not part of the
	// 280-byte layout). Parse initializes it to LastSpikeTimeUs, so a
	// freshly loaded neuron that has never fired starts out not refractory;
	// Fire is what advances it to last_spike_time_us + refractory_period_us,
	// keeping the invariant refractory_until_us >= last_spike_time_us
	// (§3 invariants) true from that point on.
	RefractoryUntilUs uint32
}

// Active reports whether the neuron's active flag is set.
func (r *Record) Active() bool { return r.Flags&FlagActive != 0 }

// Inhibitory reports whether the neuron's inhibitory flag is set.
func (r *Record) Inhibitory() bool { return r.Flags&FlagInhibitory != 0 }

// IsRefractoryAt reports whether the neuron is still within its refractory
// window at the given simulated time (§4.I step 2, §8 refractory law).
func (r *Record) IsRefractoryAt(nowUs uint32) bool {
	return nowUs < r.RefractoryUntilUs
}

// Fire records a spike at nowUs: resets the membrane potential, bumps the
// refractory window, and marks the refractory flag (§4.I step 2).
func (r *Record) Fire(nowUs uint32) {
	r.LastSpikeTimeUs = nowUs
	r.RefractoryUntilUs = nowUs + r.RefractoryPeriodUs
	r.MembranePotential = 0
	r.Flags |= FlagRefractory
}

// FireTime converts the record's last spike timestamp to a time.Duration
// since the node's boot epoch, for logging only; the wire format and the
// engine operate exclusively in raw microseconds.
func (r *Record) FireTime() time.Duration {
	return time.Duration(r.LastSpikeTimeUs) * time.Microsecond
}
