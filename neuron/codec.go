package neuron

import (
	"encoding/binary"
	"fmt"

	"github.com/neurofab/z1cluster/zerr"
)

// Field offsets within a record, per §3. Reserved spans are zero-filled on
// Serialize and ignored (not validated) on Parse.
const (
	offNeuronID           = 0
	offFlags              = 2
	offMembranePotential  = 4
	offThreshold          = 8
	offLastSpikeTimeUs    = 12
	offSynapseCount       = 16
	offSynapseCapacity    = 18
	offReserved1          = 20
	offLeakRate           = 24
	offRefractoryPeriodUs = 28
	offReserved2          = 32
	offSynapses           = 40
	synapseEntrySize      = 4
)

// DecodeWeight converts a packed weight byte to its float value (§3).
// Byte 128 decodes to exactly 0, which is also what the decoding formula
// for w>=128 produces at w=128 ((128-128)/63.5 = 0); this implementation
// makes that explicit rather than relying on the coincidence (§9 open
// question, resolved).
func DecodeWeight(w byte) float64 {
	if w == 128 {
		return 0
	}
	if w < 128 {
		return float64(w) / 63.5
	}
	return -float64(w-128) / 63.5
}

// EncodeWeight converts a float weight in [-2, 2] to its packed byte form,
// the inverse of DecodeWeight. Out-of-range magnitudes are clamped to the
// nearest representable byte rather than erroring, matching the codec's
// role as a pure field-by-field transcoder (§9 design notes).
func EncodeWeight(w float64) byte {
	if w >= 0 {
		b := int(w*63.5 + 0.5)
		if b > 127 {
			b = 127
		}
		if b < 0 {
			b = 0
		}
		return byte(b)
	}
	b := 128 + int(-w*63.5+0.5)
	if b > 255 {
		b = 255
	}
	if b < 129 {
		b = 129
	}
	return byte(b)
}

func decodeSynapse(word uint32) Synapse {
	return Synapse{
		SourceGlobalID: word >> 8,
		Weight:         DecodeWeight(byte(word)),
	}
}

func encodeSynapse(s Synapse) uint32 {
	return (s.SourceGlobalID << 8) | uint32(EncodeWeight(s.Weight))
}

// Parse decodes a 280-byte buffer into a Record. It is the sole authority
// over the on-disk layout in §3: offsets, little-endian word order, and the
// weight encoding must be reproduced bit-for-bit (§4.B).
func Parse(buf []byte) (*Record, error) {
	if len(buf) != RecordSize {
		return nil, fmt.Errorf("neuron: parse: buffer is %d bytes, want %d: %w", len(buf), RecordSize, zerr.ErrCodecError)
	}

	r := &Record{
		NeuronID:           binary.LittleEndian.Uint16(buf[offNeuronID:]),
		Flags:              binary.LittleEndian.Uint16(buf[offFlags:]),
		MembranePotential:  decodeFloat32(buf[offMembranePotential:]),
		Threshold:          decodeFloat32(buf[offThreshold:]),
		LastSpikeTimeUs:    binary.LittleEndian.Uint32(buf[offLastSpikeTimeUs:]),
		SynapseCount:       binary.LittleEndian.Uint16(buf[offSynapseCount:]),
		SynapseCapacity:    binary.LittleEndian.Uint16(buf[offSynapseCapacity:]),
		LeakRate:           decodeFloat32(buf[offLeakRate:]),
		RefractoryPeriodUs: binary.LittleEndian.Uint32(buf[offRefractoryPeriodUs:]),
	}

	if r.SynapseCount > MaxSynapsesPerNeuron {
		return nil, fmt.Errorf("neuron: parse: synapse_count %d exceeds %d: %w", r.SynapseCount, MaxSynapsesPerNeuron, zerr.ErrCodecError)
	}
	if r.NeuronID != TerminatorID && r.NeuronID >= MaxLocalID {
		return nil, fmt.Errorf("neuron: parse: neuron_id %d out of range: %w", r.NeuronID, zerr.ErrCodecError)
	}

	for i := 0; i < MaxSynapsesPerNeuron; i++ {
		off := offSynapses + i*synapseEntrySize
		word := binary.LittleEndian.Uint32(buf[off:])
		r.Synapses[i] = decodeSynapse(word)
	}

	r.RefractoryUntilUs = r.LastSpikeTimeUs
	return r, nil
}

// Serialize encodes a Record into a 280-byte buffer, zero-filling reserved
// regions (§4.B).
func Serialize(r *Record, buf []byte) error {
	if len(buf) != RecordSize {
		return fmt.Errorf("neuron: serialize: buffer is %d bytes, want %d: %w", len(buf), RecordSize, zerr.ErrCodecError)
	}
	if r.SynapseCount > MaxSynapsesPerNeuron {
		return fmt.Errorf("neuron: serialize: synapse_count %d exceeds %d: %w", r.SynapseCount, MaxSynapsesPerNeuron, zerr.ErrCodecError)
	}

	for i := range buf {
		buf[i] = 0
	}

	binary.LittleEndian.PutUint16(buf[offNeuronID:], r.NeuronID)
	binary.LittleEndian.PutUint16(buf[offFlags:], r.Flags)
	encodeFloat32(buf[offMembranePotential:], r.MembranePotential)
	encodeFloat32(buf[offThreshold:], r.Threshold)
	binary.LittleEndian.PutUint32(buf[offLastSpikeTimeUs:], r.LastSpikeTimeUs)
	binary.LittleEndian.PutUint16(buf[offSynapseCount:], r.SynapseCount)
	binary.LittleEndian.PutUint16(buf[offSynapseCapacity:], r.SynapseCapacity)
	encodeFloat32(buf[offLeakRate:], r.LeakRate)
	binary.LittleEndian.PutUint32(buf[offRefractoryPeriodUs:], r.RefractoryPeriodUs)

	for i := 0; i < MaxSynapsesPerNeuron; i++ {
		off := offSynapses + i*synapseEntrySize
		binary.LittleEndian.PutUint32(buf[off:], encodeSynapse(r.Synapses[i]))
	}
	return nil
}

// NewTerminator returns a zero-filled terminator record (neuron_id ==
// 0xFFFF), used to cap a table's contiguous run of valid records (§3).
func NewTerminator() *Record {
	return &Record{NeuronID: TerminatorID}
}
