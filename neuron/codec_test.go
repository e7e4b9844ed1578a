package neuron

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildScenarioRecord builds the literal record from §8 scenario 1: a
// two-synapse neuron with a positive and a negative weight.
func buildScenarioRecord() *Record {
	r := &Record{
		NeuronID:           3,
		Flags:              FlagActive,
		Threshold:          1.0,
		LeakRate:           0.1,
		RefractoryPeriodUs: 2000,
		SynapseCount:       2,
	}
	r.Synapses[0] = Synapse{SourceGlobalID: 0x00010005, Weight: DecodeWeight(64)}
	r.Synapses[1] = Synapse{SourceGlobalID: 0x00020007, Weight: DecodeWeight(192)}
	return r
}

func TestDecodeWeight(t *testing.T) {
	assert.InDelta(t, 64.0/63.5, DecodeWeight(64), 1e-9)
	assert.InDelta(t, -(192.0-128)/63.5, DecodeWeight(192), 1e-9)
	assert.Equal(t, 0.0, DecodeWeight(128))
	assert.Equal(t, 0.0, DecodeWeight(0))
}

func TestEncodeDecodeWeightRoundTrip(t *testing.T) {
	for b := 0; b < 256; b++ {
		if b == 128 {
			continue // ambiguous with 0, not expected to round-trip
		}
		w := DecodeWeight(byte(b))
		assert.Equal(t, byte(b), EncodeWeight(w), "byte %d", b)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	want := buildScenarioRecord()
	buf := make([]byte, RecordSize)
	require.NoError(t, Serialize(want, buf))

	got, err := Parse(buf)
	require.NoError(t, err)

	assert.Equal(t, want.NeuronID, got.NeuronID)
	assert.Equal(t, want.SynapseCount, got.SynapseCount)
	assert.InDelta(t, float64(want.Threshold), float64(got.Threshold), 1e-9)
	assert.InDelta(t, float64(want.LeakRate), float64(got.LeakRate), 1e-9)
	assert.Equal(t, want.RefractoryPeriodUs, got.RefractoryPeriodUs)
	assert.InDelta(t, 64.0/63.5, got.Synapses[0].Weight, 1e-6)
	assert.InDelta(t, -1.0079, got.Synapses[1].Weight, 1e-3)
	assert.Equal(t, uint32(0x00010005), got.Synapses[0].SourceGlobalID)
	assert.Equal(t, uint8(1), got.Synapses[0].SourceNode())
	assert.Equal(t, uint16(5), got.Synapses[0].SourceLocalID())

	buf2 := make([]byte, RecordSize)
	require.NoError(t, Serialize(got, buf2))
	assert.Equal(t, buf, buf2, "serialize(parse(bytes)) must reproduce the original bytes")
}

func TestParseRejectsOversizedSynapseCount(t *testing.T) {
	buf := make([]byte, RecordSize)
	buf[offSynapseCount] = 61 // little-endian low byte
	_, err := Parse(buf)
	require.Error(t, err)
}

func TestParseRejectsWrongLength(t *testing.T) {
	_, err := Parse(make([]byte, 255))
	require.Error(t, err)
}

func TestSerializeZeroFillsReserved(t *testing.T) {
	r := buildScenarioRecord()
	buf := make([]byte, RecordSize)
	require.NoError(t, Serialize(r, buf))
	for i := offReserved1; i < offReserved1+4; i++ {
		assert.Zero(t, buf[i])
	}
	for i := offReserved2; i < offReserved2+8; i++ {
		assert.Zero(t, buf[i])
	}
}

func TestNewTerminator(t *testing.T) {
	term := NewTerminator()
	assert.Equal(t, uint16(TerminatorID), term.NeuronID)
}
