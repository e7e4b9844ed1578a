package tablegen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neurofab/z1cluster/neuron"
)

const sampleYAML = `
node_id: 2
neurons:
  - id: 0
    flags: [active, input]
    threshold: 1.0
    leak_rate: 0.1
    refractory_period_us: 2000
  - id: 1
    flags: [active]
    threshold: 1.0
    leak_rate: 0.1
    synapses:
      - source_node: 2
        source_local_id: 0
        weight: 0.5
`

func TestParseAndCompileProducesRoundTrippableRecords(t *testing.T) {
	net, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	require.Equal(t, uint8(2), net.NodeID)
	require.Len(t, net.Neurons, 2)

	blob, err := Compile(net)
	require.NoError(t, err)
	require.Len(t, blob, 2*neuron.RecordSize)

	rec0, err := neuron.Parse(blob[:neuron.RecordSize])
	require.NoError(t, err)
	require.True(t, rec0.Active())
	require.Equal(t, uint16(0), rec0.SynapseCount)

	rec1, err := neuron.Parse(blob[neuron.RecordSize:])
	require.NoError(t, err)
	require.Equal(t, uint16(1), rec1.SynapseCount)
	require.Equal(t, neuron.GlobalID(2, 0), rec1.Synapses[0].SourceGlobalID)
	require.InDelta(t, 0.5, rec1.Synapses[0].Weight, 1e-2)
}

func TestCompileRejectsSparseIDs(t *testing.T) {
	net := Network{Neurons: []NeuronSpec{{ID: 0}, {ID: 2}}}
	_, err := Compile(net)
	require.Error(t, err)
}

func TestCompileRejectsUnknownFlag(t *testing.T) {
	net := Network{Neurons: []NeuronSpec{{ID: 0, Flags: []string{"bogus"}}}}
	_, err := Compile(net)
	require.Error(t, err)
}

func TestCompileRejectsTooManySynapses(t *testing.T) {
	syns := make([]SynapseSpec, neuron.MaxSynapsesPerNeuron+1)
	net := Network{Neurons: []NeuronSpec{{ID: 0, Synapses: syns}}}
	_, err := Compile(net)
	require.Error(t, err)
}
