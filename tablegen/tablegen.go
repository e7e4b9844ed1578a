// Package tablegen compiles a host-authored YAML network description into
// the bit-exact neuron-record blob store.LoadTable commits on a node (§3,
// §4.B, §4.C). It is the controller-side producer implied but unspecified
// by "the controller... deploys neuron tables" (§2).
package tablegen

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/neurofab/z1cluster/neuron"
)

// SynapseSpec names one incoming synapse by its source neuron's node and
// local id, plus a signed weight in the [-2, 2] range the codec supports.
type SynapseSpec struct {
	SourceNode    uint8   `yaml:"source_node"`
	SourceLocalID uint16  `yaml:"source_local_id"`
	Weight        float64 `yaml:"weight"`
}

// NeuronSpec is one authored neuron entry. Flags are named rather than
// bit-packed so a network file stays readable; Compile maps each name to
// its neuron.Flag constant.
type NeuronSpec struct {
	ID                 uint16        `yaml:"id"`
	Flags              []string      `yaml:"flags"`
	MembranePotential  float32       `yaml:"membrane_potential"`
	Threshold          float32       `yaml:"threshold"`
	LeakRate           float32       `yaml:"leak_rate"`
	RefractoryPeriodUs uint32        `yaml:"refractory_period_us"`
	Synapses           []SynapseSpec `yaml:"synapses"`
}

// Network is the top-level authoring document: a flat list of neurons
// local to one node, addressed by NodeID for cross-node synapse sources.
type Network struct {
	NodeID  uint8        `yaml:"node_id"`
	Neurons []NeuronSpec `yaml:"neurons"`
}

var flagBits = map[string]uint16{
	"active":     neuron.FlagActive,
	"inhibitory": neuron.FlagInhibitory,
	"input":      neuron.FlagInput,
	"output":     neuron.FlagOutput,
}

// Parse decodes a YAML network description.
func Parse(data []byte) (Network, error) {
	var net Network
	if err := yaml.Unmarshal(data, &net); err != nil {
		return Network{}, fmt.Errorf("tablegen: parse: %w", err)
	}
	return net, nil
}

// Compile renders a Network into the contiguous neuron-record blob
// store.LoadTable expects: one neuron.RecordSize-byte record per entry, in
// ascending neuron id order, with no gaps (§4.C requires a dense
// [0, neuron_count) table).
func Compile(net Network) ([]byte, error) {
	sorted := make([]NeuronSpec, len(net.Neurons))
	copy(sorted, net.Neurons)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for i, n := range sorted {
		if int(n.ID) != i {
			return nil, fmt.Errorf("tablegen: compile: neuron ids must be dense starting at 0, got id %d at position %d", n.ID, i)
		}
	}

	buf := make([]byte, len(sorted)*neuron.RecordSize)
	for i, spec := range sorted {
		rec, err := buildRecord(spec)
		if err != nil {
			return nil, fmt.Errorf("tablegen: compile: neuron %d: %w", spec.ID, err)
		}
		if err := neuron.Serialize(rec, buf[i*neuron.RecordSize:(i+1)*neuron.RecordSize]); err != nil {
			return nil, fmt.Errorf("tablegen: compile: neuron %d: %w", spec.ID, err)
		}
	}
	return buf, nil
}

func buildRecord(spec NeuronSpec) (*neuron.Record, error) {
	if len(spec.Synapses) > neuron.MaxSynapsesPerNeuron {
		return nil, fmt.Errorf("synapse count %d exceeds %d", len(spec.Synapses), neuron.MaxSynapsesPerNeuron)
	}

	var flags uint16
	for _, name := range spec.Flags {
		bit, ok := flagBits[name]
		if !ok {
			return nil, fmt.Errorf("unknown flag %q", name)
		}
		flags |= bit
	}

	rec := &neuron.Record{
		NeuronID:           spec.ID,
		Flags:              flags,
		MembranePotential:  spec.MembranePotential,
		Threshold:          spec.Threshold,
		LeakRate:           spec.LeakRate,
		RefractoryPeriodUs: spec.RefractoryPeriodUs,
		SynapseCount:       uint16(len(spec.Synapses)),
		SynapseCapacity:    neuron.MaxSynapsesPerNeuron,
	}
	for i, syn := range spec.Synapses {
		rec.Synapses[i] = neuron.Synapse{
			SourceGlobalID: neuron.GlobalID(syn.SourceNode, syn.SourceLocalID),
			Weight:         syn.Weight,
		}
	}
	return rec, nil
}
