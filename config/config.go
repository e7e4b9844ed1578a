// Package config loads a node's write-once boot tunables (§6) from a TOML
// file, grounded on the teacher pack's use of
// github.com/pelletier/go-toml/v2 for structured configuration. Every field
// defaults to the spec's reference timing when the file omits it or is
// absent entirely, so a node can boot with no config file at all.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/neurofab/z1cluster/bus"
	"github.com/neurofab/z1cluster/mesh"
	"github.com/neurofab/z1cluster/transport"
)

// Node is the on-disk shape of node.toml: one section per timing-owning
// collaborator, plus this node's own identity and table capacity.
type Node struct {
	NodeID     uint8 `toml:"node_id"`
	MaxNeurons int   `toml:"max_neurons"`

	Bus struct {
		ClockHighUs     int `toml:"clock_high_us"`
		ClockLowUs      int `toml:"clock_low_us"`
		AckTimeoutMs    int `toml:"ack_timeout_ms"`
		BackoffBaseUs   int `toml:"backoff_base_us"`
		BroadcastHoldMs int `toml:"broadcast_hold_ms"`
	} `toml:"bus"`

	Mesh struct {
		PingResponseWaitMs int `toml:"ping_response_wait_ms"`
		PingNodeDelayMs    int `toml:"ping_node_delay_ms"`
		DiscoveryPollMs    int `toml:"discovery_poll_ms"`
	} `toml:"mesh"`

	Transport struct {
		TimeoutMs int `toml:"timeout_ms"`
	} `toml:"transport"`
}

// Default returns a Node populated with the spec's reference timing and a
// 1024-neuron table (neuron.MaxLocalID), node id 0.
func Default() Node {
	var n Node
	n.NodeID = 0
	n.MaxNeurons = 1024
	busDefaults := bus.DefaultConfig()
	n.Bus.ClockHighUs = busDefaults.ClockHighUs
	n.Bus.ClockLowUs = busDefaults.ClockLowUs
	n.Bus.AckTimeoutMs = busDefaults.AckTimeoutMs
	n.Bus.BackoffBaseUs = busDefaults.BackoffBaseUs
	n.Bus.BroadcastHoldMs = busDefaults.BroadcastHoldMs

	meshDefaults := mesh.DefaultConfig()
	n.Mesh.PingResponseWaitMs = meshDefaults.PingResponseWaitMs
	n.Mesh.PingNodeDelayMs = meshDefaults.PingNodeDelayMs
	n.Mesh.DiscoveryPollMs = meshDefaults.DiscoveryPollMs

	n.Transport.TimeoutMs = transport.DefaultConfig().TimeoutMs
	return n
}

// Load reads and parses a TOML file at path, overlaying it onto Default()
// so any key the file omits keeps the spec's reference value. A missing
// file is not an error: Default() is returned unchanged.
func Load(path string) (Node, error) {
	n := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return n, nil
		}
		return n, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &n); err != nil {
		return n, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return n, nil
}

// BusConfig projects the node's bus timing into a bus.Config.
func (n Node) BusConfig() bus.Config {
	return bus.Config{
		ClockHighUs:     n.Bus.ClockHighUs,
		ClockLowUs:      n.Bus.ClockLowUs,
		AckTimeoutMs:    n.Bus.AckTimeoutMs,
		BackoffBaseUs:   n.Bus.BackoffBaseUs,
		BroadcastHoldMs: n.Bus.BroadcastHoldMs,
	}
}

// MeshConfig projects the node's ping/discovery timing into a mesh.Config.
func (n Node) MeshConfig() mesh.Config {
	return mesh.Config{
		PingResponseWaitMs: n.Mesh.PingResponseWaitMs,
		PingNodeDelayMs:    n.Mesh.PingNodeDelayMs,
		DiscoveryPollMs:    n.Mesh.DiscoveryPollMs,
	}
}

// TransportConfig projects the node's multi-frame timeout into a
// transport.Config.
func (n Node) TransportConfig() transport.Config {
	return transport.Config{TimeoutMs: n.Transport.TimeoutMs}
}
