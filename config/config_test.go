package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSpecReferenceTiming(t *testing.T) {
	n := Default()
	require.Equal(t, 100, n.Bus.ClockHighUs)
	require.Equal(t, 50, n.Bus.ClockLowUs)
	require.Equal(t, 10, n.Bus.AckTimeoutMs)
	require.Equal(t, 50, n.Bus.BackoffBaseUs)
	require.Equal(t, 10, n.Bus.BroadcastHoldMs)
	require.Equal(t, 1500, n.Mesh.PingResponseWaitMs)
	require.Equal(t, 10, n.Mesh.PingNodeDelayMs)
	require.Equal(t, 30, n.Mesh.DiscoveryPollMs)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	n, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	require.Equal(t, Default(), n)
}

func TestLoadOverlaysProvidedKeysOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
node_id = 3
max_neurons = 64

[bus]
ack_timeout_ms = 25
`), 0o644))

	n, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint8(3), n.NodeID)
	require.Equal(t, 64, n.MaxNeurons)
	require.Equal(t, 25, n.Bus.AckTimeoutMs)
	// Untouched keys keep their spec defaults.
	require.Equal(t, 100, n.Bus.ClockHighUs)
	require.Equal(t, 1500, n.Mesh.PingResponseWaitMs)
}

func TestProjectionsRoundTripIntoComponentConfigs(t *testing.T) {
	n := Default()
	require.Equal(t, 100, n.BusConfig().ClockHighUs)
	require.Equal(t, 1500, n.MeshConfig().PingResponseWaitMs)
	require.Equal(t, 1000, n.TransportConfig().TimeoutMs)
}
