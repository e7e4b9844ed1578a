package mesh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/neurofab/z1cluster/bus"
	"github.com/neurofab/z1cluster/hal"
)

// pollAndReply simulates the target node's foreground loop noticing a
// queued reply and sending it, the step a real node.Node would perform on
// every tick (§5). It polls because, in this test, the reply is produced
// by a concurrently-running Ping call rather than up front.
func pollAndReply(t *testing.T, engine *bus.Engine) {
	t.Helper()
	require.Eventually(t, func() bool {
		r, ok := engine.TakePendingResponse()
		if !ok {
			return false
		}
		require.NoError(t, engine.Write(r.Target, r.Cmd, r.Data))
		return true
	}, time.Second, time.Millisecond)
}

func TestMeshPingRoundTrip(t *testing.T) {
	medium := bus.NewMedium()
	clock := hal.NewSimClock(0)
	cfg := DefaultConfig()
	cfg.PingResponseWaitMs = 500

	engineA := bus.NewEngine(0, medium, hal.BusPins{}, bus.DefaultConfig(), clock, hal.NoopLogger(), nil)
	meshA := New(engineA, clock, cfg, hal.NoopLogger(), nil)
	engineA.SetProcessor(meshA)

	engineB := bus.NewEngine(1, medium, hal.BusPins{}, bus.DefaultConfig(), clock, hal.NoopLogger(), nil)
	meshB := New(engineB, clock, cfg, hal.NoopLogger(), nil)
	engineB.SetProcessor(meshB)

	done := make(chan struct{})
	var rtt time.Duration
	var pingErr error
	go func() {
		rtt, pingErr = meshA.Ping(1)
		close(done)
	}()

	pollAndReply(t, engineB)
	<-done

	require.NoError(t, pingErr)
	require.GreaterOrEqual(t, rtt, time.Duration(0))

	known := meshA.Known()
	require.Len(t, known, 1)
	require.Equal(t, uint8(1), known[0].ID)
}

func TestMeshPingTimesOutWhenTargetNeverReplies(t *testing.T) {
	medium := bus.NewMedium()
	clock := hal.NewSimClock(0)
	cfg := DefaultConfig()
	cfg.PingResponseWaitMs = 20

	engineA := bus.NewEngine(0, medium, hal.BusPins{}, bus.DefaultConfig(), clock, hal.NoopLogger(), nil)
	meshA := New(engineA, clock, cfg, hal.NoopLogger(), nil)
	engineA.SetProcessor(meshA)

	// Node 1 exists but never drains its pending-response mailbox.
	bus.NewEngine(1, medium, hal.BusPins{}, bus.DefaultConfig(), clock, hal.NoopLogger(), nil)

	_, err := meshA.Ping(1)
	require.Error(t, err)
}

func TestMeshForwardsNonPingCommands(t *testing.T) {
	medium := bus.NewMedium()
	clock := hal.NewSimClock(0)

	var gotCmd, gotData uint8
	inner := processorFunc(func(source, cmd, data uint8) {
		gotCmd, gotData = cmd, data
	})

	engineB := bus.NewEngine(1, medium, hal.BusPins{}, bus.DefaultConfig(), clock, hal.NoopLogger(), nil)
	meshB := New(engineB, clock, DefaultConfig(), hal.NoopLogger(), inner)
	engineB.SetProcessor(meshB)

	engineA := bus.NewEngine(0, medium, hal.BusPins{}, bus.DefaultConfig(), clock, hal.NoopLogger(), nil)
	require.NoError(t, engineA.Write(1, 0x10, 0x01))

	require.Equal(t, uint8(0x10), gotCmd)
	require.Equal(t, uint8(0x01), gotData)
}

type processorFunc func(source, cmd, data uint8)

func (f processorFunc) Process(source, cmd, data uint8) { f(source, cmd, data) }
