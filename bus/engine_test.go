package bus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neurofab/z1cluster/hal"
	"github.com/neurofab/z1cluster/zerr"
)

type recordingProcessor struct {
	mu    sync.Mutex
	calls []call
}

type call struct {
	source, cmd, data uint8
}

func (p *recordingProcessor) Process(source, cmd, data uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call{source, cmd, data})
}

func (p *recordingProcessor) last() (call, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return call{}, false
	}
	return p.calls[len(p.calls)-1], true
}

func TestEngineTargetedWriteDelivers(t *testing.T) {
	medium := NewMedium()
	target := &recordingProcessor{}
	_ = NewEngine(0, medium, hal.BusPins{}, DefaultConfig(), hal.NewSimClock(0), hal.NoopLogger(), nil)
	NewEngine(1, medium, hal.BusPins{}, DefaultConfig(), hal.NewSimClock(0), hal.NoopLogger(), target)

	initiator, _ := medium.lookup(0)
	require.NoError(t, initiator.Write(1, 0x10, 0xFF))

	got, ok := target.last()
	require.True(t, ok)
	require.Equal(t, call{source: 0, cmd: 0x10, data: 0xFF}, got)
}

func TestEngineWriteToUnknownNodeTimesOut(t *testing.T) {
	medium := NewMedium()
	initiator := NewEngine(0, medium, hal.BusPins{}, DefaultConfig(), hal.NewSimClock(0), hal.NoopLogger(), nil)

	err := initiator.Write(5, 0x99, 0xA5)
	require.ErrorIs(t, err, zerr.ErrAckTimeout)
}

func TestEngineBroadcastReachesAllOthers(t *testing.T) {
	medium := NewMedium()
	a := &recordingProcessor{}
	b := &recordingProcessor{}
	NewEngine(0, medium, hal.BusPins{}, DefaultConfig(), hal.NewSimClock(0), hal.NoopLogger(), nil)
	NewEngine(1, medium, hal.BusPins{}, DefaultConfig(), hal.NewSimClock(0), hal.NoopLogger(), a)
	NewEngine(2, medium, hal.BusPins{}, DefaultConfig(), hal.NewSimClock(0), hal.NoopLogger(), b)

	initiator, _ := medium.lookup(0)
	require.NoError(t, initiator.Broadcast(0x30, 1))

	ca, ok := a.last()
	require.True(t, ok)
	require.Equal(t, uint8(0x30), ca.cmd)

	cb, ok := b.last()
	require.True(t, ok)
	require.Equal(t, uint8(0x30), cb.cmd)
}

func TestEngineRejectsBadHeaderMagic(t *testing.T) {
	medium := NewMedium()
	target := &recordingProcessor{}
	NewEngine(1, medium, hal.BusPins{}, DefaultConfig(), hal.NewSimClock(0), hal.NoopLogger(), target)

	peer, ok := medium.lookup(1)
	require.True(t, ok)

	err := peer.receiveTargeted(0, [2]frame{{High: 0x00, Low: 0}, {High: 0x10, Low: 0}})
	require.ErrorIs(t, err, zerr.ErrFrameMagicMismatch)

	_, ok = target.last()
	require.False(t, ok)
}

func TestEngineContendedClaimEventuallyBusy(t *testing.T) {
	medium := NewMedium()
	require.True(t, medium.tryClaim()) // hold the claim for the whole test

	cfg := DefaultConfig()
	cfg.BackoffBaseUs = 1 // keep the test fast
	initiator := NewEngine(0, medium, hal.BusPins{}, cfg, hal.NewSimClock(0), hal.NoopLogger(), nil)

	err := initiator.Write(1, 0x10, 0)
	require.ErrorIs(t, err, zerr.ErrBusBusy)
}

func TestEnginePendingResponseMailbox(t *testing.T) {
	medium := NewMedium()
	e := NewEngine(3, medium, hal.BusPins{}, DefaultConfig(), hal.NewSimClock(0), hal.NoopLogger(), nil)

	_, ok := e.TakePendingResponse()
	require.False(t, ok)

	e.SetPendingResponse(16, 0x99, 0xA5)
	got, ok := e.TakePendingResponse()
	require.True(t, ok)
	require.Equal(t, PendingResponse{Target: 16, Cmd: 0x99, Data: 0xA5}, got)

	_, ok = e.TakePendingResponse()
	require.False(t, ok)
}

func TestEngineIdleAfterFailedWrite(t *testing.T) {
	pins := hal.BusPins{
		Attn: hal.NewSimPin(),
		Ack:  hal.NewSimPin(),
		Clk:  hal.NewSimPin(),
	}
	for i := range pins.Addr {
		pins.Addr[i] = hal.NewSimPin()
	}
	for i := range pins.Data {
		pins.Data[i] = hal.NewSimPin()
	}

	medium := NewMedium()
	initiator := NewEngine(0, medium, pins, DefaultConfig(), hal.NewSimClock(0), hal.NoopLogger(), nil)

	require.Error(t, initiator.Write(9, 0x10, 0)) // no node 9 registered

	for _, p := range pins.Addr {
		require.Equal(t, hal.Input, p.(*hal.SimPin).Direction())
	}
}
