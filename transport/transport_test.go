package transport

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neurofab/z1cluster/bus"
	"github.com/neurofab/z1cluster/hal"
	"github.com/neurofab/z1cluster/proto"
)

type capturingHandler struct {
	source  uint8
	payload []byte
	calls   int
}

func (h *capturingHandler) HandleTransfer(source uint8, payload []byte) {
	h.source = source
	h.payload = append([]byte(nil), payload...)
	h.calls++
}

func TestTransportReassemblesThousandByteTransfer(t *testing.T) {
	// §8 scenario 4: a 1000-byte MEM_WRITE delivered as a multi-frame
	// transfer must reassemble byte-for-byte in order.
	medium := bus.NewMedium()
	clock := hal.NewSimClock(0)

	handler := &capturingHandler{}
	engineB := bus.NewEngine(1, medium, hal.BusPins{}, bus.DefaultConfig(), clock, hal.NoopLogger(), nil)
	tr := New(DefaultConfig(), clock, hal.NoopLogger(), handler, nil)
	engineB.SetProcessor(tr)

	engineA := bus.NewEngine(0, medium, hal.BusPins{}, bus.DefaultConfig(), clock, hal.NoopLogger(), nil)

	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i)
	}

	require.NoError(t, Send(engineA, 1, payload))
	require.Equal(t, 1, handler.calls)
	require.Equal(t, uint8(0), handler.source)
	require.Equal(t, payload, handler.payload)
}

func TestTransportDropsChecksumMismatch(t *testing.T) {
	medium := bus.NewMedium()
	clock := hal.NewSimClock(0)

	handler := &capturingHandler{}
	engineB := bus.NewEngine(1, medium, hal.BusPins{}, bus.DefaultConfig(), clock, hal.NoopLogger(), nil)
	tr := New(DefaultConfig(), clock, hal.NoopLogger(), handler, nil)
	engineB.SetProcessor(tr)

	engineA := bus.NewEngine(0, medium, hal.BusPins{}, bus.DefaultConfig(), clock, hal.NoopLogger(), nil)

	require.NoError(t, engineA.Write(1, proto.CmdFrameStart, 0))
	require.NoError(t, engineA.Write(1, proto.CmdFrameData, 0)) // length high
	require.NoError(t, engineA.Write(1, proto.CmdFrameData, 2)) // length low: 2 bytes
	require.NoError(t, engineA.Write(1, proto.CmdFrameData, 0)) // seq 0
	require.NoError(t, engineA.Write(1, proto.CmdFrameData, 0xAB))
	require.NoError(t, engineA.Write(1, proto.CmdFrameData, 1)) // seq 1
	require.NoError(t, engineA.Write(1, proto.CmdFrameData, 0xCD))
	require.NoError(t, engineA.Write(1, proto.CmdFrameEnd, 0x00)) // wrong checksum (want 0x66)

	require.Equal(t, 0, handler.calls)
}

func TestTransportDropsOutOfOrderFrame(t *testing.T) {
	medium := bus.NewMedium()
	clock := hal.NewSimClock(0)

	handler := &capturingHandler{}
	engineB := bus.NewEngine(1, medium, hal.BusPins{}, bus.DefaultConfig(), clock, hal.NoopLogger(), nil)
	tr := New(DefaultConfig(), clock, hal.NoopLogger(), handler, nil)
	engineB.SetProcessor(tr)

	engineA := bus.NewEngine(0, medium, hal.BusPins{}, bus.DefaultConfig(), clock, hal.NoopLogger(), nil)

	require.NoError(t, engineA.Write(1, proto.CmdFrameStart, 0))
	require.NoError(t, engineA.Write(1, proto.CmdFrameData, 0))
	require.NoError(t, engineA.Write(1, proto.CmdFrameData, 1)) // length 1
	require.NoError(t, engineA.Write(1, proto.CmdFrameData, 5)) // wrong seq, expected 0
	require.NoError(t, engineA.Write(1, proto.CmdFrameData, 0x11))
	require.NoError(t, engineA.Write(1, proto.CmdFrameEnd, 0x00))

	require.Equal(t, 0, handler.calls)
}

func TestTransportExpireStale(t *testing.T) {
	clock := hal.NewSimClock(0)
	cfg := Config{TimeoutMs: 1}
	tr := New(cfg, clock, hal.NoopLogger(), nil, nil)

	tr.Process(2, proto.CmdFrameStart, 0)
	require.Len(t, tr.sessions, 1)

	clock.Advance(5000) // 5ms, past the 1ms timeout
	tr.ExpireStale(clock.NowUs())
	require.Len(t, tr.sessions, 0)
}
