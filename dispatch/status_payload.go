package dispatch

import (
	"encoding/binary"

	"github.com/neurofab/z1cluster/engine"
)

// statusPayloadSize is the wire size of the SNN_GET_STATUS reply (§9 open
// question, resolved in SPEC_FULL.md): state, step count, spikes fired, and
// the clock reading at the time of the snapshot.
const statusPayloadSize = 24

func encodeStatusPayload(st engine.Stats) []byte {
	buf := make([]byte, statusPayloadSize)
	buf[0] = byte(st.State)
	binary.LittleEndian.PutUint64(buf[4:12], st.StepCount)
	binary.LittleEndian.PutUint64(buf[12:20], st.SpikesFired)
	binary.LittleEndian.PutUint32(buf[20:24], st.LastStepUs)
	return buf
}

// DecodeStatusPayload parses an SNN_GET_STATUS reply, for a controller that
// receives one.
func DecodeStatusPayload(buf []byte) (state engine.State, stepCount, spikesFired uint64, lastStepUs uint32) {
	state = engine.State(buf[0])
	stepCount = binary.LittleEndian.Uint64(buf[4:12])
	spikesFired = binary.LittleEndian.Uint64(buf[12:20])
	lastStepUs = binary.LittleEndian.Uint32(buf[20:24])
	return state, stepCount, spikesFired, lastStepUs
}
