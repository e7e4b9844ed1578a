package dispatch

import (
	"encoding/binary"
	"math"

	"github.com/neurofab/z1cluster/zerr"
)

// spikePayloadSize is the wire size of a resolved SNN_SPIKE body (§9 open
// question, resolved in SPEC_FULL.md): source_global_id, timestamp_us,
// value, each a little-endian 4-byte field.
const spikePayloadSize = 12

// EncodeSpikePayload builds the wire body a sender pushes via the
// multi-frame transport after announcing SNN_SPIKE.
func EncodeSpikePayload(sourceGlobalID, timestampUs uint32, value float32) []byte {
	buf := make([]byte, spikePayloadSize)
	binary.LittleEndian.PutUint32(buf[0:4], sourceGlobalID)
	binary.LittleEndian.PutUint32(buf[4:8], timestampUs)
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(value))
	return buf
}

func decodeSpikePayload(buf []byte) (sourceGlobalID, timestampUs uint32, value float32, err error) {
	if len(buf) != spikePayloadSize {
		return 0, 0, 0, zerr.ErrCodecError
	}
	sourceGlobalID = binary.LittleEndian.Uint32(buf[0:4])
	timestampUs = binary.LittleEndian.Uint32(buf[4:8])
	value = math.Float32frombits(binary.LittleEndian.Uint32(buf[8:12]))
	return sourceGlobalID, timestampUs, value, nil
}
