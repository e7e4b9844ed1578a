package neuron

import (
	"encoding/binary"
	"math"
)

// decodeFloat32 and encodeFloat32 keep the IEEE-754 single-precision
// transcoding (§3: membrane_potential, threshold, leak_rate) out of
// Parse/Serialize's field list, as small single-purpose helpers in
// preference to inline arithmetic.
func decodeFloat32(buf []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf))
}

func encodeFloat32(buf []byte, v float32) {
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
}
