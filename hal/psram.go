// Package hal defines the collaborator interfaces the core firmware depends
// on but does not implement: the PSRAM byte interface, the GPIO pin
// abstraction, and the monotonic clock (§6). Everything in this package is
// a narrow seam so the bus/store/engine packages can be exercised against an
// in-memory double in tests and against a real backing (hal/rpiogpio, a
// memory-mapped PSRAM window) on hardware.
package hal

import "github.com/neurofab/z1cluster/zerr"

// MinPSRAMSize is the minimum flat address space the core requires (§4.A).
const MinPSRAMSize = 8 * 1024 * 1024

// PSRAM is an addressed byte store. Implementations give no alignment or
// atomicity guarantees beyond preserving byte order; out-of-range accesses
// fail with zerr.ErrOutOfRange.
type PSRAM interface {
	Size() int
	Read(addr uint32, buf []byte) error
	Write(addr uint32, buf []byte) error
}

// SimPSRAM is an in-memory PSRAM double used by tests and by cmd/z1node when
// run without a physical backing. It is the "mock" counterpart to the
// teacher corpus's MockSynapseCompatibleNeuron-style test doubles.
type SimPSRAM struct {
	mem []byte
}

// NewSimPSRAM allocates a simulated PSRAM of the given size. size is clamped
// up to MinPSRAMSize since the core assumes at least that much is present.
func NewSimPSRAM(size int) *SimPSRAM {
	if size < MinPSRAMSize {
		size = MinPSRAMSize
	}
	return &SimPSRAM{mem: make([]byte, size)}
}

func (s *SimPSRAM) Size() int { return len(s.mem) }

func (s *SimPSRAM) Read(addr uint32, buf []byte) error {
	end := uint64(addr) + uint64(len(buf))
	if end > uint64(len(s.mem)) {
		return zerr.ErrOutOfRange
	}
	copy(buf, s.mem[addr:uint64(addr)+uint64(len(buf))])
	return nil
}

func (s *SimPSRAM) Write(addr uint32, buf []byte) error {
	end := uint64(addr) + uint64(len(buf))
	if end > uint64(len(s.mem)) {
		return zerr.ErrOutOfRange
	}
	copy(s.mem[addr:uint64(addr)+uint64(len(buf))], buf)
	return nil
}
