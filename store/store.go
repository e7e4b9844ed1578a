// Package store implements the indexed, persistent neuron table over PSRAM
// (§4.C): a table descriptor plus bounds-checked read/write passthrough to
// the codec and PSRAM byte interface, and the staged-table commit path the
// controller uses to deploy a new network.
package store

import (
	"fmt"

	"github.com/neurofab/z1cluster/hal"
	"github.com/neurofab/z1cluster/neuron"
	"github.com/neurofab/z1cluster/zerr"
)

// loadChunkSize bounds a single load_table copy to keep any one PSRAM
// transaction short (§4.C).
const loadChunkSize = 1024

// Descriptor describes a table's placement in PSRAM (§4.C).
type Descriptor struct {
	BaseAddr    uint32
	MaxNeurons  int
	EntrySize   int
	NeuronCount int
}

// Store is the neuron store: the sole authoritative owner of persistent
// neuron state (§3 Ownership).
type Store struct {
	psram hal.PSRAM
	desc  Descriptor
}

// New constructs a Store bound to a PSRAM backing. Init must be called
// before any other operation.
func New(psram hal.PSRAM) *Store {
	return &Store{psram: psram}
}

// Init validates and installs a table descriptor: base+max*entrySize must
// fit within the PSRAM address space (§4.C).
func (s *Store) Init(base uint32, max int) error {
	entrySize := neuron.RecordSize
	end := uint64(base) + uint64(max)*uint64(entrySize)
	if end > uint64(s.psram.Size()) {
		return fmt.Errorf("store: init: table [%#x, %#x) exceeds psram size %d: %w", base, end, s.psram.Size(), zerr.ErrOutOfRange)
	}
	s.desc = Descriptor{BaseAddr: base, MaxNeurons: max, EntrySize: entrySize}
	return nil
}

// Info returns a copy of the table descriptor (§4.C).
func (s *Store) Info() Descriptor { return s.desc }

func (s *Store) offsetOf(id int) (uint32, error) {
	if id < 0 || id >= s.desc.MaxNeurons {
		return 0, fmt.Errorf("store: neuron id %d out of range [0,%d): %w", id, s.desc.MaxNeurons, zerr.ErrOutOfRange)
	}
	return s.desc.BaseAddr + uint32(id)*uint32(s.desc.EntrySize), nil
}

// Read decodes the record at local index id (§4.C).
func (s *Store) Read(id int) (*neuron.Record, error) {
	off, err := s.offsetOf(id)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, s.desc.EntrySize)
	if err := s.psram.Read(off, buf); err != nil {
		return nil, fmt.Errorf("store: read id %d: %w", id, err)
	}
	rec, err := neuron.Parse(buf)
	if err != nil {
		return nil, fmt.Errorf("store: read id %d: %w", id, zerr.ErrCodecError)
	}
	return rec, nil
}

// Write encodes and persists a record at local index id (§4.C).
func (s *Store) Write(id int, rec *neuron.Record) error {
	off, err := s.offsetOf(id)
	if err != nil {
		return err
	}
	buf := make([]byte, s.desc.EntrySize)
	if err := neuron.Serialize(rec, buf); err != nil {
		return fmt.Errorf("store: write id %d: %w", id, zerr.ErrCodecError)
	}
	if err := s.psram.Write(off, buf); err != nil {
		return fmt.Errorf("store: write id %d: %w", id, err)
	}
	return nil
}

// WriteRaw writes data directly to an absolute PSRAM address, bypassing the
// record codec. Used to land a staged table (or any other blob) at a
// controller-chosen address ahead of a LoadTable commit (§4.C, §6 MEM_WRITE).
func (s *Store) WriteRaw(addr uint32, data []byte) error {
	if err := s.psram.Write(addr, data); err != nil {
		return fmt.Errorf("store: write raw at %#x: %w", addr, err)
	}
	return nil
}

// ReadRaw reads n bytes back from an absolute PSRAM address, bypassing the
// record codec.
func (s *Store) ReadRaw(addr uint32, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := s.psram.Read(addr, buf); err != nil {
		return nil, fmt.Errorf("store: read raw at %#x: %w", addr, err)
	}
	return buf, nil
}

// LoadTable copies n records from an arbitrary staging address into the
// table's base address in chunks of at most loadChunkSize bytes, then
// commits neuron_count = n (§4.C). Used when the controller has already
// staged a new table elsewhere in PSRAM and wants the node to adopt it.
func (s *Store) LoadTable(sourceAddr uint32, n int) error {
	if n < 0 || n > s.desc.MaxNeurons {
		return fmt.Errorf("store: load_table: n=%d exceeds capacity %d: %w", n, s.desc.MaxNeurons, zerr.ErrOutOfRange)
	}

	total := uint64(n) * uint64(s.desc.EntrySize)
	var copied uint64
	buf := make([]byte, loadChunkSize)
	for copied < total {
		n := loadChunkSize
		if remaining := total - copied; remaining < uint64(n) {
			n = int(remaining)
		}
		chunk := buf[:n]
		if err := s.psram.Read(sourceAddr+uint32(copied), chunk); err != nil {
			return fmt.Errorf("store: load_table: read at %#x: %w", sourceAddr+uint32(copied), err)
		}
		if err := s.psram.Write(s.desc.BaseAddr+uint32(copied), chunk); err != nil {
			return fmt.Errorf("store: load_table: write at %#x: %w", s.desc.BaseAddr+uint32(copied), err)
		}
		copied += uint64(n)
	}

	s.desc.NeuronCount = n
	return nil
}
