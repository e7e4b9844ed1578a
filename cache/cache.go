// Package cache implements the bounded, fully-associative, write-back LRU
// cache over the neuron store (§4.D): the piece that lets a node hold
// thousands of neurons in PSRAM while keeping only a working set resident
// on-chip.
//
// The cache is foreground-only (§5): the LIF engine is the single
// goroutine that ever touches it, so no internal locking is needed, unlike
// the teacher corpus's RWMutex-guarded registries which serve concurrent
// readers.
package cache

import (
	"fmt"

	"github.com/neurofab/z1cluster/neuron"
	"github.com/neurofab/z1cluster/store"
	"github.com/neurofab/z1cluster/zerr"
)

// DefaultCapacity is the reference design's working-set size (§3): a
// tuning constant, not a contract.
const DefaultCapacity = 16

type slot struct {
	valid bool
	dirty bool
	id    int
	lru   uint8
	rec   *neuron.Record
}

// Stats reports cache activity (§4.D).
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	InUse     int
}

// HitRate returns Hits/(Hits+Misses), or 0 when there have been no accesses.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is the bounded write-back neuron cache (§4.D).
type Cache struct {
	store *store.Store
	slots []slot
	stats Stats

	// inconsistent is latched true once a flush to the store fails;
	// engine.Engine.Step checks it at the end of every step and stops the
	// engine (§4.D errors).
	inconsistent bool
}

// New builds a cache of the given capacity over store s. capacity <= 0
// falls back to DefaultCapacity.
func New(s *store.Store, capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{store: s, slots: make([]slot, capacity)}
}

// Inconsistent reports whether a flush failure has left the cache unable
// to guarantee write-back (§4.D errors); engine.Engine.Step moves the engine
// to Stopped when it is true.
func (c *Cache) Inconsistent() bool { return c.inconsistent }

// Stats returns a snapshot of cache counters (§4.D).
func (c *Cache) Stats() Stats {
	s := c.stats
	s.InUse = 0
	for i := range c.slots {
		if c.slots[i].valid {
			s.InUse++
		}
	}
	return s
}

// touch bumps every slot's LRU counter (saturating) and resets the
// accessed slot's counter to 0, per the eviction discipline of §4.D.
func (c *Cache) touch(idx int) {
	for i := range c.slots {
		if i == idx {
			continue
		}
		if c.slots[i].lru < 255 {
			c.slots[i].lru++
		}
	}
	c.slots[idx].lru = 0
}

func (c *Cache) find(id int) int {
	for i := range c.slots {
		if c.slots[i].valid && c.slots[i].id == id {
			return i
		}
	}
	return -1
}

func (c *Cache) freeSlot() int {
	for i := range c.slots {
		if !c.slots[i].valid {
			return i
		}
	}
	return -1
}

// victim picks the slot with the maximum LRU counter, i.e. the one touched
// longest ago, ties broken by the lowest slot index (§4.D eviction).
func (c *Cache) victim() int {
	best := 0
	for i := 1; i < len(c.slots); i++ {
		if c.slots[i].lru < c.slots[best].lru {
			continue
		}
		if c.slots[i].lru > c.slots[best].lru {
			best = i
		}
	}
	return best
}

// Get returns a mutable handle to the decoded neuron record for id. A hit
// bumps LRU; a miss evicts (flushing if dirty) or fills a free slot, loads
// via the store, and returns the freshly loaded record (§4.D).
//
// Returns nil if the underlying load fails.
func (c *Cache) Get(id int) *neuron.Record {
	if idx := c.find(id); idx >= 0 {
		c.stats.Hits++
		c.touch(idx)
		return c.slots[idx].rec
	}

	c.stats.Misses++

	idx := c.freeSlot()
	if idx < 0 {
		idx = c.victim()
		if c.slots[idx].valid {
			c.stats.Evictions++
			if err := c.flushSlot(idx); err != nil {
				c.inconsistent = true
				return nil
			}
		}
	}

	rec, err := c.store.Read(id)
	if err != nil {
		return nil
	}

	c.slots[idx] = slot{valid: true, id: id, rec: rec}
	c.touch(idx)
	return c.slots[idx].rec
}

// MarkDirty sets the dirty flag on the slot holding id. No-op if absent
// (§4.D).
func (c *Cache) MarkDirty(id int) {
	if idx := c.find(id); idx >= 0 {
		c.slots[idx].dirty = true
	}
}

func (c *Cache) flushSlot(idx int) error {
	s := &c.slots[idx]
	if !s.valid || !s.dirty {
		return nil
	}
	if err := c.store.Write(s.id, s.rec); err != nil {
		return fmt.Errorf("cache: flush id %d: %w", s.id, zerr.ErrCacheFault)
	}
	s.dirty = false
	return nil
}

// Flush writes back id if present and dirty, clearing the dirty flag
// (§4.D).
func (c *Cache) Flush(id int) error {
	idx := c.find(id)
	if idx < 0 {
		return nil
	}
	if err := c.flushSlot(idx); err != nil {
		c.inconsistent = true
		return err
	}
	return nil
}

// FlushAll flushes every dirty slot (§4.D).
func (c *Cache) FlushAll() error {
	for i := range c.slots {
		if err := c.flushSlot(i); err != nil {
			c.inconsistent = true
			return err
		}
	}
	return nil
}

// Invalidate flushes id if dirty, then empties its slot (§4.D).
func (c *Cache) Invalidate(id int) error {
	idx := c.find(id)
	if idx < 0 {
		return nil
	}
	if err := c.flushSlot(idx); err != nil {
		c.inconsistent = true
		return err
	}
	c.slots[idx] = slot{}
	return nil
}

// Clear flushes every dirty slot, then empties all slots (§4.D).
func (c *Cache) Clear() error {
	if err := c.FlushAll(); err != nil {
		return err
	}
	for i := range c.slots {
		c.slots[i] = slot{}
	}
	return nil
}

// Capacity returns the number of cache slots.
func (c *Cache) Capacity() int { return len(c.slots) }
