// Package engine implements the LIF execution loop (§4.I): the state
// machine governing when a node may accept spikes and step its neurons,
// and the per-timestep leak/fire/refractory pass over the resident table.
//
// The decay-then-fire-then-refractory shape mirrors
// neuron.Run/processMessageWithDecay/fireUnsafe in the teacher corpus; this
// port steps an entire table each tick instead of one goroutine per
// neuron, since §5 puts the whole node on a single cooperative foreground
// task.
package engine

import (
	"fmt"

	"github.com/neurofab/z1cluster/cache"
	"github.com/neurofab/z1cluster/hal"
	"github.com/neurofab/z1cluster/neuron"
	"github.com/neurofab/z1cluster/spike"
	"github.com/neurofab/z1cluster/store"
	"github.com/neurofab/z1cluster/zerr"
)

// State is a node's position in the §4.I lifecycle.
type State int

const (
	Uninitialized State = iota
	Initialized
	Loaded
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Loaded:
		return "loaded"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// flushEvery is how many timesteps elapse between periodic cache
// write-backs (§4.I).
const flushEvery = 100

// Stats reports engine activity (§4.I).
type Stats struct {
	State         State
	StepCount     uint64
	SpikesFired   uint64
	SpikesQueued  uint64
	SpikesDropped uint64
	LastStepUs    uint32
}

// Engine is one node's LIF execution loop over its resident neuron table.
type Engine struct {
	selfNode uint8
	store    *store.Store
	cache    *cache.Cache
	queue    *spike.Queue
	clock    hal.Clock
	logger   *hal.Logger

	state       State
	stepCount   uint64
	spikesFired uint64
}

// New builds an Engine in the Uninitialized state. selfNode is packed into
// the source id of spikes this node's own neurons fire (§3 GLOSSARY
// global id).
func New(selfNode uint8, s *store.Store, c *cache.Cache, q *spike.Queue, clock hal.Clock, logger *hal.Logger) *Engine {
	return &Engine{selfNode: selfNode, store: s, cache: c, queue: q, clock: clock, logger: logger}
}

// Init transitions Uninitialized -> Initialized, resetting counters.
func (e *Engine) Init() error {
	if e.state != Uninitialized {
		return fmt.Errorf("engine: init: %w", zerr.ErrProtocolState)
	}
	e.state = Initialized
	e.stepCount = 0
	e.spikesFired = 0
	return nil
}

// Load stages n neuron records from sourceAddr into the store and
// transitions to Loaded (§4.I, requires Initialized or Loaded).
func (e *Engine) Load(sourceAddr uint32, n int) error {
	if e.state != Initialized && e.state != Loaded {
		return fmt.Errorf("engine: load: %w", zerr.ErrProtocolState)
	}
	if err := e.store.LoadTable(sourceAddr, n); err != nil {
		return err
	}
	if err := e.cache.Clear(); err != nil {
		return err
	}
	e.state = Loaded
	return nil
}

// Start transitions Loaded/Stopped -> Running. A start while already
// Running is a no-op (§6 idempotency); starting before a table has been
// loaded is an error.
func (e *Engine) Start() error {
	switch e.state {
	case Running:
		return nil
	case Loaded, Stopped:
		e.state = Running
		return nil
	default:
		return fmt.Errorf("engine: start: %w", zerr.ErrProtocolState)
	}
}

// Stop transitions Running -> Stopped. A stop while already Stopped is a
// no-op (§6 idempotency).
func (e *Engine) Stop() error {
	switch e.state {
	case Stopped:
		return nil
	case Running:
		e.state = Stopped
		return nil
	default:
		return fmt.Errorf("engine: stop: %w", zerr.ErrProtocolState)
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State { return e.state }

// Inject enqueues an external spike targeting localID for the next Step
// call to apply (§4.I, SNN_INPUT_SPIKE).
func (e *Engine) Inject(localID uint16, value float64, nowUs uint32) error {
	return e.queue.Push(spike.Event{
		GlobalNeuronID: uint32(localID),
		TimestampUs:    nowUs,
		Value:          value,
	})
}

// Step drains the inbound spike queue, then applies one LIF pass (leak,
// threshold, fire, refractory) to every resident neuron. Valid only while
// Running (§4.I, §5). A step that leaves the cache inconsistent (a failed
// write-back) moves the engine to Stopped.
func (e *Engine) Step() error {
	if e.state != Running {
		return fmt.Errorf("engine: step: %w", zerr.ErrProtocolState)
	}
	defer func() {
		if e.cache.Inconsistent() {
			e.state = Stopped
		}
	}()

	nowUs := e.clock.NowUs()

	for {
		ev, ok := e.queue.Pop()
		if !ok {
			break
		}
		localID := int(uint16(ev.GlobalNeuronID))
		rec := e.cache.Get(localID)
		if rec == nil {
			continue
		}
		rec.MembranePotential += float32(ev.Value)
		e.cache.MarkDirty(localID)
	}

	desc := e.store.Info()
	for id := 0; id < desc.NeuronCount; id++ {
		rec := e.cache.Get(id)
		if rec == nil {
			return zerr.ErrCacheFault
		}
		if !rec.Active() {
			continue
		}
		e.stepNeuron(id, rec, nowUs)
	}

	e.stepCount++
	if e.stepCount%flushEvery == 0 {
		if err := e.cache.FlushAll(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) stepNeuron(id int, rec *neuron.Record, nowUs uint32) {
	if rec.IsRefractoryAt(nowUs) {
		return
	}
	if rec.Flags&neuron.FlagRefractory != 0 {
		rec.Flags &^= neuron.FlagRefractory
		e.cache.MarkDirty(id)
	}

	rec.MembranePotential *= 1 - rec.LeakRate
	e.cache.MarkDirty(id)

	if rec.MembranePotential >= rec.Threshold {
		rec.Fire(nowUs)
		e.cache.MarkDirty(id)
		e.spikesFired++
		e.DeliverSpike(neuron.GlobalID(e.selfNode, uint16(id)), 1.0)
	}
}

// DeliverSpike fans a spike from sourceGlobalID out to every resident
// neuron with a matching incoming synapse, scaling value by that synapse's
// weight and enqueuing the result for the following Step call to apply
// (§4.I). Used both for spikes a local neuron just fired and for inbound
// SNN_SPIKE commands naming a remote source (§6).
func (e *Engine) DeliverSpike(sourceGlobalID uint32, value float64) {
	desc := e.store.Info()
	for id := 0; id < desc.NeuronCount; id++ {
		rec := e.cache.Get(id)
		if rec == nil {
			continue
		}
		for i := 0; i < int(rec.SynapseCount); i++ {
			syn := rec.Synapses[i]
			if syn.SourceGlobalID != sourceGlobalID {
				continue
			}
			_ = e.queue.Push(spike.Event{
				GlobalNeuronID: neuron.GlobalID(e.selfNode, uint16(id)),
				TimestampUs:    e.clock.NowUs(),
				Value:          value * syn.Weight,
			})
		}
	}
}

// Stats returns a snapshot of engine counters (§4.I).
func (e *Engine) Stats() Stats {
	return Stats{
		State:         e.state,
		StepCount:     e.stepCount,
		SpikesFired:   e.spikesFired,
		SpikesQueued:  uint64(e.queue.Len()),
		SpikesDropped: e.queue.Drops(),
		LastStepUs:    e.clock.NowUs(),
	}
}
