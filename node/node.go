// Package node wires one compute node's collaborators into a single
// process-root object and runs its cooperative foreground loop (§5): the
// single task a real target's main() would run between ISR-to-completion
// dispatches, here re-expressed as repeated Tick calls so tests can drive
// it deterministically instead of free-running.
package node

import (
	"github.com/neurofab/z1cluster/bus"
	"github.com/neurofab/z1cluster/cache"
	"github.com/neurofab/z1cluster/config"
	"github.com/neurofab/z1cluster/dispatch"
	"github.com/neurofab/z1cluster/engine"
	"github.com/neurofab/z1cluster/hal"
	"github.com/neurofab/z1cluster/mesh"
	"github.com/neurofab/z1cluster/spike"
	"github.com/neurofab/z1cluster/store"
	"github.com/neurofab/z1cluster/transport"
)

// Deps groups the hardware/simulated collaborators a Node needs but does
// not construct itself: the shared bus medium, this node's pin set, its
// PSRAM backing, and its clock.
type Deps struct {
	Medium *bus.Medium
	Pins   hal.BusPins
	PSRAM  hal.PSRAM
	Clock  hal.Clock
	LEDs   dispatch.LEDPins
	Logger *hal.Logger
}

// Node owns one compute node's full collaborator graph: store, cache,
// spike queue, LIF engine, bus PHY, ping mesh, multi-frame transport, and
// command dispatcher, wired Mesh -> Transport -> Dispatcher as the bus
// engine's Processor chain (§4.F/§4.G/§4.J layering).
type Node struct {
	cfg config.Node

	Store     *store.Store
	Cache     *cache.Cache
	Queue     *spike.Queue
	Engine    *engine.Engine
	Bus       *bus.Engine
	Mesh      *mesh.Mesh
	Transport *transport.Transport
	Dispatch  *dispatch.Dispatcher

	clock hal.Clock
}

// New builds and wires a Node. The table store is Init'd from cfg but no
// neuron table is staged or loaded; a controller does that over the bus
// (SNN_LOAD_TABLE) or the caller may call Store/Engine directly in tests.
func New(cfg config.Node, deps Deps) *Node {
	s := store.New(deps.PSRAM)
	if err := s.Init(0, cfg.MaxNeurons); err != nil {
		panic(err) // construction-time misconfiguration, not a runtime fault
	}
	c := cache.New(s, 64)
	q := spike.New(spike.CapacityFull)
	eng := engine.New(cfg.NodeID, s, c, q, deps.Clock, deps.Logger)

	busEngine := bus.NewEngine(cfg.NodeID, deps.Medium, deps.Pins, cfg.BusConfig(), deps.Clock, deps.Logger, nil)
	d := dispatch.New(eng, s, busEngine, deps.LEDs, deps.Clock, deps.Logger)
	t := transport.New(cfg.TransportConfig(), deps.Clock, deps.Logger, d, d)
	m := mesh.New(busEngine, deps.Clock, cfg.MeshConfig(), deps.Logger, t)
	busEngine.SetProcessor(m)

	return &Node{
		cfg:       cfg,
		Store:     s,
		Cache:     c,
		Queue:     q,
		Engine:    eng,
		Bus:       busEngine,
		Mesh:      m,
		Transport: t,
		Dispatch:  d,
		clock:     deps.Clock,
	}
}

// Tick drains deferred bus replies and transport transfers, steps the LIF
// engine once if it is Running, and expires any stale multi-frame session.
// Errors from a single step are not fatal to the loop: a failed send or
// step is discarded without logging, a dropped session is logged by the
// transport, and none of them halts the node (§5, §8 invariant:
// the node survives any one malformed exchange).
func (n *Node) Tick() {
	if resp, ok := n.Bus.TakePendingResponse(); ok {
		_ = n.Bus.Write(resp.Target, resp.Cmd, resp.Data)
	}
	if xfer, ok := n.Dispatch.TakePendingTransfer(); ok {
		_ = transport.Send(n.Bus, xfer.Target, xfer.Payload)
	}
	if n.Engine.State() == engine.Running {
		_ = n.Engine.Step()
	}
	n.Transport.ExpireStale(n.clock.NowUs())
}
