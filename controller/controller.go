// Package controller implements the cluster controller role named
// throughout §2/§4.F/§4.J: the node at proto.ControllerID that discovers
// compute nodes, deploys neuron tables, and issues lifecycle/status
// commands, but runs no LIF engine of its own.
//
// A controller has no dispatcher of its own commands to receive: it only
// ever initiates. Its Processor chain exists solely to receive multi-frame
// SNN_GET_STATUS replies, so it wraps mesh.Mesh (PING bookkeeping) around
// transport.Transport (reassembly) around a statusCollector that just
// records the last reply per source.
package controller

import (
	"fmt"
	"sync"
	"time"

	"github.com/neurofab/z1cluster/bus"
	"github.com/neurofab/z1cluster/hal"
	"github.com/neurofab/z1cluster/mesh"
	"github.com/neurofab/z1cluster/proto"
	"github.com/neurofab/z1cluster/tablegen"
	"github.com/neurofab/z1cluster/transport"
	"github.com/neurofab/z1cluster/zerr"
)

// statusCollector is a one-slot-per-source mailbox for reassembled
// SNN_GET_STATUS replies, the controller-side counterpart of
// dispatch.Dispatcher's pendingKind bookkeeping.
type statusCollector struct {
	mu      sync.Mutex
	replies map[uint8][]byte
}

func newStatusCollector() *statusCollector {
	return &statusCollector{replies: make(map[uint8][]byte)}
}

func (c *statusCollector) HandleTransfer(source uint8, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies[source] = payload
}

func (c *statusCollector) take(source uint8) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	payload, ok := c.replies[source]
	if ok {
		delete(c.replies, source)
	}
	return payload, ok
}

// Controller is the bus-facing half of the controller role.
type Controller struct {
	Bus       *bus.Engine
	Mesh      *mesh.Mesh
	Transport *transport.Transport
	collector *statusCollector
	clock     hal.Clock
}

// New wires a controller onto medium at proto.ControllerID.
func New(medium *bus.Medium, pins hal.BusPins, busCfg bus.Config, meshCfg mesh.Config, transportCfg transport.Config, clock hal.Clock, logger *hal.Logger) *Controller {
	busEngine := bus.NewEngine(proto.ControllerID, medium, pins, busCfg, clock, logger, nil)
	collector := newStatusCollector()
	t := transport.New(transportCfg, clock, logger, collector, nil)
	m := mesh.New(busEngine, clock, meshCfg, logger, t)
	busEngine.SetProcessor(m)

	return &Controller{Bus: busEngine, Mesh: m, Transport: t, collector: collector, clock: clock}
}

// Discover pings every compute node address and returns the ones that
// answered (§4.F).
func (c *Controller) Discover() []uint8 {
	return c.Mesh.Discover()
}

// Deploy compiles a tablegen.Network, stages its bytes at proto.StagingAddr
// on target via the multi-frame transport, then issues SNN_LOAD_TABLE
// (§2's "controller... deploys neuron tables", §4.C).
func (c *Controller) Deploy(target uint8, net tablegen.Network) error {
	blob, err := tablegen.Compile(net)
	if err != nil {
		return fmt.Errorf("controller: deploy: %w", err)
	}
	if err := transport.Send(c.Bus, target, blob); err != nil {
		return fmt.Errorf("controller: deploy: stage table: %w", err)
	}
	if err := c.Bus.Write(target, proto.CmdSNNLoadTable, uint8(len(net.Neurons))); err != nil {
		return fmt.Errorf("controller: deploy: load_table: %w", err)
	}
	return nil
}

// Start issues SNN_START to target.
func (c *Controller) Start(target uint8) error {
	return c.Bus.Write(target, proto.CmdSNNStart, 0)
}

// Stop issues SNN_STOP to target.
func (c *Controller) Stop(target uint8) error {
	return c.Bus.Write(target, proto.CmdSNNStop, 0)
}

// Status requests SNN_GET_STATUS from target and waits up to timeout for
// the reassembled reply, polling because the reply only lands once
// target's own foreground loop drains its pending transfer and sends it
// back (§5: a handler must never reply synchronously).
func (c *Controller) Status(target uint8, timeout time.Duration) ([]byte, error) {
	if err := c.Bus.Write(target, proto.CmdSNNGetStatus, 0); err != nil {
		return nil, fmt.Errorf("controller: status: request: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if payload, ok := c.collector.take(target); ok {
			return payload, nil
		}
		time.Sleep(time.Millisecond)
	}
	return nil, fmt.Errorf("controller: status: %w", zerr.ErrTimeout)
}

// LEDControl is a diagnostic command unrelated to the SNN lifecycle,
// exercising the §6 LED command group the same way a bring-up CLI would.
func (c *Controller) LEDControl(target uint8, green, red, blue bool) error {
	var data uint8
	if green {
		data |= 0x01
	}
	if red {
		data |= 0x02
	}
	if blue {
		data |= 0x04
	}
	return c.Bus.Write(target, proto.CmdLEDControl, data)
}
