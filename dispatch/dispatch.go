// Package dispatch implements the command dispatcher (§4.J): the pure
// mapping from (source_node, command, data) onto side effects on the LED
// pins, the LIF engine, and pending replies.
//
// Dispatcher sits as the innermost bus.Processor, behind mesh.Mesh (PING)
// and transport.Transport (multi-frame reassembly): by the time Process
// runs, neither of those concerns remains for it to handle.
package dispatch

import (
	"sync"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"

	"github.com/neurofab/z1cluster/bus"
	"github.com/neurofab/z1cluster/engine"
	"github.com/neurofab/z1cluster/hal"
	"github.com/neurofab/z1cluster/proto"
	"github.com/neurofab/z1cluster/store"
)

// LEDPins groups the three status LED outputs the dispatcher drives
// directly (§6); any field may be nil if the build has no such LED.
type LEDPins struct {
	Green, Red, Blue hal.Pin
}

// PendingTransfer is the one-slot mailbox for a reply too large for the bus
// engine's single-byte pending response (§5): the foreground loop drains it
// and sends it via transport.Send.
type PendingTransfer struct {
	Target  uint8
	Payload []byte
}

// Dispatcher is the command dispatcher of §4.J.
type Dispatcher struct {
	engine *engine.Engine
	store  *store.Store
	bus    *bus.Engine
	leds   LEDPins
	clock  hal.Clock
	logger *hal.Logger

	mu          sync.Mutex
	pendingKind map[uint8]uint8
	pendingXfer *PendingTransfer
}

// New builds a Dispatcher. busEngine is used only to queue single-byte
// pending replies (STATUS); Process must never call busEngine.Write
// directly (§5). s is the node's own neuron store, the landing zone for raw
// MEM_WRITE transfers ahead of an SNN_LOAD_TABLE commit.
func New(eng *engine.Engine, s *store.Store, busEngine *bus.Engine, leds LEDPins, clock hal.Clock, logger *hal.Logger) *Dispatcher {
	return &Dispatcher{
		engine:      eng,
		store:       s,
		bus:         busEngine,
		leds:        leds,
		clock:       clock,
		logger:      logger,
		pendingKind: make(map[uint8]uint8),
	}
}

// Process implements bus.Processor, dispatching every command in the §6
// table. An unrecognized command is logged and otherwise ignored: it must
// never crash the node.
func (d *Dispatcher) Process(source, cmd, data uint8) {
	switch cmd {
	case proto.CmdGreenLED:
		setLED(d.leds.Green, data)
	case proto.CmdRedLED:
		setLED(d.leds.Red, data)
	case proto.CmdBlueLED:
		setLED(d.leds.Blue, data)
	case proto.CmdLEDControl:
		setLED(d.leds.Green, data&0x01)
		setLED(d.leds.Red, data&0x02)
		setLED(d.leds.Blue, data&0x04)
	case proto.CmdStatus:
		d.bus.SetPendingResponse(source, proto.CmdStatus, byte(d.engine.State()))
	case proto.CmdSNNSpike:
		d.setPendingKind(source, proto.CmdSNNSpike)
	case proto.CmdSNNLoadTable:
		if err := d.engine.Load(proto.StagingAddr, int(data)); err != nil {
			d.logger.Error("snn load table failed", zap.Uint8("source", source), zap.Error(err))
		}
	case proto.CmdSNNStart:
		if err := d.engine.Start(); err != nil {
			d.logger.Error("snn start failed", zap.Uint8("source", source), zap.Error(err))
		}
	case proto.CmdSNNStop:
		if err := d.engine.Stop(); err != nil {
			d.logger.Error("snn stop failed", zap.Uint8("source", source), zap.Error(err))
		}
	case proto.CmdSNNInputSpike:
		if err := d.engine.Inject(uint16(data), 1.0, d.clock.NowUs()); err != nil {
			d.logger.Warn("input spike dropped", zap.Uint8("source", source), zap.Error(err))
		}
	case proto.CmdSNNGetStatus:
		d.setPendingTransfer(source, encodeStatusPayload(d.engine.Stats()))
	case proto.CmdMemWrite:
		d.setPendingKind(source, proto.CmdMemWrite)
	default:
		d.logger.Warn("unknown command", zap.Uint8("source", source), zap.String("cmd", proto.CommandName(cmd)))
	}
}

func setLED(p hal.Pin, data uint8) {
	if p == nil {
		return
	}
	p.SetDirection(hal.Output)
	if data != 0 {
		p.SetLevel(gpio.High)
	} else {
		p.SetLevel(gpio.Low)
	}
}

func (d *Dispatcher) setPendingKind(source, kind uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingKind[source] = kind
}

// takeKind defaults to a raw memory write: an inbound multi-frame transfer
// with no preceding announce command is treated as MEM_WRITE (§6).
func (d *Dispatcher) takeKind(source uint8) uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	kind, ok := d.pendingKind[source]
	if !ok {
		return proto.CmdMemWrite
	}
	delete(d.pendingKind, source)
	return kind
}

func (d *Dispatcher) setPendingTransfer(target uint8, payload []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingXfer = &PendingTransfer{Target: target, Payload: payload}
}

// TakePendingTransfer clears and returns a queued multi-byte reply, if any.
func (d *Dispatcher) TakePendingTransfer() (PendingTransfer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pendingXfer == nil {
		return PendingTransfer{}, false
	}
	x := *d.pendingXfer
	d.pendingXfer = nil
	return x, true
}

// HandleTransfer implements transport.Handler: routes a reassembled
// multi-frame payload to the operation its preceding announce command
// named (§4.G, §6).
func (d *Dispatcher) HandleTransfer(source uint8, payload []byte) {
	switch d.takeKind(source) {
	case proto.CmdSNNSpike:
		sourceGlobalID, _, value, err := decodeSpikePayload(payload)
		if err != nil {
			d.logger.Error("malformed spike payload", zap.Uint8("source", source))
			return
		}
		d.engine.DeliverSpike(sourceGlobalID, float64(value))
	case proto.CmdMemWrite:
		if err := d.store.WriteRaw(proto.StagingAddr, payload); err != nil {
			d.logger.Error("staged memory write failed", zap.Uint8("source", source), zap.Error(err))
			return
		}
		d.logger.Info("staged memory write", zap.Uint8("source", source), zap.Int("bytes", len(payload)))
	}
}
