// Package bus implements the matrix-bus PHY and frame handshake (§4.E):
// claiming the shared ATTN line, exchanging the two-frame header+payload
// message with a single target, and the address-31 broadcast shortcut that
// elides the ACK/CLK handshake entirely.
//
// A real target's receive path runs inside a falling-edge interrupt (§5);
// here that path is Engine.receiveTargeted / Engine.receiveBroadcast,
// invoked synchronously by the initiator's own Write/Broadcast call once it
// has resolved which Engine a given node id names on the shared Medium.
// That collapses the cycle-by-cycle CLK handshake of real silicon into a
// single function call, which is what a single-core, non-preemptive target
// effectively does anyway: the ISR runs to completion before the
// initiator's wait unblocks.
package bus

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"

	"github.com/neurofab/z1cluster/hal"
	"github.com/neurofab/z1cluster/proto"
	"github.com/neurofab/z1cluster/zerr"
)

// Processor is the command dispatcher collaborator (§4.J). Process must
// never itself call Write or Broadcast: a command that needs to answer
// (PING, STATUS) records its reply with Engine.SetPendingResponse, and a
// multi-byte reply (SNN_GET_STATUS) goes to the dispatcher's pending
// transfer instead, for the foreground loop to send once the handler
// returns and ACK has been released (§5).
type Processor interface {
	Process(source, cmd, data uint8)
}

// PendingResponse is the one-slot mailbox a handler running inside
// receiveTargeted/receiveBroadcast uses to defer a reply (§5).
type PendingResponse struct {
	Target uint8
	Cmd    uint8
	Data   uint8
}

// Engine is one node's bus PHY: claims the shared ATTN line, drives frames
// to a target, and answers as a target when another node's Write resolves
// to this node (§4.E).
type Engine struct {
	nodeID  uint8
	medium  *Medium
	pins    hal.BusPins
	cfg     Config
	clock   hal.Clock
	logger  *hal.Logger
	rng     *rand.Rand
	process Processor

	mu                sync.Mutex
	transactionActive bool
	handlerBusy       bool
	pending           *PendingResponse
}

// NewEngine registers a new node on medium and returns its bus PHY.
// pins may be a zero-value hal.BusPins (all nil Pin fields) for pure
// Medium-level tests; a real node wires real or simulated pins so idle
// state is observable on the GPIO side too (§8 invariant 3).
func NewEngine(nodeID uint8, medium *Medium, pins hal.BusPins, cfg Config, clock hal.Clock, logger *hal.Logger, proc Processor) *Engine {
	e := &Engine{
		nodeID:  nodeID,
		medium:  medium,
		pins:    pins,
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
		rng:     rand.New(rand.NewSource(int64(nodeID)*2654435761 + time.Now().UnixNano())),
		process: proc,
	}
	medium.register(e)
	e.setIdle()
	return e
}

// NodeID returns the node id this engine was registered under.
func (e *Engine) NodeID() uint8 { return e.nodeID }

// SetProcessor rewires the command dispatcher. Node construction typically
// needs the Engine before it can build the Processor that wraps it (mesh,
// dispatch), so this is called once during wiring rather than taken as a
// constructor argument.
func (e *Engine) SetProcessor(proc Processor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.process = proc
}

// setIdle switches every owned line to Input, the required rest state and
// the state every failure path must restore (§8 invariant 3).
func (e *Engine) setIdle() {
	for _, p := range e.allPins() {
		p.SetDirection(hal.Input)
	}
}

func (e *Engine) allPins() []hal.Pin {
	pins := make([]hal.Pin, 0, 23)
	if e.pins.Attn != nil {
		pins = append(pins, e.pins.Attn)
	}
	if e.pins.Ack != nil {
		pins = append(pins, e.pins.Ack)
	}
	if e.pins.Clk != nil {
		pins = append(pins, e.pins.Clk)
	}
	for _, p := range e.pins.Addr {
		if p != nil {
			pins = append(pins, p)
		}
	}
	for _, p := range e.pins.Data {
		if p != nil {
			pins = append(pins, p)
		}
	}
	return pins
}

func (e *Engine) beginTransaction() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.transactionActive {
		return fmt.Errorf("bus: node %d: transaction already active: %w", e.nodeID, zerr.ErrProtocolState)
	}
	e.transactionActive = true
	return nil
}

func (e *Engine) endTransaction() {
	e.mu.Lock()
	e.transactionActive = false
	e.mu.Unlock()
}

// claim acquires the shared ATTN line, backing off with jittered exponential
// delay on contention, up to maxClaimAttempts before giving up with
// zerr.ErrBusBusy (§4.E collision avoidance).
func (e *Engine) claim() error {
	backoff := time.Duration(e.cfg.BackoffBaseUs) * time.Microsecond
	if backoff <= 0 {
		backoff = time.Duration(DefaultConfig().BackoffBaseUs) * time.Microsecond
	}
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		if e.medium.tryClaim() {
			return nil
		}
		jitter := time.Duration(0)
		if backoff > 1 {
			jitter = time.Duration(e.rng.Int63n(int64(backoff) / 2))
		}
		time.Sleep(backoff + jitter)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	e.logger.Warn("bus claim exhausted", zap.Uint8("node", e.nodeID))
	return zerr.ErrBusBusy
}

// Write sends a targeted two-frame message (header + payload) to target
// and blocks until the target's handler has run and released ACK, or
// until the exchange fails (§4.E).
func (e *Engine) Write(target, cmd, data uint8) error {
	if err := e.beginTransaction(); err != nil {
		return err
	}
	defer e.endTransaction()

	if err := e.claim(); err != nil {
		return err
	}
	defer func() {
		e.medium.release()
		e.setIdle()
	}()

	e.driveAddr(target)

	peer, ok := e.medium.lookup(target)
	if !ok {
		return fmt.Errorf("bus: node %d -> %d: %w", e.nodeID, target, zerr.ErrAckTimeout)
	}

	msg := [2]frame{headerFrame(e.nodeID), payloadFrame(cmd, data)}
	return peer.receiveTargeted(e.nodeID, msg)
}

// Broadcast sends a single word to every other node with no ACK/CLK
// handshake, holding the claim for BroadcastHoldMs before releasing it
// (§4.E).
func (e *Engine) Broadcast(cmd, data uint8) error {
	if err := e.beginTransaction(); err != nil {
		return err
	}
	defer e.endTransaction()

	if err := e.claim(); err != nil {
		return err
	}
	defer func() {
		e.medium.release()
		e.setIdle()
	}()

	e.driveAddr(proto.BroadcastID)
	for _, peer := range e.medium.others(e.nodeID) {
		peer.receiveBroadcast(e.nodeID, cmd, data)
	}
	time.Sleep(e.cfg.broadcastHold())
	return nil
}

func (e *Engine) driveAddr(target uint8) {
	if e.pins.Addr[0] == nil {
		return
	}
	for i, p := range e.pins.Addr {
		p.SetDirection(hal.Output)
		if target&(1<<uint(i)) != 0 {
			p.SetLevel(gpio.High)
		} else {
			p.SetLevel(gpio.Low)
		}
	}
}

// receiveTargeted runs the target-side handshake (§4.E): validates the
// header magic, then dispatches the command once ACK would have been
// released. Guarded by handlerBusy against ISR re-entry (§5).
func (e *Engine) receiveTargeted(sender uint8, msg [2]frame) error {
	e.mu.Lock()
	if e.handlerBusy {
		e.mu.Unlock()
		return fmt.Errorf("bus: node %d busy: %w", e.nodeID, zerr.ErrProtocolState)
	}
	e.handlerBusy = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.handlerBusy = false
		e.mu.Unlock()
	}()

	if msg[0].High != HeaderMagic {
		return fmt.Errorf("bus: node %d: %w", e.nodeID, zerr.ErrFrameMagicMismatch)
	}

	cmd, data := msg[1].High, msg[1].Low
	if e.process != nil {
		e.process.Process(sender, cmd, data)
	}
	return nil
}

func (e *Engine) receiveBroadcast(sender, cmd, data uint8) {
	e.mu.Lock()
	if e.handlerBusy {
		e.mu.Unlock()
		return
	}
	e.handlerBusy = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.handlerBusy = false
		e.mu.Unlock()
	}()

	if e.process != nil {
		e.process.Process(sender, cmd, data)
	}
}

// SetPendingResponse records a deferred reply for the foreground loop to
// send (§5). Overwrites any unsent prior response; the one-slot mailbox is
// not a queue.
func (e *Engine) SetPendingResponse(target, cmd, data uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = &PendingResponse{Target: target, Cmd: cmd, Data: data}
}

// TakePendingResponse clears and returns the pending reply, if any.
func (e *Engine) TakePendingResponse() (PendingResponse, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return PendingResponse{}, false
	}
	r := *e.pending
	e.pending = nil
	return r, true
}
