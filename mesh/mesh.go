// Package mesh implements bus arbitration and discovery (§4.F), layered on
// top of bus.Engine: liveness pings, a bounded ping history, and a sweep
// that discovers which of the 16 compute node addresses are present on the
// bus. The bookkeeping style (RWMutex-guarded maps, snapshot getters that
// return copies) favors read-mostly concurrent access over a channel-actor
// design, since Known/History are polled far more often than Process runs.
package mesh

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neurofab/z1cluster/bus"
	"github.com/neurofab/z1cluster/hal"
	"github.com/neurofab/z1cluster/proto"
	"github.com/neurofab/z1cluster/zerr"
)

// historyCapacity is the ping history ring size named in §4.F.
const historyCapacity = 20

// PingEvent is one recorded ping attempt. ID correlates this entry across
// log lines the way a real distributed system would correlate a request,
// even though only one node process is running it.
type PingEvent struct {
	ID       string
	Target   uint8
	RTT      time.Duration
	TimedOut bool
	At       uint32 // engine clock, microseconds
}

// NodeInfo is what the mesh knows about a peer it has heard from.
type NodeInfo struct {
	ID         uint8
	LastSeenUs uint32
}

// Mesh arbitrates PING/discovery traffic for one node's bus.Engine and
// forwards every other command to inner, so it can sit transparently in
// front of a dispatch.Dispatcher (§4.F, §4.J).
type Mesh struct {
	engine *bus.Engine
	clock  hal.Clock
	cfg    Config
	logger *hal.Logger
	inner  bus.Processor

	mu            sync.RWMutex
	known         map[uint8]NodeInfo
	history       []PingEvent
	historyNext   int
	awaitingReply map[uint8]chan struct{}
}

// New builds a Mesh fronting engine. inner receives every non-PING command;
// it may be nil.
func New(engine *bus.Engine, clock hal.Clock, cfg Config, logger *hal.Logger, inner bus.Processor) *Mesh {
	return &Mesh{
		engine:        engine,
		clock:         clock,
		cfg:           cfg,
		logger:        logger,
		inner:         inner,
		known:         make(map[uint8]NodeInfo),
		history:       make([]PingEvent, 0, historyCapacity),
		awaitingReply: make(map[uint8]chan struct{}),
	}
}

// Process implements bus.Processor. An incoming PING is either the reply to
// an outstanding Ping call (delivered to the waiting goroutine) or a fresh
// request, answered by queuing a pending reply for the node's foreground
// loop to send (§5): Process must never itself call Write.
func (m *Mesh) Process(source, cmd, data uint8) {
	if cmd != proto.CmdPing {
		if m.inner != nil {
			m.inner.Process(source, cmd, data)
		}
		return
	}

	m.mu.Lock()
	ch, awaiting := m.awaitingReply[source]
	if awaiting {
		delete(m.awaitingReply, source)
	}
	m.recordSeenLocked(source)
	m.mu.Unlock()

	if awaiting {
		select {
		case ch <- struct{}{}:
		default:
		}
		return
	}

	m.engine.SetPendingResponse(source, proto.CmdPing, proto.PingPayload)
}

func (m *Mesh) recordSeenLocked(id uint8) {
	m.known[id] = NodeInfo{ID: id, LastSeenUs: m.clock.NowUs()}
}

func (m *Mesh) recordHistory(ev PingEvent) {
	ev.ID = uuid.New().String()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) < historyCapacity {
		m.history = append(m.history, ev)
		return
	}
	m.history[m.historyNext] = ev
	m.historyNext = (m.historyNext + 1) % historyCapacity
}

// Ping sends a PING to target and blocks until the foreground loop on the
// other end has relayed the reply, or cfg's PingResponseWait elapses
// (§4.F).
func (m *Mesh) Ping(target uint8) (time.Duration, error) {
	return m.pingWithTimeout(target, m.cfg.pingResponseWait())
}

func (m *Mesh) pingWithTimeout(target uint8, timeout time.Duration) (time.Duration, error) {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	m.awaitingReply[target] = ch
	m.mu.Unlock()

	start := m.clock.NowUs()
	if err := m.engine.Write(target, proto.CmdPing, proto.PingPayload); err != nil {
		m.mu.Lock()
		delete(m.awaitingReply, target)
		m.mu.Unlock()
		m.recordHistory(PingEvent{Target: target, TimedOut: true, At: start})
		return 0, err
	}

	select {
	case <-ch:
		rtt := time.Duration(m.clock.NowUs()-start) * time.Microsecond
		m.recordHistory(PingEvent{Target: target, RTT: rtt, At: start})
		return rtt, nil
	case <-time.After(timeout):
		m.mu.Lock()
		delete(m.awaitingReply, target)
		m.mu.Unlock()
		m.recordHistory(PingEvent{Target: target, TimedOut: true, At: start})
		return 0, fmt.Errorf("mesh: ping node %d: %w", target, zerr.ErrTimeout)
	}
}

// Discover probes every compute node address other than this engine's own
// and returns those that answered within the discovery poll window (§4.F).
func (m *Mesh) Discover() []uint8 {
	var present []uint8
	self := m.engine.NodeID()
	for id := uint8(proto.MinComputeNodeID); id <= proto.MaxComputeNodeID; id++ {
		if id == self {
			continue
		}
		if _, err := m.pingWithTimeout(id, m.cfg.discoveryPoll()); err == nil {
			present = append(present, id)
		}
		time.Sleep(m.cfg.pingNodeDelay())
	}
	return present
}

// Known returns a snapshot of every node the mesh has heard a PING from.
func (m *Mesh) Known() []NodeInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]NodeInfo, 0, len(m.known))
	for _, info := range m.known {
		out = append(out, info)
	}
	return out
}

// History returns a snapshot of the recorded ping history.
func (m *Mesh) History() []PingEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PingEvent, len(m.history))
	copy(out, m.history)
	return out
}
