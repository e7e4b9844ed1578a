// Package transport implements the multi-frame reassembly layer (§4.G): the
// FRAME_START/FRAME_DATA/FRAME_END command sequence a sender uses to push a
// buffer larger than the one payload byte a single targeted bus message
// carries.
//
// The underlying bus message only has one command byte and one data byte
// per frame (§3), so there is no spare byte in a FRAME_DATA message to also
// carry the 8-bit wrapping sequence number §4.G specifies. This port
// resolves that by sending each payload byte as a pair of FRAME_DATA
// messages — one carrying the sequence number, one carrying the payload
// byte — rather than dropping the sequencing guarantee. A receiver that
// sees a sequence number other than the one it expects drops the pair
// silently: at-most-once delivery, no retransmission (§4.G).
package transport

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/neurofab/z1cluster/bus"
	"github.com/neurofab/z1cluster/hal"
	"github.com/neurofab/z1cluster/proto"
	"github.com/neurofab/z1cluster/zerr"
)

type state int

const (
	stateIdle state = iota
	stateExpectingLength
	stateExpectingData
)

// Config holds the write-once multi-frame timing tunable (§9).
type Config struct {
	TimeoutMs int
}

// DefaultConfig returns the reference timeout.
func DefaultConfig() Config {
	return Config{TimeoutMs: 1000}
}

func (c Config) timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Handler receives a fully reassembled multi-frame payload (§4.G), e.g. a
// staged neuron table or a raw PSRAM write.
type Handler interface {
	HandleTransfer(source uint8, payload []byte)
}

type session struct {
	state          state
	haveLengthHigh bool
	lengthHigh     byte
	length         int
	buf            []byte

	awaitingPayload bool
	pendingSeq      byte
	expectSeq       byte
	checksum        byte

	lastActivityUs uint32
}

// Transport reassembles inbound multi-frame transfers and forwards every
// other command to inner, so it can sit transparently in front of
// dispatch.Dispatcher the same way mesh.Mesh does for PING.
type Transport struct {
	mu       sync.Mutex
	cfg      Config
	clock    hal.Clock
	logger   *hal.Logger
	handler  Handler
	inner    bus.Processor
	sessions map[uint8]*session
}

// New builds a Transport. handler may be nil if inbound transfers are not
// expected on this node; inner receives every command that isn't part of
// the FRAME_* sequence.
func New(cfg Config, clock hal.Clock, logger *hal.Logger, handler Handler, inner bus.Processor) *Transport {
	return &Transport{
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
		handler:  handler,
		inner:    inner,
		sessions: make(map[uint8]*session),
	}
}

// Process implements bus.Processor.
func (t *Transport) Process(source, cmd, data uint8) {
	switch cmd {
	case proto.CmdFrameStart:
		t.mu.Lock()
		t.sessions[source] = &session{state: stateExpectingLength, lastActivityUs: t.clock.NowUs()}
		t.mu.Unlock()
	case proto.CmdFrameData:
		t.handleData(source, data)
	case proto.CmdFrameEnd:
		t.handleEnd(source, data)
	default:
		if t.inner != nil {
			t.inner.Process(source, cmd, data)
		}
	}
}

func (t *Transport) handleData(source, data uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[source]
	if !ok {
		t.logger.Warn("frame data with no active session", zap.Uint8("source", source))
		return
	}
	s.lastActivityUs = t.clock.NowUs()

	switch s.state {
	case stateExpectingLength:
		if !s.haveLengthHigh {
			s.lengthHigh = data
			s.haveLengthHigh = true
			return
		}
		s.length = int(s.lengthHigh)<<8 | int(data)
		s.buf = make([]byte, 0, s.length)
		s.state = stateExpectingData
	case stateExpectingData:
		if !s.awaitingPayload {
			s.pendingSeq = data
			s.awaitingPayload = true
			return
		}
		s.awaitingPayload = false
		if s.pendingSeq != s.expectSeq {
			t.logger.Warn("dropped out-of-order frame",
				zap.Uint8("source", source),
				zap.Uint8("want_seq", s.expectSeq),
				zap.Uint8("got_seq", s.pendingSeq))
			return
		}
		s.buf = append(s.buf, data)
		s.checksum ^= data
		s.expectSeq++
	case stateIdle:
	}
}

func (t *Transport) handleEnd(source, checksum uint8) {
	t.mu.Lock()
	s, ok := t.sessions[source]
	if ok {
		delete(t.sessions, source)
	}
	t.mu.Unlock()

	if !ok {
		t.logger.Warn("frame end with no active session", zap.Uint8("source", source))
		return
	}
	if s.state != stateExpectingData || len(s.buf) != s.length {
		t.logger.Error("multiframe transfer incomplete", zap.Uint8("source", source),
			zap.Int("got", len(s.buf)), zap.Int("want", s.length))
		return
	}
	if s.checksum != checksum {
		t.logger.Error("multiframe checksum mismatch", zap.Uint8("source", source))
		return
	}
	if t.handler != nil {
		t.handler.HandleTransfer(source, s.buf)
	}
}

// ExpireStale drops any in-progress session idle longer than the configured
// timeout, the foreground-loop housekeeping counterpart of MULTIFRAME_TIMEOUT_MS
// (§4.G). Call it once per engine timestep.
func (t *Transport) ExpireStale(nowUs uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	timeoutUs := uint32(t.cfg.timeout().Microseconds())
	for source, s := range t.sessions {
		if nowUs-s.lastActivityUs > timeoutUs {
			t.logger.Warn("multiframe session expired", zap.Uint8("source", source))
			delete(t.sessions, source)
		}
	}
}

// Send pushes payload to target as a FRAME_START/FRAME_DATA.../FRAME_END
// sequence (§4.G). payload must fit in 16 bits of length.
func Send(engine *bus.Engine, target uint8, payload []byte) error {
	if len(payload) > 0xFFFF {
		return zerr.ErrOutOfRange
	}

	if err := engine.Write(target, proto.CmdFrameStart, 0); err != nil {
		return err
	}

	length := len(payload)
	if err := engine.Write(target, proto.CmdFrameData, byte(length>>8)); err != nil {
		return err
	}
	if err := engine.Write(target, proto.CmdFrameData, byte(length)); err != nil {
		return err
	}

	var seq, checksum byte
	for _, b := range payload {
		if err := engine.Write(target, proto.CmdFrameData, seq); err != nil {
			return err
		}
		if err := engine.Write(target, proto.CmdFrameData, b); err != nil {
			return err
		}
		checksum ^= b
		seq++
	}

	return engine.Write(target, proto.CmdFrameEnd, checksum)
}
