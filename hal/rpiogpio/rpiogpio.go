//go:build linux

// Package rpiogpio backs hal.Pin with github.com/stianeikeland/go-rpio/v4,
// the one real (non-simulated) collaborator binding in the module, for
// running cmd/z1node on an actual Raspberry Pi header (§6's GPIO surface:
// set_dir, set_level, get_level, enable_edge_interrupt, disable_pulls).
//
// go-rpio exposes edge state via polling (Detect + EdgeDetected), not a
// callback, so EnableEdgeInterrupt starts a small poll loop per pin that
// invokes the registered handler on a detected edge - the same
// handler-runs-to-completion contract hal.Pin promises, just sourced from
// a poll instead of a real interrupt line.
package rpiogpio

import (
	"sync"
	"time"

	rpio "github.com/stianeikeland/go-rpio/v4"
	"periph.io/x/conn/v3/gpio"

	"github.com/neurofab/z1cluster/hal"
)

// pollInterval bounds how stale a detected edge can be before the poll
// loop notices it; real ATTN/ACK pulses in this design are held for at
// least ClockHighUs (default 100us), so polling well below that keeps
// detection latency negligible relative to the bus timing budget.
const pollInterval = 20 * time.Microsecond

// Open initializes the memory-mapped GPIO register access go-rpio needs.
// Must be called once before constructing any Pin; the returned func
// closes it.
func Open() (func() error, error) {
	if err := rpio.Open(); err != nil {
		return nil, err
	}
	return rpio.Close, nil
}

// Pin adapts one BCM GPIO line to hal.Pin.
type Pin struct {
	pin rpio.Pin

	mu      sync.Mutex
	handler func()
	stop    chan struct{}
}

// NewPin wraps BCM GPIO line num.
func NewPin(num uint8) *Pin {
	return &Pin{pin: rpio.Pin(num)}
}

func (p *Pin) SetDirection(d hal.Direction) {
	if d == hal.Output {
		p.pin.Output()
	} else {
		p.pin.Input()
	}
}

func (p *Pin) SetLevel(l gpio.Level) {
	if l == gpio.High {
		p.pin.High()
	} else {
		p.pin.Low()
	}
}

func (p *Pin) Level() gpio.Level {
	if p.pin.Read() == rpio.High {
		return gpio.High
	}
	return gpio.Low
}

func (p *Pin) DisablePulls() { p.pin.Pull(rpio.PullOff) }

// EnableEdgeInterrupt arms edge detection and starts the poll loop backing
// it. Calling it again replaces any previously registered handler and
// stops the prior poll loop first.
func (p *Pin) EnableEdgeInterrupt(edge gpio.Edge, handler func()) error {
	p.mu.Lock()
	if p.stop != nil {
		close(p.stop)
	}
	p.handler = handler
	stop := make(chan struct{})
	p.stop = stop
	p.mu.Unlock()

	p.pin.Detect(toRpioEdge(edge))
	go p.poll(stop)
	return nil
}

func (p *Pin) poll(stop chan struct{}) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if p.pin.EdgeDetected() {
				p.mu.Lock()
				h := p.handler
				p.mu.Unlock()
				if h != nil {
					h()
				}
			}
		}
	}
}

func toRpioEdge(edge gpio.Edge) rpio.Edge {
	switch edge {
	case gpio.RisingEdge:
		return rpio.RiseEdge
	case gpio.FallingEdge:
		return rpio.FallEdge
	case gpio.BothEdges:
		return rpio.AnyEdge
	default:
		return rpio.NoEdge
	}
}
