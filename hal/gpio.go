package hal

import "periph.io/x/conn/v3/gpio"

// Direction is the drive direction of a bus pin. The core switches every pin
// to Input at idle and after any failure path (§4.E, §8 invariant 3).
type Direction int

const (
	Input Direction = iota
	Output
)

// Pin is the per-pin GPIO surface the bus PHY drives: direction, level,
// falling-edge interrupt registration, and pull disablement so idle-high
// pull-ups (ATTN, ACK) are owned by hardware, not software, once a node
// configures its pins as inputs. The Level/Edge vocabulary is borrowed from
// periph.io/x/conn/v3/gpio; the methods themselves are this package's own,
// so a hardware pin needs an adapter such as hal/rpiogpio.Pin.
type Pin interface {
	SetDirection(d Direction)
	SetLevel(l gpio.Level)
	Level() gpio.Level
	EnableEdgeInterrupt(edge gpio.Edge, handler func()) error
	DisablePulls()
}

// BusPins groups the pins the PHY (§4.E) needs: one ATTN, one ACK, one CLK, and
// five address-select lines, plus 16 bidirectional data lines.
type BusPins struct {
	Attn    Pin
	Ack     Pin
	Clk     Pin
	Addr    [5]Pin
	Data    [16]Pin
}

// SimPin is an in-memory Pin double for tests: it tracks direction and
// level and invokes a registered handler synchronously on a simulated
// falling edge, a small hand-rolled mock in preference to a mocking
// framework.
type SimPin struct {
	dir     Direction
	level   gpio.Level
	edge    gpio.Edge
	handler func()
}

func NewSimPin() *SimPin { return &SimPin{level: gpio.High} }

func (p *SimPin) SetDirection(d Direction) { p.dir = d }
func (p *SimPin) SetLevel(l gpio.Level)     { p.level = l }
func (p *SimPin) Level() gpio.Level         { return p.level }

func (p *SimPin) EnableEdgeInterrupt(edge gpio.Edge, handler func()) error {
	p.edge = edge
	p.handler = handler
	return nil
}

func (p *SimPin) DisablePulls() {}

// Drive sets the simulated pin level from outside (another node's driver)
// and fires the registered falling-edge handler when applicable. Tests use
// this to simulate a peer asserting ATTN or ACK.
func (p *SimPin) Drive(l gpio.Level) {
	prev := p.level
	p.level = l
	if p.handler != nil && p.edge != gpio.NoEdge && prev == gpio.High && l == gpio.Low {
		p.handler()
	}
}

func (p *SimPin) Direction() Direction { return p.dir }
