package bus

// HeaderMagic is the fixed high byte of the first frame of every targeted
// message (§3, §4.E); a target that samples anything else on frame one
// rejects the transaction.
const HeaderMagic uint8 = 0xAA

// frame is one 16-bit word of a targeted message: high byte and low byte
// driven onto the data lines together (§3).
type frame struct {
	High uint8
	Low  uint8
}

func headerFrame(sender uint8) frame { return frame{High: HeaderMagic, Low: sender} }

func payloadFrame(cmd, data uint8) frame { return frame{High: cmd, Low: data} }

// word packs a frame into the 16-bit value that would be driven onto the
// data bus.
func (f frame) word() uint16 { return uint16(f.High)<<8 | uint16(f.Low) }
