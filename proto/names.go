package proto

import (
	"fmt"

	"github.com/iancoleman/strcase"
)

var commandMnemonics = map[uint8]string{
	CmdGreenLED:      "greenLed",
	CmdRedLED:        "redLed",
	CmdBlueLED:       "blueLed",
	CmdStatus:        "status",
	CmdSNNSpike:      "snnSpike",
	CmdSNNLoadTable:  "snnLoadTable",
	CmdSNNStart:      "snnStart",
	CmdSNNStop:       "snnStop",
	CmdSNNInputSpike: "snnInputSpike",
	CmdSNNGetStatus:  "snnGetStatus",
	CmdLEDControl:    "ledControl",
	CmdPing:          "ping",
	CmdFrameStart:    "frameStart",
	CmdFrameData:     "frameData",
	CmdFrameEnd:      "frameEnd",
	CmdMemWrite:      "memWrite",
}

// CommandName renders a §6 command code as a SCREAMING_SNAKE_CASE mnemonic
// for log fields and CLI output, matching the wire command table's own
// naming convention (SNN_GET_STATUS, FRAME_START, ...). Unknown codes
// render as their hex value instead of a name.
func CommandName(cmd uint8) string {
	mnemonic, ok := commandMnemonics[cmd]
	if !ok {
		return fmt.Sprintf("UNKNOWN_COMMAND_%#02x", cmd)
	}
	return strcase.ToScreamingSnake(mnemonic)
}
