// Package proto collects the wire-level constants shared across the bus,
// transport, and dispatcher layers (§6): node identity and the 8-bit
// command code table.
package proto

// Node identity (§3, §6).
const (
	MinComputeNodeID = 0
	MaxComputeNodeID = 15
	ControllerID     = 16
	BroadcastID      = 31
)

// IsComputeNode reports whether id names one of the 16 compute nodes.
func IsComputeNode(id uint8) bool { return id <= MaxComputeNodeID }

// Command codes (§6).
const (
	CmdGreenLED      uint8 = 0x10
	CmdRedLED        uint8 = 0x20
	CmdBlueLED       uint8 = 0x30
	CmdStatus        uint8 = 0x40
	CmdSNNSpike      uint8 = 0x50
	CmdSNNLoadTable  uint8 = 0x51
	CmdSNNStart      uint8 = 0x52
	CmdSNNStop       uint8 = 0x53
	CmdSNNInputSpike uint8 = 0x54
	CmdSNNGetStatus  uint8 = 0x55
	CmdLEDControl    uint8 = 0x70
	CmdPing          uint8 = 0x99
	CmdFrameStart    uint8 = 0xF1
	CmdFrameData     uint8 = 0xF2
	CmdFrameEnd      uint8 = 0xF3
	CmdMemWrite      uint8 = 0xF4
)

// PingPayload is the fixed payload byte carried by a PING/ping-response
// exchange (§4.F, §6).
const PingPayload uint8 = 0xA5

// StagingAddr is the fixed PSRAM address the controller stages a new
// table at before sending SNN_LOAD_TABLE, so the command's single data byte
// only needs to carry the neuron count (§6). It is a firmware-wide
// constant, not something the wire format conveys per-message.
const StagingAddr uint32 = 0x00100000
