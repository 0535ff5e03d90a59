package sdmmc

// SD/MMC command opcodes issued by the engine.
const (
	CmdGoIdleState        uint32 = 0
	CmdSendOpCond         uint32 = 1
	CmdAllSendCID         uint32 = 2
	CmdSetRelativeAddr    uint32 = 3
	CmdSwitch             uint32 = 6
	CmdSelectCard         uint32 = 7
	CmdSendIfCond         uint32 = 8
	CmdSendCSD            uint32 = 9
	CmdSendCID            uint32 = 10
	CmdStopTransmission   uint32 = 12
	CmdSendStatus         uint32 = 13
	CmdSetBlocklen        uint32 = 16
	CmdReadSingleBlock    uint32 = 17
	CmdReadMultipleBlock  uint32 = 18
	CmdWriteSingleBlock   uint32 = 24
	CmdWriteMultipleBlock uint32 = 25
	CmdEraseStart         uint32 = 32
	CmdEraseEnd           uint32 = 33
	CmdErase              uint32 = 38
	CmdAppCmd             uint32 = 55
)

// SD application command opcodes, valid only after CmdAppCmd.
const (
	ACmdSetBusWidth uint32 = 6
	ACmdSendOpCond  uint32 = 41
	ACmdSendSCR     uint32 = 51
)

// Command argument encodings.
const (
	// CMD8 argument: voltage window 2.7-3.6V plus check pattern 0xAA.
	ifCondCheckArg uint32 = 0x1AA

	// ACMD41 arguments, with and without the HCS bit.
	sdOpCondHCSArg   uint32 = 0x40FF8000
	sdOpCondNoHCSArg uint32 = 0x00FF8000

	// CMD1 argument: high capacity, sector mode.
	mmcOpCondArg uint32 = 0x40FF8080
)

// OCR bits reported in R3 responses.
const (
	ocrReadyBit uint32 = 1 << 31 // card finished power-up
	ocrCCSBit   uint32 = 1 << 30 // card capacity status (SDHC/SDXC)
)

// ResponseType selects how the host layer interprets and waits for a
// command's reply.
type ResponseType int

const (
	ResponseNone ResponseType = iota
	ResponseR1                // normal response
	ResponseR1b               // normal response with busy
	ResponseR2                // CID/CSD register
	ResponseR3                // OCR register
	ResponseR6                // published RCA
	ResponseR7                // card interface condition
)

// String returns the conventional name of the response type.
func (r ResponseType) String() string {
	switch r {
	case ResponseNone:
		return "None"
	case ResponseR1:
		return "R1"
	case ResponseR1b:
		return "R1b"
	case ResponseR2:
		return "R2"
	case ResponseR3:
		return "R3"
	case ResponseR6:
		return "R6"
	case ResponseR7:
		return "R7"
	default:
		return "Unknown"
	}
}

// CommandFlags describes the expected response shape and data-phase behavior
// of a single command.
type CommandFlags struct {
	Response   ResponseType
	Data       bool
	Write      bool
	MultiBlock bool
}
