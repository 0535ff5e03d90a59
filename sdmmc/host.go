package sdmmc

import "time"

// HostOperations is the hardware-operation surface of a physical SD/MMC
// controller. The engine is built entirely on top of it; implement this for
// a specific controller to drive real hardware, or use MockHost/SimHost for
// tests and development.
//
// Implementations are free to block. The engine never calls a HostOperations
// method from more than one goroutine at a time, but provides no locking of
// its own; callers sharing an engine must serialize access (Monitor does
// this for the agent).
//
// Example:
//
//	host := sdmmc.NewSimHost(sdmmc.CardTypeSdHc)
//	engine := sdmmc.NewEngine(host)
//	err := engine.Init()
type HostOperations interface {
	// SendCommand issues a command with the given argument and returns the
	// 32-bit response word. For ResponseNone commands the returned value is
	// meaningless.
	SendCommand(cmd uint32, arg uint32, flags CommandFlags) (uint32, error)

	// ReadData reads one block of blockSize bytes into buf following a data
	// read command.
	ReadData(buf []byte, blockSize uint32) error

	// WriteData writes one block of blockSize bytes from data following a
	// data write command.
	WriteData(data []byte, blockSize uint32) error

	// SetBusWidth configures the number of data lines on the host side.
	SetBusWidth(width BusWidth) error

	// SetClock configures the bus clock frequency in Hz.
	SetClock(freqHz uint32) error

	// WaitReady blocks until the card signals ready or the timeout elapses.
	WaitReady(timeout time.Duration) error

	// CardDetect reports whether a card is physically present.
	CardDetect() bool
}
