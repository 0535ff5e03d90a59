package sdmmc

import (
	"fmt"
	"sync"
	"time"
)

// CommandRecord captures one SendCommand invocation for verification in
// tests.
type CommandRecord struct {
	Cmd   uint32
	Arg   uint32
	Flags CommandFlags
}

// MockHost is a test implementation of HostOperations that simulates an
// SD/MMC controller without hardware.
//
// Responses are looked up per opcode; per-method func overrides take
// precedence when set. All invocations are recorded for verification.
//
// Example:
//
//	mock := sdmmc.NewMockHost()
//	mock.Responses[sdmmc.ACmdSendOpCond] = 0xC0FF8000 // ready, CCS set
//	engine := sdmmc.NewEngine(mock)
//	err := engine.Init()
type MockHost struct {
	// Present controls CardDetect.
	Present bool

	// SendCommandFunc allows custom command behavior for testing.
	// If nil, Responses and CommandErrors are consulted instead.
	SendCommandFunc func(cmd, arg uint32, flags CommandFlags) (uint32, error)

	// Responses maps an opcode to the response word returned for it.
	// Opcodes with no entry respond 0.
	Responses map[uint32]uint32

	// CommandErrors maps an opcode to an error returned for it.
	CommandErrors map[uint32]error

	// ReadDataFunc allows custom data-read behavior. If nil, each read
	// fills the buffer with ReadFill or fails with ReadError.
	ReadDataFunc func(buf []byte, blockSize uint32) error
	ReadFill     byte
	ReadError    error

	// WriteDataFunc allows custom data-write behavior. If nil, each write
	// is appended to Written or fails with WriteError.
	WriteDataFunc func(data []byte, blockSize uint32) error
	WriteError    error

	// SetBusWidthError and SetClockError, if set, fail the respective
	// configuration calls.
	SetBusWidthError error
	SetClockError    error

	// WaitReadyFunc allows custom ready-wait behavior. If nil, WaitReady
	// returns WaitReadyError.
	WaitReadyFunc  func(timeout time.Duration) error
	WaitReadyError error

	// CallLog tracks all method calls in order for verification in tests.
	CallLog []string

	// Commands records every SendCommand invocation.
	Commands []CommandRecord

	// BusWidths records every SetBusWidth invocation.
	BusWidths []BusWidth

	// Clocks records every SetClock invocation.
	Clocks []uint32

	// WaitTimeouts records every WaitReady invocation.
	WaitTimeouts []time.Duration

	// Written records every WriteData payload.
	Written [][]byte

	mu sync.Mutex
}

// NewMockHost creates a MockHost that behaves like a present, ready SDHC
// card.
func NewMockHost() *MockHost {
	return &MockHost{
		Present: true,
		Responses: map[uint32]uint32{
			CmdSendIfCond:      0x1AA,
			ACmdSendOpCond:     ocrReadyBit | ocrCCSBit,
			CmdSendOpCond:      ocrReadyBit,
			CmdSetRelativeAddr: 0x1234 << 16,
		},
		CommandErrors: make(map[uint32]error),
		CallLog:       make([]string, 0),
	}
}

// SendCommand simulates issuing a command to the card.
func (m *MockHost) SendCommand(cmd, arg uint32, flags CommandFlags) (uint32, error) {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, fmt.Sprintf("SendCommand(%d)", cmd))
	m.Commands = append(m.Commands, CommandRecord{Cmd: cmd, Arg: arg, Flags: flags})
	m.mu.Unlock()

	if m.SendCommandFunc != nil {
		return m.SendCommandFunc(cmd, arg, flags)
	}
	if err, ok := m.CommandErrors[cmd]; ok && err != nil {
		return 0, err
	}
	return m.Responses[cmd], nil
}

// ReadData simulates reading one block of data.
func (m *MockHost) ReadData(buf []byte, blockSize uint32) error {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, "ReadData")
	m.mu.Unlock()

	if m.ReadDataFunc != nil {
		return m.ReadDataFunc(buf, blockSize)
	}
	if m.ReadError != nil {
		return m.ReadError
	}
	for i := range buf {
		buf[i] = m.ReadFill
	}
	return nil
}

// WriteData simulates writing one block of data.
func (m *MockHost) WriteData(data []byte, blockSize uint32) error {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, "WriteData")
	m.mu.Unlock()

	if m.WriteDataFunc != nil {
		return m.WriteDataFunc(data, blockSize)
	}
	if m.WriteError != nil {
		return m.WriteError
	}

	block := make([]byte, len(data))
	copy(block, data)
	m.mu.Lock()
	m.Written = append(m.Written, block)
	m.mu.Unlock()
	return nil
}

// SetBusWidth records the requested bus width.
func (m *MockHost) SetBusWidth(width BusWidth) error {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, fmt.Sprintf("SetBusWidth(%s)", width))
	m.BusWidths = append(m.BusWidths, width)
	m.mu.Unlock()
	return m.SetBusWidthError
}

// SetClock records the requested clock frequency.
func (m *MockHost) SetClock(freqHz uint32) error {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, fmt.Sprintf("SetClock(%d)", freqHz))
	m.Clocks = append(m.Clocks, freqHz)
	m.mu.Unlock()
	return m.SetClockError
}

// WaitReady records the requested timeout and returns immediately.
func (m *MockHost) WaitReady(timeout time.Duration) error {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, "WaitReady")
	m.WaitTimeouts = append(m.WaitTimeouts, timeout)
	m.mu.Unlock()

	if m.WaitReadyFunc != nil {
		return m.WaitReadyFunc(timeout)
	}
	return m.WaitReadyError
}

// CardDetect reports the configured presence state.
func (m *MockHost) CardDetect() bool {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, "CardDetect")
	m.mu.Unlock()
	return m.Present
}

// CommandsFor returns all recorded invocations of the given opcode.
func (m *MockHost) CommandsFor(cmd uint32) []CommandRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	var records []CommandRecord
	for _, rec := range m.Commands {
		if rec.Cmd == cmd {
			records = append(records, rec)
		}
	}
	return records
}

// CommandCount returns how many times the given opcode was issued.
func (m *MockHost) CommandCount(cmd uint32) int {
	return len(m.CommandsFor(cmd))
}
