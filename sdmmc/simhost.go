package sdmmc

import (
	"fmt"
	"sync"
	"time"
)

// SimHost is a HostOperations implementation that emulates a well-behaved
// card in memory. It stands in for a real controller backend so the agent
// can run end to end without hardware, and powers integration-style tests.
//
// Supported card types are CardTypeSd, CardTypeSdHc and CardTypeEmmc; these
// are the types the initialization sequence can actually negotiate. Block
// storage is sparse, so large card capacities cost nothing until written.
// Erased and never-written blocks read back zero.
type SimHost struct {
	cardType CardType
	present  bool

	// ReadyAfter is the number of OCR polls answered busy before the
	// ready bit is reported. The default exercises the retry loop without
	// exhausting it.
	ReadyAfter int

	blocks   map[uint64][]byte
	ocrPolls int
	appCmd   bool
	rca      uint16
	selected bool

	// pending data phase set up by the last read/write command
	xferBlock uint64
	xferWrite bool
	xferOpen  bool

	mu sync.Mutex
}

// simRCA is the relative card address a simulated SD card publishes.
const simRCA uint16 = 0xB368

// NewSimHost creates a simulated host with a present card of the given
// type.
func NewSimHost(cardType CardType) *SimHost {
	return &SimHost{
		cardType:   cardType,
		present:    true,
		ReadyAfter: 2,
		blocks:     make(map[uint64][]byte),
	}
}

// SetPresent inserts or removes the simulated card.
func (s *SimHost) SetPresent(present bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.present = present
}

// LoadImage copies data into the simulated card starting at block 0.
func (s *SimHost) LoadImage(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for offset := 0; offset < len(data); offset += int(BlockSize) {
		block := make([]byte, BlockSize)
		copy(block, data[offset:])
		s.blocks[uint64(offset)/uint64(BlockSize)] = block
	}
}

// BlockData returns a copy of the stored block, or nil if it was never
// written or has been erased.
func (s *SimHost) BlockData(blockIndex uint64) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	block, ok := s.blocks[blockIndex]
	if !ok {
		return nil
	}
	out := make([]byte, len(block))
	copy(out, block)
	return out
}

// blockIndexFor undoes the engine's address translation.
func (s *SimHost) blockIndexFor(addr uint32) uint64 {
	if s.cardType.BlockAddressed() {
		return uint64(addr)
	}
	return uint64(addr) / uint64(BlockSize)
}

// ocrResponse reports busy until ReadyAfter polls have been made.
func (s *SimHost) ocrResponse() uint32 {
	s.ocrPolls++
	if s.ocrPolls <= s.ReadyAfter {
		return 0
	}
	ocr := ocrReadyBit
	if s.cardType == CardTypeSdHc || s.cardType == CardTypeSdXc {
		ocr |= ocrCCSBit
	}
	return ocr
}

// SendCommand emulates the card's response to one command.
func (s *SimHost) SendCommand(cmd, arg uint32, flags CommandFlags) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.present {
		return 0, NewIOError("SendCommand", fmt.Errorf("no card in slot"))
	}

	wasAppCmd := s.appCmd
	s.appCmd = false

	if wasAppCmd {
		switch cmd {
		case ACmdSendOpCond:
			return s.ocrResponse(), nil
		case ACmdSetBusWidth:
			return 0, nil
		default:
			return 0, NewNotSupportedError(fmt.Sprintf("ACMD%d", cmd))
		}
	}

	switch cmd {
	case CmdGoIdleState:
		s.ocrPolls = 0
		s.rca = 0
		s.selected = false
		s.xferOpen = false
		return 0, nil

	case CmdSendIfCond:
		// Only SD v2+ cards answer CMD8; eMMC does not understand it.
		if !s.cardType.IsSD() {
			return 0, NewNotSupportedError("CMD8")
		}
		return arg & 0x1FF, nil

	case CmdAppCmd:
		if !s.cardType.IsSD() {
			return 0, NewNotSupportedError("CMD55")
		}
		s.appCmd = true
		return 0, nil

	case CmdSendOpCond:
		if s.cardType != CardTypeEmmc {
			return 0, NewNotSupportedError("CMD1")
		}
		return s.ocrResponse(), nil

	case CmdAllSendCID:
		return 0, nil

	case CmdSetRelativeAddr:
		if s.cardType.IsSD() {
			s.rca = simRCA
			return uint32(s.rca) << 16, nil
		}
		s.rca = uint16(arg >> 16)
		return 0, nil

	case CmdSelectCard:
		if uint16(arg>>16) != s.rca {
			return 0, NewDeviceError("CMD7", arg)
		}
		s.selected = true
		return 0, nil

	case CmdSetBlocklen:
		if arg != BlockSize {
			return 0, NewNotSupportedError(fmt.Sprintf("CMD16 length %d", arg))
		}
		return 0, nil

	case CmdReadSingleBlock, CmdReadMultipleBlock:
		s.xferBlock = s.blockIndexFor(arg)
		s.xferWrite = false
		s.xferOpen = true
		return 0, nil

	case CmdWriteSingleBlock, CmdWriteMultipleBlock:
		s.xferBlock = s.blockIndexFor(arg)
		s.xferWrite = true
		s.xferOpen = true
		return 0, nil

	case CmdStopTransmission:
		s.xferOpen = false
		return 0, nil

	case CmdEraseStart:
		s.xferBlock = s.blockIndexFor(arg)
		return 0, nil

	case CmdEraseEnd:
		end := s.blockIndexFor(arg)
		for b := s.xferBlock; b <= end; b++ {
			delete(s.blocks, b)
		}
		return 0, nil

	case CmdErase:
		// Range already cleared when the bounds were set.
		return 0, nil

	default:
		return 0, NewNotSupportedError(fmt.Sprintf("CMD%d", cmd))
	}
}

// ReadData serves the next block of an open read transfer.
func (s *SimHost) ReadData(buf []byte, blockSize uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.present {
		return NewIOError("ReadData", fmt.Errorf("no card in slot"))
	}
	if !s.xferOpen || s.xferWrite {
		return NewIOError("ReadData", fmt.Errorf("no read transfer in progress"))
	}

	block := s.blocks[s.xferBlock]
	for i := range buf {
		if i < len(block) {
			buf[i] = block[i]
		} else {
			buf[i] = 0
		}
	}
	s.xferBlock++
	return nil
}

// WriteData stores the next block of an open write transfer.
func (s *SimHost) WriteData(data []byte, blockSize uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.present {
		return NewIOError("WriteData", fmt.Errorf("no card in slot"))
	}
	if !s.xferOpen || !s.xferWrite {
		return NewIOError("WriteData", fmt.Errorf("no write transfer in progress"))
	}

	block := make([]byte, blockSize)
	copy(block, data)
	s.blocks[s.xferBlock] = block
	s.xferBlock++
	return nil
}

// SetBusWidth accepts any width the engine negotiates.
func (s *SimHost) SetBusWidth(width BusWidth) error {
	return nil
}

// SetClock accepts any frequency the engine selects.
func (s *SimHost) SetClock(freqHz uint32) error {
	return nil
}

// WaitReady returns immediately; the simulated card is never busy.
func (s *SimHost) WaitReady(timeout time.Duration) error {
	return nil
}

// CardDetect reports whether the simulated card is inserted.
func (s *SimHost) CardDetect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present
}
