package sdmmc

import (
	"log"
	"time"
)

// Initialization and completion-wait budgets.
const (
	// initClockHz is the bus clock used until the card is identified.
	initClockHz = 400_000

	// ocrMaxAttempts bounds the OCR negotiation loops (ACMD41/CMD1).
	// Retries are counted in attempts, not wall-clock time, so a mocked
	// host observes a deterministic number of commands.
	ocrMaxAttempts = 100

	// ocrRetryDelay is the device-ready wait between OCR attempts.
	ocrRetryDelay = 10 * time.Millisecond

	// writeCompleteTimeout bounds the post-write and flush ready waits.
	writeCompleteTimeout = 500 * time.Millisecond

	// eraseCompleteTimeout bounds the post-erase ready wait.
	eraseCompleteTimeout = 5 * time.Second
)

// Engine is the generic SD/MMC/eMMC protocol engine. It negotiates card
// identity, addressing mode, bus width and clock over a HostOperations
// implementation, then performs block-granular transfers.
//
// An Engine performs no internal locking. Callers sharing one across
// goroutines must serialize access externally; Monitor does this for the
// agent surface.
type Engine struct {
	host     HostOperations
	cardInfo *CardInfo
	rca      uint16
}

// NewEngine creates an Engine over the given host operations. The card is
// not touched until Init is called.
func NewEngine(host HostOperations) *Engine {
	return &Engine{host: host}
}

// CardPresent reports whether a card is physically present, regardless of
// initialization state.
func (e *Engine) CardPresent() bool {
	return e.host.CardDetect()
}

// CardInfo returns the negotiated card information. It fails with
// ErrCodeNotFound before the first successful Init.
func (e *Engine) CardInfo() (CardInfo, error) {
	if e.cardInfo == nil {
		return CardInfo{}, NewNotFoundError("CardInfo")
	}
	return *e.cardInfo, nil
}

// RCA returns the relative card address assigned during identification, or
// 0 if no card has been identified.
func (e *Engine) RCA() uint16 {
	return e.rca
}

// Init runs the full initialization sequence: presence check, pre-init
// signaling, voltage probe, OCR negotiation, identification, address
// assignment, selection, bus-width negotiation, block-length fix-up and
// clock ramp. It may be called again at any time and unconditionally
// replaces the previous card state; a failed Init leaves the engine with no
// card info, so transfers fail with ErrCodeNotFound rather than operating
// on stale state.
func (e *Engine) Init() error {
	e.cardInfo = nil
	e.rca = 0

	if !e.host.CardDetect() {
		return NewNotFoundError("Init")
	}

	// Identification happens at 400 kHz on a single data line.
	if err := e.host.SetClock(initClockHz); err != nil {
		return err
	}
	if err := e.host.SetBusWidth(BusWidth1); err != nil {
		return err
	}

	if err := e.goIdle(); err != nil {
		return err
	}

	isSDv2, err := e.checkInterfaceCondition()
	if err != nil {
		return err
	}

	var cardType CardType
	if isSDv2 {
		cardType, err = e.negotiateSDOpCond(true)
		if err != nil {
			return err
		}
	} else {
		// Not an SD v2 card. Probe SD v1 first, then fall back to eMMC.
		cardType, err = e.negotiateSDOpCond(false)
		if err != nil {
			cardType, err = e.negotiateMmcOpCond()
			if err != nil {
				return err
			}
		}
	}

	if _, err := e.readCID(); err != nil {
		return err
	}

	rca, err := e.assignRCA(cardType.IsSD())
	if err != nil {
		return err
	}
	e.rca = rca

	if err := e.selectCard(); err != nil {
		return err
	}

	var busWidth BusWidth
	if cardType.IsSD() {
		if err := e.negotiateSDBusWidth(); err != nil {
			return err
		}
		busWidth = BusWidth4
	} else {
		// eMMC takes 8 data lines without a card-side negotiation command.
		if err := e.host.SetBusWidth(BusWidth8); err != nil {
			return err
		}
		busWidth = BusWidth8
	}

	if err := e.setBlockLength(BlockSize); err != nil {
		return err
	}

	maxFreq := operatingFrequency(cardType)
	if err := e.host.SetClock(maxFreq); err != nil {
		return err
	}

	e.cardInfo = &CardInfo{
		CardType:      cardType,
		CapacityBytes: cardCapacity(cardType),
		BlockSize:     BlockSize,
		BusWidth:      busWidth,
		MaxFrequency:  maxFreq,
	}

	log.Printf("Card initialized: %s, %d bytes, %s bus at %d Hz",
		cardType, e.cardInfo.CapacityBytes, busWidth, maxFreq)
	return nil
}

// goIdle sends CMD0 (GO_IDLE_STATE).
func (e *Engine) goIdle() error {
	_, err := e.host.SendCommand(CmdGoIdleState, 0, CommandFlags{Response: ResponseNone})
	return err
}

// checkInterfaceCondition probes for an SD v2+ card with CMD8. The argument
// encodes the 2.7-3.6V window and the 0xAA check pattern; a v2 card echoes
// the pattern back in the low byte. A command failure means the card does
// not understand CMD8 and is not treated as fatal.
func (e *Engine) checkInterfaceCondition() (bool, error) {
	resp, err := e.host.SendCommand(CmdSendIfCond, ifCondCheckArg, CommandFlags{Response: ResponseR7})
	if err != nil {
		return false, nil
	}
	return resp&0xFF == 0xAA, nil
}

// negotiateSDOpCond runs the ACMD41 OCR loop until the card reports ready
// or the attempt budget runs out. With hcs set the host asserts high
// capacity support; the card's CCS answer in the OCR distinguishes SDHC
// from standard capacity SD.
func (e *Engine) negotiateSDOpCond(hcs bool) (CardType, error) {
	arg := sdOpCondNoHCSArg
	if hcs {
		arg = sdOpCondHCSArg
	}

	for attempt := 0; attempt < ocrMaxAttempts; attempt++ {
		if _, err := e.host.SendCommand(CmdAppCmd, 0, CommandFlags{Response: ResponseR1}); err != nil {
			return 0, err
		}

		ocr, err := e.host.SendCommand(ACmdSendOpCond, arg, CommandFlags{Response: ResponseR3})
		if err != nil {
			return 0, err
		}

		if ocr&ocrReadyBit != 0 {
			if ocr&ocrCCSBit != 0 {
				return CardTypeSdHc, nil
			}
			return CardTypeSd, nil
		}

		if err := e.host.WaitReady(ocrRetryDelay); err != nil {
			return 0, err
		}
	}

	return 0, NewTimeoutError("negotiateSDOpCond")
}

// negotiateMmcOpCond runs the CMD1 OCR loop for eMMC under the same attempt
// budget as the SD path.
func (e *Engine) negotiateMmcOpCond() (CardType, error) {
	for attempt := 0; attempt < ocrMaxAttempts; attempt++ {
		ocr, err := e.host.SendCommand(CmdSendOpCond, mmcOpCondArg, CommandFlags{Response: ResponseR3})
		if err != nil {
			return 0, err
		}

		if ocr&ocrReadyBit != 0 {
			return CardTypeEmmc, nil
		}

		if err := e.host.WaitReady(ocrRetryDelay); err != nil {
			return 0, err
		}
	}

	return 0, NewTimeoutError("negotiateMmcOpCond")
}

// readCID issues CMD2 (ALL_SEND_CID). The 128-bit R2 response is not
// decoded; a zero CID is returned until register parsing is implemented.
func (e *Engine) readCID() ([4]uint32, error) {
	if _, err := e.host.SendCommand(CmdAllSendCID, 0, CommandFlags{Response: ResponseR2}); err != nil {
		return [4]uint32{}, err
	}
	return [4]uint32{}, nil
}

// assignRCA establishes the relative card address. SD cards publish their
// own RCA in the upper half of the R6 response; for eMMC the host assigns
// RCA 1 through the same command.
func (e *Engine) assignRCA(isSD bool) (uint16, error) {
	if isSD {
		resp, err := e.host.SendCommand(CmdSetRelativeAddr, 0, CommandFlags{Response: ResponseR6})
		if err != nil {
			return 0, err
		}
		return uint16(resp >> 16), nil
	}

	const rca = uint16(1)
	if _, err := e.host.SendCommand(CmdSetRelativeAddr, uint32(rca)<<16, CommandFlags{Response: ResponseR1}); err != nil {
		return 0, err
	}
	return rca, nil
}

// selectCard issues CMD7 to move the card into the transfer state.
func (e *Engine) selectCard() error {
	_, err := e.host.SendCommand(CmdSelectCard, uint32(e.rca)<<16, CommandFlags{Response: ResponseR1b})
	return err
}

// negotiateSDBusWidth switches an SD card to 4 data lines with ACMD6 and
// reconfigures the host side to match.
func (e *Engine) negotiateSDBusWidth() error {
	if _, err := e.host.SendCommand(CmdAppCmd, uint32(e.rca)<<16, CommandFlags{Response: ResponseR1}); err != nil {
		return err
	}

	// Argument 2 selects 4-bit mode.
	if _, err := e.host.SendCommand(ACmdSetBusWidth, 2, CommandFlags{Response: ResponseR1}); err != nil {
		return err
	}

	return e.host.SetBusWidth(BusWidth4)
}

// setBlockLength issues CMD16 to fix the transfer block size.
func (e *Engine) setBlockLength(length uint32) error {
	_, err := e.host.SendCommand(CmdSetBlocklen, length, CommandFlags{Response: ResponseR1})
	return err
}

// ReadBlocks reads as many whole blocks as fit in buf, starting at
// startBlock, and returns the number of bytes transferred. Remainder bytes
// beyond the last whole block are not transferred.
func (e *Engine) ReadBlocks(startBlock uint64, buf []byte) (int, error) {
	if e.cardInfo == nil {
		return 0, NewNotFoundError("ReadBlocks")
	}
	info := e.cardInfo

	blockSize := int(info.BlockSize)
	if len(buf) < blockSize {
		return 0, NewInvalidParamError("ReadBlocks", "buffer shorter than one block")
	}

	blockCount := len(buf) / blockSize
	addr := transferAddress(info.CardType, startBlock, info.BlockSize)

	cmd := CmdReadSingleBlock
	if blockCount > 1 {
		cmd = CmdReadMultipleBlock
	}

	_, err := e.host.SendCommand(cmd, addr, CommandFlags{
		Response:   ResponseR1,
		Data:       true,
		MultiBlock: blockCount > 1,
	})
	if err != nil {
		return 0, err
	}

	for i := 0; i < blockCount; i++ {
		offset := i * blockSize
		if err := e.host.ReadData(buf[offset:offset+blockSize], info.BlockSize); err != nil {
			return 0, err
		}
	}

	if blockCount > 1 {
		if err := e.stopTransmission(); err != nil {
			return 0, err
		}
	}

	return blockCount * blockSize, nil
}

// WriteBlocks writes as many whole blocks as data contains, starting at
// startBlock, waits for the card-side write to complete and returns the
// number of bytes transferred.
func (e *Engine) WriteBlocks(startBlock uint64, data []byte) (int, error) {
	if e.cardInfo == nil {
		return 0, NewNotFoundError("WriteBlocks")
	}
	info := e.cardInfo

	blockSize := int(info.BlockSize)
	if len(data) < blockSize {
		return 0, NewInvalidParamError("WriteBlocks", "buffer shorter than one block")
	}

	blockCount := len(data) / blockSize
	addr := transferAddress(info.CardType, startBlock, info.BlockSize)

	cmd := CmdWriteSingleBlock
	if blockCount > 1 {
		cmd = CmdWriteMultipleBlock
	}

	_, err := e.host.SendCommand(cmd, addr, CommandFlags{
		Response:   ResponseR1,
		Data:       true,
		Write:      true,
		MultiBlock: blockCount > 1,
	})
	if err != nil {
		return 0, err
	}

	for i := 0; i < blockCount; i++ {
		offset := i * blockSize
		if err := e.host.WriteData(data[offset:offset+blockSize], info.BlockSize); err != nil {
			return 0, err
		}
	}

	if blockCount > 1 {
		if err := e.stopTransmission(); err != nil {
			return 0, err
		}
	}

	if err := e.host.WaitReady(writeCompleteTimeout); err != nil {
		return 0, err
	}

	return blockCount * blockSize, nil
}

// EraseBlocks erases blockCount blocks starting at startBlock by setting
// the erase range with CMD32/CMD33, issuing CMD38 and waiting for the card
// to finish.
func (e *Engine) EraseBlocks(startBlock, blockCount uint64) error {
	if e.cardInfo == nil {
		return NewNotFoundError("EraseBlocks")
	}
	info := e.cardInfo

	if blockCount == 0 {
		return NewInvalidParamError("EraseBlocks", "block count must be at least 1")
	}

	startAddr := transferAddress(info.CardType, startBlock, info.BlockSize)
	endAddr := transferAddress(info.CardType, startBlock+blockCount-1, info.BlockSize)

	if _, err := e.host.SendCommand(CmdEraseStart, startAddr, CommandFlags{Response: ResponseR1}); err != nil {
		return err
	}
	if _, err := e.host.SendCommand(CmdEraseEnd, endAddr, CommandFlags{Response: ResponseR1}); err != nil {
		return err
	}
	if _, err := e.host.SendCommand(CmdErase, 0, CommandFlags{Response: ResponseR1b}); err != nil {
		return err
	}

	return e.host.WaitReady(eraseCompleteTimeout)
}

// Flush waits for any outstanding card-side writes to complete.
func (e *Engine) Flush() error {
	return e.host.WaitReady(writeCompleteTimeout)
}

// stopTransmission terminates a multi-block data phase with CMD12. It is
// issued only after a completed data phase; a transfer that fails mid-phase
// surfaces the error without attempting it.
func (e *Engine) stopTransmission() error {
	_, err := e.host.SendCommand(CmdStopTransmission, 0, CommandFlags{Response: ResponseR1b})
	return err
}
