// Package protocol provides SD/MMC agent message types for external tools.
// This package is designed to be importable without pulling in server dependencies.
package protocol

// CardInfo describes an initialized card as reported to clients.
type CardInfo struct {
	// CardType is the negotiated card family (e.g., "SDHC", "eMMC")
	CardType string `json:"cardType"`

	// CapacityBytes is the card capacity in bytes
	CapacityBytes uint64 `json:"capacityBytes"`

	// BlockSize is the transfer block size in bytes (always 512)
	BlockSize uint32 `json:"blockSize"`

	// BusWidth is the negotiated number of data lines (1, 4 or 8)
	BusWidth int `json:"busWidth"`

	// MaxFrequency is the operating bus clock in Hz
	MaxFrequency uint32 `json:"maxFrequency"`

	// SectorCount is the capacity expressed in sectors
	SectorCount uint64 `json:"sectorCount"`
}

// CardStatus is broadcast whenever the slot state changes.
type CardStatus struct {
	Present     bool      `json:"present"`
	Initialized bool      `json:"initialized"`
	Info        *CardInfo `json:"info,omitempty"`
	Message     string    `json:"message,omitempty"`
}

// ReadRequest asks the agent to read whole sectors from the card.
type ReadRequest struct {
	// Sector is the first sector to read
	Sector uint64 `json:"sector"`

	// Count is the number of sectors to read (at least 1)
	Count uint32 `json:"count"`
}

// ReadResponse carries the data read from the card.
type ReadResponse struct {
	Sector uint64 `json:"sector"`
	Count  uint32 `json:"count"`

	// Data holds Count sectors; base64 encoded on the wire
	Data []byte `json:"data"`
}

// WriteRequest asks the agent to write whole sectors to the card.
// The data length must be a positive multiple of the sector size.
type WriteRequest struct {
	Sector uint64 `json:"sector"`

	// Data is base64 encoded on the wire
	Data []byte `json:"data"`
}

// WriteResponse reports a completed write.
type WriteResponse struct {
	Sector       uint64 `json:"sector"`
	BytesWritten int    `json:"bytesWritten"`
}

// EraseRequest asks the agent to erase a range of sectors.
type EraseRequest struct {
	Sector uint64 `json:"sector"`
	Count  uint64 `json:"count"`
}

// Error codes reported in failed responses.
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeNoCard         = "NO_CARD"
	ErrCodeCardBusy       = "CARD_BUSY"
	ErrCodeTimeout        = "TIMEOUT"
	ErrCodeIOError        = "IO_ERROR"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)
