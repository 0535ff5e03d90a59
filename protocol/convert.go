package protocol

import "github.com/dotside-studios/sdmmc-agent/sdmmc"

// FromCardInfo converts driver card info into its wire representation.
func FromCardInfo(info sdmmc.CardInfo) CardInfo {
	sectorCount := uint64(0)
	if info.BlockSize != 0 {
		sectorCount = info.CapacityBytes / uint64(info.BlockSize)
	}
	return CardInfo{
		CardType:      info.CardType.String(),
		CapacityBytes: info.CapacityBytes,
		BlockSize:     info.BlockSize,
		BusWidth:      int(info.BusWidth),
		MaxFrequency:  info.MaxFrequency,
		SectorCount:   sectorCount,
	}
}

// FromCardStatus converts monitor status into its wire representation.
func FromCardStatus(status sdmmc.CardStatus) CardStatus {
	out := CardStatus{
		Present:     status.Present,
		Initialized: status.Initialized,
		Message:     status.Message,
	}
	if status.Info != nil {
		info := FromCardInfo(*status.Info)
		out.Info = &info
	}
	return out
}

// ErrorCodeFor maps a driver error to the wire error code reported to
// clients.
func ErrorCodeFor(err error) string {
	switch {
	case sdmmc.IsNotFoundError(err):
		return ErrCodeNoCard
	case sdmmc.IsInvalidParamError(err):
		return ErrCodeInvalidRequest
	case sdmmc.IsBusyError(err):
		return ErrCodeCardBusy
	case sdmmc.IsTimeoutError(err):
		return ErrCodeTimeout
	case sdmmc.IsIOError(err), sdmmc.IsDeviceError(err):
		return ErrCodeIOError
	default:
		return ErrCodeInternalError
	}
}
