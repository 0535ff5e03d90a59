package protocol

import (
	"errors"
	"testing"

	"github.com/dotside-studios/sdmmc-agent/sdmmc"
)

func TestFromCardInfo(t *testing.T) {
	info := sdmmc.CardInfo{
		CardType:      sdmmc.CardTypeSdHc,
		CapacityBytes: 32 * 1024 * 1024 * 1024,
		BlockSize:     512,
		BusWidth:      sdmmc.BusWidth4,
		MaxFrequency:  50_000_000,
	}

	got := FromCardInfo(info)

	if got.CardType != "SDHC" {
		t.Errorf("CardType = %q, want %q", got.CardType, "SDHC")
	}
	if got.BusWidth != 4 {
		t.Errorf("BusWidth = %d, want 4", got.BusWidth)
	}
	if want := info.CapacityBytes / 512; got.SectorCount != want {
		t.Errorf("SectorCount = %d, want %d", got.SectorCount, want)
	}
}

func TestFromCardStatus(t *testing.T) {
	t.Run("no card", func(t *testing.T) {
		got := FromCardStatus(sdmmc.CardStatus{Message: "No card"})
		if got.Present || got.Initialized || got.Info != nil {
			t.Errorf("FromCardStatus() = %+v, want empty status", got)
		}
		if got.Message != "No card" {
			t.Errorf("Message = %q, want %q", got.Message, "No card")
		}
	})

	t.Run("initialized card", func(t *testing.T) {
		info := sdmmc.CardInfo{CardType: sdmmc.CardTypeEmmc, BlockSize: 512}
		got := FromCardStatus(sdmmc.CardStatus{Present: true, Initialized: true, Info: &info})
		if got.Info == nil {
			t.Fatal("Info = nil, want converted card info")
		}
		if got.Info.CardType != "eMMC" {
			t.Errorf("Info.CardType = %q, want %q", got.Info.CardType, "eMMC")
		}
	})
}

func TestErrorCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", sdmmc.NewNotFoundError("Info"), ErrCodeNoCard},
		{"invalid param", sdmmc.NewInvalidParamError("ReadSectors", ""), ErrCodeInvalidRequest},
		{"busy", sdmmc.NewBusyError("SendCommand", nil), ErrCodeCardBusy},
		{"timeout", sdmmc.NewTimeoutError("WaitReady"), ErrCodeTimeout},
		{"io", sdmmc.NewIOError("ReadData", nil), ErrCodeIOError},
		{"device", sdmmc.NewDeviceError("SendCommand", 0xBEEF), ErrCodeIOError},
		{"plain error", errors.New("boom"), ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorCodeFor(tt.err); got != tt.want {
				t.Errorf("ErrorCodeFor(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
