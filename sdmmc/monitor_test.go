package sdmmc

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// newTestMonitor wires a monitor over a simulated SDHC card without
// starting the worker; tests drive checkSlot directly for determinism.
func newTestMonitor() (*Monitor, *SimHost, *FakeClock) {
	sim := NewSimHost(CardTypeSdHc)
	clock := NewFakeClock(time.Unix(0, 0))
	monitor := NewMonitorWithClock(NewEngine(sim), clock)
	return monitor, sim, clock
}

func TestMonitor_InsertInitialize(t *testing.T) {
	monitor, _, _ := newTestMonitor()

	monitor.checkSlot()

	status := monitor.Status()
	if !status.Present {
		t.Error("Status().Present = false, want true")
	}
	if !status.Initialized {
		t.Fatal("Status().Initialized = false, want true")
	}
	if status.Info == nil || status.Info.CardType != CardTypeSdHc {
		t.Errorf("Status().Info = %+v, want SDHC card info", status.Info)
	}

	info, err := monitor.Info()
	if err != nil {
		t.Fatalf("Info() failed: %v", err)
	}
	if info.BlockSize != 512 {
		t.Errorf("Info().BlockSize = %d, want 512", info.BlockSize)
	}

	// A status update was broadcast.
	select {
	case status := <-monitor.StatusUpdates():
		if !status.Initialized {
			t.Errorf("broadcast status = %+v, want initialized", status)
		}
	default:
		t.Error("no status update broadcast after init")
	}
}

func TestMonitor_Removal(t *testing.T) {
	monitor, sim, _ := newTestMonitor()
	monitor.checkSlot()
	<-monitor.StatusUpdates()

	sim.SetPresent(false)
	monitor.checkSlot()

	status := monitor.Status()
	if status.Present || status.Initialized {
		t.Errorf("Status() after removal = %+v, want neither present nor initialized", status)
	}
	if _, err := monitor.Info(); !IsNotFoundError(err) {
		t.Errorf("Info() after removal = %v, want NotFound", err)
	}

	select {
	case status := <-monitor.StatusUpdates():
		if status.Message != "Card removed" {
			t.Errorf("broadcast message = %q, want %q", status.Message, "Card removed")
		}
	default:
		t.Error("no status update broadcast after removal")
	}
}

func TestMonitor_OperationsBeforeInit(t *testing.T) {
	monitor, sim, _ := newTestMonitor()
	sim.SetPresent(false)
	monitor.checkSlot()

	if _, err := monitor.ReadSectors(0, 1); !IsNotFoundError(err) {
		t.Errorf("ReadSectors() = %v, want NotFound", err)
	}
	if _, err := monitor.WriteSectors(0, make([]byte, 512)); !IsNotFoundError(err) {
		t.Errorf("WriteSectors() = %v, want NotFound", err)
	}
	if err := monitor.EraseSectors(0, 1); !IsNotFoundError(err) {
		t.Errorf("EraseSectors() = %v, want NotFound", err)
	}
}

func TestMonitor_SectorRoundTrip(t *testing.T) {
	monitor, _, _ := newTestMonitor()
	monitor.checkSlot()

	payload := bytes.Repeat([]byte{0xC3}, 2*512)
	n, err := monitor.WriteSectors(8, payload)
	if err != nil {
		t.Fatalf("WriteSectors() failed: %v", err)
	}
	if n != len(payload) {
		t.Errorf("WriteSectors() = %d bytes, want %d", n, len(payload))
	}

	readBack, err := monitor.ReadSectors(8, 2)
	if err != nil {
		t.Fatalf("ReadSectors() failed: %v", err)
	}
	if !bytes.Equal(readBack, payload) {
		t.Error("read sectors do not match written sectors")
	}

	if err := monitor.EraseSectors(8, 2); err != nil {
		t.Fatalf("EraseSectors() failed: %v", err)
	}
	erased, err := monitor.ReadSectors(8, 2)
	if err != nil {
		t.Fatalf("ReadSectors() after erase failed: %v", err)
	}
	if !bytes.Equal(erased, make([]byte, 2*512)) {
		t.Error("erased sectors do not read back zero")
	}

	if err := monitor.Sync(); err != nil {
		t.Errorf("Sync() failed: %v", err)
	}
}

func TestMonitor_WriteSectorsValidation(t *testing.T) {
	monitor, _, _ := newTestMonitor()
	monitor.checkSlot()

	if _, err := monitor.WriteSectors(0, nil); !IsInvalidParamError(err) {
		t.Errorf("WriteSectors(nil) = %v, want InvalidParam", err)
	}
	if _, err := monitor.WriteSectors(0, make([]byte, 700)); !IsInvalidParamError(err) {
		t.Errorf("WriteSectors(700 bytes) = %v, want InvalidParam", err)
	}
	if _, err := monitor.ReadSectors(0, 0); !IsInvalidParamError(err) {
		t.Errorf("ReadSectors(count=0) = %v, want InvalidParam", err)
	}
}

func TestMonitor_InitCooldown(t *testing.T) {
	mock := NewMockHost()
	initErr := NewIOError("SendCommand", errors.New("card stuck"))
	mock.CommandErrors[CmdGoIdleState] = initErr
	clock := NewFakeClock(time.Unix(0, 0))
	monitor := NewMonitorWithClock(NewEngine(mock), clock)

	// Three consecutive failures exhaust the attempt budget.
	for i := 0; i < InitMaxAttempts; i++ {
		monitor.checkSlot()
	}
	attempts := mock.CommandCount(CmdGoIdleState)
	if attempts != InitMaxAttempts {
		t.Fatalf("init attempts = %d, want %d", attempts, InitMaxAttempts)
	}

	// During cooldown no further init is attempted.
	monitor.checkSlot()
	monitor.checkSlot()
	if got := mock.CommandCount(CmdGoIdleState); got != attempts {
		t.Errorf("init attempts during cooldown = %d, want %d", got, attempts)
	}

	// After the cooldown elapses the monitor tries again.
	clock.Advance(InitCooldownPeriod + time.Second)
	monitor.checkSlot()
	if got := mock.CommandCount(CmdGoIdleState); got != attempts+1 {
		t.Errorf("init attempts after cooldown = %d, want %d", got, attempts+1)
	}
}

func TestMonitor_Reinit(t *testing.T) {
	monitor, _, _ := newTestMonitor()
	monitor.checkSlot()
	<-monitor.StatusUpdates()

	if err := monitor.Reinit(); err != nil {
		t.Fatalf("Reinit() failed: %v", err)
	}
	if !monitor.Status().Initialized {
		t.Error("Status().Initialized = false after Reinit")
	}
}

func TestMonitor_StartStop(t *testing.T) {
	monitor, _, _ := newTestMonitor()
	monitor.Start()

	// The worker's startup pass picks up the card already in the slot.
	select {
	case status := <-monitor.StatusUpdates():
		if !status.Initialized {
			t.Errorf("startup status = %+v, want initialized", status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no status update from worker startup")
	}

	monitor.Stop()

	// Stop is idempotent.
	monitor.Stop()
}
