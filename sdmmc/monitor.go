package sdmmc

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Monitor polling and recovery policy.
const (
	// CardCheckInterval is how often the worker polls card presence.
	CardCheckInterval = 250 * time.Millisecond

	// InitMaxAttempts bounds consecutive failed initializations before the
	// monitor backs off.
	InitMaxAttempts = 3

	// InitCooldownPeriod is how long the monitor waits after exhausting
	// init attempts before trying again.
	InitCooldownPeriod = 10 * time.Second
)

// CardStatus is a point-in-time view of the monitored slot, broadcast on
// status updates and served to agent clients.
type CardStatus struct {
	Present     bool      `json:"present"`
	Initialized bool      `json:"initialized"`
	Info        *CardInfo `json:"info,omitempty"`
	Message     string    `json:"message,omitempty"`
}

// Monitor owns an Engine and supervises the card slot: it polls presence,
// initializes cards on insertion, drops state on removal and broadcasts
// status changes. All engine access goes through the monitor's operation
// mutex, providing the external serialization the engine requires.
type Monitor struct {
	engine     *Engine
	clock      Clock
	statusChan chan CardStatus
	stopChan   chan struct{}
	workerWg   sync.WaitGroup

	// opMu serializes every call into the engine. The engine itself has no
	// locking; see the HostOperations contract.
	opMu sync.Mutex

	stateMu       sync.RWMutex
	present       bool
	initialized   bool
	info          CardInfo
	initFailures  int
	cooldownUntil time.Time
}

// NewMonitor creates a monitor over the given engine using the real clock.
func NewMonitor(engine *Engine) *Monitor {
	return NewMonitorWithClock(engine, NewRealClock())
}

// NewMonitorWithClock creates a monitor with an injected clock for tests.
func NewMonitorWithClock(engine *Engine, clock Clock) *Monitor {
	return &Monitor{
		engine:     engine,
		clock:      clock,
		statusChan: make(chan CardStatus, 1), // Buffered to prevent blocking on send if no listener
		stopChan:   make(chan struct{}),
	}
}

// Start begins the card supervision worker in a separate goroutine.
func (m *Monitor) Start() {
	log.Println("Monitor Start called, starting worker.")
	m.workerWg.Add(1)
	go m.worker()
}

// Stop gracefully shuts down the worker and waits for it to complete.
func (m *Monitor) Stop() {
	log.Println("Stopping monitor...")
	select {
	case <-m.stopChan:
		return // Already stopping or stopped
	default:
		close(m.stopChan)
	}
	m.workerWg.Wait()
	log.Println("Monitor worker stopped successfully.")
}

// StatusUpdates returns a channel that provides CardStatus updates.
func (m *Monitor) StatusUpdates() <-chan CardStatus {
	return m.statusChan
}

// Status returns the current slot status.
func (m *Monitor) Status() CardStatus {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.statusLocked()
}

func (m *Monitor) statusLocked() CardStatus {
	status := CardStatus{
		Present:     m.present,
		Initialized: m.initialized,
	}
	if m.initialized {
		info := m.info
		status.Info = &info
		status.Message = fmt.Sprintf("Card ready: %s", info.CardType)
	} else if m.present {
		status.Message = "Card present, not initialized"
	} else {
		status.Message = "No card"
	}
	return status
}

// Info returns the negotiated card information, failing with
// ErrCodeNotFound while no initialized card is present.
func (m *Monitor) Info() (CardInfo, error) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	if !m.initialized {
		return CardInfo{}, NewNotFoundError("Info")
	}
	return m.info, nil
}

// worker polls the slot and keeps card state current until Stop is called.
func (m *Monitor) worker() {
	log.Println("Monitor worker started.")

	ticker := m.clock.NewTicker(CardCheckInterval)

	defer func() {
		ticker.Stop()
		m.workerWg.Done()
		log.Println("Monitor worker finished.")
	}()

	// Pick up a card that was already in the slot at startup.
	m.checkSlot()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C():
			m.checkSlot()
		}
	}
}

// checkSlot reconciles monitor state with physical card presence.
func (m *Monitor) checkSlot() {
	m.opMu.Lock()
	present := m.engine.CardPresent()
	m.opMu.Unlock()

	m.stateMu.Lock()
	wasPresent := m.present
	initialized := m.initialized
	inCooldown := m.clock.Now().Before(m.cooldownUntil)
	m.present = present
	if !present {
		m.initialized = false
		m.initFailures = 0
		m.cooldownUntil = time.Time{}
	}
	m.stateMu.Unlock()

	switch {
	case present && !wasPresent:
		log.Println("Card inserted.")
		m.tryInit()
	case present && !initialized && !inCooldown:
		m.tryInit()
	case !present && wasPresent:
		log.Println("Card removed.")
		m.broadcastStatus("Card removed")
	}
}

// tryInit runs the engine's initialization sequence and updates monitor
// state. Repeated failures trigger a cooldown so a broken card is not
// hammered on every poll.
func (m *Monitor) tryInit() {
	m.opMu.Lock()
	err := m.engine.Init()
	var info CardInfo
	if err == nil {
		info, _ = m.engine.CardInfo()
	}
	m.opMu.Unlock()

	m.stateMu.Lock()
	if err != nil {
		m.initialized = false
		m.initFailures++
		failures := m.initFailures
		if failures >= InitMaxAttempts {
			m.cooldownUntil = m.clock.Now().Add(InitCooldownPeriod)
			m.initFailures = 0
			m.stateMu.Unlock()
			log.Printf("Card init failed %d times: %v. Cooling down for %v.", failures, err, InitCooldownPeriod)
			m.broadcastStatus(fmt.Sprintf("Init failed: %v", err))
			return
		}
		m.stateMu.Unlock()
		log.Printf("Card init failed (attempt %d/%d): %v", failures, InitMaxAttempts, err)
		return
	}

	m.initialized = true
	m.info = info
	m.initFailures = 0
	m.cooldownUntil = time.Time{}
	m.stateMu.Unlock()

	m.broadcastStatus("")
}

// broadcastStatus sends a status update without blocking. An optional
// custom message overrides the default from Status.
func (m *Monitor) broadcastStatus(customMessage string) {
	status := m.Status()
	if customMessage != "" {
		status.Message = customMessage
	}

	select {
	case m.statusChan <- status:
	default:
		log.Println("Warning: card status channel full or no listener.")
	}
}

// Reinit forces a fresh initialization of the card in the slot.
func (m *Monitor) Reinit() error {
	m.opMu.Lock()
	err := m.engine.Init()
	var info CardInfo
	if err == nil {
		info, _ = m.engine.CardInfo()
	}
	m.opMu.Unlock()

	m.stateMu.Lock()
	m.initialized = err == nil
	if err == nil {
		m.info = info
	}
	m.stateMu.Unlock()

	if err != nil {
		return err
	}
	m.broadcastStatus("")
	return nil
}

// ReadSectors reads count sectors starting at sector and returns the data.
func (m *Monitor) ReadSectors(sector uint64, count uint32) ([]byte, error) {
	if count == 0 {
		return nil, NewInvalidParamError("ReadSectors", "sector count must be at least 1")
	}

	info, err := m.Info()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, uint64(count)*uint64(info.BlockSize))

	m.opMu.Lock()
	n, err := m.engine.ReadBlocks(sector, buf)
	m.opMu.Unlock()
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// WriteSectors writes whole sectors from data starting at sector. The data
// length must be a multiple of the sector size.
func (m *Monitor) WriteSectors(sector uint64, data []byte) (int, error) {
	info, err := m.Info()
	if err != nil {
		return 0, err
	}
	if len(data) == 0 || len(data)%int(info.BlockSize) != 0 {
		return 0, NewInvalidParamError("WriteSectors", "data length must be a positive multiple of the sector size")
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.engine.WriteBlocks(sector, data)
}

// EraseSectors erases count sectors starting at sector.
func (m *Monitor) EraseSectors(sector, count uint64) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.engine.EraseBlocks(sector, count)
}

// Sync waits for outstanding card-side writes to complete.
func (m *Monitor) Sync() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.engine.Flush()
}
