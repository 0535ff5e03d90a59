package sdmmc

// BlockDevice is the sector-oriented surface consumed by filesystem layers.
//
// A BlockDevice is obtained by wrapping an initialized Engine:
//
//	dev := sdmmc.NewBlockDevice(engine)
//	buf := make([]byte, dev.SectorSize())
//	err := dev.Read(0, buf)
type BlockDevice interface {
	// Read fills buf with whole sectors starting at sector.
	Read(sector uint64, buf []byte) error

	// Write stores whole sectors from data starting at sector.
	Write(sector uint64, data []byte) error

	// SectorSize returns the sector size in bytes.
	SectorSize() uint32

	// SectorCount returns the total number of sectors.
	SectorCount() uint64

	// Sync waits for outstanding writes to reach the card.
	Sync() error
}

// EngineBlockDevice adapts an Engine to the BlockDevice interface. It is a
// pure re-shaping layer; all protocol work happens in the engine.
type EngineBlockDevice struct {
	engine *Engine
}

// NewBlockDevice wraps an engine as a BlockDevice.
func NewBlockDevice(engine *Engine) *EngineBlockDevice {
	return &EngineBlockDevice{engine: engine}
}

func (d *EngineBlockDevice) Read(sector uint64, buf []byte) error {
	_, err := d.engine.ReadBlocks(sector, buf)
	return err
}

func (d *EngineBlockDevice) Write(sector uint64, data []byte) error {
	_, err := d.engine.WriteBlocks(sector, data)
	return err
}

// SectorSize returns the negotiated block size, or the standard 512 bytes
// if no card has been initialized.
func (d *EngineBlockDevice) SectorSize() uint32 {
	if d.engine.cardInfo == nil {
		return BlockSize
	}
	return d.engine.cardInfo.BlockSize
}

// SectorCount returns the card capacity in sectors, or 0 if no card has
// been initialized.
func (d *EngineBlockDevice) SectorCount() uint64 {
	if d.engine.cardInfo == nil {
		return 0
	}
	return d.engine.cardInfo.CapacityBytes / uint64(d.engine.cardInfo.BlockSize)
}

func (d *EngineBlockDevice) Sync() error {
	return d.engine.Flush()
}
