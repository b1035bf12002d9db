package fatfs

import "sync"

// MaxDrives bounds the number of FAT volumes the disk-I/O dispatch table
// can address, mirroring spec.md's MAX_DRIVES (typical value 10, "the
// FAT library's volume capacity"). [manager] reuses this constant to size
// its own slot_used array so the two stay in lockstep (spec §3 invariants
// 2–3).
const MaxDrives = 10

// BlockDevice is the sector-level transport a [Volume] pulls data
// through. It plays the role of spec §4.4's disk-I/O callback: the FAT
// adapter never touches USB or SCSI directly, it only calls ReadBlocks/
// WriteBlocks on whatever is registered for its slot.
//
// Modeled on other_examples' soypat/fat BlockDevice interface
// (ReadBlocks/WriteBlocks/startBlock), adapted to the sector-count shape
// spec.md's read_sectors/write_sectors need.
type BlockDevice interface {
	// ReadBlocks reads count sectors starting at lba into dst.
	// len(dst) must be >= count*BlockSize().
	ReadBlocks(dst []byte, lba uint32, count int) error

	// WriteBlocks writes count sectors starting at lba from src.
	WriteBlocks(src []byte, lba uint32, count int) error

	// BlockSize returns the sector size in bytes (512..4096, spec §4.3).
	BlockSize() int

	// BlockCount returns the total number of addressable sectors.
	BlockCount() uint32
}

// driveTable is the process-wide slot->BlockDevice dispatch the FAT
// adapter uses internally, mirroring spec §4.4's slot_to_drive weak
// reference array. Registration happens under driveMu at mount time and
// is cleared at unmount; reads never block on it and must tolerate a
// racing clear (spec §5 "Shared resource policy").
var (
	driveMu    sync.RWMutex
	driveTable [MaxDrives]BlockDevice
)

// RegisterDrive installs bd as the backing device for slot. Called by
// [NewVolume], which [drive.Drive.Mount] invokes under that drive's
// fs_lock; the DriveManager's manager_lock is not held at that point,
// and driveMu alone serializes the table write.
func RegisterDrive(slot int, bd BlockDevice) {
	if slot < 0 || slot >= MaxDrives {
		return
	}
	driveMu.Lock()
	driveTable[slot] = bd
	driveMu.Unlock()
}

// UnregisterDrive clears the backing device for slot. Called during
// unmount, after the volume has been quiesced.
func UnregisterDrive(slot int) {
	if slot < 0 || slot >= MaxDrives {
		return
	}
	driveMu.Lock()
	driveTable[slot] = nil
	driveMu.Unlock()
}

// diskRead dispatches a sector read through the slot table. Returns
// FRInvalidDrive (the "parameter error" spec §4.4 requires) if the slot
// is empty or out of range.
func diskRead(slot int, dst []byte, lba uint32, count int) Result {
	if slot < 0 || slot >= MaxDrives {
		return FRInvalidDrive
	}
	driveMu.RLock()
	bd := driveTable[slot]
	driveMu.RUnlock()
	if bd == nil {
		return FRInvalidDrive
	}
	if err := bd.ReadBlocks(dst, lba, count); err != nil {
		return FRDiskErr
	}
	return FROK
}

// diskWrite dispatches a sector write through the slot table.
func diskWrite(slot int, src []byte, lba uint32, count int) Result {
	if slot < 0 || slot >= MaxDrives {
		return FRInvalidDrive
	}
	driveMu.RLock()
	bd := driveTable[slot]
	driveMu.RUnlock()
	if bd == nil {
		return FRInvalidDrive
	}
	if err := bd.WriteBlocks(src, lba, count); err != nil {
		return FRDiskErr
	}
	return FROK
}
