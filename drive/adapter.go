package drive

import (
	"context"

	"github.com/ardnew/usbfs/scsi"
)

// scsiBlockDevice adapts a [scsi.Device] to [fatfs.BlockDevice]. The FAT
// layer's disk-I/O callback contract is synchronous and context-free
// (spec §4.4), matching this project's Non-goal of asynchronous
// pipelining, so every call here runs against context.Background() and
// blocks until the underlying SCSI transaction completes or fails.
type scsiBlockDevice struct {
	dev *scsi.Device
}

func (b *scsiBlockDevice) ReadBlocks(dst []byte, lba uint32, count int) error {
	return b.dev.ReadSectors(context.Background(), lba, count, dst)
}

func (b *scsiBlockDevice) WriteBlocks(src []byte, lba uint32, count int) error {
	return b.dev.WriteSectors(context.Background(), lba, count, src)
}

func (b *scsiBlockDevice) BlockSize() int { return int(b.dev.BlockSize()) }

func (b *scsiBlockDevice) BlockCount() uint32 { return uint32(b.dev.BlockCount()) }
