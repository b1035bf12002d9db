package scsi

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ardnew/usbfs/msc"
	"github.com/ardnew/usbfs/pkg"
	"github.com/ardnew/usbfs/transport"
)

// SCSI operation codes this package issues.
const (
	opTestUnitReady  = 0x00
	opInquiry        = 0x12
	opReadCapacity10 = 0x25
	opRead10         = 0x28
	opWrite10        = 0x2A
	opReadCapacity16 = 0x9E
	serviceActionRC16 = 0x10
)

const (
	maxSpinUpAttempts = 16
	spinUpBackoff     = 100 * time.Millisecond

	capacity10Overflow = 0xFFFFFFFF

	minBlockSize = 512
	maxBlockSize = 4096

	// defaultMaxTransferBlocks bounds how many blocks one data phase
	// asks the device to move at once, absent any device-reported limit
	// (spec §4.3: "splitting transfers exceeding the device's reported
	// max", which this driver never received from a real device, so it
	// uses a conservative default sized for typical bulk-only devices).
	defaultMaxTransferBlocks = 128
)

// Device is one addressable LUN behind a [transport.Session], speaking
// the SCSI transparent command set over Bulk-Only Transport.
type Device struct {
	x   *msc.Transactor
	s   *transport.Session
	lun uint8

	blockSize         uint32
	blockCount        uint64
	maxTransferBlocks uint32
	ready             bool
}

// New creates a Device bound to LUN lun on session s.
func New(x *msc.Transactor, s *transport.Session, lun uint8) *Device {
	return &Device{x: x, s: s, lun: lun, maxTransferBlocks: defaultMaxTransferBlocks}
}

// OK reports whether the device has passed TEST UNIT READY at least
// once, the flag spec §4.3 calls ok().
func (d *Device) OK() bool { return d.ready }

// BlockSize returns the negotiated sector size, valid only after
// [Device.ReadCapacity].
func (d *Device) BlockSize() uint32 { return d.blockSize }

// BlockCount returns the negotiated sector count.
func (d *Device) BlockCount() uint64 { return d.blockCount }

// TestUnitReady polls the device with TEST UNIT READY, retrying up to
// maxSpinUpAttempts times with a fixed spinUpBackoff delay between
// attempts to ride out the media
// spin-up delay many mass-storage devices need after a cold plug-in
// (spec §4.3, §8 scenario 1).
func (d *Device) TestUnitReady(ctx context.Context) error {
	cb := make([]byte, 6)
	cb[0] = opTestUnitReady

	var lastErr error
	for attempt := 0; attempt < maxSpinUpAttempts; attempt++ {
		res, err := d.x.Transact(ctx, d.s, d.lun, cb, msc.DirNone, nil)
		if err == nil && res.Status == msc.StatusPassed {
			d.ready = true
			return nil
		}
		lastErr = err
		pkg.LogDebug(pkg.ComponentSCSI, "test unit ready not yet ready",
			"attempt", attempt+1, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(spinUpBackoff):
		}
	}
	return fmt.Errorf("scsi: device not ready after %d attempts: %w", maxSpinUpAttempts, lastErr)
}

// InquiryData is the subset of the 36-byte standard INQUIRY response
// the bridge cares about.
type InquiryData struct {
	PeripheralType uint8
	Vendor         string
	Product        string
}

// Inquiry issues a standard INQUIRY and validates the peripheral device
// type is 0x00 (direct-access block device), per spec §4.3.
func (d *Device) Inquiry(ctx context.Context) (InquiryData, error) {
	const inquiryLen = 36
	data := make([]byte, inquiryLen)
	cb := make([]byte, 6)
	cb[0] = opInquiry
	cb[4] = inquiryLen

	res, err := d.x.Transact(ctx, d.s, d.lun, cb, msc.DirIn, data)
	if err != nil {
		return InquiryData{}, fmt.Errorf("scsi: inquiry: %w", err)
	}
	if res.Status != msc.StatusPassed {
		return InquiryData{}, fmt.Errorf("scsi: inquiry failed with status %d", res.Status)
	}

	peripheralType := data[0] & 0x1F
	if peripheralType != 0x00 {
		return InquiryData{}, fmt.Errorf("scsi: unsupported peripheral device type %#x", peripheralType)
	}

	return InquiryData{
		PeripheralType: peripheralType,
		Vendor:         trimASCII(data[8:16]),
		Product:        trimASCII(data[16:32]),
	}, nil
}

func trimASCII(b []byte) string {
	end := len(b)
	for end > 0 && (b[end-1] == ' ' || b[end-1] == 0) {
		end--
	}
	return string(b[:end])
}

// ReadCapacity issues READ CAPACITY(10), falling back to READ CAPACITY
// (16) when the device reports the 0xFFFFFFFF overflow sentinel (spec
// §4.3), and validates the resulting block size falls within
// [minBlockSize, maxBlockSize].
func (d *Device) ReadCapacity(ctx context.Context) error {
	data := make([]byte, 8)
	cb := make([]byte, 10)
	cb[0] = opReadCapacity10

	res, err := d.x.Transact(ctx, d.s, d.lun, cb, msc.DirIn, data)
	if err != nil {
		return fmt.Errorf("scsi: read capacity(10): %w", err)
	}
	if res.Status != msc.StatusPassed {
		return fmt.Errorf("scsi: read capacity(10) failed with status %d", res.Status)
	}

	maxLBA := binary.BigEndian.Uint32(data[0:4])
	blockSize := binary.BigEndian.Uint32(data[4:8])

	var blockCount uint64
	if maxLBA == capacity10Overflow {
		blockCount, blockSize, err = d.readCapacity16(ctx)
		if err != nil {
			return err
		}
	} else {
		blockCount = uint64(maxLBA) + 1
	}

	if blockSize < minBlockSize || blockSize > maxBlockSize {
		return fmt.Errorf("scsi: reported block size %d outside [%d, %d]", blockSize, minBlockSize, maxBlockSize)
	}

	d.blockSize = blockSize
	d.blockCount = blockCount
	return nil
}

func (d *Device) readCapacity16(ctx context.Context) (uint64, uint32, error) {
	data := make([]byte, 32)
	cb := make([]byte, 16)
	cb[0] = opReadCapacity16
	cb[1] = serviceActionRC16
	binary.BigEndian.PutUint32(cb[10:14], uint32(len(data)))

	res, err := d.x.Transact(ctx, d.s, d.lun, cb, msc.DirIn, data)
	if err != nil {
		return 0, 0, fmt.Errorf("scsi: read capacity(16): %w", err)
	}
	if res.Status != msc.StatusPassed {
		return 0, 0, fmt.Errorf("scsi: read capacity(16) failed with status %d", res.Status)
	}

	maxLBA := binary.BigEndian.Uint64(data[0:8])
	blockSize := binary.BigEndian.Uint32(data[8:12])
	return maxLBA + 1, blockSize, nil
}

// ReadSectors reads count sectors starting at lba into dst, splitting
// the request across multiple READ(10) transactions when count exceeds
// maxTransferBlocks (spec §4.3).
func (d *Device) ReadSectors(ctx context.Context, lba uint32, count int, dst []byte) error {
	return d.transferSectors(ctx, lba, count, dst, opRead10, msc.DirIn)
}

// WriteSectors writes count sectors starting at lba from src, with the
// same transfer-splitting behavior as ReadSectors.
func (d *Device) WriteSectors(ctx context.Context, lba uint32, count int, src []byte) error {
	return d.transferSectors(ctx, lba, count, src, opWrite10, msc.DirOut)
}

func (d *Device) transferSectors(ctx context.Context, lba uint32, count int, buf []byte, opcode uint8, dir msc.Direction) error {
	if d.blockSize == 0 {
		return fmt.Errorf("scsi: block size unknown; call ReadCapacity first")
	}
	if len(buf) < count*int(d.blockSize) {
		return fmt.Errorf("scsi: buffer too small: have %d bytes, need %d", len(buf), count*int(d.blockSize))
	}

	remaining := count
	offset := 0
	cur := lba
	for remaining > 0 {
		chunk := remaining
		if chunk > int(d.maxTransferBlocks) {
			chunk = int(d.maxTransferBlocks)
		}

		cb := make([]byte, 10)
		cb[0] = opcode
		binary.BigEndian.PutUint32(cb[2:6], cur)
		binary.BigEndian.PutUint16(cb[7:9], uint16(chunk))

		chunkBytes := chunk * int(d.blockSize)
		res, err := d.x.Transact(ctx, d.s, d.lun, cb, dir, buf[offset:offset+chunkBytes])
		if err != nil {
			return fmt.Errorf("scsi: transfer at LBA %d: %w", cur, err)
		}
		if res.Status != msc.StatusPassed {
			return fmt.Errorf("scsi: transfer at LBA %d failed with status %d", cur, res.Status)
		}

		remaining -= chunk
		offset += chunkBytes
		cur += uint32(chunk)
	}
	return nil
}
