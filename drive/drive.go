package drive

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ardnew/usbfs/fatfs"
	"github.com/ardnew/usbfs/msc"
	"github.com/ardnew/usbfs/pkg"
	"github.com/ardnew/usbfs/scsi"
	"github.com/ardnew/usbfs/transport"
)

// ID identifies a Drive for the lifetime of its acquired session; it is
// the same uuid as the underlying [transport.Session], so looking a
// drive up by session and by id always agree.
type ID = uuid.UUID

// Drive is one mounted (or mount-pending) mass-storage LUN: an
// immutable identity (session, LUN, SCSI/MSC handles) plus the mutable
// mount state protected by fsLock (spec §4.5). manager_lock never needs
// to be held while fsLock is held across a blocking FAT or USB call —
// Drive enforces this by taking fsLock only inside [Drive.WithFAT] and
// never calling back into the manager from there.
type Drive struct {
	session *transport.Session
	lun     uint8
	scsiDev *scsi.Device
	x       *msc.Transactor

	fsLock  sync.Mutex
	slot    int
	mounted bool
	vol     *fatfs.Volume
}

// New constructs a Drive for lun on an already-acquired session. The
// drive starts unmounted; call [Drive.Mount] once TEST UNIT READY and
// READ CAPACITY have both succeeded (spec §4.6's reconciliation
// sequence runs those before ever calling Mount).
func New(t *transport.Transport, x *msc.Transactor, s *transport.Session, lun uint8) *Drive {
	return &Drive{
		session: s,
		lun:     lun,
		scsiDev: scsi.New(x, s, lun),
		x:       x,
		slot:    -1,
	}
}

// ID returns the drive's stable identifier.
func (d *Drive) ID() ID { return d.session.ID }

// LUN returns the SCSI logical unit number this Drive addresses.
func (d *Drive) LUN() uint8 { return d.lun }

// SCSI exposes the underlying SCSI device so the manager's
// reconciliation pass can run TestUnitReady/Inquiry/ReadCapacity before
// mounting.
func (d *Drive) SCSI() *scsi.Device { return d.scsiDev }

// Session returns the drive's underlying transport session.
func (d *Drive) Session() *transport.Session { return d.session }

// Slot reports the mount slot this drive currently occupies, or -1 if
// unmounted.
func (d *Drive) Slot() int {
	d.fsLock.Lock()
	defer d.fsLock.Unlock()
	return d.slot
}

// Mounted reports whether the drive currently has a live FAT volume.
func (d *Drive) Mounted() bool {
	d.fsLock.Lock()
	defer d.fsLock.Unlock()
	return d.mounted
}

// Mount mounts the FAT volume backing this drive's LUN into slot,
// forcing a fresh BPB read. It is idempotent: calling Mount again on an
// already-mounted drive with the same slot is a no-op success (spec
// §4.5). Mount does not claim or release the slot in the manager's
// table — the caller (Manager.addDevice) does that, including
// releasing slot on a returned error.
func (d *Drive) Mount(slot int) fatfs.Result {
	d.fsLock.Lock()
	defer d.fsLock.Unlock()

	if d.mounted && d.slot == slot {
		return fatfs.FROK
	}

	vol := fatfs.NewVolume(slot, &scsiBlockDevice{dev: d.scsiDev})
	if res := vol.Mount(true); res != fatfs.FROK {
		vol.Close()
		pkg.LogWarn(pkg.ComponentDrive, "mount failed", "slot", slot, "result", res)
		return res
	}

	d.vol = vol
	d.slot = slot
	d.mounted = true
	pkg.LogInfo(pkg.ComponentDrive, "drive mounted", "slot", slot, "fs_type", vol.FSType())
	return fatfs.FROK
}

// Unmount releases the FAT volume. Idempotent: unmounting an already-
// unmounted drive is a no-op.
func (d *Drive) Unmount() fatfs.Result {
	d.fsLock.Lock()
	defer d.fsLock.Unlock()

	if !d.mounted {
		return fatfs.FROK
	}
	res := d.vol.Unmount()
	d.vol.Close()
	d.vol = nil
	d.mounted = false
	pkg.LogInfo(pkg.ComponentDrive, "drive unmounted", "slot", d.slot)
	d.slot = -1
	return res
}

// Dispose tears the drive down entirely: unmounts if mounted, and
// optionally releases the underlying USB interface. closeUSB is false
// when the device already vanished (hot-unplug) and there is nothing
// left on the bus to release (spec §4.5).
func (d *Drive) Dispose(t *transport.Transport, closeUSB bool) {
	d.Unmount()
	if closeUSB {
		t.Release(d.session.ID)
	}
}

// WithFAT runs fn against the drive's mounted volume under fsLock,
// spec §4.5's scoped-lock helper. It returns FRNotEnabled if the drive
// isn't mounted, without calling fn.
func (d *Drive) WithFAT(fn func(*fatfs.Volume) fatfs.Result) fatfs.Result {
	d.fsLock.Lock()
	defer d.fsLock.Unlock()
	if !d.mounted {
		return fatfs.FRNotEnabled
	}
	return fn(d.vol)
}
