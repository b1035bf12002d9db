package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ardnew/usbfs/drive"
	"github.com/ardnew/usbfs/fatfs"
	"github.com/ardnew/usbfs/msc"
	"github.com/ardnew/usbfs/pkg"
	"github.com/ardnew/usbfs/transport"
)

// ErrDriveNotFound is the error form of a failed drive lookup.
// [Manager.WithDrive] and [Manager.WithDriveBySlot] do not return it:
// they report a missing drive as [fatfs.FRInvalidDrive].
var ErrDriveNotFound = errors.New("manager: drive not found")

// descKey is the bus:address identity used to correlate a
// [transport.DeviceDescriptor] across reconciliation passes, since LUNs
// of the same physical device share one session.
func descKey(d transport.DeviceDescriptor) string { return fmt.Sprintf("%d:%d", d.Bus, d.Address) }

// Manager is the DriveManager: it owns manager_lock (mu below) and
// every mounted [drive.Drive], reusing [fatfs.MaxDrives] to size its
// slot table so the two components can never disagree about capacity
// (spec §3 invariants 2-3).
type Manager struct {
	t *transport.Transport
	x *msc.Transactor

	mu       sync.Mutex
	drives   []*drive.Drive
	slotUsed [fatfs.MaxDrives]bool

	sf        singleflight.Group
	exitEvent chan struct{}
	exitOnce  sync.Once
}

// New creates a Manager driving reconciliation over t via x.
func New(t *transport.Transport, x *msc.Transactor) *Manager {
	return &Manager{t: t, x: x, exitEvent: make(chan struct{})}
}

// Run is the reconciler loop: it blocks on three wake sources —
// interface arrival, interface state change, and its own exit event —
// and runs one reconciliation pass each time an arrival or state
// change fires. The exit event or ctx cancellation ends the loop after
// a final teardown pass that disposes every drive.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.teardownAll()
			return
		case <-m.exitEvent:
			m.teardownAll()
			return
		case <-m.t.InterfaceAvailableEvent():
			m.reconcile(ctx)
		case <-m.t.InterfaceStateChangeEvent():
			m.reconcile(ctx)
		}
	}
}

// Stop signals the reconciler loop to exit, idempotently.
func (m *Manager) Stop() {
	m.exitOnce.Do(func() { close(m.exitEvent) })
}

// Poll forces a synchronous reconciliation pass, collapsing concurrent
// callers into a single underlying reconcile() via singleflight —
// spec §4.6's poll() contract, used by FsService.ListMountedDrives so
// concurrent RPC callers don't each trigger their own bus scan.
func (m *Manager) Poll(ctx context.Context) error {
	_, err, _ := m.sf.Do("reconcile", func() (any, error) {
		return nil, m.reconcile(ctx)
	})
	return err
}

// ListDriveIDs returns a snapshot of every currently-mounted drive's ID.
func (m *Manager) ListDriveIDs() []drive.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]drive.ID, 0, len(m.drives))
	for _, d := range m.drives {
		ids = append(ids, d.ID())
	}
	return ids
}

// find looks a drive up by id. Callers must hold mu.
func (m *Manager) find(id drive.ID) (*drive.Drive, bool) {
	for _, d := range m.drives {
		if d.ID() == id {
			return d, true
		}
	}
	return nil, false
}

// findBySlot looks a drive up by mount slot. Callers must hold mu.
func (m *Manager) findBySlot(slot int) (*drive.Drive, bool) {
	for _, d := range m.drives {
		if d.Slot() == slot {
			return d, true
		}
	}
	return nil, false
}

// WithDrive resolves id to a *drive.Drive under manager_lock, releases
// manager_lock, then invokes fn — fn may block on the drive's own
// fs_lock without ever holding manager_lock at the same time (spec §5's
// "never hold manager_lock across a blocking FAT/USB call").
func (m *Manager) WithDrive(id drive.ID, fn func(*drive.Drive) fatfs.Result) fatfs.Result {
	m.mu.Lock()
	d, ok := m.find(id)
	m.mu.Unlock()
	if !ok {
		return fatfs.FRInvalidDrive
	}
	return fn(d)
}

// WithDriveBySlot is [Manager.WithDrive] addressed by mount slot instead
// of drive id.
func (m *Manager) WithDriveBySlot(slot int, fn func(*drive.Drive) fatfs.Result) fatfs.Result {
	m.mu.Lock()
	d, ok := m.findBySlot(slot)
	m.mu.Unlock()
	if !ok {
		return fatfs.FRInvalidDrive
	}
	return fn(d)
}

// claimSlot finds the first free slot. Callers must hold mu.
func (m *Manager) claimSlot() (int, bool) {
	for i := 0; i < fatfs.MaxDrives; i++ {
		if !m.slotUsed[i] {
			m.slotUsed[i] = true
			return i, true
		}
	}
	return -1, false
}

// releaseSlot frees slot. Callers must hold mu.
func (m *Manager) releaseSlot(slot int) {
	if slot >= 0 && slot < fatfs.MaxDrives {
		m.slotUsed[slot] = false
	}
}

// reconcile runs one removal pass followed by one addition pass.
func (m *Manager) reconcile(ctx context.Context) error {
	present, err := m.t.EnumerateAvailable(nil)
	if err != nil {
		return fmt.Errorf("manager: enumerate available: %w", err)
	}
	presentKeys := make(map[string]bool, len(present))
	for _, d := range present {
		presentKeys[descKey(d)] = true
	}

	m.removalPass(presentKeys)
	m.additionPass(ctx, present)
	return nil
}

// removalPass disposes every drive whose backing device is no longer
// on the bus.
func (m *Manager) removalPass(presentKeys map[string]bool) {
	m.mu.Lock()
	var gone []*drive.Drive
	kept := m.drives[:0]
	for _, d := range m.drives {
		if presentKeys[descKey(d.Session().Desc)] {
			kept = append(kept, d)
		} else {
			gone = append(gone, d)
			m.releaseSlot(d.Slot())
		}
	}
	m.drives = kept
	m.mu.Unlock()

	for _, d := range gone {
		pkg.LogInfo(pkg.ComponentManager, "drive removed", "slot", d.Slot())
		d.Dispose(m.t, false)
	}
}

// additionPass acquires and mounts every not-yet-known mass-storage
// interface in present.
func (m *Manager) additionPass(ctx context.Context, present []transport.DeviceDescriptor) {
	m.mu.Lock()
	known := make(map[string]bool, len(m.drives))
	for _, d := range m.drives {
		known[descKey(d.Session().Desc)] = true
	}
	m.mu.Unlock()

	for _, desc := range present {
		if !transport.MassStorageFilter(desc) || known[descKey(desc)] {
			continue
		}
		m.addDevice(ctx, desc)
	}
}

// addDevice acquires one device interface (no Bulk-Only reset recovery
// is issued at acquisition, whatever configuration or alternate setting
// the device was in), walks its LUNs via GetMaxLUN, and mounts the
// first LUN that both spins up
// and mounts cleanly — falling forward to the next LUN on any failure,
// spec §4.6's "LUN fallback" and §8 scenario 5.
func (m *Manager) addDevice(ctx context.Context, desc transport.DeviceDescriptor) {
	session, err := m.t.Acquire(desc)
	if err != nil {
		pkg.LogWarn(pkg.ComponentManager, "acquire failed", "bus", desc.Bus, "address", desc.Address, "error", err)
		return
	}

	vendor, product := friendlyName(uint16(desc.VendorID), uint16(desc.ProductID))
	pkg.LogInfo(pkg.ComponentManager, "device acquired",
		"bus", desc.Bus, "address", desc.Address,
		"vid", desc.VendorID, "pid", desc.ProductID,
		"vendor", vendor, "product", product)

	maxLUN, err := m.x.GetMaxLUN(ctx, session)
	if err != nil {
		pkg.LogWarn(pkg.ComponentManager, "get max lun failed, assuming single LUN", "error", err)
		maxLUN = 0
	}

	for lun := uint8(0); lun <= maxLUN; lun++ {
		d := drive.New(m.t, m.x, session, lun)

		if err := d.SCSI().TestUnitReady(ctx); err != nil {
			pkg.LogWarn(pkg.ComponentManager, "lun not ready, trying next", "lun", lun, "error", err)
			continue
		}
		if _, err := d.SCSI().Inquiry(ctx); err != nil {
			pkg.LogWarn(pkg.ComponentManager, "inquiry failed, trying next", "lun", lun, "error", err)
			continue
		}
		if err := d.SCSI().ReadCapacity(ctx); err != nil {
			pkg.LogWarn(pkg.ComponentManager, "read capacity failed, trying next", "lun", lun, "error", err)
			continue
		}

		m.mu.Lock()
		slot, ok := m.claimSlot()
		m.mu.Unlock()
		if !ok {
			pkg.LogWarn(pkg.ComponentManager, "no free mount slot; dropping device", "bus", desc.Bus, "address", desc.Address)
			m.t.Release(session.ID)
			return
		}

		if res := d.Mount(slot); res != fatfs.FROK {
			m.mu.Lock()
			m.releaseSlot(slot)
			m.mu.Unlock()
			pkg.LogWarn(pkg.ComponentManager, "mount failed, trying next lun", "lun", lun, "result", res)
			continue
		}

		m.mu.Lock()
		m.drives = append(m.drives, d)
		m.mu.Unlock()
		pkg.LogInfo(pkg.ComponentManager, "drive mounted", "slot", slot, "lun", lun, "bus", desc.Bus, "address", desc.Address)
		return
	}

	pkg.LogWarn(pkg.ComponentManager, "no usable lun found; releasing device", "bus", desc.Bus, "address", desc.Address)
	m.t.Release(session.ID)
}

// teardownAll disposes every mounted drive, used at shutdown.
func (m *Manager) teardownAll() {
	m.mu.Lock()
	drives := m.drives
	m.drives = nil
	m.mu.Unlock()

	for _, d := range drives {
		d.Dispose(m.t, true)
	}
}
