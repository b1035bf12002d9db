package manager

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/usbfs/drive"
	"github.com/ardnew/usbfs/fatfs"
	"github.com/ardnew/usbfs/transport"
)

func TestClaimReleaseSlot(t *testing.T) {
	m := New(nil, nil)

	slots := make([]int, 0, fatfs.MaxDrives)
	for i := 0; i < fatfs.MaxDrives; i++ {
		slot, ok := m.claimSlot()
		require.True(t, ok, "claimSlot() should succeed while slots remain")
		slots = append(slots, slot)
	}

	_, ok := m.claimSlot()
	assert.False(t, ok, "claimSlot() should fail once all slots are used")

	m.releaseSlot(slots[0])
	freed, ok := m.claimSlot()
	require.True(t, ok, "claimSlot() should succeed after a release")
	assert.Equal(t, slots[0], freed, "claimSlot() should reuse the freed slot")
}

func TestReleaseSlotOutOfRangeIsNoop(t *testing.T) {
	m := New(nil, nil)
	assert.NotPanics(t, func() {
		m.releaseSlot(-1)
		m.releaseSlot(fatfs.MaxDrives)
	})
}

func TestDescKey(t *testing.T) {
	a := transport.DeviceDescriptor{Bus: 1, Address: 2}
	b := transport.DeviceDescriptor{Bus: 1, Address: 2}
	c := transport.DeviceDescriptor{Bus: 1, Address: 3}

	assert.Equal(t, descKey(a), descKey(b))
	assert.NotEqual(t, descKey(a), descKey(c))
}

func TestWithDriveMissingReturnsInvalidDrive(t *testing.T) {
	m := New(nil, nil)
	res := m.WithDrive(uuid.New(), func(d *drive.Drive) fatfs.Result {
		t.Fatal("fn should not be called for a missing drive")
		return fatfs.FROK
	})
	assert.Equal(t, fatfs.FRInvalidDrive, res)
}
