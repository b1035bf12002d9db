package fsservice

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/usbfs/fatfs"
)

// memBlockDevice is a minimal in-memory fatfs.BlockDevice, independent of
// fatfs's own test fakes since this package cannot reach unexported test
// helpers across the package boundary.
type memBlockDevice struct {
	sectorSize int
	data       []byte
}

func newMemBlockDevice(sectors int) *memBlockDevice {
	return &memBlockDevice{sectorSize: 512, data: make([]byte, sectors*512)}
}

func (m *memBlockDevice) ReadBlocks(dst []byte, lba uint32, count int) error {
	off := int(lba) * m.sectorSize
	copy(dst, m.data[off:off+count*m.sectorSize])
	return nil
}

func (m *memBlockDevice) WriteBlocks(src []byte, lba uint32, count int) error {
	off := int(lba) * m.sectorSize
	copy(m.data[off:off+count*m.sectorSize], src)
	return nil
}

func (m *memBlockDevice) BlockSize() int     { return m.sectorSize }
func (m *memBlockDevice) BlockCount() uint32 { return uint32(len(m.data) / m.sectorSize) }

// buildFAT12Image writes a classic 1.44MB floppy BPB directly by its raw
// byte offsets (this package has no access to fatfs's unexported offset
// constants), yielding the same 2847-cluster FAT12 geometry used in
// fatfs's own tests.
func buildFAT12Image(t *testing.T, bd *memBlockDevice) {
	t.Helper()
	boot := make([]byte, 512)
	binary.LittleEndian.PutUint16(boot[11:], 512) // bytes per sector
	boot[13] = 1                                  // sectors per cluster
	binary.LittleEndian.PutUint16(boot[14:], 1)   // reserved sectors
	boot[16] = 2                                  // number of FATs
	binary.LittleEndian.PutUint16(boot[17:], 224) // root entry count
	binary.LittleEndian.PutUint16(boot[19:], 2880) // total sectors (16-bit)
	binary.LittleEndian.PutUint16(boot[22:], 9)    // sectors per FAT
	copy(boot[43:54], "NO NAME    ")
	binary.LittleEndian.PutUint16(boot[510:], 0xAA55)

	require.NoError(t, bd.WriteBlocks(boot, 0, 1))
}

func mountedVolume(t *testing.T, slot int) *fatfs.Volume {
	t.Helper()
	bd := newMemBlockDevice(2880)
	buildFAT12Image(t, bd)
	v := fatfs.NewVolume(slot, bd)
	t.Cleanup(v.Close)
	require.Equal(t, fatfs.FROK, v.Mount(false))
	return v
}

func TestRemoveChildrenDeletesFilesNotDirectory(t *testing.T) {
	v := mountedVolume(t, 0)

	require.Equal(t, fatfs.FROK, v.MkdirPath("SUB"))
	_, res := v.OpenFile("SUB/A.TXT", fatfs.ModeCreate)
	require.Equal(t, fatfs.FROK, res)
	_, res = v.OpenFile("ROOT.TXT", fatfs.ModeCreate)
	require.Equal(t, fatfs.FROK, res)

	require.Equal(t, fatfs.FROK, removeChildren(v, ""))

	entries, res := v.ReadDirPath("")
	require.Equal(t, fatfs.FROK, res)
	assert.Empty(t, entries, "removeChildren should leave the root itself intact but empty")
}

func TestRemoveChildrenRecursesIntoSubdirectories(t *testing.T) {
	v := mountedVolume(t, 1)

	require.Equal(t, fatfs.FROK, v.MkdirPath("A"))
	require.Equal(t, fatfs.FROK, v.MkdirPath("A/B"))
	_, res := v.OpenFile("A/B/LEAF.TXT", fatfs.ModeCreate)
	require.Equal(t, fatfs.FROK, res)

	require.Equal(t, fatfs.FROK, removeChildren(v, ""))

	// Rmdir refuses a non-empty directory, so an empty root shows that
	// removeChildren deleted LEAF.TXT before "B" and "B" before "A".
	entries, res := v.ReadDirPath("")
	require.Equal(t, fatfs.FROK, res)
	assert.Empty(t, entries)
}

func TestRegisterSubObjectEnforcesMaxSubObjects(t *testing.T) {
	s := New(nil, 0, 2)

	id1, err := s.registerSubObject(&subObject{kind: subKindFile})
	require.NoError(t, err)
	id2, err := s.registerSubObject(&subObject{kind: subKindDir})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	_, err = s.registerSubObject(&subObject{kind: subKindFile})
	assert.Error(t, err, "a third sub-object should exceed maxSubObjects=2")

	s.CloseSubObject(id1)
	_, err = s.registerSubObject(&subObject{kind: subKindFile})
	assert.NoError(t, err, "closing a handle should free a slot for reuse")
}

func TestGetSubObjectRejectsWrongKindAndUnknownHandle(t *testing.T) {
	s := New(nil, 0, 0)

	fileID, err := s.registerSubObject(&subObject{kind: subKindFile})
	require.NoError(t, err)

	_, err = s.getSubObject(fileID, subKindDir)
	assert.Error(t, err, "requesting a file handle as a directory should fail")

	obj, err := s.getSubObject(fileID, subKindFile)
	require.NoError(t, err)
	assert.Equal(t, subKindFile, obj.kind)

	s.CloseSubObject(fileID)
	_, err = s.getSubObject(fileID, subKindFile)
	assert.Error(t, err, "a closed handle must no longer resolve")
}
