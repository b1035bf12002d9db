package fatfs

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// memBlockDevice is an in-memory BlockDevice backing store for tests,
// sized like a classic 1.44MB floppy image.
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

func (m *memBlockDevice) BlockSize() int    { return m.sectorSize }
func (m *memBlockDevice) BlockCount() uint32 { return uint32(len(m.data) / m.sectorSize) }

// buildFAT12Image writes a minimal, classic-floppy-geometry FAT12 boot
// sector into bd: 2880 sectors, 1 sector/cluster, 2 FATs of 9 sectors,
// 224 root entries. This geometry yields a 2847-cluster volume, safely
// under the FAT12/FAT16 4085-cluster boundary spec.md §4.4 names.
func buildFAT12Image(t *testing.T, bd *memBlockDevice) {
	t.Helper()
	boot := make([]byte, 512)
	binary.LittleEndian.PutUint16(boot[offBytesPerSector:], 512)
	boot[offSecPerClus] = 1
	binary.LittleEndian.PutUint16(boot[offReservedSecCnt:], 1)
	boot[offNumFATs] = 2
	binary.LittleEndian.PutUint16(boot[offRootEntCnt:], 224)
	binary.LittleEndian.PutUint16(boot[offTotSec16:], 2880)
	binary.LittleEndian.PutUint16(boot[offFATSz16:], 9)
	copy(boot[offFAT1216VolLab:offFAT1216VolLab+11], "NO NAME    ")
	binary.LittleEndian.PutUint16(boot[bootSignatureOff:], bootSignatureValue)

	if err := bd.WriteBlocks(boot, 0, 1); err != nil {
		t.Fatalf("write boot sector: %v", err)
	}
}

func mountedVolume(t *testing.T) (*Volume, *memBlockDevice) {
	t.Helper()
	bd := newMemBlockDevice(2880)
	buildFAT12Image(t, bd)
	v := NewVolume(0, bd)
	t.Cleanup(v.Close)
	if res := v.Mount(false); res != FROK {
		t.Fatalf("Mount() = %v, want FR_OK", res)
	}
	return v, bd
}

func TestProbeDetectsFAT12(t *testing.T) {
	bd := newMemBlockDevice(2880)
	buildFAT12Image(t, bd)

	fsType, res := Probe(bd)
	if res != FROK {
		t.Fatalf("Probe() result = %v, want FR_OK", res)
	}
	if fsType != FSFAT12 {
		t.Fatalf("Probe() type = %v, want FAT12", fsType)
	}
}

func TestMountUnmountIdempotent(t *testing.T) {
	v, _ := mountedVolume(t)
	if res := v.Mount(false); res != FROK {
		t.Fatalf("second Mount(force=false) = %v, want FR_OK", res)
	}
	if res := v.Unmount(); res != FROK {
		t.Fatalf("Unmount() = %v, want FR_OK", res)
	}
	if res := v.Unmount(); res != FROK {
		t.Fatalf("second Unmount() = %v, want FR_OK (idempotent)", res)
	}
}

func TestLabelRoundTrip(t *testing.T) {
	v, _ := mountedVolume(t)

	if res := v.SetLabel("DATADRIVE12"); res != FROK {
		t.Fatalf("SetLabel() = %v, want FR_OK", res)
	}
	got, res := v.GetLabel()
	if res != FROK {
		t.Fatalf("GetLabel() result = %v, want FR_OK", res)
	}
	if got != "DATADRIVE12" {
		// 11-byte field truncates "DATADRIVE12" (11 chars) exactly; no
		// further truncation should occur.
		t.Fatalf("GetLabel() = %q, want round-tripped label", got)
	}

	if res := v.SetLabel("lower"); res != FROK {
		t.Fatalf("SetLabel(lower) = %v, want FR_OK", res)
	}
	if got, _ := v.GetLabel(); got != "LOWER" {
		t.Fatalf("GetLabel() = %q, want upcased LOWER", got)
	}
}

func TestCreateWriteReadFile(t *testing.T) {
	v, _ := mountedVolume(t)

	f, res := v.OpenFile("HELLO.TXT", ModeCreate|ModeWrite)
	if res != FROK {
		t.Fatalf("OpenFile() = %v, want FR_OK", res)
	}

	payload := bytes.Repeat([]byte("abcdefgh"), 300) // spans multiple clusters
	n, res := f.WriteAt(0, payload)
	if res != FROK {
		t.Fatalf("WriteAt() result = %v, want FR_OK", res)
	}
	if n != len(payload) {
		t.Fatalf("WriteAt() n = %d, want %d", n, len(payload))
	}

	size, res := f.GetSize()
	if res != FROK || size != uint64(len(payload)) {
		t.Fatalf("GetSize() = (%d, %v), want (%d, FR_OK)", size, res, len(payload))
	}

	readBack := make([]byte, len(payload))
	n, res = f.ReadAt(0, readBack)
	if res != FROK {
		t.Fatalf("ReadAt() result = %v, want FR_OK", res)
	}
	if n != len(payload) || !bytes.Equal(readBack, payload) {
		t.Fatalf("ReadAt() did not round-trip the written payload")
	}

	// Re-open through a fresh handle; the directory entry must have
	// persisted the file size across Flush.
	f2, res := v.OpenFile("HELLO.TXT", ModeRead)
	if res != FROK {
		t.Fatalf("second OpenFile() = %v, want FR_OK", res)
	}
	if size, _ := f2.GetSize(); size != uint64(len(payload)) {
		t.Fatalf("re-opened GetSize() = %d, want %d", size, len(payload))
	}
}

func TestSetSizeTruncateOnShrink(t *testing.T) {
	v, _ := mountedVolume(t)

	f, res := v.OpenFile("BIG.BIN", ModeCreate|ModeWrite)
	if res != FROK {
		t.Fatalf("OpenFile() = %v, want FR_OK", res)
	}
	payload := bytes.Repeat([]byte{0xAA}, int(v.ClusterSizeBytes())*3)
	if _, res := f.WriteAt(0, payload); res != FROK {
		t.Fatalf("WriteAt() = %v, want FR_OK", res)
	}

	freeBefore, res := v.GetFreeSpace()
	if res != FROK {
		t.Fatalf("GetFreeSpace() = %v, want FR_OK", res)
	}

	if res := f.SetSize(uint64(v.ClusterSizeBytes())); res != FROK {
		t.Fatalf("SetSize(shrink) = %v, want FR_OK", res)
	}

	freeAfter, res := v.GetFreeSpace()
	if res != FROK {
		t.Fatalf("GetFreeSpace() = %v, want FR_OK", res)
	}
	if freeAfter <= freeBefore {
		t.Fatalf("GetFreeSpace() after shrink = %d, want > %d (clusters reclaimed)", freeAfter, freeBefore)
	}

	if size, _ := f.GetSize(); size != uint64(v.ClusterSizeBytes()) {
		t.Fatalf("GetSize() after shrink = %d, want %d", size, v.ClusterSizeBytes())
	}
}

func TestMkdirRmdir(t *testing.T) {
	v, _ := mountedVolume(t)

	if res := v.Mkdir(v.rootCluster, true, "SUBDIR"); res != FROK {
		t.Fatalf("Mkdir() = %v, want FR_OK", res)
	}

	entries, res := v.ReadDir(v.rootCluster, true)
	if res != FROK {
		t.Fatalf("ReadDir(root) result = %v, want FR_OK", res)
	}
	found := false
	for _, e := range entries {
		if e.Name == "SUBDIR" && e.IsDir {
			found = true
		}
	}
	if !found {
		t.Fatalf("ReadDir(root) = %+v, want entry SUBDIR", entries)
	}

	if res := v.Rmdir(v.rootCluster, true, "SUBDIR"); res != FROK {
		t.Fatalf("Rmdir() = %v, want FR_OK", res)
	}
}

func TestUnlinkRemovesFile(t *testing.T) {
	v, _ := mountedVolume(t)

	if _, res := v.OpenFile("DOOMED.TXT", ModeCreate); res != FROK {
		t.Fatalf("OpenFile() = %v, want FR_OK", res)
	}
	if res := v.Unlink(v.rootCluster, true, "DOOMED.TXT"); res != FROK {
		t.Fatalf("Unlink() = %v, want FR_OK", res)
	}
	if _, res := v.OpenFile("DOOMED.TXT", ModeRead); res != FRNoFile {
		t.Fatalf("OpenFile() after unlink = %v, want FR_NO_FILE", res)
	}
}

func TestGetTotalSpaceMatchesGeometry(t *testing.T) {
	v, _ := mountedVolume(t)
	total, res := v.GetTotalSpace()
	if res != FROK {
		t.Fatalf("GetTotalSpace() result = %v, want FR_OK", res)
	}
	if want := uint64(2847 * 512); total != want {
		t.Fatalf("GetTotalSpace() = %d, want %d (2847 clusters of 512 bytes)", total, want)
	}
	free, res := v.GetFreeSpace()
	if res != FROK {
		t.Fatalf("GetFreeSpace() result = %v, want FR_OK", res)
	}
	if free > total {
		t.Fatalf("GetFreeSpace() = %d exceeds GetTotalSpace() = %d", free, total)
	}
}
