package fatfs

import "encoding/binary"

// bpb holds the fields of the BIOS Parameter Block this driver actually
// needs. Field names follow the conventional FAT spec naming so the
// layout is recognizable against any FAT reference.
type bpb struct {
	bytesPerSector    uint16
	sectorsPerCluster uint8
	reservedSectors   uint16
	numFATs           uint8
	rootEntryCount    uint16 // 0 for FAT32
	totalSectors16    uint16
	sectorsPerFAT16   uint16 // 0 for FAT32
	totalSectors32    uint32
	sectorsPerFAT32   uint32 // FAT32 only
	rootCluster       uint32 // FAT32 only
	fsType            FSType
	volumeLabel       [11]byte
}

const (
	offBytesPerSector  = 11
	offSecPerClus      = 13
	offReservedSecCnt  = 14
	offNumFATs         = 16
	offRootEntCnt      = 17
	offTotSec16        = 19
	offFATSz16         = 22
	offTotSec32        = 32
	bootSignatureOff   = 510
	bootSignatureValue = 0xAA55

	// FAT32-only extended BPB fields.
	offFATSz32     = 36
	offRootClus    = 44
	offFAT32VolLab = 71

	// FAT12/16 extended BPB fields.
	offFAT1216VolLab = 43
)

// parseBPB parses a 512+ byte boot sector. It returns FRNoFilesystem if
// the sector doesn't look like a FAT boot sector at all (bad signature
// or degenerate bytes-per-sector).
func parseBPB(sector []byte) (bpb, Result) {
	var b bpb
	if len(sector) < 512 {
		return b, FRNoFilesystem
	}
	if binary.LittleEndian.Uint16(sector[bootSignatureOff:]) != bootSignatureValue {
		return b, FRNoFilesystem
	}

	b.bytesPerSector = binary.LittleEndian.Uint16(sector[offBytesPerSector:])
	b.sectorsPerCluster = sector[offSecPerClus]
	b.reservedSectors = binary.LittleEndian.Uint16(sector[offReservedSecCnt:])
	b.numFATs = sector[offNumFATs]
	b.rootEntryCount = binary.LittleEndian.Uint16(sector[offRootEntCnt:])
	b.totalSectors16 = binary.LittleEndian.Uint16(sector[offTotSec16:])
	b.sectorsPerFAT16 = binary.LittleEndian.Uint16(sector[offFATSz16:])
	b.totalSectors32 = binary.LittleEndian.Uint32(sector[offTotSec32:])

	switch {
	case b.bytesPerSector == 0 || b.bytesPerSector%512 != 0:
		return b, FRNoFilesystem
	case b.sectorsPerCluster == 0:
		return b, FRNoFilesystem
	}

	if b.sectorsPerFAT16 == 0 {
		// FAT32 BPB: sectorsPerFAT lives in the extended 32-bit field.
		b.sectorsPerFAT32 = binary.LittleEndian.Uint32(sector[offFATSz32:])
		b.rootCluster = binary.LittleEndian.Uint32(sector[offRootClus:])
		copy(b.volumeLabel[:], sector[offFAT32VolLab:offFAT32VolLab+11])
	} else {
		copy(b.volumeLabel[:], sector[offFAT1216VolLab:offFAT1216VolLab+11])
	}

	totalSectors := uint32(b.totalSectors16)
	if totalSectors == 0 {
		totalSectors = b.totalSectors32
	}

	fatSize := uint32(b.sectorsPerFAT16)
	if fatSize == 0 {
		fatSize = b.sectorsPerFAT32
	}

	rootDirSectors := (uint32(b.rootEntryCount)*32 + uint32(b.bytesPerSector) - 1) / uint32(b.bytesPerSector)
	dataSectors := totalSectors - (uint32(b.reservedSectors) + uint32(b.numFATs)*fatSize + rootDirSectors)
	clusterCount := dataSectors / uint32(b.sectorsPerCluster)

	switch {
	case clusterCount < 4085:
		b.fsType = FSFAT12
	case clusterCount < 65525:
		b.fsType = FSFAT16
	default:
		b.fsType = FSFAT32
	}
	return b, FROK
}

// Probe inspects the first sector of bd and reports the FAT variant
// found there without mounting. exFAT is detected (by its distinct
// "EXFAT   " OEM signature) but reported as [FSExFAT] without further
// support — mounting an exFAT volume returns FRNoFilesystem.
func Probe(bd BlockDevice) (FSType, Result) {
	buf := make([]byte, bd.BlockSize())
	if err := bd.ReadBlocks(buf, 0, 1); err != nil {
		return FSUnknown, FRDiskErr
	}
	if len(buf) >= 11 && string(buf[3:11]) == "EXFAT   " {
		return FSExFAT, FROK
	}
	b, res := parseBPB(buf)
	if res != FROK {
		return FSUnknown, res
	}
	return b.fsType, FROK
}
