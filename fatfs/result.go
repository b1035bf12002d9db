package fatfs

// Result mirrors the FAT library status-code vocabulary named directly by
// spec.md §7 (FR_OK, FR_NO_FILE, ...). Operations on [Volume] and [File]
// return a Result alongside (or instead of) a Go error so callers
// upstream (the fserr translation layer) can map exactly the codes the
// specification enumerates.
type Result uint8

// FAT library result codes: the full FatFs set, of which this package
// itself produces only some.
const (
	FROK                  Result = iota // Succeeded
	FRDiskErr                           // A hard error occurred in the low level disk I/O
	FRIntErr                            // Assertion failed / internal inconsistency
	FRNotReady                          // The physical drive cannot work
	FRNoFile                            // Could not find the file
	FRNoPath                            // Could not find the path
	FRInvalidName                       // The path name format is invalid
	FRDenied                            // Access denied due to prohibited access or directory full
	FRExist                             // Access denied due to prohibited access (file/dir already exists)
	FRInvalidObject                     // The file/directory object is invalid
	FRWriteProtected                    // The physical drive is write protected
	FRInvalidDrive                      // The logical drive number is invalid
	FRNotEnabled                        // The volume has not been mounted
	FRNoFilesystem                      // There is no valid FAT volume
	FRMkfsAborted                       // Aborted during mkfs
	FRTimeout                           // Could not get a grant to access the volume in time
	FRLocked                            // The operation is rejected by file sharing control
	FRNotEnoughCore                     // Not enough memory for the operation
	FRTooManyOpenFiles                  // Too many open files
	FRInvalidParameter                  // Given parameter is invalid
)

// String returns the FatFs-style identifier for the result code.
func (r Result) String() string {
	switch r {
	case FROK:
		return "FR_OK"
	case FRDiskErr:
		return "FR_DISK_ERR"
	case FRIntErr:
		return "FR_INT_ERR"
	case FRNotReady:
		return "FR_NOT_READY"
	case FRNoFile:
		return "FR_NO_FILE"
	case FRNoPath:
		return "FR_NO_PATH"
	case FRInvalidName:
		return "FR_INVALID_NAME"
	case FRDenied:
		return "FR_DENIED"
	case FRExist:
		return "FR_EXIST"
	case FRInvalidObject:
		return "FR_INVALID_OBJECT"
	case FRWriteProtected:
		return "FR_WRITE_PROTECTED"
	case FRInvalidDrive:
		return "FR_INVALID_DRIVE"
	case FRNotEnabled:
		return "FR_NOT_ENABLED"
	case FRNoFilesystem:
		return "FR_NO_FILESYSTEM"
	case FRMkfsAborted:
		return "FR_MKFS_ABORTED"
	case FRTimeout:
		return "FR_TIMEOUT"
	case FRLocked:
		return "FR_LOCKED"
	case FRNotEnoughCore:
		return "FR_NOT_ENOUGH_CORE"
	case FRTooManyOpenFiles:
		return "FR_TOO_MANY_OPEN_FILES"
	case FRInvalidParameter:
		return "FR_INVALID_PARAMETER"
	default:
		return "FR_UNKNOWN"
	}
}

// Error lets a bare Result satisfy the error interface so FAT-internal
// code can return it directly with `return nil, r` style calls when
// only the status matters.
func (r Result) Error() string { return r.String() }

// FSType identifies the on-disk FAT format, matching the wire-visible
// byte returned by FsService.GetDriveFileSystemType (spec §4.7, §8
// scenario 2: FAT32 reports 3).
type FSType uint8

// Filesystem type constants, ordered to match the historical FatFs values
// used by the scenarios in spec.md §8.
const (
	FSUnknown FSType = iota
	FSFAT12
	FSFAT16
	FSFAT32
	FSExFAT
)

func (t FSType) String() string {
	switch t {
	case FSFAT12:
		return "FAT12"
	case FSFAT16:
		return "FAT16"
	case FSFAT32:
		return "FAT32"
	case FSExFAT:
		return "exFAT"
	default:
		return "unknown"
	}
}
