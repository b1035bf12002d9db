package fserr

import (
	"fmt"

	"github.com/ardnew/usbfs/fatfs"
)

// Kind is the client-visible error taxonomy spec.md §7 requires every
// FsService operation to report through, independent of which FAT status
// code produced it.
type Kind int

const (
	KindInvalidDriveInterfaceId Kind = iota
	KindDriveUnavailable
	KindDriveInitFailure
	KindPathNotFound
	KindPathAlreadyExists
	KindInvalidPath
	KindInvalidArgument
	KindUnsupportedOperation
	KindNotImplemented
	// KindOpaque carries a FAT status code the taxonomy has no dedicated
	// bucket for, numerically offset so it never collides with the named
	// kinds above (spec §7: "unmapped codes surface as an opaque,
	// numerically offset code").
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindInvalidDriveInterfaceId:
		return "invalid_drive_interface_id"
	case KindDriveUnavailable:
		return "drive_unavailable"
	case KindDriveInitFailure:
		return "drive_init_failure"
	case KindPathNotFound:
		return "path_not_found"
	case KindPathAlreadyExists:
		return "path_already_exists"
	case KindInvalidPath:
		return "invalid_path"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindUnsupportedOperation:
		return "unsupported_operation"
	case KindNotImplemented:
		return "not_implemented"
	default:
		return "opaque"
	}
}

// opaqueBase is added to a raw fatfs.Result so an opaque Code never
// overlaps with the small integer values a caller might mistake for a
// named Kind.
const opaqueBase = 1000

// Error is the error type FsService operations return for FAT, drive
// lookup and sub-object failures; a session-limit wait that ends with
// the context's error and a failed manager Poll come back as plain
// errors instead. It wraps an
// optional cause while always exposing a stable Kind for callers to
// switch on.
type Error struct {
	Kind Kind
	Code int // set (Kind==KindOpaque) to opaqueBase+int(fatfs.Result)
	Err  error
}

func (e *Error) Error() string {
	if e.Kind == KindOpaque {
		return fmt.Sprintf("usbfs: opaque fs error (code %d)", e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("usbfs: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("usbfs: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(k Kind, cause error) *Error { return &Error{Kind: k, Err: cause} }

func InvalidDriveInterfaceID(cause error) *Error { return newErr(KindInvalidDriveInterfaceId, cause) }
func DriveUnavailable(cause error) *Error        { return newErr(KindDriveUnavailable, cause) }
func DriveInitFailure(cause error) *Error        { return newErr(KindDriveInitFailure, cause) }
func PathNotFound(cause error) *Error            { return newErr(KindPathNotFound, cause) }
func PathAlreadyExists(cause error) *Error       { return newErr(KindPathAlreadyExists, cause) }
func InvalidPath(cause error) *Error             { return newErr(KindInvalidPath, cause) }
func InvalidArgument(cause error) *Error         { return newErr(KindInvalidArgument, cause) }
func UnsupportedOperation(cause error) *Error    { return newErr(KindUnsupportedOperation, cause) }
func NotImplemented(cause error) *Error          { return newErr(KindNotImplemented, cause) }

// TranslateFAT maps a fatfs.Result into the client-visible taxonomy,
// following the table spec.md §7 lays out. res==fatfs.FROK is not an
// error; callers should check that before invoking TranslateFAT.
func TranslateFAT(res fatfs.Result) *Error {
	switch res {
	case fatfs.FRNoFile, fatfs.FRNoPath:
		return &Error{Kind: KindPathNotFound, Err: res}
	case fatfs.FRInvalidName:
		return &Error{Kind: KindInvalidPath, Err: res}
	case fatfs.FRExist:
		return &Error{Kind: KindPathAlreadyExists, Err: res}
	case fatfs.FRInvalidDrive:
		return &Error{Kind: KindInvalidPath, Err: res}
	case fatfs.FRInvalidParameter:
		return &Error{Kind: KindInvalidArgument, Err: res}
	case fatfs.FRWriteProtected, fatfs.FRDenied:
		return &Error{Kind: KindUnsupportedOperation, Err: res}
	case fatfs.FRNotEnabled, fatfs.FRNotReady:
		return &Error{Kind: KindDriveUnavailable, Err: res}
	case fatfs.FRNoFilesystem:
		return &Error{Kind: KindDriveInitFailure, Err: res}
	default:
		return &Error{Kind: KindOpaque, Code: opaqueBase + int(res), Err: res}
	}
}
