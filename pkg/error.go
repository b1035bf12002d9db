package pkg

import "errors"

// USB protocol errors. This set is scoped to what the host-side
// transport/msc layers (C1/C2) can actually produce; the device- and
// HAL-side conditions the teacher's original copy of this file
// enumerated (isochronous bandwidth, descriptor parsing, endpoint
// configuration) have no caller left in this bridge, since there is
// no device-side stack here to hit them — see DESIGN.md.
var (
	// ErrStall indicates an endpoint stall condition, surfaced when a
	// bulk transfer fails mid CBW/data/CSW phase ([msc.Transactor.attempt]),
	// when GET_STATUS confirms a halted endpoint during reset
	// recovery ([msc.Transactor.ClearHalt]), or when a command's CSW
	// still reports a phase error after reset recovery.
	ErrStall = errors.New("endpoint stalled")

	// ErrTimeout indicates a transfer timeout (the calling context's
	// deadline expired mid-transfer).
	ErrTimeout = errors.New("transfer timeout")

	// ErrCancelled indicates a cancelled transfer (the calling context
	// was cancelled mid-transfer).
	ErrCancelled = errors.New("transfer cancelled")

	// ErrProtocol indicates a BOT protocol error: a malformed or
	// mistagged CSW, or a command whose CSW still reports failure after
	// a full reset recovery (a phase error reports ErrStall instead).
	ErrProtocol = errors.New("protocol error")

	// ErrNoDevice indicates the device is not present.
	ErrNoDevice = errors.New("device not present")

	// ErrReset indicates the Bulk-Only Mass Storage Reset recovery
	// request itself could not be delivered.
	ErrReset = errors.New("bus reset")
)

// TransferStatus represents the completion status of a USB transfer,
// as classified at the BOT layer (spec §4.2).
type TransferStatus int

// Transfer status values.
const (
	TransferStatusSuccess   TransferStatus = iota // Transfer completed successfully
	TransferStatusError                           // Transfer failed with error
	TransferStatusStall                           // Endpoint stalled
	TransferStatusTimeout                         // Transfer timed out
	TransferStatusCancelled                       // Transfer was cancelled
)

// String returns a string representation of the transfer status.
func (s TransferStatus) String() string {
	switch s {
	case TransferStatusSuccess:
		return "success"
	case TransferStatusError:
		return "error"
	case TransferStatusStall:
		return "stall"
	case TransferStatusTimeout:
		return "timeout"
	case TransferStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error returns the corresponding error for the transfer status.
func (s TransferStatus) Error() error {
	switch s {
	case TransferStatusSuccess:
		return nil
	case TransferStatusStall:
		return ErrStall
	case TransferStatusTimeout:
		return ErrTimeout
	case TransferStatusCancelled:
		return ErrCancelled
	default:
		return ErrProtocol
	}
}
