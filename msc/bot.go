package msc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ardnew/usbfs/pkg"
	"github.com/ardnew/usbfs/transport"
)

// Direction describes which way the data phase of a transaction moves.
type Direction uint8

const (
	DirNone Direction = iota
	DirIn
	DirOut
)

// Result is what [Transactor.Transact] reports back to the SCSI layer.
type Result struct {
	Transferred int
	Residue     uint32
	Status      uint8
}

// Transactor drives the Bulk-Only Transport state machine over a
// [transport.Transport], implementing spec §4.2's transact(), reset
// recovery, and GetMaxLUN.
type Transactor struct {
	t    *transport.Transport
	mu   sync.Mutex
	tags map[uuid.UUID]*uint32
}

// NewTransactor wraps t.
func NewTransactor(t *transport.Transport) *Transactor {
	return &Transactor{t: t, tags: make(map[uuid.UUID]*uint32)}
}

func (x *Transactor) nextTag(id uuid.UUID) uint32 {
	x.mu.Lock()
	ctr, ok := x.tags[id]
	if !ok {
		ctr = new(uint32)
		x.tags[id] = ctr
	}
	x.mu.Unlock()
	return atomic.AddUint32(ctr, 1)
}

// Transact runs one full CBW -> data phase -> CSW cycle, retrying once
// on a failed/phase-error CSW and escalating to [Transactor.ResetRecovery]
// if the retry also fails, per spec §4.2's transact() contract. Callers
// (component C3) must serialize calls for a given session externally —
// Transactor does not take the drive's fs_lock itself.
func (x *Transactor) Transact(ctx context.Context, s *transport.Session, lun uint8, cb []byte, dir Direction, data []byte) (Result, error) {
	res, err := x.attempt(ctx, s, lun, cb, dir, data)
	if err == nil && res.Status == StatusPassed {
		return res, nil
	}

	pkg.LogWarn(pkg.ComponentMSC, "transaction failed, retrying once",
		"status", res.Status, "error", err)

	res, err = x.attempt(ctx, s, lun, cb, dir, data)
	if err == nil && res.Status == StatusPassed {
		return res, nil
	}

	pkg.LogWarn(pkg.ComponentMSC, "retry failed, escalating to reset recovery", "error", err)
	if rerr := x.ResetRecovery(ctx, s); rerr != nil {
		return res, fmt.Errorf("msc: reset recovery after failed transaction: %w", rerr)
	}
	if err != nil {
		return res, err
	}
	ts := cswTransferStatus(res.Status)
	return res, fmt.Errorf("msc: command failed after reset recovery: %w (status=%s)", ts.Error(), ts)
}

// cswTransferStatus maps a CSW status byte to the corresponding
// [pkg.TransferStatus], so a command that still fails after a full
// reset recovery reports through the same sentinel taxonomy as a
// transport-level stall. A BOT phase error forces the same reset
// recovery a stalled endpoint does, so it is classified as a stall
// here rather than added as its own taxonomy entry.
func cswTransferStatus(status uint8) pkg.TransferStatus {
	switch status {
	case StatusPassed:
		return pkg.TransferStatusSuccess
	case StatusPhaseError:
		return pkg.TransferStatusStall
	default:
		return pkg.TransferStatusError
	}
}

// classifyTransferErr distinguishes a context timeout/cancellation from
// a plain stalled-pipe failure, so [Transactor.attempt]'s bulk/control
// transfer errors carry the right [pkg.TransferStatus] sentinel for
// errors.Is checks further up the stack.
func classifyTransferErr(ctx context.Context) pkg.TransferStatus {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return pkg.TransferStatusTimeout
	case errors.Is(ctx.Err(), context.Canceled):
		return pkg.TransferStatusCancelled
	default:
		return pkg.TransferStatusStall
	}
}

func (x *Transactor) attempt(ctx context.Context, s *transport.Session, lun uint8, cb []byte, dir Direction, data []byte) (Result, error) {
	if len(cb) > 16 {
		return Result{}, fmt.Errorf("msc: command block too long: %d bytes", len(cb))
	}

	tag := x.nextTag(s.ID)
	c := cbw{tag: tag, lun: lun, cbLength: uint8(len(cb))}
	copy(c.cb[:], cb)
	if dir == DirIn {
		c.flags = cbwFlagDataIn
	}
	if dir != DirNone {
		c.dataTransferLength = uint32(len(data))
	}

	if _, err := x.t.BulkTransfer(ctx, s, false, c.marshal()); err != nil {
		ts := classifyTransferErr(ctx)
		return Result{}, fmt.Errorf("msc: write CBW: %w: %w", ts.Error(), err)
	}

	transferred := 0
	if dir == DirIn && len(data) > 0 {
		n, err := x.t.BulkTransfer(ctx, s, true, data)
		if err != nil {
			ts := classifyTransferErr(ctx)
			return Result{}, fmt.Errorf("msc: read data phase: %w: %w", ts.Error(), err)
		}
		transferred = n
	} else if dir == DirOut && len(data) > 0 {
		n, err := x.t.BulkTransfer(ctx, s, false, data)
		if err != nil {
			ts := classifyTransferErr(ctx)
			return Result{}, fmt.Errorf("msc: write data phase: %w: %w", ts.Error(), err)
		}
		transferred = n
	}

	cswBuf := make([]byte, cswSize)
	if _, err := x.t.BulkTransfer(ctx, s, true, cswBuf); err != nil {
		ts := classifyTransferErr(ctx)
		return Result{}, fmt.Errorf("msc: read CSW: %w: %w", ts.Error(), err)
	}
	parsed, ok := unmarshalCSW(cswBuf)
	if !ok {
		return Result{}, fmt.Errorf("msc: malformed CSW: %w", pkg.ErrProtocol)
	}
	if parsed.tag != tag {
		return Result{}, fmt.Errorf("msc: CSW tag mismatch: got %d, want %d: %w", parsed.tag, tag, pkg.ErrProtocol)
	}

	return Result{Transferred: transferred, Residue: parsed.dataResidue, Status: parsed.status}, nil
}

// GetMaxLUN issues the class-specific Get Max LUN request (bRequest
// 0xFE), returning the highest valid LUN index (0 if the device
// doesn't support multiple LUNs and stalls the request, per spec §4.6).
func (x *Transactor) GetMaxLUN(ctx context.Context, s *transport.Session) (uint8, error) {
	const (
		reqTypeClassInterfaceIn = 0xA1
		reqGetMaxLUN            = 0xFE
	)
	buf := make([]byte, 1)
	n, err := x.t.ControlTransfer(ctx, s, reqTypeClassInterfaceIn, reqGetMaxLUN, 0, 0, buf)
	if err != nil || n < 1 {
		return 0, nil // STALL on this request means "single LUN"
	}
	return buf[0], nil
}

// ResetRecovery performs the class-specific Bulk-Only Mass Storage Reset
// followed by clearing halt on both bulk endpoints, spec §4.2's recovery
// path after a failed retry.
func (x *Transactor) ResetRecovery(ctx context.Context, s *transport.Session) error {
	const (
		reqTypeClassInterfaceOut = 0x21
		reqBOTReset              = 0xFF
	)
	if _, err := x.t.ControlTransfer(ctx, s, reqTypeClassInterfaceOut, reqBOTReset, 0, 0, nil); err != nil {
		return fmt.Errorf("msc: bulk-only reset: %w: %w", pkg.ErrReset, err)
	}
	if err := x.ClearHalt(ctx, s, true); err != nil {
		return err
	}
	if err := x.ClearHalt(ctx, s, false); err != nil {
		return err
	}
	pkg.LogInfo(pkg.ComponentMSC, "reset recovery complete")
	return nil
}

// ClearHalt implements spec §4.2's GET_STATUS-then-conditional-
// CLEAR_FEATURE policy: it only issues CLEAR_FEATURE(ENDPOINT_HALT) when
// GET_STATUS actually reports the halt bit set, avoiding a gratuitous
// control transfer on an endpoint that was never stalled.
func (x *Transactor) ClearHalt(ctx context.Context, s *transport.Session, endpointIn bool) error {
	const (
		reqTypeEndpointIn = 0x82
		reqGetStatus      = 0x00
	)
	addr := uint16(s.OutEndpointAddress())
	if endpointIn {
		addr = uint16(s.InEndpointAddress())
	}

	status := make([]byte, 2)
	if _, err := x.t.ControlTransfer(ctx, s, reqTypeEndpointIn, reqGetStatus, 0, addr, status); err != nil {
		return fmt.Errorf("msc: get endpoint status: %w: %w", pkg.ErrProtocol, err)
	}
	if status[0]&0x01 == 0 {
		return nil // not halted
	}
	pkg.LogWarn(pkg.ComponentMSC, "endpoint halted", "in", endpointIn, "error", pkg.ErrStall)
	if err := x.t.ClearHalt(s, endpointIn); err != nil {
		return fmt.Errorf("msc: clear halt: %w: %w", pkg.ErrStall, err)
	}
	return nil
}
