package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"
	"github.com/google/uuid"

	"github.com/ardnew/usbfs/pkg"
)

// Mass-storage bulk-only transport interface class triplet (spec §4.6
// "class=0x08/subclass=0x06/protocol=0x50").
const (
	ClassMassStorage   = 0x08
	SubClassSCSI       = 0x06
	ProtocolBulkOnly   = 0x50
	pollInterval       = 500 * time.Millisecond
)

// DeviceDescriptor is the host-agnostic summary of one candidate USB
// device's identity, independent of any gousb handle lifetime.
type DeviceDescriptor struct {
	Bus, Address int
	VendorID     gousb.ID
	ProductID    gousb.ID
	Class        uint8
	SubClass     uint8
	Protocol     uint8
	InterfaceNum int
}

// Filter selects candidate devices during enumeration, matching spec
// §4.1's enumerate_available(filter).
type Filter func(DeviceDescriptor) bool

// MassStorageFilter accepts only bulk-only mass-storage interfaces,
// the triplet the manager reconciliation loop (spec §4.6) looks for.
func MassStorageFilter(d DeviceDescriptor) bool {
	return d.Class == ClassMassStorage && d.SubClass == SubClassSCSI && d.Protocol == ProtocolBulkOnly
}

// Session is an acquired device handle: claimed interface plus its two
// bulk endpoints, addressed by a uuid so higher layers (drive.Drive) can
// hold a stable reference independent of gousb's own pointer identity.
type Session struct {
	ID     uuid.UUID
	Desc   DeviceDescriptor
	device *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
	inEp   *gousb.InEndpoint
	outEp  *gousb.OutEndpoint
}

// InMaxPacketSize reports the bulk IN endpoint's wMaxPacketSize.
func (s *Session) InMaxPacketSize() int { return s.inEp.Desc.MaxPacketSize }

// OutMaxPacketSize reports the bulk OUT endpoint's wMaxPacketSize.
func (s *Session) OutMaxPacketSize() int { return s.outEp.Desc.MaxPacketSize }

// InEndpointAddress reports the bulk IN endpoint's address, as needed by
// standard endpoint-recipient requests (GET_STATUS, CLEAR_FEATURE).
func (s *Session) InEndpointAddress() uint8 { return uint8(s.inEp.Desc.Address) }

// OutEndpointAddress reports the bulk OUT endpoint's address.
func (s *Session) OutEndpointAddress() uint8 { return uint8(s.outEp.Desc.Address) }

// Transport owns the libusb context and tracks every acquired [Session],
// mirroring spec §4.1's "device handle abstraction over raw transport".
// It also doubles as the manager's wake source: every poll tick that
// changes the set of enumerated devices (an arrival or a removal, with
// no filter applied) fires both availEvent and stateEvent.
type Transport struct {
	ctx *gousb.Context

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	known    map[string]DeviceDescriptor // "bus:addr" -> last seen descriptor

	availEvent  chan struct{}
	stateEvent  chan struct{}
	exitEvent   chan struct{}
	exitOnce    sync.Once
	pollCancel  context.CancelFunc
}

// Open starts a new Transport and its background enumeration poller.
// gousb does not expose libusb's native hotplug callback through a
// portable surface this package can depend on without platform build
// tags, so arrival/removal is detected by periodic re-enumeration — the
// same polling shape host/hal/linux's poller used for raw epoll, just
// without the raw ioctl layer underneath it.
func Open(ctx context.Context) *Transport {
	usbCtx := gousb.NewContext()
	pollCtx, cancel := context.WithCancel(ctx)

	t := &Transport{
		ctx:        usbCtx,
		sessions:   make(map[uuid.UUID]*Session),
		known:      make(map[string]DeviceDescriptor),
		availEvent: make(chan struct{}, 1),
		stateEvent: make(chan struct{}, 1),
		exitEvent:  make(chan struct{}),
		pollCancel: cancel,
	}
	go t.pollLoop(pollCtx)
	return t
}

// Close tears down every open session and the libusb context.
func (t *Transport) Close() {
	t.exitOnce.Do(func() { close(t.exitEvent) })
	t.pollCancel()

	t.mu.Lock()
	sessions := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		sessions = append(sessions, s)
	}
	t.mu.Unlock()

	for _, s := range sessions {
		t.Release(s.ID)
	}
	t.ctx.Close()
}

// InterfaceAvailableEvent returns the channel that fires when a poll
// observes any change in the set of devices on the bus, an arrival or
// a removal. The poll applies no filter; filtering happens in the
// caller after waking, as spec §4.1 describes.
func (t *Transport) InterfaceAvailableEvent() <-chan struct{} { return t.availEvent }

// InterfaceStateChangeEvent fires on the same poll-observed changes as
// [Transport.InterfaceAvailableEvent]: any device appearing or
// disappearing, whether or not it backs an acquired session.
func (t *Transport) InterfaceStateChangeEvent() <-chan struct{} { return t.stateEvent }

// ExitEvent is the manual-reset shutdown signal: closed exactly once by
// Close, so every waiter unblocks.
func (t *Transport) ExitEvent() <-chan struct{} { return t.exitEvent }

func (t *Transport) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.pollOnce()
		}
	}
}

func (t *Transport) pollOnce() {
	descs, err := t.EnumerateAvailable(nil)
	if err != nil {
		pkg.LogWarn(pkg.ComponentTransport, "enumeration poll failed", "error", err)
		return
	}

	t.mu.Lock()
	seen := make(map[string]DeviceDescriptor, len(descs))
	changed := false
	for _, d := range descs {
		key := fmt.Sprintf("%d:%d", d.Bus, d.Address)
		seen[key] = d
		if _, ok := t.known[key]; !ok {
			changed = true
		}
	}
	for key := range t.known {
		if _, ok := seen[key]; !ok {
			changed = true
		}
	}
	t.known = seen
	t.mu.Unlock()

	if changed {
		nonBlockingSend(t.availEvent)
		nonBlockingSend(t.stateEvent)
	}
}

func nonBlockingSend(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// EnumerateAvailable lists every device interface matching filter (nil
// accepts everything), one entry per alternate setting, including
// interfaces that are currently acquired.
func (t *Transport) EnumerateAvailable(filter Filter) ([]DeviceDescriptor, error) {
	var out []DeviceDescriptor
	_, err := t.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		for _, cfg := range desc.Configs {
			for _, intf := range cfg.Interfaces {
				for _, alt := range intf.AltSettings {
					d := DeviceDescriptor{
						Bus:          desc.Bus,
						Address:      desc.Address,
						VendorID:     desc.Vendor,
						ProductID:    desc.Product,
						Class:        uint8(alt.Class),
						SubClass:     uint8(alt.SubClass),
						Protocol:     uint8(alt.Protocol),
						InterfaceNum: intf.Number,
					}
					if filter == nil || filter(d) {
						out = append(out, d)
					}
				}
			}
		}
		return false // never actually open here; this is a descriptor-only scan
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EnumerateAcquired lists the descriptors of every currently-open
// session.
func (t *Transport) EnumerateAcquired() []DeviceDescriptor {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]DeviceDescriptor, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s.Desc)
	}
	return out
}

// Acquire opens desc's device, selects its configuration, claims the
// named interface, and opens its two bulk endpoints, returning a
// [Session] handle. Endpoint addresses are discovered from the
// interface's bulk IN and OUT endpoints; the endpoint map is unordered,
// so when an interface has more than one bulk endpoint of a direction,
// which one is used is not defined.
func (t *Transport) Acquire(desc DeviceDescriptor) (*Session, error) {
	devs, err := t.ctx.OpenDevices(func(d *gousb.DeviceDesc) bool {
		return d.Bus == desc.Bus && d.Address == desc.Address
	})
	if err != nil || len(devs) == 0 {
		return nil, pkg.ErrNoDevice
	}
	opened := devs[0]

	cfgNum, err := opened.ActiveConfigNum()
	if err != nil {
		cfgNum = 1
	}
	cfg, err := opened.Config(cfgNum)
	if err != nil {
		opened.Close()
		return nil, fmt.Errorf("transport: set config: %w", err)
	}

	intf, err := cfg.Interface(desc.InterfaceNum, 0)
	if err != nil {
		cfg.Close()
		opened.Close()
		return nil, fmt.Errorf("transport: claim interface: %w", err)
	}

	var inAddr, outAddr gousb.EndpointAddress
	for addr, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn {
			inAddr = addr
		} else {
			outAddr = addr
		}
	}
	inEp, err := intf.InEndpoint(int(inAddr))
	if err != nil {
		intf.Close()
		cfg.Close()
		opened.Close()
		return nil, fmt.Errorf("transport: open IN endpoint: %w", err)
	}
	outEp, err := intf.OutEndpoint(int(outAddr))
	if err != nil {
		intf.Close()
		cfg.Close()
		opened.Close()
		return nil, fmt.Errorf("transport: open OUT endpoint: %w", err)
	}

	s := &Session{
		ID:     uuid.New(),
		Desc:   desc,
		device: opened,
		config: cfg,
		intf:   intf,
		inEp:   inEp,
		outEp:  outEp,
	}

	t.mu.Lock()
	t.sessions[s.ID] = s
	t.mu.Unlock()

	pkg.LogInfo(pkg.ComponentTransport, "interface acquired",
		"bus", desc.Bus, "address", desc.Address, "interface", desc.InterfaceNum)
	return s, nil
}

// Release tears down a session's interface claim and device handle.
func (t *Transport) Release(id uuid.UUID) {
	t.mu.Lock()
	s, ok := t.sessions[id]
	if ok {
		delete(t.sessions, id)
	}
	t.mu.Unlock()
	if !ok {
		return
	}

	s.intf.Close()
	s.config.Close()
	s.device.Close()
	pkg.LogInfo(pkg.ComponentTransport, "interface released",
		"bus", s.Desc.Bus, "address", s.Desc.Address)
}

// ControlTransfer issues a control transfer on the session's device,
// matching spec §4.1's control_transfer primitive (used for
// GET_STATUS/CLEAR_FEATURE and the class-specific MSC requests in
// component C2).
func (t *Transport) ControlTransfer(ctx context.Context, s *Session, requestType, request uint8, value, index uint16, data []byte) (int, error) {
	return s.device.Control(requestType, request, value, index, data)
}

// BulkTransfer performs a blocking bulk transfer; in is true for an IN
// (device-to-host) transfer. Endpoint halt is not cleared automatically
// on failure — callers needing the clear_halt-on-stall contract (spec
// §4.2's reset-recovery) call [Transport.ClearHalt] explicitly so the
// retry policy stays visible at the msc layer instead of hidden here.
func (t *Transport) BulkTransfer(ctx context.Context, s *Session, in bool, buf []byte) (int, error) {
	if in {
		return s.inEp.ReadContext(ctx, buf)
	}
	return s.outEp.Write(buf)
}

// ClearHalt clears a stalled endpoint via CLEAR_FEATURE(ENDPOINT_HALT),
// the USB standard request spec §4.2 names directly.
func (t *Transport) ClearHalt(s *Session, endpointIn bool) error {
	addr := s.outEp.Desc.Address
	if endpointIn {
		addr = s.inEp.Desc.Address
	}
	const (
		reqClearFeature  = 0x01
		featEndpointHalt = 0x00
		recipientEP      = 0x02
	)
	_, err := s.device.Control(recipientEP, reqClearFeature, featEndpointHalt, uint16(addr), nil)
	return err
}

// AlignedAlloc allocates a buffer sized as a multiple of the endpoint's
// max packet size. Under gousb/libusb there is no DMA-alignment
// requirement the way there is on a bare-metal host controller driver,
// so this is a thin shape-compatibility shim kept for API-contract
// fidelity with spec §4.1 rather than a real hardware necessity.
func AlignedAlloc(multiplier int, unit int) []byte {
	if multiplier <= 0 {
		multiplier = 1
	}
	return make([]byte, multiplier*unit)
}
