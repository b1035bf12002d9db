// Package transport is the USB device transport adapter (spec §4.1,
// component C1). It wraps github.com/google/gousb — grounded on
// guiperry-HASHER's internal/driver/device/usb_device.go — to give the
// rest of the bridge a host-centric view of device arrival/removal,
// interface claim/release, and control/bulk transfers, independent of
// any particular platform's raw USB ioctl surface.
package transport
