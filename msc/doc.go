// Package msc implements the USB Bulk-Only Transport for the mass
// storage class (spec §4.2, component C2): Command Block/Status Wrapper
// framing, LUN discovery, and reset recovery, layered on [transport].
//
// The CBW/CSW field layout and the build-CBW/write-OUT, read-IN-data,
// read-IN-CSW sequence are grounded on other_examples' kevmo314/go-usb
// browse-msc command (CBW/CSW structs and MSCDevice.TestUnitReady/
// Inquiry/ReadCapacity/ReadBlock), adapted from a single hardcoded VID:
// PID target to the hot-pluggable multi-drive transact() contract
// spec.md §4.2 requires.
package msc
