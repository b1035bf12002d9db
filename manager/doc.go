// Package manager implements the DriveManager (spec §4.6, component
// C6): the reconciliation loop that discovers mass-storage interfaces,
// mounts their LUNs into [fatfs] volumes behind numbered slots, and
// tears down drives whose devices have disappeared.
//
// The three-wake-source reconciler loop (interface arrival, interface
// state change, exit) and the manual-reset exit event follow the
// close(done)-broadcasts-to-every-waiter idiom the teacher's epoll-based
// Linux poller used for its own shutdown signal, generalized here to a
// plain channel since there is no raw file descriptor underneath gousb.
//
// names_linux.go adapts the teacher's pkg/linux/usbid database (used in
// its hid-monitor example to print friendly device names) to annotate
// this package's own acquisition logs with vendor/product names when
// one is available.
package manager
