//go:build linux

package manager

import "github.com/ardnew/usbfs/pkg/linux/usbid"

// idDB is a best-effort vendor/product name lookup used only to enrich
// log lines; a failed or missing database load just means empty names.
var idDB = usbid.New()

func init() { idDB.Load() }

// friendlyName resolves vid/pid to human-readable vendor and product
// names, or empty strings if the local usb.ids database is unavailable.
func friendlyName(vid, pid uint16) (vendor, product string) {
	return idDB.LookupVendor(vid), idDB.LookupProduct(vid, pid)
}
