//go:build !linux

package manager

// friendlyName has no usb.ids database to consult outside Linux; callers
// always get empty names back.
func friendlyName(vid, pid uint16) (vendor, product string) { return "", "" }
