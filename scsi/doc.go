// Package scsi implements the transparent SCSI command subset the
// bridge needs against a Bulk-Only mass-storage LUN (spec §4.3,
// component C3): TEST UNIT READY spin-up, INQUIRY, READ CAPACITY(10/16),
// and block-granular READ(10)/WRITE(10), built on [msc.Transactor].
//
// Command block layouts follow other_examples' kevmo314/go-usb
// browse-msc command (SCSI opcodes and big-endian CDB field packing);
// the spin-up retry loop and READ CAPACITY(10)-overflow-to-(16)
// fallback follow spec.md §4.3 directly, since no single retrieved
// example exercises a multi-LUN spin-up policy end to end.
package scsi
