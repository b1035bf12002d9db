// Package fatfs is the FatVolume adapter (spec §4.4, component C4).
//
// The real FAT12/16/32 library is an external collaborator in the
// specification: it pulls sectors through a disk-I/O callback and exposes
// file/directory primitives and volume labels. This package plays that
// role for the bridge: it is a compact FAT12/16/32 volume driver modeled
// on the BlockDevice contract and FS/File/dir shapes of
// other_examples' soypat/fat, and on the FRESULT status-code vocabulary
// (FR_OK, FR_NO_FILE, ...) that spec.md §7 names directly.
//
// Long file names, exFAT read/write, and journaling are out of scope
// (exFAT is detected but not mountable; see [Probe]). These match the
// spec's own Non-goals for the core ("no journaling") and the reduced
// ambition appropriate for a component the specification treats as
// external to the hard engineering problem.
package fatfs
