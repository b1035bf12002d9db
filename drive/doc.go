// Package drive is the per-device aggregate (spec §4.5, component C5):
// one [Drive] binds an acquired [transport.Session]'s LUN to its mounted
// [fatfs.Volume], and owns the fs_lock that serializes every FAT
// operation against that volume.
//
// Slot allocation itself is [manager]'s responsibility (spec §3
// invariants 2-3): Mount takes an already-claimed slot number and
// reports failure back up rather than releasing the slot itself, since
// only the DriveManager's slot_used table knows whether that release is
// safe to do concurrently with a reconciliation pass.
package drive
