// Package fsservice implements FsService (spec §4.7, component C7): the
// RPC-facing file-system surface exposed per mounted drive. Every
// operation follows the same three steps — resolve
// the drive under the manager's lock, run the FAT primitive under that
// drive's fs_lock, and translate any non-OK status through [fserr]
// before it reaches the caller. The wire/dispatch framework itself is
// treated as external to this package, matching spec.md's framing of
// the RPC layer as an abstract collaborator; FsService exposes a plain
// Go API that such a framework would sit in front of.
package fsservice
