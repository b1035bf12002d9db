// Package fserr defines the client-visible error taxonomy for the USB
// mass-storage bridge (spec §7) and the translation from FAT library
// status codes into that taxonomy.
package fserr
