package scsi

import "testing"

func TestTrimASCII(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{[]byte("SanDisk "), "SanDisk"},
		{[]byte("Ultra\x00\x00\x00"), "Ultra"},
		{[]byte("        "), ""},
		{[]byte("NOPAD"), "NOPAD"},
	}
	for _, tt := range tests {
		if got := trimASCII(tt.in); got != tt.want {
			t.Errorf("trimASCII(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDeviceOKStartsFalse(t *testing.T) {
	d := New(nil, nil, 0)
	if d.OK() {
		t.Error("OK() = true before any TestUnitReady, want false")
	}
}

func TestDeviceDefaultMaxTransferBlocks(t *testing.T) {
	d := New(nil, nil, 0)
	if d.maxTransferBlocks != defaultMaxTransferBlocks {
		t.Errorf("maxTransferBlocks = %d, want %d", d.maxTransferBlocks, defaultMaxTransferBlocks)
	}
}
