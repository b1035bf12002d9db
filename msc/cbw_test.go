package msc

import (
	"encoding/binary"
	"testing"
)

func TestCBWMarshal(t *testing.T) {
	c := cbw{tag: 7, dataTransferLength: 36, flags: cbwFlagDataIn, lun: 2, cbLength: 6}
	c.cb[0] = 0x12 // INQUIRY

	buf := c.marshal()
	if len(buf) != cbwSize {
		t.Fatalf("marshal length = %d, want %d", len(buf), cbwSize)
	}
	if got := binary.LittleEndian.Uint32(buf[0:4]); got != cbwSignature {
		t.Errorf("signature = %#x, want %#x", got, cbwSignature)
	}
	if got := binary.LittleEndian.Uint32(buf[4:8]); got != 7 {
		t.Errorf("tag = %d, want 7", got)
	}
	if got := binary.LittleEndian.Uint32(buf[8:12]); got != 36 {
		t.Errorf("dataTransferLength = %d, want 36", got)
	}
	if buf[12] != cbwFlagDataIn {
		t.Errorf("flags = %#x, want %#x", buf[12], cbwFlagDataIn)
	}
	if buf[13] != 2 {
		t.Errorf("lun = %d, want 2", buf[13])
	}
	if buf[14] != 6 {
		t.Errorf("cbLength = %d, want 6", buf[14])
	}
	if buf[15] != 0x12 {
		t.Errorf("cb[0] = %#x, want 0x12", buf[15])
	}
}

func TestUnmarshalCSW(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		ok   bool
	}{
		{"valid", goodCSW(5, 0, StatusPassed), true},
		{"bad signature", append([]byte{0, 0, 0, 0}, goodCSW(5, 0, StatusPassed)[4:]...), false},
		{"too short", []byte{1, 2, 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := unmarshalCSW(tt.buf)
			if ok != tt.ok {
				t.Errorf("unmarshalCSW() ok = %v, want %v", ok, tt.ok)
			}
		})
	}
}

func goodCSW(tag uint32, residue uint32, status uint8) []byte {
	buf := make([]byte, cswSize)
	binary.LittleEndian.PutUint32(buf[0:4], cswSignature)
	binary.LittleEndian.PutUint32(buf[4:8], tag)
	binary.LittleEndian.PutUint32(buf[8:12], residue)
	buf[12] = status
	return buf
}

func TestUnmarshalCSWFields(t *testing.T) {
	buf := goodCSW(42, 3, StatusFailed)
	got, ok := unmarshalCSW(buf)
	if !ok {
		t.Fatal("unmarshalCSW() ok = false, want true")
	}
	if got.tag != 42 || got.dataResidue != 3 || got.status != StatusFailed {
		t.Errorf("unmarshalCSW() = %+v, want tag=42 residue=3 status=%d", got, StatusFailed)
	}
}
