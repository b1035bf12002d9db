package transport

import "testing"

func TestMassStorageFilter(t *testing.T) {
	tests := []struct {
		name string
		desc DeviceDescriptor
		want bool
	}{
		{"exact match", DeviceDescriptor{Class: ClassMassStorage, SubClass: SubClassSCSI, Protocol: ProtocolBulkOnly}, true},
		{"wrong class", DeviceDescriptor{Class: 0x03, SubClass: SubClassSCSI, Protocol: ProtocolBulkOnly}, false},
		{"wrong subclass", DeviceDescriptor{Class: ClassMassStorage, SubClass: 0x02, Protocol: ProtocolBulkOnly}, false},
		{"wrong protocol", DeviceDescriptor{Class: ClassMassStorage, SubClass: SubClassSCSI, Protocol: 0x62}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MassStorageFilter(tt.desc); got != tt.want {
				t.Errorf("MassStorageFilter(%+v) = %v, want %v", tt.desc, got, tt.want)
			}
		})
	}
}

func TestAlignedAlloc(t *testing.T) {
	tests := []struct {
		multiplier, unit, want int
	}{
		{4, 512, 2048},
		{0, 512, 512}, // non-positive multiplier clamps to 1
		{1, 64, 64},
	}
	for _, tt := range tests {
		if got := len(AlignedAlloc(tt.multiplier, tt.unit)); got != tt.want {
			t.Errorf("len(AlignedAlloc(%d, %d)) = %d, want %d", tt.multiplier, tt.unit, got, tt.want)
		}
	}
}

func TestNonBlockingSendNeverBlocks(t *testing.T) {
	ch := make(chan struct{}, 1)
	nonBlockingSend(ch)
	nonBlockingSend(ch) // second send must not block on a full buffer
	select {
	case <-ch:
	default:
		t.Fatal("expected one buffered signal")
	}
}
