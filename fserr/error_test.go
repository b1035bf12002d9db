package fserr

import (
	"errors"
	"testing"

	"github.com/ardnew/usbfs/fatfs"
)

func TestTranslateFAT(t *testing.T) {
	tests := []struct {
		in   fatfs.Result
		want Kind
	}{
		{fatfs.FRNoFile, KindPathNotFound},
		{fatfs.FRNoPath, KindPathNotFound},
		{fatfs.FRInvalidName, KindInvalidPath},
		{fatfs.FRExist, KindPathAlreadyExists},
		{fatfs.FRInvalidDrive, KindInvalidPath},
		{fatfs.FRInvalidParameter, KindInvalidArgument},
		{fatfs.FRWriteProtected, KindUnsupportedOperation},
		{fatfs.FRDenied, KindUnsupportedOperation},
		{fatfs.FRNotEnabled, KindDriveUnavailable},
		{fatfs.FRNotReady, KindDriveUnavailable},
		{fatfs.FRNoFilesystem, KindDriveInitFailure},
		{fatfs.FRIntErr, KindOpaque},
	}

	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			got := TranslateFAT(tt.in)
			if got.Kind != tt.want {
				t.Errorf("TranslateFAT(%v).Kind = %v, want %v", tt.in, got.Kind, tt.want)
			}
			if !errors.Is(got, got) {
				t.Errorf("TranslateFAT(%v) does not satisfy errors.Is self-match", tt.in)
			}
			if !errors.As(got, new(*Error)) {
				t.Errorf("TranslateFAT(%v) does not satisfy errors.As(*Error)", tt.in)
			}
		})
	}
}

func TestOpaqueCodeOffset(t *testing.T) {
	got := TranslateFAT(fatfs.FRIntErr)
	if got.Code != opaqueBase+int(fatfs.FRIntErr) {
		t.Errorf("opaque Code = %d, want %d", got.Code, opaqueBase+int(fatfs.FRIntErr))
	}
}
