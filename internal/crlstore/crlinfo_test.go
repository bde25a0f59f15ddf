package crlstore

import (
	"math/big"
	"testing"
	"time"
)

func TestU_CrlInfo_EncodeDecode_FullCRL(t *testing.T) {
	want := CrlInfo{
		CrlNumber:  big.NewInt(42),
		ThisUpdate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		NextUpdate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		CrlID:      []byte{0x30, 0x03, 0x02, 0x01, 0x2A},
	}

	got, err := DecodeCrlInfo(want.Encode())
	if err != nil {
		t.Fatalf("DecodeCrlInfo() error = %v", err)
	}
	if got.BaseCrlNumber != nil {
		t.Errorf("BaseCrlNumber = %v, want nil for a full CRL", got.BaseCrlNumber)
	}
	if got.CrlNumber.Cmp(want.CrlNumber) != 0 {
		t.Errorf("CrlNumber = %v, want %v", got.CrlNumber, want.CrlNumber)
	}
	if !got.ThisUpdate.Equal(want.ThisUpdate) {
		t.Errorf("ThisUpdate = %v, want %v", got.ThisUpdate, want.ThisUpdate)
	}
	if string(got.CrlID) != string(want.CrlID) {
		t.Errorf("CrlID = %x, want %x", got.CrlID, want.CrlID)
	}
}

func TestU_CrlInfo_EncodeDecode_DeltaCRL(t *testing.T) {
	want := CrlInfo{
		CrlNumber:     big.NewInt(43),
		BaseCrlNumber: big.NewInt(42),
		ThisUpdate:    time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		NextUpdate:    time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC),
		CrlID:         []byte{0x30, 0x00},
	}

	got, err := DecodeCrlInfo(want.Encode())
	if err != nil {
		t.Fatalf("DecodeCrlInfo() error = %v", err)
	}
	if got.BaseCrlNumber == nil || got.BaseCrlNumber.Cmp(want.BaseCrlNumber) != 0 {
		t.Errorf("BaseCrlNumber = %v, want %v", got.BaseCrlNumber, want.BaseCrlNumber)
	}
}

func TestU_CrlInfo_Decode_Malformed(t *testing.T) {
	cases := []string{
		"",
		"only|two",
		"notHex|   |2024-01-01T00:00:00Z|2024-02-01T00:00:00Z|AAAA",
	}
	for _, s := range cases {
		if _, err := DecodeCrlInfo(s); err == nil {
			t.Errorf("DecodeCrlInfo(%q) should have failed", s)
		}
	}
}

func TestU_CertRevocationInfo_EncodeDecode_WithInvalidityTime(t *testing.T) {
	inval := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	want := CertRevocationInfo{
		Reason:         1,
		RevocationTime: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		InvalidityTime: &inval,
	}

	got, err := DecodeCertRevocationInfo(want.Encode())
	if err != nil {
		t.Fatalf("DecodeCertRevocationInfo() error = %v", err)
	}
	if got.Reason != want.Reason {
		t.Errorf("Reason = %d, want %d", got.Reason, want.Reason)
	}
	if got.InvalidityTime == nil || !got.InvalidityTime.Equal(*want.InvalidityTime) {
		t.Errorf("InvalidityTime = %v, want %v", got.InvalidityTime, want.InvalidityTime)
	}
}

func TestU_CertRevocationInfo_EncodeDecode_NoInvalidityTime(t *testing.T) {
	want := CertRevocationInfo{
		Reason:         0,
		RevocationTime: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	got, err := DecodeCertRevocationInfo(want.Encode())
	if err != nil {
		t.Fatalf("DecodeCertRevocationInfo() error = %v", err)
	}
	if got.InvalidityTime != nil {
		t.Errorf("InvalidityTime = %v, want nil", got.InvalidityTime)
	}
}
