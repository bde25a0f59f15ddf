package crlstore

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// CrlInfo is the ISSUER.CRL_INFO column: the bookkeeping the import engine
// needs to enforce CRL-number monotonicity and delta-base matching, plus
// the crlID DER embedded into OCSP responses for this issuer.
type CrlInfo struct {
	CrlNumber     *big.Int
	BaseCrlNumber *big.Int // nil for a full CRL
	ThisUpdate    time.Time
	NextUpdate    time.Time
	CrlID         []byte // DER SEQUENCE, see crlimport's crlID builder
}

// Encode renders the record as the single-column text form:
// crlNumber(hex)|baseCrlNumber(hex, empty if absent)|thisUpdate(RFC3339)|nextUpdate(RFC3339)|crlID(base64).
func (c CrlInfo) Encode() string {
	base := ""
	if c.BaseCrlNumber != nil {
		base = c.BaseCrlNumber.Text(16)
	}
	return strings.Join([]string{
		c.CrlNumber.Text(16),
		base,
		c.ThisUpdate.UTC().Format(time.RFC3339),
		c.NextUpdate.UTC().Format(time.RFC3339),
		base64.StdEncoding.EncodeToString(c.CrlID),
	}, "|")
}

// DecodeCrlInfo parses the text form Encode produces.
func DecodeCrlInfo(s string) (CrlInfo, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 5 {
		return CrlInfo{}, fmt.Errorf("crlstore: malformed CrlInfo %q: want 5 fields, got %d", s, len(parts))
	}

	crlNumber, ok := new(big.Int).SetString(parts[0], 16)
	if !ok {
		return CrlInfo{}, fmt.Errorf("crlstore: malformed CrlInfo crlNumber %q", parts[0])
	}

	var baseCrlNumber *big.Int
	if parts[1] != "" {
		baseCrlNumber, ok = new(big.Int).SetString(parts[1], 16)
		if !ok {
			return CrlInfo{}, fmt.Errorf("crlstore: malformed CrlInfo baseCrlNumber %q", parts[1])
		}
	}

	thisUpdate, err := time.Parse(time.RFC3339, parts[2])
	if err != nil {
		return CrlInfo{}, fmt.Errorf("crlstore: malformed CrlInfo thisUpdate: %w", err)
	}

	nextUpdate, err := time.Parse(time.RFC3339, parts[3])
	if err != nil {
		return CrlInfo{}, fmt.Errorf("crlstore: malformed CrlInfo nextUpdate: %w", err)
	}

	crlID, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil {
		return CrlInfo{}, fmt.Errorf("crlstore: malformed CrlInfo crlID: %w", err)
	}

	return CrlInfo{
		CrlNumber:     crlNumber,
		BaseCrlNumber: baseCrlNumber,
		ThisUpdate:    thisUpdate.UTC(),
		NextUpdate:    nextUpdate.UTC(),
		CrlID:         crlID,
	}, nil
}

// CertRevocationInfo is the ISSUER.REV_INFO column: the CA's own revocation
// state, when the CA cert itself has been revoked.
type CertRevocationInfo struct {
	Reason         int
	RevocationTime time.Time
	InvalidityTime *time.Time
}

// Encode renders the record as reason|revocationTime(RFC3339)|invalidityTime(RFC3339, empty if absent).
func (c CertRevocationInfo) Encode() string {
	inval := ""
	if c.InvalidityTime != nil {
		inval = c.InvalidityTime.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%d|%s|%s", c.Reason, c.RevocationTime.UTC().Format(time.RFC3339), inval)
}

// DecodeCertRevocationInfo parses the text form Encode produces.
func DecodeCertRevocationInfo(s string) (CertRevocationInfo, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 3 {
		return CertRevocationInfo{}, fmt.Errorf("crlstore: malformed CertRevocationInfo %q", s)
	}

	var reason int
	if _, err := fmt.Sscanf(parts[0], "%d", &reason); err != nil {
		return CertRevocationInfo{}, fmt.Errorf("crlstore: malformed CertRevocationInfo reason %q", parts[0])
	}

	revocationTime, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		return CertRevocationInfo{}, fmt.Errorf("crlstore: malformed CertRevocationInfo revocationTime: %w", err)
	}

	info := CertRevocationInfo{Reason: reason, RevocationTime: revocationTime.UTC()}
	if parts[2] != "" {
		t, err := time.Parse(time.RFC3339, parts[2])
		if err != nil {
			return CertRevocationInfo{}, fmt.Errorf("crlstore: malformed CertRevocationInfo invalidityTime: %w", err)
		}
		t = t.UTC()
		info.InvalidityTime = &t
	}

	return info, nil
}
