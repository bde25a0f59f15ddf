package crlparse

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"io"
	"math/big"
	"time"
)

type revokedCertASN1 struct {
	SerialNumber   *big.Int
	RevocationDate time.Time
	Extensions     []pkix.Extension `asn1:"optional"`
}

// RevokedCertsIterator is a single-pass, closeable cursor over a CRL's
// revokedCertificates list. It decodes one SEQUENCE at a time, never
// holding more than a single entry in memory.
type RevokedCertsIterator struct {
	p       *Parser
	cursor  int64
	limit   int64
	closed  bool
}

// RevokedCertificates returns a fresh iterator positioned at the start of
// the revokedCertificates list. Calling this again after exhausting or
// closing a previous iterator reopens the same byte range; it is not valid
// to use two iterators from the same Parser concurrently, since both share
// the underlying *os.File.
func (p *Parser) RevokedCertificates() *RevokedCertsIterator {
	return &RevokedCertsIterator{p: p, cursor: p.revokedStart, limit: p.revokedEnd}
}

// Next decodes and returns the next revoked entry, or io.EOF when the list
// is exhausted.
func (it *RevokedCertsIterator) Next() (RevokedCert, error) {
	if it.closed {
		return RevokedCert{}, fmt.Errorf("crlparse: iterator closed")
	}
	if it.cursor >= it.limit {
		return RevokedCert{}, io.EOF
	}

	raw, h, err := readFullTLV(it.p.f, it.cursor)
	if err != nil {
		return RevokedCert{}, fmt.Errorf("crlparse: decoding revoked entry at offset %d: %w", it.cursor, err)
	}
	it.cursor = h.End()

	var entry revokedCertASN1
	if _, err := asn1.Unmarshal(raw, &entry); err != nil {
		return RevokedCert{}, fmt.Errorf("crlparse: decoding revoked entry: %w", err)
	}

	out := RevokedCert{
		SerialNumber:   entry.SerialNumber,
		RevocationDate: entry.RevocationDate,
	}

	for _, ext := range entry.Extensions {
		switch {
		case ext.Id.Equal(oidCRLReason):
			var reason asn1.Enumerated
			if _, err := asn1.Unmarshal(ext.Value, &reason); err != nil {
				return RevokedCert{}, fmt.Errorf("crlparse: decoding crlReason: %w", err)
			}
			out.Reason = reason
		case ext.Id.Equal(oidInvalidityDate):
			var t time.Time
			if _, err := asn1.Unmarshal(ext.Value, &t); err != nil {
				return RevokedCert{}, fmt.Errorf("crlparse: decoding invalidityDate: %w", err)
			}
			out.InvalidityDate = &t
		case ext.Id.Equal(oidCertificateIssuer):
			name, err := decodeCertificateIssuer(ext.Value)
			if err != nil {
				return RevokedCert{}, fmt.Errorf("crlparse: decoding certificateIssuer: %w", err)
			}
			out.CertificateIssuer = name
		}
	}

	return out, nil
}

// Close ends the iteration. It does not close the Parser's file, since the
// Parser itself may still be in use.
func (it *RevokedCertsIterator) Close() error {
	it.closed = true
	return nil
}

// decodeCertificateIssuer pulls the first directoryName GeneralName out of
// a certificateIssuer (GeneralNames) extension value.
func decodeCertificateIssuer(value []byte) (*pkix.Name, error) {
	var names []asn1.RawValue
	if _, err := asn1.Unmarshal(value, &names); err != nil {
		return nil, err
	}
	for _, n := range names {
		// directoryName is tagged [4] EXPLICIT (its underlying Name is a
		// CHOICE, which forces explicit tagging), so n.Bytes is the
		// complete inner RDNSequence TLV.
		if n.Class == asn1.ClassContextSpecific && n.Tag == 4 {
			var rdn pkix.RDNSequence
			if _, err := asn1.Unmarshal(n.Bytes, &rdn); err != nil {
				return nil, err
			}
			name := &pkix.Name{}
			name.FillFromRDNSequence(&rdn)
			return name, nil
		}
	}
	return nil, nil
}
