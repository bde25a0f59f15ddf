// Package crlparse is a pull-style parser over a DER-encoded X.509
// CertificateList (CRL) file. It decodes the small, fixed-size parts of
// TBSCertList (issuer, validity, extensions) eagerly, and exposes the
// potentially enormous revokedCertificates list as a lazy, single-pass
// cursor so that CRLs of hundreds of megabytes are never loaded whole.
package crlparse

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"os"
	"time"
)

var (
	oidCRLNumber          = asn1.ObjectIdentifier{2, 5, 29, 20}
	oidDeltaCRLIndicator  = asn1.ObjectIdentifier{2, 5, 29, 27}
	oidCRLReason          = asn1.ObjectIdentifier{2, 5, 29, 21}
	oidInvalidityDate     = asn1.ObjectIdentifier{2, 5, 29, 24}
	oidCertificateIssuer  = asn1.ObjectIdentifier{2, 5, 29, 29}
)

// OIDCrlCertSet is id-xipki-ext-crlCertset, the non-standard extension
// carrying a SET OF embedded certificates alongside a delta CRL.
var OIDCrlCertSet = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 45522, 2, 1, 7}

// RevokedCert is one decoded entry of the revokedCertificates list.
type RevokedCert struct {
	SerialNumber      *big.Int
	RevocationDate    time.Time
	InvalidityDate    *time.Time
	Reason            asn1.Enumerated
	CertificateIssuer *pkix.Name // nil unless the entry carries an indirect-CRL issuer
}

// Parser holds the eagerly decoded TBSCertList header fields and the file
// handle backing the lazy revoked-certificate cursor.
type Parser struct {
	f    *os.File
	path string

	issuer     pkix.Name
	thisUpdate time.Time
	nextUpdate time.Time
	hasNext    bool

	extensions []pkix.Extension

	crlNumber     *big.Int
	baseCrlNumber *big.Int // nil for a full CRL

	revokedStart int64
	revokedEnd   int64

	tbsStart int64 // absolute offset of TBSCertList's own tag byte
	tbsEnd   int64 // one past TBSCertList's content

	sigAlg pkix.AlgorithmIdentifier
	sigVal asn1.BitString
}

// Open parses the CertificateList and TBSCertList headers of the file at
// path, without touching the revoked-certificate list. It returns an error
// if required fields (in particular crlNumber) are absent or malformed.
func Open(path string) (*Parser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("crlparse: opening %s: %w", path, err)
	}

	p := &Parser{f: f, path: path}
	if err := p.parseHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return p, nil
}

// Close releases the underlying file handle. Safe to call after or
// instead of exhausting RevokedCertificates.
func (p *Parser) Close() error {
	return p.f.Close()
}

func (p *Parser) parseHeader() error {
	outer, err := readHeader(p.f, 0)
	if err != nil {
		return fmt.Errorf("crlparse: %s: reading CertificateList header: %w", p.path, err)
	}
	if outer.Tag != 0x30 {
		return fmt.Errorf("crlparse: %s: CertificateList is not a SEQUENCE", p.path)
	}

	tbs, err := readHeader(p.f, outer.ContentStart)
	if err != nil {
		return fmt.Errorf("crlparse: %s: reading TBSCertList header: %w", p.path, err)
	}
	if tbs.Tag != 0x30 {
		return fmt.Errorf("crlparse: %s: TBSCertList is not a SEQUENCE", p.path)
	}
	p.tbsStart = outer.ContentStart
	p.tbsEnd = tbs.End()

	cursor := tbs.ContentStart
	limit := tbs.End()

	// version  Version OPTIONAL -- INTEGER {v1(0), v2(1)}, present iff v2.
	tag, ok, err := peekTag(p.f, cursor, limit)
	if err != nil {
		return err
	}
	if ok && tag == 0x02 {
		_, h, err := readFullTLV(p.f, cursor)
		if err != nil {
			return fmt.Errorf("crlparse: %s: reading version: %w", p.path, err)
		}
		cursor = h.End()
	}

	// signature  AlgorithmIdentifier -- tbsCertList's own copy; only its
	// extent matters here, the outer signatureAlgorithm below is what
	// VerifySignature uses.
	_, h, err := readFullTLV(p.f, cursor)
	if err != nil {
		return fmt.Errorf("crlparse: %s: reading tbsCertList.signature: %w", p.path, err)
	}
	cursor = h.End()

	// issuer  Name
	issuerBytes, h, err := readFullTLV(p.f, cursor)
	if err != nil {
		return fmt.Errorf("crlparse: %s: reading issuer: %w", p.path, err)
	}
	var rdn pkix.RDNSequence
	if _, err := asn1.Unmarshal(issuerBytes, &rdn); err != nil {
		return fmt.Errorf("crlparse: %s: decoding issuer: %w", p.path, err)
	}
	p.issuer.FillFromRDNSequence(&rdn)
	cursor = h.End()

	// thisUpdate  Time
	thisUpdateBytes, h, err := readFullTLV(p.f, cursor)
	if err != nil {
		return fmt.Errorf("crlparse: %s: reading thisUpdate: %w", p.path, err)
	}
	if _, err := asn1.Unmarshal(thisUpdateBytes, &p.thisUpdate); err != nil {
		return fmt.Errorf("crlparse: %s: decoding thisUpdate: %w", p.path, err)
	}
	cursor = h.End()

	// nextUpdate  Time OPTIONAL -- UTCTime(0x17) or GeneralizedTime(0x18)
	tag, ok, err = peekTag(p.f, cursor, limit)
	if err != nil {
		return err
	}
	if ok && (tag == 0x17 || tag == 0x18) {
		nextUpdateBytes, h, err := readFullTLV(p.f, cursor)
		if err != nil {
			return fmt.Errorf("crlparse: %s: reading nextUpdate: %w", p.path, err)
		}
		if _, err := asn1.Unmarshal(nextUpdateBytes, &p.nextUpdate); err != nil {
			return fmt.Errorf("crlparse: %s: decoding nextUpdate: %w", p.path, err)
		}
		p.hasNext = true
		cursor = h.End()
	}

	// revokedCertificates  SEQUENCE OF SEQUENCE {...} OPTIONAL
	tag, ok, err = peekTag(p.f, cursor, limit)
	if err != nil {
		return err
	}
	if ok && tag == 0x30 {
		h, err := readHeader(p.f, cursor)
		if err != nil {
			return fmt.Errorf("crlparse: %s: reading revokedCertificates header: %w", p.path, err)
		}
		p.revokedStart = h.ContentStart
		p.revokedEnd = h.End()
		cursor = h.End()
	} else {
		p.revokedStart = cursor
		p.revokedEnd = cursor
	}

	// crlExtensions  [0] EXPLICIT Extensions OPTIONAL
	tag, ok, err = peekTag(p.f, cursor, limit)
	if err != nil {
		return err
	}
	if ok && tag == 0xA0 {
		extBytes, h, err := readFullTLV(p.f, cursor)
		if err != nil {
			return fmt.Errorf("crlparse: %s: reading crlExtensions: %w", p.path, err)
		}
		// extBytes is the [0] EXPLICIT wrapper; its content is the inner
		// Extensions SEQUENCE's own complete TLV, unmarshalled directly.
		inner := extBytes[h.HeaderLen:]
		if _, err := asn1.Unmarshal(inner, &p.extensions); err != nil {
			return fmt.Errorf("crlparse: %s: decoding crlExtensions: %w", p.path, err)
		}
		cursor = h.End()
	}

	for _, ext := range p.extensions {
		switch {
		case ext.Id.Equal(oidCRLNumber):
			var n *big.Int
			if _, err := asn1.Unmarshal(ext.Value, &n); err != nil {
				return fmt.Errorf("crlparse: %s: decoding cRLNumber: %w", p.path, err)
			}
			p.crlNumber = n
		case ext.Id.Equal(oidDeltaCRLIndicator):
			var n *big.Int
			if _, err := asn1.Unmarshal(ext.Value, &n); err != nil {
				return fmt.Errorf("crlparse: %s: decoding deltaCRLIndicator: %w", p.path, err)
			}
			p.baseCrlNumber = n
		}
	}

	if p.crlNumber == nil {
		return fmt.Errorf("crlparse: %s: %w", p.path, ErrMissingCRLNumber)
	}

	// signatureAlgorithm and signatureValue follow tbsCertList.
	sigAlgBytes, h, err := readFullTLV(p.f, p.tbsEnd)
	if err != nil {
		return fmt.Errorf("crlparse: %s: reading signatureAlgorithm: %w", p.path, err)
	}
	if _, err := asn1.Unmarshal(sigAlgBytes, &p.sigAlg); err != nil {
		return fmt.Errorf("crlparse: %s: decoding signatureAlgorithm: %w", p.path, err)
	}
	sigValBytes, _, err := readFullTLV(p.f, h.End())
	if err != nil {
		return fmt.Errorf("crlparse: %s: reading signatureValue: %w", p.path, err)
	}
	if _, err := asn1.Unmarshal(sigValBytes, &p.sigVal); err != nil {
		return fmt.Errorf("crlparse: %s: decoding signatureValue: %w", p.path, err)
	}

	return nil
}

// Issuer returns the CRL issuer's distinguished name.
func (p *Parser) Issuer() pkix.Name { return p.issuer }

// ThisUpdate returns the CRL's thisUpdate field.
func (p *Parser) ThisUpdate() time.Time { return p.thisUpdate }

// NextUpdate returns the CRL's nextUpdate field and whether it was present.
func (p *Parser) NextUpdate() (time.Time, bool) { return p.nextUpdate, p.hasNext }

// CRLNumber returns the CRL's crlNumber extension value. Open fails if this
// is absent, so CRLNumber is always non-nil on a successfully opened Parser.
func (p *Parser) CRLNumber() *big.Int { return p.crlNumber }

// BaseCRLNumber returns the CRL's deltaCRLIndicator base CRL number, or nil
// for a full CRL.
func (p *Parser) BaseCRLNumber() *big.Int { return p.baseCrlNumber }

// IsDeltaCRL reports whether this CRL carries a baseCRLNumber.
func (p *Parser) IsDeltaCRL() bool { return p.baseCrlNumber != nil }

// CRLExtensions returns the decoded crlExtensions.
func (p *Parser) CRLExtensions() []pkix.Extension { return p.extensions }

// FindExtension returns the raw value of the extension with the given OID,
// or nil if absent.
func (p *Parser) FindExtension(oid asn1.ObjectIdentifier) []byte {
	for _, ext := range p.extensions {
		if ext.Id.Equal(oid) {
			return ext.Value
		}
	}
	return nil
}
