// Package ocsptemplate precomputes the DER byte sequences the OCSP
// responder needs for its per-response extensions and structures, so that
// building an actual response at request time is an array copy plus a
// timestamp and, optionally, a one-byte reason code. See the Java
// responder this package's layout is modelled on: a static prefix table
// per hash variant, built once, read many times.
package ocsptemplate

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"sync"
	"time"

	"github.com/remiblancher/ocsp-responder-store/internal/asn1io"
	"github.com/remiblancher/ocsp-responder-store/internal/hashalgo"
)

// certHashOID is id-isismtt-at-certHash (ISIS-MTT), a non-standard
// extension binding an OCSP response to a specific certificate's hash.
var certHashOID = asn1.ObjectIdentifier{1, 3, 36, 8, 3, 13}

// invalidityDateOID is the standard CRL/OCSP invalidityDate extension.
var invalidityDateOID = asn1.ObjectIdentifier{2, 5, 29, 24}

// archiveCutoffOID is id-pkix-ocsp-archive-cutoff.
var archiveCutoffOID = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1, 6}

var (
	revokedInfoNoReasonPrefix   = []byte{0xA1, 0x11}
	revokedInfoWithReasonPrefix = []byte{0xA1, 0x16}
	reasonPrefix                = []byte{0xA0, 0x03, 0x0A, 0x01}
)

type certHashValue struct {
	HashAlgorithm   pkix.AlgorithmIdentifier
	CertificateHash []byte
}

var (
	once               sync.Once
	certHashPrefix     map[hashalgo.HashAlgo][]byte
	invalidityDateTmpl []byte
	archiveCutoffTmpl  []byte
)

func build() {
	certHashPrefix = make(map[hashalgo.HashAlgo][]byte, len(hashalgo.All()))
	for _, h := range hashalgo.All() {
		zero := make([]byte, h.Length())
		value, err := asn1.Marshal(certHashValue{
			HashAlgorithm:   pkix.AlgorithmIdentifier{Algorithm: h.OID(), Parameters: asn1.NullRawValue},
			CertificateHash: zero,
		})
		if err != nil {
			panic(fmt.Sprintf("ocsptemplate: encoding CertHash template for %s: %v", h, err))
		}
		encoded, err := asn1.Marshal(pkix.Extension{Id: certHashOID, Critical: false, Value: value})
		if err != nil {
			panic(fmt.Sprintf("ocsptemplate: encoding CertHash extension template for %s: %v", h, err))
		}
		certHashPrefix[h] = encoded[:len(encoded)-h.Length()]
	}

	invalidityDateTmpl = mustExtensionTemplate(invalidityDateOID)
	archiveCutoffTmpl = mustExtensionTemplate(archiveCutoffOID)
}

func mustExtensionTemplate(oid asn1.ObjectIdentifier) []byte {
	placeholder := make([]byte, asn1io.GeneralizedTimeLen)
	encoded, err := asn1.Marshal(pkix.Extension{Id: oid, Critical: false, Value: placeholder})
	if err != nil {
		panic(fmt.Sprintf("ocsptemplate: encoding extension template for %v: %v", oid, err))
	}
	return encoded
}

func init() {
	once.Do(build)
}

// GetCertHashExtension returns the fully DER-encoded CertHash extension
// (OID 1.3.36.8.3.13, criticality false) for the given hash variant and
// digest. Calling with hash of the wrong length for algo is a programmer
// error and is reported as an error rather than silently truncated.
func GetCertHashExtension(algo hashalgo.HashAlgo, hash []byte) ([]byte, error) {
	if len(hash) != algo.Length() {
		return nil, fmt.Errorf("ocsptemplate: %s requires a %d-byte hash, got %d", algo, algo.Length(), len(hash))
	}
	prefix := certHashPrefix[algo]
	out := make([]byte, len(prefix)+len(hash))
	copy(out, prefix)
	copy(out[len(prefix):], hash)
	return out, nil
}

// GetInvalidityDateExtension returns the fully DER-encoded invalidityDate
// extension (OID 2.5.29.24) for the given instant, truncated to whole
// seconds UTC.
func GetInvalidityDateExtension(invalidityDate time.Time) []byte {
	return overwriteTail(invalidityDateTmpl, invalidityDate)
}

// GetArchiveCutoffExtension returns the fully DER-encoded archiveCutoff
// extension (OID 1.3.6.1.5.5.7.48.1.6) for the given instant.
func GetArchiveCutoffExtension(archiveCutoff time.Time) []byte {
	return overwriteTail(archiveCutoffTmpl, archiveCutoff)
}

func overwriteTail(tmpl []byte, t time.Time) []byte {
	encoded := make([]byte, len(tmpl))
	copy(encoded, tmpl)
	asn1io.WriteGeneralizedTime(t, encoded, len(encoded)-asn1io.GeneralizedTimeLen)
	return encoded
}

// GetEncodedRevokedInfo returns the [1] revokedInfo byte sequence for a
// single OCSP response (not wrapped in the outer CertStatus CHOICE tag).
// With reason == nil it is 19 bytes; with a reason it is 24 bytes and byte
// 23 is the reason code. reason must fit in one byte.
func GetEncodedRevokedInfo(reason *int, revocationTime time.Time) []byte {
	if reason == nil {
		encoded := make([]byte, 19)
		copy(encoded, revokedInfoNoReasonPrefix)
		asn1io.WriteGeneralizedTime(revocationTime, encoded, 2)
		return encoded
	}

	if *reason < 0 || *reason > 0xFF {
		panic("ocsptemplate: revocation reason code does not fit in one byte")
	}

	encoded := make([]byte, 24)
	copy(encoded, revokedInfoWithReasonPrefix)
	asn1io.WriteGeneralizedTime(revocationTime, encoded, 2)
	copy(encoded[19:23], reasonPrefix)
	encoded[23] = byte(*reason)
	return encoded
}
