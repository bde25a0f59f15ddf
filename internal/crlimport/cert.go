package crlimport

import (
	"crypto"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
	"github.com/cloudflare/circl/sign/slhdsa"
)

// SPKI algorithm OIDs this decoder recognizes beyond what
// crypto/x509.ParsePKIXPublicKey already covers (RSA, ECDSA, Ed25519).
var (
	oidMLDSA44    = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 17}
	oidMLDSA65    = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 18}
	oidMLDSA87    = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 19}
	oidSLHDSA128s = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 20}
	oidSLHDSA128f = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 21}
	oidSLHDSA192s = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 22}
	oidSLHDSA192f = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 23}
	oidSLHDSA256s = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 24}
	oidSLHDSA256f = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 25}
)

var oidSubjectKeyId = asn1.ObjectIdentifier{2, 5, 29, 14}
var oidAuthorityKeyId = asn1.ObjectIdentifier{2, 5, 29, 35}

// certInfo is the minimal set of fields the import engine needs from a CA,
// delegated-signer, or embedded certificate. It is decoded directly off
// TBSCertificate rather than through crypto/x509.ParseCertificate so that a
// certificate signed under an algorithm OID the standard library does not
// recognize (ML-DSA, SLH-DSA) still yields a usable Subject,
// SubjectKeyId/AuthorityKeyId, and PublicKey — crypto/x509.ParsePKIXPublicKey
// is used for the SubjectPublicKeyInfo itself, which it can decode
// independent of the outer certificate's signature algorithm.
type certInfo struct {
	Raw            []byte
	Subject        pkix.Name
	Issuer         pkix.Name
	SerialNumber   *big.Int
	NotBefore      time.Time
	NotAfter       time.Time
	SubjectKeyId   []byte
	AuthorityKeyId []byte
	PublicKey      crypto.PublicKey
}

func (c *certInfo) fingerprintSHA1() [20]byte {
	return sha1.Sum(c.Raw)
}

type tbsCertificateASN1 struct {
	Raw                asn1.RawContent
	Version            int `asn1:"optional,explicit,default:0,tag:0"`
	SerialNumber       *big.Int
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Issuer             asn1.RawValue
	Validity           validityASN1
	Subject            asn1.RawValue
	PublicKey          publicKeyInfoASN1
	IssuerUniqueId     asn1.BitString   `asn1:"optional,tag:1"`
	SubjectUniqueId    asn1.BitString   `asn1:"optional,tag:2"`
	Extensions         []pkix.Extension `asn1:"optional,explicit,tag:3"`
}

type validityASN1 struct {
	NotBefore, NotAfter time.Time
}

type publicKeyInfoASN1 struct {
	Raw       asn1.RawContent
	Algorithm pkix.AlgorithmIdentifier
	PublicKey asn1.BitString
}

type certificateASN1 struct {
	TBSCertificate     tbsCertificateASN1
	SignatureAlgorithm pkix.AlgorithmIdentifier
	SignatureValue     asn1.BitString
}

// parseCertificateFile reads a DER or PEM certificate file and decodes it
// into a certInfo.
func parseCertificateFile(path string) (*certInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("crlimport: reading certificate %s: %w", path, err)
	}
	der := data
	if block, _ := pem.Decode(data); block != nil {
		der = block.Bytes
	}
	return parseCertificateDER(der)
}

func parseCertificateDER(der []byte) (*certInfo, error) {
	var cert certificateASN1
	if _, err := asn1.Unmarshal(der, &cert); err != nil {
		return nil, fmt.Errorf("crlimport: decoding certificate: %w", err)
	}
	return buildCertInfo(der, &cert.TBSCertificate)
}

func buildCertInfo(raw []byte, tbs *tbsCertificateASN1) (*certInfo, error) {
	var subjectRDN, issuerRDN pkix.RDNSequence
	if _, err := asn1.Unmarshal(tbs.Subject.FullBytes, &subjectRDN); err != nil {
		return nil, fmt.Errorf("crlimport: decoding certificate subject: %w", err)
	}
	if _, err := asn1.Unmarshal(tbs.Issuer.FullBytes, &issuerRDN); err != nil {
		return nil, fmt.Errorf("crlimport: decoding certificate issuer: %w", err)
	}
	var subject, issuer pkix.Name
	subject.FillFromRDNSequence(&subjectRDN)
	issuer.FillFromRDNSequence(&issuerRDN)

	pub, err := parseSubjectPublicKey(tbs.PublicKey)
	if err != nil {
		return nil, err
	}

	info := &certInfo{
		Raw:          raw,
		Subject:      subject,
		Issuer:       issuer,
		SerialNumber: tbs.SerialNumber,
		NotBefore:    tbs.Validity.NotBefore,
		NotAfter:     tbs.Validity.NotAfter,
		PublicKey:    pub,
	}

	for _, ext := range tbs.Extensions {
		switch {
		case ext.Id.Equal(oidSubjectKeyId):
			var ski []byte
			if _, err := asn1.Unmarshal(ext.Value, &ski); err == nil {
				info.SubjectKeyId = ski
			}
		case ext.Id.Equal(oidAuthorityKeyId):
			var aki struct {
				KeyIdentifier []byte `asn1:"optional,tag:0"`
			}
			if _, err := asn1.Unmarshal(ext.Value, &aki); err == nil {
				info.AuthorityKeyId = aki.KeyIdentifier
			}
		}
	}

	return info, nil
}

// parseSubjectPublicKey decodes a SubjectPublicKeyInfo into a concrete
// public key, trying the standard library first (RSA, ECDSA, Ed25519) and
// falling back to this codebase's PQC dispatch for ML-DSA/SLH-DSA OIDs,
// which crypto/x509 does not recognize.
func parseSubjectPublicKey(spki publicKeyInfoASN1) (crypto.PublicKey, error) {
	if pub, err := x509.ParsePKIXPublicKey(spki.Raw); err == nil {
		return pub, nil
	}

	keyBytes := spki.PublicKey.RightAlign()
	oid := spki.Algorithm.Algorithm

	switch {
	case oid.Equal(oidMLDSA44):
		var pk mldsa44.PublicKey
		if err := pk.UnmarshalBinary(keyBytes); err != nil {
			return nil, fmt.Errorf("crlimport: decoding ML-DSA-44 public key: %w", err)
		}
		return &pk, nil
	case oid.Equal(oidMLDSA65):
		var pk mldsa65.PublicKey
		if err := pk.UnmarshalBinary(keyBytes); err != nil {
			return nil, fmt.Errorf("crlimport: decoding ML-DSA-65 public key: %w", err)
		}
		return &pk, nil
	case oid.Equal(oidMLDSA87):
		var pk mldsa87.PublicKey
		if err := pk.UnmarshalBinary(keyBytes); err != nil {
			return nil, fmt.Errorf("crlimport: decoding ML-DSA-87 public key: %w", err)
		}
		return &pk, nil
	}

	if id, ok := slhdsaIDFor(oid); ok {
		pk := slhdsa.PublicKey{ID: id}
		if err := pk.UnmarshalBinary(keyBytes); err != nil {
			return nil, fmt.Errorf("crlimport: decoding SLH-DSA public key: %w", err)
		}
		return &pk, nil
	}

	return nil, fmt.Errorf("crlimport: unsupported SubjectPublicKeyInfo algorithm OID %v", oid)
}

func slhdsaIDFor(oid asn1.ObjectIdentifier) (slhdsa.ID, bool) {
	switch {
	case oid.Equal(oidSLHDSA128s):
		return slhdsa.SHA2_128s, true
	case oid.Equal(oidSLHDSA128f):
		return slhdsa.SHA2_128f, true
	case oid.Equal(oidSLHDSA192s):
		return slhdsa.SHA2_192s, true
	case oid.Equal(oidSLHDSA192f):
		return slhdsa.SHA2_192f, true
	case oid.Equal(oidSLHDSA256s):
		return slhdsa.SHA2_256s, true
	case oid.Equal(oidSLHDSA256f):
		return slhdsa.SHA2_256f, true
	default:
		return 0, false
	}
}
