package crlparse

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/asn1"
	"fmt"

	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
	"github.com/cloudflare/circl/sign/slhdsa"
)

// Signature algorithm OIDs this parser can verify against, mirroring this
// codebase's existing classical+PQC OID catalogue.
var (
	oidSHA256WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
	oidSHA384WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12}
	oidSHA512WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13}
	oidECDSAWithSHA256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}
	oidECDSAWithSHA384 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 3}
	oidECDSAWithSHA512 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 4}
)

func hashForSignatureOID(oid asn1.ObjectIdentifier) (crypto.Hash, error) {
	switch {
	case oid.Equal(oidSHA256WithRSA), oid.Equal(oidECDSAWithSHA256):
		return crypto.SHA256, nil
	case oid.Equal(oidSHA384WithRSA), oid.Equal(oidECDSAWithSHA384):
		return crypto.SHA384, nil
	case oid.Equal(oidSHA512WithRSA), oid.Equal(oidECDSAWithSHA512):
		return crypto.SHA512, nil
	default:
		return 0, fmt.Errorf("crlparse: unsupported classical signature algorithm OID %v", oid)
	}
}

// VerifySignature verifies the CRL's signature against the public key
// extracted from the signer's SubjectPublicKeyInfo (the CA's own key, or
// the delegated CRL signer's key). It dispatches on the concrete type of
// pub: RSA/ECDSA digest the tbsCertList bytes with a streaming hash so the
// potentially enormous revokedCertificates it contains is never held in
// memory; Ed25519 and the PQC schemes (ML-DSA, SLH-DSA) sign the raw
// message rather than a digest, so those paths must buffer the full
// tbsCertList bytes — an accepted tradeoff for those algorithms, not the
// streaming default.
func (p *Parser) VerifySignature(pub crypto.PublicKey) (bool, error) {
	sig := p.sigVal.RightAlign()

	switch pk := pub.(type) {
	case *rsa.PublicKey:
		hashAlg, err := hashForSignatureOID(p.sigAlg.Algorithm)
		if err != nil {
			return false, err
		}
		digest, err := p.hashTBS(hashAlg)
		if err != nil {
			return false, err
		}
		return rsa.VerifyPKCS1v15(pk, hashAlg, digest, sig) == nil, nil

	case *ecdsa.PublicKey:
		hashAlg, err := hashForSignatureOID(p.sigAlg.Algorithm)
		if err != nil {
			return false, err
		}
		digest, err := p.hashTBS(hashAlg)
		if err != nil {
			return false, err
		}
		return ecdsa.VerifyASN1(pk, digest, sig), nil

	case ed25519.PublicKey:
		msg, err := p.readTBS()
		if err != nil {
			return false, err
		}
		return ed25519.Verify(pk, msg, sig), nil

	case *mldsa44.PublicKey:
		msg, err := p.readTBS()
		if err != nil {
			return false, err
		}
		return mldsa44.Verify(pk, msg, nil, sig), nil

	case *mldsa65.PublicKey:
		msg, err := p.readTBS()
		if err != nil {
			return false, err
		}
		return mldsa65.Verify(pk, msg, nil, sig), nil

	case *mldsa87.PublicKey:
		msg, err := p.readTBS()
		if err != nil {
			return false, err
		}
		return mldsa87.Verify(pk, msg, nil, sig), nil

	case *slhdsa.PublicKey:
		msg, err := p.readTBS()
		if err != nil {
			return false, err
		}
		return slhdsa.Verify(pk, slhdsa.NewMessage(msg), sig, nil), nil

	default:
		return false, fmt.Errorf("crlparse: unsupported CRL signer public key type %T", pub)
	}
}

// tbsRange returns the absolute byte range of the complete tbsCertList TLV
// (tag, length, and content) as signed over.
func (p *Parser) tbsRange() (start, end int64) {
	return p.tbsStart, p.tbsEnd
}

// hashTBS streams the tbsCertList bytes through a fresh hash of the given
// algorithm, in fixed-size chunks, never holding more than one chunk in
// memory.
func (p *Parser) hashTBS(alg crypto.Hash) ([]byte, error) {
	h := alg.New()
	start, end := p.tbsRange()
	const chunkSize = 64 * 1024
	buf := make([]byte, chunkSize)
	for offset := start; offset < end; {
		n := chunkSize
		if remaining := end - offset; remaining < int64(n) {
			n = int(remaining)
		}
		if _, err := p.f.ReadAt(buf[:n], offset); err != nil {
			return nil, fmt.Errorf("crlparse: streaming tbsCertList for signature verification: %w", err)
		}
		h.Write(buf[:n])
		offset += int64(n)
	}
	return h.Sum(nil), nil
}

// readTBS buffers the complete tbsCertList bytes. Only used for signature
// schemes that verify over the raw message rather than a digest.
func (p *Parser) readTBS() ([]byte, error) {
	start, end := p.tbsRange()
	buf := make([]byte, end-start)
	if _, err := p.f.ReadAt(buf, start); err != nil {
		return nil, fmt.Errorf("crlparse: reading tbsCertList: %w", err)
	}
	return buf, nil
}
