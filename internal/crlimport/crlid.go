package crlimport

import (
	"encoding/asn1"
	"math/big"
	"time"
)

// crlIDASN1 mirrors CrlID ::= SEQUENCE { crlUrl [0] IA5String OPTIONAL,
// crlNumber [1] INTEGER, crlTime [2] GeneralizedTime }, the embedded
// identifier OCSP responses carry back to name which CRL they were built
// from.
type crlIDASN1 struct {
	URL        string    `asn1:"optional,ia5,explicit,tag:0"`
	CRLNumber  *big.Int  `asn1:"explicit,tag:1"`
	ThisUpdate time.Time `asn1:"generalized,explicit,tag:2"`
}

// buildCRLID DER-encodes the crlID structure embedded into the ISSUER row's
// CrlInfo. url is omitted from the encoding when empty.
func buildCRLID(url string, crlNumber *big.Int, thisUpdate time.Time) ([]byte, error) {
	return asn1.Marshal(crlIDASN1{
		URL:        url,
		CRLNumber:  crlNumber,
		ThisUpdate: thisUpdate.UTC(),
	})
}
