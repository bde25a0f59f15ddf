// Package ocsptemplate is the public entry point for the OCSP response
// template cache; internal/ocsptemplate carries the implementation.
package ocsptemplate

import (
	"time"

	"github.com/remiblancher/ocsp-responder-store/internal/hashalgo"
	"github.com/remiblancher/ocsp-responder-store/internal/ocsptemplate"
)

// GetCertHashExtension returns the DER-encoded CertHash extension for the
// given hash algorithm and digest. See internal/ocsptemplate.
func GetCertHashExtension(algo hashalgo.HashAlgo, hash []byte) ([]byte, error) {
	return ocsptemplate.GetCertHashExtension(algo, hash)
}

// GetInvalidityDateExtension returns the DER-encoded invalidityDate
// extension for the given instant.
func GetInvalidityDateExtension(invalidityDate time.Time) []byte {
	return ocsptemplate.GetInvalidityDateExtension(invalidityDate)
}

// GetArchiveCutoffExtension returns the DER-encoded archiveCutoff extension
// for the given instant.
func GetArchiveCutoffExtension(archiveCutoff time.Time) []byte {
	return ocsptemplate.GetArchiveCutoffExtension(archiveCutoff)
}

// GetEncodedRevokedInfo returns the [1] revokedInfo byte sequence for one
// OCSP response.
func GetEncodedRevokedInfo(reason *int, revocationTime time.Time) []byte {
	return ocsptemplate.GetEncodedRevokedInfo(reason, revocationTime)
}
