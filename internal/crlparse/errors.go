package crlparse

import "errors"

// ErrMissingCRLNumber is returned by Open when the CRL carries no
// cRLNumber extension; spec requires crlNumber on every import-eligible
// CRL.
var ErrMissingCRLNumber = errors.New("crlparse: CRL carries no cRLNumber extension")
