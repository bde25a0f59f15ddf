// Package crlimport is the public entry point for the CRL Import Engine;
// internal/crlimport carries the implementation.
package crlimport

import (
	"context"
	"sync"

	"github.com/remiblancher/ocsp-responder-store/internal/audit"
	"github.com/remiblancher/ocsp-responder-store/internal/crlimport"
	"github.com/remiblancher/ocsp-responder-store/internal/datasource"
	"github.com/remiblancher/ocsp-responder-store/internal/hashalgo"
)

// Engine runs CRL imports against a DataSource. See internal/crlimport.Engine.
type Engine = crlimport.Engine

// ImportErrorKind classifies why an import run failed.
type ImportErrorKind = crlimport.ImportErrorKind

// ImportError is the structured error type ImportCRLToOCSPDB returns.
type ImportError = crlimport.ImportError

const (
	InputMissing           = crlimport.InputMissing
	InputMalformed         = crlimport.InputMalformed
	CrlSignatureInvalid    = crlimport.CrlSignatureInvalid
	CrlMissingNumber       = crlimport.CrlMissingNumber
	CrlNotNewer            = crlimport.CrlNotNewer
	NeedFullCrlFirst       = crlimport.NeedFullCrlFirst
	DeltaBaseMismatch      = crlimport.DeltaBaseMismatch
	CrlEntryIssuerMismatch = crlimport.CrlEntryIssuerMismatch
	StoreError             = crlimport.StoreError
	EncodingError          = crlimport.EncodingError
)

var (
	defaultMu     sync.RWMutex
	defaultEngine *Engine
)

// Init installs the process-wide default Engine. Callers that need more
// than one Engine (e.g. against distinct databases) should construct
// *Engine values directly instead of using the package-level helpers below.
func Init(ds datasource.DataSource, hashAlgo hashalgo.HashAlgo, auditWriter audit.Writer) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultEngine = &Engine{DataSource: ds, HashAlgo: hashAlgo, Audit: auditWriter}
}

// ImportCRLToOCSPDB runs one import against the default Engine installed by
// Init.
func ImportCRLToOCSPDB(ctx context.Context, basedir string) (bool, error) {
	defaultMu.RLock()
	e := defaultEngine
	defaultMu.RUnlock()
	if e == nil {
		panic("pkg/crlimport: Init must be called before ImportCRLToOCSPDB")
	}
	return e.ImportCRLToOCSPDB(ctx, basedir)
}
