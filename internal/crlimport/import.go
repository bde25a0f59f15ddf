// Package crlimport is the CRL Import Engine: it parses and cryptographically
// verifies a CRL, reconciles it against the ISSUER/CERT tables through an
// injected datasource.DataSource, and ingests companion certificate
// material, all without ever materialising the revoked-certificate list in
// memory (see package crlparse). It does not roll back partial progress on
// failure: the ISSUER row's CRL number is written before the revoked entries
// are applied, so re-running the same CRL after such a failure is rejected
// with CrlNotNewer.
package crlimport

import (
	"bytes"
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/asn1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/remiblancher/ocsp-responder-store/internal/audit"
	"github.com/remiblancher/ocsp-responder-store/internal/crlparse"
	"github.com/remiblancher/ocsp-responder-store/internal/crlstore"
	"github.com/remiblancher/ocsp-responder-store/internal/datasource"
	"github.com/remiblancher/ocsp-responder-store/internal/hashalgo"
)

// reasonRemoveFromCRL is the CRLReason value (RFC 5280 §5.3.1) marking a
// delta-CRL entry as "this serial is no longer revoked, remove it" rather
// than an ordinary revocation.
const reasonRemoveFromCRL = asn1.Enumerated(8)

// Engine orchestrates the CRL Import Engine against one injected
// DataSource. The zero value is not usable; DataSource and HashAlgo are
// required.
type Engine struct {
	DataSource datasource.DataSource
	HashAlgo   hashalgo.HashAlgo
	// Audit receives one event per import run, success or failure. Nil
	// discards events.
	Audit audit.Writer
}

func (e *Engine) auditWriter() audit.Writer {
	if e.Audit == nil {
		return audit.NopWriter{}
	}
	return e.Audit
}

// counts tallies one import run's row-level effects, surfaced in the audit
// event.
type counts struct {
	Inserted, Updated, Deleted, Skipped int
}

// idAllocator hands out strictly increasing CERT.ID values within one
// import run, seeded once from the table's current maximum rather than
// re-querying it on every insert.
type idAllocator struct{ next int64 }

func (a *idAllocator) Allocate() int64 {
	a.next++
	return a.next
}

// certOp is the explicit insert/update discriminator for a CERT row
// upsert, replacing branching on SQL-string identity.
type certOp int

const (
	certOpInsert certOp = iota
	certOpUpdate
)

// statements bundles the five engine-private prepared statements for one
// import run, released unconditionally via Close on every exit path.
type statements struct {
	insertCert    *sql.Stmt
	updateCert    *sql.Stmt
	insertCertRev *sql.Stmt
	updateCertRev *sql.Stmt
	deleteCert    *sql.Stmt
}

func prepareStatements(ctx context.Context, ds datasource.DataSource, conn *sql.Conn) (*statements, error) {
	s := &statements{}
	var err error
	if s.insertCert, err = ds.Prepare(ctx, conn, crlstore.SQLInsertCert); err != nil {
		return nil, err
	}
	if s.updateCert, err = ds.Prepare(ctx, conn, crlstore.SQLUpdateCert); err != nil {
		s.Close()
		return nil, err
	}
	if s.insertCertRev, err = ds.Prepare(ctx, conn, crlstore.SQLInsertCertRev); err != nil {
		s.Close()
		return nil, err
	}
	if s.updateCertRev, err = ds.Prepare(ctx, conn, crlstore.SQLUpdateCertRev); err != nil {
		s.Close()
		return nil, err
	}
	if s.deleteCert, err = ds.Prepare(ctx, conn, crlstore.SQLDeleteCert); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *statements) Close() {
	for _, stmt := range []*sql.Stmt{s.insertCert, s.updateCert, s.insertCertRev, s.updateCertRev, s.deleteCert} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

func fingerprintS1C(der []byte) string {
	sum := sha1.Sum(der)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// ImportCRLToOCSPDB runs one CRL import against basedir (the baseline
// directory layout: ca.crt, ca.crl, issuer.crt?, crl.url?, REVOCATION?,
// certs/?). It returns (true, nil) on success and (false, *ImportError) on
// any abort. Partial database changes made before an abort are not rolled
// back; once the ISSUER row has been updated, importing the same CRL again
// fails with CrlNotNewer.
func (e *Engine) ImportCRLToOCSPDB(ctx context.Context, basedir string) (success bool, err error) {
	importStart := time.Now().UTC()

	var caCert *certInfo
	var crl *crlparse.Parser
	var c counts

	defer func() {
		e.recordAudit(caCert, crl, c, success, err)
	}()

	caCert, err = parseCertificateFile(filepath.Join(basedir, "ca.crt"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, NewImportError("loadCACert", InputMissing, err)
		}
		return false, NewImportError("loadCACert", InputMalformed, err)
	}

	crl, err = crlparse.Open(filepath.Join(basedir, "ca.crl"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, NewImportError("parseCRL", InputMissing, err)
		}
		if errors.Is(err, crlparse.ErrMissingCRLNumber) {
			return false, NewImportError("parseCRL", CrlMissingNumber, fmt.Errorf("%w: %w", ErrCrlMissingNumber, err))
		}
		return false, NewImportError("parseCRL", InputMalformed, err)
	}
	defer crl.Close()

	signerCert := caCert
	if crl.Issuer().String() != caCert.Subject.String() {
		issuerPath := filepath.Join(basedir, "issuer.crt")
		issuerCert, ierr := parseCertificateFile(issuerPath)
		if ierr != nil {
			if errors.Is(ierr, os.ErrNotExist) {
				err = ierr
				return false, NewImportError("loadDelegatedSigner", InputMissing, ierr)
			}
			err = ierr
			return false, NewImportError("loadDelegatedSigner", InputMalformed, ierr)
		}
		if issuerCert.Subject.String() != crl.Issuer().String() {
			err = fmt.Errorf("crlimport: issuer.crt subject %q does not match CRL issuer %q", issuerCert.Subject, crl.Issuer())
			return false, NewImportError("loadDelegatedSigner", InputMalformed, err)
		}
		signerCert = issuerCert
	}

	verified, verr := crl.VerifySignature(signerCert.PublicKey)
	if verr != nil {
		err = verr
		return false, NewImportError("verifyCRLSignature", CrlSignatureInvalid, verr)
	}
	if !verified {
		err = ErrCrlSignatureInvalid
		return false, NewImportError("verifyCRLSignature", CrlSignatureInvalid, ErrCrlSignatureInvalid)
	}

	isDelta := crl.IsDeltaCRL()

	crlURL := ""
	if data, rerr := os.ReadFile(filepath.Join(basedir, "crl.url")); rerr == nil {
		crlURL = strings.TrimSpace(string(data))
	}
	crlID, cerr := buildCRLID(crlURL, crl.CRLNumber(), crl.ThisUpdate())
	if cerr != nil {
		err = cerr
		return false, NewImportError("buildCRLID", EncodingError, cerr)
	}

	var caRev *caRevocation
	if rev, rerr := parseRevocationFile(filepath.Join(basedir, "REVOCATION")); rerr == nil {
		caRev = rev
	} else if !errors.Is(rerr, os.ErrNotExist) {
		err = rerr
		return false, NewImportError("loadRevocation", InputMalformed, rerr)
	}

	conn, cerr := e.DataSource.Conn(ctx)
	if cerr != nil {
		err = cerr
		return false, NewImportError("acquireConnection", StoreError, cerr)
	}
	defer e.DataSource.ReturnConn(conn)

	stmts, perr := prepareStatements(ctx, e.DataSource, conn)
	if perr != nil {
		err = perr
		return false, NewImportError("prepareStatements", StoreError, perr)
	}
	defer stmts.Close()

	alloc := &idAllocator{}
	if maxID, gerr := e.DataSource.GetMax(ctx, conn, "CERT", "ID"); gerr == nil {
		alloc.next = maxID
	} else {
		err = gerr
		return false, NewImportError("allocateCertID", StoreError, gerr)
	}

	// LUPDATE has one-second resolution. If an earlier run already stamped
	// rows with this second (or later), move this run's stamp past it so the
	// full-CRL sweep can tell those rows apart from the ones touched now.
	maxLupdate, lerr := e.DataSource.GetMax(ctx, conn, "CERT", "LUPDATE")
	if lerr != nil {
		err = lerr
		return false, NewImportError("readLastUpdate", StoreError, lerr)
	}
	if maxLupdate >= importStart.Unix() {
		importStart = time.Unix(maxLupdate+1, 0).UTC()
	}

	iid, _, uerr := e.upsertIssuer(ctx, conn, caCert, caRev, crl, crlID, isDelta)
	if uerr != nil {
		err = uerr
		return false, uerr
	}

	it := crl.RevokedCertificates()
	defer it.Close()
	for {
		entry, nerr := it.Next()
		if nerr != nil {
			if errors.Is(nerr, io.EOF) {
				break
			}
			err = nerr
			return false, NewImportError("iterateRevokedCertificates", InputMalformed, nerr)
		}

		if entry.CertificateIssuer != nil && entry.CertificateIssuer.String() != caCert.Subject.String() {
			err = ErrCrlEntryIssuerMismatch
			return false, NewImportError("checkCertificateIssuer", CrlEntryIssuerMismatch, ErrCrlEntryIssuerMismatch)
		}

		sn := entry.SerialNumber.Text(16)
		if entry.Reason == reasonRemoveFromCRL {
			if isDelta {
				if _, derr := stmts.deleteCert.ExecContext(ctx, iid, sn); derr != nil {
					err = derr
					return false, NewImportError("deleteCert", StoreError, derr)
				}
				c.Deleted++
			} else {
				log.Printf("crlimport: removeFromCRL entry for serial %s ignored in full CRL", sn)
				c.Skipped++
			}
			continue
		}

		if rerr := e.upsertRevocation(ctx, conn, stmts, alloc, iid, sn, entry, importStart, &c); rerr != nil {
			err = rerr
			return false, NewImportError("upsertRevocation", StoreError, rerr)
		}
	}

	if merr := e.ingestCertificateMaterial(ctx, conn, stmts, alloc, iid, caCert, crl, basedir, importStart, &c); merr != nil {
		err = merr
		var ie *ImportError
		if errors.As(merr, &ie) {
			return false, ie
		}
		return false, NewImportError("ingestCertificateMaterial", StoreError, merr)
	}

	if !isDelta {
		deleted, serr := e.sweep(ctx, conn, iid, importStart)
		if serr != nil {
			err = serr
			return false, NewImportError("sweep", StoreError, serr)
		}
		c.Deleted += deleted
	}

	return true, nil
}

// upsertIssuer resolves the ISSUER row keyed by the CA certificate's SHA-1
// fingerprint, enforcing CRL-number monotonicity and delta-base matching,
// and writes the new CrlInfo/revocation state.
func (e *Engine) upsertIssuer(ctx context.Context, conn *sql.Conn, caCert *certInfo, caRev *caRevocation, crl *crlparse.Parser, crlID []byte, isDelta bool) (iid int64, isNew bool, err error) {
	s1c := fingerprintS1C(caCert.Raw)

	selectStmt, err := e.DataSource.Prepare(ctx, conn, crlstore.SQLSelectIssuerByFingerprint)
	if err != nil {
		return 0, false, NewImportError("selectIssuer", StoreError, err)
	}
	defer selectStmt.Close()

	var storedCrlInfoText string
	scanErr := selectStmt.QueryRowContext(ctx, s1c).Scan(&iid, &storedCrlInfoText)

	newCrlInfo := crlstore.CrlInfo{
		CrlNumber:     crl.CRLNumber(),
		BaseCrlNumber: crl.BaseCRLNumber(),
		ThisUpdate:    crl.ThisUpdate(),
		CrlID:         crlID,
	}
	if nextUpdate, ok := crl.NextUpdate(); ok {
		newCrlInfo.NextUpdate = nextUpdate
	}

	var revInfo *string
	if caRev != nil {
		encoded := crlstore.CertRevocationInfo{
			RevocationTime: caRev.RevocationTime,
			InvalidityTime: caRev.InvalidityTime,
		}.Encode()
		revInfo = &encoded
	}

	if errors.Is(scanErr, sql.ErrNoRows) {
		if isDelta {
			return 0, false, NewImportError("upsertIssuer", NeedFullCrlFirst, ErrNeedFullCrlFirst)
		}

		newID, gerr := e.DataSource.GetMax(ctx, conn, "ISSUER", "ID")
		if gerr != nil {
			return 0, false, NewImportError("allocateIssuerID", StoreError, gerr)
		}
		newID++

		insertStmt, perr := e.DataSource.Prepare(ctx, conn, crlstore.SQLInsertIssuer)
		if perr != nil {
			return 0, false, NewImportError("insertIssuer", StoreError, perr)
		}
		defer insertStmt.Close()

		_, eerr := insertStmt.ExecContext(ctx, newID, caCert.Subject.String(), caCert.NotBefore.Unix(), caCert.NotAfter.Unix(),
			s1c, base64.StdEncoding.EncodeToString(caCert.Raw), revInfo, newCrlInfo.Encode())
		if eerr != nil {
			return 0, false, NewImportError("insertIssuer", StoreError, eerr)
		}
		return newID, true, nil
	}
	if scanErr != nil {
		return 0, false, NewImportError("selectIssuer", StoreError, scanErr)
	}

	stored, derr := crlstore.DecodeCrlInfo(storedCrlInfoText)
	if derr != nil {
		return 0, false, NewImportError("decodeCrlInfo", EncodingError, derr)
	}
	if newCrlInfo.CrlNumber.Cmp(stored.CrlNumber) <= 0 {
		return 0, false, NewImportError("upsertIssuer", CrlNotNewer, ErrCrlNotNewer)
	}
	if isDelta {
		expectedBase := stored.CrlNumber
		if stored.BaseCrlNumber != nil {
			expectedBase = stored.BaseCrlNumber
		}
		if newCrlInfo.BaseCrlNumber == nil || newCrlInfo.BaseCrlNumber.Cmp(expectedBase) != 0 {
			return 0, false, NewImportError("upsertIssuer", DeltaBaseMismatch, ErrDeltaBaseMismatch)
		}
	}

	updateStmt, perr := e.DataSource.Prepare(ctx, conn, crlstore.SQLUpdateIssuer)
	if perr != nil {
		return 0, false, NewImportError("updateIssuer", StoreError, perr)
	}
	defer updateStmt.Close()

	if _, eerr := updateStmt.ExecContext(ctx, revInfo, newCrlInfo.Encode(), iid); eerr != nil {
		return 0, false, NewImportError("updateIssuer", StoreError, eerr)
	}
	return iid, false, nil
}

func (e *Engine) lookupCertID(ctx context.Context, conn *sql.Conn, iid int64, sn string) (id int64, found bool, err error) {
	query := e.DataSource.BuildSelectFirst(1, crlstore.CoreSelectIDCert)
	stmt, err := e.DataSource.Prepare(ctx, conn, query)
	if err != nil {
		return 0, false, err
	}
	defer stmt.Close()

	err = stmt.QueryRowContext(ctx, iid, sn).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// upsertRevocation applies one ordinary (non-removeFromCRL) revoked entry:
// update in place if the serial is already known, otherwise insert a
// revocation-only row.
func (e *Engine) upsertRevocation(ctx context.Context, conn *sql.Conn, stmts *statements, alloc *idAllocator, iid int64, sn string, entry crlparse.RevokedCert, importStart time.Time, c *counts) error {
	id, found, err := e.lookupCertID(ctx, conn, iid, sn)
	if err != nil {
		return err
	}

	reason := int(entry.Reason)
	revTime := entry.RevocationDate.Unix()
	var invalTime *int64
	if entry.InvalidityDate != nil {
		t := entry.InvalidityDate.Unix()
		invalTime = &t
	}
	lupdate := importStart.Unix()

	op := certOpInsert
	if found {
		op = certOpUpdate
	}

	switch op {
	case certOpUpdate:
		if _, err := stmts.updateCertRev.ExecContext(ctx, 1, reason, revTime, invalTime, lupdate, id); err != nil {
			return err
		}
		c.Updated++
	case certOpInsert:
		newID := alloc.Allocate()
		if _, err := stmts.insertCertRev.ExecContext(ctx, newID, iid, sn, 1, reason, revTime, invalTime, lupdate); err != nil {
			return err
		}
		c.Inserted++
	}
	return nil
}

// ingestCertificateMaterial imports the certificate material accompanying
// the CRL: the id_xipki_ext_crlCertset extension if present, else the
// certs/ directory.
func (e *Engine) ingestCertificateMaterial(ctx context.Context, conn *sql.Conn, stmts *statements, alloc *idAllocator, iid int64, caCert *certInfo, crl *crlparse.Parser, basedir string, importStart time.Time, c *counts) error {
	if value := crl.FindExtension(crlparse.OIDCrlCertSet); value != nil {
		entries, err := parseCrlCertSet(value)
		if err != nil {
			return NewImportError("parseCrlCertSet", InputMalformed, err)
		}
		for _, entry := range entries {
			if entry.Cert == nil {
				continue
			}
			if entry.Cert.Issuer.String() != caCert.Subject.String() || entry.Cert.SerialNumber.Cmp(entry.SerialNumber) != 0 {
				log.Printf("crlimport: crlCertSet entry serial %s: certificate issuer/serial mismatch, skipping", entry.SerialNumber.Text(16))
				c.Skipped++
				continue
			}
			if err := e.admitCertificate(ctx, conn, stmts, alloc, iid, caCert.SubjectKeyId, entry.Cert, importStart, c); err != nil {
				return NewImportError("admitCertificate", StoreError, err)
			}
		}
		return nil
	}

	certsDir := filepath.Join(basedir, "certs")
	dirInfo, err := os.Stat(certsDir)
	if err != nil || !dirInfo.IsDir() {
		return nil
	}

	entries, err := scanCertsDir(certsDir)
	if err != nil {
		return NewImportError("scanCertsDir", InputMalformed, err)
	}

	for _, path := range entries.CertFiles {
		info, err := parseCertificateFile(path)
		if err != nil {
			log.Printf("crlimport: %s: %v, skipping", path, err)
			c.Skipped++
			continue
		}
		if err := e.admitCertificate(ctx, conn, stmts, alloc, iid, caCert.SubjectKeyId, info, importStart, c); err != nil {
			return NewImportError("admitCertificate", StoreError, err)
		}
	}

	for _, path := range entries.SerialsFiles {
		serials, err := parseSerialsFile(path)
		if err != nil {
			return NewImportError("parseSerialsFile", InputMalformed, err)
		}
		for _, sn := range serials {
			if err := e.admitSerialOnly(ctx, conn, stmts, alloc, iid, sn, importStart, c); err != nil {
				return NewImportError("admitSerialOnly", StoreError, err)
			}
		}
	}

	return nil
}

// admitCertificate upserts a fully-known certificate row (with hash and
// validity bounds), after checking the incoming certificate's Authority Key
// Identifier against the CA's own Subject Key Identifier.
func (e *Engine) admitCertificate(ctx context.Context, conn *sql.Conn, stmts *statements, alloc *idAllocator, iid int64, caSKI []byte, info *certInfo, importStart time.Time, c *counts) error {
	sn := info.SerialNumber.Text(16)

	if len(info.AuthorityKeyId) > 0 && len(caSKI) > 0 && !bytes.Equal(info.AuthorityKeyId, caSKI) {
		log.Printf("crlimport: certificate serial %s: AKI does not match CA SKI, skipping", sn)
		c.Skipped++
		return nil
	}

	id, found, err := e.lookupCertID(ctx, conn, iid, sn)
	if err != nil {
		return err
	}

	hash := e.HashAlgo.Base64Hash(info.Raw)
	lupdate := importStart.Unix()
	nbefore := info.NotBefore.Unix()
	nafter := info.NotAfter.Unix()

	op := certOpInsert
	if found {
		op = certOpUpdate
	}

	switch op {
	case certOpUpdate:
		if _, err := stmts.updateCert.ExecContext(ctx, lupdate, nbefore, nafter, hash, id); err != nil {
			return err
		}
		c.Updated++
	case certOpInsert:
		newID := alloc.Allocate()
		if _, err := stmts.insertCert.ExecContext(ctx, newID, iid, sn, 0, nil, nil, nil, lupdate, nbefore, nafter, hash); err != nil {
			return err
		}
		c.Inserted++
	}
	return nil
}

// admitSerialOnly upserts a serial-only row (sentinel validity bounds, no
// hash) for a .serials entry.
func (e *Engine) admitSerialOnly(ctx context.Context, conn *sql.Conn, stmts *statements, alloc *idAllocator, iid int64, sn string, importStart time.Time, c *counts) error {
	id, found, err := e.lookupCertID(ctx, conn, iid, sn)
	if err != nil {
		return err
	}
	lupdate := importStart.Unix()

	op := certOpInsert
	if found {
		op = certOpUpdate
	}

	switch op {
	case certOpUpdate:
		if _, err := stmts.updateCert.ExecContext(ctx, lupdate, int64(0), crlstore.SentinelNotAfter, nil, id); err != nil {
			return err
		}
		c.Updated++
	case certOpInsert:
		newID := alloc.Allocate()
		if _, err := stmts.insertCert.ExecContext(ctx, newID, iid, sn, 0, nil, nil, nil, lupdate, int64(0), crlstore.SentinelNotAfter, nil); err != nil {
			return err
		}
		c.Inserted++
	}
	return nil
}

// sweep deletes every CERT row for iid not touched by this run, for full
// CRLs only. iid and the LUPDATE cutoff are engine-computed values, never
// operator input, so they are safe to embed as literals in a query run via
// DataSource.Exec rather than through a prepared statement.
func (e *Engine) sweep(ctx context.Context, conn *sql.Conn, iid int64, importStart time.Time) (int, error) {
	query := fmt.Sprintf("%s%d AND LUPDATE<%d", crlstore.SQLDeleteCertNotUpdatedSincePrefix, iid, importStart.Unix())
	n, err := e.DataSource.Exec(ctx, conn, query)
	return int(n), err
}

func (e *Engine) recordAudit(caCert *certInfo, crl *crlparse.Parser, c counts, success bool, err error) {
	result := audit.ResultSuccess
	if !success {
		result = audit.ResultFailure
	}

	obj := audit.Object{Type: "crl"}
	ctxFields := audit.Context{
		Inserted: c.Inserted,
		Updated:  c.Updated,
		Deleted:  c.Deleted,
		Skipped:  c.Skipped,
	}
	if caCert != nil {
		obj.Subject = caCert.Subject.String()
	}
	if crl != nil {
		ctxFields.CRLNumber = crl.CRLNumber().String()
		if base := crl.BaseCRLNumber(); base != nil {
			ctxFields.BaseCRLNumber = base.String()
		}
	}
	if err != nil {
		ctxFields.Reason = err.Error()
	}

	event := audit.NewEvent(audit.EventCRLImported, result).WithObject(obj).WithContext(ctxFields)
	if werr := e.auditWriter().Write(event); werr != nil {
		log.Printf("crlimport: audit write failed: %v", werr)
	}
}
