// Package crlstore owns the ISSUER/CERT row shapes, the canonical SQL the
// import engine issues against them, and the text-column codecs for the
// CrlInfo and CertRevocationInfo values embedded in ISSUER rows.
package crlstore

// Canonical SQL strings. The DataSource implementation translates these to
// its dialect; BuildSelectFirst additionally wraps CoreSelectIDCert in a
// dialect-specific "limit 1" form.
const (
	SQLInsertCert = "INSERT INTO CERT (ID,IID,SN,REV,RR,RT,RIT,LUPDATE,NBEFORE,NAFTER,HASH) VALUES(?,?,?,?,?,?,?,?,?,?,?)"

	SQLUpdateCert = "UPDATE CERT SET LUPDATE=?,NBEFORE=?,NAFTER=?,HASH=? WHERE ID=?"

	SQLInsertCertRev = "INSERT INTO CERT (ID,IID,SN,REV,RR,RT,RIT,LUPDATE) VALUES(?,?,?,?,?,?,?,?)"

	SQLUpdateCertRev = "UPDATE CERT SET REV=?,RR=?,RT=?,RIT=?,LUPDATE=? WHERE ID=?"

	SQLDeleteCert = "DELETE FROM CERT WHERE IID=? AND SN=?"

	// CoreSelectIDCert is wrapped by the DataSource's BuildSelectFirst(1, ...)
	// into a dialect-specific "limit 1" form; it is not issued verbatim.
	CoreSelectIDCert = "ID FROM CERT WHERE IID=? AND SN=?"

	SQLSelectIssuerByFingerprint = "SELECT ID,CRL_INFO FROM ISSUER WHERE S1C=?"

	SQLInsertIssuer = "INSERT INTO ISSUER (ID,SUBJECT,NBEFORE,NAFTER,S1C,CERT,REV_INFO,CRL_INFO) VALUES(?,?,?,?,?,?,?,?)"

	SQLUpdateIssuer = "UPDATE ISSUER SET REV_INFO=?,CRL_INFO=? WHERE ID=?"

	// SQLDeleteCertNotUpdatedSincePrefix has both IID and the LUPDATE
	// cutoff bound inline by the caller rather than as placeholders,
	// mirroring the one statement in this engine that is never prepared
	// (it runs once per full-CRL import, against values the engine itself
	// computed — the issuer id and importStart — never operator input).
	SQLDeleteCertNotUpdatedSincePrefix = "DELETE FROM CERT WHERE IID="

)

// Issuer is one row of the ISSUER table.
type Issuer struct {
	ID       int64
	Subject  string
	NotBefore int64
	NotAfter  int64
	S1C      string
	Cert     string
	RevInfo  *string
	CrlInfo  string
}

// Cert is one row of the CERT table. NBefore, NAfter, and Hash are null for
// a revocation-only row (the certificate material itself was never seen,
// only its presence on a CRL).
type Cert struct {
	ID      int64
	IID     int64
	SN      string
	Rev     int
	RR      *int
	RT      *int64
	RIT     *int64
	LUpdate int64
	NBefore *int64
	NAfter  *int64
	Hash    *string
}

// SentinelNotAfter is the "validity unknown" sentinel used for serial-only
// admissions (the .serials file path), matching spec.md's i64::MAX.
const SentinelNotAfter int64 = 1<<63 - 1
