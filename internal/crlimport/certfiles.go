package crlimport

import (
	"bufio"
	"encoding/asn1"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// crlCertSetEntryASN1 mirrors the non-standard id_xipki_ext_crlCertset
// extension's per-entry shape: SEQUENCE { serialNumber INTEGER,
// [0] Certificate OPTIONAL, [1] UTF8String profileName OPTIONAL }.
type crlCertSetEntryASN1 struct {
	SerialNumber *big.Int
	Certificate  asn1.RawValue `asn1:"optional,tag:0"`
	ProfileName  string        `asn1:"optional,utf8,tag:1"`
}

// crlCertSetEntry is one decoded entry of the crlCertSet extension.
type crlCertSetEntry struct {
	SerialNumber *big.Int
	Cert         *certInfo // nil when the entry carries no embedded certificate
	ProfileName  string
}

// parseCrlCertSet decodes the SET OF crlCertSetEntryASN1 carried by the
// id_xipki_ext_crlCertset extension value.
func parseCrlCertSet(value []byte) ([]crlCertSetEntry, error) {
	var raw []asn1.RawValue
	if _, err := asn1.Unmarshal(value, &raw); err != nil {
		return nil, fmt.Errorf("crlimport: decoding crlCertSet: %w", err)
	}

	entries := make([]crlCertSetEntry, 0, len(raw))
	for _, r := range raw {
		var entry crlCertSetEntryASN1
		if _, err := asn1.Unmarshal(r.FullBytes, &entry); err != nil {
			return nil, fmt.Errorf("crlimport: decoding crlCertSet entry: %w", err)
		}
		out := crlCertSetEntry{SerialNumber: entry.SerialNumber, ProfileName: entry.ProfileName}
		if len(entry.Certificate.Bytes) > 0 {
			info, err := decodeEmbeddedCertificate(entry.Certificate)
			if err != nil {
				return nil, fmt.Errorf("crlimport: decoding crlCertSet entry %s certificate: %w", entry.SerialNumber, err)
			}
			out.Cert = info
		}
		entries = append(entries, out)
	}
	return entries, nil
}

// decodeEmbeddedCertificate recovers a Certificate from a [0]-tagged
// RawValue whose tagging discipline (EXPLICIT vs IMPLICIT) is not pinned
// down by any available schema for this non-standard extension: it first
// tries treating the content as an already-complete Certificate TLV
// (EXPLICIT), then falls back to re-tagging the content as a universal
// SEQUENCE (IMPLICIT).
func decodeEmbeddedCertificate(raw asn1.RawValue) (*certInfo, error) {
	if info, err := parseCertificateDER(raw.Bytes); err == nil {
		return info, nil
	}
	rewrapped, err := asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassUniversal,
		Tag:        asn1.TagSequence,
		IsCompound: true,
		Bytes:      raw.Bytes,
	})
	if err != nil {
		return nil, err
	}
	return parseCertificateDER(rewrapped)
}

// certsDirEntries is the sort-stable listing of a certs/ directory's
// recognized file kinds: certificate files (.der/.crt/.pem) then serials
// files (.serials), each in filename order.
type certsDirEntries struct {
	CertFiles    []string
	SerialsFiles []string
}

func scanCertsDir(dir string) (certsDirEntries, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return certsDirEntries{}, fmt.Errorf("crlimport: reading %s: %w", dir, err)
	}

	var out certsDirEntries
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch strings.ToLower(filepath.Ext(name)) {
		case ".der", ".crt", ".pem":
			out.CertFiles = append(out.CertFiles, filepath.Join(dir, name))
		case ".serials":
			out.SerialsFiles = append(out.SerialsFiles, filepath.Join(dir, name))
		}
	}
	sort.Strings(out.CertFiles)
	sort.Strings(out.SerialsFiles)
	return out, nil
}

// parseSerialsFile reads one hex serial number per line, ignoring blank
// lines and "#"-prefixed comments.
func parseSerialsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("crlimport: opening %s: %w", path, err)
	}
	defer f.Close()

	var serials []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sn, err := normalizeSerialHex(line)
		if err != nil {
			return nil, fmt.Errorf("crlimport: %s: %w", path, err)
		}
		serials = append(serials, sn)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("crlimport: reading %s: %w", path, err)
	}
	return serials, nil
}

// normalizeSerialHex parses a hex serial number (optionally "0x"-prefixed,
// optionally zero-padded) through big.Int and re-renders it the same way
// admitCertificate does, so a .serials entry always canonicalizes to the
// same sn the CERT table's (iid, sn) uniqueness invariant expects.
func normalizeSerialHex(s string) (string, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return "", fmt.Errorf("invalid hex serial number %q", s)
	}
	return n.Text(16), nil
}
