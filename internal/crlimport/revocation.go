package crlimport

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"
)

const revocationTimeLayout = "20060102150405"

// caRevocation is the decoded content of an optional REVOCATION properties
// file: the CA's own revocation state, when the CA certificate itself has
// been revoked.
type caRevocation struct {
	RevocationTime time.Time
	InvalidityTime *time.Time
}

// parseRevocationFile reads a Java-properties-style file (key=value per
// line, "#"-prefixed comments) with keys ca.revocation.time (required) and
// ca.invalidity.time (optional), both in UTC yyyyMMddhhmmss form.
func parseRevocationFile(path string) (*caRevocation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("crlimport: opening %s: %w", path, err)
	}
	defer f.Close()

	props := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		props[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("crlimport: reading %s: %w", path, err)
	}

	revStr, ok := props["ca.revocation.time"]
	if !ok {
		return nil, fmt.Errorf("crlimport: %s: missing ca.revocation.time", path)
	}
	revTime, err := time.ParseInLocation(revocationTimeLayout, revStr, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("crlimport: %s: malformed ca.revocation.time: %w", path, err)
	}

	rev := &caRevocation{RevocationTime: revTime}
	if invalStr, ok := props["ca.invalidity.time"]; ok && invalStr != "" {
		invalTime, err := time.ParseInLocation(revocationTimeLayout, invalStr, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("crlimport: %s: malformed ca.invalidity.time: %w", path, err)
		}
		rev.InvalidityTime = &invalTime
	}
	return rev, nil
}
