package issuercfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/remiblancher/ocsp-responder-store/internal/hashalgo"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func TestU_LoadIssuerConfigFromFile_Valid(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "issuer.yaml", "hashAlgorithm: SHA-256\nbaseDir: /var/crl/import\ncrlUrl: https://ca.example.com/crl\n")

	cfg, err := LoadIssuerConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadIssuerConfigFromFile() error = %v", err)
	}
	if cfg.HashAlgo != hashalgo.SHA256 {
		t.Errorf("HashAlgo = %v, want SHA256", cfg.HashAlgo)
	}
	if cfg.BaseDir != "/var/crl/import" {
		t.Errorf("BaseDir = %q", cfg.BaseDir)
	}
	if cfg.CRLURL != "https://ca.example.com/crl" {
		t.Errorf("CRLURL = %q", cfg.CRLURL)
	}
}

func TestU_LoadIssuerConfigFromFile_UnknownHashAlgorithm(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "issuer.yaml", "hashAlgorithm: MD5\n")

	if _, err := LoadIssuerConfigFromFile(path); err == nil {
		t.Fatal("expected an error for an unknown hash algorithm")
	}
}

func TestU_LoadIssuerConfigFromFile_NotFound(t *testing.T) {
	if _, err := LoadIssuerConfigFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a nonexistent file")
	}
}

func TestU_Cache_LoadsOnceAndMemoizes(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "abc.yaml", "hashAlgorithm: SHA-256\n")

	reads := 0
	cache := NewCache(func(fingerprint string) string {
		reads++
		return filepath.Join(dir, fingerprint+".yaml")
	})

	for i := 0; i < 3; i++ {
		cfg, err := cache.Get("abc")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if cfg.HashAlgo != hashalgo.SHA256 {
			t.Errorf("HashAlgo = %v", cfg.HashAlgo)
		}
	}
	if reads != 1 {
		t.Errorf("pathFor called %d times, want 1 (cache should memoize)", reads)
	}
}

func TestU_Cache_InvalidateForcesReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "abc.yaml", "hashAlgorithm: SHA-256\n")

	cache := NewCache(func(fingerprint string) string {
		return filepath.Join(dir, fingerprint+".yaml")
	})

	if _, err := cache.Get("abc"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	writeConfig(t, dir, "abc.yaml", "hashAlgorithm: SHA-512\n")
	_ = path

	cache.Invalidate("abc")
	cfg, err := cache.Get("abc")
	if err != nil {
		t.Fatalf("Get() after invalidate error = %v", err)
	}
	if cfg.HashAlgo != hashalgo.SHA512 {
		t.Errorf("HashAlgo after reload = %v, want SHA512", cfg.HashAlgo)
	}
}
