// Package issuercfg loads the small per-issuer YAML configuration the
// Import Engine and response templating consult: which digest algorithm to
// hash certificates with, and where to find that issuer's default import
// basedir.
package issuercfg

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/remiblancher/ocsp-responder-store/internal/hashalgo"
)

// configYAML is the on-disk representation.
type configYAML struct {
	HashAlgorithm string `yaml:"hashAlgorithm"`
	BaseDir       string `yaml:"baseDir,omitempty"`
	CRLURL        string `yaml:"crlUrl,omitempty"`
}

// Config is one issuer's validated, resolved configuration.
type Config struct {
	HashAlgo hashalgo.HashAlgo
	BaseDir  string
	CRLURL   string
}

// Validate rejects an unknown hash-algorithm name or a config that failed
// to resolve one at all.
func (c *Config) Validate() error {
	if !c.HashAlgo.Valid() {
		return fmt.Errorf("issuercfg: invalid hash algorithm %q", c.HashAlgo)
	}
	return nil
}

// LoadIssuerConfigFromFile reads and validates the YAML file at path.
func LoadIssuerConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("issuercfg: reading %s: %w", path, err)
	}
	return loadIssuerConfigFromBytes(data)
}

func loadIssuerConfigFromBytes(data []byte) (*Config, error) {
	var cy configYAML
	if err := yaml.Unmarshal(data, &cy); err != nil {
		return nil, fmt.Errorf("issuercfg: parsing YAML: %w", err)
	}

	algo, err := hashalgo.Parse(cy.HashAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("issuercfg: %w", err)
	}

	cfg := &Config{
		HashAlgo: algo,
		BaseDir:  cy.BaseDir,
		CRLURL:   cy.CRLURL,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Cache loads and memoizes Config values keyed by issuer fingerprint
// (typically the CA certificate's base64 SHA-1, matching ISSUER.S1C), so a
// long-running responder process does not re-read and re-parse the same
// file on every import against that issuer.
type Cache struct {
	mu      sync.RWMutex
	byFP    map[string]*Config
	pathFor func(fingerprint string) string
}

// NewCache creates a Cache that resolves a fingerprint to a file path via
// pathFor, typically joining a config directory with "<fingerprint>.yaml".
func NewCache(pathFor func(fingerprint string) string) *Cache {
	return &Cache{
		byFP:    make(map[string]*Config),
		pathFor: pathFor,
	}
}

// Get returns the cached Config for fingerprint, loading it from disk on
// first use.
func (c *Cache) Get(fingerprint string) (*Config, error) {
	c.mu.RLock()
	cfg, ok := c.byFP[fingerprint]
	c.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg, ok := c.byFP[fingerprint]; ok {
		return cfg, nil
	}

	cfg, err := LoadIssuerConfigFromFile(c.pathFor(fingerprint))
	if err != nil {
		return nil, err
	}
	c.byFP[fingerprint] = cfg
	return cfg, nil
}

// Invalidate drops the cached entry for fingerprint, forcing the next Get
// to re-read the file.
func (c *Cache) Invalidate(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byFP, fingerprint)
}
