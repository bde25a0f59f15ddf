// Package hashalgo enumerates the digest algorithms the responder store
// understands for the CERT.HASH column and the CertHash OCSP extension.
package hashalgo

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/asn1"
	"encoding/base64"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/sha3"
)

// HashAlgo is a closed enumeration of the digest algorithms this store
// supports. The zero value is not a valid algorithm.
type HashAlgo int

const (
	SHA1 HashAlgo = iota + 1
	SHA224
	SHA256
	SHA384
	SHA512
	SHA3_224
	SHA3_256
	SHA3_384
	SHA3_512
)

// All lists every supported variant, in the order the response template
// cache builds its per-variant CertHash prefixes.
func All() []HashAlgo {
	return []HashAlgo{SHA1, SHA224, SHA256, SHA384, SHA512, SHA3_224, SHA3_256, SHA3_384, SHA3_512}
}

var names = map[HashAlgo]string{
	SHA1:     "SHA-1",
	SHA224:   "SHA-224",
	SHA256:   "SHA-256",
	SHA384:   "SHA-384",
	SHA512:   "SHA-512",
	SHA3_224: "SHA3-224",
	SHA3_256: "SHA3-256",
	SHA3_384: "SHA3-384",
	SHA3_512: "SHA3-512",
}

// OIDs per NIST/RFC registration (SHA-1: OIW; SHA-2/SHA-3: NIST hashAlgs arc).
var oids = map[HashAlgo]asn1.ObjectIdentifier{
	SHA1:     {1, 3, 14, 3, 2, 26},
	SHA224:   {2, 16, 840, 1, 101, 3, 4, 2, 4},
	SHA256:   {2, 16, 840, 1, 101, 3, 4, 2, 1},
	SHA384:   {2, 16, 840, 1, 101, 3, 4, 2, 2},
	SHA512:   {2, 16, 840, 1, 101, 3, 4, 2, 3},
	SHA3_224: {2, 16, 840, 1, 101, 3, 4, 2, 7},
	SHA3_256: {2, 16, 840, 1, 101, 3, 4, 2, 8},
	SHA3_384: {2, 16, 840, 1, 101, 3, 4, 2, 9},
	SHA3_512: {2, 16, 840, 1, 101, 3, 4, 2, 10},
}

var lengths = map[HashAlgo]int{
	SHA1:     20,
	SHA224:   28,
	SHA256:   32,
	SHA384:   48,
	SHA512:   64,
	SHA3_224: 28,
	SHA3_256: 32,
	SHA3_384: 48,
	SHA3_512: 64,
}

// String returns the canonical display name, e.g. "SHA3-256".
func (h HashAlgo) String() string {
	if n, ok := names[h]; ok {
		return n
	}
	return fmt.Sprintf("HashAlgo(%d)", int(h))
}

// OID returns the digest algorithm's object identifier.
func (h HashAlgo) OID() asn1.ObjectIdentifier {
	return oids[h]
}

// Length returns the digest length in bytes.
func (h HashAlgo) Length() int {
	return lengths[h]
}

// Valid reports whether h is one of the closed set of supported variants.
func (h HashAlgo) Valid() bool {
	_, ok := names[h]
	return ok
}

// New returns a fresh streaming hash.Hash for this variant.
func (h HashAlgo) New() hash.Hash {
	switch h {
	case SHA1:
		return sha1.New()
	case SHA224:
		return sha256.New224()
	case SHA256:
		return sha256.New()
	case SHA384:
		return sha512.New384()
	case SHA512:
		return sha512.New()
	case SHA3_224:
		return sha3.New224()
	case SHA3_256:
		return sha3.New256()
	case SHA3_384:
		return sha3.New384()
	case SHA3_512:
		return sha3.New512()
	default:
		panic(fmt.Sprintf("hashalgo: unsupported variant %d", int(h)))
	}
}

// Base64Hash digests data in one shot and returns it standard-base64 encoded
// (with padding), matching Bouncy Castle's default encoder so imported
// fingerprints compare equal against interop fixtures.
func (h HashAlgo) Base64Hash(data []byte) string {
	sum := h.New()
	sum.Write(data)
	return base64.StdEncoding.EncodeToString(sum.Sum(nil))
}

// Parse resolves a configuration-file name (case-insensitive; "_" and "-"
// separators are interchangeable and may be omitted, so "SHA256",
// "sha_256" and "SHA-256" all name SHA-256) to a HashAlgo.
func Parse(name string) (HashAlgo, error) {
	strip := strings.NewReplacer("_", "", "-", "")
	key := strings.ToUpper(strip.Replace(name))
	for algo, n := range names {
		if strings.ToUpper(strip.Replace(n)) == key {
			return algo, nil
		}
	}
	return 0, fmt.Errorf("hashalgo: unknown hash algorithm %q", name)
}
