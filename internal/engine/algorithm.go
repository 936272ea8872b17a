package engine

import (
	"crypto/md5"  //nolint:gosec // G501: md5 is a user-selectable checksum, not a security boundary
	"crypto/sha1" //nolint:gosec // G505: sha1 is a user-selectable checksum, not a security boundary
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
)

// Algorithm names a digest algorithm.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	SHA384 Algorithm = "sha384"
	SHA512 Algorithm = "sha512"
	BLAKE3 Algorithm = "blake3"
	XXH64  Algorithm = "xxh64"
)

// DefaultAlgorithm is used when an item or config does not name one.
const DefaultAlgorithm = SHA256

type algorithmInfo struct {
	newHash func() hash.Hash
	hexLen  int
}

var algorithms = map[Algorithm]algorithmInfo{
	MD5:    {newHash: md5.New, hexLen: 32},
	SHA1:   {newHash: sha1.New, hexLen: 40},
	SHA256: {newHash: sha256.New, hexLen: 64},
	SHA384: {newHash: sha512.New384, hexLen: 96},
	SHA512: {newHash: sha512.New, hexLen: 128},
	BLAKE3: {newHash: func() hash.Hash { return blake3.New() }, hexLen: 64},
	XXH64:  {newHash: func() hash.Hash { return xxhash.New() }, hexLen: 16},
}

// Algorithms returns every supported algorithm in a stable order.
func Algorithms() []Algorithm {
	return []Algorithm{MD5, SHA1, SHA256, SHA384, SHA512, BLAKE3, XXH64}
}

// ParseAlgorithm resolves a case-insensitive algorithm name. "sha-256" style
// spellings are accepted.
func ParseAlgorithm(name string) (Algorithm, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", "")
	if n == "" {
		return DefaultAlgorithm, nil
	}
	a := Algorithm(n)
	if _, ok := algorithms[a]; !ok {
		return "", fmt.Errorf("unknown algorithm %q", name)
	}
	return a, nil
}

// New returns a fresh streaming hash for a.
func (a Algorithm) New() (hash.Hash, error) {
	info, ok := algorithms[a]
	if !ok {
		return nil, fmt.Errorf("unknown algorithm %q", string(a))
	}
	return info.newHash(), nil
}

// HexLen is the length of a hex-encoded digest for a, or 0 if unknown.
func (a Algorithm) HexLen() int {
	return algorithms[a].hexLen
}

// Ext is the sidecar file extension, including the dot.
func (a Algorithm) Ext() string {
	return "." + string(a)
}

func (a Algorithm) String() string { return string(a) }

// algorithmForLen guesses the algorithm of a manifest entry from its digest
// length. SHA256 wins the tie with BLAKE3.
func algorithmForLen(n int) (Algorithm, bool) {
	for _, a := range Algorithms() {
		if a == BLAKE3 {
			continue
		}
		if algorithms[a].hexLen == n {
			return a, true
		}
	}
	return "", false
}
