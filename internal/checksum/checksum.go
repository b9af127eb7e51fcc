// Package checksum computes content fingerprints over byte streams.
//
// Every algorithm is exposed through the same Checksummer capability: bytes
// are consumed incrementally through Write and Fingerprint finalizes the
// digest. The result never depends on how the input was split into chunks.
package checksum

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/adler32"
	"hash/crc32"
	"strings"

	"github.com/zeebo/blake3"
	"github.com/zeebo/xxh3"

	"github.com/engineercoding/dedupe/internal/constants"
)

// Algorithm identifies a fingerprint algorithm.
type Algorithm string

const (
	BLAKE3     Algorithm = constants.AlgorithmBLAKE3
	XXH3       Algorithm = constants.AlgorithmXXH3
	SHA256     Algorithm = constants.AlgorithmSHA256
	CRC32      Algorithm = constants.AlgorithmCRC32
	Adler32    Algorithm = constants.AlgorithmAdler32
	Fletcher16 Algorithm = constants.AlgorithmFletcher16
	Fletcher32 Algorithm = constants.AlgorithmFletcher32
	Fletcher64 Algorithm = constants.AlgorithmFletcher64

	Default = BLAKE3
)

type algorithmInfo struct {
	description   string
	cryptographic bool
	newHash       func() hash.Hash
}

var registry = map[Algorithm]algorithmInfo{
	BLAKE3:     {"BLAKE3 256-bit, cryptographic, SIMD accelerated", true, func() hash.Hash { return blake3.New() }},
	XXH3:       {"XXH3 128-bit, non-cryptographic, SIMD accelerated", false, func() hash.Hash { return &xxh3Hash{Hasher: xxh3.New()} }},
	SHA256:     {"SHA-256, cryptographic", true, sha256.New},
	CRC32:      {"CRC-32 (IEEE), hardware accelerated", false, func() hash.Hash { return crc32.NewIEEE() }},
	Adler32:    {"Adler-32", false, func() hash.Hash { return adler32.New() }},
	Fletcher16: {"Fletcher-16, byte-wise compatibility checksum", false, func() hash.Hash { return newFletcher(16) }},
	Fletcher32: {"Fletcher-32, byte-wise compatibility checksum", false, func() hash.Hash { return newFletcher(32) }},
	Fletcher64: {"Fletcher-64, byte-wise compatibility checksum", false, func() hash.Hash { return newFletcher(64) }},
}

// order is the stable listing order for Algorithms.
var order = []Algorithm{BLAKE3, XXH3, SHA256, CRC32, Adler32, Fletcher16, Fletcher32, Fletcher64}

// Algorithms returns every supported algorithm in a stable order.
func Algorithms() []Algorithm {
	out := make([]Algorithm, len(order))
	copy(out, order)
	return out
}

// ParseAlgorithm validates an algorithm name. The empty string selects the default.
func ParseAlgorithm(name string) (Algorithm, error) {
	if name == "" {
		return Default, nil
	}
	alg := Algorithm(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := registry[alg]; !ok {
		return "", fmt.Errorf("unsupported checksum algorithm: %s", name)
	}
	return alg, nil
}

// Description is a one-line human description of the algorithm.
func (a Algorithm) Description() string {
	return registry[a].description
}

// Cryptographic reports whether fingerprint collisions are computationally infeasible.
func (a Algorithm) Cryptographic() bool {
	return registry[a].cryptographic
}

func (a Algorithm) String() string { return string(a) }

// Fingerprint is a comparable digest of a byte stream together with the
// algorithm that produced it.
type Fingerprint struct {
	Algorithm Algorithm
	Digest    string // lower-case hex
}

// IsZero reports whether the fingerprint is unset.
func (f Fingerprint) IsZero() bool {
	return f.Algorithm == "" && f.Digest == ""
}

// Short returns a truncated digest for display.
func (f Fingerprint) Short() string {
	if len(f.Digest) > constants.DisplayDigestLength {
		return f.Digest[:constants.DisplayDigestLength]
	}
	return f.Digest
}

func (f Fingerprint) String() string {
	return string(f.Algorithm) + ":" + f.Digest
}

// ParseFingerprint parses the "algorithm:digest" form produced by String.
func ParseFingerprint(s string) (Fingerprint, error) {
	name, digest, ok := strings.Cut(s, ":")
	if !ok || digest == "" {
		return Fingerprint{}, fmt.Errorf("malformed fingerprint %q", s)
	}
	alg, err := ParseAlgorithm(name)
	if err != nil {
		return Fingerprint{}, err
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return Fingerprint{}, fmt.Errorf("malformed fingerprint digest %q: %w", digest, err)
	}
	return Fingerprint{Algorithm: alg, Digest: strings.ToLower(digest)}, nil
}

// Checksummer consumes bytes incrementally and emits a Fingerprint.
// Write never returns an error.
type Checksummer interface {
	Write(p []byte) (int, error)
	Fingerprint() Fingerprint
	Reset()
}

type hashChecksummer struct {
	alg Algorithm
	h   hash.Hash
}

// New opens a Checksummer for the algorithm.
func New(alg Algorithm) (Checksummer, error) {
	info, ok := registry[alg]
	if !ok {
		return nil, fmt.Errorf("unsupported checksum algorithm: %s", alg)
	}
	return &hashChecksummer{alg: alg, h: info.newHash()}, nil
}

func (c *hashChecksummer) Write(p []byte) (int, error) { return c.h.Write(p) }

func (c *hashChecksummer) Fingerprint() Fingerprint {
	return Fingerprint{Algorithm: c.alg, Digest: hex.EncodeToString(c.h.Sum(nil))}
}

func (c *hashChecksummer) Reset() { c.h.Reset() }

// Sum fingerprints an in-memory byte slice.
func Sum(alg Algorithm, data []byte) (Fingerprint, error) {
	c, err := New(alg)
	if err != nil {
		return Fingerprint{}, err
	}
	_, _ = c.Write(data)
	return c.Fingerprint(), nil
}

// xxh3Hash widens the xxh3 streaming hasher to its 128-bit digest.
type xxh3Hash struct {
	*xxh3.Hasher
}

func (x *xxh3Hash) Size() int { return 16 }

func (x *xxh3Hash) Sum(b []byte) []byte {
	sum := x.Hasher.Sum128().Bytes()
	return append(b, sum[:]...)
}

// digestBytes renders an unsigned checksum big-endian in the given width.
func digestBytes(b []byte, v uint64, width int) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(b, buf[8-width:]...)
}
