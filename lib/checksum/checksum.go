// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

// Package checksum computes and verifies content digests for container
// payloads and cached binaries. SHA-512 is the default; BLAKE3 is
// offered for large binaries where hashing time is noticeable.
package checksum

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm identifies a digest algorithm. The numeric values are
// trailer protocol constants; changing them breaks container format
// compatibility.
type Algorithm uint8

const (
	SHA512 Algorithm = 1
	BLAKE3 Algorithm = 2
)

// MaxDigestSize is the largest digest any supported algorithm
// produces. Trailers reserve this many bytes for the digest field.
const MaxDigestSize = sha512.Size

// String returns the algorithm name used in metadata sidecars.
func (a Algorithm) String() string {
	switch a {
	case SHA512:
		return "sha512"
	case BLAKE3:
		return "blake3"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// Parse parses an algorithm from its string name.
func Parse(name string) (Algorithm, error) {
	switch name {
	case "sha512":
		return SHA512, nil
	case "blake3":
		return BLAKE3, nil
	default:
		return 0, fmt.Errorf("unknown checksum algorithm: %q", name)
	}
}

// Size returns the digest length in bytes, or 0 for an unknown
// algorithm.
func (a Algorithm) Size() int {
	switch a {
	case SHA512:
		return sha512.Size
	case BLAKE3:
		return 32
	default:
		return 0
	}
}

// Sum computes the digest of data.
func Sum(data []byte, algorithm Algorithm) ([]byte, error) {
	switch algorithm {
	case SHA512:
		digest := sha512.Sum512(data)
		return digest[:], nil
	case BLAKE3:
		digest := blake3.Sum256(data)
		return digest[:], nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm: %d", algorithm)
	}
}

// Verify recomputes the digest of data and compares it against
// expected in constant time. Returns an error naming the algorithm on
// mismatch.
func Verify(data []byte, expected []byte, algorithm Algorithm) error {
	actual, err := Sum(data, algorithm)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(actual, expected) != 1 {
		return fmt.Errorf("%s checksum mismatch: have %s, want %s",
			algorithm, hex.EncodeToString(actual), hex.EncodeToString(expected))
	}
	return nil
}

// Format returns the sidecar representation of a digest:
// "<algorithm>-<hex>", e.g. "sha512-a3f1...".
func Format(digest []byte, algorithm Algorithm) string {
	return algorithm.String() + "-" + hex.EncodeToString(digest)
}

// ParseFormatted splits a sidecar checksum string back into its
// algorithm and raw digest.
func ParseFormatted(formatted string) (Algorithm, []byte, error) {
	name, hexDigest, found := strings.Cut(formatted, "-")
	if !found {
		return 0, nil, fmt.Errorf("malformed checksum %q: missing algorithm prefix", formatted)
	}
	algorithm, err := Parse(name)
	if err != nil {
		return 0, nil, err
	}
	digest, err := hex.DecodeString(hexDigest)
	if err != nil {
		return 0, nil, fmt.Errorf("malformed checksum %q: %w", formatted, err)
	}
	if len(digest) != algorithm.Size() {
		return 0, nil, fmt.Errorf("checksum %q is %d bytes, want %d", formatted, len(digest), algorithm.Size())
	}
	return algorithm, digest, nil
}
