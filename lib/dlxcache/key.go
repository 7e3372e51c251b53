// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

// Package dlxcache manages the content-addressed cache of decompressed
// binaries. Entries are keyed by the compressed payload they came
// from, so identical containers always resolve to the same entry and
// racing stubs converge on identical bytes. There are no lock files:
// determinism plus atomic rename makes concurrent population safe.
package dlxcache

import (
	"crypto/sha512"
	"encoding/hex"
)

// KeyLength is the length of a cache key in hex characters.
const KeyLength = 16

// DeriveKey returns the cache key for a compressed payload: the first
// 16 lowercase hex characters of its SHA-512 digest. The key depends
// on nothing but the payload bytes.
func DeriveKey(compressedPayload []byte) string {
	digest := sha512.Sum512(compressedPayload)
	return hex.EncodeToString(digest[:])[:KeyLength]
}
