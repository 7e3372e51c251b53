// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides binpress's standard CBOR encoding
// configuration.
//
// Binpress uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: the cache metadata sidecar (read
//     by third-party cache inspection tooling) and CLI --json output.
//   - CBOR for internal state: the update-check state file next to
//     each cache entry, written and read only by binpress itself.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2):
// sorted map keys, smallest integer encoding, no indefinite-length
// items. Same logical data always produces identical bytes, which
// keeps racing atomic rewrites of state files convergent.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Internal-only types use `cbor` struct tags; types that also appear
// in JSON output use `json` tags, which fxamacker/cbor reads as a
// fallback. Never both on one field.
package codec
