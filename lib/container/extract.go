// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"errors"
	"fmt"
	"os"

	"github.com/binpress-io/binpress/lib/checksum"
	"github.com/binpress-io/binpress/lib/dlxcache"
	"github.com/binpress-io/binpress/lib/press"
)

// ErrChecksumMismatch indicates the payload decompressed cleanly but
// its digest does not match the trailer's record of the original
// binary. The container was tampered with or silently corrupted.
var ErrChecksumMismatch = errors.New("extracted binary fails checksum verification")

// ExtractResult reports what Extract recovered.
type ExtractResult struct {
	Trailer      *Trailer
	OriginalSize uint64
	// Checksum is the verified digest in sidecar form,
	// "<algorithm>-<hex>".
	Checksum string
}

// Extract recovers the original binary from a container file and
// writes it to outputPath, executable bit set, via atomic rename.
// Extraction is standalone recovery: it never consults or populates
// the cache.
func Extract(containerPath, outputPath string) (*ExtractResult, error) {
	data, err := os.ReadFile(containerPath)
	if err != nil {
		return nil, fmt.Errorf("reading container: %w", err)
	}

	trailer, _, err := Locate(data)
	if err != nil {
		return nil, fmt.Errorf("locating trailer in %s: %w", containerPath, err)
	}

	original, err := Decompress(data, trailer)
	if err != nil {
		return nil, fmt.Errorf("extracting %s: %w", containerPath, err)
	}

	if err := writeExecutable(outputPath, original); err != nil {
		return nil, err
	}

	return &ExtractResult{
		Trailer:      trailer,
		OriginalSize: uint64(len(original)),
		Checksum:     checksum.Format(trailer.OriginalChecksum, trailer.Checksum),
	}, nil
}

// Decompress recovers and verifies the original binary from an
// in-memory container and its located trailer: cache key cross-check,
// bounded decode, then checksum verification. Both the extractor and
// the stub runtime go through this path.
func Decompress(data []byte, trailer *Trailer) ([]byte, error) {
	payload := Payload(data, trailer)

	// The key is derived from payload bytes alone. A mismatch with
	// the trailer's record means one of the two was altered.
	if derived := dlxcache.DeriveKey(payload); derived != trailer.CacheKey {
		return nil, fmt.Errorf("%w: cache key %s does not match payload-derived %s",
			ErrCorruptContainer, trailer.CacheKey, derived)
	}

	original, err := press.Decode(payload, trailer.Compression, trailer.UncompressedSize, press.MaxUncompressedSize)
	if err != nil {
		return nil, err
	}

	if err := checksum.Verify(original, trailer.OriginalChecksum, trailer.Checksum); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChecksumMismatch, err)
	}
	return original, nil
}

// Inspect reads a container file and returns its trailer without
// decompressing anything.
func Inspect(containerPath string) (*Trailer, error) {
	data, err := os.ReadFile(containerPath)
	if err != nil {
		return nil, fmt.Errorf("reading container: %w", err)
	}
	trailer, _, err := Locate(data)
	if err != nil {
		return nil, fmt.Errorf("locating trailer in %s: %w", containerPath, err)
	}
	return trailer, nil
}
