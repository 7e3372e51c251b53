// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

package dlxcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MetadataFileName is the sidecar written next to each cached binary.
// The leading dot keeps it out of the way of the binary itself.
const MetadataFileName = ".dlx-metadata.json"

// MetadataVersion is the current sidecar schema version.
const MetadataVersion = 1

// SourceDecompression marks entries produced by a stub decompressing
// its own payload, currently the only source type.
const SourceDecompression = "decompression"

// Metadata is the JSON sidecar describing a cache entry. The schema is
// shared with external tooling that inspects caches, so field names
// are part of the contract.
type Metadata struct {
	Version  int    `json:"version"`
	CacheKey string `json:"cache_key"`

	// Timestamp is milliseconds since the Unix epoch at population
	// time.
	Timestamp int64 `json:"timestamp"`

	// Checksum is the digest of the cached binary in
	// "<algorithm>-<hex>" form.
	Checksum          string `json:"checksum"`
	ChecksumAlgorithm string `json:"checksum_algorithm"`

	Platform string `json:"platform"`
	Arch     string `json:"arch"`
	Libc     string `json:"libc,omitempty"`
	Size     uint64 `json:"size"`

	Source Source `json:"source"`
	Extra  Extra  `json:"extra"`
}

// Source records where a cache entry came from.
type Source struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// Extra carries compression statistics for inspection tooling.
type Extra struct {
	CompressedSize       uint64  `json:"compressed_size"`
	CompressionAlgorithm string  `json:"compression_algorithm"`
	CompressionRatio     float64 `json:"compression_ratio"`
}

// readMetadata loads and validates the sidecar of a cache entry.
func readMetadata(entryDirectory string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(entryDirectory, MetadataFileName))
	if err != nil {
		return nil, err
	}
	var metadata Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("parsing cache metadata: %w", err)
	}
	if metadata.Version != MetadataVersion {
		return nil, fmt.Errorf("cache metadata version %d, want %d", metadata.Version, MetadataVersion)
	}
	return &metadata, nil
}

// writeMetadata writes the sidecar atomically into the entry
// directory.
func writeMetadata(entryDirectory string, metadata *Metadata) error {
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache metadata: %w", err)
	}
	data = append(data, '\n')

	tmpFile, err := os.CreateTemp(entryDirectory, ".metadata-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(entryDirectory, MetadataFileName)); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
