// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

package dlxcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/binpress-io/binpress/lib/checksum"
	"github.com/binpress-io/binpress/lib/platform"
)

// ErrCacheWrite indicates the cache directory rejected a write.
// Callers with a fallback location (the stub) retry there; everything
// else treats it as fatal.
var ErrCacheWrite = errors.New("cache write failure")

// EntryDirectory returns the directory holding the entry for key.
func EntryDirectory(root, key string) string {
	return filepath.Join(root, key)
}

// BinaryPath returns where the cached binary for key and target lives.
func BinaryPath(root, key string, target platform.Target) string {
	return filepath.Join(EntryDirectory(root, key), target.BinaryName())
}

// LookupOptions tune cache validation.
type LookupOptions struct {
	// ExpectedSize is the uncompressed size the trailer declares.
	ExpectedSize uint64

	// Verify additionally recomputes the binary's checksum against
	// the sidecar. Costs a full read and hash of the binary.
	Verify bool
}

// Lookup reports whether a valid cache entry exists for key, returning
// the binary path on a hit. An entry is valid only when the binary and
// sidecar are both present, the size matches, and the executable bit
// is set. Any read or validation failure is a miss, never an error:
// the caller repopulates and the cache heals itself.
func Lookup(root, key string, target platform.Target, options LookupOptions) (string, bool) {
	binaryPath := BinaryPath(root, key, target)
	info, err := os.Stat(binaryPath)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	if uint64(info.Size()) != options.ExpectedSize {
		return "", false
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return "", false
	}

	metadata, err := readMetadata(EntryDirectory(root, key))
	if err != nil || metadata.CacheKey != key || metadata.Size != options.ExpectedSize {
		return "", false
	}

	if options.Verify {
		binary, err := os.ReadFile(binaryPath)
		if err != nil {
			return "", false
		}
		algorithm, digest, err := checksum.ParseFormatted(metadata.Checksum)
		if err != nil || checksum.Verify(binary, digest, algorithm) != nil {
			return "", false
		}
	}

	return binaryPath, true
}

// Populate writes a cache entry: the binary first, then the sidecar,
// each via temp file and atomic rename. The ordering guarantees a
// sidecar never describes a binary that is not fully in place. Racing
// populates write identical bytes, so whichever rename lands last
// changes nothing. Returns the binary path.
func Populate(root, key string, binary []byte, target platform.Target, metadata *Metadata) (string, error) {
	entryDirectory := EntryDirectory(root, key)
	if err := os.MkdirAll(entryDirectory, 0o755); err != nil {
		return "", fmt.Errorf("%w: creating entry directory: %v", ErrCacheWrite, err)
	}

	tmpFile, err := os.CreateTemp(entryDirectory, ".binary-*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: creating temp binary: %v", ErrCacheWrite, err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(binary); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("%w: writing binary: %v", ErrCacheWrite, err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("%w: syncing binary: %v", ErrCacheWrite, err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("%w: closing binary: %v", ErrCacheWrite, err)
	}
	if err := os.Chmod(tmpPath, 0o755); err != nil {
		return "", fmt.Errorf("%w: marking binary executable: %v", ErrCacheWrite, err)
	}

	binaryPath := BinaryPath(root, key, target)
	if err := os.Rename(tmpPath, binaryPath); err != nil {
		return "", fmt.Errorf("%w: installing binary: %v", ErrCacheWrite, err)
	}
	success = true

	if err := writeMetadata(entryDirectory, metadata); err != nil {
		return "", fmt.Errorf("%w: writing metadata sidecar: %v", ErrCacheWrite, err)
	}
	return binaryPath, nil
}
