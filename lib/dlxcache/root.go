// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

package dlxcache

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Environment variables controlling cache placement, in precedence
// order.
const (
	// CacheDirEnv points directly at the cache root.
	CacheDirEnv = "BINPRESS_CACHE_DIR"

	// HomeEnv relocates the binpress home directory; the cache lives
	// in its _dlx subdirectory.
	HomeEnv = "BINPRESS_HOME"

	cacheSubdirectory = "_dlx"
	homeDirectoryName = ".binpress"
)

// ResolveRoot picks the cache root: BINPRESS_CACHE_DIR, then
// BINPRESS_HOME/_dlx, then ~/.binpress/_dlx. Each candidate is probed
// for writability; when none is usable the OS temp directory serves as
// a degraded fallback, announced with a single warning. The returned
// directory exists.
func ResolveRoot(logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}

	var candidates []string
	if dir := os.Getenv(CacheDirEnv); dir != "" {
		candidates = append(candidates, dir)
	}
	if home := os.Getenv(HomeEnv); home != "" {
		candidates = append(candidates, filepath.Join(home, cacheSubdirectory))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, homeDirectoryName, cacheSubdirectory))
	}

	for _, candidate := range candidates {
		if ensureWritable(candidate) {
			return candidate
		}
	}

	fallback := TempRoot()
	ensureWritable(fallback)
	logger.Warn("no writable cache directory, falling back to temp storage",
		"fallback", fallback,
		"tried", candidates)
	return fallback
}

// TempRoot returns the degraded cache location under the OS temp
// directory. The stub retries here when a populate against the real
// root fails mid-run.
func TempRoot() string {
	return filepath.Join(os.TempDir(), "binpress-dlx")
}

// ensureWritable creates the directory if needed and probes it with a
// real file write. Permission checks via Stat lie on network and
// read-only mounts; an actual write does not.
func ensureWritable(directory string) bool {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return false
	}
	probe, err := os.CreateTemp(directory, ".probe-*")
	if err != nil {
		return false
	}
	probe.Close()
	os.Remove(probe.Name())
	return true
}
