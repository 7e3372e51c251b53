// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

package dlxcache

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/binpress-io/binpress/lib/checksum"
	"github.com/binpress-io/binpress/lib/platform"
)

var testTarget = platform.Target{OS: platform.Linux, Arch: platform.AMD64, Libc: platform.Glibc}

func testMetadata(t *testing.T, key string, binary []byte) *Metadata {
	t.Helper()
	digest, err := checksum.Sum(binary, checksum.SHA512)
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}
	return &Metadata{
		Version:           MetadataVersion,
		CacheKey:          key,
		Timestamp:         time.Now().UnixMilli(),
		Checksum:          checksum.Format(digest, checksum.SHA512),
		ChecksumAlgorithm: checksum.SHA512.String(),
		Platform:          testTarget.OS.String(),
		Arch:              testTarget.Arch.String(),
		Libc:              testTarget.Libc.String(),
		Size:              uint64(len(binary)),
		Source:            Source{Type: SourceDecompression, Path: "/fake/container"},
		Extra: Extra{
			CompressedSize:       uint64(len(binary) / 2),
			CompressionAlgorithm: "lz4",
			CompressionRatio:     0.5,
		},
	}
}

func TestDeriveKey(t *testing.T) {
	key := DeriveKey([]byte("compressed payload bytes"))
	if !regexp.MustCompile(`^[0-9a-f]{16}$`).MatchString(key) {
		t.Errorf("key %q is not 16 lowercase hex characters", key)
	}
	if key != DeriveKey([]byte("compressed payload bytes")) {
		t.Error("key derivation is not deterministic")
	}
	if key == DeriveKey([]byte("different payload")) {
		t.Error("different payloads derived the same key")
	}
}

func TestPopulateThenLookup(t *testing.T) {
	root := t.TempDir()
	binary := []byte("decompressed binary contents")
	key := DeriveKey(binary)

	binaryPath, err := Populate(root, key, binary, testTarget, testMetadata(t, key, binary))
	if err != nil {
		t.Fatalf("Populate failed: %v", err)
	}

	options := LookupOptions{ExpectedSize: uint64(len(binary)), Verify: true}
	foundPath, hit := Lookup(root, key, testTarget, options)
	if !hit {
		t.Fatal("Lookup missed a freshly populated entry")
	}
	if foundPath != binaryPath {
		t.Errorf("Lookup path %s, Populate path %s", foundPath, binaryPath)
	}

	contents, err := os.ReadFile(foundPath)
	if err != nil {
		t.Fatalf("reading cached binary: %v", err)
	}
	if string(contents) != string(binary) {
		t.Error("cached binary differs from populated bytes")
	}

	info, _ := os.Stat(foundPath)
	if info.Mode().Perm()&0o111 == 0 {
		t.Error("cached binary is not executable")
	}
}

func TestLookupMissOnEmptyCache(t *testing.T) {
	if _, hit := Lookup(t.TempDir(), "0123456789abcdef", testTarget, LookupOptions{ExpectedSize: 10}); hit {
		t.Error("Lookup hit in an empty cache")
	}
}

func TestLookupMissOnSizeMismatch(t *testing.T) {
	root := t.TempDir()
	binary := []byte("some binary")
	key := DeriveKey(binary)
	if _, err := Populate(root, key, binary, testTarget, testMetadata(t, key, binary)); err != nil {
		t.Fatalf("Populate failed: %v", err)
	}

	if _, hit := Lookup(root, key, testTarget, LookupOptions{ExpectedSize: uint64(len(binary)) + 1}); hit {
		t.Error("Lookup hit despite a size mismatch")
	}
}

func TestLookupMissOnMissingSidecar(t *testing.T) {
	root := t.TempDir()
	binary := []byte("some binary")
	key := DeriveKey(binary)
	if _, err := Populate(root, key, binary, testTarget, testMetadata(t, key, binary)); err != nil {
		t.Fatalf("Populate failed: %v", err)
	}
	if err := os.Remove(filepath.Join(EntryDirectory(root, key), MetadataFileName)); err != nil {
		t.Fatalf("removing sidecar: %v", err)
	}

	if _, hit := Lookup(root, key, testTarget, LookupOptions{ExpectedSize: uint64(len(binary))}); hit {
		t.Error("Lookup hit without a metadata sidecar")
	}
}

func TestLookupVerifyDetectsCorruption(t *testing.T) {
	root := t.TempDir()
	binary := []byte("some binary that will rot on disk")
	key := DeriveKey(binary)
	if _, err := Populate(root, key, binary, testTarget, testMetadata(t, key, binary)); err != nil {
		t.Fatalf("Populate failed: %v", err)
	}

	// Corrupt the cached binary in place, keeping its size.
	corrupted := append([]byte(nil), binary...)
	corrupted[0] ^= 0xFF
	if err := os.WriteFile(BinaryPath(root, key, testTarget), corrupted, 0o755); err != nil {
		t.Fatalf("corrupting cached binary: %v", err)
	}

	options := LookupOptions{ExpectedSize: uint64(len(binary))}
	if _, hit := Lookup(root, key, testTarget, options); !hit {
		t.Error("non-verifying Lookup should not notice content corruption")
	}
	options.Verify = true
	if _, hit := Lookup(root, key, testTarget, options); hit {
		t.Error("verifying Lookup missed content corruption")
	}
}

func TestPopulateIsIdempotent(t *testing.T) {
	root := t.TempDir()
	binary := []byte("raced binary")
	key := DeriveKey(binary)

	for i := 0; i < 2; i++ {
		if _, err := Populate(root, key, binary, testTarget, testMetadata(t, key, binary)); err != nil {
			t.Fatalf("Populate round %d failed: %v", i, err)
		}
	}
	if _, hit := Lookup(root, key, testTarget, LookupOptions{ExpectedSize: uint64(len(binary)), Verify: true}); !hit {
		t.Error("Lookup missed after repeated population")
	}
}

func TestPopulateCacheWriteError(t *testing.T) {
	// A root below a regular file cannot be created, whatever the
	// process privileges.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("in the way"), 0o644); err != nil {
		t.Fatalf("writing blocker file: %v", err)
	}
	root := filepath.Join(blocker, "cache")

	binary := []byte("binary")
	key := DeriveKey(binary)
	_, err := Populate(root, key, binary, testTarget, testMetadata(t, key, binary))
	if !errors.Is(err, ErrCacheWrite) {
		t.Errorf("Populate into blocked root = %v, want ErrCacheWrite", err)
	}
}

func TestResolveRootPrecedence(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	explicit := t.TempDir()
	home := t.TempDir()

	t.Setenv(CacheDirEnv, explicit)
	t.Setenv(HomeEnv, home)
	if root := ResolveRoot(logger); root != explicit {
		t.Errorf("ResolveRoot = %s, want explicit override %s", root, explicit)
	}

	t.Setenv(CacheDirEnv, "")
	if root := ResolveRoot(logger); root != filepath.Join(home, "_dlx") {
		t.Errorf("ResolveRoot = %s, want %s", root, filepath.Join(home, "_dlx"))
	}
}

func TestResolveRootFallsBackToTemp(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// Block every candidate with paths below regular files.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("in the way"), 0o644); err != nil {
		t.Fatalf("writing blocker file: %v", err)
	}
	t.Setenv(CacheDirEnv, filepath.Join(blocker, "cache"))
	t.Setenv(HomeEnv, filepath.Join(blocker, "home"))
	t.Setenv("HOME", filepath.Join(blocker, "user"))

	if root := ResolveRoot(logger); root != TempRoot() {
		t.Errorf("ResolveRoot = %s, want temp fallback %s", root, TempRoot())
	}
}
