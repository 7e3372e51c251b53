// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

package stub

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/binpress-io/binpress/lib/container"
	"github.com/binpress-io/binpress/lib/dlxcache"
	"github.com/binpress-io/binpress/lib/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture packs a minimal ELF payload behind a minimal ELF stub and
// returns the container path and the original payload bytes.
func fixture(t *testing.T) (containerPath string, original []byte) {
	t.Helper()
	directory := t.TempDir()

	code := make([]byte, 96*1024)
	for i := range code {
		code[i] = byte(i % 59)
	}
	original = testutil.MinimalELF(code)

	stubPath := filepath.Join(directory, "stub")
	inputPath := filepath.Join(directory, "input")
	containerPath = filepath.Join(directory, "packed")
	if err := os.WriteFile(stubPath, testutil.MinimalELF([]byte("stub code")), 0o755); err != nil {
		t.Fatalf("writing stub: %v", err)
	}
	if err := os.WriteFile(inputPath, original, 0o755); err != nil {
		t.Fatalf("writing input: %v", err)
	}
	if _, err := container.Pack(stubPath, inputPath, containerPath, container.PackOptions{}); err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	return containerPath, original
}

// captureExec records the exec call instead of replacing the process.
type captureExec struct {
	binaryPath string
	argv       []string
	environ    []string
	contents   []byte
	called     bool
}

func (c *captureExec) exec(binaryPath string, argv []string, environ []string) error {
	c.called = true
	c.binaryPath = binaryPath
	c.argv = argv
	c.environ = environ
	contents, err := os.ReadFile(binaryPath)
	if err != nil {
		return err
	}
	c.contents = contents
	return nil
}

func TestRunCacheMissPopulatesAndExecs(t *testing.T) {
	containerPath, original := fixture(t)
	root := t.TempDir()

	capture := &captureExec{}
	err := Run(Options{
		ExecutablePath: containerPath,
		Argv:           []string{"myapp", "--flag"},
		Environ:        []string{"APP_MODE=test"},
		Exec:           capture.exec,
		Logger:         quietLogger(),
		CacheRoot:      root,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !capture.called {
		t.Fatal("exec was never called")
	}
	if !bytes.Equal(capture.contents, original) {
		t.Error("executed binary differs from the packed original")
	}
	if !strings.HasPrefix(capture.binaryPath, root) {
		t.Errorf("executed binary %s is outside the cache root %s", capture.binaryPath, root)
	}
	if len(capture.argv) != 2 || capture.argv[1] != "--flag" {
		t.Errorf("argv not forwarded: %v", capture.argv)
	}
	if len(capture.environ) != 1 || capture.environ[0] != "APP_MODE=test" {
		t.Errorf("environment not forwarded: %v", capture.environ)
	}

	trailer, err := container.Inspect(containerPath)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	lookup := dlxcache.LookupOptions{ExpectedSize: trailer.UncompressedSize, Verify: true}
	if _, hit := dlxcache.Lookup(root, trailer.CacheKey, trailer.Target, lookup); !hit {
		t.Error("cache was not populated with a verifiable entry")
	}
}

func TestRunSecondRunUsesCachedBinary(t *testing.T) {
	containerPath, original := fixture(t)
	root := t.TempDir()

	first := &captureExec{}
	options := Options{
		ExecutablePath: containerPath,
		Argv:           []string{"myapp"},
		Environ:        []string{},
		Logger:         quietLogger(),
		CacheRoot:      root,
	}
	options.Exec = first.exec
	if err := Run(options); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	// Mark the cached binary by flipping a byte in place. Without
	// verification the second run must trust and execute the marked
	// copy; repopulation would restore the pristine bytes.
	marked := append([]byte(nil), original...)
	marked[len(marked)-1] ^= 0xFF
	if err := os.WriteFile(first.binaryPath, marked, 0o755); err != nil {
		t.Fatalf("marking cached binary: %v", err)
	}

	second := &captureExec{}
	options.Exec = second.exec
	if err := Run(options); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if !bytes.Equal(second.contents, marked) {
		t.Error("second run did not execute the cached binary")
	}
}

func TestRunVerifyRepairsCorruptEntry(t *testing.T) {
	containerPath, original := fixture(t)
	root := t.TempDir()

	first := &captureExec{}
	options := Options{
		ExecutablePath: containerPath,
		Argv:           []string{"myapp"},
		Environ:        []string{},
		Logger:         quietLogger(),
		CacheRoot:      root,
		VerifyCache:    true,
	}
	options.Exec = first.exec
	if err := Run(options); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	corrupted := append([]byte(nil), original...)
	corrupted[0] ^= 0xFF
	if err := os.WriteFile(first.binaryPath, corrupted, 0o755); err != nil {
		t.Fatalf("corrupting cached binary: %v", err)
	}

	second := &captureExec{}
	options.Exec = second.exec
	if err := Run(options); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if !bytes.Equal(second.contents, original) {
		t.Error("verification did not repair the corrupt cache entry")
	}
}

func TestRunPlainBinaryIsFatal(t *testing.T) {
	directory := t.TempDir()
	plainPath := filepath.Join(directory, "plain")
	if err := os.WriteFile(plainPath, testutil.MinimalELF([]byte("no payload here")), 0o755); err != nil {
		t.Fatalf("writing plain binary: %v", err)
	}

	capture := &captureExec{}
	err := Run(Options{
		ExecutablePath: plainPath,
		Argv:           []string{"plain"},
		Environ:        []string{},
		Exec:           capture.exec,
		Logger:         quietLogger(),
		CacheRoot:      t.TempDir(),
	})
	if !errors.Is(err, container.ErrTrailerNotFound) {
		t.Errorf("Run on plain binary = %v, want ErrTrailerNotFound", err)
	}
	if capture.called {
		t.Error("exec must not run without a payload")
	}
}

func TestRunTamperedPayloadIsFatal(t *testing.T) {
	containerPath, _ := fixture(t)

	data, err := os.ReadFile(containerPath)
	if err != nil {
		t.Fatalf("reading container: %v", err)
	}
	data[len(data)-1] ^= 0xFF
	if err := os.WriteFile(containerPath, data, 0o755); err != nil {
		t.Fatalf("writing tampered container: %v", err)
	}

	capture := &captureExec{}
	err = Run(Options{
		ExecutablePath: containerPath,
		Argv:           []string{"myapp"},
		Environ:        []string{},
		Exec:           capture.exec,
		Logger:         quietLogger(),
		CacheRoot:      t.TempDir(),
	})
	if err == nil {
		t.Fatal("Run on a tampered container should fail")
	}
	if capture.called {
		t.Error("exec must not run tampered contents")
	}
}

func TestRunFallsBackToTempOnCacheWriteFailure(t *testing.T) {
	containerPath, original := fixture(t)

	// Redirect the OS temp directory so the fallback root is test
	// scoped.
	tempHome := t.TempDir()
	t.Setenv("TMPDIR", tempHome)

	// A cache root below a regular file rejects every write.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("in the way"), 0o644); err != nil {
		t.Fatalf("writing blocker: %v", err)
	}

	capture := &captureExec{}
	err := Run(Options{
		ExecutablePath: containerPath,
		Argv:           []string{"myapp"},
		Environ:        []string{},
		Exec:           capture.exec,
		Logger:         quietLogger(),
		CacheRoot:      filepath.Join(blocker, "cache"),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.HasPrefix(capture.binaryPath, dlxcache.TempRoot()) {
		t.Errorf("binary %s is not under the temp fallback %s", capture.binaryPath, dlxcache.TempRoot())
	}
	if !bytes.Equal(capture.contents, original) {
		t.Error("fallback-cached binary differs from the original")
	}
}

func TestRunFiresUpdateCheckBeforeExec(t *testing.T) {
	containerPath, _ := fixture(t)

	fired := make(chan struct{})
	capture := &captureExec{}
	err := Run(Options{
		ExecutablePath: containerPath,
		Argv:           []string{"myapp"},
		Environ:        []string{},
		Exec:           capture.exec,
		Logger:         quietLogger(),
		CacheRoot:      t.TempDir(),
		UpdateCheck: func(entryDirectory, cacheKey string) {
			if cacheKey == "" || entryDirectory == "" {
				t.Error("update check fired without entry context")
			}
			close(fired)
		},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	testutil.RequireClosed(t, fired, 5*time.Second, "update check fired")
}

func TestStateString(t *testing.T) {
	names := map[State]string{
		StateStart:         "start",
		StateLocateTrailer: "locate-trailer",
		StateCacheMiss:     "cache-miss",
		StateExec:          "exec",
	}
	for state, want := range names {
		if state.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", uint8(state), state.String(), want)
		}
	}
}
