// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

// Package stub is the runtime of a self-extracting executable. A
// packed binary starts life as this stub: it reads its own image,
// finds the trailer behind its native end, resolves the decompressed
// binary through the cache (decompressing on a miss), and replaces
// itself with the real program.
//
// The happy path produces no output. Setting BINPRESS_DEBUG enables
// state transition tracing to stderr.
package stub

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/binpress-io/binpress/lib/binfmt"
	"github.com/binpress-io/binpress/lib/checksum"
	"github.com/binpress-io/binpress/lib/container"
	"github.com/binpress-io/binpress/lib/dlxcache"
	"github.com/binpress-io/binpress/lib/platform"
)

// DebugEnv enables state transition tracing when set to any non-empty
// value.
const DebugEnv = "BINPRESS_DEBUG"

// State identifies a stage of the extraction state machine.
type State uint8

const (
	StateStart State = iota
	StateDetectFormat
	StateLocateTrailer
	StateDeriveCacheKey
	StateCacheHit
	StateCacheMiss
	StateDecompress
	StatePopulateCache
	StateExec
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateDetectFormat:
		return "detect-format"
	case StateLocateTrailer:
		return "locate-trailer"
	case StateDeriveCacheKey:
		return "derive-cache-key"
	case StateCacheHit:
		return "cache-hit"
	case StateCacheMiss:
		return "cache-miss"
	case StateDecompress:
		return "decompress"
	case StatePopulateCache:
		return "populate-cache"
	case StateExec:
		return "exec"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ExecFunc replaces the current process with the binary at binaryPath.
// A return always means failure. Injectable so tests can observe the
// exec without losing the test process.
type ExecFunc func(binaryPath string, argv []string, environ []string) error

// Options configure a stub run. The zero value is what a real stub
// uses: its own image, its own argv and environment, the resolved
// cache root, and the platform exec.
type Options struct {
	// ExecutablePath is the container image to read. Empty means the
	// running executable.
	ExecutablePath string

	// Argv and Environ are forwarded to the target binary unchanged.
	// Nil means the stub's own.
	Argv    []string
	Environ []string

	// Exec replaces the process. Nil means the platform default.
	Exec ExecFunc

	// Logger receives state tracing and cache warnings. Nil means a
	// stderr logger gated by BINPRESS_DEBUG.
	Logger *slog.Logger

	// CacheRoot overrides cache root resolution. Empty means resolve
	// from the environment.
	CacheRoot string

	// VerifyCache recomputes the checksum of a cached binary before
	// trusting a hit.
	VerifyCache bool

	// UpdateCheck, when non-nil, is launched as a detached goroutine
	// right before exec, with the cache entry directory and key of
	// the binary about to run. It is never awaited; exec discards it
	// along with the rest of the process.
	UpdateCheck func(entryDirectory, cacheKey string)
}

// NewLogger builds the stub's stderr logger: debug level when
// BINPRESS_DEBUG is set, warnings only otherwise.
func NewLogger() *slog.Logger {
	level := slog.LevelWarn
	if os.Getenv(DebugEnv) != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// Run executes the extraction state machine. On success it does not
// return: the process has been replaced by the target binary. Every
// returned error is fatal and names the stage that failed.
func Run(options Options) error {
	r := runner{options: options}
	if r.options.Logger == nil {
		r.options.Logger = NewLogger()
	}
	if r.options.Exec == nil {
		r.options.Exec = platformExec
	}
	if r.options.Argv == nil {
		r.options.Argv = os.Args
	}
	if r.options.Environ == nil {
		r.options.Environ = os.Environ()
	}
	if r.options.ExecutablePath == "" {
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolving own executable path: %w", err)
		}
		r.options.ExecutablePath = self
	}
	return r.run()
}

type runner struct {
	options Options
	state   State

	image   []byte
	trailer *container.Trailer
	key     string
	root    string
}

// transition records a state change at debug level.
func (r *runner) transition(next State) {
	r.options.Logger.Debug("state transition", "from", r.state.String(), "to", next.String())
	r.state = next
}

func (r *runner) run() error {
	image, err := os.ReadFile(r.options.ExecutablePath)
	if err != nil {
		return fmt.Errorf("reading own image %s: %w", r.options.ExecutablePath, err)
	}
	r.image = image

	r.transition(StateDetectFormat)
	format, err := binfmt.Detect(r.image)
	if err != nil {
		return fmt.Errorf("detecting own format: %w", err)
	}
	r.options.Logger.Debug("detected own format", "format", format.String(), "size", len(r.image))

	r.transition(StateLocateTrailer)
	trailer, offset, err := container.Locate(r.image)
	if err != nil {
		if errors.Is(err, container.ErrTrailerNotFound) {
			// A stub with no payload was never packed. This is a
			// build mistake, not a runtime condition to tolerate.
			return fmt.Errorf("no payload behind this stub, it must be produced by packing: %w", err)
		}
		return fmt.Errorf("locating trailer: %w", err)
	}
	r.trailer = trailer
	r.options.Logger.Debug("located trailer",
		"offset", offset,
		"compression", trailer.Compression.String(),
		"compressed_size", trailer.CompressedSize,
		"uncompressed_size", trailer.UncompressedSize)

	r.transition(StateDeriveCacheKey)
	r.key = dlxcache.DeriveKey(container.Payload(r.image, trailer))
	if r.key != trailer.CacheKey {
		return fmt.Errorf("%w: payload-derived key %s contradicts trailer key %s",
			container.ErrCorruptContainer, r.key, trailer.CacheKey)
	}

	r.root = r.options.CacheRoot
	if r.root == "" {
		r.root = dlxcache.ResolveRoot(r.options.Logger)
	}

	lookup := dlxcache.LookupOptions{
		ExpectedSize: trailer.UncompressedSize,
		Verify:       r.options.VerifyCache,
	}
	if binaryPath, hit := dlxcache.Lookup(r.root, r.key, trailer.Target, lookup); hit {
		r.transition(StateCacheHit)
		r.options.Logger.Debug("cache hit", "binary", binaryPath)
		return r.exec(binaryPath)
	}

	r.transition(StateCacheMiss)
	r.transition(StateDecompress)
	original, err := container.Decompress(r.image, trailer)
	if err != nil {
		return fmt.Errorf("decompressing payload: %w", err)
	}

	r.transition(StatePopulateCache)
	binaryPath, err := r.populate(original)
	if err != nil {
		return err
	}
	return r.exec(binaryPath)
}

// populate writes the decompressed binary into the cache, retrying
// against the temp root when the resolved root rejects the write.
func (r *runner) populate(original []byte) (string, error) {
	metadata := r.metadata(original)

	binaryPath, err := dlxcache.Populate(r.root, r.key, original, r.trailer.Target, metadata)
	if err == nil {
		return binaryPath, nil
	}
	if !errors.Is(err, dlxcache.ErrCacheWrite) || r.root == dlxcache.TempRoot() {
		return "", fmt.Errorf("populating cache: %w", err)
	}

	r.options.Logger.Warn("cache population failed, retrying in temp storage",
		"root", r.root, "error", err)
	r.root = dlxcache.TempRoot()
	binaryPath, err = dlxcache.Populate(r.root, r.key, original, r.trailer.Target, metadata)
	if err != nil {
		return "", fmt.Errorf("populating temp cache: %w", err)
	}
	return binaryPath, nil
}

func (r *runner) metadata(original []byte) *dlxcache.Metadata {
	t := r.trailer
	metadata := &dlxcache.Metadata{
		Version:           dlxcache.MetadataVersion,
		CacheKey:          r.key,
		Timestamp:         time.Now().UnixMilli(),
		Checksum:          checksum.Format(t.OriginalChecksum, t.Checksum),
		ChecksumAlgorithm: t.Checksum.String(),
		Platform:          t.Target.OS.String(),
		Arch:              t.Target.Arch.String(),
		Size:              t.UncompressedSize,
		Source: dlxcache.Source{
			Type: dlxcache.SourceDecompression,
			Path: r.options.ExecutablePath,
		},
		Extra: dlxcache.Extra{
			CompressedSize:       t.CompressedSize,
			CompressionAlgorithm: t.Compression.String(),
			CompressionRatio:     float64(t.CompressedSize) / float64(t.UncompressedSize),
		},
	}
	if t.Target.OS == platform.Linux {
		metadata.Libc = t.Target.Libc.String()
	}
	return metadata
}

// exec hands the process over to the target binary. Fires the update
// check first; it runs on borrowed time and dies with the exec.
func (r *runner) exec(binaryPath string) error {
	r.transition(StateExec)
	if r.options.UpdateCheck != nil {
		go r.options.UpdateCheck(dlxcache.EntryDirectory(r.root, r.key), r.key)
	}
	r.options.Logger.Debug("executing target", "binary", binaryPath, "argv", r.options.Argv)
	if err := r.options.Exec(binaryPath, r.options.Argv, r.options.Environ); err != nil {
		return fmt.Errorf("executing %s: %w", binaryPath, err)
	}
	return nil
}
