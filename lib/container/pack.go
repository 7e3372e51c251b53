// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/binpress-io/binpress/lib/binfmt"
	"github.com/binpress-io/binpress/lib/checksum"
	"github.com/binpress-io/binpress/lib/dlxcache"
	"github.com/binpress-io/binpress/lib/platform"
	"github.com/binpress-io/binpress/lib/press"
)

// ErrAlreadyCompressed indicates the input binary already carries a
// valid trailer. Wrapping a container in another container would
// double-compress the payload for no gain, so packing refuses it.
var ErrAlreadyCompressed = errors.New("input is already a compressed container")

// PackOptions control how a container is assembled.
type PackOptions struct {
	// Compression selects the payload codec. Zero means the default
	// for the detected capabilities.
	Compression press.Algorithm

	// Checksum selects the digest algorithm for the original binary.
	// Zero means SHA-512.
	Checksum checksum.Algorithm

	// Target is the platform the input binary runs on. The zero value
	// means the current platform.
	Target platform.Target
}

// PackResult reports what Pack produced.
type PackResult struct {
	OriginalSize     uint64
	CompressedSize   uint64
	ContainerSize    uint64
	CompressionRatio float64
	Algorithm        press.Algorithm
	CacheKey         string
}

// Pack assembles a self-extracting container: the stub image, then the
// trailer at the stub's native end, then the compressed payload. The
// output is written atomically (temp file in the output directory,
// then rename) and marked executable.
func Pack(stubPath, inputPath, outputPath string, options PackOptions) (*PackResult, error) {
	stub, err := os.ReadFile(stubPath)
	if err != nil {
		return nil, fmt.Errorf("reading stub: %w", err)
	}
	input, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("reading input binary: %w", err)
	}

	nativeEnd, err := binfmt.NativeEnd(stub)
	if err != nil {
		return nil, fmt.Errorf("analyzing stub %s: %w", stubPath, err)
	}

	// The input must be a plain executable. A valid trailer means it
	// went through packing already.
	if _, err := binfmt.Detect(input); err != nil {
		return nil, fmt.Errorf("analyzing input %s: %w", inputPath, err)
	}
	if IsContainer(input) {
		return nil, fmt.Errorf("%s: %w", inputPath, ErrAlreadyCompressed)
	}
	if len(input) > press.MaxUncompressedSize {
		return nil, fmt.Errorf("input %s is %d bytes: %w", inputPath, len(input), press.ErrSizeLimit)
	}

	if options.Compression == 0 {
		options.Compression = press.DetectCapabilities().DefaultAlgorithm()
	}
	if options.Checksum == 0 {
		options.Checksum = checksum.SHA512
	}
	if options.Target == (platform.Target{}) {
		options.Target = platform.Current()
	}

	originalChecksum, err := checksum.Sum(input, options.Checksum)
	if err != nil {
		return nil, fmt.Errorf("checksumming input: %w", err)
	}

	payload, err := press.Encode(input, options.Compression)
	if err != nil {
		return nil, fmt.Errorf("compressing input: %w", err)
	}

	trailer := &Trailer{
		FormatVersion:    FormatVersion,
		Compression:      options.Compression,
		Checksum:         options.Checksum,
		CompressedSize:   uint64(len(payload)),
		UncompressedSize: uint64(len(input)),
		CacheKey:         dlxcache.DeriveKey(payload),
		Target:           options.Target,
		OriginalChecksum: originalChecksum,
		PayloadOffset:    uint64(nativeEnd) + TrailerSize,
	}
	trailerBytes, err := trailer.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encoding trailer: %w", err)
	}

	image := make([]byte, 0, int(nativeEnd)+TrailerSize+len(payload))
	image = append(image, stub[:nativeEnd]...)
	image = append(image, trailerBytes...)
	image = append(image, payload...)

	if err := writeExecutable(outputPath, image); err != nil {
		return nil, err
	}

	return &PackResult{
		OriginalSize:     uint64(len(input)),
		CompressedSize:   uint64(len(payload)),
		ContainerSize:    uint64(len(image)),
		CompressionRatio: float64(len(payload)) / float64(len(input)),
		Algorithm:        options.Compression,
		CacheKey:         trailer.CacheKey,
	}, nil
}

// writeExecutable writes data to path via atomic rename through a temp
// file in the same directory, with the executable bit set before the
// rename so the final file never exists in a non-runnable state.
func writeExecutable(path string, data []byte) error {
	directory := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(directory, ".binpress-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp output file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up the temp file on any error path.
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing output: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing output: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing output: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o755); err != nil {
		return fmt.Errorf("marking output executable: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming output into place: %w", err)
	}
	success = true
	return nil
}
