// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

// Package press is the payload compression codec for binpress
// containers. Two algorithms are supported: LZ4 block compression
// (fast default) and zstd (portable fallback, better ratios). The
// encoded byte layout is opaque to the container format; only the
// algorithm tag stored in the trailer must remain stable.
package press

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// MaxUncompressedSize bounds the uncompressed size the decoder will
// accept. A trailer claiming more than this is rejected before any
// buffer is allocated. 500 MiB leaves ample headroom over the largest
// real-world runtimes (a Node.js binary with debug symbols is ~150 MB)
// while preventing memory exhaustion from a forged trailer.
const MaxUncompressedSize = 500 * 1024 * 1024

// Algorithm identifies the compression algorithm used for a payload.
// The tag is stored in container trailers (1 byte). These values are
// protocol constants and changing them breaks container compatibility.
type Algorithm uint8

const (
	// AlgorithmLZ4 is LZ4 block compression: ~1.5-2x ratio on machine
	// code, multi-GB/s decode. The default for container payloads,
	// where startup latency matters more than on-disk size.
	AlgorithmLZ4 Algorithm = 1

	// AlgorithmZstd is zstd at the default level: better ratios at
	// lower decode speed. Selected by the force-portable toggle and
	// useful when distribution size dominates.
	AlgorithmZstd Algorithm = 2
)

// ErrCorruptPayload indicates the compressed stream is malformed or
// decodes to a different length than the trailer declared.
var ErrCorruptPayload = errors.New("corrupt compressed payload")

// ErrSizeLimit indicates the declared uncompressed size exceeds the
// decoder's limit. Raised before allocating the output buffer.
var ErrSizeLimit = errors.New("uncompressed size exceeds decompressor limit")

// String returns the human-readable algorithm name.
func (a Algorithm) String() string {
	switch a {
	case AlgorithmLZ4:
		return "lz4"
	case AlgorithmZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// ParseAlgorithm parses an algorithm from its string name.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "lz4":
		return AlgorithmLZ4, nil
	case "zstd":
		return AlgorithmZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression algorithm: %q", name)
	}
}

// Valid reports whether the tag names a supported algorithm. Used when
// reading a trailer produced by an unknown builder.
func (a Algorithm) Valid() bool {
	return a == AlgorithmLZ4 || a == AlgorithmZstd
}

// zstdEncoder and zstdDecoder are reused across calls to avoid
// repeated initialization overhead. Both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("press: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("press: zstd decoder initialization failed: " + err.Error())
	}
}

// Encode compresses data with the given algorithm. Unlike a chunk
// store, a container always stores the compressed form even when it
// is larger than the input: the stub has a single decode path and no
// per-payload "stored uncompressed" branch.
func Encode(data []byte, algorithm Algorithm) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("encoding empty payload")
	}

	switch algorithm {
	case AlgorithmLZ4:
		return encodeLZ4(data)
	case AlgorithmZstd:
		return zstdEncoder.EncodeAll(data, nil), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %d", algorithm)
	}
}

// Decode decompresses a payload. uncompressedSize is the size the
// trailer declares; the output must match it exactly. The size claim
// is validated against maxSize before the output buffer is allocated,
// so a forged trailer cannot trigger a huge allocation.
func Decode(compressed []byte, algorithm Algorithm, uncompressedSize uint64, maxSize uint64) ([]byte, error) {
	if uncompressedSize == 0 {
		return nil, fmt.Errorf("%w: declared uncompressed size is zero", ErrCorruptPayload)
	}
	if uncompressedSize > maxSize {
		return nil, fmt.Errorf("%w: declared %d bytes, limit %d", ErrSizeLimit, uncompressedSize, maxSize)
	}

	switch algorithm {
	case AlgorithmLZ4:
		return decodeLZ4(compressed, int(uncompressedSize))
	case AlgorithmZstd:
		return decodeZstd(compressed, int(uncompressedSize))
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %d", algorithm)
	}
}

func encodeLZ4(data []byte) ([]byte, error) {
	// CompressBlockBound returns the worst-case compressed size, so a
	// single destination allocation always suffices.
	bound := lz4.CompressBlockBound(len(data))
	destination := make([]byte, bound)

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	// CompressBlock returns 0 for incompressible input. A container
	// payload must still be a decodable LZ4 stream (the stub has one
	// decode path per algorithm), so emit a literal-only block.
	if written == 0 {
		return encodeLZ4Literal(data), nil
	}

	return destination[:written], nil
}

// encodeLZ4Literal emits a valid LZ4 block consisting solely of
// literal runs. Used when CompressBlock declares the input
// incompressible: the output is slightly larger than the input but
// remains a well-formed block that UncompressBlock reverses.
func encodeLZ4Literal(data []byte) []byte {
	// Block format: token (literal length nibble), optional extended
	// length bytes (255 each, then remainder), then the literals. A
	// final block may end with literals only.
	output := make([]byte, 0, len(data)+len(data)/255+16)

	length := len(data)
	if length < 15 {
		output = append(output, byte(length)<<4)
	} else {
		output = append(output, 0xF0)
		remaining := length - 15
		for remaining >= 255 {
			output = append(output, 255)
			remaining -= 255
		}
		output = append(output, byte(remaining))
	}
	return append(output, data...)
}

func decodeLZ4(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, uncompressedSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("%w: lz4: %v", ErrCorruptPayload, err)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("%w: lz4 decoded %d bytes, trailer declared %d", ErrCorruptPayload, read, uncompressedSize)
	}
	return destination, nil
}

func decodeZstd(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, 0, uncompressedSize)
	result, err := zstdDecoder.DecodeAll(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrCorruptPayload, err)
	}
	if len(result) != uncompressedSize {
		return nil, fmt.Errorf("%w: zstd decoded %d bytes, trailer declared %d", ErrCorruptPayload, len(result), uncompressedSize)
	}
	return result, nil
}
