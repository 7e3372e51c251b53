// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

// Package container defines the compressed-container layout and the
// operations that produce and consume it: packing an executable behind
// a stub, locating the trailer inside a container, and extracting the
// original binary back out.
//
// A container is laid out as
//
//	[stub image][trailer][compressed payload]
//
// with the trailer starting exactly at the stub's native image end as
// computed by binfmt.NativeEnd. The OS loader never looks past that
// boundary, so the stub runs as a normal executable while carrying the
// payload behind it.
package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/binpress-io/binpress/lib/checksum"
	"github.com/binpress-io/binpress/lib/platform"
	"github.com/binpress-io/binpress/lib/press"
)

const (
	// TrailerSize is the fixed on-disk size of the trailer, marker
	// included.
	TrailerSize = 144

	// FormatVersion is the trailer layout version this package reads
	// and writes. Readers reject any other value.
	FormatVersion = 1

	markerSize   = 32
	cacheKeySize = 16
	digestField  = 64
)

// ErrCorruptContainer indicates a trailer that was found but fails
// structural validation: wrong version, invalid algorithm tags, or
// sizes that contradict the file.
var ErrCorruptContainer = errors.New("corrupt container trailer")

// magicMarker returns the 32-byte marker that introduces a trailer.
// It is assembled from pieces at runtime so the stub's own image never
// contains the contiguous marker, which would otherwise make the stub
// binary itself look like a container.
func magicMarker() []byte {
	marker := make([]byte, 0, markerSize)
	marker = append(marker, "__SMOL"...)
	marker = append(marker, "_PRESSED_DATA"...)
	marker = append(marker, "_MAGIC_MARKER"...)
	return marker
}

// Trailer is the parsed form of the metadata block between the stub
// image and the compressed payload.
type Trailer struct {
	FormatVersion    uint16
	Compression      press.Algorithm
	Checksum         checksum.Algorithm
	CompressedSize   uint64
	UncompressedSize uint64

	// CacheKey is the 16-character lowercase hex prefix of the
	// SHA-512 digest of the compressed payload. It names the cache
	// directory the stub extracts into.
	CacheKey string

	// Target is the platform the embedded binary was built for.
	Target platform.Target

	// OriginalChecksum is the digest of the binary before compression,
	// under the Checksum algorithm.
	OriginalChecksum []byte

	// PayloadOffset is the absolute file offset of the compressed
	// payload. Written as trailer offset + TrailerSize; carried in the
	// trailer so readers never recompute format arithmetic.
	PayloadOffset uint64
}

// Marshal encodes the trailer into its fixed 144-byte wire form.
func (t *Trailer) Marshal() ([]byte, error) {
	if t.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("cannot marshal trailer version %d, only version %d", t.FormatVersion, FormatVersion)
	}
	if !t.Compression.Valid() {
		return nil, fmt.Errorf("invalid compression algorithm tag %d", uint8(t.Compression))
	}
	if t.Checksum.Size() == 0 {
		return nil, fmt.Errorf("invalid checksum algorithm tag %d", uint8(t.Checksum))
	}
	if len(t.CacheKey) != cacheKeySize || !isLowerHex(t.CacheKey) {
		return nil, fmt.Errorf("cache key %q is not %d lowercase hex characters", t.CacheKey, cacheKeySize)
	}
	if len(t.OriginalChecksum) != t.Checksum.Size() {
		return nil, fmt.Errorf("checksum digest is %d bytes, %s produces %d",
			len(t.OriginalChecksum), t.Checksum, t.Checksum.Size())
	}

	out := make([]byte, TrailerSize)
	copy(out, magicMarker())

	le := binary.LittleEndian
	le.PutUint16(out[32:], t.FormatVersion)
	out[34] = uint8(t.Compression)
	out[35] = uint8(t.Checksum)
	le.PutUint64(out[36:], t.CompressedSize)
	le.PutUint64(out[44:], t.UncompressedSize)
	copy(out[52:], t.CacheKey)
	out[68] = uint8(t.Target.OS)
	out[69] = uint8(t.Target.Arch)
	out[70] = uint8(t.Target.Libc)
	copy(out[72:72+digestField], t.OriginalChecksum)
	le.PutUint64(out[136:], t.PayloadOffset)
	return out, nil
}

// UnmarshalTrailer decodes and validates a 144-byte trailer. The
// caller is responsible for having found the marker; this function
// re-checks it and everything after it.
func UnmarshalTrailer(data []byte) (*Trailer, error) {
	if len(data) < TrailerSize {
		return nil, fmt.Errorf("%w: %d bytes is too short for a trailer", ErrCorruptContainer, len(data))
	}
	if !bytes.Equal(data[:markerSize], magicMarker()) {
		return nil, fmt.Errorf("%w: magic marker missing", ErrCorruptContainer)
	}

	le := binary.LittleEndian
	version := le.Uint16(data[32:])
	if version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported trailer version %d", ErrCorruptContainer, version)
	}

	t := &Trailer{
		FormatVersion:    version,
		Compression:      press.Algorithm(data[34]),
		Checksum:         checksum.Algorithm(data[35]),
		CompressedSize:   le.Uint64(data[36:]),
		UncompressedSize: le.Uint64(data[44:]),
		CacheKey:         string(data[52 : 52+cacheKeySize]),
		Target: platform.Target{
			OS:   platform.OS(data[68]),
			Arch: platform.Arch(data[69]),
			Libc: platform.Libc(data[70]),
		},
		PayloadOffset: le.Uint64(data[136:]),
	}

	if !t.Compression.Valid() {
		return nil, fmt.Errorf("%w: unknown compression algorithm tag %d", ErrCorruptContainer, data[34])
	}
	digestSize := t.Checksum.Size()
	if digestSize == 0 {
		return nil, fmt.Errorf("%w: unknown checksum algorithm tag %d", ErrCorruptContainer, data[35])
	}
	t.OriginalChecksum = append([]byte(nil), data[72:72+digestSize]...)

	if t.CompressedSize == 0 || t.UncompressedSize == 0 {
		return nil, fmt.Errorf("%w: zero payload size", ErrCorruptContainer)
	}
	if !isLowerHex(t.CacheKey) {
		return nil, fmt.Errorf("%w: cache key is not lowercase hex", ErrCorruptContainer)
	}
	return t, nil
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return len(s) > 0
}
