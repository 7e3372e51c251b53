// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/binpress-io/binpress/lib/binfmt"
)

// ErrTrailerNotFound indicates a well-formed executable with no
// trailer at its native end: a plain binary, not a container.
var ErrTrailerNotFound = errors.New("no container trailer at the native image end")

// Locate finds and validates the trailer in a complete container
// image. The trailer is located, never scanned for: it must begin
// exactly at the native image end the executable's own header tables
// describe. Returns the trailer and its file offset.
//
// Error classes are distinct so callers can exit differently on each:
// binfmt.ErrUnrecognizedFormat (not an executable at all),
// binfmt.ErrCorruptContainer (broken header tables),
// ErrTrailerNotFound (a plain uncompressed binary), and
// ErrCorruptContainer (a trailer that fails validation).
func Locate(data []byte) (*Trailer, int64, error) {
	nativeEnd, err := binfmt.NativeEnd(data)
	if err != nil {
		return nil, 0, err
	}

	if int64(len(data)) < nativeEnd+TrailerSize ||
		!bytes.Equal(data[nativeEnd:nativeEnd+markerSize], magicMarker()) {
		return nil, 0, fmt.Errorf("%w (native end %d, file size %d)", ErrTrailerNotFound, nativeEnd, len(data))
	}

	trailer, err := UnmarshalTrailer(data[nativeEnd : nativeEnd+TrailerSize])
	if err != nil {
		return nil, 0, err
	}

	// The payload must sit between the trailer and the end of the
	// file. PayloadOffset is trusted only after this check.
	trailerEnd := uint64(nativeEnd) + TrailerSize
	if trailer.PayloadOffset < trailerEnd ||
		trailer.PayloadOffset+trailer.CompressedSize > uint64(len(data)) ||
		trailer.PayloadOffset+trailer.CompressedSize < trailer.PayloadOffset {
		return nil, 0, fmt.Errorf("%w: payload [%d, +%d) outside file of %d bytes",
			ErrCorruptContainer, trailer.PayloadOffset, trailer.CompressedSize, len(data))
	}

	return trailer, nativeEnd, nil
}

// Payload returns the compressed payload bytes a located trailer
// describes. Bounds were validated by Locate.
func Payload(data []byte, trailer *Trailer) []byte {
	return data[trailer.PayloadOffset : trailer.PayloadOffset+trailer.CompressedSize]
}

// IsContainer reports whether data is a valid container: a recognized
// executable with a valid trailer at its native end.
func IsContainer(data []byte) bool {
	_, _, err := Locate(data)
	return err == nil
}
