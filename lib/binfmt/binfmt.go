// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

// Package binfmt detects executable formats and computes the end of
// the native image from each format's own header tables. Appending
// container data after that boundary is invisible to the OS loader,
// which only trusts its header tables. This is what lets a stub carry
// a compressed payload without corrupting itself.
//
// The package never interprets code or relocations. It reads exactly
// the header fields needed to find the highest file offset the format
// claims, handling 32- and 64-bit variants and both Mach-O byte
// orders.
package binfmt

import (
	"errors"
	"fmt"
)

// Format is the detected executable format.
type Format uint8

const (
	ELF Format = iota + 1
	MachO
	PE
)

// ErrUnrecognizedFormat indicates the data matches no known executable
// magic number.
var ErrUnrecognizedFormat = errors.New("unrecognized executable format")

// ErrCorruptContainer indicates the format was recognized but its
// header tables are truncated or internally inconsistent.
var ErrCorruptContainer = errors.New("corrupt executable header tables")

// String returns the conventional format name.
func (f Format) String() string {
	switch f {
	case ELF:
		return "elf"
	case MachO:
		return "mach-o"
	case PE:
		return "pe"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(f))
	}
}

// Detect identifies the executable format from magic numbers: ELF
// ("\x7fELF"), Mach-O (thin 32/64-bit in either byte order, or a fat
// archive), PE ("MZ" with a valid "PE\0\0" signature at e_lfanew).
func Detect(data []byte) (Format, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("%w: %d bytes is too short for any magic number", ErrUnrecognizedFormat, len(data))
	}

	if data[0] == 0x7F && data[1] == 'E' && data[2] == 'L' && data[3] == 'F' {
		return ELF, nil
	}

	if isMachOMagic(data) {
		return MachO, nil
	}

	// PE requires both the DOS magic and the PE signature; plenty of
	// non-executable formats begin with "MZ"-like prefixes.
	if data[0] == 'M' && data[1] == 'Z' && hasPESignature(data) {
		return PE, nil
	}

	return 0, ErrUnrecognizedFormat
}

// NativeEnd returns the end of the native executable image: the
// highest file offset referenced by the detected format's header
// tables. Bytes at and beyond this offset belong to whoever appended
// them, not to the loader.
func NativeEnd(data []byte) (int64, error) {
	format, err := Detect(data)
	if err != nil {
		return 0, err
	}

	var end int64
	switch format {
	case ELF:
		end, err = elfNativeEnd(data)
	case MachO:
		end, err = machoNativeEnd(data)
	case PE:
		end, err = peNativeEnd(data)
	}
	if err != nil {
		return 0, err
	}

	if end <= 0 || end > int64(len(data)) {
		return 0, fmt.Errorf("%w: computed native end %d outside file of %d bytes", ErrCorruptContainer, end, len(data))
	}
	return end, nil
}

// maxInt64 returns the larger of two offsets. Header table walks
// accumulate the maximum end seen.
func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// extentEnd computes offset+size with overflow detection. A header
// entry whose extent wraps the 64-bit space is corrupt, not merely
// large.
func extentEnd(offset, size uint64) (int64, error) {
	end := offset + size
	if end < offset || end > 1<<62 {
		return 0, fmt.Errorf("%w: file extent [%d, +%d) overflows", ErrCorruptContainer, offset, size)
	}
	return int64(end), nil
}
