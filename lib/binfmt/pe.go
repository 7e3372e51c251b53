// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

package binfmt

import (
	"encoding/binary"
	"fmt"
)

const (
	// peLfanewOffset is where the DOS header stores the file offset of
	// the "PE\0\0" signature.
	peLfanewOffset = 0x3C

	peMagic32     = 0x10B // PE32
	peMagic64     = 0x20B // PE32+
	peSectionSize = 40

	// peCertificateDirectory is data directory index 4. Unique among
	// directories, its VirtualAddress field holds a file offset, and
	// Authenticode signatures live at the end of the file, so it must
	// participate in the native-end computation.
	peCertificateDirectory = 4
)

// hasPESignature reports whether an "MZ"-prefixed buffer carries a
// valid "PE\0\0" signature at the offset the DOS header points to.
func hasPESignature(data []byte) bool {
	if len(data) < peLfanewOffset+4 {
		return false
	}
	signatureOffset := binary.LittleEndian.Uint32(data[peLfanewOffset:])
	if uint64(signatureOffset)+4 > uint64(len(data)) {
		return false
	}
	return data[signatureOffset] == 'P' && data[signatureOffset+1] == 'E' &&
		data[signatureOffset+2] == 0 && data[signatureOffset+3] == 0
}

// peNativeEnd walks the COFF section table and the certificate data
// directory and returns the highest file offset they reference.
func peNativeEnd(data []byte) (int64, error) {
	signatureOffset := uint64(binary.LittleEndian.Uint32(data[peLfanewOffset:]))

	// COFF file header follows the 4-byte signature.
	coffOffset := signatureOffset + 4
	if coffOffset+20 > uint64(len(data)) {
		return 0, fmt.Errorf("%w: COFF header at %d exceeds file of %d bytes", ErrCorruptContainer, coffOffset, len(data))
	}
	sectionCount := uint64(binary.LittleEndian.Uint16(data[coffOffset+2:]))
	optionalHeaderSize := uint64(binary.LittleEndian.Uint16(data[coffOffset+16:]))

	optionalOffset := coffOffset + 20
	if optionalOffset+optionalHeaderSize > uint64(len(data)) {
		return 0, fmt.Errorf("%w: optional header of %d bytes exceeds file", ErrCorruptContainer, optionalHeaderSize)
	}

	sectionTableOffset := optionalOffset + optionalHeaderSize
	sectionTableEnd := sectionTableOffset + sectionCount*peSectionSize
	if sectionTableEnd > uint64(len(data)) {
		return 0, fmt.Errorf("%w: section table of %d entries exceeds file of %d bytes",
			ErrCorruptContainer, sectionCount, len(data))
	}

	end := int64(sectionTableEnd)

	// Section raw data extents. SizeOfRawData of zero marks
	// uninitialized-data sections, which claim no file bytes.
	for i := uint64(0); i < sectionCount; i++ {
		entry := data[sectionTableOffset+i*peSectionSize:]
		rawSize := uint64(binary.LittleEndian.Uint32(entry[16:]))
		rawOffset := uint64(binary.LittleEndian.Uint32(entry[20:]))
		if rawSize == 0 {
			continue
		}
		end = maxInt64(end, int64(rawOffset+rawSize))
	}

	// Certificate table (Authenticode). Data directories sit at the
	// tail of the optional header; their position depends on whether
	// this is PE32 or PE32+.
	if optionalHeaderSize >= 2 {
		certificateEnd, err := peCertificateEnd(data, optionalOffset, optionalHeaderSize)
		if err != nil {
			return 0, err
		}
		end = maxInt64(end, certificateEnd)
	}

	return end, nil
}

// peCertificateEnd returns the file end of the certificate table, or
// 0 when the directory is absent or empty.
func peCertificateEnd(data []byte, optionalOffset, optionalHeaderSize uint64) (int64, error) {
	magic := binary.LittleEndian.Uint16(data[optionalOffset:])

	var directoryCountOffset uint64
	switch magic {
	case peMagic32:
		directoryCountOffset = 92
	case peMagic64:
		directoryCountOffset = 108
	default:
		return 0, fmt.Errorf("%w: unknown optional header magic %#x", ErrCorruptContainer, magic)
	}

	if optionalHeaderSize < directoryCountOffset+4 {
		// Optional header too small to carry data directories; nothing
		// more to account for.
		return 0, nil
	}

	directoryCount := uint64(binary.LittleEndian.Uint32(data[optionalOffset+directoryCountOffset:]))
	if directoryCount <= peCertificateDirectory {
		return 0, nil
	}

	entryOffset := optionalOffset + directoryCountOffset + 4 + peCertificateDirectory*8
	if entryOffset+8 > optionalOffset+optionalHeaderSize {
		return 0, fmt.Errorf("%w: data directory %d exceeds the optional header", ErrCorruptContainer, peCertificateDirectory)
	}

	certificateOffset := uint64(binary.LittleEndian.Uint32(data[entryOffset:]))
	certificateSize := uint64(binary.LittleEndian.Uint32(data[entryOffset+4:]))
	if certificateSize == 0 {
		return 0, nil
	}
	return int64(certificateOffset + certificateSize), nil
}
