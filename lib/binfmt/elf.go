// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

package binfmt

import (
	"encoding/binary"
	"fmt"
)

// ELF identification indexes and values (System V ABI).
const (
	elfClassOffset = 4
	elfDataOffset  = 5

	elfClass32 = 1
	elfClass64 = 2

	elfDataLittle = 1
	elfDataBig    = 2

	// SHT_NOBITS sections (.bss) occupy no file space; their sh_offset
	// is a placement hint, not a claim on file bytes.
	elfSectionTypeNoBits = 8
)

// elfNativeEnd walks the ELF program header and section header tables
// and returns the highest file offset they reference: the table ends
// themselves, every PT_LOAD-style segment's file extent, and every
// section's file extent.
func elfNativeEnd(data []byte) (int64, error) {
	if len(data) < 0x34 {
		return 0, fmt.Errorf("%w: %d bytes is too short for an ELF header", ErrCorruptContainer, len(data))
	}

	var order binary.ByteOrder
	switch data[elfDataOffset] {
	case elfDataLittle:
		order = binary.LittleEndian
	case elfDataBig:
		order = binary.BigEndian
	default:
		return 0, fmt.Errorf("%w: invalid ELF data encoding %d", ErrCorruptContainer, data[elfDataOffset])
	}

	switch data[elfClassOffset] {
	case elfClass32:
		return elfNativeEnd32(data, order)
	case elfClass64:
		return elfNativeEnd64(data, order)
	default:
		return 0, fmt.Errorf("%w: invalid ELF class %d", ErrCorruptContainer, data[elfClassOffset])
	}
}

func elfNativeEnd64(data []byte, order binary.ByteOrder) (int64, error) {
	if len(data) < 0x40 {
		return 0, fmt.Errorf("%w: %d bytes is too short for a 64-bit ELF header", ErrCorruptContainer, len(data))
	}

	programHeaderOffset := order.Uint64(data[0x20:])
	sectionHeaderOffset := order.Uint64(data[0x28:])
	programHeaderEntrySize := uint64(order.Uint16(data[0x36:]))
	programHeaderCount := uint64(order.Uint16(data[0x38:]))
	sectionHeaderEntrySize := uint64(order.Uint16(data[0x3A:]))
	sectionHeaderCount := uint64(order.Uint16(data[0x3C:]))

	end := int64(0x40)

	// Program header table and each segment's file extent.
	if programHeaderCount > 0 {
		tableEnd, err := tableBounds(data, programHeaderOffset, programHeaderEntrySize, 0x38, programHeaderCount, "program header")
		if err != nil {
			return 0, err
		}
		end = maxInt64(end, tableEnd)

		for i := uint64(0); i < programHeaderCount; i++ {
			entry := data[programHeaderOffset+i*programHeaderEntrySize:]
			segmentEnd, err := extentEnd(order.Uint64(entry[0x08:]), order.Uint64(entry[0x20:]))
			if err != nil {
				return 0, err
			}
			end = maxInt64(end, segmentEnd)
		}
	}

	// Section header table and each section's file extent.
	if sectionHeaderCount > 0 {
		tableEnd, err := tableBounds(data, sectionHeaderOffset, sectionHeaderEntrySize, 0x40, sectionHeaderCount, "section header")
		if err != nil {
			return 0, err
		}
		end = maxInt64(end, tableEnd)

		for i := uint64(0); i < sectionHeaderCount; i++ {
			entry := data[sectionHeaderOffset+i*sectionHeaderEntrySize:]
			sectionType := order.Uint32(entry[0x04:])
			if sectionType == elfSectionTypeNoBits {
				continue
			}
			sectionEnd, err := extentEnd(order.Uint64(entry[0x18:]), order.Uint64(entry[0x20:]))
			if err != nil {
				return 0, err
			}
			end = maxInt64(end, sectionEnd)
		}
	}

	return end, nil
}

func elfNativeEnd32(data []byte, order binary.ByteOrder) (int64, error) {
	programHeaderOffset := uint64(order.Uint32(data[0x1C:]))
	sectionHeaderOffset := uint64(order.Uint32(data[0x20:]))
	programHeaderEntrySize := uint64(order.Uint16(data[0x2A:]))
	programHeaderCount := uint64(order.Uint16(data[0x2C:]))
	sectionHeaderEntrySize := uint64(order.Uint16(data[0x2E:]))
	sectionHeaderCount := uint64(order.Uint16(data[0x30:]))

	end := int64(0x34)

	if programHeaderCount > 0 {
		tableEnd, err := tableBounds(data, programHeaderOffset, programHeaderEntrySize, 0x20, programHeaderCount, "program header")
		if err != nil {
			return 0, err
		}
		end = maxInt64(end, tableEnd)

		for i := uint64(0); i < programHeaderCount; i++ {
			entry := data[programHeaderOffset+i*programHeaderEntrySize:]
			fileOffset := uint64(order.Uint32(entry[0x04:]))
			fileSize := uint64(order.Uint32(entry[0x10:]))
			end = maxInt64(end, int64(fileOffset+fileSize))
		}
	}

	if sectionHeaderCount > 0 {
		tableEnd, err := tableBounds(data, sectionHeaderOffset, sectionHeaderEntrySize, 0x28, sectionHeaderCount, "section header")
		if err != nil {
			return 0, err
		}
		end = maxInt64(end, tableEnd)

		for i := uint64(0); i < sectionHeaderCount; i++ {
			entry := data[sectionHeaderOffset+i*sectionHeaderEntrySize:]
			sectionType := order.Uint32(entry[0x04:])
			if sectionType == elfSectionTypeNoBits {
				continue
			}
			fileOffset := uint64(order.Uint32(entry[0x10:]))
			sectionSize := uint64(order.Uint32(entry[0x14:]))
			end = maxInt64(end, int64(fileOffset+sectionSize))
		}
	}

	return end, nil
}

// tableBounds validates that a header table of count entries of
// entrySize bytes starting at offset lies entirely within data, and
// returns the table's end offset. minEntrySize is the smallest entry
// the caller's field reads can tolerate.
func tableBounds(data []byte, offset, entrySize, minEntrySize, count uint64, name string) (int64, error) {
	if entrySize < minEntrySize {
		return 0, fmt.Errorf("%w: %s table entry size %d is below the format minimum %d",
			ErrCorruptContainer, name, entrySize, minEntrySize)
	}
	tableEnd := offset + entrySize*count
	if tableEnd < offset || tableEnd > uint64(len(data)) {
		return 0, fmt.Errorf("%w: %s table [%d, %d) exceeds file of %d bytes",
			ErrCorruptContainer, name, offset, tableEnd, len(data))
	}
	return int64(tableEnd), nil
}
