// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

package binfmt

import (
	"encoding/binary"
	"fmt"
)

// Mach-O magic numbers. A thin binary stores its magic in its own
// byte order, so a little-endian read sees either the magic or its
// byte-swapped form. Fat (universal) archives always use big-endian
// headers.
const (
	machoMagic32      = 0xFEEDFACE
	machoMagic64      = 0xFEEDFACF
	machoMagic32Swap  = 0xCEFAEDFE
	machoMagic64Swap  = 0xCFFAEDFE
	machoFatMagic     = 0xCAFEBABE
	machoFatMagicSwap = 0xBEBAFECA
)

// Load command types that reference file ranges outside segment
// extents. Segments (notably __LINKEDIT) normally cover everything,
// but a hand-assembled stub may not have a covering segment, so the
// linkedit-data commands are walked too.
const (
	machoCommandSegment32     = 0x01
	machoCommandSymtab        = 0x02
	machoCommandSegment64     = 0x19
	machoCommandCodeSignature = 0x1D
	machoCommandFunctionStart = 0x26
	machoCommandDataInCode    = 0x29
	machoCommandExportsTrie   = 0x80000033
	machoCommandChainedFixups = 0x80000034
)

// isMachOMagic reports whether data begins with any Mach-O magic.
func isMachOMagic(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	switch binary.LittleEndian.Uint32(data) {
	case machoMagic32, machoMagic64, machoMagic32Swap, machoMagic64Swap,
		machoFatMagic, machoFatMagicSwap:
		return true
	}
	return false
}

// machoNativeEnd computes the native image end for a thin or fat
// Mach-O file.
func machoNativeEnd(data []byte) (int64, error) {
	switch binary.LittleEndian.Uint32(data) {
	case machoFatMagic, machoFatMagicSwap:
		return machoFatNativeEnd(data)
	default:
		return machoThinNativeEnd(data)
	}
}

// machoThinNativeEnd walks the load commands of a thin Mach-O image
// and returns the highest file offset they reference.
func machoThinNativeEnd(data []byte) (int64, error) {
	magic := binary.LittleEndian.Uint32(data)

	var order binary.ByteOrder = binary.LittleEndian
	is64 := false
	switch magic {
	case machoMagic64:
		is64 = true
	case machoMagic32:
	case machoMagic64Swap:
		order = binary.BigEndian
		is64 = true
	case machoMagic32Swap:
		order = binary.BigEndian
	default:
		return 0, fmt.Errorf("%w: unexpected Mach-O magic %#x", ErrCorruptContainer, magic)
	}

	headerSize := uint64(28)
	if is64 {
		headerSize = 32
	}
	if uint64(len(data)) < headerSize {
		return 0, fmt.Errorf("%w: %d bytes is too short for a Mach-O header", ErrCorruptContainer, len(data))
	}

	commandCount := order.Uint32(data[16:])
	commandsSize := uint64(order.Uint32(data[20:]))

	commandsEnd := headerSize + commandsSize
	if commandsEnd > uint64(len(data)) {
		return 0, fmt.Errorf("%w: load commands [%d, %d) exceed file of %d bytes",
			ErrCorruptContainer, headerSize, commandsEnd, len(data))
	}

	end := int64(commandsEnd)

	offset := headerSize
	for i := uint32(0); i < commandCount; i++ {
		if offset+8 > commandsEnd {
			return 0, fmt.Errorf("%w: load command %d starts past the declared command area", ErrCorruptContainer, i)
		}
		command := order.Uint32(data[offset:])
		commandSize := uint64(order.Uint32(data[offset+4:]))
		if commandSize < 8 || offset+commandSize > commandsEnd {
			return 0, fmt.Errorf("%w: load command %d has size %d exceeding the command area", ErrCorruptContainer, i, commandSize)
		}
		body := data[offset : offset+commandSize]

		switch command {
		case machoCommandSegment64:
			if commandSize < 64 {
				return 0, fmt.Errorf("%w: 64-bit segment command %d is %d bytes", ErrCorruptContainer, i, commandSize)
			}
			segmentEnd, err := extentEnd(order.Uint64(body[40:]), order.Uint64(body[48:]))
			if err != nil {
				return 0, err
			}
			end = maxInt64(end, segmentEnd)

		case machoCommandSegment32:
			if commandSize < 48 {
				return 0, fmt.Errorf("%w: 32-bit segment command %d is %d bytes", ErrCorruptContainer, i, commandSize)
			}
			fileOffset := uint64(order.Uint32(body[32:]))
			fileSize := uint64(order.Uint32(body[36:]))
			end = maxInt64(end, int64(fileOffset+fileSize))

		case machoCommandSymtab:
			if commandSize < 24 {
				return 0, fmt.Errorf("%w: symtab command %d is %d bytes", ErrCorruptContainer, i, commandSize)
			}
			symbolOffset := uint64(order.Uint32(body[8:]))
			symbolCount := uint64(order.Uint32(body[12:]))
			stringOffset := uint64(order.Uint32(body[16:]))
			stringSize := uint64(order.Uint32(body[20:]))

			symbolEntrySize := uint64(12)
			if is64 {
				symbolEntrySize = 16
			}
			end = maxInt64(end, int64(symbolOffset+symbolCount*symbolEntrySize))
			end = maxInt64(end, int64(stringOffset+stringSize))

		case machoCommandCodeSignature, machoCommandFunctionStart,
			machoCommandDataInCode, machoCommandExportsTrie,
			machoCommandChainedFixups:
			if commandSize < 16 {
				return 0, fmt.Errorf("%w: linkedit-data command %d is %d bytes", ErrCorruptContainer, i, commandSize)
			}
			dataOffset := uint64(order.Uint32(body[8:]))
			dataSize := uint64(order.Uint32(body[12:]))
			end = maxInt64(end, int64(dataOffset+dataSize))
		}

		offset += commandSize
	}

	return end, nil
}

// machoFatNativeEnd computes the end of a fat (universal) archive:
// the highest offset+size over the per-architecture slices. Fat
// headers are always big-endian.
func machoFatNativeEnd(data []byte) (int64, error) {
	if len(data) < 8 {
		return 0, fmt.Errorf("%w: %d bytes is too short for a fat header", ErrCorruptContainer, len(data))
	}

	archCount := binary.BigEndian.Uint32(data[4:])
	const fatHeaderSize = 8
	const fatArchSize = 20

	tableEnd := uint64(fatHeaderSize) + uint64(archCount)*fatArchSize
	if tableEnd > uint64(len(data)) {
		return 0, fmt.Errorf("%w: fat arch table of %d entries exceeds file of %d bytes",
			ErrCorruptContainer, archCount, len(data))
	}
	if archCount == 0 {
		return 0, fmt.Errorf("%w: fat archive with zero architectures", ErrCorruptContainer)
	}

	end := int64(tableEnd)
	for i := uint32(0); i < archCount; i++ {
		entry := data[fatHeaderSize+i*fatArchSize:]
		sliceOffset := uint64(binary.BigEndian.Uint32(entry[8:]))
		sliceSize := uint64(binary.BigEndian.Uint32(entry[12:]))
		end = maxInt64(end, int64(sliceOffset+sliceSize))
	}

	return end, nil
}
