// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import "encoding/binary"

// Minimal executable image builders. Each returns a structurally valid
// image of its format whose header tables account for every byte, so
// the native end of the image equals its length. The code argument
// stands in for the machine code a real binary would carry.

// MinimalELF returns a 64-bit little-endian ELF executable with a
// single PT_LOAD segment covering the whole file and no section
// headers.
func MinimalELF(code []byte) []byte {
	const headerSize = 0x40
	const programHeaderSize = 0x38
	total := headerSize + programHeaderSize + len(code)

	image := make([]byte, total)
	copy(image, []byte{0x7F, 'E', 'L', 'F'})
	image[4] = 2 // ELFCLASS64
	image[5] = 1 // ELFDATA2LSB
	image[6] = 1 // EV_CURRENT

	le := binary.LittleEndian
	le.PutUint16(image[0x10:], 2)      // e_type: ET_EXEC
	le.PutUint16(image[0x12:], 0x3E)   // e_machine: EM_X86_64
	le.PutUint32(image[0x14:], 1)      // e_version
	le.PutUint64(image[0x20:], 0x40)   // e_phoff
	le.PutUint16(image[0x34:], 0x40)   // e_ehsize
	le.PutUint16(image[0x36:], 0x38)   // e_phentsize
	le.PutUint16(image[0x38:], 1)      // e_phnum
	le.PutUint16(image[0x3A:], 0x40)   // e_shentsize

	phdr := image[headerSize:]
	le.PutUint32(phdr, 1)                        // p_type: PT_LOAD
	le.PutUint32(phdr[0x04:], 5)                 // p_flags: R+X
	le.PutUint64(phdr[0x08:], 0)                 // p_offset
	le.PutUint64(phdr[0x20:], uint64(total))     // p_filesz
	le.PutUint64(phdr[0x28:], uint64(total))     // p_memsz

	copy(image[headerSize+programHeaderSize:], code)
	return image
}

// MinimalMachO returns a 64-bit little-endian thin Mach-O executable
// with a single LC_SEGMENT_64 covering the whole file.
func MinimalMachO(code []byte) []byte {
	const headerSize = 32
	const segmentCommandSize = 72
	total := headerSize + segmentCommandSize + len(code)

	image := make([]byte, total)
	le := binary.LittleEndian
	le.PutUint32(image, 0xFEEDFACF)                // MH_MAGIC_64
	le.PutUint32(image[4:], 0x0100000C)            // CPU_TYPE_ARM64
	le.PutUint32(image[12:], 2)                    // MH_EXECUTE
	le.PutUint32(image[16:], 1)                    // ncmds
	le.PutUint32(image[20:], segmentCommandSize)   // sizeofcmds

	command := image[headerSize:]
	le.PutUint32(command, 0x19)                  // LC_SEGMENT_64
	le.PutUint32(command[4:], segmentCommandSize)
	copy(command[8:], "__TEXT")
	le.PutUint64(command[40:], 0)                // fileoff
	le.PutUint64(command[48:], uint64(total))    // filesize
	le.PutUint32(command[64:], 0)                // nsects

	copy(image[headerSize+segmentCommandSize:], code)
	return image
}

// MinimalPE returns a PE32+ executable with a single section whose raw
// data runs to the end of the file, and an empty certificate table.
func MinimalPE(code []byte) []byte {
	const dosHeaderSize = 64
	const signatureSize = 4
	const coffHeaderSize = 20
	const optionalHeaderSize = 240 // PE32+ with 16 data directories
	const sectionEntrySize = 40

	codeOffset := dosHeaderSize + signatureSize + coffHeaderSize + optionalHeaderSize + sectionEntrySize
	total := codeOffset + len(code)

	image := make([]byte, total)
	le := binary.LittleEndian

	image[0] = 'M'
	image[1] = 'Z'
	le.PutUint32(image[0x3C:], dosHeaderSize) // e_lfanew

	copy(image[dosHeaderSize:], "PE\x00\x00")

	coff := image[dosHeaderSize+signatureSize:]
	le.PutUint16(coff, 0x8664)                      // IMAGE_FILE_MACHINE_AMD64
	le.PutUint16(coff[2:], 1)                       // NumberOfSections
	le.PutUint16(coff[16:], optionalHeaderSize)     // SizeOfOptionalHeader
	le.PutUint16(coff[18:], 0x0022)                 // characteristics

	optional := coff[coffHeaderSize:]
	le.PutUint16(optional, 0x20B) // PE32+ magic
	le.PutUint32(optional[108:], 16)                // NumberOfRvaAndSizes

	section := optional[optionalHeaderSize:]
	copy(section, ".text")
	le.PutUint32(section[16:], uint32(len(code)))   // SizeOfRawData
	le.PutUint32(section[20:], uint32(codeOffset))  // PointerToRawData

	copy(image[codeOffset:], code)
	return image
}
