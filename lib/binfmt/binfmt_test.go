// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

package binfmt

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/binpress-io/binpress/lib/testutil"
)

var testCode = []byte("fake machine code for format walking tests")

func TestDetect(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want Format
	}{
		{"elf", testutil.MinimalELF(testCode), ELF},
		{"mach-o thin", testutil.MinimalMachO(testCode), MachO},
		{"mach-o big-endian", bigEndianMachO(testCode), MachO},
		{"mach-o fat", fatMachO(testCode), MachO},
		{"pe", testutil.MinimalPE(testCode), PE},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			format, err := Detect(c.data)
			if err != nil {
				t.Fatalf("Detect failed: %v", err)
			}
			if format != c.want {
				t.Errorf("Detect = %v, want %v", format, c.want)
			}
		})
	}
}

func TestDetectUnrecognized(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"too short", []byte{0x7F, 'E'}},
		{"shell script", []byte("#!/bin/sh\necho hello\n")},
		{"text", []byte("definitely not an executable image")},
		{"mz without pe signature", append([]byte("MZ"), make([]byte, 200)...)},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := Detect(c.data); !errors.Is(err, ErrUnrecognizedFormat) {
				t.Errorf("Detect = %v, want ErrUnrecognizedFormat", err)
			}
		})
	}
}

func TestNativeEndCoversWholeImage(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"elf64", testutil.MinimalELF(testCode)},
		{"elf32", elf32(testCode)},
		{"mach-o", testutil.MinimalMachO(testCode)},
		{"mach-o big-endian", bigEndianMachO(testCode)},
		{"mach-o fat", fatMachO(testCode)},
		{"pe", testutil.MinimalPE(testCode)},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			end, err := NativeEnd(c.data)
			if err != nil {
				t.Fatalf("NativeEnd failed: %v", err)
			}
			if end != int64(len(c.data)) {
				t.Errorf("NativeEnd = %d, want image length %d", end, len(c.data))
			}
		})
	}
}

// Data appended past the native end must not move the boundary. The OS
// loader only trusts header tables, and so does NativeEnd.
func TestNativeEndIgnoresAppendedData(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"elf", testutil.MinimalELF(testCode)},
		{"mach-o", testutil.MinimalMachO(testCode)},
		{"pe", testutil.MinimalPE(testCode)},
	}

	trailer := make([]byte, 4096)
	for i := range trailer {
		trailer[i] = byte(i)
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			imageLength := len(c.data)
			extended := append(append([]byte{}, c.data...), trailer...)

			end, err := NativeEnd(extended)
			if err != nil {
				t.Fatalf("NativeEnd failed: %v", err)
			}
			if end != int64(imageLength) {
				t.Errorf("NativeEnd = %d, want original image length %d", end, imageLength)
			}
		})
	}
}

func TestNativeEndCorruptTables(t *testing.T) {
	le := binary.LittleEndian

	elfBadTableOffset := testutil.MinimalELF(testCode)
	le.PutUint64(elfBadTableOffset[0x20:], 1<<40) // e_phoff past the file

	elfOversizedSegment := testutil.MinimalELF(testCode)
	le.PutUint64(elfOversizedSegment[0x40+0x20:], 1<<40) // p_filesz past the file

	elfOverflowingSegment := testutil.MinimalELF(testCode)
	le.PutUint64(elfOverflowingSegment[0x40+0x08:], ^uint64(0)-16) // p_offset near wraparound
	le.PutUint64(elfOverflowingSegment[0x40+0x20:], 1024)

	elfTinyEntries := testutil.MinimalELF(testCode)
	le.PutUint16(elfTinyEntries[0x36:], 4) // e_phentsize below the format minimum

	machoBadCommandArea := testutil.MinimalMachO(testCode)
	le.PutUint32(machoBadCommandArea[20:], 1<<30) // sizeofcmds past the file

	machoBadCommandSize := testutil.MinimalMachO(testCode)
	le.PutUint32(machoBadCommandSize[32+4:], 4) // cmdsize below the 8-byte minimum

	peBadSectionCount := testutil.MinimalPE(testCode)
	le.PutUint16(peBadSectionCount[68+2:], 50000) // section table past the file

	fatEmpty := make([]byte, 8)
	binary.BigEndian.PutUint32(fatEmpty, 0xCAFEBABE) // fat archive, zero architectures

	cases := []struct {
		name string
		data []byte
	}{
		{"elf header table out of bounds", elfBadTableOffset},
		{"elf segment past end of file", elfOversizedSegment},
		{"elf segment extent overflow", elfOverflowingSegment},
		{"elf undersized table entries", elfTinyEntries},
		{"elf truncated header", []byte{0x7F, 'E', 'L', 'F', 2, 1}},
		{"mach-o command area out of bounds", machoBadCommandArea},
		{"mach-o undersized command", machoBadCommandSize},
		{"mach-o truncated header", testutil.MinimalMachO(testCode)[:16]},
		{"mach-o fat zero architectures", fatEmpty},
		{"pe section table out of bounds", peBadSectionCount},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := NativeEnd(c.data); !errors.Is(err, ErrCorruptContainer) {
				t.Errorf("NativeEnd = %v, want ErrCorruptContainer", err)
			}
		})
	}
}

func TestFormatString(t *testing.T) {
	if ELF.String() != "elf" || MachO.String() != "mach-o" || PE.String() != "pe" {
		t.Error("format names do not match their conventional spellings")
	}
}

// elf32 builds a 32-bit little-endian ELF image with one PT_LOAD
// segment covering the whole file.
func elf32(code []byte) []byte {
	const headerSize = 0x34
	const programHeaderSize = 0x20
	total := headerSize + programHeaderSize + len(code)

	image := make([]byte, total)
	copy(image, []byte{0x7F, 'E', 'L', 'F'})
	image[4] = 1 // ELFCLASS32
	image[5] = 1 // ELFDATA2LSB
	image[6] = 1

	le := binary.LittleEndian
	le.PutUint16(image[0x10:], 2)    // e_type: ET_EXEC
	le.PutUint32(image[0x1C:], 0x34) // e_phoff
	le.PutUint16(image[0x2A:], 0x20) // e_phentsize
	le.PutUint16(image[0x2C:], 1)    // e_phnum
	le.PutUint16(image[0x2E:], 0x28) // e_shentsize

	phdr := image[headerSize:]
	le.PutUint32(phdr, 1)                    // p_type: PT_LOAD
	le.PutUint32(phdr[0x10:], uint32(total)) // p_filesz

	copy(image[headerSize+programHeaderSize:], code)
	return image
}

// bigEndianMachO builds a thin 64-bit Mach-O image with big-endian
// headers, as a byte-swapped foreign-architecture binary would carry.
func bigEndianMachO(code []byte) []byte {
	const headerSize = 32
	const segmentCommandSize = 72
	total := headerSize + segmentCommandSize + len(code)

	image := make([]byte, total)
	be := binary.BigEndian
	be.PutUint32(image, 0xFEEDFACF)
	be.PutUint32(image[12:], 2)                  // MH_EXECUTE
	be.PutUint32(image[16:], 1)                  // ncmds
	be.PutUint32(image[20:], segmentCommandSize) // sizeofcmds

	command := image[headerSize:]
	be.PutUint32(command, 0x19) // LC_SEGMENT_64
	be.PutUint32(command[4:], segmentCommandSize)
	copy(command[8:], "__TEXT")
	be.PutUint64(command[48:], uint64(total)) // filesize

	copy(image[headerSize+segmentCommandSize:], code)
	return image
}

// fatMachO wraps a thin image in a single-architecture fat archive.
func fatMachO(code []byte) []byte {
	thin := testutil.MinimalMachO(code)

	const fatHeaderSize = 8
	const fatArchSize = 20
	sliceOffset := fatHeaderSize + fatArchSize

	image := make([]byte, sliceOffset+len(thin))
	be := binary.BigEndian
	be.PutUint32(image, 0xCAFEBABE)
	be.PutUint32(image[4:], 1) // nfat_arch

	arch := image[fatHeaderSize:]
	be.PutUint32(arch[8:], uint32(sliceOffset))
	be.PutUint32(arch[12:], uint32(len(thin)))

	copy(image[sliceOffset:], thin)
	return image
}
