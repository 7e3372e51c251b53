// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

// Package platform identifies the operating system, CPU architecture,
// and (on Linux) libc variant a binary targets. The triple is embedded
// in container trailers and used to name cached binaries so that
// entries for different targets never collide.
package platform

import (
	"fmt"
	"os"
	"runtime"
)

// OS identifies an operating system. The numeric values are trailer
// protocol constants; changing them breaks container compatibility.
type OS uint8

const (
	Linux   OS = 0
	Darwin  OS = 1
	Windows OS = 2
)

// Arch identifies a CPU architecture. Trailer protocol constants.
type Arch uint8

const (
	AMD64 Arch = 0
	ARM64 Arch = 1
)

// Libc identifies the C library variant on Linux. Trailer protocol
// constants. LibcNone is used on every non-Linux target.
type Libc uint8

const (
	Glibc    Libc = 0
	Musl     Libc = 1
	LibcNone Libc = 255
)

// Target is the platform triple a binary runs on.
type Target struct {
	OS   OS
	Arch Arch
	Libc Libc
}

// String returns the human-readable name of an OS.
func (o OS) String() string {
	switch o {
	case Linux:
		return "linux"
	case Darwin:
		return "darwin"
	case Windows:
		return "windows"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(o))
	}
}

// String returns the human-readable name of an architecture.
func (a Arch) String() string {
	switch a {
	case AMD64:
		return "amd64"
	case ARM64:
		return "arm64"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// String returns the human-readable name of a libc variant. LibcNone
// formats as the empty string so callers can append it conditionally.
func (l Libc) String() string {
	switch l {
	case Glibc:
		return "glibc"
	case Musl:
		return "musl"
	case LibcNone:
		return ""
	default:
		return fmt.Sprintf("unknown(%d)", uint8(l))
	}
}

// ParseOS parses an OS from its string name.
func ParseOS(name string) (OS, error) {
	switch name {
	case "linux":
		return Linux, nil
	case "darwin":
		return Darwin, nil
	case "windows":
		return Windows, nil
	default:
		return 0, fmt.Errorf("unknown operating system: %q", name)
	}
}

// ParseArch parses an architecture from its string name.
func ParseArch(name string) (Arch, error) {
	switch name {
	case "amd64":
		return AMD64, nil
	case "arm64":
		return ARM64, nil
	default:
		return 0, fmt.Errorf("unknown architecture: %q", name)
	}
}

// Current returns the target for the running process. Libc detection
// only applies on Linux; other systems report LibcNone.
func Current() Target {
	target := Target{Libc: LibcNone}

	switch runtime.GOOS {
	case "darwin":
		target.OS = Darwin
	case "windows":
		target.OS = Windows
	default:
		target.OS = Linux
		target.Libc = detectLibc()
	}

	switch runtime.GOARCH {
	case "arm64":
		target.Arch = ARM64
	default:
		target.Arch = AMD64
	}

	return target
}

// muslLoaderPaths are the dynamic linker locations that musl-based
// distributions (Alpine and derivatives) install. Probing for them is
// more reliable across distributions than parsing tool output.
var muslLoaderPaths = []string{
	"/lib/ld-musl-x86_64.so.1",
	"/lib/ld-musl-aarch64.so.1",
	"/usr/lib/ld-musl-x86_64.so.1",
	"/usr/lib/ld-musl-aarch64.so.1",
}

// detectLibc determines the libc variant of the running Linux system.
// Defaults to glibc, the most common case.
func detectLibc() Libc {
	for _, path := range muslLoaderPaths {
		if _, err := os.Stat(path); err == nil {
			return Musl
		}
	}
	return Glibc
}

// BinaryName returns the filename used for a cached decompressed
// binary belonging to this target, qualified so that entries for
// different platforms sharing one cache root never collide.
func (t Target) BinaryName() string {
	name := "bin-" + t.OS.String() + "-" + t.Arch.String()
	if t.OS == Linux && t.Libc != LibcNone {
		name += "-" + t.Libc.String()
	}
	if t.OS == Windows {
		name += ".exe"
	}
	return name
}

// Valid reports whether the target's fields hold known values. Used
// when reading a trailer produced by an unknown builder.
func (t Target) Valid() bool {
	switch t.OS {
	case Linux, Darwin, Windows:
	default:
		return false
	}
	switch t.Arch {
	case AMD64, ARM64:
	default:
		return false
	}
	switch t.Libc {
	case Glibc, Musl, LibcNone:
	default:
		return false
	}
	return true
}
