// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

package press

import "os"

// ForcePortableEnv forces the portable zstd codec, bypassing the LZ4
// fast path. Set to any non-empty value to activate.
const ForcePortableEnv = "BINPRESS_FORCE_PORTABLE"

// Capabilities describes the codec configuration for this process.
// It is computed once at startup and passed explicitly to the
// components that need it, so there is no lazily-initialized global
// state to reason about.
type Capabilities struct {
	// ForcePortable is true when the environment demands the portable
	// zstd codec for new containers.
	ForcePortable bool
}

// DetectCapabilities reads the process environment once and returns
// the resulting capabilities. Callers hold the value for the process
// lifetime; it is never mutated.
func DetectCapabilities() Capabilities {
	return Capabilities{
		ForcePortable: os.Getenv(ForcePortableEnv) != "",
	}
}

// DefaultAlgorithm returns the compression algorithm new containers
// should use under these capabilities.
func (c Capabilities) DefaultAlgorithm() Algorithm {
	if c.ForcePortable {
		return AlgorithmZstd
	}
	return AlgorithmLZ4
}
