// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the binpress
// tools.
//
// Configuration is loaded from a single file specified by either the
// BINPRESS_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks, no ~/.config
// discovery, and no automatic file search. This ensures
// deterministic, auditable configuration with no hidden overrides.
// Unlike Load in most tools, an unset BINPRESS_CONFIG is not an
// error: the file is optional and the defaults stand alone.
//
// Variable expansion is performed on path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded. No other
// environment variables override config values; the documented
// runtime toggles (BINPRESS_CACHE_DIR, BINPRESS_FORCE_PORTABLE,
// BINPRESS_DEBUG) act on their own concerns directly.
//
// Key exports:
//
//   - [Config] -- compression, checksum, cache, and stub settings
//   - [Default] -- returns the standalone defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends only on the algorithm registries in lib/press
// and lib/checksum.
package config
