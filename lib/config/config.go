// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the binpress
// tools.
//
// Configuration is loaded from a single YAML file specified by:
//   - BINPRESS_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery, and environment
// variables do not override file values. This ensures deterministic,
// auditable configuration with no hidden overrides; the documented
// runtime toggles (BINPRESS_CACHE_DIR, BINPRESS_FORCE_PORTABLE,
// BINPRESS_DEBUG) act on their own concerns, not on this file.
package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/binpress-io/binpress/lib/checksum"
	"github.com/binpress-io/binpress/lib/press"
)

// ConfigEnv names the file to load when no --config flag is given.
const ConfigEnv = "BINPRESS_CONFIG"

// Config is the tool configuration for binpress and binflate.
type Config struct {
	// Compression is the payload codec name ("lz4", "zstd"). Empty
	// means the capability-detected default.
	Compression string `yaml:"compression"`

	// Checksum is the digest algorithm name ("sha512", "blake3").
	// Empty means sha512.
	Checksum string `yaml:"checksum"`

	// CacheRoot overrides cache root resolution for commands that
	// touch the cache. Empty means resolve from the environment.
	// Supports ${VAR} and ${VAR:-default} expansion.
	CacheRoot string `yaml:"cache_root"`

	// VerifyCache makes stubs recompute checksums before trusting a
	// cache hit.
	VerifyCache bool `yaml:"verify_cache"`

	// StubDir is where prebuilt stub binaries are installed. Empty
	// means PATH lookup only.
	StubDir string `yaml:"stub_dir"`

	// Stub is the stub binary name to pack behind. Default: binstub.
	Stub string `yaml:"stub"`
}

// Default returns the default configuration, used as the base before
// a config file is merged over it. All commands work with the
// defaults alone; the file is optional.
func Default() *Config {
	return &Config{
		Compression: "",
		Checksum:    checksum.SHA512.String(),
		Stub:        "binstub",
	}
}

// Load loads configuration from the BINPRESS_CONFIG environment
// variable, or returns the defaults when it is unset.
func Load() (*Config, error) {
	configPath := os.Getenv(ConfigEnv)
	if configPath == "" {
		return Default(), nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merged over
// the defaults. The file is the single source of truth; the only
// transformation applied is ${VAR} path expansion for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.CacheRoot = expandVars(c.CacheRoot, vars)
	c.StubDir = expandVars(c.StubDir, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Compression != "" {
		if _, err := press.ParseAlgorithm(c.Compression); err != nil {
			errs = append(errs, fmt.Errorf("compression: %w", err))
		}
	}
	if c.Checksum != "" {
		if _, err := checksum.Parse(c.Checksum); err != nil {
			errs = append(errs, fmt.Errorf("checksum: %w", err))
		}
	}
	if c.Stub == "" {
		errs = append(errs, fmt.Errorf("stub name must not be empty"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// CompressionAlgorithm resolves the configured codec, falling back to
// the capability-detected default.
func (c *Config) CompressionAlgorithm() press.Algorithm {
	if c.Compression == "" {
		return press.DetectCapabilities().DefaultAlgorithm()
	}
	algorithm, err := press.ParseAlgorithm(c.Compression)
	if err != nil {
		return press.DetectCapabilities().DefaultAlgorithm()
	}
	return algorithm
}

// ChecksumAlgorithm resolves the configured digest algorithm.
func (c *Config) ChecksumAlgorithm() checksum.Algorithm {
	algorithm, err := checksum.Parse(c.Checksum)
	if err != nil {
		return checksum.SHA512
	}
	return algorithm
}

// StubPath returns the full path to the stub binary: StubDir when
// configured and present, PATH lookup otherwise. This gives hermetic
// stub resolution when StubDir is set.
func (c *Config) StubPath() (string, error) {
	if c.StubDir != "" {
		stubPath := filepath.Join(c.StubDir, c.Stub)
		if _, err := os.Stat(stubPath); err == nil {
			return stubPath, nil
		}
	}

	path, err := exec.LookPath(c.Stub)
	if err != nil {
		if c.StubDir != "" {
			return "", fmt.Errorf("%s not found in %s or PATH", c.Stub, c.StubDir)
		}
		return "", fmt.Errorf("%s not found in PATH", c.Stub)
	}
	return path, nil
}
