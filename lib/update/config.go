// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

// Package update implements the stub's background update check: an
// optional, best-effort probe against a configured endpoint that can
// tell users a newer build of the packed application exists. The
// check runs on borrowed time between cache resolution and exec, and
// every failure is silent; a stub must never be slower or louder
// because an update server is down.
package update

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/jsonc"
)

// ConfigEnv overrides the update configuration file location.
const ConfigEnv = "BINPRESS_UPDATE_CONFIG"

const configFileName = "update-config.jsonc"

// Duration is a time.Duration that unmarshals from Go duration
// strings ("24h", "1500ms") in JSONC config files.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("duration must be a string like \"24h\": %w", err)
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the update-check configuration. The file format is JSONC:
// JSON with // comments, /* block comments */, and trailing commas.
type Config struct {
	// Enabled turns the check on. A missing config file means
	// disabled.
	Enabled bool `json:"enabled"`

	// Endpoint is the HTTP(S) URL probed for version information.
	Endpoint string `json:"endpoint"`

	// Interval is the minimum time between probes per cache entry.
	Interval Duration `json:"interval"`

	// Timeout bounds the whole probe.
	Timeout Duration `json:"timeout"`
}

// Default durations applied when the config omits them.
const (
	DefaultInterval = 24 * time.Hour
	DefaultTimeout  = 2 * time.Second
)

// ConfigPath returns where the configuration is looked for:
// BINPRESS_UPDATE_CONFIG, then BINPRESS_HOME, then ~/.binpress.
func ConfigPath() string {
	if path := os.Getenv(ConfigEnv); path != "" {
		return path
	}
	if home := os.Getenv("BINPRESS_HOME"); home != "" {
		return filepath.Join(home, configFileName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".binpress", configFileName)
}

// LoadConfig reads and validates the configuration file at path. A
// missing file is reported as os.ErrNotExist; callers treat it as
// "checks disabled".
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Interval: Duration(DefaultInterval),
		Timeout:  Duration(DefaultTimeout),
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), config); err != nil {
		return nil, fmt.Errorf("parsing update config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("update config %s: %w", path, err)
	}
	return config, nil
}

// Validate checks internal consistency. Only enabled configs need an
// endpoint.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	parsed, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("endpoint %q must be http or https", c.Endpoint)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", time.Duration(c.Interval))
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", time.Duration(c.Timeout))
	}
	return nil
}
