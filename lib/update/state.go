// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

package update

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/binpress-io/binpress/lib/codec"
)

// StateFileName is the per-cache-entry check state, CBOR encoded,
// living next to the cached binary and its metadata sidecar.
const StateFileName = ".update-state.cbor"

// State records when a cache entry was last probed and what came
// back. Internal to binpress, hence cbor tags.
type State struct {
	CacheKey string `cbor:"cache_key"`

	// LastCheck and LastNotification are milliseconds since the Unix
	// epoch.
	LastCheck        int64 `cbor:"last_check"`
	LastNotification int64 `cbor:"last_notification,omitempty"`

	// LatestVersion is the newest version the endpoint has reported.
	LatestVersion string `cbor:"latest_version,omitempty"`
}

// LoadState reads the check state of a cache entry. A missing or
// unreadable file yields a fresh zero state, never an error: the
// worst outcome is an extra probe.
func LoadState(entryDirectory string) *State {
	data, err := os.ReadFile(filepath.Join(entryDirectory, StateFileName))
	if err != nil {
		return &State{}
	}
	var state State
	if err := codec.Unmarshal(data, &state); err != nil {
		return &State{}
	}
	return &state
}

// SaveState writes the check state atomically into the entry
// directory.
func SaveState(entryDirectory string, state *State) error {
	data, err := codec.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding update state: %w", err)
	}

	tmpFile, err := os.CreateTemp(entryDirectory, ".update-state-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpPath := tmpFile.Name()
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing update state: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing update state: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(entryDirectory, StateFileName)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("installing update state: %w", err)
	}
	return nil
}
