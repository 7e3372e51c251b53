// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"
)

// Response is what the update endpoint returns.
type Response struct {
	LatestVersion string `json:"latest_version"`
	URL           string `json:"url,omitempty"`
}

// maxResponseSize bounds the endpoint response read. A version probe
// answer is a few hundred bytes; anything larger is not ours.
const maxResponseSize = 64 * 1024

// ErrCheckSkipped reports that the probe did not run: checks are
// disabled, or the interval since the last probe has not elapsed.
var ErrCheckSkipped = errors.New("update check skipped")

// Check performs one synchronous update probe for a cache entry and
// persists the outcome to the entry's state file. When the endpoint
// reports a version different from current, a notice is logged at
// warn level, rate-limited by the configured interval.
func Check(ctx context.Context, logger *slog.Logger, config *Config, entryDirectory, cacheKey, currentVersion string) error {
	if config == nil || !config.Enabled {
		return fmt.Errorf("%w: disabled", ErrCheckSkipped)
	}

	now := time.Now().UnixMilli()
	state := LoadState(entryDirectory)
	if state.LastCheck != 0 && now-state.LastCheck < time.Duration(config.Interval).Milliseconds() {
		return fmt.Errorf("%w: checked %s ago", ErrCheckSkipped,
			time.Duration(now-state.LastCheck)*time.Millisecond)
	}

	response, err := probe(ctx, config.Endpoint, cacheKey, currentVersion)
	if err != nil {
		return err
	}

	state.CacheKey = cacheKey
	state.LastCheck = now
	state.LatestVersion = response.LatestVersion

	if response.LatestVersion != "" && response.LatestVersion != currentVersion &&
		now-state.LastNotification >= time.Duration(config.Interval).Milliseconds() {
		state.LastNotification = now
		logger.Warn("a newer version of this application is available",
			"current", currentVersion,
			"latest", response.LatestVersion,
			"url", response.URL)
	}

	return SaveState(entryDirectory, state)
}

// probe queries the endpoint for the latest version of the binary
// identified by cacheKey.
func probe(ctx context.Context, endpoint, cacheKey, currentVersion string) (*Response, error) {
	query := url.Values{}
	query.Set("key", cacheKey)
	query.Set("version", currentVersion)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building update request: %w", err)
	}

	httpResponse, err := http.DefaultClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("querying update endpoint: %w", err)
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("update endpoint returned %s", httpResponse.Status)
	}

	body, err := io.ReadAll(io.LimitReader(httpResponse.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading update response: %w", err)
	}

	var response Response
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("parsing update response: %w", err)
	}
	return &response, nil
}

// CheckInBackground launches a detached, time-bounded probe for a
// cache entry. It loads the configuration itself and swallows every
// failure; callers fire it and proceed straight to exec. Intended as
// the stub's UpdateCheck hook.
func CheckInBackground(logger *slog.Logger, entryDirectory, cacheKey, currentVersion string) {
	go func() {
		config, err := LoadConfig(ConfigPath())
		if err != nil {
			if !os.IsNotExist(err) {
				logger.Debug("update config unusable", "error", err)
			}
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(config.Timeout))
		defer cancel()

		if err := Check(ctx, logger, config, entryDirectory, cacheKey, currentVersion); err != nil &&
			!errors.Is(err, ErrCheckSkipped) {
			logger.Debug("update check failed", "error", err)
		}
	}()
}
