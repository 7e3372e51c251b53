// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

package exitcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/binpress-io/binpress/lib/binfmt"
	"github.com/binpress-io/binpress/lib/container"
	"github.com/binpress-io/binpress/lib/dlxcache"
	"github.com/binpress-io/binpress/lib/press"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, OK},
		{errors.New("something else entirely"), Generic},
		{binfmt.ErrUnrecognizedFormat, UnrecognizedFormat},
		{binfmt.ErrCorruptContainer, CorruptContainer},
		{container.ErrCorruptContainer, CorruptContainer},
		{container.ErrTrailerNotFound, TrailerNotFound},
		{container.ErrChecksumMismatch, ChecksumMismatch},
		{container.ErrAlreadyCompressed, AlreadyCompressed},
		{press.ErrCorruptPayload, CorruptPayload},
		{press.ErrSizeLimit, SizeLimit},
		{dlxcache.ErrCacheWrite, CacheWrite},
	}

	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Errorf("Classify(%v) = %d, want %d", c.err, got, c.want)
		}
	}

	// Wrapped sentinels classify the same as bare ones.
	wrapped := fmt.Errorf("extracting foo: %w", press.ErrCorruptPayload)
	if got := Classify(wrapped); got != CorruptPayload {
		t.Errorf("Classify(wrapped) = %d, want %d", got, CorruptPayload)
	}
}

func TestWrapExposesExitCode(t *testing.T) {
	err := Wrap(fmt.Errorf("packing: %w", container.ErrAlreadyCompressed))

	coder, ok := err.(interface{ ExitCode() int })
	if !ok {
		t.Fatal("wrapped error does not expose ExitCode")
	}
	if coder.ExitCode() != AlreadyCompressed {
		t.Errorf("ExitCode = %d, want %d", coder.ExitCode(), AlreadyCompressed)
	}
	if !errors.Is(err, container.ErrAlreadyCompressed) {
		t.Error("wrapping must preserve the sentinel chain")
	}

	if Wrap(nil) != nil {
		t.Error("Wrap(nil) must be nil")
	}
}
