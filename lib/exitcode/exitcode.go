// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

// Package exitcode maps the error taxonomy shared by binpress,
// binflate, and the stub onto process exit codes. Scripts driving
// these tools branch on the codes, so the mapping is a contract.
package exitcode

import (
	"errors"

	"github.com/binpress-io/binpress/lib/binfmt"
	"github.com/binpress-io/binpress/lib/container"
	"github.com/binpress-io/binpress/lib/dlxcache"
	"github.com/binpress-io/binpress/lib/press"
)

const (
	OK                 = 0
	Generic            = 1
	Usage              = 2
	UnrecognizedFormat = 10
	CorruptContainer   = 11
	TrailerNotFound    = 12
	CorruptPayload     = 13
	SizeLimit          = 14
	ChecksumMismatch   = 15
	CacheWrite         = 16
	AlreadyCompressed  = 17
)

// Error pairs an error with its exit code. It satisfies the
// ExitCode() interface the command mains look for.
type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// ExitCode returns the process exit code for this error.
func (e *Error) ExitCode() int { return e.Code }

// UsageError builds an exit-2 error for malformed invocations.
func UsageError(err error) error {
	return &Error{Code: Usage, Err: err}
}

// Wrap classifies err by the sentinel it wraps and attaches the
// corresponding exit code. Unclassified errors exit 1.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: Classify(err), Err: err}
}

// Classify returns the exit code for an error without wrapping it.
func Classify(err error) int {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, binfmt.ErrUnrecognizedFormat):
		return UnrecognizedFormat
	case errors.Is(err, container.ErrTrailerNotFound):
		return TrailerNotFound
	case errors.Is(err, container.ErrAlreadyCompressed):
		return AlreadyCompressed
	case errors.Is(err, container.ErrChecksumMismatch):
		return ChecksumMismatch
	case errors.Is(err, container.ErrCorruptContainer), errors.Is(err, binfmt.ErrCorruptContainer):
		return CorruptContainer
	case errors.Is(err, press.ErrSizeLimit):
		return SizeLimit
	case errors.Is(err, press.ErrCorruptPayload):
		return CorruptPayload
	case errors.Is(err, dlxcache.ErrCacheWrite):
		return CacheWrite
	default:
		return Generic
	}
}
