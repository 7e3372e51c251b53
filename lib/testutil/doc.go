// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for binpress packages.
//
// [MinimalELF], [MinimalMachO], and [MinimalPE] synthesize structurally
// valid executable images whose header tables account for every byte,
// so the computed native end equals the image length. Container and
// stub tests build real containers around them without shipping binary
// fixtures in the repository.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no binpress-internal dependencies.
package testutil
