// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

// binstub is the self-extracting stub. It is never invoked by users
// directly: binpress copies this binary and appends a trailer and a
// compressed payload behind its native image end. When the resulting
// container runs, this main locates the payload inside its own image,
// resolves the decompressed binary through the cache, and execs it.
//
// Everything interesting lives in lib/stub; this file only wires the
// defaults and maps failures to exit codes.
package main

import (
	"fmt"
	"os"

	"github.com/binpress-io/binpress/lib/exitcode"
	"github.com/binpress-io/binpress/lib/stub"
	"github.com/binpress-io/binpress/lib/update"
	"github.com/binpress-io/binpress/lib/version"
)

func main() {
	logger := stub.NewLogger()

	err := stub.Run(stub.Options{
		Logger: logger,
		UpdateCheck: func(entryDirectory, cacheKey string) {
			update.CheckInBackground(logger, entryDirectory, cacheKey, version.Short())
		},
	})

	// Run only returns on failure; success replaced this process.
	fmt.Fprintf(os.Stderr, "binstub: %v\n", err)
	os.Exit(exitcode.Classify(err))
}
