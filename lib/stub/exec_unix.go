// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package stub

import (
	"golang.org/x/sys/unix"
)

// platformExec replaces the current process image with the target
// binary via execve. The target inherits argv, environment, file
// descriptors, working directory, and PID. Only returns on failure.
func platformExec(binaryPath string, argv []string, environ []string) error {
	return unix.Exec(binaryPath, argv, environ)
}
