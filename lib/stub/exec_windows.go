// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package stub

import (
	"errors"
	"os"
	"os/exec"
)

// platformExec approximates execve on Windows, which has no process
// replacement: the target runs as a child with inherited stdio and
// environment, and the stub exits with the child's exact exit code so
// callers cannot tell the difference.
func platformExec(binaryPath string, argv []string, environ []string) error {
	command := exec.Command(binaryPath)
	if len(argv) > 1 {
		command.Args = append([]string{binaryPath}, argv[1:]...)
	}
	command.Env = environ
	command.Stdin = os.Stdin
	command.Stdout = os.Stdout
	command.Stderr = os.Stderr

	err := command.Run()
	if err == nil {
		os.Exit(0)
	}
	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		os.Exit(exitError.ExitCode())
	}
	return err
}
