// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

// binflate recovers the original executable from a self-extracting
// container without running it, and inspects container metadata. The
// recovery path never touches the cache: it is the manual escape
// hatch when a stub cannot or should not run.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/binpress-io/binpress/lib/checksum"
	"github.com/binpress-io/binpress/lib/container"
	"github.com/binpress-io/binpress/lib/exitcode"
	"github.com/binpress-io/binpress/lib/platform"
	"github.com/binpress-io/binpress/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "binflate: %v\n", err)
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		os.Exit(exitcode.Generic)
	}
}

func run() error {
	var (
		outputPath string
		info       bool
	)

	flagSet := pflag.NewFlagSet("binflate", pflag.ContinueOnError)
	flagSet.StringVarP(&outputPath, "output", "o", "", "where to write the recovered binary")
	flagSet.BoolVar(&info, "info", false, "print container metadata without extracting")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Println("binflate " + version.Info())
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return exitcode.UsageError(err)
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	args := flagSet.Args()
	if len(args) != 1 {
		return exitcode.UsageError(fmt.Errorf("expected exactly one container, got %d arguments", len(args)))
	}
	containerPath := args[0]

	if info {
		trailer, err := container.Inspect(containerPath)
		if err != nil {
			return exitcode.Wrap(err)
		}
		printTrailer(containerPath, trailer)
		return nil
	}

	if outputPath == "" {
		return exitcode.UsageError(fmt.Errorf("--output is required (or use --info to inspect)"))
	}

	result, err := container.Extract(containerPath, outputPath)
	if err != nil {
		return exitcode.Wrap(err)
	}

	fmt.Printf("%s: recovered %d bytes, %s verified\n",
		outputPath, result.OriginalSize, result.Trailer.Checksum)
	return nil
}

func printTrailer(containerPath string, t *container.Trailer) {
	fmt.Printf("container:          %s\n", containerPath)
	fmt.Printf("format version:     %d\n", t.FormatVersion)
	fmt.Printf("compression:        %s\n", t.Compression)
	fmt.Printf("compressed size:    %d\n", t.CompressedSize)
	fmt.Printf("uncompressed size:  %d\n", t.UncompressedSize)
	fmt.Printf("ratio:              %.1f%%\n", float64(t.CompressedSize)/float64(t.UncompressedSize)*100)
	fmt.Printf("cache key:          %s\n", t.CacheKey)
	fmt.Printf("platform:           %s/%s", t.Target.OS, t.Target.Arch)
	if t.Target.OS == platform.Linux {
		fmt.Printf(" (%s)", t.Target.Libc)
	}
	fmt.Println()
	fmt.Printf("checksum:           %s\n", checksum.Format(t.OriginalChecksum, t.Checksum))
	fmt.Printf("payload offset:     %d\n", t.PayloadOffset)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Print(`binflate - recover or inspect a self-extracting container

Usage:
  binflate <container> -o <path>   recover the original binary
  binflate <container> --info      print container metadata

Flags:
`)
	fmt.Print(flagSet.FlagUsages())
}
