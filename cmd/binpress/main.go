// Copyright 2026 The Binpress Authors
// SPDX-License-Identifier: Apache-2.0

// binpress compresses an executable into a self-extracting container:
// a stub binary with the compressed original appended behind its
// native image end. The result runs exactly like the original, paying
// the decompression cost once per machine thanks to the shared cache.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/binpress-io/binpress/lib/checksum"
	"github.com/binpress-io/binpress/lib/config"
	"github.com/binpress-io/binpress/lib/container"
	"github.com/binpress-io/binpress/lib/exitcode"
	"github.com/binpress-io/binpress/lib/press"
	"github.com/binpress-io/binpress/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "binpress: %v\n", err)
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		os.Exit(exitcode.Generic)
	}
}

func run() error {
	var (
		outputPath    string
		stubPath      string
		algorithmName string
		checksumName  string
		configPath    string
	)

	flagSet := pflag.NewFlagSet("binpress", pflag.ContinueOnError)
	flagSet.StringVarP(&outputPath, "output", "o", "", "path of the self-extracting output (required)")
	flagSet.StringVar(&stubPath, "stub", "", "stub binary to pack behind (default: resolve binstub)")
	flagSet.StringVar(&algorithmName, "algorithm", "", "compression algorithm: lz4 or zstd (default: auto)")
	flagSet.StringVar(&checksumName, "checksum", "", "checksum algorithm: sha512 or blake3 (default: sha512)")
	flagSet.StringVar(&configPath, "config", "", "YAML config file (default: $BINPRESS_CONFIG)")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Println("binpress " + version.Info())
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
		return exitcode.UsageError(fmt.Errorf("expected exactly one input binary, got %d arguments", len(args)))
	}
	inputPath := args[0]
	if outputPath == "" {
		return exitcode.UsageError(fmt.Errorf("--output is required"))
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return exitcode.Wrap(err)
	}

	options := container.PackOptions{
		Compression: cfg.CompressionAlgorithm(),
		Checksum:    cfg.ChecksumAlgorithm(),
	}
	if algorithmName != "" {
		options.Compression, err = press.ParseAlgorithm(algorithmName)
		if err != nil {
			return exitcode.UsageError(err)
		}
	}
	if checksumName != "" {
		options.Checksum, err = checksum.Parse(checksumName)
		if err != nil {
			return exitcode.UsageError(err)
		}
	}

	if stubPath == "" {
		stubPath, err = cfg.StubPath()
		if err != nil {
			return exitcode.Wrap(fmt.Errorf("resolving stub: %w", err))
		}
	}

	result, err := container.Pack(stubPath, inputPath, outputPath, options)
	if err != nil {
		return exitcode.Wrap(err)
	}

	fmt.Printf("%s: %d bytes -> %d bytes (%.1f%% of original, %s, key %s)\n",
		outputPath,
		result.OriginalSize, result.ContainerSize,
		result.CompressionRatio*100, result.Algorithm, result.CacheKey)
	return nil
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Print(`binpress - pack an executable into a self-extracting container

Usage:
  binpress <input> -o <output> [flags]

Flags:
`)
	fmt.Print(flagSet.FlagUsages())
	fmt.Print(`
The output runs exactly like the input. On first run per machine it
decompresses into the binpress cache; later runs exec straight from
the cache. Use binflate to recover the original binary from a
container.
`)
}
