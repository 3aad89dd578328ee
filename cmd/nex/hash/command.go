// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package hash implements "nex hash": every digest of a file in one
// read.
package hash

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"

	"golang.org/x/term"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/hasher"
	"github.com/nexutils/nex/lib/progress"
	"github.com/nexutils/nex/lib/prompt"
	"github.com/nexutils/nex/lib/sysinfo"
)

// defaultAlgorithms is the set used when no algorithm flags are given
// and nobody is there to ask.
var defaultAlgorithms = []string{"sha256", "sha512", "md5"}

type hashParams struct {
	cli.JSONOutput
	All       bool `flag:"all,a" desc:"compute every supported digest"`
	MD5       bool `flag:"md5" desc:"compute md5"`
	SHA1      bool `flag:"sha1" desc:"compute sha1"`
	SHA224    bool `flag:"sha224" desc:"compute sha224"`
	SHA256    bool `flag:"sha256" desc:"compute sha256"`
	SHA384    bool `flag:"sha384" desc:"compute sha384"`
	SHA512    bool `flag:"sha512" desc:"compute sha512"`
	BLAKE3    bool `flag:"blake3" desc:"compute blake3"`
	BlockSize int  `flag:"block-size" desc:"read chunk size in KiB" default:"1024"`
	NoPreload bool `flag:"no-preload" desc:"stream from disk even when the file fits in memory"`
}

// flagged returns the algorithms selected by flags, in canonical
// order.
func (params *hashParams) flagged() []string {
	byFlag := map[string]bool{
		"md5":    params.MD5,
		"sha1":   params.SHA1,
		"sha224": params.SHA224,
		"sha256": params.SHA256,
		"sha384": params.SHA384,
		"sha512": params.SHA512,
		"blake3": params.BLAKE3,
	}
	var names []string
	for _, name := range hasher.Algorithms() {
		if byFlag[name] {
			names = append(names, name)
		}
	}
	return names
}

type hashResult struct {
	File    string          `json:"file"`
	Digests []hasher.Digest `json:"digests"`
}

// Command returns the "hash" command.
func Command() *cli.Command {
	var params hashParams

	return &cli.Command{
		Name:    "hash",
		Summary: "Compute file digests, several at once",
		Description: `Compute cryptographic digests of a file, reading it exactly once no
matter how many algorithms are selected. Pass "-" to hash stdin.

With no algorithm flags, the default set is sha256, sha512, and md5;
on a terminal you are asked first. Regular files that fit in free
memory are preloaded so the disk is not hit once per pass — disable
with --no-preload when memory is tight.`,
		Usage: "nex hash <file|-> [flags]",
		Examples: []cli.Example{
			{
				Description: "Hash with the default algorithms",
				Command:     "nex hash ubuntu.iso",
			},
			{
				Description: "Every supported digest as JSON",
				Command:     "nex hash ubuntu.iso --all --json",
			},
			{
				Description: "Just blake3, from a pipe",
				Command:     "cat ubuntu.iso | nex hash - --blake3",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("expected exactly one file argument (or - for stdin)")
			}
			return runHash(ctx, params, args[0], logger)
		},
	}
}

func runHash(ctx context.Context, params hashParams, source string, logger *slog.Logger) error {
	names, err := chooseAlgorithms(&params, source)
	if err != nil {
		return err
	}
	if params.BlockSize <= 0 {
		return cli.Validation("--block-size must be positive")
	}

	reader, size, closer, err := openInput(source, params.NoPreload, logger)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	tracker := progress.NewTracker(logger)
	tasks := make(map[string]*progress.Task, len(names))
	for _, name := range names {
		tasks[name] = tracker.AddBytes(name, size)
	}

	var digests []hasher.Digest
	err = tracker.Run(ctx, func(ctx context.Context) error {
		var sumErr error
		digests, sumErr = hasher.Sum(ctx, reader, hasher.Request{
			Algorithms: names,
			BlockSize:  params.BlockSize * 1024,
			Progress: func(algorithm string, n int64) {
				tasks[algorithm].Add(n)
			},
		})
		if sumErr != nil {
			for _, task := range tasks {
				task.Fail(sumErr)
			}
			return sumErr
		}
		for _, task := range tasks {
			task.Done()
		}
		return nil
	})
	if err != nil {
		return cli.Internal("hashing %s: %w", source, err)
	}

	if done, err := params.EmitJSON(hashResult{File: source, Digests: digests}); done {
		return err
	}
	for _, digest := range digests {
		fmt.Printf("%s: %s\n", digest.Algorithm, digest.Hex)
	}
	return nil
}

// openInput opens the hash source and reports its size when known
// (progress.UnknownTotal otherwise). Regular files smaller than
// available memory are preloaded into RAM so multiple slow algorithms
// do not keep the disk busy; stdin and special files stream. The
// returned closer is nil when there is nothing to close.
func openInput(source string, noPreload bool, logger *slog.Logger) (io.Reader, int64, io.Closer, error) {
	if source == "-" {
		return os.Stdin, progress.UnknownTotal, nil, nil
	}

	file, err := os.Open(source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, nil, cli.NotFound("%s does not exist", source)
		}
		return nil, 0, nil, cli.Internal("opening %s: %w", source, err)
	}

	size := progress.UnknownTotal
	if info, statErr := file.Stat(); statErr == nil && info.Mode().IsRegular() {
		size = info.Size()
	}

	if size >= 0 && !noPreload {
		if available := sysinfo.AvailableMemory(); available > 0 && uint64(size) < available {
			data, readErr := io.ReadAll(file)
			file.Close()
			if readErr != nil {
				return nil, 0, nil, cli.Internal("preloading %s: %w", source, readErr)
			}
			logger.Debug("preloaded input", "file", source, "bytes", len(data))
			return bytes.NewReader(data), size, nil, nil
		}
	}
	return file, size, file, nil
}

// chooseAlgorithms resolves the algorithm set: flags win; otherwise on
// a terminal the user is asked, and anywhere else the default set is
// used. Hashing stdin never prompts — the prompt would race the data.
func chooseAlgorithms(params *hashParams, source string) ([]string, error) {
	if params.All {
		return hasher.Algorithms(), nil
	}
	if names := params.flagged(); len(names) > 0 {
		return names, nil
	}

	if source != "-" && term.IsTerminal(int(os.Stdin.Fd())) {
		answer, err := prompt.New().Line("algorithms (space-separated)", strings.Join(defaultAlgorithms, " "))
		if err != nil {
			return nil, cli.Validation("reading algorithm choice: %v", err)
		}
		return parseAlgorithmNames(strings.Fields(answer))
	}
	return defaultAlgorithms, nil
}

// parseAlgorithmNames validates user-typed algorithm names and returns
// them deduplicated in canonical order.
func parseAlgorithmNames(fields []string) ([]string, error) {
	supported := hasher.Algorithms()
	chosen := make(map[string]bool, len(fields))
	for _, field := range fields {
		name := strings.ToLower(field)
		if !slices.Contains(supported, name) {
			return nil, cli.Validation("unknown algorithm %q (supported: %s)", field, strings.Join(supported, ", "))
		}
		chosen[name] = true
	}
	var names []string
	for _, name := range supported {
		if chosen[name] {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, cli.Validation("no algorithms chosen")
	}
	return names, nil
}
