// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package filegen implements "nex filegen": dd for the common case of
// "give me a file of exactly this size, now".
package filegen

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/progress"
	"github.com/nexutils/nex/lib/sizeparse"
)

// minBlockSize floors the write size: below 4 KiB the syscall overhead
// dominates the measurement.
const minBlockSize = 4 << 10

type filegenParams struct {
	Size      string `flag:"size,s" desc:"file size, e.g. 512M or 1.5G (1024-based)"`
	BlockSize string `flag:"block-size" desc:"write block size (default: the filesystem's reported block size)"`
	Source    string `flag:"source" desc:"data source: zero or random" default:"zero"`
	Sync      bool   `flag:"sync" desc:"fsync after every block"`
}

// Command returns the "filegen" command.
func Command() *cli.Command {
	var params filegenParams
	return &cli.Command{
		Name:    "filegen",
		Summary: "Generate a file of an exact size",
		Description: `Write a file of exactly --size bytes, from zeros or random data,
with a live progress bar. The block size defaults to whatever the
target filesystem reports as its preferred I/O size.

An existing output file is truncated without asking, like dd.

Without --sync the reported rate mostly measures the page cache;
with it, every block is fsynced and the rate reflects the actual
device. Random data defeats filesystems that compress or
deduplicate, which makes it the honest choice for benchmarks.`,
		Usage: "nex filegen <output> --size <size> [flags]",
		Examples: []cli.Example{
			{
				Description: "A 2 GiB zero file for a loopback filesystem",
				Command:     "nex filegen /tmp/disk.img --size 2G",
			},
			{
				Description: "Benchmark sustained writes on this disk",
				Command:     "nex filegen ./bench.bin --size 4G --source random --sync",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("expected exactly one output path")
			}
			return runFilegen(ctx, params, args[0], logger)
		},
	}
}

func runFilegen(ctx context.Context, params filegenParams, output string, logger *slog.Logger) error {
	size, err := sizeparse.Bytes(params.Size)
	if err != nil {
		return cli.Validation("%v", err)
	}
	if size <= 0 {
		return cli.Validation("--size must be positive")
	}

	var random bool
	switch params.Source {
	case "zero", "":
	case "random":
		random = true
	default:
		return cli.Validation("unknown source %q (expected zero or random)", params.Source)
	}

	blockSize := int64(0)
	if params.BlockSize != "" {
		if blockSize, err = sizeparse.Bytes(params.BlockSize); err != nil {
			return cli.Validation("%v", err)
		}
		if blockSize <= 0 {
			return cli.Validation("--block-size must be positive")
		}
	} else {
		blockSize = detectBlockSize(output)
		logger.Debug("using filesystem block size", "bytes", blockSize)
	}
	if blockSize > size {
		blockSize = size
	}

	file, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return cli.Internal("creating %s: %v", output, err)
	}
	defer file.Close()

	tracker := progress.NewTracker(logger)
	task := tracker.AddBytes(filepath.Base(output), size)

	start := time.Now()
	var written int64
	err = tracker.Run(ctx, func(ctx context.Context) error {
		var genErr error
		written, genErr = generate(ctx, file, size, blockSize, random, params.Sync, task)
		if genErr != nil {
			task.Fail(genErr)
			return genErr
		}
		task.Done()
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return cli.Transient("interrupted after %s", humanize.IBytes(uint64(written)))
		}
		return err
	}
	if err := file.Close(); err != nil {
		return cli.Internal("closing %s: %v", output, err)
	}

	elapsed := time.Since(start)
	rate := ""
	if seconds := elapsed.Seconds(); seconds > 0 {
		rate = fmt.Sprintf(", %s/s", humanize.IBytes(uint64(float64(written)/seconds)))
	}
	fmt.Printf("wrote %s to %s in %s%s\n",
		humanize.IBytes(uint64(written)), output, elapsed.Round(10*time.Millisecond), rate)
	return nil
}

// detectBlockSize asks the filesystem under path for its preferred
// I/O size. Statting the parent covers the usual case where the
// output does not exist yet.
func detectBlockSize(path string) int64 {
	probe := path
	if _, err := os.Lstat(probe); err != nil {
		probe = filepath.Dir(path)
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(probe, &stat); err != nil {
		return minBlockSize
	}
	blockSize := int64(stat.Bsize)
	if blockSize < minBlockSize {
		return minBlockSize
	}
	return blockSize
}

// generate writes size bytes in blockSize chunks and returns how many
// bytes actually landed.
func generate(ctx context.Context, file *os.File, size, blockSize int64, random, sync bool, task *progress.Task) (int64, error) {
	block := make([]byte, blockSize)
	var written int64
	for written < size {
		if ctx.Err() != nil {
			return written, ctx.Err()
		}
		n := blockSize
		if remaining := size - written; remaining < n {
			n = remaining
		}
		if random {
			if _, err := rand.Read(block[:n]); err != nil {
				return written, cli.Internal("reading random data: %v", err)
			}
		}
		wrote, err := file.Write(block[:n])
		written += int64(wrote)
		if task != nil {
			task.Add(int64(wrote))
		}
		if err != nil {
			if errors.Is(err, unix.ENOSPC) {
				return written, cli.Internal("disk full after %s", humanize.IBytes(uint64(written)))
			}
			return written, cli.Internal("writing %s: %v", file.Name(), err)
		}
		if sync {
			if err := file.Sync(); err != nil {
				return written, cli.Internal("syncing %s: %v", file.Name(), err)
			}
		}
	}
	return written, nil
}
