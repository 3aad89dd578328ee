// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package flash implements "nex flash": dd for disk images, with a
// progress bar, sanity checks, and verification.
package flash

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/blake3"
	"golang.org/x/sys/unix"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/progress"
	"github.com/nexutils/nex/lib/prompt"
	"github.com/nexutils/nex/lib/sizeparse"
)

type flashParams struct {
	ZeroFirst bool   `flag:"zero-first,Z" desc:"zero the whole device before writing"`
	Buffer    bool   `flag:"buffer,B" desc:"preload the image into RAM first (skipped when it does not fit)"`
	Verify    bool   `flag:"verify,V" desc:"re-read the target and compare checksums"`
	BlockSize string `flag:"block-size" desc:"I/O block size" default:"4M"`
	Yes       bool   `flag:"yes,y" desc:"skip all confirmation prompts"`
}

// Command returns the "flash" command.
func Command() *cli.Command {
	var params flashParams
	return &cli.Command{
		Name:    "flash",
		Summary: "Write a disk image to a device",
		Description: `Write an image file to a block device, with the guard rails dd never
had: the target must already exist (a typo in a device name will not
quietly become a regular file), writing to a block device requires
typing its name back, and the image must fit.

--verify re-reads the target after flushing and compares BLAKE3
digests, which is the only way to catch a counterfeit SD card.
--zero-first wipes the device before writing; some flash media is
faster afterwards. --buffer reads the image into RAM up front, which
helps when source and target share one slow USB bus.

--yes skips every prompt and makes this exactly as dangerous as dd.`,
		Usage: "nex flash <image> <target> [flags]",
		Examples: []cli.Example{
			{
				Description: "Flash an installer and make sure it really landed",
				Command:     "sudo nex flash ubuntu.iso /dev/sda --verify",
			},
			{
				Description: "A worn SD card, zeroed first and fed from RAM",
				Command:     "sudo nex flash recovery.img /dev/mmcblk0 -Z -B",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 2 {
				return cli.Validation("expected an image and a target, in that order")
			}
			return runFlash(ctx, params, args[0], args[1], prompt.New(), logger)
		},
	}
}

func runFlash(ctx context.Context, params flashParams, sourcePath, targetPath string, prompter *prompt.Prompter, logger *slog.Logger) error {
	blockSize, err := sizeparse.Bytes(params.BlockSize)
	if err != nil {
		return cli.Validation("bad --block-size: %v", err)
	}
	if blockSize <= 0 {
		return cli.Validation("--block-size must be positive")
	}

	sourceInfo, err := os.Stat(sourcePath)
	if err != nil {
		return cli.NotFound("%v", err)
	}
	if sourceInfo.IsDir() {
		return cli.Validation("%s is a directory", sourcePath)
	}
	sourceSize := sourceInfo.Size()
	if sourceSize == 0 {
		return cli.Validation("%s is empty", sourcePath)
	}

	targetInfo, err := os.Stat(targetPath)
	if err != nil {
		return cli.NotFound("target %s does not exist (flashing never creates files, so a mistyped device name stays a mistake)", targetPath)
	}
	if targetInfo.IsDir() {
		return cli.Validation("%s is a directory", targetPath)
	}
	blockDev := isBlockDevice(targetInfo)
	if params.ZeroFirst && !blockDev {
		return cli.Validation("--zero-first only makes sense on a block device")
	}

	if !params.Yes {
		if blockDev {
			phrase := filepath.Base(targetPath)
			label := fmt.Sprintf("About to overwrite %s with %s. Everything on the device will be destroyed.",
				targetPath, sourcePath)
			if err := prompter.Typed(label, phrase); err != nil {
				return cli.Validation("%v", err)
			}
		} else {
			ok, err := prompter.Confirm(fmt.Sprintf("%s is a regular file, not a device. Overwrite it", targetPath), false)
			if err != nil {
				return cli.Validation("%v (or pass --yes)", err)
			}
			if !ok {
				return cli.Conflict("refusing to overwrite %s", targetPath)
			}
		}
	}

	target, err := os.OpenFile(targetPath, os.O_RDWR, 0)
	if err != nil {
		return cli.Forbidden("opening %s: %v (writing to a device usually needs sudo)", targetPath, err)
	}
	defer target.Close()

	// Size the target. A too-small device fails here instead of at the
	// 98% mark.
	targetSize := int64(-1)
	if blockDev {
		if targetSize, err = deviceSize(target); err != nil {
			logger.Warn("could not determine device size", "error", err)
			targetSize = -1
		} else if targetSize < sourceSize {
			return cli.Validation("%s (%s) does not fit on %s (%s)",
				sourcePath, humanize.IBytes(uint64(sourceSize)),
				targetPath, humanize.IBytes(uint64(targetSize)))
		}
	}

	useBuffer := params.Buffer
	if useBuffer && !fitsInMemory(sourceSize) {
		logger.Warn("image does not comfortably fit in memory, streaming from disk instead",
			"size", humanize.IBytes(uint64(sourceSize)))
		useBuffer = false
	}
	var sourceFile *os.File
	if !useBuffer {
		if sourceFile, err = os.Open(sourcePath); err != nil {
			return cli.Forbidden("opening %s: %v", sourcePath, err)
		}
		defer sourceFile.Close()
	}

	var hasher *blake3.Hasher
	if params.Verify {
		hasher = blake3.New()
	}

	sourceName := filepath.Base(sourcePath)
	tracker := progress.NewTracker(logger)
	start := time.Now()
	var written int64
	var writeElapsed time.Duration

	err = tracker.Run(ctx, func(runCtx context.Context) error {
		if params.ZeroFirst {
			task := tracker.AddBytes("zeroing "+filepath.Base(targetPath), targetSize)
			if _, err := zeroDevice(runCtx, target, targetSize, blockSize, task); err != nil {
				task.Fail(err)
				return err
			}
			task.Done()
		}

		var source io.Reader = sourceFile
		if useBuffer {
			task := tracker.AddBytes("buffering "+sourceName, sourceSize)
			data, err := bufferSource(runCtx, sourcePath, sourceSize, blockSize, task)
			if err != nil {
				task.Fail(err)
				return err
			}
			task.Done()
			source = bytes.NewReader(data)
		}

		task := tracker.AddBytes("writing "+sourceName, sourceSize)
		writeStart := time.Now()
		var err error
		written, err = writeImage(runCtx, source, target, blockSize, hasher, task)
		writeElapsed = time.Since(writeStart)
		if err != nil {
			task.Fail(err)
			return err
		}
		task.Done()

		// A regular-file target keeps the tail of whatever was there
		// before; a device has no notion of truncation.
		if !blockDev {
			if err := target.Truncate(written); err != nil {
				return cli.Internal("truncating %s: %v", targetPath, err)
			}
		}

		syncTask := tracker.Add("flushing to disk", progress.UnknownTotal)
		if err := target.Sync(); err != nil {
			syncTask.Fail(err)
			return cli.Internal("flushing %s: %v (the write may not have reached the device)", targetPath, err)
		}
		unix.Sync()
		syncTask.Done()

		if params.Verify {
			task := tracker.AddBytes("verifying "+filepath.Base(targetPath), written)
			if err := verifyTarget(runCtx, target, written, blockSize, hasher.Sum(nil), task); err != nil {
				task.Fail(err)
				return err
			}
			task.Done()
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return cli.Transient("interrupted; %s holds an incomplete image", targetPath)
		}
		return err
	}

	rate := ""
	if seconds := writeElapsed.Seconds(); seconds > 0 {
		rate = fmt.Sprintf(", wrote at %s/s", humanize.IBytes(uint64(float64(written)/seconds)))
	}
	fmt.Printf("flashed %s (%s) to %s in %s%s\n",
		sourceName, humanize.IBytes(uint64(written)), targetPath,
		time.Since(start).Round(10*time.Millisecond), rate)
	if params.Verify {
		fmt.Println("verified: the target reads back identical to the image")
	}
	return nil
}
