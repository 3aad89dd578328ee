// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package ruin implements "nex ruin": deliberate file corruption for
// glitch-art effects on media files.
package ruin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/progress"
	"github.com/nexutils/nex/lib/prompt"
)

// Damage chunk bounds per pass. Big enough to be visible in a video
// frame, small enough that a single pass rarely kills the container.
const (
	minChunk = 64
	maxChunk = 2048
)

type ruinParams struct {
	Passes   int  `flag:"passes,p" desc:"number of corruption passes" default:"1"`
	Boundary int  `flag:"boundary" desc:"percent of the file's start and end to leave untouched" default:"10"`
	InPlace  bool `flag:"in-place" desc:"corrupt the original file instead of writing a copy"`
}

// Command returns the "ruin" command.
func Command() *cli.Command {
	var params ruinParams
	return &cli.Command{
		Name:    "ruin",
		Summary: "Corrupt a file on purpose",
		Description: `Overwrite random stretches of a file with random bytes. Useless for
anything serious, excellent for glitching video and images.

The safety boundary leaves the first and last --boundary percent of
the file untouched, which usually keeps headers and indexes intact
so players will still open the result. Each pass damages one random
64-2048 byte stretch.

By default the damage goes to a copy named CORRUPTED-<hex>-<name>
next to the original. --in-place corrupts the original itself and
asks for a typed confirmation first.`,
		Usage: "nex ruin <file> [flags]",
		Examples: []cli.Example{
			{
				Description: "Glitch a video, lightly",
				Command:     "nex ruin clip.mp4 --passes 20",
			},
			{
				Description: "Heavier damage, reaching closer to the ends",
				Command:     "nex ruin clip.mp4 --passes 200 --boundary 3",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("expected exactly one file")
			}
			return runRuin(ctx, params, args[0], prompt.New(), logger)
		},
	}
}

func runRuin(ctx context.Context, params ruinParams, target string, prompter *prompt.Prompter, logger *slog.Logger) error {
	if params.Passes < 1 {
		return cli.Validation("--passes must be at least 1")
	}
	if params.Boundary < 0 || params.Boundary >= 50 {
		return cli.Validation("--boundary must be between 0 and 49 percent")
	}

	info, err := os.Stat(target)
	if err != nil {
		return cli.NotFound("%v", err)
	}
	if info.IsDir() {
		return cli.Validation("%s is a directory", target)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return cli.Internal("reading %s: %v", target, err)
	}
	if len(data) == 0 {
		return cli.Validation("%s is empty, nothing to ruin", target)
	}

	boundStart, boundEnd := bounds(int64(len(data)), params.Boundary)
	if boundEnd <= boundStart {
		return cli.Validation("the safety boundary leaves nothing to corrupt (file is %s)",
			humanize.IBytes(uint64(len(data))))
	}

	name := filepath.Base(target)
	output := target
	if params.InPlace {
		err := prompter.Typed(
			fmt.Sprintf("This corrupts %s in place. There is no undo.", name), name)
		if err != nil {
			return cli.Validation("%v (drop --in-place to write a copy instead)", err)
		}
	} else {
		output = corruptedName(target)
	}

	tracker := progress.NewTracker(logger)
	task := tracker.Add("corrupting", int64(params.Passes))

	var damaged int64
	err = tracker.Run(ctx, func(ctx context.Context) error {
		for pass := 0; pass < params.Passes; pass++ {
			if err := ctx.Err(); err != nil {
				task.Fail(err)
				return err
			}
			n, err := damage(data, boundStart, boundEnd)
			if err != nil {
				task.Fail(err)
				return err
			}
			damaged += n
			task.Add(1)
		}
		task.Done()
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return cli.Transient("interrupted, nothing written")
		}
		return err
	}

	if err := writeResult(output, data, info.Mode(), params.InPlace); err != nil {
		return err
	}
	fmt.Printf("ruined %s of %s across %d %s -> %s\n",
		humanize.IBytes(uint64(damaged)), humanize.IBytes(uint64(len(data))),
		params.Passes, plural(params.Passes, "pass", "passes"), output)
	return nil
}

// bounds returns the half-open [start, end) window the damage may
// touch, leaving boundary percent untouched at each end.
func bounds(size int64, boundary int) (int64, int64) {
	margin := size * int64(boundary) / 100
	return margin, size - margin
}

// damage overwrites one random stretch inside [boundStart, boundEnd)
// with random bytes and reports how many bytes it wrote. The chunk is
// clamped so it never spills past the tail boundary.
func damage(data []byte, boundStart, boundEnd int64) (int64, error) {
	offset := boundStart + mathrand.Int63n(boundEnd-boundStart)
	length := int64(minChunk) + mathrand.Int63n(maxChunk-minChunk+1)
	if avail := boundEnd - offset; length > avail {
		length = avail
	}
	if _, err := rand.Read(data[offset : offset+length]); err != nil {
		return 0, cli.Internal("reading random data: %v", err)
	}
	return length, nil
}

// corruptedName builds the output path for copy mode: a recognizable
// prefix plus a short random tag, next to the original.
func corruptedName(target string) string {
	tag := make([]byte, 3)
	rand.Read(tag)
	return filepath.Join(filepath.Dir(target),
		fmt.Sprintf("CORRUPTED-%s-%s", hex.EncodeToString(tag), filepath.Base(target)))
}

// writeResult lands the corrupted bytes on disk. In-place writes go
// through a temp file and rename so an interrupted write cannot leave
// the original half-ruined in the wrong way.
func writeResult(output string, data []byte, mode os.FileMode, inPlace bool) error {
	if !inPlace {
		if err := os.WriteFile(output, data, 0o644); err != nil {
			return cli.Internal("writing %s: %v", output, err)
		}
		return nil
	}
	temp := fmt.Sprintf("%s.ruin-%d", output, time.Now().UnixNano())
	if err := os.WriteFile(temp, data, mode.Perm()); err != nil {
		return cli.Internal("writing %s: %v", temp, err)
	}
	if err := os.Rename(temp, output); err != nil {
		os.Remove(temp)
		return cli.Internal("replacing %s: %v", output, err)
	}
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
