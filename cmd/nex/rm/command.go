// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package rm implements "nex rm": deletion with a progress bar, so
// you can see exactly how slow the disk is while it happens.
package rm

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/progress"
	"github.com/nexutils/nex/lib/prompt"
)

type rmParams struct {
	Jobs  int  `flag:"jobs,j" desc:"parallel deletions (default: min(8, CPUs))"`
	Yes   bool `flag:"yes,y" desc:"skip the confirmation prompt"`
	Dry   bool `flag:"dry" desc:"count and report without deleting"`
	Quiet bool `flag:"quiet,q" desc:"no progress display, summary only"`
}

// Command returns the "rm" command.
func Command() *cli.Command {
	var params rmParams
	return &cli.Command{
		Name:    "rm",
		Summary: "Delete files and directories, visibly",
		Description: `Delete the targets with a running M-of-N progress display. Targets
are inventoried first (so the total and the freed byte count are
known up front) and confirmed before anything is removed. Files go
first through a small worker pool; directories follow deepest-first
once they are empty. Symlinks are removed, never followed.

Entries that cannot be deleted are counted and reported, but do not
stop the rest: the command always finishes the walk and exits zero,
like rm -f. Check the summary, not the exit code.`,
		Usage: "nex rm <target>... [flags]",
		Examples: []cli.Example{
			{
				Description: "Delete a build tree with confirmation",
				Command:     "nex rm ./target",
			},
			{
				Description: "How big is it, and how many files?",
				Command:     "nex rm ./node_modules --dry",
			},
			{
				Description: "Scripted cleanup",
				Command:     "nex rm /tmp/scratch-* --yes --quiet",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) == 0 {
				return cli.Validation("expected at least one target")
			}
			return runRm(ctx, params, args, logger)
		},
	}
}

func runRm(ctx context.Context, params rmParams, targets []string, logger *slog.Logger) error {
	jobs := params.Jobs
	if jobs <= 0 {
		jobs = min(8, runtime.NumCPU())
	}

	inv, err := collect(targets, logger)
	if err != nil {
		return err
	}
	total := len(inv.files) + len(inv.dirs)
	if total == 0 {
		fmt.Println("nothing to delete")
		return nil
	}

	if params.Dry {
		fmt.Printf("would delete %d files and %d directories (%s)\n",
			len(inv.files), len(inv.dirs), humanize.IBytes(uint64(inv.bytes)))
		return nil
	}

	if !params.Yes {
		question := fmt.Sprintf("delete %d files and %d directories (%s)?",
			len(inv.files), len(inv.dirs), humanize.IBytes(uint64(inv.bytes)))
		confirmed, promptErr := prompt.New().Confirm(question, false)
		if promptErr != nil {
			return cli.Validation("confirmation needs interactive input (or pass --yes)")
		}
		if !confirmed {
			fmt.Println("aborted")
			return nil
		}
	}

	start := time.Now()
	var outcome *deleteOutcome
	if params.Quiet {
		outcome, err = deleteAll(ctx, inv, jobs, nil)
	} else {
		tracker := progress.NewTracker(logger)
		task := tracker.Add("deleting", int64(total))
		err = tracker.Run(ctx, func(ctx context.Context) error {
			var workErr error
			outcome, workErr = deleteAll(ctx, inv, jobs, task)
			if workErr != nil {
				task.Fail(workErr)
				return workErr
			}
			task.Done()
			return nil
		})
	}
	if err != nil {
		return cli.Transient("interrupted: %v", err)
	}

	if !params.Quiet {
		for _, failure := range outcome.failures {
			logger.Error("could not delete", "path", failure.path, "error", failure.err)
		}
	}
	elapsed := time.Since(start).Round(10 * time.Millisecond)
	fmt.Printf("deleted %d files, %d directories (%s freed) in %s",
		outcome.files, outcome.dirs, humanize.IBytes(uint64(outcome.bytes)), elapsed)
	if failed := len(outcome.failures); failed > 0 {
		fmt.Printf(", %d failed", failed)
	}
	fmt.Println()
	return nil
}

// inventory is everything the walk found, with directories still in
// discovery order.
type inventory struct {
	files []string
	sizes []int64
	dirs  []string
	bytes int64
}

// collect walks the targets. Unreadable subtrees are reported and
// skipped; a target that does not exist at all is reported too, since
// silently "succeeding" on a typo is how the wrong thing survives.
func collect(targets []string, logger *slog.Logger) (*inventory, error) {
	inv := &inventory{}
	seen := false
	for _, target := range targets {
		info, err := os.Lstat(target)
		if err != nil {
			logger.Warn("target does not exist", "path", target)
			continue
		}
		seen = true
		if !info.IsDir() {
			inv.addFile(target, info.Size())
			continue
		}
		walkErr := filepath.WalkDir(target, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				logger.Warn("cannot read", "path", path, "error", err)
				return nil
			}
			if entry.IsDir() {
				inv.dirs = append(inv.dirs, path)
				return nil
			}
			size := int64(0)
			if entryInfo, infoErr := entry.Info(); infoErr == nil {
				size = entryInfo.Size()
			}
			inv.addFile(path, size)
			return nil
		})
		if walkErr != nil {
			return nil, cli.Internal("walking %s: %v", target, walkErr)
		}
	}
	if !seen {
		return nil, cli.NotFound("none of the targets exist")
	}
	sortDeepestFirst(inv.dirs)
	return inv, nil
}

func (inv *inventory) addFile(path string, size int64) {
	inv.files = append(inv.files, path)
	inv.sizes = append(inv.sizes, size)
	inv.bytes += size
}

// sortDeepestFirst orders directories so every child precedes its
// parent, which is the only order in which rmdir can succeed.
func sortDeepestFirst(dirs []string) {
	depth := func(path string) int {
		return strings.Count(filepath.Clean(path), string(os.PathSeparator))
	}
	sort.SliceStable(dirs, func(i, j int) bool {
		di, dj := depth(dirs[i]), depth(dirs[j])
		if di != dj {
			return di > dj
		}
		return dirs[i] > dirs[j]
	})
}

type failure struct {
	path string
	err  error
}

type deleteOutcome struct {
	files int64
	dirs  int64
	bytes int64

	failures []failure
}

// deleteAll removes the inventory: files concurrently, then
// directories in deepest-first order. Per-entry failures are collected
// rather than fatal; only context cancellation aborts.
func deleteAll(ctx context.Context, inv *inventory, jobs int, task *progress.Task) (*deleteOutcome, error) {
	outcome := &deleteOutcome{}
	var mu sync.Mutex
	var deletedFiles, deletedBytes atomic.Int64

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(jobs)
	for i, file := range inv.files {
		size := inv.sizes[i]
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			if err := os.Remove(file); err != nil {
				mu.Lock()
				outcome.failures = append(outcome.failures, failure{path: file, err: err})
				mu.Unlock()
			} else {
				deletedFiles.Add(1)
				deletedBytes.Add(size)
			}
			if task != nil {
				task.Add(1)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return outcome, err
	}
	outcome.files = deletedFiles.Load()
	outcome.bytes = deletedBytes.Load()

	for _, dir := range inv.dirs {
		if ctx.Err() != nil {
			return outcome, ctx.Err()
		}
		if err := os.Remove(dir); err != nil {
			outcome.failures = append(outcome.failures, failure{path: dir, err: err})
		} else {
			outcome.dirs++
		}
		if task != nil {
			task.Add(1)
		}
	}
	return outcome, nil
}
