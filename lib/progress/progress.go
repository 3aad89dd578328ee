// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package progress renders live progress for long-running command
// work. A Tracker owns a set of Tasks that worker goroutines update
// concurrently; Run drives the work function while rendering task
// state to stderr. On a terminal the display is an inline bubbletea
// program with per-task bars; otherwise the tracker falls back to
// periodic structured log lines so piped and scripted runs stay
// readable.
//
// Stdout is never touched: commands print their real output (digests,
// JSON, file listings) to stdout while the progress display comes and
// goes on stderr.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

// Task states. Transitions are one-way: running to done or failed.
const (
	stateRunning int32 = iota
	stateDone
	stateFailed
)

// UnknownTotal marks a task whose total is not known up front (for
// example a download without a Content-Length header). The renderer
// shows a spinner and the amount transferred instead of a bar.
const UnknownTotal int64 = -1

// Task is one unit of tracked work. Worker goroutines call Add, Done
// and Fail; the renderer reads the counters. All methods are safe for
// concurrent use.
type Task struct {
	label   string
	bytes   bool
	total   atomic.Int64
	current atomic.Int64
	state   atomic.Int32
	started time.Time

	mu  sync.Mutex
	err error

	// Rate bookkeeping, touched only by the render loop.
	lastCurrent int64
	lastTime    time.Time
	rate        float64
}

// Add advances the task by n units.
func (task *Task) Add(n int64) {
	task.current.Add(n)
}

// SetTotal replaces the task total. Used when the true size becomes
// known after the task started, such as a late Content-Length.
func (task *Task) SetTotal(total int64) {
	task.total.Store(total)
}

// Done marks the task complete. The current count snaps to the total
// so the bar renders full even when the worker counted short.
func (task *Task) Done() {
	if total := task.total.Load(); total > 0 {
		task.current.Store(total)
	}
	task.state.Store(stateDone)
}

// Fail marks the task failed. The error appears in the rendered line
// and in the final log output.
func (task *Task) Fail(err error) {
	task.mu.Lock()
	task.err = err
	task.mu.Unlock()
	task.state.Store(stateFailed)
}

// Err returns the error recorded by Fail, or nil.
func (task *Task) Err() error {
	task.mu.Lock()
	defer task.mu.Unlock()
	return task.err
}

// Label returns the fixed display label given to Tracker.Add.
func (task *Task) Label() string { return task.label }

// Current returns the units completed so far.
func (task *Task) Current() int64 { return task.current.Load() }

// Total returns the task total, or UnknownTotal.
func (task *Task) Total() int64 { return task.total.Load() }

// finished reports whether the task reached a terminal state.
func (task *Task) finished() bool {
	return task.state.Load() != stateRunning
}

// percent returns completion in [0, 1], or -1 when the total is
// unknown or zero.
func (task *Task) percent() float64 {
	total := task.total.Load()
	if total <= 0 {
		return -1
	}
	ratio := float64(task.current.Load()) / float64(total)
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

// updateRate folds the progress since the last render tick into an
// exponential moving average. Called only from the render loop.
func (task *Task) updateRate(now time.Time) {
	current := task.current.Load()
	if task.lastTime.IsZero() {
		task.lastCurrent = current
		task.lastTime = now
		return
	}
	elapsed := now.Sub(task.lastTime).Seconds()
	if elapsed <= 0 {
		return
	}
	instantaneous := float64(current-task.lastCurrent) / elapsed
	if task.rate == 0 {
		task.rate = instantaneous
	} else {
		task.rate = 0.7*task.rate + 0.3*instantaneous
	}
	task.lastCurrent = current
	task.lastTime = now
}

// amount renders the completed-of-total column: "12 MiB / 96 MiB" for
// byte tasks, "3/10" for counted tasks, and just the completed amount
// when the total is unknown.
func (task *Task) amount() string {
	current := task.current.Load()
	total := task.total.Load()
	if task.bytes {
		if total <= 0 {
			return humanize.IBytes(uint64(max(current, 0)))
		}
		return humanize.IBytes(uint64(max(current, 0))) + " / " + humanize.IBytes(uint64(total))
	}
	if total <= 0 {
		return fmt.Sprintf("%d", current)
	}
	return fmt.Sprintf("%d/%d", current, total)
}

// rateString renders the moving-average throughput, or "" while the
// rate is still settling.
func (task *Task) rateString() string {
	if task.rate <= 0 {
		return ""
	}
	if task.bytes {
		return humanize.IBytes(uint64(task.rate)) + "/s"
	}
	return fmt.Sprintf("%.0f/s", task.rate)
}

// elapsed returns the task runtime rounded to the second.
func (task *Task) elapsed(now time.Time) string {
	return now.Sub(task.started).Round(time.Second).String()
}

// Tracker owns the task set and the render loop. Create one with
// NewTracker, register tasks with Add or AddBytes, then call Run with
// the work function that drives the tasks.
type Tracker struct {
	logger *slog.Logger

	mu    sync.Mutex
	tasks []*Task
}

// NewTracker returns an empty tracker that logs through logger when
// stderr is not a terminal.
func NewTracker(logger *slog.Logger) *Tracker {
	return &Tracker{logger: logger}
}

// Add registers a counted task. Pass UnknownTotal when the total is
// not known up front.
func (tracker *Tracker) Add(label string, total int64) *Task {
	return tracker.add(label, total, false)
}

// AddBytes registers a byte-counted task rendered with binary size
// units.
func (tracker *Tracker) AddBytes(label string, total int64) *Task {
	return tracker.add(label, total, true)
}

func (tracker *Tracker) add(label string, total int64, bytes bool) *Task {
	task := &Task{label: label, bytes: bytes, started: time.Now()}
	task.total.Store(total)
	tracker.mu.Lock()
	tracker.tasks = append(tracker.tasks, task)
	tracker.mu.Unlock()
	return task
}

// snapshot returns the current task list. Tasks may still be added
// while the renderer runs, so every render pass takes a fresh copy.
func (tracker *Tracker) snapshot() []*Task {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	return append([]*Task(nil), tracker.tasks...)
}

// Run executes work while rendering task progress, and returns the
// work function's error. The context handed to work is cancelled when
// the user interrupts the display (Ctrl-C on the terminal renderer),
// so the work function must honor it. Run blocks until work returns.
func (tracker *Tracker) Run(ctx context.Context, work func(context.Context) error) error {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return tracker.runTerminal(ctx, work)
	}
	return tracker.runPlain(ctx, work)
}

// plainInterval is how often the non-terminal renderer logs a
// snapshot of running tasks.
const plainInterval = 2 * time.Second

// runPlain drives work while periodically logging task state. This is
// the renderer for pipes, CI logs, and service units.
func (tracker *Tracker) runPlain(ctx context.Context, work func(context.Context) error) error {
	result := make(chan error, 1)
	go func() { result <- work(ctx) }()

	ticker := time.NewTicker(plainInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-result:
			tracker.logFinal()
			return err
		case now := <-ticker.C:
			tracker.logSnapshot(now)
		}
	}
}

// logSnapshot emits one log line per unfinished task.
func (tracker *Tracker) logSnapshot(now time.Time) {
	for _, task := range tracker.snapshot() {
		if task.finished() {
			continue
		}
		task.updateRate(now)
		attrs := []any{"progress", task.amount()}
		if pct := task.percent(); pct >= 0 {
			attrs = append(attrs, "percent", int(pct*100))
		}
		if rate := task.rateString(); rate != "" {
			attrs = append(attrs, "rate", rate)
		}
		tracker.logger.Info(task.label, attrs...)
	}
}

// logFinal emits one terminal-state line per task after work returns.
func (tracker *Tracker) logFinal() {
	now := time.Now()
	for _, task := range tracker.snapshot() {
		switch task.state.Load() {
		case stateFailed:
			tracker.logger.Error(task.label, "state", "failed", "error", task.Err())
		case stateDone:
			tracker.logger.Info(task.label, "state", "done", "progress", task.amount(), "elapsed", task.elapsed(now))
		default:
			tracker.logger.Warn(task.label, "state", "incomplete", "progress", task.amount())
		}
	}
}
