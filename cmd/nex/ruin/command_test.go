// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package ruin

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/prompt"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func scripted(answers string) *prompt.Prompter {
	return &prompt.Prompter{In: strings.NewReader(answers), Out: io.Discard}
}

// patterned returns a file-sized buffer that random damage cannot
// accidentally reproduce.
func patterned(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestBounds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		size      int64
		boundary  int
		wantStart int64
		wantEnd   int64
	}{
		{1000, 10, 100, 900},
		{1000, 0, 0, 1000},
		{100, 49, 49, 51},
		{5, 10, 0, 5},
		{10, 45, 4, 6},
	}
	for _, tc := range cases {
		start, end := bounds(tc.size, tc.boundary)
		if start != tc.wantStart || end != tc.wantEnd {
			t.Errorf("bounds(%d, %d) = (%d, %d), want (%d, %d)",
				tc.size, tc.boundary, start, end, tc.wantStart, tc.wantEnd)
		}
	}
}

func TestDamageStaysInsideBounds(t *testing.T) {
	t.Parallel()

	const size = 10_000
	data := make([]byte, size)
	boundStart, boundEnd := bounds(size, 10)

	var total int64
	for i := 0; i < 200; i++ {
		n, err := damage(data, boundStart, boundEnd)
		if err != nil {
			t.Fatalf("damage: %v", err)
		}
		if n < 1 {
			t.Fatalf("damage reported %d bytes", n)
		}
		total += n
	}
	if total < 200*minChunk/2 {
		t.Fatalf("200 passes damaged only %d bytes", total)
	}

	for i := int64(0); i < boundStart; i++ {
		if data[i] != 0 {
			t.Fatalf("byte %d inside the head boundary was touched", i)
		}
	}
	for i := boundEnd; i < size; i++ {
		if data[i] != 0 {
			t.Fatalf("byte %d inside the tail boundary was touched", i)
		}
	}
	if bytes.Equal(data[boundStart:boundEnd], make([]byte, boundEnd-boundStart)) {
		t.Fatal("the corruptible window is still all zeros")
	}
}

func TestCorruptedName(t *testing.T) {
	t.Parallel()

	got := corruptedName(filepath.Join("videos", "clip.mp4"))
	if filepath.Dir(got) != "videos" {
		t.Fatalf("corrupted copy landed in %q, want next to the original", filepath.Dir(got))
	}
	pattern := regexp.MustCompile(`^CORRUPTED-[0-9a-f]{6}-clip\.mp4$`)
	if base := filepath.Base(got); !pattern.MatchString(base) {
		t.Fatalf("corruptedName base = %q, want to match %v", base, pattern)
	}
}

func TestRunRuinWritesCopy(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "clip.bin")
	original := patterned(8192)
	if err := os.WriteFile(target, original, 0o644); err != nil {
		t.Fatal(err)
	}

	params := ruinParams{Passes: 5, Boundary: 10}
	if err := runRuin(context.Background(), params, target, scripted(""), discardLogger()); err != nil {
		t.Fatalf("runRuin: %v", err)
	}

	// The original must be untouched.
	after, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(after, original) {
		t.Fatal("copy mode modified the original")
	}

	copies, err := filepath.Glob(filepath.Join(dir, "CORRUPTED-*-clip.bin"))
	if err != nil || len(copies) != 1 {
		t.Fatalf("expected one corrupted copy, got %v (err %v)", copies, err)
	}
	ruined, err := os.ReadFile(copies[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(ruined) != len(original) {
		t.Fatalf("corrupted copy is %d bytes, want %d", len(ruined), len(original))
	}
	if bytes.Equal(ruined, original) {
		t.Fatal("corrupted copy is identical to the original")
	}
}

func TestRunRuinInPlace(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "clip.bin")
	original := patterned(8192)
	if err := os.WriteFile(target, original, 0o644); err != nil {
		t.Fatal(err)
	}

	params := ruinParams{Passes: 3, Boundary: 10, InPlace: true}
	if err := runRuin(context.Background(), params, target, scripted("clip.bin\n"), discardLogger()); err != nil {
		t.Fatalf("runRuin: %v", err)
	}

	after, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != len(original) {
		t.Fatalf("file is %d bytes after ruin, want %d", len(after), len(original))
	}
	if bytes.Equal(after, original) {
		t.Fatal("in-place ruin left the file unchanged")
	}
}

func TestRunRuinInPlaceWrongPhrase(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "clip.bin")
	original := patterned(4096)
	if err := os.WriteFile(target, original, 0o644); err != nil {
		t.Fatal(err)
	}

	params := ruinParams{Passes: 1, Boundary: 10, InPlace: true}
	err := runRuin(context.Background(), params, target, scripted("yes\n"), discardLogger())
	var toolErr *cli.ToolError
	if !errors.As(err, &toolErr) || toolErr.Category != cli.CategoryValidation {
		t.Fatalf("expected a validation error, got %v", err)
	}

	after, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(after, original) {
		t.Fatal("file was modified despite the failed confirmation")
	}
}

func TestRunRuinValidation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "ok.bin")
	if err := os.WriteFile(target, patterned(1024), 0o644); err != nil {
		t.Fatal(err)
	}
	empty := filepath.Join(dir, "empty.bin")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name     string
		params   ruinParams
		target   string
		category cli.ErrorCategory
	}{
		{"zero passes", ruinParams{Passes: 0, Boundary: 10}, target, cli.CategoryValidation},
		{"boundary too wide", ruinParams{Passes: 1, Boundary: 50}, target, cli.CategoryValidation},
		{"negative boundary", ruinParams{Passes: 1, Boundary: -1}, target, cli.CategoryValidation},
		{"missing file", ruinParams{Passes: 1, Boundary: 10}, filepath.Join(dir, "nope"), cli.CategoryNotFound},
		{"directory", ruinParams{Passes: 1, Boundary: 10}, dir, cli.CategoryValidation},
		{"empty file", ruinParams{Passes: 1, Boundary: 10}, empty, cli.CategoryValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := runRuin(context.Background(), tc.params, tc.target, scripted(""), discardLogger())
			var toolErr *cli.ToolError
			if !errors.As(err, &toolErr) || toolErr.Category != tc.category {
				t.Fatalf("expected %v, got %v", tc.category, err)
			}
		})
	}
}
