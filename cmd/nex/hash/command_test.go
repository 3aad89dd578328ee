// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package hash

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/nexutils/nex/lib/progress"
	"github.com/nexutils/nex/lib/sysinfo"
)

func TestFlaggedCanonicalOrder(t *testing.T) {
	t.Parallel()

	params := hashParams{SHA512: true, MD5: true, BLAKE3: true}
	got := params.flagged()
	want := []string{"md5", "sha512", "blake3"}
	if !slices.Equal(got, want) {
		t.Errorf("flagged() = %v, want %v", got, want)
	}
}

func TestChooseAlgorithmsFlagsWin(t *testing.T) {
	t.Parallel()

	params := hashParams{SHA1: true}
	names, err := chooseAlgorithms(&params, "file.bin")
	if err != nil {
		t.Fatalf("chooseAlgorithms: %v", err)
	}
	if !slices.Equal(names, []string{"sha1"}) {
		t.Errorf("names = %v, want [sha1]", names)
	}
}

func TestChooseAlgorithmsAll(t *testing.T) {
	t.Parallel()

	params := hashParams{All: true, MD5: true}
	names, err := chooseAlgorithms(&params, "file.bin")
	if err != nil {
		t.Fatalf("chooseAlgorithms: %v", err)
	}
	if len(names) != 7 {
		t.Errorf("got %d algorithms, want 7", len(names))
	}
}

func TestChooseAlgorithmsStdinNeverPrompts(t *testing.T) {
	t.Parallel()

	// Hashing stdin must fall back to the defaults even if a terminal
	// is attached, since a prompt would consume input data.
	params := hashParams{}
	names, err := chooseAlgorithms(&params, "-")
	if err != nil {
		t.Fatalf("chooseAlgorithms: %v", err)
	}
	if !slices.Equal(names, defaultAlgorithms) {
		t.Errorf("names = %v, want %v", names, defaultAlgorithms)
	}
}

func TestParseAlgorithmNames(t *testing.T) {
	t.Parallel()

	t.Run("dedupes and orders", func(t *testing.T) {
		t.Parallel()

		names, err := parseAlgorithmNames([]string{"SHA512", "md5", "sha512"})
		if err != nil {
			t.Fatalf("parseAlgorithmNames: %v", err)
		}
		if !slices.Equal(names, []string{"md5", "sha512"}) {
			t.Errorf("names = %v, want [md5 sha512]", names)
		}
	})

	t.Run("unknown name", func(t *testing.T) {
		t.Parallel()

		_, err := parseAlgorithmNames([]string{"sha256", "crc32"})
		if err == nil {
			t.Fatal("parseAlgorithmNames accepted crc32")
		}
		if !strings.Contains(err.Error(), "crc32") {
			t.Errorf("error %q does not name the bad algorithm", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		if _, err := parseAlgorithmNames(nil); err == nil {
			t.Fatal("parseAlgorithmNames accepted an empty list")
		}
	})
}

func TestOpenInputPreloads(t *testing.T) {
	t.Parallel()

	if sysinfo.AvailableMemory() == 0 {
		t.Skip("available memory unknown on this platform; preload never triggers")
	}

	path := filepath.Join(t.TempDir(), "data.bin")
	content := []byte("tiny file that trivially fits in memory")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reader, size, closer, err := openInput(path, false, logger)
	if err != nil {
		t.Fatalf("openInput: %v", err)
	}
	if closer != nil {
		t.Error("preloaded input should not need closing")
	}
	if size != int64(len(content)) {
		t.Errorf("size = %d, want %d", size, len(content))
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("reading preloaded input: %v", err)
	}
	if string(data) != string(content) {
		t.Error("preloaded content does not match the file")
	}
}

func TestOpenInputNoPreloadStreams(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, []byte("stream me"), 0o644); err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reader, size, closer, err := openInput(path, true, logger)
	if err != nil {
		t.Fatalf("openInput: %v", err)
	}
	if closer == nil {
		t.Fatal("streaming input must hand back its closer")
	}
	defer closer.Close()
	if size != int64(len("stream me")) {
		t.Errorf("size = %d, want %d", size, len("stream me"))
	}
	if _, ok := reader.(*os.File); !ok {
		t.Errorf("reader is %T, want *os.File", reader)
	}
}

func TestOpenInputStdin(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reader, size, closer, err := openInput("-", false, logger)
	if err != nil {
		t.Fatalf("openInput: %v", err)
	}
	if reader != os.Stdin {
		t.Error("reader is not stdin")
	}
	if size != progress.UnknownTotal {
		t.Errorf("size = %d, want UnknownTotal", size)
	}
	if closer != nil {
		t.Error("stdin must not be closed")
	}
}

func TestOpenInputMissingFile(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, _, _, err := openInput(filepath.Join(t.TempDir(), "absent"), false, logger)
	if err == nil {
		t.Fatal("openInput succeeded on a missing file")
	}
	if !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("error %q does not mention the missing file", err)
	}
}
