// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package hasher

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/zeebo/blake3"
)

func TestNewKnownAlgorithms(t *testing.T) {
	sizes := map[string]int{
		"md5":    16,
		"sha1":   20,
		"sha224": 28,
		"sha256": 32,
		"sha384": 48,
		"sha512": 64,
		"blake3": 32,
	}
	for _, name := range Algorithms() {
		hasher, err := New(name)
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if got := hasher.Size(); got != sizes[name] {
			t.Errorf("New(%q).Size() = %d, want %d", name, got, sizes[name])
		}
	}
}

func TestNewUnknownAlgorithm(t *testing.T) {
	_, err := New("crc32")
	if err == nil {
		t.Fatal("New(\"crc32\") should fail")
	}
	if !strings.Contains(err.Error(), "crc32") {
		t.Errorf("error %q does not name the bad algorithm", err)
	}
}

func TestSumMatchesDirectHashing(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog, repeatedly, for testing purposes")

	md5Sum := md5.Sum(content)
	sha1Sum := sha1.Sum(content)
	sha224Sum := sha256.Sum224(content)
	sha256Sum := sha256.Sum256(content)
	sha384Sum := sha512.Sum384(content)
	sha512Sum := sha512.Sum512(content)
	blake3Sum := blake3.Sum256(content)
	want := map[string]string{
		"md5":    hex.EncodeToString(md5Sum[:]),
		"sha1":   hex.EncodeToString(sha1Sum[:]),
		"sha224": hex.EncodeToString(sha224Sum[:]),
		"sha256": hex.EncodeToString(sha256Sum[:]),
		"sha384": hex.EncodeToString(sha384Sum[:]),
		"sha512": hex.EncodeToString(sha512Sum[:]),
		"blake3": hex.EncodeToString(blake3Sum[:]),
	}

	digests, err := Sum(context.Background(), bytes.NewReader(content), Request{Algorithms: Algorithms()})
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if len(digests) != len(Algorithms()) {
		t.Fatalf("Sum returned %d digests, want %d", len(digests), len(Algorithms()))
	}
	for i, digest := range digests {
		if digest.Algorithm != Algorithms()[i] {
			t.Errorf("digest %d is %s, want request order %s", i, digest.Algorithm, Algorithms()[i])
		}
		if digest.Hex != want[digest.Algorithm] {
			t.Errorf("%s = %s, want %s", digest.Algorithm, digest.Hex, want[digest.Algorithm])
		}
	}
}

func TestSumSmallBlockSize(t *testing.T) {
	// Chunked reads must produce the same digest as one-shot hashing.
	content := []byte("eleven byte")
	sha256Sum := sha256.Sum256(content)

	digests, err := Sum(context.Background(), bytes.NewReader(content), Request{
		Algorithms: []string{"sha256"},
		BlockSize:  4,
	})
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if digests[0].Hex != hex.EncodeToString(sha256Sum[:]) {
		t.Errorf("chunked sha256 = %s, want %s", digests[0].Hex, hex.EncodeToString(sha256Sum[:]))
	}
}

func TestSumEmptyInput(t *testing.T) {
	sha256Sum := sha256.Sum256(nil)
	digests, err := Sum(context.Background(), bytes.NewReader(nil), Request{Algorithms: []string{"sha256"}})
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if digests[0].Hex != hex.EncodeToString(sha256Sum[:]) {
		t.Errorf("empty sha256 = %s, want %s", digests[0].Hex, hex.EncodeToString(sha256Sum[:]))
	}
}

func TestSumNoAlgorithms(t *testing.T) {
	_, err := Sum(context.Background(), bytes.NewReader(nil), Request{})
	if err == nil {
		t.Fatal("Sum with no algorithms should fail")
	}
}

func TestSumUnknownAlgorithm(t *testing.T) {
	_, err := Sum(context.Background(), bytes.NewReader(nil), Request{Algorithms: []string{"sha256", "whirlpool"}})
	if err == nil {
		t.Fatal("Sum with unknown algorithm should fail")
	}
}

func TestSumProgress(t *testing.T) {
	content := make([]byte, 10000)
	for i := range content {
		content[i] = byte(i % 251)
	}

	var mu sync.Mutex
	counted := map[string]int64{}
	_, err := Sum(context.Background(), bytes.NewReader(content), Request{
		Algorithms: []string{"md5", "blake3"},
		BlockSize:  1024,
		Progress: func(algorithm string, n int64) {
			mu.Lock()
			counted[algorithm] += n
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	for _, algorithm := range []string{"md5", "blake3"} {
		if counted[algorithm] != int64(len(content)) {
			t.Errorf("%s progress counted %d bytes, want %d", algorithm, counted[algorithm], len(content))
		}
	}
}

func TestSumCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// An endless zero stream: only cancellation can end this read.
	endless := io.LimitReader(zeroReader{}, 1<<40)
	_, err := Sum(ctx, endless, Request{Algorithms: []string{"sha256"}, BlockSize: 1024})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Sum error = %v, want context.Canceled", err)
	}
}

func TestSumReadError(t *testing.T) {
	broken := io.MultiReader(strings.NewReader("partial"), errorReader{})
	_, err := Sum(context.Background(), broken, Request{Algorithms: []string{"sha256"}})
	if err == nil {
		t.Fatal("Sum should surface the read error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error %q does not wrap the read failure", err)
	}
}

type zeroReader struct{}

func (zeroReader) Read(buffer []byte) (int, error) { return len(buffer), nil }

type errorReader struct{}

func (errorReader) Read([]byte) (int, error) { return 0, errors.New("boom") }
