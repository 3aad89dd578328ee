// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package hasher

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
)

// DefaultBlockSize is the read chunk size when the request does not
// set one: 1 MiB, a good fit for spinning disks and NVMe alike.
const DefaultBlockSize = 1 << 20

// algorithms maps canonical algorithm names to constructors, in
// output order.
var algorithms = []struct {
	name string
	make func() hash.Hash
}{
	{"md5", md5.New},
	{"sha1", sha1.New},
	{"sha224", sha256.New224},
	{"sha256", sha256.New},
	{"sha384", sha512.New384},
	{"sha512", sha512.New},
	{"blake3", func() hash.Hash { return blake3.New() }},
}

// Algorithms returns the supported algorithm names in canonical
// output order.
func Algorithms() []string {
	names := make([]string, len(algorithms))
	for i, algorithm := range algorithms {
		names[i] = algorithm.name
	}
	return names
}

// New constructs the named hash. The name must be one of
// [Algorithms].
func New(name string) (hash.Hash, error) {
	for _, algorithm := range algorithms {
		if algorithm.name == name {
			return algorithm.make(), nil
		}
	}
	return nil, fmt.Errorf("unknown hash algorithm %q (supported: %v)", name, Algorithms())
}

// Digest is one computed digest in hex form.
type Digest struct {
	Algorithm string `json:"algorithm"`
	Hex       string `json:"hex"`
}

// Request configures a Sum call.
type Request struct {
	// Algorithms to compute, by canonical name. At least one.
	Algorithms []string

	// BlockSize is the read chunk size in bytes. Zero means
	// DefaultBlockSize.
	BlockSize int

	// Progress, when set, is called after each chunk is hashed with
	// the algorithm name and the chunk length. Called concurrently
	// from one goroutine per algorithm.
	Progress func(algorithm string, n int64)
}

// Sum reads source exactly once and computes every requested digest
// concurrently: a reader goroutine broadcasts each chunk to one
// hashing goroutine per algorithm. This keeps large files on a single
// disk pass no matter how many digests are requested. Digests are
// returned in request order.
func Sum(ctx context.Context, source io.Reader, request Request) ([]Digest, error) {
	if len(request.Algorithms) == 0 {
		return nil, errors.New("no hash algorithms requested")
	}
	blockSize := request.BlockSize
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}

	type hashWorker struct {
		name string
		hash hash.Hash
		feed chan []byte
	}
	workers := make([]*hashWorker, 0, len(request.Algorithms))
	for _, name := range request.Algorithms {
		hasher, err := New(name)
		if err != nil {
			return nil, err
		}
		workers = append(workers, &hashWorker{name: name, hash: hasher, feed: make(chan []byte, 4)})
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, worker := range workers {
		group.Go(func() error {
			for chunk := range worker.feed {
				// hash.Hash.Write never returns an error.
				worker.hash.Write(chunk)
				if request.Progress != nil {
					request.Progress(worker.name, int64(len(chunk)))
				}
			}
			return nil
		})
	}

	group.Go(func() error {
		// Closing the feeds releases the hashing goroutines whether
		// the read finished or was cut short.
		defer func() {
			for _, worker := range workers {
				close(worker.feed)
			}
		}()
		for {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			// A fresh buffer per chunk: the workers consume at their
			// own pace, so the buffer cannot be reused until every
			// feed has drained it.
			chunk := make([]byte, blockSize)
			n, err := source.Read(chunk)
			if n > 0 {
				filled := chunk[:n]
				for _, worker := range workers {
					select {
					case worker.feed <- filled:
					case <-groupCtx.Done():
						return groupCtx.Err()
					}
				}
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("reading hash input: %w", err)
			}
		}
	})

	if err := group.Wait(); err != nil {
		return nil, err
	}

	digests := make([]Digest, len(workers))
	for i, worker := range workers {
		digests[i] = Digest{Algorithm: worker.name, Hex: hex.EncodeToString(worker.hash.Sum(nil))}
	}
	return digests, nil
}
