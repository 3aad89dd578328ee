// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package flash

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"

	"github.com/zeebo/blake3"
	"golang.org/x/sys/unix"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/progress"
)

// isBlockDevice reports whether info describes a block device (a whole
// disk or a partition, not a character device like a tty).
func isBlockDevice(info os.FileInfo) bool {
	mode := info.Mode()
	return mode&os.ModeDevice != 0 && mode&os.ModeCharDevice == 0
}

// deviceSize measures an opened device by seeking to its end. Unlike
// stat, this works on block devices, where Size() is always zero.
func deviceSize(file *os.File) (int64, error) {
	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return size, nil
}

// fitsInMemory reports whether a buffer of size bytes can be held in
// RAM without pushing the system into swap. Free plus buffer pages,
// with a quarter held back.
func fitsInMemory(size int64) bool {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return false
	}
	available := (uint64(info.Freeram) + uint64(info.Bufferram)) * uint64(info.Unit)
	return size > 0 && uint64(size) <= available/4*3
}

// zeroDevice writes zeros over the device until size bytes are written
// or, when size is unknown (negative), until the device reports it is
// full. Returns how many bytes were zeroed and leaves the file offset
// at the start.
func zeroDevice(ctx context.Context, target *os.File, size, blockSize int64, task *progress.Task) (int64, error) {
	zeros := make([]byte, blockSize)
	var written int64
	for size < 0 || written < size {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		block := zeros
		if size >= 0 {
			if remaining := size - written; remaining < blockSize {
				block = zeros[:remaining]
			}
		}
		n, err := target.Write(block)
		written += int64(n)
		if task != nil {
			task.Add(int64(n))
		}
		if err != nil {
			if errors.Is(err, unix.ENOSPC) {
				// The device told us where it ends.
				break
			}
			return written, cli.Internal("zeroing %s: %v", target.Name(), err)
		}
	}
	if _, err := target.Seek(0, io.SeekStart); err != nil {
		return written, cli.Internal("rewinding %s: %v", target.Name(), err)
	}
	return written, nil
}

// bufferSource reads the whole source file into memory.
func bufferSource(ctx context.Context, path string, size, blockSize int64, task *progress.Task) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, cli.Internal("opening %s: %v", path, err)
	}
	defer file.Close()

	data := make([]byte, 0, size)
	buffer := make([]byte, blockSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, readErr := file.Read(buffer)
		data = append(data, buffer[:n]...)
		if task != nil {
			task.Add(int64(n))
		}
		if readErr == io.EOF {
			return data, nil
		}
		if readErr != nil {
			return nil, cli.Internal("reading %s: %v", path, readErr)
		}
	}
}

// writeImage copies source to target in blockSize chunks, feeding every
// byte through hasher for later verification. Returns the byte count
// written.
func writeImage(ctx context.Context, source io.Reader, target *os.File, blockSize int64, hasher *blake3.Hasher, task *progress.Task) (int64, error) {
	buffer := make([]byte, blockSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, readErr := io.ReadFull(source, buffer)
		if n > 0 {
			if hasher != nil {
				hasher.Write(buffer[:n])
			}
			wrote, writeErr := target.Write(buffer[:n])
			written += int64(wrote)
			if task != nil {
				task.Add(int64(wrote))
			}
			if writeErr != nil {
				if errors.Is(writeErr, unix.ENOSPC) {
					return written, cli.Validation("%s is smaller than the image (device full after %d bytes)", target.Name(), written)
				}
				return written, cli.Internal("writing to %s: %v", target.Name(), writeErr)
			}
		}
		if readErr == io.EOF || errors.Is(readErr, io.ErrUnexpectedEOF) {
			return written, nil
		}
		if readErr != nil {
			return written, cli.Internal("reading source: %v", readErr)
		}
	}
}

// verifyTarget re-reads size bytes from the target and compares their
// BLAKE3 digest against want. The page cache is dropped first so the
// bytes come back from the device, not from the cache the write just
// filled.
func verifyTarget(ctx context.Context, target *os.File, size, blockSize int64, want []byte, task *progress.Task) error {
	unix.Fadvise(int(target.Fd()), 0, 0, unix.FADV_DONTNEED)
	if _, err := target.Seek(0, io.SeekStart); err != nil {
		return cli.Internal("rewinding %s: %v", target.Name(), err)
	}

	hasher := blake3.New()
	buffer := make([]byte, blockSize)
	var read int64
	for read < size {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := blockSize
		if remaining := size - read; remaining < n {
			n = remaining
		}
		count, err := io.ReadFull(target, buffer[:n])
		read += int64(count)
		if task != nil {
			task.Add(int64(count))
		}
		hasher.Write(buffer[:count])
		if err != nil {
			return cli.Internal("reading back %s: %v", target.Name(), err)
		}
	}

	if got := hasher.Sum(nil); !bytes.Equal(got, want) {
		return cli.Internal("verification failed: %s does not match the source", target.Name())
	}
	return nil
}
