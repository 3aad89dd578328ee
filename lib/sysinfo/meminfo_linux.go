// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package sysinfo

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// AvailableMemory returns the bytes of memory available for new
// allocations without swapping, per /proc/meminfo MemAvailable. Returns
// 0 when the value cannot be determined (the caller treats 0 as "don't
// know, assume nothing is available").
func AvailableMemory() uint64 {
	if available := readAvailableFrom("/proc/meminfo"); available > 0 {
		return available
	}
	// Kernels before 3.14 have no MemAvailable; fall back to free RAM
	// from sysinfo(2), which undercounts reclaimable page cache.
	var info syscall.Sysinfo_t
	if err := syscall.Sysinfo(&info); err != nil {
		return 0
	}
	return info.Freeram * uint64(info.Unit)
}

// readAvailableFrom is the testable version of AvailableMemory that
// accepts a file path. Returns 0 on any parse failure.
func readAvailableFrom(path string) uint64 {
	file, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		// Expected format: "MemAvailable:    8062136 kB"
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || fields[0] != "MemAvailable:" {
			continue
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb * 1024
	}
	return 0
}
