// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package sysinfo

// AvailableMemory returns 0 on platforms without /proc/meminfo. Callers
// treat 0 as "unknown" and skip optimizations that depend on knowing
// how much memory is free.
func AvailableMemory() uint64 {
	return 0
}
