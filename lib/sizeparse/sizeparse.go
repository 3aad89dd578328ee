// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package sizeparse converts human byte-size strings ("512", "4K",
// "1.5G", "2MiB") into byte counts. Units are 1024-based regardless of
// suffix spelling: "1K", "1KB" and "1KiB" all mean 1024 bytes, matching
// what people expect from block sizes and RAM, not disk marketing.
package sizeparse

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// multipliers maps a lower-cased unit suffix to its byte multiplier.
var multipliers = map[string]int64{
	"":    1,
	"b":   1,
	"k":   1 << 10,
	"kb":  1 << 10,
	"kib": 1 << 10,
	"m":   1 << 20,
	"mb":  1 << 20,
	"mib": 1 << 20,
	"g":   1 << 30,
	"gb":  1 << 30,
	"gib": 1 << 30,
	"t":   1 << 40,
	"tb":  1 << 40,
	"tib": 1 << 40,
}

// Bytes parses a size string into a byte count. The numeric part may be
// fractional ("1.5G"); the result is truncated to a whole number of
// bytes. Returns an error for empty input, unknown suffixes, negative
// values, and values that overflow int64.
func Bytes(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("empty size")
	}

	// Split the numeric prefix from the unit suffix.
	split := len(trimmed)
	for i, r := range trimmed {
		if (r < '0' || r > '9') && r != '.' && r != '-' && r != '+' {
			split = i
			break
		}
	}
	numPart := trimmed[:split]
	unitPart := strings.ToLower(strings.TrimSpace(trimmed[split:]))

	multiplier, ok := multipliers[unitPart]
	if !ok {
		return 0, fmt.Errorf("unknown size unit %q in %q", trimmed[split:], s)
	}

	value, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}

	result := value * float64(multiplier)
	if result > math.MaxInt64 {
		return 0, fmt.Errorf("size %q overflows", s)
	}
	return int64(result), nil
}
