// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package upnp

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"net/netip"
	"os"
	"strings"
)

// defaultGateway returns the IPv4 default gateway from the kernel
// routing table.
func defaultGateway() (netip.Addr, error) {
	return readDefaultGatewayFrom("/proc/net/route")
}

// readDefaultGatewayFrom parses a /proc/net/route-format table. Each
// data line is interface, destination, gateway, ... with addresses as
// little-endian hex words; the default route has destination
// 00000000.
func readDefaultGatewayFrom(path string) (netip.Addr, error) {
	file, err := os.Open(path)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("reading routing table: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Scan() // header line
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || fields[1] != "00000000" {
			continue
		}
		gateway, err := parseRouteAddr(fields[2])
		if err != nil {
			return netip.Addr{}, fmt.Errorf("routing table gateway %q: %w", fields[2], err)
		}
		// 0.0.0.0 marks an on-link route, not a gateway.
		if gateway.IsUnspecified() {
			continue
		}
		return gateway, nil
	}
	if err := scanner.Err(); err != nil {
		return netip.Addr{}, fmt.Errorf("reading routing table: %w", err)
	}
	return netip.Addr{}, fmt.Errorf("no default gateway in %s", path)
}

// parseRouteAddr decodes a little-endian hex address word, e.g.
// "0101A8C0" is 192.168.1.1.
func parseRouteAddr(word string) (netip.Addr, error) {
	if len(word) != 8 {
		return netip.Addr{}, fmt.Errorf("address word has %d hex digits, want 8", len(word))
	}
	raw, err := hex.DecodeString(word)
	if err != nil {
		return netip.Addr{}, err
	}
	return netip.AddrFrom4([4]byte{raw[3], raw[2], raw[1], raw[0]}), nil
}
