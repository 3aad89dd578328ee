// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// DefaultIPSources are plain-text "what is my IP" services tried in order
// by [PublicIP]. Each answers a bare GET with the caller's address and
// nothing else.
var DefaultIPSources = []string{
	"https://api.ipify.org",
	"https://ipv4.seeip.org",
	"https://v4.ident.me",
	"https://ipecho.net/plain",
}

// PublicIP discovers the machine's public IPv4 address by asking each
// source in turn and returning the first parseable answer. client may be
// nil, in which case http.DefaultClient is used. sources may be nil, in
// which case [DefaultIPSources] is used. Returns the joined errors when
// every source fails.
func PublicIP(ctx context.Context, client *http.Client, sources []string) (netip.Addr, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if len(sources) == 0 {
		sources = DefaultIPSources
	}

	var errs []error
	for _, source := range sources {
		addr, err := fetchIP(ctx, client, source)
		if err != nil {
			if ctx.Err() != nil {
				return netip.Addr{}, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("%s: %w", source, err))
			continue
		}
		return addr, nil
	}
	return netip.Addr{}, fmt.Errorf("no IP source answered: %w", errors.Join(errs...))
}

// fetchIP performs one GET against a plain-text IP service.
func fetchIP(ctx context.Context, client *http.Client, source string) (netip.Addr, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return netip.Addr{}, err
	}
	response, err := client.Do(request)
	if err != nil {
		return netip.Addr{}, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return netip.Addr{}, fmt.Errorf("status %s", response.Status)
	}

	// An address is at most 45 bytes; anything longer is not an IP service.
	body, err := io.ReadAll(io.LimitReader(response.Body, 128))
	if err != nil {
		return netip.Addr{}, err
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(string(body)))
	if err != nil {
		return netip.Addr{}, err
	}
	return addr.Unmap(), nil
}

// OutboundIP reports the local address the routing table selects for
// reaching the public internet. No packets are sent: connecting a UDP
// socket only resolves the route.
func OutboundIP() (netip.Addr, error) {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return netip.Addr{}, fmt.Errorf("resolving outbound route: %w", err)
	}
	defer conn.Close()

	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return netip.Addr{}, fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
	}
	addr, ok := netip.AddrFromSlice(local.IP)
	if !ok {
		return netip.Addr{}, fmt.Errorf("unparseable local address %v", local.IP)
	}
	return addr.Unmap(), nil
}
