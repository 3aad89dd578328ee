// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package upnp

import (
	"context"
	"fmt"
	"net/netip"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// Upnpc drives the miniupnpc command-line client. Every operation is
// one subprocess invocation; upnpc performs its own IGD discovery on
// each run, which makes this the slowest backend but also the one
// that works wherever the user's own upnpc does.
type Upnpc struct {
	// Binary is the upnpc executable, resolved through PATH when not
	// absolute.
	Binary string
}

// NewUpnpc returns an upnpc backend. An empty binary means "upnpc".
func NewUpnpc(binary string) *Upnpc {
	if binary == "" {
		binary = "upnpc"
	}
	return &Upnpc{Binary: binary}
}

// Name implements Backend.
func (client *Upnpc) Name() string { return "upnpc" }

// run executes one upnpc invocation and returns its combined output.
// upnpc writes diagnostics to stdout, so combined capture loses
// nothing and keeps failures self-describing.
func (client *Upnpc) run(ctx context.Context, args ...string) (string, error) {
	command := exec.CommandContext(ctx, client.Binary, args...)
	output, err := command.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("%s %s: %w (%s)",
			client.Binary, strings.Join(args, " "), err, lastOutputLine(output))
	}
	return string(output), nil
}

// lastOutputLine extracts the final non-blank line of subprocess
// output for error messages. upnpc prints its failure reason last,
// after a banner several lines long.
func lastOutputLine(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return "no output"
}

// mappingLine matches one entry of upnpc's listing output:
//
//	 0 TCP  8080->192.168.1.42:80 'nex' '' 0
//
// The first number is the entry index, then protocol, external port,
// target address, and a free-form remainder (description, remote
// host, lease). Banner and status lines do not match and are skipped.
var mappingLine = regexp.MustCompile(`(?i)^\s*\d+\s+(TCP|UDP)\s+(\d{1,5})->(\d{1,3}(?:\.\d{1,3}){3}):(\d{1,5})\s+(.*)$`)

// ListMappings implements Backend. It prefers the IGD:2 listing
// (upnpc -L, which reports remaining lease times) and falls back to
// the IGD:1 form when the gateway rejects the newer action.
func (client *Upnpc) ListMappings(ctx context.Context) ([]Mapping, error) {
	output, err := client.run(ctx, "-L")
	if strings.Contains(output, "(Invalid Action)") {
		// Gateway speaks IGD:1 only. The rejection shows up in the
		// output whether or not upnpc also exits non-zero.
		output, err = client.run(ctx, "-l")
	}
	if err != nil {
		return nil, fmt.Errorf("listing mappings: %w", err)
	}
	return parseMappingList(output)
}

// parseMappingList extracts mappings from upnpc listing output. Lines
// that do not look like mapping entries (banners, the external IP
// line, column headers) are ignored; a line that matches the entry
// shape but carries an unparseable field is an error, since silently
// dropping it would make the reconciler re-add a port that is in fact
// taken.
func parseMappingList(output string) ([]Mapping, error) {
	var mappings []Mapping
	for _, line := range strings.Split(output, "\n") {
		groups := mappingLine.FindStringSubmatch(line)
		if groups == nil {
			continue
		}
		externalPort, err := strconv.ParseUint(groups[2], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("mapping entry %q: external port: %w", strings.TrimSpace(line), err)
		}
		targetIP, err := netip.ParseAddr(groups[3])
		if err != nil {
			return nil, fmt.Errorf("mapping entry %q: target address: %w", strings.TrimSpace(line), err)
		}
		targetPort, err := strconv.ParseUint(groups[4], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("mapping entry %q: target port: %w", strings.TrimSpace(line), err)
		}
		protocol, err := ParseProtocol(groups[1])
		if err != nil {
			return nil, fmt.Errorf("mapping entry %q: %w", strings.TrimSpace(line), err)
		}
		mappings = append(mappings, Mapping{
			ExternalPort: uint16(externalPort),
			Protocol:     protocol,
			TargetIP:     targetIP,
			TargetPort:   uint16(targetPort),
			Description:  parseListDescription(groups[5]),
		})
	}
	return mappings, nil
}

// parseListDescription pulls the quoted description out of the
// free-form tail of a listing entry, e.g. `'nex' '' 0`. Returns ""
// when the tail has no quoted segment.
func parseListDescription(tail string) string {
	start := strings.IndexByte(tail, '\'')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(tail[start+1:], '\'')
	if end < 0 {
		return ""
	}
	return tail[start+1 : start+1+end]
}

// AddMapping implements Backend, invoking
//
//	upnpc [-e desc] -a <target ip> <internal> <external> <proto> [lease]
func (client *Upnpc) AddMapping(ctx context.Context, request MapRequest) error {
	var args []string
	if request.Description != "" {
		args = append(args, "-e", request.Description)
	}
	args = append(args, "-a",
		request.TargetIP.String(),
		strconv.Itoa(int(request.InternalPort)),
		strconv.Itoa(int(request.ExternalPort)),
		strings.ToUpper(string(request.Protocol)),
	)
	if request.LeaseSeconds > 0 {
		args = append(args, strconv.FormatUint(uint64(request.LeaseSeconds), 10))
	}

	output, err := client.run(ctx, args...)
	if err != nil {
		return err
	}
	// upnpc exits 0 even when the gateway refuses the mapping; the
	// refusal only shows in the output text.
	if failure := findConflictLine(output); failure != "" {
		return fmt.Errorf("gateway refused %d->%d/%s: %s",
			request.ExternalPort, request.InternalPort, request.Protocol, failure)
	}
	return nil
}

// findConflictLine scans add-mapping output for the gateway error
// line upnpc prints without a non-zero exit, such as
// "AddPortMapping(...) failed with code 718 (ConflictInMappingEntry)".
func findConflictLine(output string) string {
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.Contains(trimmed, "failed with code") {
			return trimmed
		}
	}
	return ""
}

// DeleteMapping implements Backend, invoking
//
//	upnpc -d <external> <proto>
func (client *Upnpc) DeleteMapping(ctx context.Context, externalPort uint16, protocol Protocol) error {
	_, err := client.run(ctx, "-d",
		strconv.Itoa(int(externalPort)),
		strings.ToUpper(string(protocol)),
	)
	if err != nil {
		return fmt.Errorf("deleting %d/%s: %w", externalPort, protocol, err)
	}
	return nil
}

// externalIPLine matches the WAN address line of upnpc status output:
// "ExternalIPAddress = 203.0.113.7".
var externalIPLine = regexp.MustCompile(`ExternalIPAddress\s*=\s*(\S+)`)

// ExternalIP implements Backend via upnpc -s.
func (client *Upnpc) ExternalIP(ctx context.Context) (netip.Addr, error) {
	output, err := client.run(ctx, "-s")
	if err != nil {
		return netip.Addr{}, fmt.Errorf("querying gateway status: %w", err)
	}
	groups := externalIPLine.FindStringSubmatch(output)
	if groups == nil {
		return netip.Addr{}, fmt.Errorf("gateway status output has no ExternalIPAddress line")
	}
	address, err := netip.ParseAddr(groups[1])
	if err != nil {
		return netip.Addr{}, fmt.Errorf("gateway reported external address %q: %w", groups[1], err)
	}
	return address, nil
}
