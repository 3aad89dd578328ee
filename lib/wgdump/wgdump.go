// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package wgdump reads WireGuard interface state through the wg
// command's machine-readable dump format. One `wg show <iface> dump`
// invocation carries the whole picture (keys, listen port, and every
// peer with handshake and transfer counters) in a tab-separated
// layout the wg man page documents as stable.
package wgdump

import (
	"context"
	"fmt"
	"net/netip"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Client runs the wg binary. WireGuard state requires root, so Sudo
// is usually set; an empty Sudo runs wg directly for setups with
// CAP_NET_ADMIN granted.
type Client struct {
	// WG is the wg executable. Empty means "wg".
	WG string

	// Sudo prefixes every invocation when non-empty, e.g.
	// "/usr/bin/sudo".
	Sudo string
}

// NewClient returns a wg client using sudo. Pass "" to skip sudo.
func NewClient(sudo string) *Client {
	return &Client{WG: "wg", Sudo: sudo}
}

func (client *Client) command(ctx context.Context, args ...string) *exec.Cmd {
	binary := client.WG
	if binary == "" {
		binary = "wg"
	}
	if client.Sudo != "" {
		return exec.CommandContext(ctx, client.Sudo, append([]string{binary}, args...)...)
	}
	return exec.CommandContext(ctx, binary, args...)
}

// Interfaces lists the active WireGuard interface names.
func (client *Client) Interfaces(ctx context.Context) ([]string, error) {
	output, err := client.command(ctx, "show", "interfaces").Output()
	if err != nil {
		return nil, fmt.Errorf("wg show interfaces: %w", err)
	}
	return strings.Fields(string(output)), nil
}

// Show returns the full state of one interface.
func (client *Client) Show(ctx context.Context, name string) (*Interface, error) {
	output, err := client.command(ctx, "show", name, "dump").Output()
	if err != nil {
		return nil, fmt.Errorf("wg show %s dump: %w", name, err)
	}
	return parseDump(name, string(output))
}

// Interface is the state of one WireGuard interface.
type Interface struct {
	Name       string `json:"name"`
	PrivateKey string `json:"private_key,omitempty"`
	PublicKey  string `json:"public_key"`
	ListenPort uint16 `json:"listen_port"`
	FwMark     string `json:"fwmark,omitempty"`
	Peers      []Peer `json:"peers"`
}

// Peer is one configured peer of an interface.
type Peer struct {
	PublicKey    string         `json:"public_key"`
	PresharedKey string         `json:"preshared_key,omitempty"`
	Endpoint     string         `json:"endpoint,omitempty"`
	AllowedIPs   []netip.Prefix `json:"allowed_ips"`

	// LatestHandshake is zero when the peer has never completed a
	// handshake.
	LatestHandshake time.Time `json:"latest_handshake,omitzero"`

	ReceiveBytes  int64 `json:"receive_bytes"`
	TransmitBytes int64 `json:"transmit_bytes"`

	// PersistentKeepalive is zero when keepalive is off.
	PersistentKeepalive time.Duration `json:"persistent_keepalive,omitempty"`
}

// Censor strips key material for safe display: the private key and
// every preshared key are blanked, public keys stay.
func (iface *Interface) Censor() {
	iface.PrivateKey = ""
	for i := range iface.Peers {
		iface.Peers[i].PresharedKey = ""
	}
}

// none is the dump format's empty-field marker.
const none = "(none)"

// parseDump parses `wg show <name> dump` output. The first line is
// the interface (private key, public key, listen port, fwmark); each
// further line is one peer (public key, preshared key, endpoint,
// allowed IPs, latest handshake, rx, tx, keepalive), all
// tab-separated.
func parseDump(name, output string) (*Interface, error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, fmt.Errorf("wg dump for %s is empty", name)
	}

	head := strings.Split(lines[0], "\t")
	if len(head) != 4 {
		return nil, fmt.Errorf("wg dump interface line has %d fields, want 4", len(head))
	}
	listenPort, err := strconv.ParseUint(head[2], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("wg dump listen port %q: %w", head[2], err)
	}
	iface := &Interface{
		Name:       name,
		PrivateKey: emptyIfNone(head[0]),
		PublicKey:  head[1],
		ListenPort: uint16(listenPort),
	}
	if head[3] != "off" {
		iface.FwMark = head[3]
	}

	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		peer, err := parsePeerLine(line)
		if err != nil {
			return nil, err
		}
		iface.Peers = append(iface.Peers, peer)
	}
	return iface, nil
}

func parsePeerLine(line string) (Peer, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 8 {
		return Peer{}, fmt.Errorf("wg dump peer line has %d fields, want 8", len(fields))
	}
	peer := Peer{
		PublicKey:    fields[0],
		PresharedKey: emptyIfNone(fields[1]),
		Endpoint:     emptyIfNone(fields[2]),
	}

	if fields[3] != none && fields[3] != "" {
		for _, cidr := range strings.Split(fields[3], ",") {
			prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
			if err != nil {
				return Peer{}, fmt.Errorf("peer %s allowed ip %q: %w", peer.PublicKey, cidr, err)
			}
			peer.AllowedIPs = append(peer.AllowedIPs, prefix)
		}
	}

	handshake, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return Peer{}, fmt.Errorf("peer %s handshake %q: %w", peer.PublicKey, fields[4], err)
	}
	if handshake > 0 {
		peer.LatestHandshake = time.Unix(handshake, 0)
	}

	if peer.ReceiveBytes, err = strconv.ParseInt(fields[5], 10, 64); err != nil {
		return Peer{}, fmt.Errorf("peer %s rx %q: %w", peer.PublicKey, fields[5], err)
	}
	if peer.TransmitBytes, err = strconv.ParseInt(fields[6], 10, 64); err != nil {
		return Peer{}, fmt.Errorf("peer %s tx %q: %w", peer.PublicKey, fields[6], err)
	}

	if fields[7] != "off" {
		seconds, err := strconv.Atoi(fields[7])
		if err != nil {
			return Peer{}, fmt.Errorf("peer %s keepalive %q: %w", peer.PublicKey, fields[7], err)
		}
		peer.PersistentKeepalive = time.Duration(seconds) * time.Second
	}
	return peer, nil
}

func emptyIfNone(field string) string {
	if field == none {
		return ""
	}
	return field
}
