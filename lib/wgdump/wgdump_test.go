// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package wgdump

import (
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const dumpFixture = "cHJpdmF0ZWtleXByaXZhdGVrZXlwcml2YXRla2V5cHI=\tcHVibGlja2V5cHVibGlja2V5cHVibGlja2V5cHVibGk=\t51820\toff\n" +
	"cGVlcm9uZXBlZXJvbmVwZWVyb25lcGVlcm9uZXBlZXI=\t(none)\t203.0.113.5:51820\t10.0.0.2/32,fd00::2/128\t1756100000\t123456\t654321\t25\n" +
	"cGVlcnR3b3BlZXJ0d29wZWVydHdvcGVlcnR3b3BlZXI=\tcHNrcHNrcHNrcHNrcHNrcHNrcHNrcHNrcHNrcHNrcHM=\t(none)\t10.0.0.3/32\t0\t0\t0\toff\n"

func TestParseDump(t *testing.T) {
	iface, err := parseDump("wg0", dumpFixture)
	if err != nil {
		t.Fatalf("parseDump: %v", err)
	}

	if iface.Name != "wg0" {
		t.Errorf("name = %q", iface.Name)
	}
	if iface.PrivateKey != "cHJpdmF0ZWtleXByaXZhdGVrZXlwcml2YXRla2V5cHI=" {
		t.Errorf("private key = %q", iface.PrivateKey)
	}
	if iface.ListenPort != 51820 {
		t.Errorf("listen port = %d, want 51820", iface.ListenPort)
	}
	if iface.FwMark != "" {
		t.Errorf("fwmark = %q, want empty for off", iface.FwMark)
	}
	if len(iface.Peers) != 2 {
		t.Fatalf("parsed %d peers, want 2", len(iface.Peers))
	}

	first := iface.Peers[0]
	if first.PresharedKey != "" {
		t.Errorf("peer 1 psk = %q, want empty for (none)", first.PresharedKey)
	}
	if first.Endpoint != "203.0.113.5:51820" {
		t.Errorf("peer 1 endpoint = %q", first.Endpoint)
	}
	wantIPs := []netip.Prefix{netip.MustParsePrefix("10.0.0.2/32"), netip.MustParsePrefix("fd00::2/128")}
	if len(first.AllowedIPs) != 2 || first.AllowedIPs[0] != wantIPs[0] || first.AllowedIPs[1] != wantIPs[1] {
		t.Errorf("peer 1 allowed ips = %v, want %v", first.AllowedIPs, wantIPs)
	}
	if !first.LatestHandshake.Equal(time.Unix(1756100000, 0)) {
		t.Errorf("peer 1 handshake = %v", first.LatestHandshake)
	}
	if first.ReceiveBytes != 123456 || first.TransmitBytes != 654321 {
		t.Errorf("peer 1 transfer = %d/%d", first.ReceiveBytes, first.TransmitBytes)
	}
	if first.PersistentKeepalive != 25*time.Second {
		t.Errorf("peer 1 keepalive = %v, want 25s", first.PersistentKeepalive)
	}

	second := iface.Peers[1]
	if second.Endpoint != "" {
		t.Errorf("peer 2 endpoint = %q, want empty", second.Endpoint)
	}
	if !second.LatestHandshake.IsZero() {
		t.Errorf("peer 2 handshake = %v, want zero for never", second.LatestHandshake)
	}
	if second.PersistentKeepalive != 0 {
		t.Errorf("peer 2 keepalive = %v, want 0 for off", second.PersistentKeepalive)
	}
}

func TestParseDumpNoPeers(t *testing.T) {
	iface, err := parseDump("wg0", "cHJpdg==\tcHVi\t0\t0x400\n")
	if err != nil {
		t.Fatalf("parseDump: %v", err)
	}
	if len(iface.Peers) != 0 {
		t.Errorf("peers = %v, want none", iface.Peers)
	}
	if iface.FwMark != "0x400" {
		t.Errorf("fwmark = %q, want 0x400", iface.FwMark)
	}
}

func TestParseDumpMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"interface fields", "a\tb\tc\n"},
		{"listen port", "a\tb\tNaN\toff\n"},
		{"peer fields", "a\tb\t51820\toff\npeer\tonly\tfour\tfields\n"},
		{"peer handshake", "a\tb\t51820\toff\np\t(none)\t(none)\t10.0.0.2/32\trecently\t0\t0\toff\n"},
		{"peer allowed ip", "a\tb\t51820\toff\np\t(none)\t(none)\tnot-a-cidr\t0\t0\t0\toff\n"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := parseDump("wg0", test.input); err == nil {
				t.Fatalf("parseDump(%q) should fail", test.input)
			}
		})
	}
}

func TestCensor(t *testing.T) {
	iface, err := parseDump("wg0", dumpFixture)
	if err != nil {
		t.Fatalf("parseDump: %v", err)
	}
	iface.Censor()
	if iface.PrivateKey != "" {
		t.Error("censor kept the private key")
	}
	for i, peer := range iface.Peers {
		if peer.PresharedKey != "" {
			t.Errorf("censor kept peer %d preshared key", i)
		}
	}
	if iface.PublicKey == "" || iface.Peers[0].PublicKey == "" {
		t.Error("censor should keep public keys")
	}
}

// stubWG writes a shell script standing in for the wg binary.
func stubWG(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("writing stub: %v", err)
	}
	return path
}

func TestInterfaces(t *testing.T) {
	client := &Client{WG: stubWG(t, `echo "wg0 wg1"`)}
	names, err := client.Interfaces(context.Background())
	if err != nil {
		t.Fatalf("Interfaces: %v", err)
	}
	if len(names) != 2 || names[0] != "wg0" || names[1] != "wg1" {
		t.Fatalf("names = %v, want [wg0 wg1]", names)
	}
}

func TestInterfacesEmpty(t *testing.T) {
	client := &Client{WG: stubWG(t, `exit 0`)}
	names, err := client.Interfaces(context.Background())
	if err != nil {
		t.Fatalf("Interfaces: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("names = %v, want none", names)
	}
}

func TestShowRunsThroughSudo(t *testing.T) {
	// The sudo stub execs its arguments, proving the command line is
	// "sudo wg show <iface> dump".
	sudo := filepath.Join(t.TempDir(), "sudo")
	if err := os.WriteFile(sudo, []byte("#!/bin/sh\nexec \"$@\"\n"), 0o755); err != nil {
		t.Fatalf("writing sudo stub: %v", err)
	}
	client := &Client{
		WG:   stubWG(t, `printf 'cHJpdg==\tcHVi\t51820\toff\n'`),
		Sudo: sudo,
	}
	iface, err := client.Show(context.Background(), "wg0")
	if err != nil {
		t.Fatalf("Show: %v", err)
	}
	if iface.ListenPort != 51820 {
		t.Errorf("listen port = %d", iface.ListenPort)
	}
}

func TestShowCommandFailure(t *testing.T) {
	client := &Client{WG: stubWG(t, `echo "Unable to access interface: Operation not permitted" >&2
exit 1`)}
	if _, err := client.Show(context.Background(), "wg0"); err == nil {
		t.Fatal("Show should fail when wg exits non-zero")
	}
}
