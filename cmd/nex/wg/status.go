// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package wg

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
	"github.com/dustin/go-humanize"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/wgdump"
)

// censored replaces endpoints under --censor. Key material is blanked
// outright; the endpoint keeps a placeholder so a peer that has
// connected still looks different from one that never has.
const censored = "(censored)"

type statusParams struct {
	cli.JSONOutput

	Censor  bool          `flag:"censor" desc:"mask keys and endpoints for safe sharing"`
	Sudo    bool          `flag:"sudo" desc:"run wg through sudo"`
	Timeout time.Duration `flag:"timeout" desc:"overall command timeout" default:"15s"`
}

type statusResult struct {
	Interfaces []*wgdump.Interface `json:"interfaces"`
}

func statusCommand() *cli.Command {
	var params statusParams
	return &cli.Command{
		Name:    "status",
		Summary: "Show WireGuard interfaces and peers",
		Description: `Read one interface (or every active interface when none is named)
through "wg show <iface> dump" and render a tree per interface:
listen port, public key, and each peer with its endpoint, allowed
IPs, handshake age, and transfer counters.

--censor blanks private and preshared keys, truncates public keys,
and masks endpoints, so the output can go into a bug report without
leaking addresses. --json emits the parsed state instead; without
--censor that includes the private key, exactly like the dump
format itself.`,
		Usage: "nex wg status [interface] [flags]",
		Examples: []cli.Example{
			{
				Description: "Every active interface",
				Command:     "sudo nex wg status",
			},
			{
				Description: "One interface, shareable",
				Command:     "nex wg status wg0 --sudo --censor",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			return runStatus(ctx, params, args, logger)
		},
	}
}

func runStatus(ctx context.Context, params statusParams, args []string, logger *slog.Logger) error {
	if len(args) > 1 {
		return cli.Validation("unexpected argument: %s", args[1])
	}
	ctx, cancel := context.WithTimeout(ctx, params.Timeout)
	defer cancel()

	sudo := ""
	if params.Sudo {
		sudo = "sudo"
	}
	client := wgdump.NewClient(sudo)

	names := args
	if len(names) == 0 {
		listed, err := client.Interfaces(ctx)
		if err != nil {
			return cli.Transient("listing wireguard interfaces: %v (is wireguard-tools installed?)", err)
		}
		if len(listed) == 0 {
			fmt.Println("no wireguard interfaces")
			return nil
		}
		names = listed
	}

	interfaces := make([]*wgdump.Interface, 0, len(names))
	for _, name := range names {
		iface, err := client.Show(ctx, name)
		if err != nil {
			if len(args) == 1 {
				return cli.NotFound("interface %s: %v", name, err)
			}
			// Interfaces can vanish between the list and the dump.
			logger.Warn("skipping interface", "interface", name, "error", err)
			continue
		}
		if params.Censor {
			censorInterface(iface)
		}
		interfaces = append(interfaces, iface)
	}

	if done, err := params.EmitJSON(statusResult{Interfaces: interfaces}); done {
		return err
	}
	for i, iface := range interfaces {
		if i > 0 {
			fmt.Println()
		}
		fmt.Println(renderInterface(iface))
	}
	return nil
}

// censorInterface strips what must not leave the machine: private and
// preshared keys disappear, endpoints are masked, and public keys are
// truncated enough to stay recognizable without being harvestable.
func censorInterface(iface *wgdump.Interface) {
	iface.Censor()
	iface.PublicKey = truncateKey(iface.PublicKey)
	for i := range iface.Peers {
		iface.Peers[i].PublicKey = truncateKey(iface.Peers[i].PublicKey)
		if iface.Peers[i].Endpoint != "" {
			iface.Peers[i].Endpoint = censored
		}
	}
}

func truncateKey(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8] + "…"
}

func renderInterface(iface *wgdump.Interface) string {
	root := tree.Root(iface.Name).
		EnumeratorStyle(lipgloss.NewStyle().Faint(true)).
		Child(
			"public key: "+iface.PublicKey,
			fmt.Sprintf("listen port: %d", iface.ListenPort),
		)
	if iface.FwMark != "" {
		root.Child("fwmark: " + iface.FwMark)
	}
	if len(iface.Peers) == 0 {
		root.Child("no peers")
	}
	for _, peer := range iface.Peers {
		root.Child(renderPeer(peer))
	}
	return root.String()
}

func renderPeer(peer wgdump.Peer) *tree.Tree {
	node := tree.Root("peer " + peer.PublicKey)
	if peer.Endpoint != "" {
		node.Child("endpoint: " + peer.Endpoint)
	}
	if len(peer.AllowedIPs) > 0 {
		cidrs := make([]string, len(peer.AllowedIPs))
		for i, prefix := range peer.AllowedIPs {
			cidrs[i] = prefix.String()
		}
		node.Child("allowed ips: " + strings.Join(cidrs, ", "))
	}
	node.Child("handshake: " + handshakeAge(peer.LatestHandshake))
	node.Child(fmt.Sprintf("transfer: %s received, %s sent",
		humanize.IBytes(uint64(peer.ReceiveBytes)),
		humanize.IBytes(uint64(peer.TransmitBytes))))
	if peer.PersistentKeepalive > 0 {
		node.Child("keepalive: every " + peer.PersistentKeepalive.String())
	}
	return node
}

func handshakeAge(handshake time.Time) string {
	if handshake.IsZero() {
		return "never"
	}
	return humanize.Time(handshake)
}
