// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package upnp implements the "nex upnp" command group: declarative
// port forwarding against the local internet gateway.
package upnp

import (
	"github.com/nexutils/nex/cmd/nex/cli"
)

// Command returns the "upnp" parent command with all subcommands.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "upnp",
		Summary: "Manage port forwarding on the local gateway",
		Description: `Manage port mappings on the local internet gateway.

The central command is "ensure": it reads a rule file describing the
forwards you want, lists what the gateway currently has, and creates
whatever is missing. Ports already claimed by another host are
reported, never stolen. Run it from cron or a systemd timer to keep
mappings alive across router reboots and lease expiry.

The remaining commands are for inspection and one-off work: "list"
shows the gateway's mapping table, "revoke" deletes mappings by
selector or interactively, and "map", "unmap", and "external-ip" are
single-shot operations that also speak NAT-PMP for gateways without
working UPnP.

Gateway access goes through a backend selected with --backend or the
config file: "upnpc" drives the miniupnpc command-line tool, "igd"
speaks UPnP directly over the network.`,
		Subcommands: []*cli.Command{
			ensureCommand(),
			listCommand(),
			revokeCommand(),
			mapCommand(),
			unmapCommand(),
			externalIPCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Apply the rule file to the gateway",
				Command:     "nex upnp ensure",
			},
			{
				Description: "See what would change without touching the gateway",
				Command:     "nex upnp ensure --dry",
			},
			{
				Description: "Show the gateway's current mapping table",
				Command:     "nex upnp list",
			},
			{
				Description: "Forward a single port over NAT-PMP",
				Command:     "nex upnp map 8080 tcp --pmp",
			},
		},
	}
}
