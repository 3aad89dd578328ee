// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the nex command tree.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/cmd/nex/ddns"
	"github.com/nexutils/nex/cmd/nex/download"
	"github.com/nexutils/nex/cmd/nex/filegen"
	"github.com/nexutils/nex/cmd/nex/flash"
	"github.com/nexutils/nex/cmd/nex/hash"
	"github.com/nexutils/nex/cmd/nex/matrix"
	"github.com/nexutils/nex/cmd/nex/portal"
	"github.com/nexutils/nex/cmd/nex/rm"
	"github.com/nexutils/nex/cmd/nex/ruin"
	"github.com/nexutils/nex/cmd/nex/speedtest"
	"github.com/nexutils/nex/cmd/nex/systemd"
	"github.com/nexutils/nex/cmd/nex/upnp"
	"github.com/nexutils/nex/cmd/nex/wg"
	"github.com/nexutils/nex/lib/version"
)

// Root returns the root "nex" command with every topic group attached.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "nex",
		Summary: "Personal toolbox for network and file chores",
		Description: `The personal toolbox: small network and file chores that are each a
bit too fiddly for a shell alias.

Network: "upnp" keeps port forwards on the home gateway matching a
rule file, "ddns" points Cloudflare records at the current address,
"wg" summarizes WireGuard peers, "portal" deals with captive wifi,
and "speedtest" measures raw download throughput.

Files: "download" fetches with resume and verification, "hash"
digests a file with several algorithms in one read, "filegen" writes
test files, "flash" images block devices with guard rails, "rm"
deletes with a countdown, and "ruin" corrupts files for glitch art.

Plus "systemd" for generating unit files and "matrix" for homeserver
chores. Configuration lives in $XDG_CONFIG_HOME/nex/config.yaml
(override with NEX_CONFIG); every command documents its flags with
--help.`,
		Subcommands: []*cli.Command{
			upnp.Command(),
			ddns.Command(),
			wg.Command(),
			portal.Command(),
			speedtest.Command(),
			download.Command(),
			hash.Command(),
			filegen.Command(),
			flash.Command(),
			rm.Command(),
			ruin.Command(),
			systemd.Command(),
			matrix.Command(),
			versionCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Reconcile port forwards against the rule file",
				Command:     "nex upnp ensure",
			},
			{
				Description: "Every digest of an image, as JSON",
				Command:     "nex hash ubuntu.iso --all --json",
			},
		},
	}
}

type versionParams struct {
	cli.JSONOutput
	Full bool `flag:"full" desc:"include Go runtime and platform details"`
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func versionCommand() *cli.Command {
	var params versionParams
	return &cli.Command{
		Name:    "version",
		Summary: "Print the nex version",
		Usage:   "nex version [flags]",
		Params:  func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			done, err := params.EmitJSON(versionInfo{
				Version:   version.Short(),
				Commit:    version.Commit(),
				BuildTime: version.BuildTime,
			})
			if err != nil || done {
				return err
			}
			if params.Full {
				fmt.Println(version.Full())
			} else {
				fmt.Println(version.Info())
			}
			return nil
		},
	}
}
