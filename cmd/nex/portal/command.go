// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package portal implements the "nex portal" command group for
// detecting and getting through captive portals.
package portal

import (
	"github.com/nexutils/nex/cmd/nex/cli"
)

// Command returns the "portal" command group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "portal",
		Summary: "Detect and log in to captive portals",
		Description: `Helpers for hotel, train, and airport wifi: figure out whether a
portal is intercepting traffic, push a login form at it without
opening a browser, and bounce the wifi connection when a portal
session goes stale.

Detection uses Firefox's canonical probe page over plain HTTP, the
same mechanism browsers use to pop their "log in to network" bar.`,
		Examples: []cli.Example{
			{
				Description: "Am I behind a portal?",
				Command:     "nex portal status",
			},
			{
				Description: "Accept the terms the way the portal's own form would",
				Command:     "nex portal login -u 'http://10.0.0.1:3990/logon' -f username=guest -f accept=true --method POST",
			},
			{
				Description: "Get a fresh portal session out of a stale one",
				Command:     "nex portal cycle hotel-wifi --wait 5s",
			},
		},
		Subcommands: []*cli.Command{
			statusCommand(),
			loginCommand(),
			cycleCommand(),
		},
	}
}
