// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package wg implements the "nex wg" command group: readable WireGuard
// state on top of the wg command's dump format.
package wg

import (
	"github.com/nexutils/nex/cmd/nex/cli"
)

// Command returns the "wg" parent command with all subcommands.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "wg",
		Summary: "Inspect WireGuard interfaces",
		Description: `Present WireGuard state the way "wg show" should: one tree per
interface with humanized transfer counters and handshake ages, a
--censor mode safe to paste into a chat, and --json for scripts.

Reading WireGuard state needs root; run nex under sudo or pass
--sudo to have the wg invocations escalate themselves.`,
		Subcommands: []*cli.Command{
			statusCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "All interfaces, keys and endpoints masked",
				Command:     "nex wg status --sudo --censor",
			},
			{
				Description: "One interface as JSON",
				Command:     "sudo nex wg status wg0 --json",
			},
		},
	}
}
