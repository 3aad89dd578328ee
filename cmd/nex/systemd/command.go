// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package systemd implements the "nex systemd" command group for
// generating and installing service units.
package systemd

import (
	"github.com/nexutils/nex/cmd/nex/cli"
)

// Command returns the "systemd" parent command with all subcommands.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "systemd",
		Summary: "Generate and install systemd service units",
		Description: `Turn a command line into a systemd service without hand-writing unit
files.

"gen" builds a service unit from flags (prompting for anything
essential that is missing), installs it into the systemd search path,
and offers to enable and start it. Resource limits, restart policy,
and network ordering are covered; for anything more exotic, generate
with --stdout and edit the result.`,
		Subcommands: []*cli.Command{
			genCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Wrap a script as a system service and start it",
				Command:     "sudo nex systemd gen my-bot --description 'Chat bot' --exec '/opt/bot/run.sh' --restart always --start",
			},
			{
				Description: "Generate a user unit",
				Command:     "nex systemd gen sync --description 'Mail sync' --exec 'mbsync -a' --user",
			},
		},
	}
}
