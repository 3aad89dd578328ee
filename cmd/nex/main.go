// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/cmd/nex/commands"
)

func main() {
	err := run()
	if err != nil {
		// Commands that print their own output return an ExitError with
		// the desired exit code. Don't print a redundant "error:" line
		// for those, or for a context cancelled by Ctrl-C.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	os.Exit(cli.ExitCodeFor(err))
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := cli.NewCommandLogger()
	return commands.Root().Execute(ctx, os.Args[1:], logger)
}
