// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package portal

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/nexutils/nex/cmd/nex/cli"
)

type cycleParams struct {
	Wait string `flag:"wait,w" desc:"pause after down and after up" default:"3s"`
}

func cycleCommand() *cli.Command {
	var params cycleParams
	return &cli.Command{
		Name:    "cycle",
		Summary: "Bounce a NetworkManager connection",
		Description: `Take a connection down and bring it back up, wait for the link to
settle, then probe for a portal. Portals key their sessions to the
client association, so a fresh association is how you get a fresh
login page out of a stale session.

The connection name is whatever "nmcli connection show" calls it.`,
		Usage: "nex portal cycle <connection> [flags]",
		Examples: []cli.Example{
			{
				Description: "Bounce the train wifi",
				Command:     "nex portal cycle train-wifi",
			},
			{
				Description: "A network with slow DHCP",
				Command:     "nex portal cycle hotel-wifi --wait 10s",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("expected exactly one connection name")
			}
			return runCycle(ctx, params, args[0], logger)
		},
	}
}

func runCycle(ctx context.Context, params cycleParams, connection string, logger *slog.Logger) error {
	wait, err := time.ParseDuration(params.Wait)
	if err != nil {
		return cli.Validation("bad --wait: %v", err)
	}

	binary, err := exec.LookPath("nmcli")
	if err != nil {
		return cli.NotFound("nmcli not found (cycling connections needs NetworkManager)")
	}

	if err := cycleConnection(ctx, &nmcli{binary: binary}, connection, wait, logger); err != nil {
		return err
	}

	result := probe(ctx, newProbeClient(10*time.Second, nil), probeURL)
	printVerdict(result)
	return nil
}

// cycleConnection runs the down/up sequence. A failed down is only a
// warning: the connection may simply not be active, and the fresh
// association comes from the up.
func cycleConnection(ctx context.Context, manager *nmcli, connection string, wait time.Duration, logger *slog.Logger) error {
	logger.Info("bringing connection down", "connection", connection)
	if err := manager.run(ctx, "connection", "down", connection); err != nil {
		logger.Warn("down failed, continuing", "error", err)
	}
	if err := sleep(ctx, wait); err != nil {
		return cli.Transient("interrupted")
	}

	logger.Info("bringing connection up", "connection", connection)
	if err := manager.run(ctx, "connection", "up", connection); err != nil {
		return cli.Transient("%v", err)
	}
	if err := sleep(ctx, wait); err != nil {
		return cli.Transient("interrupted")
	}
	return nil
}

// nmcli wraps the NetworkManager CLI. The binary path is a field so
// tests can point it at a stub.
type nmcli struct {
	binary string
}

func (n *nmcli) run(ctx context.Context, args ...string) error {
	command := exec.CommandContext(ctx, n.binary, args...)
	output, err := command.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(output))
		if detail == "" {
			detail = err.Error()
		}
		return fmt.Errorf("%s %s: %s", filepath.Base(n.binary), strings.Join(args, " "), detail)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
