// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package upnp

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/config"
	"github.com/nexutils/nex/upnp"
)

type unmapParams struct {
	Timeout time.Duration `flag:"timeout" desc:"deadline for talking to the gateway" default:"30s"`
	Backend backendFlags
}

func unmapCommand() *cli.Command {
	params := unmapParams{Backend: backendFlags{allowPMP: true}}

	return &cli.Command{
		Name:    "unmap",
		Summary: "Delete one port mapping by external port",
		Description: `Delete the mapping for an external port and protocol. "both" deletes
the tcp and the udp mapping.

This is the blind single-shot counterpart to "nex upnp revoke": it
does not list the gateway's table first, so it also works over
NAT-PMP. Note that NAT-PMP deletes by internal port — for mappings
created over NAT-PMP the two are the same.`,
		Usage: "nex upnp unmap <external-port> <protocol> [flags]",
		Examples: []cli.Example{
			{
				Description: "Remove the tcp mapping on port 2222",
				Command:     "nex upnp unmap 2222 tcp",
			},
			{
				Description: "Remove both protocols over NAT-PMP",
				Command:     "nex upnp unmap 25565 both --pmp",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			return runUnmap(ctx, params, args, logger)
		},
	}
}

func runUnmap(ctx context.Context, params unmapParams, args []string, logger *slog.Logger) error {
	if len(args) != 2 {
		return cli.Validation("expected: external-port protocol")
	}
	port, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil || port == 0 {
		return cli.Validation("%q is not an external port", args[0])
	}
	protocol, err := upnp.ParseProtocol(args[1])
	if err != nil {
		return cli.Validation("%v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return cli.Validation("loading config: %w", err)
	}

	if params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.Timeout)
		defer cancel()
	}

	backend, err := params.Backend.Build(ctx, cfg.UPnP)
	if err != nil {
		return err
	}

	for _, concrete := range protocol.Expand() {
		if err := backend.DeleteMapping(ctx, uint16(port), concrete); err != nil {
			logger.Error("unmap failed", "port", port, "protocol", string(concrete), "error", err)
			return cli.Transient("%w", err)
		}
		fmt.Printf("unmapped %d/%s\n", port, concrete)
	}
	return nil
}
