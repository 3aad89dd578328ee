// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package upnp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/config"
)

type externalIPParams struct {
	Timeout time.Duration `flag:"timeout" desc:"deadline for talking to the gateway" default:"30s"`
	Backend backendFlags
}

func externalIPCommand() *cli.Command {
	params := externalIPParams{Backend: backendFlags{allowPMP: true}}

	return &cli.Command{
		Name:    "external-ip",
		Summary: "Print the gateway's WAN address",
		Description: `Ask the gateway for its WAN address and print it.

This is the address the gateway itself reports, which can differ from
what the internet sees when the ISP runs carrier-grade NAT; "nex ddns
status" shows the outside view.`,
		Usage: "nex upnp external-ip [flags]",
		Examples: []cli.Example{
			{
				Description: "Print the WAN address",
				Command:     "nex upnp external-ip",
			},
			{
				Description: "Ask over NAT-PMP",
				Command:     "nex upnp external-ip --pmp",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			return runExternalIP(ctx, params)
		},
	}
}

func runExternalIP(ctx context.Context, params externalIPParams) error {
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

	address, err := backend.ExternalIP(ctx)
	if err != nil {
		return cli.Transient("%w", err)
	}
	fmt.Println(address)
	return nil
}
