// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package upnp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/config"
	"github.com/nexutils/nex/upnp"
)

type mapParams struct {
	IP      string        `flag:"ip" desc:"internal address the mapping points at (default: auto-discovered outbound address)"`
	Desc    string        `flag:"desc" desc:"description attached to the mapping (default from config)"`
	Lease   int64         `flag:"lease" desc:"lease in seconds, 0 for permanent (default from config)" default:"-1"`
	Timeout time.Duration `flag:"timeout" desc:"deadline for talking to the gateway" default:"30s"`
	Backend backendFlags
}

func mapCommand() *cli.Command {
	params := mapParams{Backend: backendFlags{allowPMP: true}}

	return &cli.Command{
		Name:    "map",
		Summary: "Forward one port without a rule file",
		Description: `Create a single port mapping. The arguments use the same syntax as
a rule-file line: internal port, optional external port (defaulting
to the internal one), then tcp, udp, or both.

Unlike ensure, map does not look at the gateway's existing table
first; it just asks. With --pmp the request goes over NAT-PMP, which
works on gateways without UPnP but always maps to the requesting host
and treats a permanent lease as two hours.`,
		Usage: "nex upnp map <internal-port> [external-port] <protocol> [flags]",
		Examples: []cli.Example{
			{
				Description: "Forward port 8080 to this host",
				Command:     "nex upnp map 8080 tcp",
			},
			{
				Description: "Expose local ssh on external port 2222",
				Command:     "nex upnp map 22 2222 tcp",
			},
			{
				Description: "Map a game port for both protocols over NAT-PMP",
				Command:     "nex upnp map 25565 both --pmp",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			return runMap(ctx, params, args, logger)
		},
	}
}

func runMap(ctx context.Context, params mapParams, args []string, logger *slog.Logger) error {
	rule, err := parseRuleArgs(args)
	if err != nil {
		return err
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

	target, err := resolveTarget(params.IP, params.Desc, params.Lease, cfg)
	if err != nil {
		return err
	}

	backend, err := params.Backend.Build(ctx, cfg.UPnP)
	if err != nil {
		return err
	}

	for _, protocol := range rule.Protocol.Expand() {
		request := upnp.MapRequest{
			InternalPort: rule.Internal,
			ExternalPort: rule.External,
			Protocol:     protocol,
			TargetIP:     target.IP,
			Description:  target.Description,
			LeaseSeconds: target.LeaseSeconds,
		}
		if err := backend.AddMapping(ctx, request); err != nil {
			logger.Error("mapping failed", "rule", rule.String(), "protocol", string(protocol), "error", err)
			return cli.Transient("%w", err)
		}
		fmt.Printf("mapped %d/%s -> %s:%d\n", rule.External, protocol, target.IP, rule.Internal)
	}
	return nil
}

// parseRuleArgs parses command arguments written as a rule-file line.
func parseRuleArgs(args []string) (upnp.Rule, error) {
	if len(args) == 0 {
		return upnp.Rule{}, cli.Validation("expected: internal-port [external-port] protocol")
	}
	rules, lineErrors, err := upnp.ParseRules(strings.NewReader(strings.Join(args, " ")))
	if err != nil {
		return upnp.Rule{}, cli.Internal("%w", err)
	}
	if len(lineErrors) > 0 {
		return upnp.Rule{}, cli.Validation("%v", lineErrors[0].Err)
	}
	if len(rules) != 1 {
		return upnp.Rule{}, cli.Validation("expected: internal-port [external-port] protocol")
	}
	return rules[0], nil
}
