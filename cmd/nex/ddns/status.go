// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package ddns

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/netutil"
)

type statusParams struct {
	cli.JSONOutput

	Config   string        `flag:"config" desc:"config file to load instead of the default"`
	Names    []string      `flag:"name,n" desc:"record names to check (repeatable); overrides the configured list"`
	Resolver string        `flag:"resolver" desc:"DNS server to ask (host or host:port)"`
	Timeout  time.Duration `flag:"timeout" desc:"overall command timeout" default:"30s"`
}

type nameStatus struct {
	Name      string   `json:"name"`
	Addresses []string `json:"addresses"`
	InSync    bool     `json:"in_sync"`
	Error     string   `json:"error,omitempty"`
}

type statusResult struct {
	PublicIP string       `json:"public_ip"`
	Resolver string       `json:"resolver"`
	Records  []nameStatus `json:"records"`
}

func statusCommand() *cli.Command {
	var params statusParams
	return &cli.Command{
		Name:    "status",
		Summary: "Compare DNS answers against the public address",
		Description: `For each configured name, ask the resolver for its A records and
report whether they include the current public IPv4 address. The
query goes straight to the resolver (1.1.1.1 unless configured), so
the answer reflects what the world sees rather than the local stub
resolver's cache.

Names here must be fully qualified; "status" deliberately works
without API credentials, so it cannot expand zone-relative names.

Note the address compared is the one seen from outside. Behind
CGNAT this legitimately differs from what "nex upnp external-ip"
reports, because the gateway's external address is not the carrier's
public one.`,
		Usage: "nex ddns status [flags]",
		Examples: []cli.Example{
			{
				Description: "Check the configured names",
				Command:     "nex ddns status",
			},
			{
				Description: "Check one name against Google's resolver",
				Command:     "nex ddns status -n home.example.org --resolver 8.8.8.8",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			return runStatus(ctx, params, logger)
		},
	}
}

func runStatus(ctx context.Context, params statusParams, logger *slog.Logger) error {
	cfg, err := loadConfig(params.Config)
	if err != nil {
		return err
	}
	names := params.Names
	if len(names) == 0 {
		names = cfg.DDNS.Names
	}
	if len(names) == 0 {
		return cli.Validation("no record names to check (--name or ddns.names in the config)")
	}
	resolver := resolverAddr(firstNonEmpty(params.Resolver, cfg.DDNS.Resolver))

	ctx, cancel := context.WithTimeout(ctx, params.Timeout)
	defer cancel()

	public, err := netutil.PublicIP(ctx, &http.Client{Timeout: 10 * time.Second}, nil)
	if err != nil {
		return cli.Transient("discovering the public IP: %v", err)
	}

	result := statusResult{PublicIP: public.String(), Resolver: resolver}
	for _, name := range names {
		entry := nameStatus{Name: name}
		addrs, queryErr := queryA(ctx, resolver, name)
		if queryErr != nil {
			entry.Error = queryErr.Error()
			logger.Warn("query failed", "name", name, "error", queryErr)
		} else {
			for _, addr := range addrs {
				entry.Addresses = append(entry.Addresses, addr.String())
			}
			entry.InSync = slices.Contains(addrs, public)
		}
		result.Records = append(result.Records, entry)
	}

	if done, err := params.EmitJSON(result); done {
		return err
	}

	fmt.Printf("public ip: %s\n", public)
	for _, entry := range result.Records {
		switch {
		case entry.Error != "":
			fmt.Printf("  %s: query failed\n", entry.Name)
		case len(entry.Addresses) == 0:
			fmt.Printf("  %s: does not resolve\n", entry.Name)
		case entry.InSync:
			fmt.Printf("  %s: %s (in sync)\n", entry.Name, joinAddresses(entry.Addresses))
		default:
			fmt.Printf("  %s: %s (STALE)\n", entry.Name, joinAddresses(entry.Addresses))
		}
	}
	return nil
}

func joinAddresses(addrs []string) string {
	out := addrs[0]
	for _, addr := range addrs[1:] {
		out += ", " + addr
	}
	return out
}
