// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package upnp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/config"
	"github.com/nexutils/nex/lib/prompt"
	"github.com/nexutils/nex/upnp"
)

type revokeParams struct {
	All     bool          `flag:"all" desc:"revoke every mapping on the gateway"`
	IP      string        `flag:"ip" desc:"revoke every mapping targeting this address"`
	Yes     bool          `flag:"yes,y" desc:"skip the confirmation prompt"`
	Timeout time.Duration `flag:"timeout" desc:"deadline for talking to the gateway" default:"60s"`
	Backend backendFlags
}

func revokeCommand() *cli.Command {
	var params revokeParams

	return &cli.Command{
		Name:    "revoke",
		Summary: "Delete port mappings from the gateway",
		Description: `Delete live port mappings, selected three ways:

  nex upnp revoke 8080 2222/udp   by external port, optionally /tcp or /udp
  nex upnp revoke --ip 10.0.0.17  everything forwarding to one address
  nex upnp revoke --all           everything

With no selectors, prints the mapping table and asks which rows to
revoke; the answer is row ids, "all", or "ip <addr>". Deletion always
asks for confirmation first unless --yes is given.

Failures are reported per mapping and do not stop the rest; the exit
status is non-zero only when every requested deletion failed.`,
		Usage: "nex upnp revoke [external-port[/proto]...] [flags]",
		Examples: []cli.Example{
			{
				Description: "Pick mappings interactively",
				Command:     "nex upnp revoke",
			},
			{
				Description: "Revoke both protocols on 8080 and only udp on 9000",
				Command:     "nex upnp revoke 8080 9000/udp",
			},
			{
				Description: "Revoke everything pointing at a decommissioned host",
				Command:     "nex upnp revoke --ip 192.168.1.50 --yes",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			return runRevoke(ctx, params, args, logger)
		},
	}
}

func runRevoke(ctx context.Context, params revokeParams, args []string, logger *slog.Logger) error {
	selectorCount := 0
	if params.All {
		selectorCount++
	}
	if params.IP != "" {
		selectorCount++
	}
	if len(args) > 0 {
		selectorCount++
	}
	if selectorCount > 1 {
		return cli.Validation("--all, --ip, and positional selectors are mutually exclusive")
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

	mappings, err := backend.ListMappings(ctx)
	if err != nil {
		if errors.Is(err, upnp.ErrListingUnsupported) {
			return cli.Validation("backend %s cannot list mappings", backend.Name())
		}
		return cli.Transient("listing mappings via %s: %w", backend.Name(), err)
	}
	if len(mappings) == 0 {
		fmt.Println("no mappings")
		return nil
	}

	var selected []upnp.Mapping
	switch {
	case params.All:
		selected = mappings
	case params.IP != "":
		selected, err = selectByIP(mappings, params.IP)
	case len(args) > 0:
		selected, err = parseSelectors(args, mappings)
	default:
		fmt.Println(renderMappingTable(mappings))
		answer, promptErr := prompt.New().Line(`revoke which? (row ids, "all", or "ip <addr>")`, "")
		if promptErr != nil {
			return cli.Validation("no selectors given and no interactive input: %v", promptErr)
		}
		selected, err = parsePickerAnswer(answer, mappings)
	}
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		fmt.Println("nothing selected")
		return nil
	}

	if !params.Yes {
		confirmed, confirmErr := prompt.New().Confirm(fmt.Sprintf("revoke %d mapping(s)?", len(selected)), false)
		if confirmErr != nil {
			return cli.Validation("confirmation needs interactive input (or pass --yes): %v", confirmErr)
		}
		if !confirmed {
			fmt.Println("aborted")
			return nil
		}
	}

	failed := 0
	for _, mapping := range selected {
		if err := ctx.Err(); err != nil {
			return cli.Transient("interrupted: %w", err)
		}
		attrs := []any{
			"port", mapping.ExternalPort,
			"protocol", string(mapping.Protocol),
			"target", fmt.Sprintf("%s:%d", mapping.TargetIP, mapping.TargetPort),
		}
		if err := backend.DeleteMapping(ctx, mapping.ExternalPort, mapping.Protocol); err != nil {
			failed++
			logger.Error("revoke failed", append(attrs, "error", err)...)
			continue
		}
		logger.Info("revoked", attrs...)
	}

	fmt.Printf("revoked %d, failed %d\n", len(selected)-failed, failed)
	if failed == len(selected) {
		return &cli.ExitError{Code: 1}
	}
	return nil
}

// parseSelectors resolves positional selectors ("8080", "8080/udp")
// against the live mapping table. A bare port selects every protocol
// mapped on it; port/proto selects exactly that mapping.
func parseSelectors(args []string, mappings []upnp.Mapping) ([]upnp.Mapping, error) {
	var selected []upnp.Mapping
	for _, arg := range args {
		portToken, protoToken, hasProto := strings.Cut(arg, "/")
		port, err := strconv.ParseUint(portToken, 10, 16)
		if err != nil || port == 0 {
			return nil, cli.Validation("selector %q: %q is not an external port", arg, portToken)
		}

		var protocol upnp.Protocol
		if hasProto {
			protocol, err = upnp.ParseProtocol(protoToken)
			if err != nil {
				return nil, cli.Validation("selector %q: %v", arg, err)
			}
			if protocol == upnp.ProtocolBoth {
				return nil, cli.Validation("selector %q: use a bare port to match both protocols", arg)
			}
		}

		matches := selectByPort(mappings, uint16(port), protocol)
		if len(matches) == 0 {
			return nil, cli.NotFound("selector %q matches no mapping", arg)
		}
		selected = append(selected, matches...)
	}
	return dedupeMappings(selected), nil
}

// parsePickerAnswer interprets the interactive selection: "all", an
// "ip <addr>" form, or whitespace-separated row ids from the printed
// table. An empty answer selects nothing.
func parsePickerAnswer(answer string, mappings []upnp.Mapping) ([]upnp.Mapping, error) {
	fields := strings.Fields(answer)
	if len(fields) == 0 {
		return nil, nil
	}
	if len(fields) == 1 && strings.EqualFold(fields[0], "all") {
		return mappings, nil
	}
	if strings.EqualFold(fields[0], "ip") {
		if len(fields) != 2 {
			return nil, cli.Validation(`"ip" takes exactly one address`)
		}
		return selectByIP(mappings, fields[1])
	}

	var selected []upnp.Mapping
	for _, field := range fields {
		id, err := strconv.Atoi(field)
		if err != nil || id < 1 || id > len(mappings) {
			return nil, cli.Validation("%q is not a row id between 1 and %d", field, len(mappings))
		}
		selected = append(selected, mappings[id-1])
	}
	return dedupeMappings(selected), nil
}

func selectByPort(mappings []upnp.Mapping, port uint16, protocol upnp.Protocol) []upnp.Mapping {
	var matches []upnp.Mapping
	for _, mapping := range mappings {
		if mapping.ExternalPort != port {
			continue
		}
		if protocol != "" && mapping.Protocol != protocol {
			continue
		}
		matches = append(matches, mapping)
	}
	return matches
}

func selectByIP(mappings []upnp.Mapping, ip string) ([]upnp.Mapping, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return nil, cli.Validation("%q is not an address", ip)
	}
	var matches []upnp.Mapping
	for _, mapping := range mappings {
		if mapping.TargetIP == addr {
			matches = append(matches, mapping)
		}
	}
	if len(matches) == 0 {
		return nil, cli.NotFound("no mappings target %s", addr)
	}
	return matches, nil
}

// dedupeMappings drops repeated port/protocol pairs so overlapping
// selectors do not delete (and fail) twice.
func dedupeMappings(mappings []upnp.Mapping) []upnp.Mapping {
	type claim struct {
		port     uint16
		protocol upnp.Protocol
	}
	seen := make(map[claim]bool, len(mappings))
	var out []upnp.Mapping
	for _, mapping := range mappings {
		key := claim{mapping.ExternalPort, mapping.Protocol}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, mapping)
	}
	return out
}
