// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package upnp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/config"
	"github.com/nexutils/nex/upnp"
)

type listParams struct {
	cli.JSONOutput
	Timeout time.Duration `flag:"timeout" desc:"deadline for talking to the gateway" default:"30s"`
	Backend backendFlags
}

type listResult struct {
	Backend    string         `json:"backend"`
	ExternalIP string         `json:"external_ip,omitempty"`
	Mappings   []upnp.Mapping `json:"mappings"`
}

func listCommand() *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Summary: "Show the gateway's current mapping table",
		Description: `List every port mapping the gateway reports, whoever created it.

The row ids are the same ones "nex upnp revoke" accepts, so a typical
cleanup session is list, then revoke with the ids you want gone.`,
		Usage: "nex upnp list [flags]",
		Examples: []cli.Example{
			{
				Description: "Show the mapping table",
				Command:     "nex upnp list",
			},
			{
				Description: "Machine-readable output",
				Command:     "nex upnp list --json",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			return runList(ctx, params, logger)
		},
	}
}

func runList(ctx context.Context, params listParams, logger *slog.Logger) error {
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

	result := listResult{Backend: backend.Name(), Mappings: mappings}
	if external, ipErr := backend.ExternalIP(ctx); ipErr == nil {
		result.ExternalIP = external.String()
	} else {
		logger.Debug("external ip unavailable", "error", ipErr)
	}

	if done, err := params.EmitJSON(result); done {
		return err
	}

	if result.ExternalIP != "" {
		fmt.Printf("external ip: %s\n", result.ExternalIP)
	}
	if len(mappings) == 0 {
		fmt.Println("no mappings")
		return nil
	}
	fmt.Println(renderMappingTable(mappings))
	return nil
}

// renderMappingTable renders live mappings with 1-based row ids. list
// and revoke print the same table so the ids the user sees are the
// ids revoke's picker accepts.
func renderMappingTable(mappings []upnp.Mapping) string {
	rows := make([][]string, len(mappings))
	for i, mapping := range mappings {
		rows[i] = mappingRow(i+1, mapping)
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Faint(true)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("#", "PROTO", "EXTERNAL", "TARGET", "DESCRIPTION", "LEASE").
		Rows(rows...).
		String()
}

// mappingRow renders one mapping as table cells.
func mappingRow(id int, mapping upnp.Mapping) []string {
	lease := "-"
	if mapping.LeaseSeconds > 0 {
		lease = (time.Duration(mapping.LeaseSeconds) * time.Second).String()
	}
	return []string{
		strconv.Itoa(id),
		strings.ToUpper(string(mapping.Protocol)),
		strconv.Itoa(int(mapping.ExternalPort)),
		fmt.Sprintf("%s:%d", mapping.TargetIP, mapping.TargetPort),
		mapping.Description,
		lease,
	}
}
