// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package upnp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/config"
	"github.com/nexutils/nex/upnp"
)

type ensureParams struct {
	Config  string        `flag:"config" desc:"rule file path (default: upnp-rules.conf in the nex config directory)"`
	Dry     bool          `flag:"dry" desc:"plan and report without touching the gateway"`
	IP      string        `flag:"ip" desc:"internal address mappings point at (default: auto-discovered outbound address)"`
	Desc    string        `flag:"desc" desc:"description attached to created mappings (default from config)"`
	Lease   int64         `flag:"lease" desc:"mapping lease in seconds, 0 for permanent (default from config)" default:"-1"`
	Timeout time.Duration `flag:"timeout" desc:"overall deadline for the run" default:"60s"`
	Backend backendFlags
}

func ensureCommand() *cli.Command {
	var params ensureParams

	return &cli.Command{
		Name:    "ensure",
		Summary: "Create the mappings the rule file asks for",
		Description: `Reconcile the gateway's port mappings against a rule file.

The rule file lists one desired forward per line ("internal_port
[external_port] protocol"). ensure lists what the gateway currently
maps, plans the difference, and creates every missing mapping. Ports
already claimed by another host are reported and skipped, never
stolen; mappings already pointing at this host are left alone.
Nothing is ever deleted — that is what "nex upnp revoke" is for.

On the first run with no rule file, a commented example is written to
the default path and the command exits so you can edit it.

The run always completes: malformed rule lines, port conflicts, and
per-mapping failures are logged as they happen and counted in the
final summary, and the exit status is zero unless the rule file is
unreadable or the gateway cannot be reached at all.`,
		Usage: "nex upnp ensure [flags]",
		Examples: []cli.Example{
			{
				Description: "Apply the default rule file",
				Command:     "nex upnp ensure",
			},
			{
				Description: "Plan only, without touching the gateway",
				Command:     "nex upnp ensure --dry",
			},
			{
				Description: "Point mappings at another host with a one-hour lease",
				Command:     "nex upnp ensure --ip 192.168.1.50 --lease 3600",
			},
			{
				Description: "Talk UPnP directly instead of running upnpc",
				Command:     "nex upnp ensure --backend igd",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			return runEnsure(ctx, params, logger)
		},
	}
}

func runEnsure(ctx context.Context, params ensureParams, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return cli.Validation("loading config: %w", err)
	}

	rules, createdExample, err := loadRules(params.Config, cfg, logger)
	if err != nil || createdExample {
		return err
	}
	if len(rules) == 0 {
		fmt.Println("rule file has no rules; nothing to do")
		return nil
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

	live, err := backend.ListMappings(ctx)
	if err != nil {
		if errors.Is(err, upnp.ErrListingUnsupported) {
			return cli.Validation("backend %s cannot list mappings, so there is no state to reconcile against", backend.Name())
		}
		return cli.Transient("listing mappings via %s: %w", backend.Name(), err)
	}
	logger.Debug("listed live mappings", "backend", backend.Name(), "count", len(live))

	plan := upnp.BuildPlan(rules, live, target)
	reportConflicts(ctx, plan.Conflicts, logger)

	result, err := upnp.Apply(ctx, backend, plan, upnp.ApplyOptions{
		DryRun: params.Dry,
		Observe: func(action upnp.Action, actionErr error) {
			attrs := []any{
				"rule", action.Rule.String(),
				"target", fmt.Sprintf("%s:%d", target.IP, action.Request.InternalPort),
			}
			switch {
			case actionErr != nil:
				logger.Error("mapping failed", append(attrs, "error", actionErr)...)
			case params.Dry:
				logger.Info("would map", attrs...)
			default:
				logger.Info("mapped", attrs...)
			}
		},
	})

	verb := "added"
	if params.Dry {
		verb = "would add"
	}
	fmt.Printf("%s %d, skipped %d, failed %d\n", verb, len(result.Added), len(result.Skipped), len(result.Failed))
	return err
}

// loadRules reads and parses the rule file, warning about malformed
// lines. When no explicit path was given and the default file does not
// exist, it writes a commented example there instead and reports
// created=true; the caller exits cleanly so the user can edit the
// file.
func loadRules(explicit string, cfg *config.Config, logger *slog.Logger) ([]upnp.Rule, bool, error) {
	path := explicit
	if path == "" {
		path = cfg.UPnP.Rules
	}
	if path == "" {
		return nil, false, cli.Internal("no rule file path configured")
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && explicit == "" {
			if writeErr := writeExampleRules(path); writeErr != nil {
				return nil, false, cli.Internal("writing example rule file: %w", writeErr)
			}
			fmt.Printf("wrote an example rule file to %s — edit it and run again\n", path)
			return nil, true, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, cli.NotFound("rule file %s does not exist", path)
		}
		return nil, false, cli.Internal("opening rule file: %w", err)
	}
	defer file.Close()

	rules, lineErrors, err := upnp.ParseRules(file)
	if err != nil {
		return nil, false, cli.Internal("%w", err)
	}
	for _, lineError := range lineErrors {
		logger.Warn("skipping malformed rule",
			"file", path, "line", lineError.Line, "input", lineError.Input, "error", lineError.Err)
	}
	return rules, false, nil
}

func writeExampleRules(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(upnp.ExampleRules), 0o644)
}

// reportConflicts warns about every planned mapping that lost its port
// to an existing claim. Identical claims — the mapping already points
// where we want — are routine and logged at info.
func reportConflicts(ctx context.Context, conflicts []upnp.Conflict, logger *slog.Logger) {
	for _, conflict := range conflicts {
		if conflict.Identical {
			logger.Info("already mapped",
				"rule", conflict.Rule.String(), "protocol", string(conflict.Protocol))
			continue
		}
		attrs := []any{
			"rule", conflict.Rule.String(),
			"protocol", string(conflict.Protocol),
			"held_by", fmt.Sprintf("%s:%d", conflict.Existing.TargetIP, conflict.Existing.TargetPort),
		}
		if conflict.PlannedEarlier {
			attrs = append(attrs, "note", "claimed by an earlier rule in this file")
		} else if name := reverseName(ctx, conflict.Existing.TargetIP); name != "" {
			attrs = append(attrs, "holder_name", name)
		}
		logger.Warn("port already claimed", attrs...)
	}
}

// reverseName looks up the PTR name of the claiming address so
// conflict warnings can say who holds the port. The lookup gets one
// second; a slow resolver is not worth stalling the run for.
func reverseName(ctx context.Context, addr netip.Addr) string {
	if !addr.IsValid() {
		return ""
	}
	lookupCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	names, err := net.DefaultResolver.LookupAddr(lookupCtx, addr.String())
	if err != nil || len(names) == 0 {
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}
