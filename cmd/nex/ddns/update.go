// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package ddns

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/cloudflare"
	"github.com/nexutils/nex/lib/config"
	"github.com/nexutils/nex/lib/netutil"
	"github.com/nexutils/nex/lib/progress"
	"github.com/nexutils/nex/lib/prompt"
)

type updateParams struct {
	Config    string   `flag:"config" desc:"config file to load instead of the default"`
	Token     string   `flag:"token" desc:"Cloudflare API token"`
	TokenFile string   `flag:"token-file" desc:"file containing only the API token"`
	Zone      string   `flag:"zone" desc:"Cloudflare zone ID"`
	Names     []string `flag:"name,n" desc:"record names to update (repeatable); overrides the configured list"`
	IP        string   `flag:"ip" desc:"address to write instead of the discovered public IP"`
	OldIP     string   `flag:"old-ip" desc:"only touch records currently pointing at this address"`
	UnlessIP  string   `flag:"unless-ip" desc:"leave records pointing at this address alone"`
	Dry       bool     `flag:"dry" desc:"print the plan without changing anything"`
	Yes       bool     `flag:"yes,y" desc:"skip the confirmation prompt"`
	Verify    bool     `flag:"verify" desc:"poll DNS after updating until the new address propagates"`
	Resolver  string   `flag:"resolver" desc:"DNS server for --verify (host or host:port)"`

	Timeout       time.Duration `flag:"timeout" desc:"overall command timeout" default:"2m"`
	VerifyTimeout time.Duration `flag:"verify-timeout" desc:"how long --verify waits for propagation" default:"5m"`
}

func updateCommand() *cli.Command {
	var params updateParams
	return &cli.Command{
		Name:    "update",
		Summary: "Rewrite A records to the current public address",
		Description: `Discover the public IPv4 address (a fallback chain of plain-text IP
services), list the zone's A records, and PATCH every selected
record that points elsewhere. Records already carrying the address
are reported and left alone.

Selection starts from --name (or ddns.names in the config; with
neither, every A record in the zone is a candidate) and can be
narrowed by address: --old-ip touches only records still pointing at
a previous address, --unless-ip protects records that intentionally
point somewhere else. Names may be FQDNs or zone-relative ("home"
for home.example.org, "@" for the apex).

The plan is shown and confirmed before anything changes; --dry stops
there, --yes skips the question for cron. --verify keeps polling the
resolver afterwards until every updated name serves the new address,
which bounds how stale downstream caches can be before the command
reports success.`,
		Usage: "nex ddns update [flags]",
		Examples: []cli.Example{
			{
				Description: "Update the configured names interactively",
				Command:     "nex ddns update",
			},
			{
				Description: "Migrate everything still pointing at the old address",
				Command:     "nex ddns update --old-ip 198.51.100.7 --yes",
			},
			{
				Description: "Update and wait until DNS agrees",
				Command:     "nex ddns update --yes --verify",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			return runUpdate(ctx, params, logger)
		},
	}
}

func runUpdate(ctx context.Context, params updateParams, logger *slog.Logger) error {
	cfg, err := loadConfig(params.Config)
	if err != nil {
		return err
	}

	zone := params.Zone
	if zone == "" {
		zone = cfg.DDNS.Zone
	}
	if zone == "" {
		return cli.Validation("a zone ID is required (--zone or ddns.zone in the config)")
	}
	names := params.Names
	if len(names) == 0 {
		names = cfg.DDNS.Names
	}
	for _, flagAddr := range []string{params.OldIP, params.UnlessIP} {
		if flagAddr == "" {
			continue
		}
		if _, parseErr := netip.ParseAddr(flagAddr); parseErr != nil {
			return cli.Validation("%q is not an IP address", flagAddr)
		}
	}

	prompter := prompt.New()
	token, err := resolveToken(params.Token, params.TokenFile, cfg.DDNS, prompter)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, params.Timeout)
	defer cancel()

	target, err := targetAddress(ctx, params.IP)
	if err != nil {
		return err
	}
	fmt.Printf("public ip: %s\n", target)

	client, err := cloudflare.NewClient(cloudflare.ClientConfig{
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logger,
	})
	if err != nil {
		return cli.Validation("%v", err)
	}

	verified, err := client.VerifyToken(ctx)
	if err != nil {
		return classifyAPIError(err, "verifying token")
	}
	if verified.Status != "active" {
		return cli.Forbidden("cloudflare token is %s, not active", verified.Status)
	}

	records, err := client.ListDNSRecords(ctx, zone)
	if err != nil {
		return classifyAPIError(err, "listing records")
	}

	sel := selectRecords(records, names, params.OldIP, params.UnlessIP, target.String())
	if len(sel.Update) == 0 && len(sel.UpToDate) == 0 {
		return cli.NotFound("no A records in the zone match the selection")
	}
	printPlan(sel, target)
	if len(sel.Update) == 0 {
		fmt.Println("everything already points at the current address")
		return nil
	}
	if params.Dry {
		fmt.Printf("would update %d record(s)\n", len(sel.Update))
		return nil
	}

	if !params.Yes {
		confirmed, confirmErr := prompter.Confirm(fmt.Sprintf("update %d record(s) to %s?", len(sel.Update), target), true)
		if confirmErr != nil {
			return cli.Validation("confirmation needs interactive input (or pass --yes)")
		}
		if !confirmed {
			fmt.Println("aborted")
			return nil
		}
	}

	outcomes := make([]updateOutcome, 0, len(sel.Update))
	tracker := progress.NewTracker(logger)
	task := tracker.Add("updating records", int64(len(sel.Update)))
	err = tracker.Run(ctx, func(ctx context.Context) error {
		for _, record := range sel.Update {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			_, updateErr := client.UpdateRecordContent(ctx, zone, record.ID, target.String())
			outcomes = append(outcomes, updateOutcome{record: record, err: updateErr})
			task.Add(1)
		}
		task.Done()
		return nil
	})
	if err != nil {
		return cli.Transient("interrupted: %v", err)
	}

	failed := 0
	var updated []string
	for _, outcome := range outcomes {
		if outcome.err != nil {
			failed++
			logger.Error("update failed", "record", outcome.record.Name, "error", outcome.err)
			continue
		}
		updated = append(updated, outcome.record.Name)
		fmt.Printf("updated %s -> %s\n", outcome.record.Name, target)
	}
	if failed > 0 {
		return cli.Transient("%d of %d updates failed", failed, len(sel.Update))
	}

	if params.Verify {
		resolver := resolverAddr(firstNonEmpty(params.Resolver, cfg.DDNS.Resolver))
		return awaitPropagation(ctx, resolver, updated, target, params.VerifyTimeout, logger)
	}
	return nil
}

type updateOutcome struct {
	record cloudflare.Record
	err    error
}

// selection partitions the zone's matching A records by whether they
// already carry the target address.
type selection struct {
	Update   []cloudflare.Record
	UpToDate []cloudflare.Record
}

func selectRecords(records []cloudflare.Record, names []string, oldIP, unlessIP, target string) selection {
	var sel selection
	for _, record := range records {
		if record.Type != "A" {
			continue
		}
		if len(names) > 0 && !matchesAnyName(record, names) {
			continue
		}
		if oldIP != "" && record.Content != oldIP {
			continue
		}
		if unlessIP != "" && record.Content == unlessIP {
			continue
		}
		if record.Content == target {
			sel.UpToDate = append(sel.UpToDate, record)
		} else {
			sel.Update = append(sel.Update, record)
		}
	}
	return sel
}

func matchesAnyName(record cloudflare.Record, names []string) bool {
	for _, name := range names {
		if matchesName(record, name) {
			return true
		}
	}
	return false
}

// matchesName accepts the record's FQDN, a zone-relative name, or "@"
// for the apex.
func matchesName(record cloudflare.Record, name string) bool {
	name = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))
	recordName := strings.ToLower(record.Name)
	zoneName := strings.ToLower(record.ZoneName)
	switch {
	case name == "@":
		return recordName == zoneName
	case name == recordName:
		return true
	case zoneName != "" && name+"."+zoneName == recordName:
		return true
	}
	return false
}

func printPlan(sel selection, target netip.Addr) {
	for _, record := range sel.UpToDate {
		fmt.Printf("  %s: already %s\n", record.Name, record.Content)
	}
	for _, record := range sel.Update {
		marker := ""
		if record.Proxied {
			marker = " (proxied)"
		}
		fmt.Printf("  %s: %s -> %s%s\n", record.Name, record.Content, target, marker)
	}
}

// targetAddress returns the address to write: the --ip override, or
// the discovered public IPv4.
func targetAddress(ctx context.Context, override string) (netip.Addr, error) {
	if override != "" {
		addr, err := netip.ParseAddr(override)
		if err != nil {
			return netip.Addr{}, cli.Validation("%q is not an IP address", override)
		}
		if !addr.Is4() {
			return netip.Addr{}, cli.Validation("A records need an IPv4 address, got %s", addr)
		}
		return addr, nil
	}
	addr, err := netutil.PublicIP(ctx, &http.Client{Timeout: 10 * time.Second}, nil)
	if err != nil {
		return netip.Addr{}, cli.Transient("discovering the public IP: %v (pass --ip)", err)
	}
	return addr, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return nil, cli.Validation("%v", err)
		}
		return cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, cli.Validation("%v", err)
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
