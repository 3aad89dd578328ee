// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package ddns implements the "nex ddns" command group: keeping
// Cloudflare A records pointed at this machine's public address.
package ddns

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/cloudflare"
	"github.com/nexutils/nex/lib/config"
	"github.com/nexutils/nex/lib/prompt"
)

// Command returns the "ddns" parent command with all subcommands.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "ddns",
		Summary: "Point Cloudflare DNS records at this machine",
		Description: `Dynamic DNS against the Cloudflare API. "update" discovers the
public IPv4 address and rewrites the zone's A records to match;
"status" compares what DNS currently serves against that address.

Credentials come from flags or the config file. The token needs the
Zone / DNS / Edit permission and nothing else; prefer ddns.token_file
over ddns.token so the config file itself stays shareable. The zone
is identified by its hex zone ID, shown on the domain's overview
page in the Cloudflare dashboard.`,
		Subcommands: []*cli.Command{
			updateCommand(),
			statusCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Check whether DNS still matches the public address",
				Command:     "nex ddns status",
			},
			{
				Description: "Update every configured record, no questions (cron)",
				Command:     "nex ddns update --yes",
			},
			{
				Description: "See what an update would touch",
				Command:     "nex ddns update --dry",
			},
		},
	}
}

// resolveToken finds the API token: flags beat the config file, and an
// interactive prompt is the last resort so a bare "nex ddns update"
// works before any config exists.
func resolveToken(flagToken, flagTokenFile string, cfg config.DDNSConfig, prompter *prompt.Prompter) (string, error) {
	switch {
	case flagToken != "":
		return flagToken, nil
	case flagTokenFile != "":
		return readTokenFile(flagTokenFile)
	case cfg.Token != "":
		return cfg.Token, nil
	case cfg.TokenFile != "":
		return readTokenFile(cfg.TokenFile)
	}
	token, err := prompter.Secret("cloudflare api token")
	if err != nil || token == "" {
		return "", cli.Validation("an api token is required (--token, --token-file, or ddns.token in the config)")
	}
	return token, nil
}

func readTokenFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", cli.NotFound("reading token file: %v", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", cli.Validation("token file %s is empty", path)
	}
	return token, nil
}

// classifyAPIError maps Cloudflare failures onto error categories:
// credential problems are forbidden (fix the token, do not retry),
// missing zones are not found, everything else is transient.
func classifyAPIError(err error, operation string) error {
	var apiErr *cloudflare.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == cloudflare.CodeAuthenticationError,
			apiErr.Code == cloudflare.CodeInvalidToken,
			apiErr.StatusCode == http.StatusUnauthorized,
			apiErr.StatusCode == http.StatusForbidden:
			return cli.Forbidden("%s: %v", operation, err)
		case apiErr.StatusCode == http.StatusNotFound:
			return cli.NotFound("%s: %v", operation, err)
		}
	}
	return cli.Transient("%s: %v", operation, err)
}
