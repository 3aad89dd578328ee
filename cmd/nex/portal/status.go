// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package portal

import (
	"context"
	"log/slog"
	"time"

	"github.com/nexutils/nex/cmd/nex/cli"
)

type statusParams struct {
	cli.JSONOutput
	Timeout string `flag:"timeout" desc:"probe timeout" default:"10s"`
}

func statusCommand() *cli.Command {
	var params statusParams
	return &cli.Command{
		Name:    "status",
		Summary: "Check whether a captive portal is in the way",
		Description: `Fetch the Firefox detection page with redirects disabled and report
one of three verdicts: open (the page came back intact), captive (a
portal redirected or rewrote it; the portal URL is printed when the
portal revealed one), or offline (nothing answered at all).

Open and captive both exit 0: detection worked either way. Offline
is an error.`,
		Usage: "nex portal status [flags]",
		Examples: []cli.Example{
			{
				Description: "Plain check",
				Command:     "nex portal status",
			},
			{
				Description: "Feed the portal URL to a script",
				Command:     "nex portal status --json | jq -r .portal_url",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 0 {
				return cli.Validation("status takes no arguments")
			}
			return runStatus(ctx, params, logger)
		},
	}
}

func runStatus(ctx context.Context, params statusParams, logger *slog.Logger) error {
	timeout, err := time.ParseDuration(params.Timeout)
	if err != nil {
		return cli.Validation("bad --timeout: %v", err)
	}

	logger.Debug("probing", "url", probeURL)
	result := probe(ctx, newProbeClient(timeout, nil), probeURL)

	done, err := params.EmitJSON(result)
	if err != nil {
		return err
	}
	if !done {
		printVerdict(result)
	}
	if result.Verdict == verdictOffline {
		return cli.Transient("no connectivity")
	}
	return nil
}
