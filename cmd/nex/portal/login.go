// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package portal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/nexutils/nex/cmd/nex/cli"
)

type loginParams struct {
	URL     string   `flag:"url,u" desc:"portal login endpoint"`
	Method  string   `flag:"method,m" desc:"HTTP method: GET or POST" default:"GET"`
	Fields  []string `flag:"field,f" desc:"key=value pair to submit (repeatable)"`
	Timeout string   `flag:"timeout" desc:"request timeout" default:"15s"`
}

func loginCommand() *cli.Command {
	var params loginParams
	return &cli.Command{
		Name:    "login",
		Summary: "Submit a captive portal's login form",
		Description: `Issue the request a portal's "connect" button would have sent, then
re-probe to see whether it worked. GET puts the --field pairs in the
query string, POST sends them as a form body; cookies set along the
way are carried into the re-probe.

The endpoint and field names come from the portal itself: run
"nex portal status" for the portal URL, then crib the form fields
from its page source. ChilliSpot-style hotspots typically want the
uamip/uamport pairs the portal put in its own redirect.`,
		Usage: "nex portal login --url <endpoint> [flags]",
		Examples: []cli.Example{
			{
				Description: "A terms-acceptance button that was really a GET",
				Command:     "nex portal login -u 'https://portal.example.com/connect.php' -f status=connection-request",
			},
			{
				Description: "A POSTed login form",
				Command:     "nex portal login -u 'http://10.0.0.1:3990/logon' --method POST -f username=guest -f password=guest",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 0 {
				return cli.Validation("login takes no arguments (use --url and --field)")
			}
			return runLogin(ctx, params, logger)
		},
	}
}

func runLogin(ctx context.Context, params loginParams, logger *slog.Logger) error {
	timeout, err := time.ParseDuration(params.Timeout)
	if err != nil {
		return cli.Validation("bad --timeout: %v", err)
	}
	if params.URL == "" {
		return cli.Validation("--url is required (run \"nex portal status\" to discover the portal)")
	}
	fields, err := parseFields(params.Fields)
	if err != nil {
		return err
	}

	request, err := buildLogin(ctx, params.Method, params.URL, fields)
	if err != nil {
		return err
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return cli.Internal("creating cookie jar: %v", err)
	}
	client := &http.Client{Timeout: timeout, Jar: jar}

	logger.Info("submitting login", "method", request.Method, "url", params.URL)
	response, err := client.Do(request)
	if err != nil {
		return cli.Transient("reaching the portal: %v", err)
	}
	io.Copy(io.Discard, io.LimitReader(response.Body, 256<<10))
	response.Body.Close()
	fmt.Printf("portal answered %s\n", response.Status)

	// The portal's own answer means little; what counts is whether
	// traffic flows now.
	result := probe(ctx, newProbeClient(timeout, jar), probeURL)
	printVerdict(result)
	if result.Verdict != verdictOpen {
		return cli.Transient("still behind the portal after login")
	}
	return nil
}

// buildLogin constructs the login request: GET carries the fields in
// the query string, POST as an urlencoded form body.
func buildLogin(ctx context.Context, method, rawURL string, fields url.Values) (*http.Request, error) {
	target, err := url.Parse(rawURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, cli.Validation("bad --url %q", rawURL)
	}

	var request *http.Request
	switch strings.ToUpper(method) {
	case http.MethodGet:
		query := target.Query()
		for key, values := range fields {
			for _, value := range values {
				query.Add(key, value)
			}
		}
		target.RawQuery = query.Encode()
		request, err = http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	case http.MethodPost:
		request, err = http.NewRequestWithContext(ctx, http.MethodPost, target.String(),
			strings.NewReader(fields.Encode()))
		if request != nil {
			request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	default:
		return nil, cli.Validation("unsupported method %q (portals only ever want GET or POST)", method)
	}
	if err != nil {
		return nil, cli.Validation("building request: %v", err)
	}
	request.Header.Set("User-Agent", probeUserAgent)
	return request, nil
}

func parseFields(pairs []string) (url.Values, error) {
	values := url.Values{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, cli.Validation("bad --field %q (expected key=value)", pair)
		}
		values.Add(key, value)
	}
	return values, nil
}
