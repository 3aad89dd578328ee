// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// probeURL is Firefox's captive-portal detection endpoint. Plain
	// HTTP on purpose: a portal can intercept it without triggering
	// certificate errors.
	probeURL = "http://detectportal.firefox.com/canonical.html"

	// canonicalMarker appears in the genuine canonical page. A 200
	// response without it was rewritten on the way here.
	canonicalMarker = "support.mozilla.org"

	// probeUserAgent is a desktop browser string. Portals are built
	// for browsers and some answer differently to anything else.
	probeUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
)

type verdict string

const (
	verdictOpen    verdict = "open"
	verdictCaptive verdict = "captive"
	verdictOffline verdict = "offline"
)

// probeResult is the classified outcome of one detection probe.
type probeResult struct {
	Verdict   verdict `json:"verdict"`
	PortalURL string  `json:"portal_url,omitempty"`
	Status    int     `json:"status,omitempty"`
	Detail    string  `json:"detail,omitempty"`
}

// newProbeClient builds a client with redirect following disabled:
// the redirect IS the signal being probed for. A shared cookie jar
// lets a login's session cookies carry over into the re-probe.
func newProbeClient(timeout time.Duration, jar http.CookieJar) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Jar:     jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// probe fetches url and classifies the network between here and the
// real internet. It never fails: every outcome, including "the wifi is
// down", is a verdict.
func probe(ctx context.Context, client *http.Client, url string) *probeResult {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &probeResult{Verdict: verdictOffline, Detail: err.Error()}
	}
	request.Header.Set("User-Agent", probeUserAgent)

	response, err := client.Do(request)
	if err != nil {
		return &probeResult{Verdict: verdictOffline, Detail: err.Error()}
	}
	defer response.Body.Close()

	result := &probeResult{Status: response.StatusCode}
	switch {
	case response.StatusCode >= 300 && response.StatusCode < 400:
		result.Verdict = verdictCaptive
		if location, err := response.Location(); err == nil {
			result.PortalURL = location.String()
		}
	case response.StatusCode == http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(response.Body, 64<<10))
		if strings.Contains(string(body), canonicalMarker) {
			result.Verdict = verdictOpen
		} else {
			result.Verdict = verdictCaptive
			result.Detail = "the canonical page came back rewritten"
		}
	default:
		result.Verdict = verdictCaptive
		result.Detail = fmt.Sprintf("probe answered %s", response.Status)
	}
	return result
}

func printVerdict(result *probeResult) {
	switch result.Verdict {
	case verdictOpen:
		fmt.Println("open: the canonical page came back intact, you have internet access")
	case verdictCaptive:
		fmt.Println("captive: a portal is intercepting traffic")
		if result.PortalURL != "" {
			fmt.Printf("portal: %s\n", result.PortalURL)
		}
		if result.Detail != "" {
			fmt.Printf("detail: %s\n", result.Detail)
		}
	case verdictOffline:
		fmt.Printf("offline: %s\n", result.Detail)
	}
}
