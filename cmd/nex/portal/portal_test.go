// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package portal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nexutils/nex/cmd/nex/cli"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const canonicalPage = `<meta http-equiv="refresh" content="0;url=https://support.mozilla.org/kb/captive-portal"/>`

func TestProbeOpen(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, canonicalPage)
	}))
	defer server.Close()

	result := probe(context.Background(), newProbeClient(time.Second, nil), server.URL)
	if result.Verdict != verdictOpen {
		t.Fatalf("verdict = %q, want open (%+v)", result.Verdict, result)
	}
	if result.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", result.Status)
	}
}

func TestProbeCaptiveRedirect(t *testing.T) {
	t.Parallel()

	const portal = "http://portal.example.com/login?res=notyet&uamip=10.0.0.1"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", portal)
		w.WriteHeader(http.StatusFound)
	}))
	defer server.Close()

	result := probe(context.Background(), newProbeClient(time.Second, nil), server.URL)
	if result.Verdict != verdictCaptive {
		t.Fatalf("verdict = %q, want captive", result.Verdict)
	}
	if result.PortalURL != portal {
		t.Fatalf("PortalURL = %q, want %q", result.PortalURL, portal)
	}
}

func TestProbeCaptiveRewrittenBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>Welcome to SkyLounge WiFi! Please purchase a pass.</html>")
	}))
	defer server.Close()

	result := probe(context.Background(), newProbeClient(time.Second, nil), server.URL)
	if result.Verdict != verdictCaptive {
		t.Fatalf("verdict = %q, want captive", result.Verdict)
	}
	if result.Detail == "" {
		t.Fatal("expected a detail explaining the rewrite")
	}
}

func TestProbeCaptiveUnexpectedStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNetworkAuthenticationRequired)
	}))
	defer server.Close()

	result := probe(context.Background(), newProbeClient(time.Second, nil), server.URL)
	if result.Verdict != verdictCaptive {
		t.Fatalf("verdict = %q, want captive", result.Verdict)
	}
	if result.Status != http.StatusNetworkAuthenticationRequired {
		t.Fatalf("status = %d, want 511", result.Status)
	}
}

func TestProbeOffline(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	dead := server.URL
	server.Close()

	result := probe(context.Background(), newProbeClient(time.Second, nil), dead)
	if result.Verdict != verdictOffline {
		t.Fatalf("verdict = %q, want offline", result.Verdict)
	}
	if result.Detail == "" {
		t.Fatal("expected the connection error in Detail")
	}
}

func TestParseFields(t *testing.T) {
	t.Parallel()

	values, err := parseFields([]string{"username=guest", "accept=", "mode=a=b"})
	if err != nil {
		t.Fatalf("parseFields: %v", err)
	}
	if got := values.Get("username"); got != "guest" {
		t.Errorf("username = %q", got)
	}
	if _, ok := values["accept"]; !ok {
		t.Error("empty value should still set the key")
	}
	if got := values.Get("mode"); got != "a=b" {
		t.Errorf("mode = %q, want everything after the first =", got)
	}

	for _, bad := range []string{"noequals", "=value"} {
		if _, err := parseFields([]string{bad}); err == nil {
			t.Errorf("parseFields(%q) did not fail", bad)
		}
	}
}

func TestBuildLoginGet(t *testing.T) {
	t.Parallel()

	fields := url.Values{"status": {"connection-request"}}
	request, err := buildLogin(context.Background(), "GET",
		"http://portal.example.com/connect.php?uamip=10.0.0.1", fields)
	if err != nil {
		t.Fatalf("buildLogin: %v", err)
	}
	if request.Method != http.MethodGet {
		t.Fatalf("method = %s", request.Method)
	}

	query := request.URL.Query()
	if query.Get("uamip") != "10.0.0.1" {
		t.Error("existing query parameter was dropped")
	}
	if query.Get("status") != "connection-request" {
		t.Error("field was not merged into the query")
	}
}

func TestBuildLoginPost(t *testing.T) {
	t.Parallel()

	fields := url.Values{"username": {"guest"}, "password": {"guest"}}
	request, err := buildLogin(context.Background(), "post", "http://10.0.0.1:3990/logon", fields)
	if err != nil {
		t.Fatalf("buildLogin: %v", err)
	}
	if request.Method != http.MethodPost {
		t.Fatalf("method = %s", request.Method)
	}
	if got := request.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
		t.Fatalf("Content-Type = %q", got)
	}

	body, err := io.ReadAll(request.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "password=guest&username=guest" {
		t.Fatalf("body = %q", body)
	}
}

func TestBuildLoginRejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		method string
		url    string
	}{
		{"bad method", "DELETE", "http://portal.example.com/"},
		{"relative url", "GET", "/connect.php"},
		{"empty url", "GET", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := buildLogin(context.Background(), tc.method, tc.url, url.Values{})
			var toolErr *cli.ToolError
			if !errors.As(err, &toolErr) || toolErr.Category != cli.CategoryValidation {
				t.Fatalf("expected a validation error, got %v", err)
			}
		})
	}
}

// stubNmcli writes a shell script that stands in for nmcli and logs
// its invocations to <script>.log.
func stubNmcli(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nmcli")
	script := "#!/bin/sh\necho \"$@\" >> \"$0.log\"\n" + body
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func invocations(t *testing.T, stub string) []string {
	t.Helper()
	data, err := os.ReadFile(stub + ".log")
	if err != nil {
		t.Fatalf("reading stub log: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestCycleConnection(t *testing.T) {
	t.Parallel()

	stub := stubNmcli(t, "exit 0")
	manager := &nmcli{binary: stub}
	err := cycleConnection(context.Background(), manager, "train-wifi", time.Millisecond, discardLogger())
	if err != nil {
		t.Fatalf("cycleConnection: %v", err)
	}

	got := invocations(t, stub)
	want := []string{"connection down train-wifi", "connection up train-wifi"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("invocations = %v, want %v", got, want)
	}
}

func TestCycleConnectionDownFailureIsTolerated(t *testing.T) {
	t.Parallel()

	stub := stubNmcli(t, `case "$*" in *down*) echo "Error: not an active connection" >&2; exit 10;; esac
exit 0`)
	manager := &nmcli{binary: stub}
	err := cycleConnection(context.Background(), manager, "train-wifi", time.Millisecond, discardLogger())
	if err != nil {
		t.Fatalf("a failed down must not abort the cycle: %v", err)
	}
	if got := invocations(t, stub); len(got) != 2 {
		t.Fatalf("expected the up to still run, got %v", got)
	}
}

func TestCycleConnectionUpFailure(t *testing.T) {
	t.Parallel()

	stub := stubNmcli(t, `case "$*" in *up*) echo "Error: unknown connection" >&2; exit 10;; esac
exit 0`)
	manager := &nmcli{binary: stub}
	err := cycleConnection(context.Background(), manager, "ghost", time.Millisecond, discardLogger())
	var toolErr *cli.ToolError
	if !errors.As(err, &toolErr) || toolErr.Category != cli.CategoryTransient {
		t.Fatalf("expected a transient error, got %v", err)
	}
	if !strings.Contains(err.Error(), "unknown connection") {
		t.Fatalf("error should carry nmcli's stderr, got %q", err)
	}
}
