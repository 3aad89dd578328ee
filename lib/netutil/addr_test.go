// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPublicIP_FirstSourceWins(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("203.0.113.7\n"))
	}))
	defer server.Close()

	addr, err := PublicIP(context.Background(), server.Client(), []string{server.URL})
	if err != nil {
		t.Fatalf("PublicIP: %v", err)
	}
	if addr.String() != "203.0.113.7" {
		t.Errorf("addr = %s, want 203.0.113.7", addr)
	}
}

func TestPublicIP_FallsBackOnBadAnswer(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>definitely not an address</html>"))
	}))
	defer broken.Close()

	erroring := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream sad", http.StatusBadGateway)
	}))
	defer erroring.Close()

	working := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("198.51.100.23"))
	}))
	defer working.Close()

	addr, err := PublicIP(context.Background(), http.DefaultClient,
		[]string{broken.URL, erroring.URL, working.URL})
	if err != nil {
		t.Fatalf("PublicIP: %v", err)
	}
	if addr.String() != "198.51.100.23" {
		t.Errorf("addr = %s, want 198.51.100.23", addr)
	}
}

func TestPublicIP_AllSourcesFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := PublicIP(context.Background(), server.Client(), []string{server.URL, server.URL})
	if err == nil {
		t.Fatal("PublicIP = nil error, want failure when every source fails")
	}
}

func TestPublicIP_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("203.0.113.7"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := PublicIP(ctx, server.Client(), []string{server.URL}); err == nil {
		t.Fatal("PublicIP with cancelled context = nil, want error")
	}
}

func TestOutboundIP(t *testing.T) {
	addr, err := OutboundIP()
	if err != nil {
		// Machines with no default route (isolated CI) can't answer this.
		t.Skipf("no outbound route: %v", err)
	}
	if !addr.IsValid() || !addr.Is4() {
		t.Errorf("OutboundIP() = %v, want a valid IPv4 address", addr)
	}
}
