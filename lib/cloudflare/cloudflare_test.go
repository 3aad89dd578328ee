// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package cloudflare

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{Token: "test-token", BaseURL: serverURL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func writeEnvelope(t *testing.T, writer http.ResponseWriter, result any) {
	t.Helper()
	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(map[string]any{
		"success": true,
		"errors":  []any{},
		"result":  result,
	}); err != nil {
		t.Fatalf("encoding response: %v", err)
	}
}

func TestNewClient(t *testing.T) {
	t.Run("token required", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{}); err == nil {
			t.Fatal("expected error for empty token")
		}
	})

	t.Run("invalid base URL", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{Token: "t", BaseURL: "://bad"}); err == nil {
			t.Fatal("expected error for invalid BaseURL")
		}
	})
}

func TestVerifyToken(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if request.URL.Path != "/user/tokens/verify" {
				t.Errorf("unexpected path: %s", request.URL.Path)
				writer.WriteHeader(http.StatusNotFound)
				return
			}
			if got := request.Header.Get("Authorization"); got != "Bearer test-token" {
				t.Errorf("unexpected Authorization header: %q", got)
			}
			if got := request.Header.Get("Accept"); got != "application/json" {
				t.Errorf("unexpected Accept header: %q", got)
			}
			writeEnvelope(t, writer, map[string]string{"id": "abc123", "status": "active"})
		}))
		defer server.Close()

		token, err := testClient(t, server.URL).VerifyToken(context.Background())
		if err != nil {
			t.Fatalf("VerifyToken failed: %v", err)
		}
		if token.ID != "abc123" || token.Status != "active" {
			t.Errorf("unexpected token: %+v", token)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.Header().Set("Content-Type", "application/json")
			writer.WriteHeader(http.StatusForbidden)
			json.NewEncoder(writer).Encode(map[string]any{
				"success": false,
				"errors":  []map[string]any{{"code": CodeInvalidToken, "message": "Invalid access token"}},
				"result":  nil,
			})
		}))
		defer server.Close()

		_, err := testClient(t, server.URL).VerifyToken(context.Background())
		if err == nil {
			t.Fatal("expected error for invalid token")
		}
		if !IsAPIError(err, CodeInvalidToken) {
			t.Errorf("expected code %d error, got: %v", CodeInvalidToken, err)
		}
	})

	t.Run("success false despite 200", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.Header().Set("Content-Type", "application/json")
			json.NewEncoder(writer).Encode(map[string]any{
				"success": false,
				"errors":  []map[string]any{{"code": CodeAuthenticationError, "message": "Authentication error"}},
			})
		}))
		defer server.Close()

		_, err := testClient(t, server.URL).VerifyToken(context.Background())
		if !IsAPIError(err, CodeAuthenticationError) {
			t.Errorf("expected code %d error, got: %v", CodeAuthenticationError, err)
		}
	})

	t.Run("non-JSON response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.WriteHeader(http.StatusBadGateway)
			writer.Write([]byte("<html>gateway error</html>"))
		}))
		defer server.Close()

		if _, err := testClient(t, server.URL).VerifyToken(context.Background()); err == nil {
			t.Fatal("expected error for non-JSON response")
		}
	})
}

func TestListDNSRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/zones/zone1/dns_records" {
			t.Errorf("unexpected path: %s", request.URL.Path)
			writer.WriteHeader(http.StatusNotFound)
			return
		}
		if got := request.URL.Query().Get("per_page"); got != "5000" {
			t.Errorf("per_page = %q, want 5000", got)
		}
		writeEnvelope(t, writer, []map[string]any{
			{
				"id": "rec1", "zone_id": "zone1", "zone_name": "example.com",
				"name": "home.example.com", "type": "A", "content": "198.51.100.4",
				"proxiable": true, "proxied": false, "ttl": 300,
			},
			{
				"id": "rec2", "zone_id": "zone1", "zone_name": "example.com",
				"name": "example.com", "type": "TXT", "content": "v=spf1 -all",
				"proxiable": false, "proxied": false, "ttl": 1,
			},
		})
	}))
	defer server.Close()

	records, err := testClient(t, server.URL).ListDNSRecords(context.Background(), "zone1")
	if err != nil {
		t.Fatalf("ListDNSRecords failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	first := records[0]
	if first.ID != "rec1" || first.Type != "A" || first.Content != "198.51.100.4" {
		t.Errorf("unexpected first record: %+v", first)
	}
	if first.Name != "home.example.com" || first.TTL != 300 {
		t.Errorf("unexpected first record: %+v", first)
	}
	if records[1].Type != "TXT" {
		t.Errorf("unexpected second record: %+v", records[1])
	}
}

func TestUpdateRecordContent(t *testing.T) {
	t.Run("patches content only", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if request.Method != http.MethodPatch {
				t.Errorf("method = %s, want PATCH", request.Method)
			}
			if request.URL.Path != "/zones/zone1/dns_records/rec1" {
				t.Errorf("unexpected path: %s", request.URL.Path)
			}
			var body map[string]string
			if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
				t.Fatalf("decoding request body: %v", err)
			}
			if len(body) != 1 || body["content"] != "203.0.113.9" {
				t.Errorf("unexpected request body: %v", body)
			}
			writeEnvelope(t, writer, map[string]any{
				"id": "rec1", "type": "A", "name": "home.example.com",
				"content": "203.0.113.9", "ttl": 300,
			})
		}))
		defer server.Close()

		record, err := testClient(t, server.URL).UpdateRecordContent(
			context.Background(), "zone1", "rec1", "203.0.113.9")
		if err != nil {
			t.Fatalf("UpdateRecordContent failed: %v", err)
		}
		if record.Content != "203.0.113.9" {
			t.Errorf("updated content = %q, want 203.0.113.9", record.Content)
		}
	})

	t.Run("api error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.Header().Set("Content-Type", "application/json")
			writer.WriteHeader(http.StatusNotFound)
			json.NewEncoder(writer).Encode(map[string]any{
				"success": false,
				"errors":  []map[string]any{{"code": 81044, "message": "Record does not exist"}},
			})
		}))
		defer server.Close()

		_, err := testClient(t, server.URL).UpdateRecordContent(
			context.Background(), "zone1", "missing", "203.0.113.9")
		if !IsAPIError(err, 81044) {
			t.Errorf("expected code 81044 error, got: %v", err)
		}
	})
}

func TestAPIError(t *testing.T) {
	err := &APIError{Code: CodeInvalidToken, Message: "Invalid access token", StatusCode: 403}
	if got, want := err.Error(), "cloudflare: error 9109 (403): Invalid access token"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if IsAPIError(context.Canceled, CodeInvalidToken) {
		t.Error("IsAPIError matched a non-API error")
	}
}
