// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package cloudflare is a minimal typed client for the Cloudflare v4
// API, covering exactly what dynamic DNS needs: token verification,
// zone record listing, and record content updates.
package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nexutils/nex/lib/netutil"
)

// DefaultBaseURL is the production Cloudflare API endpoint.
const DefaultBaseURL = "https://api.cloudflare.com/client/v4"

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// Token is the API token, sent as a Bearer credential. Required.
	Token string
	// BaseURL overrides the API endpoint. If empty, DefaultBaseURL is used.
	BaseURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client is an authenticated Cloudflare API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Cloudflare client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("cloudflare: Token is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("cloudflare: invalid BaseURL %q: %w", baseURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      config.Token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Token describes an API token, as returned by verification.
type Token struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// VerifyToken checks that the configured token is valid and active.
func (c *Client) VerifyToken(ctx context.Context) (*Token, error) {
	result, err := c.doRequest(ctx, http.MethodGet, "/user/tokens/verify", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("cloudflare: token verification failed: %w", err)
	}
	var token Token
	if err := json.Unmarshal(result, &token); err != nil {
		return nil, fmt.Errorf("cloudflare: failed to parse token verification: %w", err)
	}
	return &token, nil
}

// Record is a DNS record within a zone.
type Record struct {
	ID         string    `json:"id"`
	ZoneID     string    `json:"zone_id"`
	ZoneName   string    `json:"zone_name"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Content    string    `json:"content"`
	Proxiable  bool      `json:"proxiable"`
	Proxied    bool      `json:"proxied"`
	TTL        int       `json:"ttl"`
	Comment    string    `json:"comment,omitempty"`
	CreatedOn  time.Time `json:"created_on"`
	ModifiedOn time.Time `json:"modified_on"`
}

// ListDNSRecords returns every DNS record in the zone. A single page
// holds up to 5000 records, which covers any zone this tool manages.
func (c *Client) ListDNSRecords(ctx context.Context, zoneID string) ([]Record, error) {
	query := url.Values{"per_page": []string{"5000"}}
	result, err := c.doRequest(ctx, http.MethodGet, "/zones/"+zoneID+"/dns_records", nil, query)
	if err != nil {
		return nil, fmt.Errorf("cloudflare: listing records for zone %s: %w", zoneID, err)
	}
	var records []Record
	if err := json.Unmarshal(result, &records); err != nil {
		return nil, fmt.Errorf("cloudflare: failed to parse record list: %w", err)
	}
	return records, nil
}

// UpdateRecordContent patches a record's content, leaving its type,
// name, TTL, and proxy state untouched.
func (c *Client) UpdateRecordContent(ctx context.Context, zoneID, recordID, content string) (*Record, error) {
	body := map[string]string{"content": content}
	path := "/zones/" + zoneID + "/dns_records/" + recordID
	result, err := c.doRequest(ctx, http.MethodPatch, path, body, nil)
	if err != nil {
		return nil, fmt.Errorf("cloudflare: updating record %s: %w", recordID, err)
	}
	var record Record
	if err := json.Unmarshal(result, &record); err != nil {
		return nil, fmt.Errorf("cloudflare: failed to parse updated record: %w", err)
	}
	c.logger.Debug("updated dns record",
		"record_id", recordID,
		"name", record.Name,
		"content", record.Content,
	)
	return &record, nil
}

// envelope is the uniform response wrapper every v4 endpoint uses.
type envelope struct {
	Success bool            `json:"success"`
	Errors  []APIError      `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

// doRequest performs an API request and unwraps the response envelope.
// On success, returns the raw result. On HTTP or API-level failure,
// returns an *APIError when the server supplied one.
func (c *Client) doRequest(ctx context.Context, method, path string, requestBody any, query url.Values) (json.RawMessage, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader *bytes.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	var request *http.Request
	var err error
	if bodyReader != nil {
		request, err = http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	} else {
		request, err = http.NewRequestWithContext(ctx, method, requestURL, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	request.Header.Set("Authorization", "Bearer "+c.token)
	request.Header.Set("Accept", "application/json")
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var wrapped envelope
	if err := json.Unmarshal(responseBody, &wrapped); err != nil {
		return nil, fmt.Errorf("unexpected %d response from %s %s: %s",
			response.StatusCode, method, path, string(responseBody))
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 && wrapped.Success {
		return wrapped.Result, nil
	}

	if len(wrapped.Errors) > 0 {
		apiErr := wrapped.Errors[0]
		apiErr.StatusCode = response.StatusCode
		return nil, &apiErr
	}
	return nil, fmt.Errorf("request to %s %s failed with status %d", method, path, response.StatusCode)
}
