// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package matrix is a minimal authenticated client for the Matrix
// client-server API, covering the handful of endpoints a room
// upgrade needs: identity, room state, aliases, membership, and
// room creation.
package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/nexutils/nex/lib/netutil"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// HomeserverURL is the base URL of the homeserver
	// (e.g., "https://matrix.example.org"). Required.
	HomeserverURL string
	// Token is the access token, sent as a Bearer credential. Required.
	Token string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client is an authenticated Matrix client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Matrix client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.HomeserverURL == "" {
		return nil, fmt.Errorf("matrix: HomeserverURL is required")
	}
	if config.Token == "" {
		return nil, fmt.Errorf("matrix: Token is required")
	}
	if _, err := url.Parse(config.HomeserverURL); err != nil {
		return nil, fmt.Errorf("matrix: invalid HomeserverURL %q: %w", config.HomeserverURL, err)
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
		baseURL:    strings.TrimRight(config.HomeserverURL, "/"),
		token:      config.Token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// WhoAmI returns the user ID the access token belongs to. Useful as
// a cheap token validity check before a destructive operation.
func (c *Client) WhoAmI(ctx context.Context) (string, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", nil)
	if err != nil {
		return "", fmt.Errorf("matrix: whoami failed: %w", err)
	}
	var response struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("matrix: failed to parse whoami response: %w", err)
	}
	return response.UserID, nil
}

// StateEvent is one entry of a room's state. Content stays raw so
// events can be copied between rooms without knowing their schema.
type StateEvent struct {
	Type     string          `json:"type"`
	StateKey string          `json:"state_key"`
	Content  json.RawMessage `json:"content"`
}

// RoomState returns the full current state of a room.
func (c *Client) RoomState(ctx context.Context, roomID string) ([]StateEvent, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/state", url.PathEscape(roomID))
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("matrix: fetching state of %s: %w", roomID, err)
	}
	var events []StateEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("matrix: failed to parse room state: %w", err)
	}
	return events, nil
}

// StateContent finds a state event by type and state key in a state
// snapshot and returns its content, or nil if absent.
func StateContent(state []StateEvent, eventType, stateKey string) json.RawMessage {
	for _, event := range state {
		if event.Type == eventType && event.StateKey == stateKey {
			return event.Content
		}
	}
	return nil
}

// SetRoomState sends a state event and returns the new event ID.
// content may be any JSON-marshalable value, including a raw message
// captured from RoomState.
func (c *Client) SetRoomState(ctx context.Context, roomID, eventType, stateKey string, content any) (string, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/state/%s/%s",
		url.PathEscape(roomID),
		url.PathEscape(eventType),
		url.PathEscape(stateKey),
	)
	body, err := c.doRequest(ctx, http.MethodPut, path, content)
	if err != nil {
		return "", fmt.Errorf("matrix: setting %s state in %s: %w", eventType, roomID, err)
	}
	var response struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("matrix: failed to parse state response: %w", err)
	}
	return response.EventID, nil
}

// RoomAliases returns the local aliases pointing at a room.
func (c *Client) RoomAliases(ctx context.Context, roomID string) ([]string, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/aliases", url.PathEscape(roomID))
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("matrix: fetching aliases of %s: %w", roomID, err)
	}
	var response struct {
		Aliases []string `json:"aliases"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("matrix: failed to parse aliases response: %w", err)
	}
	return response.Aliases, nil
}

// CreateAlias points a room alias at a room.
func (c *Client) CreateAlias(ctx context.Context, alias, roomID string) error {
	path := "/_matrix/client/v3/directory/room/" + url.PathEscape(alias)
	request := map[string]string{"room_id": roomID}
	if _, err := c.doRequest(ctx, http.MethodPut, path, request); err != nil {
		return fmt.Errorf("matrix: creating alias %s: %w", alias, err)
	}
	return nil
}

// DeleteAlias removes a room alias from the directory.
func (c *Client) DeleteAlias(ctx context.Context, alias string) error {
	path := "/_matrix/client/v3/directory/room/" + url.PathEscape(alias)
	if _, err := c.doRequest(ctx, http.MethodDelete, path, nil); err != nil {
		return fmt.Errorf("matrix: deleting alias %s: %w", alias, err)
	}
	return nil
}

// JoinedMembers returns the user IDs currently joined to a room.
func (c *Client) JoinedMembers(ctx context.Context, roomID string) ([]string, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/joined_members", url.PathEscape(roomID))
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("matrix: fetching members of %s: %w", roomID, err)
	}
	var response struct {
		Joined map[string]json.RawMessage `json:"joined"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("matrix: failed to parse members response: %w", err)
	}
	members := make([]string, 0, len(response.Joined))
	for userID := range response.Joined {
		members = append(members, userID)
	}
	return members, nil
}

// InviteUser invites a user to a room.
func (c *Client) InviteUser(ctx context.Context, roomID, userID string) error {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/invite", url.PathEscape(roomID))
	request := map[string]string{"user_id": userID}
	if _, err := c.doRequest(ctx, http.MethodPost, path, request); err != nil {
		return fmt.Errorf("matrix: inviting %s to %s: %w", userID, roomID, err)
	}
	return nil
}

// CreateRoomRequest is the body of POST /createRoom. Zero-valued
// fields are omitted.
type CreateRoomRequest struct {
	Name            string         `json:"name,omitempty"`
	Topic           string         `json:"topic,omitempty"`
	RoomAliasName   string         `json:"room_alias_name,omitempty"`
	Visibility      string         `json:"visibility,omitempty"`
	Preset          string         `json:"preset,omitempty"`
	RoomVersion     string         `json:"room_version,omitempty"`
	Invite          []string       `json:"invite,omitempty"`
	CreationContent map[string]any `json:"creation_content,omitempty"`
	InitialState    []StateEvent   `json:"initial_state,omitempty"`

	// PowerLevelContentOverride replaces the default power levels of
	// the new room wholesale.
	PowerLevelContentOverride json.RawMessage `json:"power_level_content_override,omitempty"`
}

// CreateRoom creates a room and returns its ID.
func (c *Client) CreateRoom(ctx context.Context, request CreateRoomRequest) (string, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/createRoom", request)
	if err != nil {
		return "", fmt.Errorf("matrix: creating room: %w", err)
	}
	var response struct {
		RoomID string `json:"room_id"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("matrix: failed to parse createRoom response: %w", err)
	}
	c.logger.Info("created room", "room_id", response.RoomID)
	return response.RoomID, nil
}

// doRequest performs an HTTP request against the homeserver and
// returns the response body. On 4xx/5xx, returns a *MatrixError when
// the server supplied one.
func (c *Client) doRequest(ctx context.Context, method, path string, requestBody any) ([]byte, error) {
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
		request, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	} else {
		request, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	request.Header.Set("Authorization", "Bearer "+c.token)
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

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	var matrixErr MatrixError
	if jsonErr := json.Unmarshal(responseBody, &matrixErr); jsonErr != nil {
		return nil, fmt.Errorf("unexpected %d response from %s %s: %s",
			response.StatusCode, method, path, string(responseBody))
	}
	matrixErr.StatusCode = response.StatusCode
	return nil, &matrixErr
}
