// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
)

func testClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{HomeserverURL: serverURL, Token: "syt_test"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestNewClient(t *testing.T) {
	t.Run("homeserver required", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{Token: "t"}); err == nil {
			t.Fatal("expected error for missing homeserver")
		}
	})
	t.Run("token required", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{HomeserverURL: "http://localhost:1"}); err == nil {
			t.Fatal("expected error for missing token")
		}
	})
}

func TestWhoAmI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/_matrix/client/v3/account/whoami" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		if got := request.Header.Get("Authorization"); got != "Bearer syt_test" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		json.NewEncoder(writer).Encode(map[string]string{"user_id": "@alice:example.org"})
	}))
	defer server.Close()

	userID, err := testClient(t, server.URL).WhoAmI(context.Background())
	if err != nil {
		t.Fatalf("WhoAmI failed: %v", err)
	}
	if userID != "@alice:example.org" {
		t.Errorf("user ID = %q, want @alice:example.org", userID)
	}
}

func TestRoomState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.EscapedPath() != "/_matrix/client/v3/rooms/%21room:example.org/state" {
			t.Errorf("unexpected path: %s", request.URL.EscapedPath())
		}
		json.NewEncoder(writer).Encode([]map[string]any{
			{"type": "m.room.name", "state_key": "", "content": map[string]string{"name": "Ops"}},
			{"type": "m.room.join_rules", "state_key": "", "content": map[string]string{"join_rule": "invite"}},
		})
	}))
	defer server.Close()

	state, err := testClient(t, server.URL).RoomState(context.Background(), "!room:example.org")
	if err != nil {
		t.Fatalf("RoomState failed: %v", err)
	}
	if len(state) != 2 {
		t.Fatalf("got %d events, want 2", len(state))
	}

	content := StateContent(state, "m.room.name", "")
	if content == nil {
		t.Fatal("StateContent found no m.room.name")
	}
	var name struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(content, &name); err != nil {
		t.Fatalf("decoding name content: %v", err)
	}
	if name.Name != "Ops" {
		t.Errorf("room name = %q, want Ops", name.Name)
	}
	if got := StateContent(state, "m.room.topic", ""); got != nil {
		t.Errorf("StateContent returned %s for an absent event", got)
	}
}

func TestSetRoomState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", request.Method)
		}
		want := "/_matrix/client/v3/rooms/%21room:example.org/state/m.room.tombstone/"
		if request.URL.EscapedPath() != want {
			t.Errorf("path = %s, want %s", request.URL.EscapedPath(), want)
		}
		var body map[string]any
		if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
			t.Fatalf("decoding request body: %v", err)
		}
		if body["replacement_room"] != "!new:example.org" {
			t.Errorf("unexpected body: %v", body)
		}
		json.NewEncoder(writer).Encode(map[string]string{"event_id": "$evt1"})
	}))
	defer server.Close()

	eventID, err := testClient(t, server.URL).SetRoomState(
		context.Background(), "!room:example.org", "m.room.tombstone", "",
		map[string]string{"replacement_room": "!new:example.org"})
	if err != nil {
		t.Fatalf("SetRoomState failed: %v", err)
	}
	if eventID != "$evt1" {
		t.Errorf("event ID = %q, want $evt1", eventID)
	}
}

func TestAliases(t *testing.T) {
	var deleted, created []string
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		switch {
		case request.Method == http.MethodGet:
			json.NewEncoder(writer).Encode(map[string][]string{
				"aliases": {"#ops:example.org", "#oncall:example.org"},
			})
		case request.Method == http.MethodDelete:
			deleted = append(deleted, request.URL.EscapedPath())
			json.NewEncoder(writer).Encode(map[string]any{})
		case request.Method == http.MethodPut:
			created = append(created, request.URL.EscapedPath())
			var body map[string]string
			json.NewDecoder(request.Body).Decode(&body)
			if body["room_id"] != "!new:example.org" {
				t.Errorf("unexpected alias body: %v", body)
			}
			json.NewEncoder(writer).Encode(map[string]any{})
		}
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	ctx := context.Background()

	aliases, err := client.RoomAliases(ctx, "!room:example.org")
	if err != nil {
		t.Fatalf("RoomAliases failed: %v", err)
	}
	if len(aliases) != 2 || aliases[0] != "#ops:example.org" {
		t.Errorf("unexpected aliases: %v", aliases)
	}

	if err := client.DeleteAlias(ctx, "#ops:example.org"); err != nil {
		t.Fatalf("DeleteAlias failed: %v", err)
	}
	if len(deleted) != 1 || deleted[0] != "/_matrix/client/v3/directory/room/%23ops:example.org" {
		t.Errorf("unexpected delete paths: %v", deleted)
	}

	if err := client.CreateAlias(ctx, "#ops:example.org", "!new:example.org"); err != nil {
		t.Fatalf("CreateAlias failed: %v", err)
	}
	if len(created) != 1 {
		t.Errorf("unexpected create paths: %v", created)
	}
}

func TestJoinedMembers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(writer).Encode(map[string]any{
			"joined": map[string]any{
				"@alice:example.org": map[string]string{"display_name": "Alice"},
				"@bob:example.org":   map[string]string{},
			},
		})
	}))
	defer server.Close()

	members, err := testClient(t, server.URL).JoinedMembers(context.Background(), "!room:example.org")
	if err != nil {
		t.Fatalf("JoinedMembers failed: %v", err)
	}
	slices.Sort(members)
	want := []string{"@alice:example.org", "@bob:example.org"}
	if !slices.Equal(members, want) {
		t.Errorf("members = %v, want %v", members, want)
	}
}

func TestInviteUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		want := "/_matrix/client/v3/rooms/%21room:example.org/invite"
		if request.URL.EscapedPath() != want {
			t.Errorf("path = %s, want %s", request.URL.EscapedPath(), want)
		}
		var body map[string]string
		if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
			t.Fatalf("decoding request body: %v", err)
		}
		if body["user_id"] != "@bob:example.org" {
			t.Errorf("unexpected body: %v", body)
		}
		json.NewEncoder(writer).Encode(map[string]any{})
	}))
	defer server.Close()

	err := testClient(t, server.URL).InviteUser(context.Background(), "!room:example.org", "@bob:example.org")
	if err != nil {
		t.Fatalf("InviteUser failed: %v", err)
	}
}

func TestCreateRoom(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/_matrix/client/v3/createRoom" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
			t.Fatalf("decoding request body: %v", err)
		}
		if body["name"] != "Ops v2" || body["room_version"] != "11" {
			t.Errorf("unexpected body: %v", body)
		}
		if _, present := body["topic"]; present {
			t.Error("empty topic was not omitted")
		}
		creation, ok := body["creation_content"].(map[string]any)
		if !ok {
			t.Fatalf("missing creation_content in %v", body)
		}
		predecessor, ok := creation["predecessor"].(map[string]any)
		if !ok || predecessor["room_id"] != "!old:example.org" {
			t.Errorf("unexpected creation_content: %v", creation)
		}
		json.NewEncoder(writer).Encode(map[string]string{"room_id": "!new:example.org"})
	}))
	defer server.Close()

	roomID, err := testClient(t, server.URL).CreateRoom(context.Background(), CreateRoomRequest{
		Name:        "Ops v2",
		RoomVersion: "11",
		Preset:      "private_chat",
		CreationContent: map[string]any{
			"predecessor": map[string]string{"room_id": "!old:example.org"},
		},
	})
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if roomID != "!new:example.org" {
		t.Errorf("room ID = %q, want !new:example.org", roomID)
	}
}

func TestMatrixErrorResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusForbidden)
		json.NewEncoder(writer).Encode(MatrixError{
			Code:    ErrCodeForbidden,
			Message: "Insufficient power level",
		})
	}))
	defer server.Close()

	_, err := testClient(t, server.URL).SetRoomState(
		context.Background(), "!room:example.org", "m.room.name", "", map[string]string{"name": "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsMatrixError(err, ErrCodeForbidden) {
		t.Errorf("expected M_FORBIDDEN, got: %v", err)
	}
	var matrixErr *MatrixError
	if !errors.As(err, &matrixErr) || matrixErr.StatusCode != http.StatusForbidden {
		t.Errorf("expected status 403 in error, got: %v", err)
	}
}
