// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package matrix

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/matrix"
)

// copyableState lists the state event types carried over to the
// replacement room. Name, topic, and power levels travel in the
// createRoom request instead; membership is rebuilt by invitation.
var copyableState = []string{
	"m.room.avatar",
	"m.room.server_acl",
	"m.room.history_visibility",
	"m.room.encryption",
	"m.room.join_rules",
	"m.room.guest_access",
	"m.space.parent",
	"m.space.child",
	"im.ponies.room_emotes",
	"org.matrix.room.preview_urls",
	"🐟", // a mascot travels with its room
}

// snapshot is everything read from the old room before anything is
// written. The raw contents are kept verbatim so rollback can restore
// them and the copy stage cannot lose fields it does not know about.
type snapshot struct {
	roomID         string
	version        string // room version of the old room
	name           string
	topic          string
	preset         string
	alias          string          // canonical alias, "" when unset
	canonicalAlias json.RawMessage // full original content, for rollback
	powerLevels    json.RawMessage
	aliases        []string
	members        []string
	state          []matrix.StateEvent
}

// takeSnapshot reads the old room. Read-only: a failure here aborts
// the upgrade before anything changed.
func takeSnapshot(ctx context.Context, client *matrix.Client, roomID string) (*snapshot, error) {
	state, err := client.RoomState(ctx, roomID)
	if err != nil {
		return nil, classifyMatrixError(err, "reading room state")
	}

	snap := &snapshot{
		roomID:         roomID,
		state:          state,
		name:           stringField(matrix.StateContent(state, "m.room.name", ""), "name"),
		topic:          stringField(matrix.StateContent(state, "m.room.topic", ""), "topic"),
		alias:          stringField(matrix.StateContent(state, "m.room.canonical_alias", ""), "alias"),
		canonicalAlias: matrix.StateContent(state, "m.room.canonical_alias", ""),
		powerLevels:    matrix.StateContent(state, "m.room.power_levels", ""),
		preset:         presetFor(stringField(matrix.StateContent(state, "m.room.join_rules", ""), "join_rule")),
		version:        "1",
	}
	if version := stringField(matrix.StateContent(state, "m.room.create", ""), "room_version"); version != "" {
		snap.version = version
	}
	if snap.powerLevels == nil {
		return nil, cli.Conflict("room %s has no power-levels state; refusing to upgrade", roomID)
	}

	snap.aliases, err = client.RoomAliases(ctx, roomID)
	if err != nil {
		return nil, classifyMatrixError(err, "listing aliases")
	}
	snap.members, err = client.JoinedMembers(ctx, roomID)
	if err != nil {
		return nil, classifyMatrixError(err, "listing members")
	}
	slices.Sort(snap.members)
	return snap, nil
}

// copyable returns the state events that will be replayed into the
// replacement room, in the order the server returned them.
func (s *snapshot) copyable() []matrix.StateEvent {
	var events []matrix.StateEvent
	for _, event := range s.state {
		if slices.Contains(copyableState, event.Type) {
			events = append(events, event)
		}
	}
	return events
}

// presetFor picks the createRoom preset mirroring the old room's join
// rule. The preset only seeds defaults; the real join rules are copied
// over as state afterwards.
func presetFor(joinRule string) string {
	if joinRule == "public" {
		return "public_chat"
	}
	return "private_chat"
}

// floorPowerLevels raises the level needed to speak in the old room to
// the level needed to tombstone it, so nobody who could not have sent
// the tombstone can keep the conversation going underneath it.
func floorPowerLevels(raw json.RawMessage) (map[string]any, error) {
	var levels map[string]any
	if err := json.Unmarshal(raw, &levels); err != nil {
		return nil, cli.Internal("power levels did not parse: %v", err)
	}
	events, _ := levels["events"].(map[string]any)
	if events == nil {
		events = map[string]any{}
		levels["events"] = events
	}
	floor := numberAt(events, "m.room.tombstone", numberAt(levels, "state_default", 50))
	if numberAt(levels, "users_default", 0) >= floor {
		levels["users_default"] = floor - 1
	}
	if numberAt(levels, "events_default", 0) >= floor {
		levels["events_default"] = floor - 1
	}
	events["m.room.message"] = floor
	events["m.reaction"] = floor
	return levels, nil
}

func numberAt(values map[string]any, key string, fallback float64) float64 {
	if value, ok := values[key].(float64); ok {
		return value
	}
	return fallback
}

func stringField(content json.RawMessage, field string) string {
	if content == nil {
		return ""
	}
	var values map[string]any
	if err := json.Unmarshal(content, &values); err != nil {
		return ""
	}
	value, _ := values[field].(string)
	return value
}
