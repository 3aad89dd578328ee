// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/matrix"
	"github.com/nexutils/nex/lib/prompt"
)

type upgradeParams struct {
	Config     string `flag:"config" desc:"config file to load instead of the default"`
	Homeserver string `flag:"homeserver" desc:"homeserver base URL"`
	Token      string `flag:"token" desc:"access token"`
	TokenFile  string `flag:"token-file" desc:"file containing only the access token"`
	Version    string `flag:"room-version" desc:"room version for the replacement" default:"11"`
	Reason     string `flag:"reason" desc:"tombstone body shown in the old room" default:"This room has been replaced"`
	Invite     bool   `flag:"invite" desc:"invite everyone currently joined into the new room"`
	Dry        bool   `flag:"dry" desc:"print the stage plan without changing anything"`
	Yes        bool   `flag:"yes,y" desc:"skip the confirmation prompt"`
}

func upgradeRoomCommand() *cli.Command {
	var params upgradeParams
	return &cli.Command{
		Name:    "upgrade-room",
		Summary: "Replace a room with a fresh copy and tombstone the original",
		Description: `Rebuild a room on a new room version without losing what makes it
that room. The old room is read first (nothing is written until the
plan is confirmed), then the upgrade runs in stages: create the
replacement with a predecessor pointer and the old power levels,
replay the copyable state events, optionally invite everyone who is
joined (--invite), move the aliases over, tombstone the old room,
and finally raise the old room's power levels so nobody can keep
talking underneath the tombstone.

Every stage that can be reverted pushes an undo; if a later stage
fails, the completed ones are unwound in reverse order and the
command reports both the failure and what it managed to restore.
Some things cannot be unwound: Matrix has no way to delete a room or
withdraw a tombstone, so a failure after those stages leaves the
replacement room behind and says so.

Clients follow the tombstone automatically. Members who were not
invited can still find the new room through it.`,
		Usage: "nex matrix upgrade-room <room-id> [flags]",
		Examples: []cli.Example{
			{
				Description: "Print the stage plan and stop",
				Command:     "nex matrix upgrade-room '!abc123:example.org' --dry",
			},
			{
				Description: "Upgrade to room version 12 and re-invite everyone",
				Command:     "nex matrix upgrade-room '!abc123:example.org' --room-version 12 --invite",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("expected exactly one room ID")
			}
			return runUpgrade(ctx, params, args[0], prompt.New(), logger)
		},
	}
}

func runUpgrade(ctx context.Context, params upgradeParams, roomID string, prompter *prompt.Prompter, logger *slog.Logger) error {
	if !strings.HasPrefix(roomID, "!") {
		return cli.Validation("%q is not a room ID (IDs start with '!'; resolve the alias first)", roomID)
	}
	if params.Version == "" {
		return cli.Validation("--room-version must not be empty")
	}

	cfg, err := loadConfig(params.Config)
	if err != nil {
		return err
	}
	homeserver := params.Homeserver
	if homeserver == "" {
		homeserver = cfg.Matrix.Homeserver
	}
	if homeserver == "" {
		return cli.Validation("a homeserver URL is required (--homeserver or matrix.homeserver in the config)")
	}
	token, err := resolveToken(params.Token, params.TokenFile, cfg.Matrix, prompter)
	if err != nil {
		return err
	}

	client, err := matrix.NewClient(matrix.ClientConfig{
		HomeserverURL: homeserver,
		Token:         token,
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
		Logger:        logger,
	})
	if err != nil {
		return cli.Validation("%v", err)
	}

	self, err := client.WhoAmI(ctx)
	if err != nil {
		return classifyMatrixError(err, "checking the token")
	}
	logger.Debug("authenticated", "user_id", self)
	if cfg.Matrix.UserID != "" && cfg.Matrix.UserID != self {
		logger.Warn("token does not belong to the configured user",
			"token_user", self, "configured", cfg.Matrix.UserID)
	}

	snap, err := takeSnapshot(ctx, client, roomID)
	if err != nil {
		return err
	}

	u := &upgrade{
		client:  client,
		logger:  logger,
		old:     snap,
		self:    self,
		version: params.Version,
		reason:  params.Reason,
		invite:  params.Invite,
	}
	u.buildStages()

	printPlan(snap, u.stages)
	if params.Dry {
		fmt.Println("dry run: nothing was changed")
		return nil
	}
	if !params.Yes {
		confirmed, confirmErr := prompter.Confirm(fmt.Sprintf("upgrade %s? the old room will be tombstoned", roomID), false)
		if confirmErr != nil {
			return cli.Validation("confirmation needs interactive input (or pass --yes)")
		}
		if !confirmed {
			fmt.Println("aborted")
			return nil
		}
	}

	if err := u.execute(ctx); err != nil {
		return err
	}
	fmt.Printf("upgraded %s -> %s\n", roomID, u.newRoomID)
	if snap.alias != "" {
		fmt.Printf("%s now points at the new room\n", snap.alias)
	}
	return nil
}

// stage is one step of the upgrade. run does the work; undo reverts it
// during rollback, or acknowledges that it cannot. A nil undo means
// there is genuinely nothing to say (the created room absorbs it).
type stage struct {
	name   string // short, for logs
	detail string // one line of the printed plan
	run    func(context.Context) error
	undo   func(context.Context) error
}

// upgrade carries the state shared between stages. newRoomID and moved
// are written as stages complete and read by later runs and undos.
type upgrade struct {
	client *matrix.Client
	logger *slog.Logger
	old    *snapshot
	self   string

	version string
	reason  string
	invite  bool

	newRoomID string
	moved     []string // aliases already re-pointed, for undo
	stages    []stage
}

func (u *upgrade) buildStages() {
	u.stages = append(u.stages, u.createStage())
	if events := u.old.copyable(); len(events) > 0 {
		u.stages = append(u.stages, u.copyStage(events))
	}
	if u.invite {
		if invitees := u.invitees(); len(invitees) > 0 {
			u.stages = append(u.stages, u.inviteStage(invitees))
		}
	}
	if len(u.old.aliases) > 0 {
		u.stages = append(u.stages, u.aliasStage())
	}
	u.stages = append(u.stages, u.tombstoneStage(), u.lockStage())
}

// execute runs the stages in order. On failure, completed stages are
// unwound in reverse; the rollback runs on a detached context so an
// interrupt that caused the failure does not also kill the cleanup.
func (u *upgrade) execute(ctx context.Context) error {
	var completed []stage
	for _, current := range u.stages {
		u.logger.Info("stage", "name", current.name)
		if err := current.run(ctx); err != nil {
			u.logger.Error("stage failed", "stage", current.name, "error", err)
			rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
			unwound := u.rollback(rollbackCtx, completed)
			cancel()
			operation := fmt.Sprintf("stage %q failed; unwound %d completed stage(s)", current.name, unwound)
			return classifyMatrixError(err, operation)
		}
		completed = append(completed, current)
	}
	return nil
}

func (u *upgrade) rollback(ctx context.Context, completed []stage) int {
	unwound := 0
	for i := len(completed) - 1; i >= 0; i-- {
		st := completed[i]
		if st.undo == nil {
			continue
		}
		u.logger.Warn("reverting stage", "stage", st.name)
		if err := st.undo(ctx); err != nil {
			u.logger.Error("revert failed", "stage", st.name, "error", err)
			continue
		}
		unwound++
	}
	return unwound
}

func (u *upgrade) createStage() stage {
	detail := fmt.Sprintf("create a replacement room (version %s, %s", u.version, u.old.preset)
	if u.old.name != "" {
		detail += fmt.Sprintf(", name %q", u.old.name)
	}
	detail += ")"
	return stage{
		name:   "create replacement room",
		detail: detail,
		run: func(ctx context.Context) error {
			roomID, err := u.client.CreateRoom(ctx, matrix.CreateRoomRequest{
				Name:        u.old.name,
				Topic:       u.old.topic,
				Preset:      u.old.preset,
				RoomVersion: u.version,
				CreationContent: map[string]any{
					"predecessor": map[string]string{"room_id": u.old.roomID},
				},
				PowerLevelContentOverride: u.old.powerLevels,
			})
			if err != nil {
				return err
			}
			u.newRoomID = roomID
			return nil
		},
		undo: func(context.Context) error {
			u.logger.Warn("rooms cannot be deleted; abandoning the replacement", "room_id", u.newRoomID)
			return nil
		},
	}
}

func (u *upgrade) copyStage(events []matrix.StateEvent) stage {
	return stage{
		name:   "copy state",
		detail: fmt.Sprintf("copy %d state event(s)", len(events)),
		run: func(ctx context.Context) error {
			for _, event := range events {
				if _, err := u.client.SetRoomState(ctx, u.newRoomID, event.Type, event.StateKey, event.Content); err != nil {
					return err
				}
			}
			return nil
		},
		// Copied state stays with the abandoned replacement room.
	}
}

func (u *upgrade) inviteStage(invitees []string) stage {
	return stage{
		name:   "invite members",
		detail: fmt.Sprintf("invite %d joined member(s)", len(invitees)),
		run: func(ctx context.Context) error {
			failed := 0
			for _, userID := range invitees {
				if err := u.client.InviteUser(ctx, u.newRoomID, userID); err != nil {
					failed++
					u.logger.Warn("invite failed", "user_id", userID, "error", err)
				}
			}
			if failed == len(invitees) {
				return fmt.Errorf("all %d invites failed", failed)
			}
			if failed > 0 {
				u.logger.Warn("some invites failed; the tombstone will route the rest", "failed", failed)
			}
			return nil
		},
		// Invitations to the abandoned room expire on their own.
	}
}

func (u *upgrade) aliasStage() stage {
	detail := fmt.Sprintf("move %d alias(es) to the new room", len(u.old.aliases))
	if u.old.alias != "" {
		detail += fmt.Sprintf(" (%s canonical)", u.old.alias)
	}
	return stage{
		name:   "transfer aliases",
		detail: detail,
		run: func(ctx context.Context) error {
			for _, alias := range u.old.aliases {
				if err := u.client.DeleteAlias(ctx, alias); err != nil {
					return err
				}
				if err := u.client.CreateAlias(ctx, alias, u.newRoomID); err != nil {
					return err
				}
				u.moved = append(u.moved, alias)
			}
			if u.old.alias != "" {
				content := map[string]string{"alias": u.old.alias}
				if _, err := u.client.SetRoomState(ctx, u.newRoomID, "m.room.canonical_alias", "", content); err != nil {
					return err
				}
				if _, err := u.client.SetRoomState(ctx, u.old.roomID, "m.room.canonical_alias", "", map[string]any{}); err != nil {
					return err
				}
			}
			return nil
		},
		undo: func(ctx context.Context) error {
			var firstErr error
			for _, alias := range u.moved {
				if err := u.client.DeleteAlias(ctx, alias); err != nil && firstErr == nil {
					firstErr = err
				}
				if err := u.client.CreateAlias(ctx, alias, u.old.roomID); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			if u.old.alias != "" && u.old.canonicalAlias != nil {
				if _, err := u.client.SetRoomState(ctx, u.old.roomID, "m.room.canonical_alias", "", u.old.canonicalAlias); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		},
	}
}

func (u *upgrade) tombstoneStage() stage {
	return stage{
		name:   "tombstone the old room",
		detail: "tombstone the old room",
		run: func(ctx context.Context) error {
			content := map[string]any{"replacement_room": u.newRoomID}
			if u.reason != "" {
				content["body"] = u.reason
			}
			_, err := u.client.SetRoomState(ctx, u.old.roomID, "m.room.tombstone", "", content)
			return err
		},
		undo: func(context.Context) error {
			u.logger.Warn("a tombstone cannot be withdrawn; the old room still points at the abandoned replacement")
			return nil
		},
	}
}

func (u *upgrade) lockStage() stage {
	return stage{
		name:   "lock the old room",
		detail: "lock the old room against further messages",
		run: func(ctx context.Context) error {
			levels, err := floorPowerLevels(u.old.powerLevels)
			if err != nil {
				return err
			}
			_, err = u.client.SetRoomState(ctx, u.old.roomID, "m.room.power_levels", "", levels)
			return err
		},
		undo: func(ctx context.Context) error {
			_, err := u.client.SetRoomState(ctx, u.old.roomID, "m.room.power_levels", "", u.old.powerLevels)
			return err
		},
	}
}

// invitees is everyone joined to the old room except the upgrading
// user, who is already in the new room as its creator.
func (u *upgrade) invitees() []string {
	var out []string
	for _, member := range u.old.members {
		if member != u.self {
			out = append(out, member)
		}
	}
	return out
}

func printPlan(snap *snapshot, stages []stage) {
	fmt.Printf("upgrade plan for %s (room version %s):\n", snap.roomID, snap.version)
	for i, st := range stages {
		fmt.Printf("  %d. %s\n", i+1, st.detail)
	}
}
