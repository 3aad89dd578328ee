// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package unitfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// Systemctl runs the systemctl binary, in user or system scope.
type Systemctl struct {
	// Binary is the systemctl executable. Empty means "systemctl".
	Binary string

	// User adds --user to every invocation.
	User bool
}

// NewSystemctl returns a systemctl wrapper for the given scope.
func NewSystemctl(user bool) *Systemctl {
	return &Systemctl{User: user}
}

func (ctl *Systemctl) run(ctx context.Context, args ...string) (string, error) {
	binary := ctl.Binary
	if binary == "" {
		binary = "systemctl"
	}
	if ctl.User {
		args = append([]string{"--user"}, args...)
	}
	output, err := exec.CommandContext(ctx, binary, args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("systemctl %s: %w (%s)", strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

// Available reports whether systemctl exists on PATH. Hosts without
// systemd get a clear refusal instead of exec errors later.
func Available() bool {
	_, err := exec.LookPath("systemctl")
	return err == nil
}

// Unit is one row of systemctl list-units --output=json.
type Unit struct {
	Unit        string `json:"unit"`
	Load        string `json:"load"`
	Active      string `json:"active"`
	Sub         string `json:"sub"`
	Description string `json:"description"`
}

// ListTargets returns the target units systemd currently knows, for
// choosing a WantedBy= install target.
func (ctl *Systemctl) ListTargets(ctx context.Context) ([]Unit, error) {
	output, err := ctl.run(ctx, "list-units", "--type=target", "--all", "--no-pager", "--output=json")
	if err != nil {
		return nil, err
	}
	var units []Unit
	if err := json.Unmarshal([]byte(output), &units); err != nil {
		return nil, fmt.Errorf("decoding systemctl output: %w", err)
	}
	return units, nil
}

// DaemonReload makes systemd re-read unit files.
func (ctl *Systemctl) DaemonReload(ctx context.Context) error {
	_, err := ctl.run(ctx, "daemon-reload")
	return err
}

// Enable marks the unit to start at boot.
func (ctl *Systemctl) Enable(ctx context.Context, unitName string) error {
	_, err := ctl.run(ctx, "enable", unitName)
	return err
}

// Start starts the unit now.
func (ctl *Systemctl) Start(ctx context.Context, unitName string) error {
	_, err := ctl.run(ctx, "start", unitName)
	return err
}
