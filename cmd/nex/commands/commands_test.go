// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/nexutils/nex/cmd/nex/cli"
)

func TestRootCommandTree(t *testing.T) {
	root := Root()
	if root.Name != "nex" {
		t.Errorf("root name = %q, want nex", root.Name)
	}

	seen := map[string]bool{}
	for _, sub := range root.Subcommands {
		if sub.Name == "" || sub.Summary == "" {
			t.Errorf("subcommand %+v is missing a name or summary", sub)
		}
		if seen[sub.Name] {
			t.Errorf("duplicate command %q", sub.Name)
		}
		seen[sub.Name] = true
	}

	for _, name := range []string{
		"upnp", "ddns", "wg", "portal", "speedtest",
		"download", "hash", "filegen", "flash", "rm", "ruin",
		"systemd", "matrix", "version",
	} {
		if !seen[name] {
			t.Errorf("missing command %q", name)
		}
	}
}

// Every command must either run or dispatch; anything else is a dead
// branch a user can get stuck on.
func TestEveryCommandIsRunnable(t *testing.T) {
	var walk func(path string, command *cli.Command)
	walk = func(path string, command *cli.Command) {
		name := strings.TrimSpace(path + " " + command.Name)
		if command.Run == nil && len(command.Subcommands) == 0 {
			t.Errorf("%s has neither Run nor subcommands", name)
		}
		for _, sub := range command.Subcommands {
			walk(name, sub)
		}
	}
	walk("", Root())
}

func TestVersionCommand(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := Root().Execute(context.Background(), []string{"version"}, logger); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if err := Root().Execute(context.Background(), []string{"version", "--json"}, logger); err != nil {
		t.Fatalf("version --json failed: %v", err)
	}
}
