// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package matrix implements the "nex matrix" command group:
// maintenance chores against a Matrix homeserver.
package matrix

import (
	"errors"
	"os"
	"strings"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/config"
	"github.com/nexutils/nex/lib/matrix"
	"github.com/nexutils/nex/lib/prompt"
)

// Command returns the "matrix" parent command with all subcommands.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "matrix",
		Summary: "Room maintenance on a Matrix homeserver",
		Description: `Administrative chores the Matrix spec has no good answer for.
"upgrade-room" replaces a room with a fresh copy: unlike the server's
own /upgrade endpoint it copies the state that matters (avatar, ACLs,
space parents, custom events), carries the power levels over
verbatim, and can invite everyone back.

The homeserver URL comes from --homeserver or matrix.homeserver in
the config. The access token is read from --token-file (or
matrix.token_file); keep it in a mode-0600 file rather than on the
command line.`,
		Subcommands: []*cli.Command{
			upgradeRoomCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "See what an upgrade would touch",
				Command:     "nex matrix upgrade-room '!abc123:example.org' --dry",
			},
			{
				Description: "Upgrade a room and bring the members along",
				Command:     "nex matrix upgrade-room '!abc123:example.org' --invite",
			},
		},
	}
}

// resolveToken finds the access token: flags beat the config file, and
// an interactive prompt is the last resort.
func resolveToken(flagToken, flagTokenFile string, cfg config.MatrixConfig, prompter *prompt.Prompter) (string, error) {
	switch {
	case flagToken != "":
		return flagToken, nil
	case flagTokenFile != "":
		return readTokenFile(flagTokenFile)
	case cfg.TokenFile != "":
		return readTokenFile(cfg.TokenFile)
	}
	token, err := prompter.Secret("matrix access token")
	if err != nil || token == "" {
		return "", cli.Validation("an access token is required (--token-file or matrix.token_file in the config)")
	}
	return token, nil
}

func readTokenFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", cli.NotFound("reading token file: %v", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", cli.Validation("token file %s is empty", path)
	}
	return token, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return nil, cli.Validation("%v", err)
		}
		return cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, cli.Validation("%v", err)
	}
	return cfg, nil
}

// classifyMatrixError maps homeserver failures onto error categories:
// credential and permission problems are forbidden (retrying will not
// help), unknown rooms are not found, alias collisions are conflicts,
// everything else is transient.
func classifyMatrixError(err error, operation string) error {
	var matrixErr *matrix.MatrixError
	if errors.As(err, &matrixErr) {
		switch matrixErr.Code {
		case matrix.ErrCodeUnknownToken:
			return cli.Forbidden("%s: the access token was rejected, log in again", operation)
		case matrix.ErrCodeForbidden:
			return cli.Forbidden("%s: %v", operation, err)
		case matrix.ErrCodeNotFound:
			return cli.NotFound("%s: %v", operation, err)
		case matrix.ErrCodeRoomInUse:
			return cli.Conflict("%s: %v", operation, err)
		}
	}
	return cli.Transient("%s: %v", operation, err)
}
