// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package systemd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/prompt"
	"github.com/nexutils/nex/lib/unitfile"
)

type genParams struct {
	Description  string   `flag:"description,d" desc:"Unit description"`
	Exec         string   `flag:"exec,e" desc:"command line the service runs"`
	Type         string   `flag:"type,t" desc:"service type (simple, exec, forking, oneshot, dbus, notify, idle)" default:"simple"`
	Restart      string   `flag:"restart" desc:"restart policy (always, on-failure, ...); empty disables restarting"`
	RestartSec   string   `flag:"restart-sec" desc:"delay between restarts, e.g. 5s"`
	MaxRestarts  int      `flag:"max-restarts" desc:"restart burst cap (StartLimitBurst); 0 keeps the systemd default"`
	After        []string `flag:"after" desc:"extra units to order after (repeatable)"`
	WantsNetwork bool     `flag:"wants-network" desc:"wait for network-online.target before starting"`
	WantedBy     string   `flag:"wanted-by" desc:"install target (default multi-user.target, default.target with --user)"`
	CPUQuota     int      `flag:"cpu-quota" desc:"CPU limit as a percentage of one core; 0 is unlimited"`
	MemoryMax    string   `flag:"memory-max" desc:"memory limit, e.g. 512M; empty is unlimited"`
	User         bool     `flag:"user,u" desc:"generate a user unit under ~/.config/systemd/user"`
	Stdout       bool     `flag:"stdout" desc:"print the unit file instead of installing it"`
	Enable       bool     `flag:"enable" desc:"systemctl enable the unit after writing"`
	Start        bool     `flag:"start" desc:"systemctl start the unit after writing"`
}

func genCommand() *cli.Command {
	var params genParams
	return &cli.Command{
		Name:    "gen",
		Summary: "Generate a service unit from a command line",
		Description: `Build a .service unit and install it into the systemd search path:
/etc/systemd/system normally, ~/.config/systemd/user with --user.
When the system directory is not writable the unit lands in the
current directory instead, ready for a manual sudo mv.

The unit name, description, and command are prompted for when not
given. The command's first word is resolved through PATH, since
systemd rejects relative ExecStart= paths. Units always order after
network.target; --wants-network additionally waits for
network-online.target, for services that need a configured address
rather than just a link.

After installing, systemd is reloaded and the unit is enabled and
started according to --enable and --start; with neither flag the
command asks. systemctl failures at that stage are reported but do
not fail the run, because the unit file itself is already in place.`,
		Usage: "nex systemd gen [name] [flags]",
		Examples: []cli.Example{
			{
				Description: "A restarting system service with a memory cap",
				Command:     "sudo nex systemd gen bot -d 'Chat bot' -e '/opt/bot/run.sh' --restart always --restart-sec 5s --memory-max 512M",
			},
			{
				Description: "Preview the unit file without touching the system",
				Command:     "nex systemd gen bot -d 'Chat bot' -e '/opt/bot/run.sh' --stdout",
			},
			{
				Description: "Install, enable, and start in one go",
				Command:     "sudo nex systemd gen backup -d 'Nightly backup' -e '/usr/local/bin/backup.sh' --type oneshot --enable --start",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 1 {
				return cli.Validation("unexpected argument: %s", args[1])
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runGen(ctx, params, name, prompt.New(), logger)
		},
	}
}

func runGen(ctx context.Context, params genParams, name string, prompter *prompt.Prompter, logger *slog.Logger) error {
	service, err := buildService(params, name, prompter)
	if err != nil {
		return err
	}

	content, err := service.Render()
	if err != nil {
		return cli.Validation("%v", err)
	}

	if params.Stdout {
		fmt.Print(content)
		return nil
	}

	path, fellBack, err := writeUnit(content, service.FileName(), params.User)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	if fellBack {
		// Out of the search path, so reload/enable/start make no sense.
		logger.Warn("no permission to write the system unit directory; install by hand",
			"hint", fmt.Sprintf("sudo mv %s %s/", path, unitfile.SystemUnitDir))
		return nil
	}

	return activateUnit(ctx, params, service, prompter, logger)
}

// buildService assembles the Service from flags, prompting for the
// essentials (name, description, command) when they are missing.
func buildService(params genParams, name string, prompter *prompt.Prompter) (*unitfile.Service, error) {
	var err error
	if name == "" {
		name, err = prompter.Line("unit name", "")
		if err != nil || name == "" {
			return nil, cli.Validation("a unit name is required (pass it as the first argument)")
		}
	}
	description := params.Description
	if description == "" {
		description, err = prompter.Line("description", "")
		if err != nil || description == "" {
			return nil, cli.Validation("a description is required (--description)")
		}
	}
	execStart := params.Exec
	if execStart == "" {
		execStart, err = prompter.Line("command to run", "")
		if err != nil || execStart == "" {
			return nil, cli.Validation("a command is required (--exec)")
		}
	}
	execStart, err = unitfile.AbsoluteExec(execStart)
	if err != nil {
		return nil, cli.Validation("%v", err)
	}

	after := []string{"network.target"}
	var wants []string
	if params.WantsNetwork {
		after = append(after, "network-online.target")
		wants = append(wants, "network-online.target")
	}
	after = append(after, params.After...)

	service := &unitfile.Service{
		Name:        name,
		Description: description,
		ExecStart:   execStart,
		Type:        params.Type,
		Restart:     params.Restart,
		RestartSec:  params.RestartSec,
		MaxRestarts: params.MaxRestarts,
		Requires:    []string{"network.target"},
		After:       after,
		Wants:       wants,
		CPUQuota:    params.CPUQuota,
		MemoryMax:   params.MemoryMax,
		WantedBy:    params.WantedBy,
	}
	if params.User && service.WantedBy == "" {
		// User managers have no multi-user.target; their boot anchor
		// is default.target.
		service.WantedBy = "default.target"
	}
	if err := service.Validate(); err != nil {
		return nil, cli.Validation("%v", err)
	}
	return service, nil
}

// writeUnit installs the rendered unit. For system units a permission
// failure falls back to the current directory rather than demanding a
// rerun under sudo.
func writeUnit(content, fileName string, user bool) (path string, fellBack bool, err error) {
	if user {
		dir, dirErr := unitfile.UserUnitDir()
		if dirErr != nil {
			return "", false, cli.Internal("%v", dirErr)
		}
		path = filepath.Join(dir, fileName)
		if writeErr := os.WriteFile(path, []byte(content), 0o644); writeErr != nil {
			return "", false, cli.Internal("writing %s: %w", path, writeErr)
		}
		return path, false, nil
	}

	path = filepath.Join(unitfile.SystemUnitDir, fileName)
	writeErr := os.WriteFile(path, []byte(content), 0o644)
	if writeErr == nil {
		return path, false, nil
	}
	if !errors.Is(writeErr, fs.ErrPermission) {
		return "", false, cli.Internal("writing %s: %w", path, writeErr)
	}
	fallback := "./" + fileName
	if fallbackErr := os.WriteFile(fallback, []byte(content), 0o644); fallbackErr != nil {
		return "", false, cli.Internal("writing %s: %w", fallback, fallbackErr)
	}
	return fallback, true, nil
}

// activateUnit reloads systemd and enables/starts the unit per flags,
// asking when neither flag was given. Failures here are warnings: the
// unit file is already installed, which is the part that matters.
func activateUnit(ctx context.Context, params genParams, service *unitfile.Service, prompter *prompt.Prompter, logger *slog.Logger) error {
	if !unitfile.Available() {
		logger.Warn("systemctl not found on PATH; skipping daemon-reload")
		return nil
	}
	sysctl := unitfile.NewSystemctl(params.User)

	warnUnknownTarget(ctx, sysctl, service.WantedBy, logger)

	reloadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := sysctl.DaemonReload(reloadCtx); err != nil {
		logger.Warn("daemon-reload failed", "error", err)
		return nil
	}

	enable, start := params.Enable, params.Start
	if !enable && !start {
		if answer, err := prompter.Confirm("enable the unit now?", false); err == nil {
			enable = answer
		}
		if answer, err := prompter.Confirm("start the unit now?", false); err == nil {
			start = answer
		}
	}

	unitName := service.FileName()
	if enable {
		if err := sysctl.Enable(ctx, unitName); err != nil {
			logger.Warn("enable failed", "unit", unitName, "error", err)
		} else {
			fmt.Printf("enabled %s\n", unitName)
		}
	}
	if start {
		if err := sysctl.Start(ctx, unitName); err != nil {
			logger.Warn("start failed", "unit", unitName, "error", err)
		} else {
			fmt.Printf("started %s\n", unitName)
		}
	}
	return nil
}

// warnUnknownTarget flags install targets systemd has never heard of,
// catching typos like "multiuser.target" before the unit silently
// never starts at boot. Best effort; listing failures are ignored.
func warnUnknownTarget(ctx context.Context, sysctl *unitfile.Systemctl, wantedBy string, logger *slog.Logger) {
	if wantedBy == "" {
		return
	}
	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	targets, err := sysctl.ListTargets(listCtx)
	if err != nil || len(targets) == 0 {
		return
	}
	for _, target := range targets {
		if target.Unit == wantedBy {
			return
		}
	}
	logger.Warn("install target is not known to this system", "target", wantedBy)
}
