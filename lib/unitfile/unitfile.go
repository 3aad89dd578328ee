// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package unitfile builds systemd service units. A Service collects
// the handful of directives the generator supports, validates them,
// and serializes through go-systemd so quoting and section layout
// match what systemd itself parses.
package unitfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/coreos/go-systemd/v22/unit"
)

// SystemUnitDir is where system-wide service units live.
const SystemUnitDir = "/etc/systemd/system"

// serviceTypes are the Type= values systemd.service(5) accepts.
var serviceTypes = []string{"simple", "exec", "forking", "oneshot", "dbus", "notify", "idle"}

// restartModes are the Restart= values systemd.service(5) accepts.
var restartModes = []string{"no", "always", "on-success", "on-failure", "on-abnormal", "on-abort", "on-watchdog"}

var namePattern = regexp.MustCompile(`^[\w.\-]{1,255}$`)

// Service describes a unit to generate. Zero-valued fields are left
// out of the rendered file; Name, Description, and ExecStart are
// required.
type Service struct {
	// Name is the unit name without the .service suffix.
	Name string

	// Description fills Unit.Description.
	Description string

	// ExecStart is the full command line. Its first word must be an
	// absolute path; AbsoluteExec rewrites relative commands.
	ExecStart string

	// Type is the service type. Empty means "simple".
	Type string

	// Restart selects the restart policy, e.g. "always" or
	// "on-failure". Empty leaves restarting off.
	Restart string

	// RestartSec is the delay between restarts, in systemd time span
	// syntax ("5s", "1min"). Only written when Restart is set.
	RestartSec string

	// MaxRestarts caps how many restarts may happen in a burst
	// (StartLimitBurst). Zero leaves the systemd default.
	MaxRestarts int

	// Requires and After order the unit against other units.
	Requires []string
	After    []string

	// Wants declares soft dependencies.
	Wants []string

	// CPUQuota limits CPU use as a percentage of one core. Zero
	// means unlimited.
	CPUQuota int

	// MemoryMax limits memory in systemd size syntax ("512M", "1G").
	// Empty means unlimited.
	MemoryMax string

	// WantedBy is the install target. Empty means "multi-user.target".
	WantedBy string
}

// Validate reports the first problem that would produce a broken or
// rejected unit file.
func (service *Service) Validate() error {
	if !namePattern.MatchString(service.Name) {
		return fmt.Errorf("service name %q: must be 1-255 characters of A-Za-z0-9._-", service.Name)
	}
	if strings.TrimSpace(service.Description) == "" {
		return errors.New("service description is required")
	}
	if strings.TrimSpace(service.ExecStart) == "" {
		return errors.New("service command (ExecStart) is required")
	}
	if service.Type != "" && !contains(serviceTypes, service.Type) {
		return fmt.Errorf("service type %q: must be one of %s", service.Type, strings.Join(serviceTypes, ", "))
	}
	if service.Restart != "" && !contains(restartModes, service.Restart) {
		return fmt.Errorf("restart mode %q: must be one of %s", service.Restart, strings.Join(restartModes, ", "))
	}
	if service.MaxRestarts < 0 {
		return fmt.Errorf("max restarts %d: cannot be negative", service.MaxRestarts)
	}
	if service.CPUQuota < 0 {
		return fmt.Errorf("cpu quota %d%%: cannot be negative", service.CPUQuota)
	}
	return nil
}

func contains(values []string, value string) bool {
	for _, candidate := range values {
		if candidate == value {
			return true
		}
	}
	return false
}

// FileName returns the on-disk name, appending .service when the
// service name lacks a unit suffix.
func (service *Service) FileName() string {
	if strings.HasSuffix(service.Name, ".service") {
		return service.Name
	}
	return service.Name + ".service"
}

// Options lays out the unit directives in Unit, Service, Install
// section order.
func (service *Service) Options() []*unit.UnitOption {
	options := []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", service.Description),
	}
	if len(service.Requires) > 0 {
		options = append(options, unit.NewUnitOption("Unit", "Requires", strings.Join(service.Requires, " ")))
	}
	if len(service.After) > 0 {
		options = append(options, unit.NewUnitOption("Unit", "After", strings.Join(service.After, " ")))
	}
	if len(service.Wants) > 0 {
		options = append(options, unit.NewUnitOption("Unit", "Wants", strings.Join(service.Wants, " ")))
	}

	serviceType := service.Type
	if serviceType == "" {
		serviceType = "simple"
	}
	options = append(options,
		unit.NewUnitOption("Service", "Type", serviceType),
		unit.NewUnitOption("Service", "ExecStart", service.ExecStart),
	)
	if service.Restart != "" {
		options = append(options, unit.NewUnitOption("Service", "Restart", service.Restart))
		if service.RestartSec != "" {
			options = append(options, unit.NewUnitOption("Service", "RestartSec", service.RestartSec))
		}
		if service.MaxRestarts > 0 {
			options = append(options, unit.NewUnitOption("Service", "StartLimitBurst", strconv.Itoa(service.MaxRestarts)))
		}
	}
	if service.CPUQuota > 0 {
		options = append(options,
			unit.NewUnitOption("Service", "CPUAccounting", "yes"),
			unit.NewUnitOption("Service", "CPUQuota", fmt.Sprintf("%d%%", service.CPUQuota)),
		)
	}
	if service.MemoryMax != "" {
		options = append(options,
			unit.NewUnitOption("Service", "MemoryAccounting", "yes"),
			unit.NewUnitOption("Service", "MemoryMax", service.MemoryMax),
		)
	}

	wantedBy := service.WantedBy
	if wantedBy == "" {
		wantedBy = "multi-user.target"
	}
	options = append(options, unit.NewUnitOption("Install", "WantedBy", wantedBy))
	return options
}

// Render validates the service and returns the unit file text.
func (service *Service) Render() (string, error) {
	if err := service.Validate(); err != nil {
		return "", err
	}
	data, err := io.ReadAll(unit.Serialize(service.Options()))
	if err != nil {
		return "", fmt.Errorf("serializing unit: %w", err)
	}
	return string(data), nil
}

// UserUnitDir returns the per-user unit directory
// (~/.config/systemd/user), creating it if missing.
func UserUnitDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating user config directory: %w", err)
	}
	dir := filepath.Join(configDir, "systemd", "user")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	return dir, nil
}

// AbsoluteExec resolves the first word of a command line to an
// absolute executable path and returns the rewritten line. systemd
// rejects ExecStart= commands whose argv[0] is relative, so "python3
// bot.py" becomes "/usr/bin/python3 bot.py".
func AbsoluteExec(line string) (string, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", errors.New("empty command")
	}
	command := trimmed
	if cut := strings.IndexAny(trimmed, " \t"); cut >= 0 {
		command = trimmed[:cut]
	}
	if filepath.IsAbs(command) {
		info, err := os.Stat(command)
		if err != nil {
			return "", fmt.Errorf("command %s: %w", command, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("command %s: is a directory", command)
		}
		return trimmed, nil
	}
	resolved, err := exec.LookPath(command)
	if err != nil {
		return "", fmt.Errorf("resolving command %q: %w", command, err)
	}
	resolved, err = filepath.Abs(resolved)
	if err != nil {
		return "", fmt.Errorf("resolving command %q: %w", command, err)
	}
	// Keep the argument tail byte for byte so quoting survives.
	return resolved + trimmed[len(command):], nil
}
