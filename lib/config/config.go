// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for nex commands.
//
// Configuration lives in a single YAML file, located by:
//   - the NEX_CONFIG environment variable, or
//   - $XDG_CONFIG_HOME/nex/config.yaml (via os.UserConfigDir).
//
// The file is optional: every value has a default and every command has
// flag overrides, so a missing file simply yields the defaults. Flags
// always win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for nex.
type Config struct {
	// UPnP configures the port-forwarding commands.
	UPnP UPnPConfig `yaml:"upnp"`

	// DDNS configures the Cloudflare dynamic-DNS commands.
	DDNS DDNSConfig `yaml:"ddns"`

	// Speedtest configures the download speed test.
	Speedtest SpeedtestConfig `yaml:"speedtest"`

	// Matrix configures the Matrix room maintenance commands.
	Matrix MatrixConfig `yaml:"matrix"`
}

// UPnPConfig configures the upnp command group.
type UPnPConfig struct {
	// Rules is the path to the forwarding rule file.
	// Default: <config dir>/upnp-rules.conf
	Rules string `yaml:"rules"`

	// Backend selects how the gateway is driven: "upnpc" (the miniupnpc
	// binary) or "igd" (native UPnP over the network). Default: upnpc.
	Backend string `yaml:"backend"`

	// UpnpcBin is the upnpc binary name or path. Default: upnpc.
	UpnpcBin string `yaml:"upnpc_bin"`

	// Description is attached to mappings created by nex so they are
	// recognizable in the router's table. Default: nex.
	Description string `yaml:"description"`

	// LeaseSeconds is the mapping lease duration. 0 means permanent
	// (or the gateway's maximum, for gateways that refuse 0).
	LeaseSeconds uint32 `yaml:"lease_seconds"`
}

// DDNSConfig configures the ddns command group.
type DDNSConfig struct {
	// Token is the Cloudflare API token. Prefer TokenFile so the config
	// file can be world-readable.
	Token string `yaml:"token"`

	// TokenFile is a path to a file containing only the API token.
	TokenFile string `yaml:"token_file"`

	// Zone is the zone identifier whose records are managed.
	Zone string `yaml:"zone"`

	// Names restricts updates to these record names. Empty means every
	// A record in the zone is a candidate.
	Names []string `yaml:"names"`

	// Resolver is the DNS server used for propagation checks.
	// Default: 1.1.1.1:53.
	Resolver string `yaml:"resolver"`
}

// SpeedtestConfig configures the speedtest command.
type SpeedtestConfig struct {
	// Mirrors is the path to a JSON file (comments allowed) listing
	// download mirrors as {"url": ..., "weight": ...} objects.
	// Default: <config dir>/speedtest-mirrors.json, falling back to the
	// built-in mirror list when the file is absent.
	Mirrors string `yaml:"mirrors"`
}

// MatrixConfig configures the matrix command group.
type MatrixConfig struct {
	// Homeserver is the base URL of the homeserver.
	Homeserver string `yaml:"homeserver"`

	// UserID is the full Matrix user ID (@user:example.org).
	UserID string `yaml:"user_id"`

	// TokenFile is a path to a file containing the access token.
	TokenFile string `yaml:"token_file"`
}

// Dir returns the nex configuration directory ($XDG_CONFIG_HOME/nex).
// The directory is not created.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating user config directory: %w", err)
	}
	return filepath.Join(base, "nex"), nil
}

// Path returns the config file path: NEX_CONFIG if set, otherwise
// Dir()/config.yaml.
func Path() (string, error) {
	if env := os.Getenv("NEX_CONFIG"); env != "" {
		return env, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Default returns the default configuration. These are the values in
// effect when no config file exists.
func Default() *Config {
	cfg := &Config{
		UPnP: UPnPConfig{
			Backend:     "upnpc",
			UpnpcBin:    "upnpc",
			Description: "nex",
		},
		DDNS: DDNSConfig{
			Resolver: "1.1.1.1:53",
		},
	}
	if dir, err := Dir(); err == nil {
		cfg.UPnP.Rules = filepath.Join(dir, "upnp-rules.conf")
		cfg.Speedtest.Mirrors = filepath.Join(dir, "speedtest-mirrors.json")
	}
	return cfg
}

// Load reads the config file at [Path], merged over [Default]. A
// missing file is not an error; unreadable or malformed YAML is.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	cfg, err := LoadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// LoadFile loads configuration from a specific file path, merged over
// [Default]. Unlike [Load], a missing file is an error here: the caller
// named the path explicitly.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}
