// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package upnp

import (
	"context"
	"math"
	"net/netip"

	"github.com/spf13/pflag"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/config"
	"github.com/nexutils/nex/lib/netutil"
	"github.com/nexutils/nex/upnp"
)

// backendFlags is the gateway-backend selector shared by every upnp
// subcommand. It implements cli.FlagBinder so params structs carry it
// as a field. Empty flag values fall through to the config file.
type backendFlags struct {
	Backend  string
	UpnpcBin string
	PMP      bool

	// allowPMP controls whether --pmp is registered. Only the one-shot
	// commands take it: NAT-PMP cannot enumerate mappings, so ensure,
	// list, and revoke have nothing to reconcile or show over it.
	allowPMP bool
}

// AddFlags implements cli.FlagBinder.
func (flags *backendFlags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&flags.Backend, "backend", "", "gateway backend: upnpc or igd (default from config)")
	flagSet.StringVar(&flags.UpnpcBin, "upnpc-bin", "", "upnpc binary name or path (default from config)")
	if flags.allowPMP {
		flagSet.BoolVar(&flags.PMP, "pmp", false, "use NAT-PMP instead of UPnP")
	}
}

// Build constructs the selected backend. IGD selection runs a network
// discovery, so it takes the command context.
func (flags *backendFlags) Build(ctx context.Context, cfg config.UPnPConfig) (upnp.Backend, error) {
	name := flags.Backend
	if flags.PMP {
		if name != "" && name != "natpmp" {
			return nil, cli.Validation("--pmp conflicts with --backend %s", name)
		}
		name = "natpmp"
	}
	if name == "" {
		name = cfg.Backend
	}
	if name == "" {
		name = "upnpc"
	}

	switch name {
	case "upnpc":
		binary := flags.UpnpcBin
		if binary == "" {
			binary = cfg.UpnpcBin
		}
		if binary == "" {
			binary = "upnpc"
		}
		return upnp.NewUpnpc(binary), nil

	case "igd":
		backend, err := upnp.DiscoverIGD(ctx)
		if err != nil {
			return nil, cli.Transient("discovering gateway: %w", err)
		}
		return backend, nil

	case "natpmp":
		if !flags.allowPMP {
			return nil, cli.Validation("backend natpmp only supports map, unmap, and external-ip")
		}
		backend, err := upnp.NewPMP(netip.Addr{})
		if err != nil {
			return nil, cli.Transient("creating natpmp backend: %w", err)
		}
		return backend, nil
	}
	return nil, cli.Validation("unknown backend %q (expected upnpc or igd)", name)
}

// resolveTarget decides where new mappings point and what metadata
// they carry, merging flags over config. A lease of -1 means the flag
// was not given; an empty ip means auto-discover the outbound address.
func resolveTarget(ip, description string, lease int64, cfg *config.Config) (upnp.Target, error) {
	target := upnp.Target{
		Description:  description,
		LeaseSeconds: cfg.UPnP.LeaseSeconds,
	}
	if target.Description == "" {
		target.Description = cfg.UPnP.Description
	}
	if lease >= 0 {
		if lease > math.MaxUint32 {
			return upnp.Target{}, cli.Validation("--lease %d is out of range", lease)
		}
		target.LeaseSeconds = uint32(lease)
	}

	if ip != "" {
		addr, err := netip.ParseAddr(ip)
		if err != nil {
			return upnp.Target{}, cli.Validation("--ip %q is not an address", ip)
		}
		target.IP = addr
		return target, nil
	}
	addr, err := netutil.OutboundIP()
	if err != nil {
		return upnp.Target{}, cli.Transient("discovering outbound address: %w (pass --ip)", err)
	}
	target.IP = addr
	return target, nil
}
