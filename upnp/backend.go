// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package upnp

import (
	"context"
	"errors"
	"net/netip"
)

// Mapping is one live port mapping on the router: external traffic on
// ExternalPort/Protocol is being forwarded to TargetIP:TargetPort.
// Mappings are re-listed from the router every run and never persisted.
type Mapping struct {
	ExternalPort uint16     `json:"external_port"`
	Protocol     Protocol   `json:"protocol"`
	TargetIP     netip.Addr `json:"target_ip"`
	TargetPort   uint16     `json:"target_port"`
	Description  string     `json:"description,omitempty"`

	// LeaseSeconds is the remaining lease when the backend reports
	// one; zero means permanent or unreported.
	LeaseSeconds uint32 `json:"lease_seconds,omitempty"`
}

// MapRequest asks a backend to create one mapping. Protocol must be
// concrete (tcp or udp); planning expands ProtocolBoth before any
// backend sees it.
type MapRequest struct {
	InternalPort uint16
	ExternalPort uint16
	Protocol     Protocol
	TargetIP     netip.Addr
	Description  string

	// LeaseSeconds of zero requests a permanent mapping.
	LeaseSeconds uint32
}

// ErrListingUnsupported is returned by ListMappings on backends whose
// protocol has no enumeration operation (NAT-PMP). Reconciliation
// needs a listing, so ensure refuses such backends up front; one-shot
// map and unmap commands work fine.
var ErrListingUnsupported = errors.New("backend cannot list mappings")

// Backend creates, deletes, and enumerates port mappings on the
// gateway. Implementations: the upnpc subprocess wrapper, the native
// goupnp IGD client, and the NAT-PMP client.
type Backend interface {
	// Name identifies the backend in logs and error messages.
	Name() string

	// ListMappings returns every active mapping, or
	// ErrListingUnsupported when the protocol cannot enumerate.
	ListMappings(ctx context.Context) ([]Mapping, error)

	// AddMapping creates one mapping.
	AddMapping(ctx context.Context, request MapRequest) error

	// DeleteMapping removes the mapping for an external port and
	// protocol.
	DeleteMapping(ctx context.Context, externalPort uint16, protocol Protocol) error

	// ExternalIP reports the gateway's WAN address.
	ExternalIP(ctx context.Context) (netip.Addr, error)
}
