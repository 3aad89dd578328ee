// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package upnp

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	natpmp "github.com/jackpal/go-nat-pmp"
)

// DefaultPMPLeaseSeconds is used when a map request asks for a
// permanent mapping: NAT-PMP has no permanent leases (a zero lifetime
// means delete), so requests fall back to the two hours RFC 6886
// recommends.
const DefaultPMPLeaseSeconds = 7200

// pmpTimeout bounds each NAT-PMP exchange. The protocol's own
// retransmission schedule gives up after roughly this long anyway.
const pmpTimeout = 10 * time.Second

// PMP is the NAT-PMP backend. It covers the one-shot map, unmap, and
// external-ip operations only: the protocol has no way to enumerate
// existing mappings, so ListMappings reports ErrListingUnsupported
// and reconciliation refuses to run on it.
type PMP struct {
	client  *natpmp.Client
	gateway netip.Addr
}

// NewPMP returns a NAT-PMP backend talking to the given gateway. A
// zero gateway address triggers default-gateway discovery from the
// OS routing table.
func NewPMP(gateway netip.Addr) (*PMP, error) {
	if !gateway.IsValid() {
		discovered, err := defaultGateway()
		if err != nil {
			return nil, fmt.Errorf("discovering gateway: %w", err)
		}
		gateway = discovered
	}
	client := natpmp.NewClientWithTimeout(net.IP(gateway.AsSlice()), pmpTimeout)
	return &PMP{client: client, gateway: gateway}, nil
}

// Name implements Backend.
func (backend *PMP) Name() string { return "natpmp" }

// Gateway returns the gateway address the backend talks to.
func (backend *PMP) Gateway() netip.Addr { return backend.gateway }

// ListMappings implements Backend. NAT-PMP cannot enumerate.
func (backend *PMP) ListMappings(ctx context.Context) ([]Mapping, error) {
	return nil, fmt.Errorf("natpmp: %w", ErrListingUnsupported)
}

// AddMapping implements Backend. NAT-PMP ignores the target address
// (mappings always point at the requesting host) and may grant a
// different external port than requested; the grant is not surfaced
// here, so callers that care should ask the gateway afterwards.
func (backend *PMP) AddMapping(ctx context.Context, request MapRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lease := request.LeaseSeconds
	if lease == 0 {
		lease = DefaultPMPLeaseSeconds
	}
	result, err := backend.client.AddPortMapping(
		string(request.Protocol),
		int(request.InternalPort),
		int(request.ExternalPort),
		int(lease),
	)
	if err != nil {
		return fmt.Errorf("natpmp map %d->%d/%s: %w",
			request.ExternalPort, request.InternalPort, request.Protocol, err)
	}
	if result.MappedExternalPort != request.ExternalPort {
		return fmt.Errorf("natpmp map %d->%d/%s: gateway granted external port %d instead",
			request.ExternalPort, request.InternalPort, request.Protocol, result.MappedExternalPort)
	}
	return nil
}

// DeleteMapping implements Backend. NAT-PMP deletes by internal port
// with a zero lifetime; mappings created over NAT-PMP always have
// internal == external port from the gateway's point of view, so the
// external port doubles as the key.
func (backend *PMP) DeleteMapping(ctx context.Context, externalPort uint16, protocol Protocol) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := backend.client.AddPortMapping(string(protocol), int(externalPort), 0, 0); err != nil {
		return fmt.Errorf("natpmp unmap %d/%s: %w", externalPort, protocol, err)
	}
	return nil
}

// ExternalIP implements Backend.
func (backend *PMP) ExternalIP(ctx context.Context) (netip.Addr, error) {
	if err := ctx.Err(); err != nil {
		return netip.Addr{}, err
	}
	result, err := backend.client.GetExternalAddress()
	if err != nil {
		return netip.Addr{}, fmt.Errorf("natpmp external address: %w", err)
	}
	return netip.AddrFrom4(result.ExternalIPAddress), nil
}
