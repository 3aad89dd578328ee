// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package upnp

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/huin/goupnp/dcps/internetgateway2"
	"github.com/huin/goupnp/soap"
)

// igdClient is the slice of the generated goupnp client API the
// backend needs. WANIPConnection1, WANIPConnection2, and
// WANPPPConnection1 all satisfy it.
type igdClient interface {
	AddPortMappingCtx(ctx context.Context, remoteHost string, externalPort uint16, protocol string,
		internalPort uint16, internalClient string, enabled bool, description string, leaseSeconds uint32) error
	DeletePortMappingCtx(ctx context.Context, remoteHost string, externalPort uint16, protocol string) error
	GetExternalIPAddressCtx(ctx context.Context) (string, error)
	GetGenericPortMappingEntryCtx(ctx context.Context, index uint16) (remoteHost string, externalPort uint16,
		protocol string, internalPort uint16, internalClient string, enabled bool,
		description string, leaseSeconds uint32, err error)
}

// IGD talks the UPnP IGD protocol directly over goupnp, with one
// discovery per process instead of one per operation like the upnpc
// backend.
type IGD struct {
	client  igdClient
	service string
}

// DiscoverIGD locates an internet gateway on the local network. It
// negotiates the newest service the gateway offers: WANIPConnection2,
// then WANIPConnection1, then WANPPPConnection1 for PPPoE gateways.
// When several gateways answer, the first is used.
func DiscoverIGD(ctx context.Context) (*IGD, error) {
	if clients, _, err := internetgateway2.NewWANIPConnection2ClientsCtx(ctx); err == nil && len(clients) > 0 {
		return &IGD{client: clients[0], service: "WANIPConnection2"}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if clients, _, err := internetgateway2.NewWANIPConnection1ClientsCtx(ctx); err == nil && len(clients) > 0 {
		return &IGD{client: clients[0], service: "WANIPConnection1"}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if clients, _, err := internetgateway2.NewWANPPPConnection1ClientsCtx(ctx); err == nil && len(clients) > 0 {
		return &IGD{client: clients[0], service: "WANPPPConnection1"}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("no UPnP gateway found (tried WANIPConnection2, WANIPConnection1, WANPPPConnection1)")
}

// Name implements Backend.
func (backend *IGD) Name() string { return "igd" }

// Service returns the gateway service the discovery negotiated,
// e.g. "WANIPConnection2".
func (backend *IGD) Service() string { return backend.service }

// maxMappingIndex bounds the listing walk on gateways that never
// return the end-of-array fault.
const maxMappingIndex = 4096

// ListMappings implements Backend by walking the gateway's mapping
// array until the end-of-array SOAP fault.
func (backend *IGD) ListMappings(ctx context.Context) ([]Mapping, error) {
	var mappings []Mapping
	for index := 0; index < maxMappingIndex; index++ {
		_, externalPort, protocolName, internalPort, internalClient, enabled, description, leaseSeconds,
			err := backend.client.GetGenericPortMappingEntryCtx(ctx, uint16(index))
		if err != nil {
			if isEndOfMappings(err) {
				return mappings, nil
			}
			return nil, fmt.Errorf("listing mapping %d: %w", index, err)
		}
		if !enabled {
			continue
		}
		protocol, err := ParseProtocol(protocolName)
		if err != nil {
			return nil, fmt.Errorf("listing mapping %d: %w", index, err)
		}
		targetIP, err := netip.ParseAddr(internalClient)
		if err != nil {
			return nil, fmt.Errorf("listing mapping %d: target address %q: %w", index, internalClient, err)
		}
		mappings = append(mappings, Mapping{
			ExternalPort: externalPort,
			Protocol:     protocol,
			TargetIP:     targetIP,
			TargetPort:   internalPort,
			Description:  description,
			LeaseSeconds: leaseSeconds,
		})
	}
	return mappings, nil
}

// isEndOfMappings reports whether err is the SOAP fault a gateway
// raises when the mapping index runs past the end of the array:
// 713 SpecifiedArrayIndexInvalid per the WANIPConnection service
// definition, though some gateways answer 714 NoSuchEntryInArray.
func isEndOfMappings(err error) bool {
	var fault *soap.SOAPFaultError
	if !errors.As(err, &fault) {
		return false
	}
	code := fault.Detail.UPnPError.Errorcode
	return code == 713 || code == 714
}

// AddPortMapping's protocol argument is uppercase on the wire.
func wireProtocol(protocol Protocol) string {
	return strings.ToUpper(string(protocol))
}

// AddMapping implements Backend.
func (backend *IGD) AddMapping(ctx context.Context, request MapRequest) error {
	err := backend.client.AddPortMappingCtx(ctx,
		"", // remote host: any
		request.ExternalPort,
		wireProtocol(request.Protocol),
		request.InternalPort,
		request.TargetIP.String(),
		true,
		request.Description,
		request.LeaseSeconds,
	)
	if err != nil {
		return fmt.Errorf("adding %d->%d/%s: %w",
			request.ExternalPort, request.InternalPort, request.Protocol, err)
	}
	return nil
}

// DeleteMapping implements Backend.
func (backend *IGD) DeleteMapping(ctx context.Context, externalPort uint16, protocol Protocol) error {
	if err := backend.client.DeletePortMappingCtx(ctx, "", externalPort, wireProtocol(protocol)); err != nil {
		return fmt.Errorf("deleting %d/%s: %w", externalPort, protocol, err)
	}
	return nil
}

// ExternalIP implements Backend.
func (backend *IGD) ExternalIP(ctx context.Context) (netip.Addr, error) {
	reported, err := backend.client.GetExternalIPAddressCtx(ctx)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("querying external address: %w", err)
	}
	address, err := netip.ParseAddr(reported)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("gateway reported external address %q: %w", reported, err)
	}
	return address, nil
}
