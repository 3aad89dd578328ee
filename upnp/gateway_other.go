// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package upnp

import (
	"errors"
	"net/netip"
)

// defaultGateway is only implemented for Linux routing tables; other
// platforms must pass the gateway address explicitly.
func defaultGateway() (netip.Addr, error) {
	return netip.Addr{}, errors.New("gateway discovery is not supported on this platform; pass the gateway address explicitly")
}
