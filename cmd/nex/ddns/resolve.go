// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package ddns

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"slices"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/nexutils/nex/cmd/nex/cli"
)

// resolverAddr normalizes a resolver spec to host:port, defaulting the
// port to 53 so the config can say just "1.1.1.1".
func resolverAddr(resolver string) string {
	if _, _, err := net.SplitHostPort(resolver); err == nil {
		return resolver
	}
	return net.JoinHostPort(resolver, "53")
}

// queryA asks the resolver directly for a name's A records, bypassing
// the system stub resolver and its cache. NXDOMAIN and an empty answer
// both return no addresses without an error.
func queryA(ctx context.Context, resolver, name string) ([]netip.Addr, error) {
	message := new(dns.Msg)
	message.SetQuestion(dns.Fqdn(name), dns.TypeA)

	client := new(dns.Client)
	response, _, err := client.ExchangeContext(ctx, message, resolver)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", resolver, err)
	}
	if response.Rcode != dns.RcodeSuccess && response.Rcode != dns.RcodeNameError {
		return nil, fmt.Errorf("querying %s: %s", resolver, dns.RcodeToString[response.Rcode])
	}

	var addrs []netip.Addr
	for _, answer := range response.Answer {
		record, ok := answer.(*dns.A)
		if !ok {
			continue
		}
		if addr, ok := netip.AddrFromSlice(record.A); ok {
			addrs = append(addrs, addr.Unmap())
		}
	}
	return addrs, nil
}

// awaitPropagation polls the resolver until every name serves the
// target address or the timeout passes. Record TTLs bound how long
// this legitimately takes; five-second polling is gentle enough for
// public resolvers.
func awaitPropagation(ctx context.Context, resolver string, names []string, target netip.Addr, timeout time.Duration, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pending := slices.Clone(names)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		var still []string
		for _, name := range pending {
			addrs, err := queryA(ctx, resolver, name)
			if err != nil {
				logger.Debug("propagation query failed", "name", name, "error", err)
				still = append(still, name)
				continue
			}
			if !slices.Contains(addrs, target) {
				still = append(still, name)
				continue
			}
			logger.Info("propagated", "name", name, "address", target.String())
		}
		if len(still) == 0 {
			fmt.Println("all records verified")
			return nil
		}
		pending = still

		select {
		case <-ctx.Done():
			return cli.Transient("gave up waiting for %s to resolve to %s",
				strings.Join(pending, ", "), target)
		case <-ticker.C:
		}
	}
}
