// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package upnp reconciles a desired set of port-forwarding rules
// against the live state of the local internet gateway.
//
// The flow is three stages, each independently usable:
//
//   - [ParseRules] reads the rule file (internal_port [external_port]
//     protocol per line) into [Rule] values, collecting malformed
//     lines as [LineError]s without aborting.
//   - [BuildPlan] diffs rules against the gateway's live [Mapping]
//     list. The first claim on an (external port, protocol) pair wins,
//     whether it comes from the router or from an earlier rule in the
//     same run; losers become [Conflict]s.
//   - [Apply] executes the plan against a [Backend], collecting
//     per-action failures so one refused port never aborts the rest.
//
// Three backends implement [Backend]: [Upnpc] shells out to the
// miniupnpc CLI, [IGD] speaks UPnP natively via goupnp, and [PMP]
// speaks NAT-PMP (one-shot operations only — the protocol cannot
// enumerate mappings, so it cannot serve reconciliation).
package upnp
