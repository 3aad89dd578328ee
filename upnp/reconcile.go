// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package upnp

import (
	"context"
	"fmt"
	"net/netip"
)

// Target describes where planned mappings point: the LAN address
// receiving forwarded traffic plus the metadata recorded on the
// router.
type Target struct {
	IP           netip.Addr
	Description  string
	LeaseSeconds uint32
}

// Action is one concrete forwarding request produced by planning. A
// rule with ProtocolBoth contributes two actions.
type Action struct {
	Rule    Rule
	Request MapRequest
}

// Conflict is a desired action that planning refused because its
// external port and protocol are already claimed. Identical marks
// claims that point at the same target the action wanted, meaning the
// mapping is already in place rather than taken by someone else.
// PlannedEarlier marks claims made by an earlier rule in this same
// run rather than by live router state.
type Conflict struct {
	Rule           Rule
	Protocol       Protocol
	Existing       Mapping
	Identical      bool
	PlannedEarlier bool
}

// Plan is the reconciliation outcome: the actions to execute in rule
// order, and the conflicts that were skipped.
type Plan struct {
	Target    Target
	Actions   []Action
	Conflicts []Conflict
}

// portClaim identifies the router-side resource an action consumes.
// Two mappings collide exactly when both halves match: a live
// 8080/tcp mapping does not block a desired 8080/udp one.
type portClaim struct {
	port     uint16
	protocol Protocol
}

// BuildPlan reconciles desired rules against live router state. Rules
// are processed in order; ProtocolBoth expands to TCP then UDP, and
// each expanded action is checked independently. The first rule to
// claim an external port and protocol wins: later claimants are
// recorded as conflicts against either the live mapping or the
// synthetic mapping planned earlier in this run. BuildPlan performs
// no IO.
func BuildPlan(rules []Rule, live []Mapping, target Target) Plan {
	plan := Plan{Target: target}

	claimed := make(map[portClaim]Mapping, len(live))
	plannedHere := make(map[portClaim]bool)
	for _, mapping := range live {
		claimed[portClaim{mapping.ExternalPort, mapping.Protocol}] = mapping
	}

	for _, rule := range rules {
		for _, protocol := range rule.Protocol.Expand() {
			claim := portClaim{rule.External, protocol}
			if existing, taken := claimed[claim]; taken {
				plan.Conflicts = append(plan.Conflicts, Conflict{
					Rule:           rule,
					Protocol:       protocol,
					Existing:       existing,
					Identical:      existing.TargetIP == target.IP && existing.TargetPort == rule.Internal,
					PlannedEarlier: plannedHere[claim],
				})
				continue
			}

			request := MapRequest{
				InternalPort: rule.Internal,
				ExternalPort: rule.External,
				Protocol:     protocol,
				TargetIP:     target.IP,
				Description:  target.Description,
				LeaseSeconds: target.LeaseSeconds,
			}
			plan.Actions = append(plan.Actions, Action{Rule: rule, Request: request})

			// Claim the slot so a duplicate rule later in the file
			// conflicts with this action instead of racing it.
			claimed[claim] = Mapping{
				ExternalPort: rule.External,
				Protocol:     protocol,
				TargetIP:     target.IP,
				TargetPort:   rule.Internal,
				Description:  target.Description,
			}
			plannedHere[claim] = true
		}
	}
	return plan
}

// ActionFailure is one action the backend rejected. The run continues
// past it.
type ActionFailure struct {
	Action Action
	Err    error
}

// Result summarizes an Apply run.
type Result struct {
	Added   []Action
	Failed  []ActionFailure
	Skipped []Conflict
}

// ApplyOptions adjusts Apply behavior.
type ApplyOptions struct {
	// DryRun counts every action as added without touching the
	// backend.
	DryRun bool

	// Observe, when set, is called after each action with its outcome
	// (nil on success or dry run). Wire this to logging or a progress
	// display.
	Observe func(action Action, err error)
}

// Apply executes the plan's actions in order. Backend failures are
// collected per action and do not stop the run; the only error Apply
// itself returns is context cancellation, with the partial result
// accumulated so far. The plan's conflicts pass through as Skipped so
// callers report one Result.
func Apply(ctx context.Context, backend Backend, plan Plan, options ApplyOptions) (Result, error) {
	result := Result{Skipped: plan.Conflicts}
	for _, action := range plan.Actions {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("apply interrupted: %w", err)
		}
		if options.DryRun {
			result.Added = append(result.Added, action)
			if options.Observe != nil {
				options.Observe(action, nil)
			}
			continue
		}
		err := backend.AddMapping(ctx, action.Request)
		if err != nil {
			result.Failed = append(result.Failed, ActionFailure{Action: action, Err: err})
		} else {
			result.Added = append(result.Added, action)
		}
		if options.Observe != nil {
			options.Observe(action, err)
		}
	}
	return result, nil
}
